package firehose

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
	"github.com/samber/lo"
)

// NewLanguageDetector builds a detector for the target languages plus
// English, which most captions are written in
func NewLanguageDetector(targetLangs []lingua.Language) lingua.LanguageDetector {
	languages := lo.Uniq(append([]lingua.Language{lingua.English}, targetLangs...))
	if len(languages) < 2 {
		// lingua needs at least two candidates
		languages = lingua.AllLanguages()
	}

	return lingua.NewLanguageDetectorBuilder().
		FromLanguages(languages...).
		WithMinimumRelativeDistance(0.25).
		Build()
}

func linguaToISO(lang lingua.Language, languages map[lingua.Language]string) string {
	if code, ok := languages[lang]; ok {
		return code
	}
	return ""
}

func isoToLingua(code string, languages map[lingua.Language]string) (lingua.Language, bool) {
	for lang, isoCode := range languages {
		if isoCode == code {
			return lang, true
		}
	}
	return lingua.Unknown, false
}

// getSupportedLanguages maps every lingua language to its ISO 639-1 code
func getSupportedLanguages() map[lingua.Language]string {
	languages := make(map[lingua.Language]string)
	for _, lang := range lingua.AllLanguages() {
		languages[lang] = strings.ToLower(lang.IsoCode639_1().String())
	}
	return languages
}

func targetLanguagesToLingua(languages []string) []lingua.Language {
	supported := getSupportedLanguages()
	return lo.FilterMap(languages, func(code string, _ int) (lingua.Language, bool) {
		return isoToLingua(strings.ToLower(code), supported)
	})
}
