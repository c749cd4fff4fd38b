package firehose

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/lo"
)

var (
	spamPhrases = []string{
		"onlyfans.com",
		"join my vip",
		"subscribe to my",
		"check my profile",
		"check my bio",
		"link in bio",
		"link in profile",
		"follow me",
		"follow back",
		"follow for follow",
		"f4f",
	}

	// Kept short, broader lists hide too many legitimate videos
	adultTerms = []string{
		"porn",
		"xxx",
		"nsfw",
		"18+",
	}
)

const (
	maxEmoji    = 8
	maxHashtags = 5
	maxMentions = 5
)

// HasEnoughLetters reports whether more than 30% of the runes in text are
// letters in any script
func HasEnoughLetters(text string) bool {
	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return false
	}

	letters := lo.CountBy([]rune(text), unicode.IsLetter)
	return float64(letters)/float64(runes) > 0.30
}

// graphemes splits text into runes joined with their combining marks,
// zero-width joiners and variation selectors
func graphemes(text string) []string {
	clusters := []string{}
	var current strings.Builder

	for _, r := range text {
		if r == utf8.RuneError {
			continue
		}
		joins := unicode.Is(unicode.Mn, r) || r == '\u200d' || r == '\ufe0f'
		if joins && current.Len() > 0 {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			clusters = append(clusters, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		clusters = append(clusters, current.String())
	}
	return clusters
}

// ContainsRepetitivePattern detects captions made of one repeated symbol or
// a short repeated sequence
func ContainsRepetitivePattern(text string) bool {
	text = strings.ReplaceAll(strings.ToLower(text), " ", "")
	if len(text) < 4 {
		return false
	}

	clusters := graphemes(text)

	run := 0
	for i := range clusters {
		if i > 0 && clusters[i] == clusters[i-1] {
			run++
		} else {
			run = 1
		}
		if run >= 4 {
			return true
		}
	}

	for size := 2; size <= 8; size++ {
		// Longer sequences only need to appear twice in a row
		needed := 4
		if size >= 4 {
			needed = 2
		}
		for start := 0; start+size*2 <= len(clusters); start++ {
			if repeats(clusters, start, size) >= needed {
				return true
			}
		}
	}

	return false
}

// repeats counts consecutive copies of clusters[start:start+size]
func repeats(clusters []string, start, size int) int {
	count := 1
	for next := start + size; next+size <= len(clusters); next += size {
		for k := 0; k < size; k++ {
			if clusters[next+k] != clusters[start+k] {
				return count
			}
		}
		count++
	}
	return count
}

// ContainsSpamContent flags promotional and adult captions, and captions
// that are mostly hashtags, mentions or emoji
func ContainsSpamContent(text string) bool {
	lower := strings.ToLower(text)

	contains := func(term string) bool { return strings.Contains(lower, term) }
	if lo.SomeBy(spamPhrases, contains) || lo.SomeBy(adultTerms, contains) {
		return true
	}

	emoji := lo.CountBy([]rune(text), func(r rune) bool { return r >= 0x1F300 })
	if emoji > maxEmoji {
		return true
	}

	hashtags := strings.Count(text, "#")
	mentions := strings.Count(text, "@")
	if hashtags > maxHashtags || mentions > maxMentions {
		return true
	}
	if strings.Contains(text, "##") || strings.Contains(text, "@@") {
		return true
	}

	words := strings.Fields(text)
	if len(words) > 0 && float64(hashtags+mentions)/float64(len(words)) > 0.5 {
		return true
	}

	return false
}
