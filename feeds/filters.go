package feeds

import (
	"fmt"
	"strings"

	"reelfeed/query"

	"github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"
)

// LanguageFilter keeps videos tagged with any of the languages
type LanguageFilter struct {
	Languages []string
}

func (f *LanguageFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	if len(f.Languages) == 0 {
		return
	}
	placeholders := lo.Map(f.Languages, func(lang string, _ int) string {
		return sb.Var(lang)
	})
	sb.Where(fmt.Sprintf(
		"EXISTS (SELECT 1 FROM video_languages fl WHERE fl.video_id = videos.id AND fl.language IN (%s))",
		strings.Join(placeholders, ", "),
	))
}

// AuthorFilter keeps videos from the listed creators
type AuthorFilter struct {
	Authors []string
}

func (f *AuthorFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	if len(f.Authors) == 0 {
		return
	}
	sb.Where(sb.In("videos.author_did", lo.ToAnySlice(f.Authors)...))
}

// KeywordFilter matches title words against included and excluded keywords.
// A trailing * matches any word starting with the keyword.
type KeywordFilter struct {
	IncludeKeywords []string
	ExcludeKeywords []string
}

func (f *KeywordFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	if include := keywordConditions(sb, f.IncludeKeywords); len(include) > 0 {
		sb.Where(sb.Or(include...))
	}

	if exclude := keywordConditions(sb, f.ExcludeKeywords); len(exclude) > 0 {
		sb.Where(fmt.Sprintf("NOT (%s)", sb.Or(exclude...)))
	}
}

// Pads the title with spaces so whole words can be matched with LIKE
const titleWords = "LOWER(' ' || videos.title || ' ')"

func keywordConditions(sb *sqlbuilder.SelectBuilder, keywords []string) []string {
	conds := make([]string, 0, len(keywords))
	for _, pattern := range likePatterns(keywords) {
		conds = append(conds, sb.Like(titleWords, pattern))
	}
	return conds
}

// likePatterns turns keywords into LIKE patterns, skipping blanks
func likePatterns(keywords []string) []string {
	patterns := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}
		keyword = strings.NewReplacer("%", "", "_", "").Replace(keyword)
		if strings.HasSuffix(keyword, "*") {
			patterns = append(patterns, "% "+strings.TrimSuffix(keyword, "*")+"%")
			continue
		}
		patterns = append(patterns, "% "+keyword+" %")
	}
	return patterns
}

var _ query.FilterStrategy = (*LanguageFilter)(nil)
var _ query.FilterStrategy = (*AuthorFilter)(nil)
var _ query.FilterStrategy = (*KeywordFilter)(nil)
