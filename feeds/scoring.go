package feeds

import (
	"fmt"
	"strings"

	"reelfeed/config"
	"reelfeed/query"

	"github.com/huandu/go-sqlbuilder"
)

// TimeDecayScoring scores videos based on how recent they are
type TimeDecayScoring struct{}

func (s *TimeDecayScoring) ApplyScoring(sb *sqlbuilder.SelectBuilder) string {
	return "1.0 / (1.0 + (CAST(STRFTIME('%s', 'now') AS INTEGER) - videos.created_at) / 86400.0)"
}

// ViewScoring saturates towards 1.0 as the view count grows
type ViewScoring struct{}

func (s *ViewScoring) ApplyScoring(sb *sqlbuilder.SelectBuilder) string {
	return "videos.view_count * 1.0 / (videos.view_count + 1000.0)"
}

// KeywordScoring scores videos by the fraction of keywords found in the title
type KeywordScoring struct {
	Keywords []string
}

func (s *KeywordScoring) ApplyScoring(sb *sqlbuilder.SelectBuilder) string {
	patterns := likePatterns(s.Keywords)
	if len(patterns) == 0 {
		return "0.0"
	}
	terms := make([]string, len(patterns))
	for i, pattern := range patterns {
		terms[i] = fmt.Sprintf("(CASE WHEN %s THEN 1.0 ELSE 0.0 END)", sb.Like(titleWords, pattern))
	}
	return fmt.Sprintf("(%s) / %d.0", strings.Join(terms, " + "), len(terms))
}

// AuthorScoring scores videos based on author weights
type AuthorScoring struct {
	Authors []config.TomlAuthor
}

func (s *AuthorScoring) ApplyScoring(sb *sqlbuilder.SelectBuilder) string {
	if len(s.Authors) == 0 {
		return "1.0"
	}
	// Create CASE statement for author scoring where default score is 1.0
	authorScores := make([]string, len(s.Authors))
	for i, author := range s.Authors {
		authorScores[i] = fmt.Sprintf(
			"CASE WHEN videos.author_did = %s THEN %f ELSE 1.0 END",
			sb.Var(author.DID),
			author.Weight,
		)
	}

	// Multiply all author factors together
	return "(" + strings.Join(authorScores, " * ") + ")"
}

var _ query.ScoringStrategy = (*TimeDecayScoring)(nil)
var _ query.ScoringStrategy = (*ViewScoring)(nil)
var _ query.ScoringStrategy = (*KeywordScoring)(nil)
var _ query.ScoringStrategy = (*AuthorScoring)(nil)
