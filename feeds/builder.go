package feeds

import (
	"fmt"
	"reelfeed/db"
	"reelfeed/query"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// FeedQueryBuilder builds feed queries with scoring and filters
type FeedQueryBuilder struct {
	scoringLayers []scoringLayer
	filters       []query.FilterStrategy
}

type scoringLayer struct {
	strategy query.ScoringStrategy
	weight   float64
}

func NewFeedQueryBuilder() *FeedQueryBuilder {
	return &FeedQueryBuilder{
		scoringLayers: make([]scoringLayer, 0),
		filters:       make([]query.FilterStrategy, 0),
	}
}

func (b *FeedQueryBuilder) AddScoringLayer(strategy query.ScoringStrategy, weight float64) {
	b.scoringLayers = append(b.scoringLayers, scoringLayer{
		strategy: strategy,
		weight:   weight,
	})
}

func (b *FeedQueryBuilder) AddFilter(filter query.FilterStrategy) {
	b.filters = append(b.filters, filter)
}

func (b *FeedQueryBuilder) Build(limit int, offset int) (string, []interface{}) {
	sb := sqlbuilder.NewSelectBuilder()

	// Add base columns
	sb.Select(db.VideoColumns...)

	// Calculate final score if we have scoring layers
	if len(b.scoringLayers) > 0 {
		scoreTerms := make([]string, 0, len(b.scoringLayers))
		for _, layer := range b.scoringLayers {
			scoreTerms = append(scoreTerms, fmt.Sprintf("(%f * (%s))", layer.weight, layer.strategy.ApplyScoring(sb)))
		}
		sb.SelectMore(fmt.Sprintf("(%s) AS score", strings.Join(scoreTerms, " + ")))
	}

	sb.From("videos")

	// Apply all filters
	for _, filter := range b.filters {
		filter.ApplyFilter(sb)
	}

	// Order by score if we have scoring layers, otherwise by time
	if len(b.scoringLayers) > 0 {
		sb.OrderBy("score DESC", "videos.id DESC")
	} else {
		sb.OrderBy("videos.id DESC")
	}

	sb.Limit(limit)
	if offset > 0 {
		sb.Offset(offset)
	}

	return sb.BuildWithFlavor(sqlbuilder.SQLite)
}

var _ query.Builder = (*FeedQueryBuilder)(nil)
