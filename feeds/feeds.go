// Package feeds provides configured video feeds and their ranking queries
package feeds

import (
	"context"
	"fmt"
	"sort"

	"reelfeed/config"
	"reelfeed/models"
	"reelfeed/query"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// Querier runs a query selecting db.VideoColumns
type Querier interface {
	QueryVideos(ctx context.Context, query string, args []interface{}) ([]models.Video, error)
}

// FeedMap maps feed IDs to their Feed instances
type FeedMap map[string]*Feed

// Feed represents a runtime feed instance
type Feed struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	AvatarPath  string `json:"-"`

	builder query.Builder
}

// Page returns up to limit videos starting at offset. One extra row is read
// to find out whether another page exists.
func (f *Feed) Page(ctx context.Context, querier Querier, offset int, limit int) (*models.FeedPage, error) {
	sql, args := f.builder.Build(limit+1, offset)
	videos, err := querier.QueryVideos(ctx, sql, args)
	if err != nil {
		log.WithFields(log.Fields{
			"feed":   f.ID,
			"offset": offset,
			"limit":  limit,
			"error":  err,
		}).Error("Error getting feed")
		return nil, err
	}

	page := &models.FeedPage{
		Offset: offset,
		Limit:  limit,
	}

	// Only set the next offset if we have more results
	if len(videos) > limit {
		videos = videos[:limit]
		next := offset + limit
		page.NextOffset = &next
	}

	page.Items = lo.Map(videos, func(v models.Video, _ int) models.FeedItem {
		return models.FeedItemFromVideo(v)
	})
	return page, nil
}

// Sorted returns the feeds ordered by id
func (m FeedMap) Sorted() []*Feed {
	feeds := lo.Values(m)
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].ID < feeds[j].ID })
	return feeds
}

// InitializeFeeds builds the query for every configured feed
func InitializeFeeds(cfg *config.TomlConfig) (FeedMap, error) {
	feeds := make(FeedMap, len(cfg.Feeds))

	for _, feedCfg := range cfg.Feeds {
		builder, err := newBuilder(cfg, feedCfg)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", feedCfg.Id, err)
		}

		feeds[feedCfg.Id] = &Feed{
			ID:          feedCfg.Id,
			DisplayName: feedCfg.DisplayName,
			Description: feedCfg.Description,
			AvatarPath:  feedCfg.AvatarPath,
			builder:     builder,
		}
	}

	return feeds, nil
}

func newBuilder(cfg *config.TomlConfig, feedCfg config.TomlFeed) (*FeedQueryBuilder, error) {
	builder := NewFeedQueryBuilder()

	resolve := func(refs []string) []string {
		return lo.FlatMap(refs, func(ref string, _ int) []string {
			return cfg.Keywords[ref]
		})
	}

	for _, filter := range feedCfg.Filters {
		switch filter.Type {
		case "language":
			builder.AddFilter(&LanguageFilter{Languages: filter.Languages})
		case "author":
			builder.AddFilter(&AuthorFilter{Authors: filter.Authors})
		case "keyword":
			builder.AddFilter(&KeywordFilter{
				IncludeKeywords: resolve(filter.Include),
				ExcludeKeywords: resolve(filter.Exclude),
			})
		default:
			return nil, fmt.Errorf("unknown filter type %q", filter.Type)
		}
	}

	for _, scoring := range feedCfg.Scoring {
		switch scoring.Type {
		case "time_decay":
			builder.AddScoringLayer(&TimeDecayScoring{}, scoring.Weight)
		case "views":
			builder.AddScoringLayer(&ViewScoring{}, scoring.Weight)
		case "keyword":
			builder.AddScoringLayer(&KeywordScoring{Keywords: cfg.Keywords[scoring.Keywords]}, scoring.Weight)
		case "author":
			builder.AddScoringLayer(&AuthorScoring{Authors: scoring.Authors}, scoring.Weight)
		default:
			return nil, fmt.Errorf("unknown scoring type %q", scoring.Type)
		}
	}

	return builder, nil
}
