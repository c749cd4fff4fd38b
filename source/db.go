package source

import (
	"context"

	"reelfeed/feeds"
	"reelfeed/models"
	"reelfeed/pager"
)

// Store pages through a feed by querying the catalogue directly
type Store struct {
	feed    *feeds.Feed
	querier feeds.Querier
}

func NewStore(feed *feeds.Feed, querier feeds.Querier) *Store {
	return &Store{feed: feed, querier: querier}
}

func (s *Store) FetchPage(ctx context.Context, offset, limit int) ([]models.FeedItem, error) {
	page, err := s.feed.Page(ctx, s.querier, offset, limit)
	if err != nil {
		return nil, err
	}
	if page.NextOffset == nil {
		return page.Items, pager.ErrEndOfFeed
	}
	return page.Items, nil
}

var _ pager.Source = (*Store)(nil)
