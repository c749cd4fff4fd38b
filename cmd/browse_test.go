package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"reelfeed/models"
	"reelfeed/pager"
	"reelfeed/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakySource fails its first fetch, then serves the mock catalogue
func flakySource() pager.Source {
	calls := 0
	mock := source.NewMock(1, 0)
	return pager.SourceFunc(func(ctx context.Context, offset, limit int) ([]models.FeedItem, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection refused")
		}
		return mock.FetchPage(ctx, offset, limit)
	})
}

// shortCatalogue holds two videos and says so
func shortCatalogue() pager.Source {
	mock := source.NewMock(1, 0)
	return pager.SourceFunc(func(ctx context.Context, offset, limit int) ([]models.FeedItem, error) {
		items, err := mock.FetchPage(ctx, offset, 2)
		if err != nil {
			return nil, err
		}
		return items, pager.ErrEndOfFeed
	})
}

func TestBrowse(t *testing.T) {
	tests := []struct {
		name    string
		source  func() pager.Source
		config  pager.Config
		replies []bool
		cards   int
		asked   int
		failed  int
		ended   bool
	}{
		{
			name:    "scrolls to the ceiling",
			source:  func() pager.Source { return source.NewMock(1, 0) },
			config:  pager.Config{PageSize: 3, Ceiling: 6},
			replies: []bool{true, true},
			cards:   6,
			asked:   1,
			ended:   true,
		},
		{
			name:    "quits after the first page",
			source:  func() pager.Source { return source.NewMock(1, 0) },
			config:  pager.Config{PageSize: 3},
			replies: []bool{false},
			cards:   3,
			asked:   1,
		},
		{
			name:    "retries a failed first page",
			source:  flakySource,
			config:  pager.Config{PageSize: 3},
			replies: []bool{true, false},
			cards:   3,
			asked:   2,
			failed:  1,
		},
		{
			name:   "source ends the feed",
			source: shortCatalogue,
			config: pager.Config{PageSize: 3},
			cards:  2,
			asked:  0,
			ended:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			asked := 0
			b := &browser{
				out: &out,
				now: time.Now,
				more: func() (bool, error) {
					asked++
					if asked > len(tt.replies) {
						return false, nil
					}
					return tt.replies[asked-1], nil
				},
			}

			require.NoError(t, b.run(context.Background(), tt.source(), tt.config))

			assert.Equal(t, tt.cards, strings.Count(out.String(), " views • "))
			assert.Equal(t, tt.asked, asked)
			assert.Equal(t, tt.failed, strings.Count(out.String(), loadFailed))
			assert.Equal(t, tt.ended, strings.Contains(out.String(), noMoreVideos))
		})
	}
}

func TestBrowsePromptError(t *testing.T) {
	b := &browser{
		out:  &bytes.Buffer{},
		now:  time.Now,
		more: func() (bool, error) { return false, errors.New("no terminal") },
	}

	err := b.run(context.Background(), source.NewMock(1, 0), pager.Config{PageSize: 3})
	assert.EqualError(t, err, "no terminal")
}
