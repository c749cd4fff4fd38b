package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelfeed/models"
	"reelfeed/pager"
	"reelfeed/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatViews(t *testing.T) {
	tests := []struct {
		views    int64
		expected string
	}{
		{0, "0 views"},
		{12, "12 views"},
		{999, "999 views"},
		{1000, "1.0K views"},
		{3400, "3.4K views"},
		{999999, "1000.0K views"},
		{1200000, "1.2M views"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatViews(tt.views))
		})
	}
}

func TestFormatCard(t *testing.T) {
	now := time.Date(2024, 12, 4, 12, 0, 0, 0, time.UTC)
	card := formatCard(7, models.FeedItem{
		Title:         "Sample Video 7 - Amazing Royalty Free Content",
		AuthorName:    "Channel 42",
		ViewCount:     1234567,
		CreatedAt:     now.Add(-3 * 24 * time.Hour),
		DurationLabel: "4:05",
	}, now)

	assert.Equal(t, "  7. Sample Video 7 - Amazing Royalty Free Content [4:05]\n     Channel 42 • 1.2M views • 3 days ago\n", card)

	card = formatCard(1, models.FeedItem{Title: strings.Repeat("x", 100), DurationLabel: "0:00"}, now)
	assert.Contains(t, card, strings.Repeat("x", cardTitleWidth-1)+"…")
	assert.Contains(t, formatCard(1, models.FeedItem{}, now), "Untitled video")
}

func TestCardRendererOnlyPrintsNewItems(t *testing.T) {
	var out bytes.Buffer
	renderer := &cardRenderer{out: &out, now: time.Now}

	p := pager.New(context.Background(), source.NewMock(1, 0), pager.NewViewport().NewWatcher, pager.Config{
		PageSize: 3,
		Ceiling:  6,
		OnChange: renderer.render,
	})

	p.RequestNextPage(context.Background())
	assert.Equal(t, 3, strings.Count(out.String(), " views • "))
	assert.Contains(t, out.String(), "  1. ")

	p.RequestNextPage(context.Background())
	assert.Equal(t, 6, strings.Count(out.String(), " views • "))
	assert.Contains(t, out.String(), "  6. ")
	assert.Equal(t, noMoreVideos, footer(p.State()))
}

func TestFooter(t *testing.T) {
	assert.Equal(t, loadingVideos, footer(pager.State{Fetching: true, HasMore: true}))
	assert.Equal(t, noMoreVideos, footer(pager.State{HasMore: false}))
	assert.NotEqual(t, noMoreVideos, footer(pager.State{HasMore: true}))
}

func TestLoadConfigFallsBackToDefault(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Len(t, cfg.Feeds, 1)
	assert.Equal(t, "latest", cfg.Feeds[0].Id)

	cfg, err = loadConfig("../config/feeds.toml")
	require.NoError(t, err)
	assert.Greater(t, len(cfg.Feeds), 1)
}
