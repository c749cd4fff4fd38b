package source_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"reelfeed/config"
	"reelfeed/db"
	"reelfeed/feeds"
	"reelfeed/models"
	"reelfeed/pager"
	"reelfeed/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetchPage(t *testing.T) {
	var gotPath, gotOffset, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotOffset = r.URL.Query().Get("offset")
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		next := 25
		json.NewEncoder(w).Encode(models.FeedPage{
			Items:      []models.FeedItem{{ID: "video-24", Title: "Clip"}},
			Offset:     24,
			Limit:      12,
			NextOffset: &next,
		})
	}))
	defer srv.Close()

	src := source.NewHTTP(srv.URL+"/", "trending", nil)
	items, err := src.FetchPage(context.Background(), 24, 12)
	require.NoError(t, err)

	assert.Equal(t, "/api/feeds/trending", gotPath)
	assert.Equal(t, "24", gotOffset)
	assert.Equal(t, "12", gotLimit)
	require.Len(t, items, 1)
	assert.Equal(t, "video-24", items[0].ID)
}

func TestHTTPFetchPageErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/feeds/broken" {
			w.Write([]byte("{not json"))
			return
		}
		http.Error(w, "Invalid feed", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := source.NewHTTP(srv.URL, "missing", nil).FetchPage(context.Background(), 0, 12)
	assert.ErrorIs(t, err, source.ErrUnexpectedStatus)

	_, err = source.NewHTTP(srv.URL, "broken", nil).FetchPage(context.Background(), 0, 12)
	assert.Error(t, err)
}

func TestHTTPFailureLeavesPagerRetryable(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(models.FeedPage{Items: []models.FeedItem{{ID: "a"}, {ID: "b"}}})
	}))
	defer srv.Close()

	p := pager.New(context.Background(), source.NewHTTP(srv.URL, "latest", nil), pager.NewViewport().NewWatcher, pager.Config{PageSize: 2})

	require.True(t, p.RequestNextPage(context.Background()))
	assert.Empty(t, p.State().Items)
	assert.Equal(t, pager.Idle, p.Status())

	fail.Store(false)
	require.True(t, p.RequestNextPage(context.Background()))
	assert.Len(t, p.State().Items, 2)
}

func TestHTTPEndOfFeed(t *testing.T) {
	const catalogue = 5
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		page := models.FeedPage{Offset: offset, Limit: limit}
		for i := offset; i < offset+limit && i < catalogue; i++ {
			page.Items = append(page.Items, models.FeedItem{ID: fmt.Sprintf("video-%d", i)})
		}
		if next := offset + limit; next < catalogue {
			page.NextOffset = &next
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	src := source.NewHTTP(srv.URL, "latest", nil)

	items, err := src.FetchPage(context.Background(), 4, 2)
	assert.ErrorIs(t, err, pager.ErrEndOfFeed)
	require.Len(t, items, 1)
	assert.Equal(t, "video-4", items[0].ID)

	// Full pages all the way, only the missing next offset ends the feed
	p := pager.New(context.Background(), src, pager.NewViewport().NewWatcher, pager.Config{PageSize: 5})
	require.True(t, p.RequestNextPage(context.Background()))
	assert.Len(t, p.State().Items, catalogue)
	assert.Equal(t, pager.Exhausted, p.Status())
	assert.False(t, p.RequestNextPage(context.Background()))
}

func TestMockPages(t *testing.T) {
	m := source.NewMock(1, 0)

	items, err := m.FetchPage(context.Background(), 12, 12)
	require.NoError(t, err)
	require.Len(t, items, 12)
	assert.Equal(t, "video-12", items[0].ID)
	assert.Equal(t, "video-23", items[11].ID)

	for _, item := range items {
		assert.GreaterOrEqual(t, item.ViewCount, int64(0))
		assert.Less(t, item.ViewCount, int64(1000000))
		assert.NotEmpty(t, item.AuthorName)
		assert.NotEmpty(t, item.AuthorAvatar)
		assert.Regexp(t, `^\d+:\d{2}$`, item.DurationLabel)
		assert.True(t, item.CreatedAt.Before(time.Now()))
	}
}

func TestMockRespectsContextDuringDelay(t *testing.T) {
	m := source.NewMock(1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.FetchPage(ctx, 0, 12)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStoreEndOfFeed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")
	require.NoError(t, db.Migrate(path))

	writer, err := db.NewWriter(path, make(chan interface{}), 0)
	require.NoError(t, err)
	defer writer.Close()
	for n := 0; n < 5; n++ {
		_, err := writer.CreateVideo(ctx, models.Video{
			Uri:        fmt.Sprintf("at://did:plc:creator/app.bsky.feed.post/%d", n),
			Title:      fmt.Sprintf("Clip %d", n),
			AuthorDid:  "did:plc:creator",
			AuthorName: "Creator",
			CreatedAt:  time.Now().Add(-time.Duration(n) * time.Minute),
		})
		require.NoError(t, err)
	}

	reader, err := db.NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	feedMap, err := feeds.InitializeFeeds(config.Default())
	require.NoError(t, err)

	p := pager.New(ctx, source.NewStore(feedMap["latest"], reader), pager.NewViewport().NewWatcher, pager.Config{PageSize: 3})
	p.RequestNextPage(ctx)
	assert.Len(t, p.State().Items, 3)
	assert.Equal(t, pager.Idle, p.Status())

	p.RequestNextPage(ctx)
	assert.Len(t, p.State().Items, 5)
	assert.Equal(t, pager.Exhausted, p.Status())
}
