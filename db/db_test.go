package db_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"reelfeed/db"
	"reelfeed/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStore migrates a fresh database and opens a writer and a reader on it
func newStore(t *testing.T) (*db.Writer, *db.Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.db")
	require.NoError(t, db.Migrate(path))

	writer, err := db.NewWriter(path, make(chan interface{}), 0)
	require.NoError(t, err)
	t.Cleanup(func() { writer.Close() })

	reader, err := db.NewReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })

	return writer, reader
}

func video(n int, createdAt time.Time, langs ...string) models.Video {
	return models.Video{
		Uri:             fmt.Sprintf("video-%d", n),
		Title:           fmt.Sprintf("Video %d", n),
		AuthorDid:       fmt.Sprintf("did:web:author%d", n%3),
		AuthorName:      fmt.Sprintf("Author %d", n%3),
		DurationSeconds: int64(60 + n),
		ViewCount:       int64(n * 10),
		Languages:       langs,
		CreatedAt:       createdAt,
	}
}

func selectAll(limit, offset int) (string, []interface{}) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(db.VideoColumns...).From("videos").OrderBy("videos.id").Desc()
	sb.Limit(limit).Offset(offset)
	return sb.BuildWithFlavor(sqlbuilder.SQLite)
}

func TestCreateAndGetVideo(t *testing.T) {
	ctx := context.Background()
	writer, reader := newStore(t)
	created := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)

	v, err := writer.CreateVideo(ctx, video(1, created, "en", "no"))
	require.NoError(t, err)
	require.NotZero(t, v.Id)

	got, err := reader.GetVideo(ctx, v.Id)
	require.NoError(t, err)
	assert.Equal(t, "video-1", got.Uri)
	assert.Equal(t, "Author 1", got.AuthorName)
	assert.Equal(t, created, got.CreatedAt)
	assert.ElementsMatch(t, []string{"en", "no"}, got.Languages)

	_, err = reader.GetVideo(ctx, v.Id+100)
	assert.ErrorIs(t, err, db.ErrVideoNotFound)
}

func TestCreateVideoUpsertKeepsIdAndViews(t *testing.T) {
	ctx := context.Background()
	writer, reader := newStore(t)

	first, err := writer.CreateVideo(ctx, video(1, time.Now(), "en"))
	require.NoError(t, err)
	require.NoError(t, writer.IncrementViews(ctx, first.Id))

	updated := video(1, time.Now(), "de")
	updated.Title = "Renamed"
	second, err := writer.CreateVideo(ctx, updated)
	require.NoError(t, err)

	assert.Equal(t, first.Id, second.Id)
	got, err := reader.GetVideo(ctx, first.Id)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, int64(11), got.ViewCount)
	assert.Equal(t, []string{"de"}, got.Languages)
}

func TestQueryVideosPagesAreContiguous(t *testing.T) {
	ctx := context.Background()
	writer, reader := newStore(t)
	for i := 0; i < 7; i++ {
		_, err := writer.CreateVideo(ctx, video(i, time.Now()))
		require.NoError(t, err)
	}

	var uris []string
	for offset := 0; offset < 9; offset += 3 {
		query, args := selectAll(3, offset)
		page, err := reader.QueryVideos(ctx, query, args)
		require.NoError(t, err)
		for _, v := range page {
			uris = append(uris, v.Uri)
		}
	}

	assert.Equal(t, []string{"video-6", "video-5", "video-4", "video-3", "video-2", "video-1", "video-0"}, uris)
}

func TestDeleteVideoAndIncrementMissing(t *testing.T) {
	ctx := context.Background()
	writer, reader := newStore(t)
	v, err := writer.CreateVideo(ctx, video(1, time.Now(), "en"))
	require.NoError(t, err)

	require.NoError(t, writer.DeleteVideo(ctx, v.Uri))
	_, err = reader.GetVideo(ctx, v.Id)
	assert.ErrorIs(t, err, db.ErrVideoNotFound)
	assert.ErrorIs(t, writer.IncrementViews(ctx, v.Id), db.ErrVideoNotFound)
}

func TestStatisticsAndCounts(t *testing.T) {
	ctx := context.Background()
	writer, reader := newStore(t)
	day := time.Date(2024, 3, 4, 10, 15, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		lang := "en"
		if i%2 == 0 {
			lang = "no"
		}
		_, err := writer.CreateVideo(ctx, video(i, day.Add(time.Duration(i)*time.Hour), lang))
		require.NoError(t, err)
	}

	stats, err := reader.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Videos)
	assert.Equal(t, int64(0+10+20+30), stats.Views)
	assert.Equal(t, int64(3), stats.Creators)

	perHour, err := reader.GetVideoCountPerTime(ctx, "", "hour")
	require.NoError(t, err)
	require.Len(t, perHour, 4)
	assert.Equal(t, time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), perHour[0].Time)

	perDay, err := reader.GetVideoCountPerTime(ctx, "no", "day")
	require.NoError(t, err)
	require.Len(t, perDay, 1)
	assert.Equal(t, int64(2), perDay[0].Count)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), perDay[0].Time)

	perWeek, err := reader.GetVideoCountPerTime(ctx, "", "week")
	require.NoError(t, err)
	require.Len(t, perWeek, 1)
	assert.Equal(t, time.Monday, perWeek[0].Time.Weekday())
}

func TestSequence(t *testing.T) {
	ctx := context.Background()
	writer, reader := newStore(t)

	seq, err := reader.GetSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	require.NoError(t, writer.UpdateSequence(ctx, 1733000000000000))
	seq, err = reader.GetSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1733000000000000), seq)
}

func TestTidyRemovesOldVideos(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "feed.db")
	require.NoError(t, db.Migrate(path))
	writer, err := db.NewWriter(path, make(chan interface{}), 0)
	require.NoError(t, err)
	defer writer.Close()

	_, err = writer.CreateVideo(ctx, video(1, time.Now().Add(-100*24*time.Hour)))
	require.NoError(t, err)
	_, err = writer.CreateVideo(ctx, video(2, time.Now()))
	require.NoError(t, err)

	deleted, err := db.Tidy(ctx, path, db.DefaultRetention)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestWriterSubscribeAppliesEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.db")
	require.NoError(t, db.Migrate(path))
	events := make(chan interface{})
	writer, err := db.NewWriter(path, events, 0)
	require.NoError(t, err)
	defer writer.Close()

	created := make(chan models.Video, 1)
	writer.OnCreate = func(v models.Video) { created <- v }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		writer.Subscribe(ctx)
	}()

	events <- models.CreateVideoEvent{Video: video(1, time.Now(), "en")}
	v := <-created
	events <- models.ViewEvent{VideoId: v.Id}
	events <- models.ProcessSeqEvent{Seq: 42}
	cancel()
	<-done

	reader, err := db.NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	got, err := reader.GetVideo(context.Background(), v.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.ViewCount)
	seq, err := reader.GetSequence(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)
}
