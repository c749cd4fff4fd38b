package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reelfeed/models"
	"strconv"
	"strings"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

var ErrVideoNotFound = errors.New("video not found")

// VideoColumns are selected, in order, by every query scanned with scanVideo
var VideoColumns = []string{
	"videos.id",
	"videos.uri",
	"videos.title",
	"videos.author_did",
	"videos.author_name",
	"videos.author_avatar",
	"videos.thumbnail_url",
	"videos.playlist_url",
	"videos.view_count",
	"videos.duration_seconds",
	"videos.created_at",
	"(SELECT GROUP_CONCAT(vl.language, ',') FROM video_languages vl WHERE vl.video_id = videos.id) AS languages",
}

type Reader struct {
	db *sql.DB
}

func NewReader(database string) (*Reader, error) {
	db, err := readOnlyConnection(database)
	if err != nil {
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (reader *Reader) Close() error {
	return reader.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner, extra ...any) (models.Video, error) {
	var video models.Video
	var createdAt int64
	var languages sql.NullString

	dest := []any{
		&video.Id,
		&video.Uri,
		&video.Title,
		&video.AuthorDid,
		&video.AuthorName,
		&video.AuthorAvatar,
		&video.ThumbnailUrl,
		&video.PlaylistUrl,
		&video.ViewCount,
		&video.DurationSeconds,
		&createdAt,
		&languages,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return video, err
	}

	video.CreatedAt = time.Unix(createdAt, 0).UTC()
	video.Languages = []string{}
	if languages.Valid && languages.String != "" {
		video.Languages = strings.Split(languages.String, ",")
	}
	return video, nil
}

// QueryVideos runs a query selecting VideoColumns. Columns after those (such
// as a computed score) are ignored.
func (reader *Reader) QueryVideos(ctx context.Context, query string, args []interface{}) ([]models.Video, error) {
	rows, err := reader.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns error: %w", err)
	}
	extra := make([]any, 0, len(cols)-len(VideoColumns))
	for i := len(VideoColumns); i < len(cols); i++ {
		extra = append(extra, new(any))
	}

	videos := []models.Video{}
	for rows.Next() {
		video, err := scanVideo(rows, extra...)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		videos = append(videos, video)
	}

	return videos, rows.Err()
}

func (reader *Reader) GetVideo(ctx context.Context, id int64) (models.Video, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(VideoColumns...).From("videos").Where(sb.Equal("videos.id", id))
	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	video, err := scanVideo(reader.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return video, ErrVideoNotFound
	}
	if err != nil {
		return video, fmt.Errorf("query error: %w", err)
	}
	return video, nil
}

// Returns the number of videos per hour, day or week
func (reader *Reader) GetVideoCountPerTime(ctx context.Context, lang string, timeAgg string) ([]models.VideosAggregatedByTime, error) {
	var sqlFormat string
	var timeParse func(string) (time.Time, error)

	switch timeAgg {
	case "day":
		sqlFormat = `STRFTIME('%Y-%m-%d', videos.created_at, 'unixepoch')`
		timeParse = func(str string) (time.Time, error) {
			return time.Parse("2006-01-02", str)
		}
	case "week":
		sqlFormat = `STRFTIME('%Y-%W', videos.created_at, 'unixepoch')`
		timeParse = parseYearWeek
	default:
		sqlFormat = `STRFTIME('%Y-%m-%d-%H', videos.created_at, 'unixepoch')`
		timeParse = func(str string) (time.Time, error) {
			return time.Parse("2006-01-02-15", str)
		}
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(sqlFormat+" AS bucket", "count(*) AS count").From("videos")
	if lang != "" {
		sb.Join("video_languages", "videos.id = video_languages.video_id")
		sb.Where(sb.Equal("video_languages.language", lang))
	}
	sb.GroupBy("bucket")
	sb.OrderBy("bucket").Asc()

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := reader.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	counts := []models.VideosAggregatedByTime{}
	for rows.Next() {
		var bucket string
		var count models.VideosAggregatedByTime
		if err := rows.Scan(&bucket, &count.Count); err != nil {
			continue // Skip this row
		}
		if t, err := timeParse(bucket); err == nil {
			count.Time = t
		}
		counts = append(counts, count)
	}

	return counts, rows.Err()
}

// parseYearWeek turns a %Y-%W bucket into the Monday starting that week
func parseYearWeek(str string) (time.Time, error) {
	if len(str) < 6 {
		return time.Time{}, fmt.Errorf("invalid week bucket %q", str)
	}
	year, err := time.Parse("2006", str[:4])
	if err != nil {
		return time.Time{}, err
	}
	week, err := strconv.Atoi(str[5:])
	if err != nil {
		return time.Time{}, err
	}

	// %W counts weeks starting on Monday; week 1 begins at the first Monday
	firstMonday := year
	for firstMonday.Weekday() != time.Monday {
		firstMonday = firstMonday.AddDate(0, 0, 1)
	}
	return firstMonday.AddDate(0, 0, (week-1)*7), nil
}

func (reader *Reader) GetStatistics(ctx context.Context) (models.StatisticsEvent, error) {
	var stats models.StatisticsEvent
	err := reader.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(view_count), 0), COUNT(DISTINCT author_did)
		FROM videos`).Scan(&stats.Videos, &stats.Views, &stats.Creators)
	if err != nil {
		return stats, fmt.Errorf("query error: %w", err)
	}
	return stats, nil
}

func (reader *Reader) GetSequence(ctx context.Context) (int64, error) {
	selectSeq := sqlbuilder.NewSelectBuilder()
	query, args := selectSeq.Select("seq").From("sequence").Where(selectSeq.Equal("id", 0)).BuildWithFlavor(sqlbuilder.SQLite)

	var seq int64
	if err := reader.db.QueryRowContext(ctx, query, args...).Scan(&seq); err != nil {
		return 0, err
	}

	return seq, nil
}
