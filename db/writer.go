package db

import (
	"context"
	"database/sql"
	"fmt"
	"reelfeed/models"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

const DefaultRetention = 90 * 24 * time.Hour

type Writer struct {
	db        *sql.DB
	events    chan interface{}
	tidyChan  *time.Ticker
	retention time.Duration

	// OnCreate is called with every newly indexed video
	OnCreate func(models.Video)
}

func NewWriter(database string, events chan interface{}, retention time.Duration) (*Writer, error) {
	db, err := connection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Writer{
		db:        db,
		events:    events,
		retention: retention,
		// Create new tidy channel that is pinged every 5 minutes
		tidyChan: time.NewTicker(5 * time.Minute),
	}, nil
}

func (writer *Writer) Close() error {
	writer.tidyChan.Stop()
	return writer.db.Close()
}

// Subscribe applies events from the channel until ctx is done or the
// channel is closed. It is the only goroutine that writes to the database.
func (writer *Writer) Subscribe(ctx context.Context) {
	// Tidy database immediately
	if _, err := tidy(ctx, writer.db, writer.retention); err != nil {
		log.Error("Error tidying database ", err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("Writer shutting down")
			return

		case <-writer.tidyChan.C:
			if _, err := tidy(ctx, writer.db, writer.retention); err != nil {
				log.Error("Error tidying database ", err)
			}

		case event, ok := <-writer.events:
			if !ok {
				return
			}
			if err := writer.apply(ctx, event); err != nil {
				log.WithFields(log.Fields{
					"event": fmt.Sprintf("%T", event),
					"error": err,
				}).Error("Error applying event")
			}
		}
	}
}

func (writer *Writer) apply(ctx context.Context, event interface{}) error {
	switch event := event.(type) {
	case models.ProcessSeqEvent:
		return writer.UpdateSequence(ctx, event.Seq)
	case models.CreateVideoEvent:
		video, err := writer.CreateVideo(ctx, event.Video)
		if err != nil {
			return err
		}
		if writer.OnCreate != nil {
			writer.OnCreate(video)
		}
		return nil
	case models.DeleteVideoEvent:
		return writer.DeleteVideo(ctx, event.Uri)
	case models.ViewEvent:
		return writer.IncrementViews(ctx, event.VideoId)
	default:
		log.Info("Unknown event type")
		return nil
	}
}

func (writer *Writer) UpdateSequence(ctx context.Context, seq int64) error {
	updateSeq := sqlbuilder.NewUpdateBuilder()
	query, args := updateSeq.Update("sequence").Set(updateSeq.Assign("seq", seq)).Where(updateSeq.Equal("id", 0)).BuildWithFlavor(sqlbuilder.SQLite)

	if _, err := writer.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update sequence: %w", err)
	}
	return nil
}

// CreateVideo inserts a video and its languages. Re-indexing an existing uri
// refreshes its metadata but keeps the id and view count.
func (writer *Writer) CreateVideo(ctx context.Context, video models.Video) (models.Video, error) {
	log.WithFields(log.Fields{
		"uri":       video.Uri,
		"author":    video.AuthorDid,
		"languages": video.Languages,
	}).Info("Creating video")

	tx, err := writer.db.BeginTx(ctx, nil)
	if err != nil {
		return video, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if video.CreatedAt.IsZero() {
		video.CreatedAt = time.Now().UTC()
	}

	insertVideo := sqlbuilder.NewInsertBuilder()
	insertVideo.InsertInto("videos").
		Cols("uri", "title", "author_did", "author_name", "author_avatar", "thumbnail_url",
			"playlist_url", "view_count", "duration_seconds", "created_at", "indexed_at").
		Values(video.Uri, video.Title, video.AuthorDid, video.AuthorName, video.AuthorAvatar, video.ThumbnailUrl,
			video.PlaylistUrl, video.ViewCount, video.DurationSeconds, video.CreatedAt.Unix(), time.Now().Unix())
	insertVideo.SQL(`ON CONFLICT (uri) DO UPDATE SET
		title = excluded.title,
		author_name = excluded.author_name,
		author_avatar = excluded.author_avatar,
		thumbnail_url = excluded.thumbnail_url,
		playlist_url = excluded.playlist_url,
		duration_seconds = excluded.duration_seconds,
		indexed_at = excluded.indexed_at
	RETURNING id, view_count`)
	query, args := insertVideo.BuildWithFlavor(sqlbuilder.SQLite)

	if err := tx.QueryRowContext(ctx, query, args...).Scan(&video.Id, &video.ViewCount); err != nil {
		return video, fmt.Errorf("insert video: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM video_languages WHERE video_id = ?", video.Id); err != nil {
		return video, fmt.Errorf("clear languages: %w", err)
	}
	if len(video.Languages) > 0 {
		insertLangs := sqlbuilder.NewInsertBuilder()
		insertLangs.InsertInto("video_languages").Cols("video_id", "language")
		for _, lang := range video.Languages {
			insertLangs.Values(video.Id, lang)
		}
		insertLangs.SQL("ON CONFLICT DO NOTHING")
		query, args = insertLangs.BuildWithFlavor(sqlbuilder.SQLite)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return video, fmt.Errorf("insert languages: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return video, fmt.Errorf("commit: %w", err)
	}
	video.CreatedAt = time.Unix(video.CreatedAt.Unix(), 0).UTC()
	return video, nil
}

func (writer *Writer) DeleteVideo(ctx context.Context, uri string) error {
	log.WithField("uri", uri).Info("Deleting video")
	deleteVideo := sqlbuilder.NewDeleteBuilder()
	query, args := deleteVideo.DeleteFrom("videos").Where(deleteVideo.Equal("uri", uri)).BuildWithFlavor(sqlbuilder.SQLite)
	if _, err := writer.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	return nil
}

func (writer *Writer) IncrementViews(ctx context.Context, id int64) error {
	res, err := writer.db.ExecContext(ctx, "UPDATE videos SET view_count = view_count + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrVideoNotFound
	}
	return nil
}
