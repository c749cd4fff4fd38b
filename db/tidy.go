package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Tidy removes videos that are older than the retention window from the database
func Tidy(ctx context.Context, database string, retention time.Duration) (int64, error) {
	db, err := connection(database)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return tidy(ctx, db, retention)
}

func tidy(ctx context.Context, db *sql.DB, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	deleteVideos := sb.NewDeleteBuilder()
	query, args := deleteVideos.DeleteFrom("videos").Where(deleteVideos.LessThan("created_at", cutoff)).BuildWithFlavor(sb.SQLite)

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("tidy: %w", err)
	}
	deleted, _ := res.RowsAffected()

	log.WithFields(log.Fields{
		"cutoff":  time.Unix(cutoff, 0).UTC().Format(time.RFC3339),
		"deleted": deleted,
	}).Info("Tidied database")

	return deleted, nil
}
