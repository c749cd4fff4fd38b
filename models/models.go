package models

import (
	"fmt"
	"time"
)

// Video is a catalogue row with the fields the feed needs
type Video struct {
	Id              int64     `json:"id"`
	Uri             string    `json:"uri"`
	Title           string    `json:"title"`
	AuthorDid       string    `json:"authorDid"`
	AuthorName      string    `json:"authorName"`
	AuthorAvatar    string    `json:"authorAvatar,omitempty"`
	ThumbnailUrl    string    `json:"thumbnailUrl,omitempty"`
	PlaylistUrl     string    `json:"playlistUrl,omitempty"`
	ViewCount       int64     `json:"viewCount"`
	DurationSeconds int64     `json:"durationSeconds"`
	Languages       []string  `json:"languages"`
	CreatedAt       time.Time `json:"createdAt"`
}

// FeedItem is the card shown for a single video in a feed.
// Items are immutable once handed out by a data source.
type FeedItem struct {
	ID            string    `json:"id"`
	VideoID       int64     `json:"videoId"`
	Title         string    `json:"title"`
	AuthorDid     string    `json:"authorDid,omitempty"`
	AuthorName    string    `json:"authorName"`
	AuthorAvatar  string    `json:"authorAvatar"`
	ThumbnailUrl  string    `json:"thumbnailUrl,omitempty"`
	ViewCount     int64     `json:"viewCount"`
	CreatedAt     time.Time `json:"createdAt"`
	DurationLabel string    `json:"duration"`
}

// FeedItemFromVideo converts a catalogue row into a feed card
func FeedItemFromVideo(v Video) FeedItem {
	return FeedItem{
		ID:            v.Uri,
		VideoID:       v.Id,
		Title:         v.Title,
		AuthorDid:     v.AuthorDid,
		AuthorName:    v.AuthorName,
		AuthorAvatar:  v.AuthorAvatar,
		ThumbnailUrl:  v.ThumbnailUrl,
		ViewCount:     v.ViewCount,
		CreatedAt:     v.CreatedAt,
		DurationLabel: DurationLabel(v.DurationSeconds),
	}
}

// DurationLabel renders seconds as m:ss, or h:mm:ss for long videos
func DurationLabel(seconds int64) string {
	if seconds <= 0 {
		return "0:00"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FeedPage is one batch of items returned for an offset/limit request
type FeedPage struct {
	Items      []FeedItem `json:"items"`
	Offset     int        `json:"offset"`
	Limit      int        `json:"limit"`
	NextOffset *int       `json:"nextOffset"` // nil if there are no more results
}

// Omit all but the Uri field
type SkeletonItem struct {
	Uri string `json:"post"`
}

type SkeletonResponse struct {
	Feed   []SkeletonItem `json:"feed"`
	Cursor *string        `json:"cursor"`
}

type ProcessSeqEvent struct {
	Seq int64
}

// CreateVideoEvent fired when a new video is indexed
type CreateVideoEvent struct {
	Video Video
}

// DeleteVideoEvent fired when a video post is deleted upstream
type DeleteVideoEvent struct {
	Uri string
}

// ViewEvent fired when a viewer opens a video
type ViewEvent struct {
	VideoId int64
}

type VideosAggregatedByTime struct {
	Time  time.Time `json:"time"`
	Count int64     `json:"count"`
}

// StatisticsEvent carries the dashboard totals
type StatisticsEvent struct {
	Videos   int64 `json:"videos"`
	Views    int64 `json:"views"`
	Creators int64 `json:"creators"`
}
