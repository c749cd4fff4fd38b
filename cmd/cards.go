package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"reelfeed/models"
	"reelfeed/pager"

	"github.com/dustin/go-humanize"
)

const (
	noMoreVideos   = "No more videos to load"
	loadingVideos  = "Loading more videos..."
	loadFailed     = "Could not load more videos, try again"
	cardTitleWidth = 60
)

// formatViews abbreviates large counts the way video sites do
func formatViews(views int64) string {
	switch {
	case views >= 1_000_000:
		return fmt.Sprintf("%.1fM views", float64(views)/1_000_000)
	case views >= 1_000:
		return fmt.Sprintf("%.1fK views", float64(views)/1_000)
	default:
		return fmt.Sprintf("%d views", views)
	}
}

func formatCard(n int, item models.FeedItem, now time.Time) string {
	title := item.Title
	if title == "" {
		title = "Untitled video"
	}
	if runes := []rune(title); len(runes) > cardTitleWidth {
		title = string(runes[:cardTitleWidth-1]) + "…"
	}

	return fmt.Sprintf("%3d. %s [%s]\n     %s • %s • %s\n",
		n,
		title,
		item.DurationLabel,
		item.AuthorName,
		formatViews(item.ViewCount),
		humanize.RelTime(item.CreatedAt, now, "ago", "from now"),
	)
}

// cardRenderer prints the cards a pager has not shown yet
type cardRenderer struct {
	out      io.Writer
	rendered int
	now      func() time.Time
}

func (r *cardRenderer) render(state pager.State) {
	for i := r.rendered; i < len(state.Items); i++ {
		fmt.Fprint(r.out, formatCard(i+1, state.Items[i], r.now()))
	}
	r.rendered = len(state.Items)
}

// footer is shown below the cards: a loading line while fetching and the end
// of feed notice once exhausted
func footer(state pager.State) string {
	switch {
	case state.Fetching:
		return loadingVideos
	case !state.HasMore:
		return noMoreVideos
	default:
		return strings.Repeat("─", 20)
	}
}
