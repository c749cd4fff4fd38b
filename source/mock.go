package source

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"reelfeed/models"
	"reelfeed/pager"

	"github.com/google/uuid"
)

// Mock generates random videos on demand, like the demo grid did.
// Ids are derived from the offset, so a repeated page keeps its ids.
type Mock struct {
	mu    sync.Mutex
	rng   *rand.Rand
	delay time.Duration
	now   func() time.Time
}

func NewMock(seed int64, delay time.Duration) *Mock {
	return &Mock{
		rng:   rand.New(rand.NewSource(seed)),
		delay: delay,
		now:   time.Now,
	}
}

func (m *Mock) FetchPage(ctx context.Context, offset, limit int) ([]models.FeedItem, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}

	videos := m.Videos(offset, limit)
	items := make([]models.FeedItem, len(videos))
	for i, v := range videos {
		items[i] = models.FeedItemFromVideo(v)
	}
	return items, nil
}

// Videos returns limit random catalogue rows numbered from offset
func (m *Mock) Videos(offset, limit int) []models.Video {
	m.mu.Lock()
	defer m.mu.Unlock()

	videos := make([]models.Video, 0, limit)
	for n := offset; n < offset+limit; n++ {
		channel := m.rng.Intn(100)
		videos = append(videos, models.Video{
			Uri:             fmt.Sprintf("video-%d", n),
			Title:           fmt.Sprintf("Sample Video %d - Amazing Royalty Free Content", n),
			AuthorDid:       fmt.Sprintf("did:web:channel%d.reelfeed.local", channel),
			AuthorName:      fmt.Sprintf("Channel %d", channel),
			AuthorAvatar:    fmt.Sprintf("https://picsum.photos/seed/channel%d/100/100", channel),
			ThumbnailUrl:    fmt.Sprintf("https://picsum.photos/seed/%d/640/360", n),
			PlaylistUrl:     fmt.Sprintf("https://media.reelfeed.local/%s/playlist.m3u8", uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("video-%d", n)))),
			ViewCount:       m.rng.Int63n(1000000),
			DurationSeconds: int64(m.rng.Intn(10)*60 + m.rng.Intn(60)),
			Languages:       []string{"en"},
			CreatedAt:       m.now().Add(-time.Duration(m.rng.Int63n(int64(10000000 * time.Second)))).UTC().Truncate(time.Second),
		})
	}
	return videos
}

var _ pager.Source = (*Mock)(nil)
