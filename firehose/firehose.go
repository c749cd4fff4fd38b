package firehose

import (
	"context"
	"sync/atomic"
	"time"

	"reelfeed/models"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultWorkers   = 10
	DefaultQueueSize = 1000

	// Resume slightly before the stored cursor so nothing is missed between
	// the last persisted sequence and shutdown
	resumeOverlap = 10 * time.Second
)

// FirehoseConfig holds configuration for the firehose processing
type FirehoseConfig struct {
	RunLanguageDetection bool
	ConfidenceThreshold  float64
	// Languages limits indexing to videos in these ISO 639-1 codes. Empty
	// means every language is accepted.
	Languages         []string
	JetstreamHosts    []string
	JetstreamCompress bool
	UserAgent         string
	Workers           int
	QueueSize         int
	// How often the processed cursor is handed to the writer
	SequenceInterval time.Duration
}

// ResumeCursor turns a stored sequence into the Jetstream cursor to start from
func ResumeCursor(seq int64) int64 {
	if seq <= 0 {
		return 0
	}
	return seq - resumeOverlap.Microseconds()
}

// Subscribe reads video posts from Jetstream and sends create, delete and
// sequence events to the writer until ctx is done
func Subscribe(ctx context.Context, events chan<- interface{}, cursor int64, profiles ProfileResolver, config FirehoseConfig) {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.SequenceInterval <= 0 {
		config.SequenceInterval = 5 * time.Second
	}

	var seq atomic.Int64
	seq.Store(cursor)

	pp := NewParallelProcessor(ctx, config.Workers, config.QueueSize, config, events, profiles, &seq)
	pp.start()
	defer pp.wait()

	go persistSequence(ctx, events, &seq, config.SequenceInterval)

	SubscribeJetstreamWithMessages(ctx, JetstreamConfig{
		Hosts:             config.JetstreamHosts,
		Compress:          config.JetstreamCompress,
		UserAgent:         config.UserAgent,
		WantedCollections: []string{postCollection},
		Cursor:            cursor,
	}, &seq, pp.workerQueue)
}

// persistSequence periodically forwards the latest processed cursor
func persistSequence(ctx context.Context, events chan<- interface{}, seq *atomic.Int64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := seq.Load()
			if current == last {
				continue
			}
			select {
			case events <- models.ProcessSeqEvent{Seq: current}:
				last = current
			case <-ctx.Done():
				return
			}
			log.WithField("seq", current).Debug("Persisted firehose cursor")
		}
	}
}
