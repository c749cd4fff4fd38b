package firehose

import (
	"context"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

type ParallelProcessor struct {
	maxWorkers  int
	workerQueue chan *RawMessage
	processors  []*VideoProcessor
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewParallelProcessor(ctx context.Context, maxWorkers int, maxQueueSize int, config FirehoseConfig, events chan<- interface{}, profiles ProfileResolver, seq *atomic.Int64) *ParallelProcessor {
	ctx, cancel := context.WithCancel(ctx)

	pp := &ParallelProcessor{
		maxWorkers:  maxWorkers,
		workerQueue: make(chan *RawMessage, maxQueueSize),
		processors:  make([]*VideoProcessor, maxWorkers),
		ctx:         ctx,
		cancel:      cancel,
	}

	for i := 0; i < maxWorkers; i++ {
		pp.processors[i] = NewVideoProcessor(ctx, config, events, profiles)
		pp.processors[i].seq = seq
	}

	return pp
}

func (pp *ParallelProcessor) start() {
	for i, processor := range pp.processors {
		pp.wg.Add(1)
		go pp.startWorker(i, processor)
	}
}

// wait cancels the workers and blocks until they have returned
func (pp *ParallelProcessor) wait() {
	pp.cancel()
	pp.wg.Wait()
}

func (pp *ParallelProcessor) startWorker(id int, processor *VideoProcessor) {
	defer pp.wg.Done()

	for {
		select {
		case <-pp.ctx.Done():
			log.Infof("Worker %d: Shutting down", id)
			return
		case msg := <-pp.workerQueue:
			if err := processor.processMessage(msg); err != nil {
				messagesProcessed.WithLabelValues("error").Inc()
				log.Errorf("Worker %d: Error processing message: %v", id, err)
			}
		}
	}
}
