package server

import (
	"sync"

	"reelfeed/models"

	log "github.com/sirupsen/logrus"
)

// Broadcaster fans indexed videos and statistics out to SSE clients
type Broadcaster struct {
	sync.RWMutex
	createVideoClients map[string]chan models.CreateVideoEvent
	statisticsClients  map[string]chan models.StatisticsEvent
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		createVideoClients: make(map[string]chan models.CreateVideoEvent),
		statisticsClients:  make(map[string]chan models.StatisticsEvent),
	}
}

func (b *Broadcaster) BroadcastCreateVideo(video models.CreateVideoEvent) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.createVideoClients {
		select {
		case client <- video: // Non-blocking send
		default:
			log.Warnf("Client channel full, skipping video for client: %v", id)
		}
	}
}

func (b *Broadcaster) BroadcastStatistics(stats models.StatisticsEvent) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.statisticsClients {
		select {
		case client <- stats:
		default:
			log.Warnf("Client channel full, skipping stats for client: %v", id)
		}
	}
}

func (b *Broadcaster) AddClient(key string, createVideoClient chan models.CreateVideoEvent, statisticsClient chan models.StatisticsEvent) {
	b.Lock()
	defer b.Unlock()
	b.createVideoClients[key] = createVideoClient
	b.statisticsClients[key] = statisticsClient
	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.createVideoClients),
	}).Info("Adding client to broadcaster")
}

// RemoveClient closes the client's channels. Unknown keys are ignored, so
// the stream cleanup and an explicit DELETE can both call it.
func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	if client, ok := b.createVideoClients[key]; ok {
		close(client)
		delete(b.createVideoClients, key)
	}
	if client, ok := b.statisticsClients[key]; ok {
		close(client)
		delete(b.statisticsClients, key)
	}

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.createVideoClients),
	}).Info("Removed client from broadcaster")
}

// Clients returns the number of connected SSE clients
func (b *Broadcaster) Clients() int {
	b.RLock()
	defer b.RUnlock()
	return len(b.createVideoClients)
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, client := range b.createVideoClients {
		close(client)
		delete(b.createVideoClients, key)
	}
	for key, client := range b.statisticsClients {
		close(client)
		delete(b.statisticsClients, key)
	}
}
