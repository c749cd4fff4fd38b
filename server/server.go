package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"reelfeed/db"
	"reelfeed/feeds"
	"reelfeed/models"
	"reelfeed/pager"

	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cache"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = pager.MaxPageSize

	skeletonPageSize = 20
)

var (
	feedPagesServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelfeed_feed_pages_served_total",
		Help: "The total number of feed pages served",
	}, []string{"feed", "api"})

	viewsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelfeed_views_recorded_total",
		Help: "The total number of video views accepted",
	})
)

type ServerConfig struct {

	// The hostname to use for the server
	Hostname string

	// The reader to use for reading videos
	Reader *db.Reader

	// Writer events, used to record views
	Events chan<- interface{}

	// Broadcast channels to pass videos to SSE clients
	Broadcaster *Broadcaster

	Feeds feeds.FeedMap

	// Allowed CORS origins, comma separated
	AllowOrigins string
}

// parseLimit falls back to def for a missing or malformed limit and clamps
// everything else to 1..MaxPageSize
func parseLimit(raw string, def int) int {
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return lo.Clamp(limit, 1, MaxPageSize)
}

// parseOffset accepts an empty value as the first page
func parseOffset(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid offset %q", raw)
	}
	return offset, nil
}

func feedUri(hostname string, feedId string) string {
	return "at://did:web:" + hostname + "/app.bsky.feed.generator/" + feedId
}

// Returns a fiber.App instance to be used as an HTTP server for the video feeds
func Server(config *ServerConfig) *fiber.App {

	bc := config.Broadcaster

	app := fiber.New()

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New(compress.Config{
		// Compression buffers the body, which breaks event streams
		Next: func(c *fiber.Ctx) bool {
			return strings.HasSuffix(c.Path(), "/sse")
		},
	}))

	allowOrigins := config.AllowOrigins
	if allowOrigins == "" {
		allowOrigins = "http://localhost:3001"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowHeaders:     "Cache-Control",
		AllowCredentials: true,
	}))

	// Cache dashboard aggregates, they are expensive and change slowly
	app.Use(cache.New(cache.Config{
		Next: func(c *fiber.Ctx) bool {
			if c.Method() != fiber.MethodGet {
				return true
			}
			if strings.HasSuffix(c.Path(), "/sse") {
				return true
			}
			return !strings.HasPrefix(c.Path(), "/dashboard")
		},
		Expiration: 30 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			// Include the query parameters in the cache key
			return c.Request().URI().String()
		},
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/api/feeds", func(c *fiber.Ctx) error {
		return c.JSON(config.Feeds.Sorted())
	})

	app.Get("/api/feeds/:feed", func(c *fiber.Ctx) error {
		feedId := c.Params("feed")
		feed, ok := config.Feeds[feedId]
		if !ok {
			return c.Status(fiber.StatusNotFound).SendString("Invalid feed")
		}

		offset, err := parseOffset(c.Query("offset"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString(err.Error())
		}
		limit := parseLimit(c.Query("limit"), DefaultPageSize)

		page, err := feed.Page(c.UserContext(), config.Reader, offset, limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error getting feed")
		}

		feedPagesServed.WithLabelValues(feedId, "api").Inc()
		return c.JSON(page)
	})

	app.Get("/api/videos/:id", func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid video id")
		}

		video, err := config.Reader.GetVideo(c.UserContext(), id)
		if errors.Is(err, db.ErrVideoNotFound) {
			return c.Status(fiber.StatusNotFound).SendString("Video not found")
		}
		if err != nil {
			log.WithFields(log.Fields{
				"id":    id,
				"error": err,
			}).Error("Error getting video")
			return c.Status(fiber.StatusInternalServerError).SendString("Error getting video")
		}
		return c.JSON(video)
	})

	app.Post("/api/videos/:id/view", func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid video id")
		}

		if _, err := config.Reader.GetVideo(c.UserContext(), id); err != nil {
			if errors.Is(err, db.ErrVideoNotFound) {
				return c.Status(fiber.StatusNotFound).SendString("Video not found")
			}
			return c.Status(fiber.StatusInternalServerError).SendString("Error getting video")
		}

		// The writer owns the database, so views are queued for it
		select {
		case config.Events <- models.ViewEvent{VideoId: id}:
			viewsRecorded.Inc()
			return c.SendStatus(fiber.StatusAccepted)
		case <-time.After(5 * time.Second):
			log.WithField("id", id).Warn("Timed out queueing view")
			return c.Status(fiber.StatusServiceUnavailable).SendString("Writer busy")
		}
	})

	// Well known
	app.Get("/.well-known/did.json", func(c *fiber.Ctx) error {
		return c.JSON(map[string]interface{}{
			"@context": []string{"https://www.w3.org/ns/did/v1"},
			"id":       "did:web:" + config.Hostname,
			"service": []map[string]interface{}{
				{
					"id":              "#bsky_fg",
					"type":            "BskyFeedGenerator",
					"serviceEndpoint": "https://" + config.Hostname,
				},
			},
		})
	})

	app.Get("/xrpc/app.bsky.feed.describeFeedGenerator", func(c *fiber.Ctx) error {
		generatorFeeds := lo.Map(config.Feeds.Sorted(), func(feed *feeds.Feed, _ int) *bsky.FeedDescribeFeedGenerator_Feed {
			return &bsky.FeedDescribeFeedGenerator_Feed{Uri: feedUri(config.Hostname, feed.ID)}
		})

		return c.JSON(bsky.FeedDescribeFeedGenerator_Output{
			Did:   "did:web:" + config.Hostname,
			Feeds: generatorFeeds,
		})
	})

	app.Get("/xrpc/app.bsky.feed.getFeedSkeleton", func(c *fiber.Ctx) error {
		feedParam := c.Query("feed")
		if feedParam == "" {
			return c.Status(fiber.StatusBadRequest).SendString("Missing feed")
		}

		uri, err := syntax.ParseATURI(feedParam)
		if err != nil {
			log.WithFields(log.Fields{
				"feed":  feedParam,
				"error": err,
			}).Warn("Error parsing feed URI")
			return c.Status(fiber.StatusBadRequest).SendString("Invalid feed URI")
		}

		// The cursor is the offset of the next page
		offset, err := parseOffset(c.Query("cursor"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid cursor")
		}
		limit := parseLimit(c.Query("limit"), skeletonPageSize)

		feedName := uri.RecordKey().String()
		feed, ok := config.Feeds[feedName]
		if !ok {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid feed")
		}

		log.WithFields(log.Fields{
			"feed":   feedName,
			"offset": offset,
			"limit":  limit,
		}).Info("Generate feed skeleton with parameters")

		page, err := feed.Page(c.UserContext(), config.Reader, offset, limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error getting feed")
		}

		skeleton := models.SkeletonResponse{
			Feed: lo.Map(page.Items, func(item models.FeedItem, _ int) models.SkeletonItem {
				return models.SkeletonItem{Uri: item.ID}
			}),
		}
		if page.NextOffset != nil {
			cursor := strconv.Itoa(*page.NextOffset)
			skeleton.Cursor = &cursor
		}

		feedPagesServed.WithLabelValues(feedName, "skeleton").Inc()
		return c.JSON(skeleton)
	})

	app.Get("/dashboard/stats", func(c *fiber.Ctx) error {
		stats, err := config.Reader.GetStatistics(c.UserContext())
		if err != nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Error("Error getting statistics")
			return c.Status(fiber.StatusInternalServerError).SendString("Error getting statistics")
		}
		return c.JSON(stats)
	})

	app.Get("/dashboard/videos-per-time", func(c *fiber.Ctx) error {
		lang := c.Query("lang", "")
		timeAgg := c.Query("time", "hour")

		if timeAgg != "hour" && timeAgg != "day" && timeAgg != "week" {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid time")
		}

		videosPerTime, err := config.Reader.GetVideoCountPerTime(c.UserContext(), lang, timeAgg)
		if err != nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Error("Error getting videos per time")
			return c.Status(fiber.StatusInternalServerError).SendString("Error getting videos per time")
		}

		log.WithFields(log.Fields{
			"lang":  lang,
			"count": len(videosPerTime),
		}).Info("Get videos per time")

		return c.JSON(videosPerTime)
	})

	app.Delete("/dashboard/feed/sse", func(c *fiber.Ctx) error {
		key := c.Query("key", "")
		if key == "" {
			return c.Status(fiber.StatusBadRequest).SendString("Missing key")
		}
		bc.RemoveClient(key)
		return c.SendString("OK")
	})

	app.Get("/dashboard/feed/sse", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		key := uuid.New().String()
		createVideoChannel := make(chan models.CreateVideoEvent, 10)
		statisticsChannel := make(chan models.StatisticsEvent, 10)

		bc.AddClient(key, createVideoChannel, statisticsChannel)

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			aliveChan := time.NewTicker(5 * time.Second)
			defer aliveChan.Stop()
			defer func() {
				log.Infof("Cleaning up SSE stream for client: %s", key)
				bc.RemoveClient(key)
			}()

			// Send initial event with client key
			if err := writeEvent(w, "init", []byte(key)); err != nil {
				log.Errorf("Failed to send init event: %v", err)
				return
			}

			for {
				select {
				case <-aliveChan.C:
					if err := writeEvent(w, "ping", nil); err != nil {
						log.Warnf("Failed to send ping to client %s: %v", key, err)
						return
					}

				case event, ok := <-createVideoChannel:
					if !ok {
						return
					}
					data, err := json.Marshal(models.FeedItemFromVideo(event.Video))
					if err != nil {
						log.Errorf("Error marshalling video for client %s: %v", key, err)
						continue
					}
					if err := writeEvent(w, "create-video", data); err != nil {
						log.Warnf("Failed to send create-video event to client %s: %v", key, err)
						return
					}

				case stats, ok := <-statisticsChannel:
					if !ok {
						return
					}
					data, err := json.Marshal(stats)
					if err != nil {
						log.Errorf("Error marshalling stats for client %s: %v", key, err)
						continue
					}
					if err := writeEvent(w, "statistics", data); err != nil {
						log.Warnf("Failed to send statistics event to client %s: %v", key, err)
						return
					}
				}
			}
		}))

		return nil
	})

	return app
}

func writeEvent(w *bufio.Writer, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}
