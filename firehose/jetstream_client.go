package firehose

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	wsDials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelfeed_jetstream_dials_total",
		Help: "Jetstream dial attempts by host and result",
	}, []string{"host", "result"})

	wsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelfeed_jetstream_connected",
		Help: "1 while a Jetstream connection is open",
	})

	wsConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reelfeed_jetstream_connection_duration_seconds",
		Help:    "How long Jetstream connections stay open",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	wsPingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reelfeed_jetstream_ping_latency_seconds",
		Help:    "Websocket ping/pong round trip",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

const (
	wsReadBufferSize  = 1 << 20
	wsWriteBufferSize = 1 << 10
	wsDialTimeout     = 30 * time.Second
	wsReadTimeout     = 60 * time.Second
	wsWriteTimeout    = 10 * time.Second
	wsPingInterval    = 30 * time.Second
)

var errNoHosts = errors.New("no jetstream hosts configured")

// JetstreamConfig describes which Jetstream endpoints to read and what to ask for
type JetstreamConfig struct {
	// Tried in order, wrapping around, e.g. wss://jetstream1.us-east.bsky.network
	Hosts             []string
	WantedCollections []string
	Cursor            int64
	Compress          bool
	UserAgent         string
}

// RawMessage is a websocket frame as read, decoding happens in the workers
type RawMessage struct {
	MessageType int
	Data        []byte
}

// subscribeURL builds the /subscribe endpoint of host for the configured
// collections and cursor
func (c JetstreamConfig) subscribeURL(host string) (string, error) {
	u, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("invalid jetstream host %q: %w", host, err)
	}
	u.Path = "/subscribe"

	q := url.Values{}
	for _, collection := range c.WantedCollections {
		q.Add("wantedCollections", collection)
	}
	if c.Cursor > 0 {
		q.Set("cursor", strconv.FormatInt(c.Cursor, 10))
	}
	if c.Compress {
		q.Set("compress", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type jetstream struct {
	config  JetstreamConfig
	dialer  websocket.Dialer
	backoff *backoff.ExponentialBackOff
	host    int
}

func newJetstream(config JetstreamConfig) *jetstream {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	return &jetstream{
		config:  config,
		backoff: b,
		dialer: websocket.Dialer{
			ReadBufferSize:   wsReadBufferSize,
			WriteBufferSize:  wsWriteBufferSize,
			HandshakeTimeout: wsDialTimeout,
			NetDialContext:   (&net.Dialer{Timeout: wsDialTimeout, KeepAlive: wsDialTimeout}).DialContext,
		},
	}
}

// connect dials the hosts in turn until one answers. After a full round of
// failures it waits out the backoff before trying again.
func (j *jetstream) connect(ctx context.Context) (*websocket.Conn, error) {
	if len(j.config.Hosts) == 0 {
		return nil, errNoHosts
	}

	headers := http.Header{}
	if j.config.UserAgent != "" {
		headers.Set("User-Agent", j.config.UserAgent)
	}

	for failed := 0; ; {
		host := j.config.Hosts[j.host]
		endpoint, err := j.config.subscribeURL(host)
		if err != nil {
			return nil, err
		}

		conn, _, err := j.dialer.DialContext(ctx, endpoint, headers)
		if err == nil {
			wsDials.WithLabelValues(host, "ok").Inc()
			j.backoff.Reset()
			log.WithFields(log.Fields{
				"host":   host,
				"cursor": j.config.Cursor,
			}).Info("Connected to Jetstream")
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		wsDials.WithLabelValues(host, "error").Inc()
		log.WithFields(log.Fields{
			"host":  host,
			"error": err,
		}).Error("Could not connect to Jetstream")

		j.host = (j.host + 1) % len(j.config.Hosts)
		if failed++; failed%len(j.config.Hosts) != 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(j.backoff.NextBackOff()):
		}
	}
}

// setHandlers must run before the first read, handlers are called from the
// reading goroutine
func setHandlers(conn *websocket.Conn, sentAt *atomic.Int64) {
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		if start := sentAt.Load(); start > 0 {
			wsPingLatency.Observe(time.Since(time.Unix(0, start)).Seconds())
		}
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(wsWriteTimeout))
	})
}

// keepAlive pings the server and closes the connection when a ping cannot be
// written, which makes the reader fail and reconnect
func keepAlive(ctx context.Context, conn *websocket.Conn, sentAt *atomic.Int64) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sentAt.Store(time.Now().UnixNano())
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				log.Warn("Jetstream ping failed, closing connection: ", err)
				conn.Close()
				return
			}
		}
	}
}

// SubscribeJetstreamWithMessages reads raw messages into the worker queue
// until ctx is done. Dropped connections are re-established from the latest
// processed cursor.
func SubscribeJetstreamWithMessages(ctx context.Context, config JetstreamConfig, seq *atomic.Int64, workerQueue chan<- *RawMessage) error {
	js := newJetstream(config)

	for {
		if cursor := seq.Load(); cursor > 0 {
			js.config.Cursor = cursor
		}

		conn, err := js.connect(ctx)
		if err != nil {
			return err
		}

		err = readMessages(ctx, conn, workerQueue)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithFields(log.Fields{
			"cursor": seq.Load(),
			"error":  err,
		}).Warn("Jetstream connection lost, reconnecting")
	}
}

// readMessages pumps one connection until it fails or ctx is done
func readMessages(ctx context.Context, conn *websocket.Conn, workerQueue chan<- *RawMessage) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wsConnected.Set(1)
	opened := time.Now()
	defer func() {
		wsConnectionDuration.Observe(time.Since(opened).Seconds())
		wsConnected.Set(0)
	}()

	var sentAt atomic.Int64
	setHandlers(conn, &sentAt)
	go keepAlive(connCtx, conn, &sentAt)

	// Unblocks ReadMessage on shutdown
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Errorf("Unexpected websocket close: %v", err)
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		select {
		case workerQueue <- &RawMessage{MessageType: messageType, Data: message}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
