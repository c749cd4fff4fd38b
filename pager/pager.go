// Package pager progressively reveals a feed as the viewer scrolls.
//
// A Pager owns the loaded items and two flags (fetching, exhausted). A single
// visibility watcher is attached to the last rendered item, the sentinel.
// When the sentinel becomes visible the next page is requested and appended.
package pager

import (
	"context"
	"errors"
	"sync"

	"reelfeed/models"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPageSize = 12
	// MaxPageSize is the largest limit a reelfeed server honours
	MaxPageSize = 100
)

// ErrEndOfFeed is returned by a Source, possibly along with the final items,
// when nothing follows the returned page
var ErrEndOfFeed = errors.New("end of feed")

// Source returns up to limit items starting at offset. Offsets count items
// as the source served them, duplicates included.
type Source interface {
	FetchPage(ctx context.Context, offset, limit int) ([]models.FeedItem, error)
}

// SourceFunc adapts a plain function to Source
type SourceFunc func(ctx context.Context, offset, limit int) ([]models.FeedItem, error)

func (f SourceFunc) FetchPage(ctx context.Context, offset, limit int) ([]models.FeedItem, error) {
	return f(ctx, offset, limit)
}

type Status int

const (
	Idle Status = iota
	Fetching
	Exhausted
)

func (s Status) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Exhausted:
		return "exhausted"
	default:
		return "idle"
	}
}

// State is a snapshot of the feed
type State struct {
	Items    []models.FeedItem
	Fetching bool
	HasMore  bool
}

type Config struct {
	// PageSize is the limit passed to the source. Defaults to DefaultPageSize
	// and is capped at MaxPageSize.
	PageSize int

	// Ceiling stops paging once this many items are loaded. 0 disables it.
	Ceiling int

	// ExhaustOnShortPage stops paging when the source returns fewer items
	// than PageSize.
	ExhaustOnShortPage bool

	// OnChange is called after every settled fetch, outside the lock
	OnChange func(State)
}

type Pager struct {
	source   Source
	config   Config
	newWatch func() Watcher
	ctx      context.Context

	mu        sync.Mutex
	items     []models.FeedItem
	seen      map[string]struct{}
	read      int
	fetching  bool
	exhausted bool
	closed    bool
	watcher   Watcher
}

// New creates an empty pager. newWatcher is called each time a sentinel is
// attached; every call must return a fresh watcher.
func New(ctx context.Context, source Source, newWatcher func() Watcher, config Config) *Pager {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	config.PageSize = min(config.PageSize, MaxPageSize)
	return &Pager{
		source:   source,
		config:   config,
		newWatch: newWatcher,
		ctx:      ctx,
		seen:     make(map[string]struct{}),
	}
}

// RequestNextPage fetches and appends the next page. It is a no-op while a
// fetch is outstanding, once the feed is exhausted and after Close. It
// reports whether a fetch was issued.
func (p *Pager) RequestNextPage(ctx context.Context) bool {
	p.mu.Lock()
	if p.fetching || p.exhausted || p.closed {
		p.mu.Unlock()
		return false
	}
	p.fetching = true
	offset := p.read
	p.mu.Unlock()

	page, err := p.source.FetchPage(ctx, offset, p.config.PageSize)
	end := errors.Is(err, ErrEndOfFeed)

	p.mu.Lock()
	p.fetching = false
	if p.closed {
		p.mu.Unlock()
		return true
	}

	if err != nil && !end {
		p.mu.Unlock()
		log.WithFields(log.Fields{
			"offset": offset,
			"limit":  p.config.PageSize,
			"error":  err,
		}).Error("Error loading feed page")
		p.notify()
		return true
	}

	fresh := lo.Filter(page, func(item models.FeedItem, _ int) bool {
		if _, dup := p.seen[item.ID]; dup {
			return false
		}
		p.seen[item.ID] = struct{}{}
		return true
	})
	p.items = append(p.items, fresh...)
	// Served items, duplicates included
	p.read += len(page)

	if end {
		p.exhausted = true
	}
	if p.config.Ceiling > 0 && len(p.items) >= p.config.Ceiling {
		p.exhausted = true
	}
	if p.config.ExhaustOnShortPage && len(page) < p.config.PageSize {
		p.exhausted = true
	}

	log.WithFields(log.Fields{
		"offset":    offset,
		"received":  len(page),
		"appended":  len(fresh),
		"total":     len(p.items),
		"exhausted": p.exhausted,
	}).Debug("Loaded feed page")
	p.mu.Unlock()

	p.notify()
	return true
}

// AttachSentinel replaces the active watcher with one observing node.
// Visibility of node requests the next page unless the feed is exhausted.
func (p *Pager) AttachSentinel(node string) {
	p.mu.Lock()
	if p.watcher != nil {
		p.watcher.Disconnect()
		p.watcher = nil
	}
	if p.closed {
		p.mu.Unlock()
		return
	}
	w := p.newWatch()
	p.watcher = w
	p.mu.Unlock()

	w.Observe(node, func() {
		p.mu.Lock()
		exhausted := p.exhausted
		p.mu.Unlock()
		if exhausted {
			return
		}
		p.RequestNextPage(p.ctx)
	})
}

// Close disposes of the watcher. An in-flight fetch is not cancelled, but
// its result is dropped.
func (p *Pager) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.watcher != nil {
		p.watcher.Disconnect()
		p.watcher = nil
	}
}

func (p *Pager) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *Pager) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.exhausted:
		return Exhausted
	case p.fetching:
		return Fetching
	default:
		return Idle
	}
}

// Sentinel returns the id of the last loaded item, or "" for an empty feed
func (p *Pager) Sentinel() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) == 0 {
		return ""
	}
	return p.items[len(p.items)-1].ID
}

func (p *Pager) snapshot() State {
	items := make([]models.FeedItem, len(p.items))
	copy(items, p.items)
	return State{
		Items:    items,
		Fetching: p.fetching,
		HasMore:  !p.exhausted,
	}
}

func (p *Pager) notify() {
	if p.config.OnChange == nil {
		return
	}
	p.config.OnChange(p.State())
}
