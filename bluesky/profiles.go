package bluesky

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultAppViewHost = "https://public.api.bsky.app"
	DefaultCacheSize   = 10000
)

// Profile is the author information shown on video cards
type Profile struct {
	Did         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

// Name prefers the display name, then the handle, then the did
func (p Profile) Name() string {
	switch {
	case p.DisplayName != "":
		return p.DisplayName
	case p.Handle != "":
		return p.Handle
	default:
		return p.Did
	}
}

// Profiles resolves author profiles from the public AppView and keeps the
// most recently used ones in memory
type Profiles struct {
	xrpc  *xrpc.Client
	cache *lru.Cache[string, Profile]
}

func NewProfiles(host string, size int) (*Profiles, error) {
	if host == "" {
		host = DefaultAppViewHost
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, Profile](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile cache: %w", err)
	}
	return &Profiles{
		xrpc: &xrpc.Client{
			Host:   host,
			Client: &http.Client{Timeout: 10 * time.Second},
		},
		cache: cache,
	}, nil
}

func (p *Profiles) Profile(ctx context.Context, did string) (Profile, error) {
	if profile, ok := p.cache.Get(did); ok {
		return profile, nil
	}

	view, err := bsky.ActorGetProfile(ctx, p.xrpc, did)
	if err != nil {
		return Profile{Did: did}, fmt.Errorf("failed to get profile: %w", err)
	}

	profile := Profile{Did: view.Did, Handle: view.Handle}
	if view.DisplayName != nil {
		profile.DisplayName = *view.DisplayName
	}
	if view.Avatar != nil {
		profile.Avatar = *view.Avatar
	}

	p.cache.Add(did, profile)
	log.WithFields(log.Fields{
		"did":    did,
		"handle": profile.Handle,
	}).Debug("Resolved profile")
	return profile, nil
}

// Cached returns the number of profiles held in memory
func (p *Profiles) Cached() int {
	return p.cache.Len()
}
