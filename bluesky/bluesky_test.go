package bluesky_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"reelfeed/bluesky"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileName(t *testing.T) {
	tests := []struct {
		name     string
		profile  bluesky.Profile
		expected string
	}{
		{"display name", bluesky.Profile{Did: "did:plc:a", Handle: "a.bsky.social", DisplayName: "Alice"}, "Alice"},
		{"handle", bluesky.Profile{Did: "did:plc:a", Handle: "a.bsky.social"}, "a.bsky.social"},
		{"did", bluesky.Profile{Did: "did:plc:a"}, "did:plc:a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.profile.Name())
		})
	}
}

func TestProfilesAreCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/xrpc/app.bsky.actor.getProfile" {
			http.NotFound(w, r)
			return
		}
		actor := r.URL.Query().Get("actor")
		if actor == "did:plc:missing" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"InvalidRequest","message":"Profile not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"did":         actor,
			"handle":      "maker.bsky.social",
			"displayName": "Video Maker",
			"avatar":      "https://cdn.example.com/avatar.jpg",
		})
	}))
	defer srv.Close()

	profiles, err := bluesky.NewProfiles(srv.URL, 10)
	require.NoError(t, err)
	ctx := context.Background()

	profile, err := profiles.Profile(ctx, "did:plc:maker")
	require.NoError(t, err)
	assert.Equal(t, "Video Maker", profile.Name())
	assert.Equal(t, "https://cdn.example.com/avatar.jpg", profile.Avatar)

	_, err = profiles.Profile(ctx, "did:plc:maker")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, profiles.Cached())

	profile, err = profiles.Profile(ctx, "did:plc:missing")
	assert.Error(t, err)
	assert.Equal(t, "did:plc:missing", profile.Name())
	assert.Equal(t, 1, profiles.Cached())
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2024, 11, 3, 9, 5, 7, 123456789, time.FixedZone("CET", 3600))
	assert.Equal(t, "2024-11-03T08:05:07.123Z", bluesky.FormatTime(ts))
}

// fakePDS answers the xrpc calls used to publish and remove feed generators
func fakePDS(t *testing.T, puts *[]map[string]interface{}, deletes *[]string) *httptest.Server {
	t.Helper()
	reply := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/xrpc/com.atproto.server.createSession" {
			assert.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))
		}

		switch r.URL.Path {
		case "/xrpc/com.atproto.server.createSession":
			reply(w, map[string]interface{}{
				"accessJwt":  "access-token",
				"refreshJwt": "refresh-token",
				"handle":     "videos.bsky.social",
				"did":        "did:plc:publisher",
			})
		case "/xrpc/app.bsky.feed.getActorFeeds":
			assert.Equal(t, "did:plc:publisher", r.URL.Query().Get("actor"))
			reply(w, map[string]interface{}{
				"feeds": []map[string]interface{}{
					{"uri": "at://did:plc:publisher/app.bsky.feed.generator/latest", "cid": "cid-latest"},
					{"uri": "at://did:plc:publisher/app.bsky.feed.generator/trending", "cid": "cid-trending"},
				},
			})
		case "/xrpc/com.atproto.repo.putRecord":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			*puts = append(*puts, body)
			reply(w, map[string]interface{}{"uri": "at://did:plc:publisher/app.bsky.feed.generator/latest", "cid": "new-cid"})
		case "/xrpc/com.atproto.repo.deleteRecord":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "app.bsky.feed.generator", body["collection"])
			*deletes = append(*deletes, body["rkey"].(string))
			reply(w, map[string]interface{}{})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestPublishAndDeleteFeeds(t *testing.T) {
	var puts []map[string]interface{}
	var deletes []string
	srv := fakePDS(t, &puts, &deletes)
	defer srv.Close()

	ctx := context.Background()
	client, err := bluesky.ClientFromCredentials(ctx, srv.URL, &bluesky.Credentials{
		Identifier: "videos.bsky.social",
		Password:   "app-password",
	})
	require.NoError(t, err)

	err = client.PublishFeeds(ctx, "did:web:feeds.example.com", []bluesky.FeedRecord{
		{Rkey: "latest", DisplayName: "Latest videos", Description: "Newest first"},
		{Rkey: "funny", DisplayName: "Funny videos"},
	})
	require.NoError(t, err)
	require.Len(t, puts, 2)

	for _, put := range puts {
		assert.Equal(t, "did:plc:publisher", put["repo"])
		assert.Equal(t, "app.bsky.feed.generator", put["collection"])
		record := put["record"].(map[string]interface{})
		assert.Equal(t, "did:web:feeds.example.com", record["did"])
	}

	// The existing record is swapped, the new one created
	assert.Equal(t, "latest", puts[0]["rkey"])
	assert.Equal(t, "cid-latest", puts[0]["swapRecord"])
	assert.Equal(t, "Newest first", puts[0]["record"].(map[string]interface{})["description"])
	assert.Equal(t, "funny", puts[1]["rkey"])
	assert.NotContains(t, puts[1], "swapRecord")
	assert.NotContains(t, puts[1]["record"], "description")

	require.NoError(t, client.DeleteAllFeeds(ctx))
	assert.Equal(t, []string{"latest", "trending"}, deletes)
}
