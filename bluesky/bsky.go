package bluesky

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPDSHost = "https://bsky.social"

	feedGeneratorCollection = "app.bsky.feed.generator"
	maxActorFeeds           = 100
)

type Credentials struct {
	Identifier string
	Password   string
}

// FeedRecord is a video feed as announced on Bluesky. Rkey is the feed id
// the server answers getFeedSkeleton for.
type FeedRecord struct {
	Rkey        string
	DisplayName string
	Description string
	AvatarPath  string
}

// Client is an authenticated session on the account that owns the feeds
type Client struct {
	xrpc *xrpc.Client
}

func ClientFromCredentials(ctx context.Context, host string, creds *Credentials) (*Client, error) {
	session, err := atproto.ServerCreateSession(ctx, &xrpc.Client{Host: host}, &atproto.ServerCreateSession_Input{
		Identifier: creds.Identifier,
		Password:   creds.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Client{xrpc: &xrpc.Client{
		Client: http.DefaultClient,
		Host:   host,
		Auth: &xrpc.AuthInfo{
			AccessJwt:  session.AccessJwt,
			RefreshJwt: session.RefreshJwt,
			Handle:     session.Handle,
			Did:        session.Did,
		},
	}}, nil
}

// PublishFeeds announces every feed as a generator served by serviceDid.
// Records that already exist are swapped in place.
func (c *Client) PublishFeeds(ctx context.Context, serviceDid string, feeds []FeedRecord) error {
	published, err := c.publishedFeeds(ctx)
	if err != nil {
		return err
	}

	for _, feed := range feeds {
		record := &bsky.FeedGenerator{
			Did:         serviceDid,
			DisplayName: feed.DisplayName,
			Description: lo.EmptyableToPtr(feed.Description),
			CreatedAt:   FormatTime(time.Now()),
		}
		if feed.AvatarPath != "" {
			if record.Avatar, err = c.uploadAvatar(ctx, feed.AvatarPath); err != nil {
				return fmt.Errorf("feed %s: %w", feed.Rkey, err)
			}
		}

		var swap *string
		if cid, ok := published[feed.Rkey]; ok {
			swap = &cid
		}
		if err := c.PutFeedGenerator(ctx, feed.Rkey, record, swap); err != nil {
			return fmt.Errorf("feed %s: %w", feed.Rkey, err)
		}
		log.WithFields(log.Fields{
			"rkey":    feed.Rkey,
			"updated": swap != nil,
		}).Info("Published feed generator")
	}
	return nil
}

// PutFeedGenerator writes the generator record under rkey. A non-nil swap
// cid makes the write fail if the record changed since it was read.
func (c *Client) PutFeedGenerator(ctx context.Context, rkey string, record *bsky.FeedGenerator, swap *string) error {
	_, err := atproto.RepoPutRecord(ctx, c.xrpc, &atproto.RepoPutRecord_Input{
		Repo:       c.xrpc.Auth.Did,
		Collection: feedGeneratorCollection,
		Rkey:       rkey,
		SwapRecord: swap,
		Record:     &lexutil.LexiconTypeDecoder{Val: record},
	})
	if err != nil {
		return fmt.Errorf("failed to put generator record: %w", err)
	}
	return nil
}

// DeleteAllFeeds removes every generator record the account has published
func (c *Client) DeleteAllFeeds(ctx context.Context) error {
	feeds, err := c.actorFeeds(ctx)
	if err != nil {
		return err
	}

	for _, feed := range feeds {
		uri, err := util.ParseAtUri(feed.Uri)
		if err != nil {
			return fmt.Errorf("failed to parse at uri: %w", err)
		}
		if _, err := atproto.RepoDeleteRecord(ctx, c.xrpc, &atproto.RepoDeleteRecord_Input{
			Repo:       uri.Did,
			Collection: uri.Collection,
			Rkey:       uri.Rkey,
		}); err != nil {
			return fmt.Errorf("failed to delete feed %s: %w", uri.Rkey, err)
		}
		log.WithField("rkey", uri.Rkey).Info("Deleted feed generator")
	}
	return nil
}

func (c *Client) actorFeeds(ctx context.Context) ([]*bsky.FeedDefs_GeneratorView, error) {
	resp, err := bsky.FeedGetActorFeeds(ctx, c.xrpc, c.xrpc.Auth.Did, "", maxActorFeeds)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	return resp.Feeds, nil
}

// publishedFeeds maps the rkeys of the account's generators to their cids
func (c *Client) publishedFeeds(ctx context.Context) (map[string]string, error) {
	feeds, err := c.actorFeeds(ctx)
	if err != nil {
		return nil, err
	}

	published := make(map[string]string, len(feeds))
	for _, feed := range feeds {
		if uri, err := util.ParseAtUri(feed.Uri); err == nil {
			published[uri.Rkey] = feed.Cid
		}
	}
	return published, nil
}

func (c *Client) uploadAvatar(ctx context.Context, path string) (*lexutil.LexBlob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open avatar: %w", err)
	}
	defer f.Close()

	resp, err := atproto.RepoUploadBlob(ctx, c.xrpc, f)
	if err != nil {
		return nil, fmt.Errorf("failed to upload avatar: %w", err)
	}
	return resp.Blob, nil
}

// FormatTime renders t the way AT Protocol records expect
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
