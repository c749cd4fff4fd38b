/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"reelfeed/db"
	"reelfeed/feeds"
	"reelfeed/pager"
	"reelfeed/source"

	"github.com/cqroot/prompt"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const (
	choiceMore = "Load more"
	choiceQuit = "Quit"
)

func browseCmd() *cli.Command {
	return &cli.Command{
		Name:  "browse",
		Usage: "Scroll through a feed in the terminal",
		Description: `Browse a video feed page by page.

Reads from a running server with --server, straight from the database, or
from generated videos with --mock. Each "Load more" scrolls the last card
into view, which loads the next page until the feed runs out.`,
		Flags: []cli.Flag{
			databaseFlag(),
			configFlag(),
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Base URL of a reelfeed server, e.g. http://localhost:3000",
				EnvVars: []string{"REELFEED_SERVER"},
			},
			&cli.StringFlag{
				Name:    "feed",
				Aliases: []string{"f"},
				Value:   "latest",
				Usage:   "Feed to browse",
			},
			&cli.BoolFlag{
				Name:  "mock",
				Usage: "Browse generated videos",
			},
			&cli.DurationFlag{
				Name:  "mock-delay",
				Value: 500 * time.Millisecond,
				Usage: "Simulated latency of the mock source",
			},
			&cli.IntFlag{
				Name:  "page-size",
				Usage: "Videos per page, defaults to the config file",
			},
			&cli.IntFlag{
				Name:  "ceiling",
				Value: -1,
				Usage: "Stop after this many videos, 0 disables, defaults to the config file",
			},
		},
		Action: func(ctx *cli.Context) error {
			// Log lines would interleave with the cards
			log.SetOutput(os.Stderr)
			log.SetLevel(log.WarnLevel)

			cfg, err := loadConfig(ctx.String("config"))
			if err != nil {
				return err
			}

			pagerConfig := pager.Config{
				PageSize:           cfg.Pager.PageSize,
				Ceiling:            cfg.Pager.Ceiling,
				ExhaustOnShortPage: cfg.Pager.ExhaustOnShortPage,
			}
			if ctx.Int("page-size") > 0 {
				pagerConfig.PageSize = ctx.Int("page-size")
			}
			if ctx.Int("ceiling") >= 0 {
				pagerConfig.Ceiling = ctx.Int("ceiling")
			}

			var src pager.Source
			switch {
			case ctx.Bool("mock"):
				// The generated feed never ends, the demo stopped at 100 videos
				src = source.NewMock(time.Now().UnixNano(), ctx.Duration("mock-delay"))
				if pagerConfig.Ceiling == 0 {
					pagerConfig.Ceiling = 100
				}
			case ctx.String("server") != "":
				src = source.NewHTTP(ctx.String("server"), ctx.String("feed"), nil)
			default:
				feedMap, err := feeds.InitializeFeeds(cfg)
				if err != nil {
					return err
				}
				feed, ok := feedMap[ctx.String("feed")]
				if !ok {
					return fmt.Errorf("unknown feed %q", ctx.String("feed"))
				}
				reader, err := db.NewReader(ctx.String("database"))
				if err != nil {
					return err
				}
				defer reader.Close()
				src = source.NewStore(feed, reader)
			}

			b := &browser{out: os.Stdout, more: promptMore, now: time.Now}
			return b.run(ctx.Context, src, pagerConfig)
		},
	}
}

// browser scrolls a feed in the terminal. more is asked before every scroll
// and reports whether to load the next page.
type browser struct {
	out  io.Writer
	more func() (bool, error)
	now  func() time.Time
}

func promptMore() (bool, error) {
	choice, err := prompt.New().Ask("More videos?").Choose([]string{choiceMore, choiceQuit})
	if errors.Is(err, prompt.ErrUserQuit) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return choice == choiceMore, nil
}

func (b *browser) run(ctx context.Context, src pager.Source, config pager.Config) error {
	renderer := &cardRenderer{out: b.out, now: b.now}
	config.OnChange = renderer.render

	viewport := pager.NewViewport()
	p := pager.New(ctx, src, viewport.NewWatcher, config)
	defer p.Close()

	fmt.Fprintln(b.out, loadingVideos)
	p.RequestNextPage(ctx)
	added := len(p.State().Items) > 0

	for {
		state := p.State()
		if !added && state.HasMore {
			fmt.Fprintln(b.out, loadFailed)
		}
		fmt.Fprintln(b.out, footer(state))
		if !state.HasMore {
			return nil
		}

		// Watch the last card, it stands in for the bottom of the list.
		// An empty feed watches "", so a failed first page is retried.
		p.AttachSentinel(p.Sentinel())

		more, err := b.more()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}

		before := len(state.Items)
		fmt.Fprintln(b.out, loadingVideos)
		viewport.Show(p.Sentinel())
		added = len(p.State().Items) > before
	}
}
