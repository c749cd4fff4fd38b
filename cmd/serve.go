/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"reelfeed/bluesky"
	"reelfeed/db"
	"reelfeed/feeds"
	"reelfeed/firehose"
	"reelfeed/models"
	"reelfeed/server"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the video feeds",
		Description: `Starts the video feed HTTP server.

Runs migrations, then serves the configured feeds over the HTTP API and as
Bluesky feed generators. With --subscribe the Bluesky firehose is ingested in
the same process, so new video posts show up in the feeds as they arrive.`,
		Flags: append([]cli.Flag{
			databaseFlag(),
			configFlag(),
			&cli.StringFlag{
				Name:    "hostname",
				Aliases: []string{"n"},
				Usage:   "The hostname where the server is running",
				EnvVars: []string{"REELFEED_HOSTNAME"},
			},
			&cli.StringFlag{
				Name:    "host",
				Value:   "0.0.0.0",
				Usage:   "Host to bind the HTTP server to",
				EnvVars: []string{"REELFEED_HOST"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   3000,
				Usage:   "Port to bind the HTTP server to",
				EnvVars: []string{"REELFEED_PORT"},
			},
			&cli.StringFlag{
				Name:    "allow-origins",
				Value:   "http://localhost:3001",
				Usage:   "Comma separated CORS origins",
				EnvVars: []string{"REELFEED_ALLOW_ORIGINS"},
			},
			&cli.BoolFlag{
				Name:    "subscribe",
				Usage:   "Ingest video posts from the firehose",
				EnvVars: []string{"REELFEED_SUBSCRIBE"},
			},
			&cli.DurationFlag{
				Name:    "retention",
				Value:   db.DefaultRetention,
				Usage:   "Remove videos older than this",
				EnvVars: []string{"REELFEED_RETENTION"},
			},
		}, jetstreamFlags()...),
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")
			hostname := ctx.String("hostname")
			if hostname == "" {
				return fmt.Errorf("please specify a hostname")
			}

			cfg, err := loadConfig(ctx.String("config"))
			if err != nil {
				return err
			}
			feedMap, err := feeds.InitializeFeeds(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize feeds: %w", err)
			}

			if err := db.Migrate(database); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			events := make(chan interface{}, 1000)
			writer, err := db.NewWriter(database, events, ctx.Duration("retention"))
			if err != nil {
				return err
			}
			defer writer.Close()

			reader, err := db.NewReader(database)
			if err != nil {
				return err
			}
			defer reader.Close()

			bc := server.NewBroadcaster()
			writer.OnCreate = func(video models.Video) {
				bc.BroadcastCreateVideo(models.CreateVideoEvent{Video: video})
			}

			app := server.Server(&server.ServerConfig{
				Hostname:     hostname,
				Reader:       reader,
				Events:       events,
				Broadcaster:  bc,
				Feeds:        feedMap,
				AllowOrigins: ctx.String("allow-origins"),
			})

			var profiles *bluesky.Profiles
			if ctx.Bool("subscribe") {
				if profiles, err = bluesky.NewProfiles(ctx.String("profile-host"), bluesky.DefaultCacheSize); err != nil {
					return err
				}
			}

			runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var wg sync.WaitGroup

			wg.Add(1)
			go func() {
				defer wg.Done()
				writer.Subscribe(runCtx)
			}()

			if ctx.Bool("subscribe") {
				seq, err := reader.GetSequence(runCtx)
				if err != nil {
					log.Warn("Could not read stored cursor, starting from live: ", err)
				}

				wg.Add(1)
				go func() {
					defer wg.Done()
					log.Info("Subscribing to firehose...")
					firehose.Subscribe(runCtx, events, firehose.ResumeCursor(seq), profiles, firehoseConfig(ctx))
				}()
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				broadcastStatistics(runCtx, reader, bc)
			}()

			go func() {
				addr := fmt.Sprintf("%s:%d", ctx.String("host"), ctx.Int("port"))
				log.Infof("Starting server on %s", addr)
				if err := app.Listen(addr); err != nil {
					log.Error("Server stopped: ", err)
					stop()
				}
			}()

			<-runCtx.Done()
			log.Info("Gracefully shutting down...")
			if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
				log.Error("Error shutting down server: ", err)
			}
			bc.Shutdown()
			wg.Wait()

			log.Info("Done!")
			return nil
		},
	}
}

func firehoseConfig(ctx *cli.Context) firehose.FirehoseConfig {
	return firehose.FirehoseConfig{
		RunLanguageDetection: ctx.Bool("run-language-detection"),
		ConfidenceThreshold:  ctx.Float64("confidence-threshold"),
		Languages:            ctx.StringSlice("language"),
		JetstreamHosts:       ctx.StringSlice("jetstream-host"),
		JetstreamCompress:    ctx.Bool("jetstream-compress"),
		UserAgent:            "reelfeed/" + ctx.App.Version,
	}
}

// broadcastStatistics pushes dashboard totals to SSE clients
func broadcastStatistics(ctx context.Context, reader *db.Reader, bc *server.Broadcaster) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if bc.Clients() == 0 {
				continue
			}
			stats, err := reader.GetStatistics(ctx)
			if err != nil {
				log.Error("Error getting statistics: ", err)
				continue
			}
			bc.BroadcastStatistics(stats)
		}
	}
}
