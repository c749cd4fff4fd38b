/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"reelfeed/bluesky"
	"reelfeed/firehose"
	"reelfeed/models"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func subscribeCmd() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Log all video posts to the command line",
		Description: `Subscribe to the Bluesky firehose and log every video post that
passes the caption and language filters to the command line.

Returns each video as a JSON object on a single line. Use a tool like jq to
process the output.

Prints all other log messages to stderr.`,
		Flags: append([]cli.Flag{
			&cli.Int64Flag{
				Name:  "cursor",
				Usage: "Jetstream cursor in unix microseconds to replay from",
			},
		}, jetstreamFlags()...),
		Action: func(ctx *cli.Context) error {
			// Keep stdout for the videos
			log.SetOutput(os.Stderr)

			profiles, err := bluesky.NewProfiles(ctx.String("profile-host"), bluesky.DefaultCacheSize)
			if err != nil {
				return err
			}

			events := make(chan interface{}, 100)
			go firehose.Subscribe(ctx.Context, events, ctx.Int64("cursor"), profiles, firehoseConfig(ctx))

			for {
				select {
				case <-ctx.Context.Done():
					fmt.Fprintln(os.Stderr, "Stopping subscription")
					return nil
				case message := <-events:
					// Deletes and cursor updates only matter to the database
					if created, ok := message.(models.CreateVideoEvent); ok {
						printStdout(created.Video)
					}
				}
			}
		},
	}
}

func printStdout(video models.Video) {
	videoJson, err := json.Marshal(video)
	if err == nil {
		fmt.Println(string(videoJson))
	}
}
