/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"reelfeed/bluesky"
	"reelfeed/config"

	"github.com/cqroot/prompt"
	"github.com/cqroot/prompt/input"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
)

func publishCmd() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Publish feeds on Bluesky",
		Description: `Registers every configured video feed as a Bluesky feed generator.

A Bluesky user account is required. Each feed is published under its id with
the display name, description and avatar from the feeds configuration.
Feeds that are already published are updated in place.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "hostname",
				Aliases: []string{"n"},
				Usage:   "The hostname where the server is running",
				EnvVars: []string{"REELFEED_HOSTNAME"},
			},
			configFlag(),
		},
		Action: func(ctx *cli.Context) error {
			hostname := ctx.String("hostname")

			if hostname == "" {
				return errors.New("please specify a hostname")
			}

			cfg, err := loadConfig(ctx.String("config"))
			if err != nil {
				return err
			}

			client, err := login(ctx)
			if err != nil {
				return err
			}

			records := lo.Map(cfg.Feeds, func(feed config.TomlFeed, _ int) bluesky.FeedRecord {
				return bluesky.FeedRecord{
					Rkey:        feed.Id,
					DisplayName: feed.DisplayName,
					Description: feed.Description,
					AvatarPath:  feed.AvatarPath,
				}
			})
			if err := client.PublishFeeds(ctx.Context, fmt.Sprintf("did:web:%s", hostname), records); err != nil {
				return fmt.Errorf("could not publish feeds: %w", err)
			}
			for _, feed := range cfg.Feeds {
				fmt.Println("Published feed", feed.Id, "as", feed.DisplayName)
			}

			return nil
		},
	}
}

func unpublishCmd() *cli.Command {
	return &cli.Command{
		Name:  "unpublish",
		Usage: "Unpublish feeds from Bluesky",
		Description: `Removes every feed generator published by the account.

A Bluesky user account is required.`,
		Action: func(ctx *cli.Context) error {
			client, err := login(ctx)
			if err != nil {
				return err
			}

			fmt.Println("Unpublishing feeds...")
			return client.DeleteAllFeeds(ctx.Context)
		},
	}
}

// login asks for Bluesky credentials and opens a session on the default PDS
func login(ctx *cli.Context) (*bluesky.Client, error) {
	handle, err := prompt.New().Ask("Handle:").Input("myname.bsky.social")
	if err != nil {
		return nil, err
	}

	password, err := prompt.New().Ask("Password:").Input("", input.WithEchoMode(input.EchoNone))
	if err != nil {
		return nil, err
	}

	client, err := bluesky.ClientFromCredentials(ctx.Context, bluesky.DefaultPDSHost, &bluesky.Credentials{
		Identifier: handle,
		Password:   password,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create client with provided credentials: %w", err)
	}
	return client, nil
}
