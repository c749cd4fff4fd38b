/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:    "reelfeed",
		Usage:   "Infinite scroll video feeds built from Bluesky video posts",
		Version: "0.1.0",
		Description: `Indexes video posts from the Bluesky firehose and serves them as
		paged feeds for infinite scroll clients.

		Videos are written to an SQLite database by a single writer and ranked
		by the feeds in the configuration file. The feeds are available over an
		HTTP API, as Bluesky feed generators, and in the terminal with browse.

		Flags can generally be set via environment variables, e.g.:

		--database => REELFEED_DATABASE=feed.db
		--port => REELFEED_PORT=3000
		`,
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
			seedCmd(),
			subscribeCmd(),
			browseCmd(),
			publishCmd(),
			unpublishCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}
