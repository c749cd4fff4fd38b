/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"reelfeed/db"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by removing videos that are old.

Removes videos older than the retention window, 90 days by default.
This keeps the database size down and the feeds fresh.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.DurationFlag{
				Name:    "retention",
				Value:   db.DefaultRetention,
				Usage:   "Remove videos older than this",
				EnvVars: []string{"REELFEED_RETENTION"},
			},
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")
			fmt.Println("Database configured: ", database)

			removed, err := db.Tidy(ctx.Context, database, ctx.Duration("retention"))
			if err != nil {
				return err
			}
			fmt.Printf("Removed %s videos\n", humanize.Comma(removed))
			return nil
		},
	}
}
