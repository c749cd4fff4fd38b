/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"reelfeed/db"
	"reelfeed/source"

	"github.com/urfave/cli/v2"
)

func seedCmd() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Fill the database with generated videos",
		Description: `Writes generated sample videos to the database so the feeds can be
tried out without subscribing to the firehose.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.IntFlag{
				Name:  "count",
				Value: 120,
				Usage: "Number of videos to generate",
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "Random seed, a time based seed when unset",
			},
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")
			if err := db.Migrate(database); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			writer, err := db.NewWriter(database, nil, 0)
			if err != nil {
				return err
			}
			defer writer.Close()

			seed := ctx.Int64("seed")
			if seed == 0 {
				seed = time.Now().UnixNano()
			}

			videos := source.NewMock(seed, 0).Videos(0, ctx.Int("count"))
			for _, video := range videos {
				if _, err := writer.CreateVideo(ctx.Context, video); err != nil {
					return err
				}
			}

			fmt.Printf("Seeded %d videos into %s\n", len(videos), database)
			return nil
		},
	}
}
