package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"reelfeed/config"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func databaseFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "database",
		Aliases: []string{"d"},
		Value:   "feed.db",
		Usage:   "SQLite database file location",
		EnvVars: []string{"REELFEED_DATABASE"},
	}
}

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "config/feeds.toml",
		Usage:   "Path to feeds configuration file",
		EnvVars: []string{"REELFEED_CONFIG"},
	}
}

func jetstreamFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "jetstream-host",
			Usage:   "Jetstream endpoints, tried in order",
			Value:   cli.NewStringSlice("wss://jetstream1.us-east.bsky.network", "wss://jetstream2.us-east.bsky.network"),
			EnvVars: []string{"REELFEED_JETSTREAM_HOSTS"},
		},
		&cli.BoolFlag{
			Name:    "jetstream-compress",
			Usage:   "Request zstd compressed messages",
			Value:   true,
			EnvVars: []string{"REELFEED_JETSTREAM_COMPRESS"},
		},
		&cli.StringSliceFlag{
			Name:    "language",
			Usage:   "Only index videos in these ISO 639-1 languages, all when unset",
			EnvVars: []string{"REELFEED_LANGUAGES"},
		},
		&cli.BoolFlag{
			Name:    "run-language-detection",
			Usage:   "Detect caption languages instead of trusting the post's tags",
			EnvVars: []string{"REELFEED_RUN_LANGUAGE_DETECTION"},
		},
		&cli.Float64Flag{
			Name:    "confidence-threshold",
			Usage:   "Minimum language detection confidence",
			Value:   0.6,
			EnvVars: []string{"REELFEED_CONFIDENCE_THRESHOLD"},
		},
		&cli.StringFlag{
			Name:    "profile-host",
			Usage:   "AppView host used to resolve author profiles",
			Value:   "https://public.api.bsky.app",
			EnvVars: []string{"REELFEED_PROFILE_HOST"},
		},
	}
}

// loadConfig falls back to a single newest-first feed when the file is missing
func loadConfig(path string) (*config.TomlConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		log.WithField("path", path).Warn("Config file not found, using default feeds")
		return config.Default(), nil
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
