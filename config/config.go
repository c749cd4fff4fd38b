package config

import (
	"fmt"
	"os"

	"reelfeed/pager"

	"github.com/BurntSushi/toml"
)

// TomlAuthor represents author configuration from TOML
type TomlAuthor struct {
	DID    string  `toml:"did"`
	Weight float64 `toml:"weight"`
}

// TomlKeywords holds keyword configurations
type TomlKeywords map[string][]string

// TomlFilter represents a filter configuration
type TomlFilter struct {
	Type      string   `toml:"type"`
	Languages []string `toml:"languages,omitempty"`
	Authors   []string `toml:"authors,omitempty"`
	Include   []string `toml:"include,omitempty"` // References to keyword lists
	Exclude   []string `toml:"exclude,omitempty"` // References to keyword lists
}

// TomlScoring represents a scoring strategy configuration
type TomlScoring struct {
	Type     string       `toml:"type"`
	Weight   float64      `toml:"weight"`
	Keywords string       `toml:"keywords,omitempty"` // Reference to keyword list
	Authors  []TomlAuthor `toml:"authors,omitempty"`
}

// TomlFeed represents feed configuration
type TomlFeed struct {
	Id          string        `toml:"id"`
	DisplayName string        `toml:"display_name"`
	Description string        `toml:"description"`
	AvatarPath  string        `toml:"avatar_path"`
	Filters     []TomlFilter  `toml:"filters"`
	Scoring     []TomlScoring `toml:"scoring"`
}

// TomlPager holds the client paging defaults
type TomlPager struct {
	PageSize           int  `toml:"page_size"`
	Ceiling            int  `toml:"ceiling"`
	ExhaustOnShortPage bool `toml:"exhaust_on_short_page"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Pager    TomlPager    `toml:"pager"`
	Keywords TomlKeywords `toml:"keywords"`
	Feeds    []TomlFeed   `toml:"feeds"`
}

// Default is used when no config file exists: a single newest-first feed
func Default() *TomlConfig {
	return &TomlConfig{
		Pager: TomlPager{PageSize: 12, ExhaustOnShortPage: true},
		Feeds: []TomlFeed{{
			Id:          "latest",
			DisplayName: "Latest videos",
			Description: "Newest videos first",
		}},
	}
}

func LoadConfig(path string) (*TomlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return ParseConfig(data)
}

func ParseConfig(data []byte) (*TomlConfig, error) {
	config := TomlConfig{
		Pager: TomlPager{PageSize: 12, ExhaustOnShortPage: true},
	}
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *TomlConfig) validate() error {
	if c.Pager.PageSize <= 0 {
		return fmt.Errorf("pager.page_size must be positive, got %d", c.Pager.PageSize)
	}
	if c.Pager.PageSize > pager.MaxPageSize {
		return fmt.Errorf("pager.page_size must be at most %d, got %d", pager.MaxPageSize, c.Pager.PageSize)
	}
	if c.Pager.Ceiling < 0 {
		return fmt.Errorf("pager.ceiling must not be negative, got %d", c.Pager.Ceiling)
	}

	seen := make(map[string]bool, len(c.Feeds))
	for _, feed := range c.Feeds {
		if feed.Id == "" {
			return fmt.Errorf("feed without id")
		}
		if seen[feed.Id] {
			return fmt.Errorf("duplicate feed id %q", feed.Id)
		}
		seen[feed.Id] = true

		for _, filter := range feed.Filters {
			for _, ref := range append(append([]string{}, filter.Include...), filter.Exclude...) {
				if _, ok := c.Keywords[ref]; !ok {
					return fmt.Errorf("feed %q references unknown keyword list %q", feed.Id, ref)
				}
			}
		}
		for _, scoring := range feed.Scoring {
			if scoring.Keywords == "" {
				continue
			}
			if _, ok := c.Keywords[scoring.Keywords]; !ok {
				return fmt.Errorf("feed %q references unknown keyword list %q", feed.Id, scoring.Keywords)
			}
		}
	}
	return nil
}
