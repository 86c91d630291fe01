// Package config provides configuration management for the Cadence
// orchestrator. All configuration comes from environment variables; the two
// storage/transport variables double as mode switches (unset means the
// in-memory implementations are used).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the application configuration.
type Config struct {
	// DatabaseURL is the Postgres DSN. Empty selects the in-memory stores.
	DatabaseURL string

	// RedpandaBrokers is the list of Kafka-compatible broker addresses.
	// Empty selects the in-memory broker.
	RedpandaBrokers []string

	// ListenAddr is the webhook HTTP listen address.
	ListenAddr string

	// BuildPath is the directory under which per-build working copies are
	// materialized.
	BuildPath string

	// KeepBuilds disables working-directory removal after a build
	// finishes. Useful for debugging failed builds.
	KeepBuilds bool

	// PostbackURL is an optional endpoint notified whenever a build
	// starts or finishes. Empty disables notifications.
	PostbackURL string

	// GitHubToken authenticates pull-request commit listing against the
	// GitHub API. Optional; unauthenticated requests are rate-limited.
	GitHubToken string

	// GitHubPerPage overrides the commit page size for large pull
	// requests. Zero means the API default.
	GitHubPerPage int

	// BitbucketUsername and BitbucketAppPassword authenticate
	// pull-request commit listing against the Bitbucket API.
	BitbucketUsername    string
	BitbucketAppPassword string
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		ListenAddr:           os.Getenv("CADENCE_LISTEN_ADDR"),
		BuildPath:            os.Getenv("CADENCE_BUILD_PATH"),
		PostbackURL:          os.Getenv("CADENCE_POSTBACK_URL"),
		GitHubToken:          os.Getenv("GITHUB_TOKEN"),
		BitbucketUsername:    os.Getenv("BITBUCKET_USERNAME"),
		BitbucketAppPassword: os.Getenv("BITBUCKET_APP_PASSWORD"),
	}

	if brokers := os.Getenv("REDPANDA_BROKERS"); brokers != "" {
		for _, addr := range strings.Split(brokers, ",") {
			addr = strings.TrimSpace(addr)
			if addr != "" {
				cfg.RedpandaBrokers = append(cfg.RedpandaBrokers, addr)
			}
		}
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.BuildPath == "" {
		cfg.BuildPath = os.TempDir() + "/cadence-builds"
	}

	if keep := os.Getenv("CADENCE_KEEP_BUILDS"); keep != "" {
		parsed, err := strconv.ParseBool(keep)
		if err != nil {
			return nil, fmt.Errorf("invalid CADENCE_KEEP_BUILDS value %q: %w", keep, err)
		}
		cfg.KeepBuilds = parsed
	}

	if perPage := os.Getenv("GITHUB_PER_PAGE"); perPage != "" {
		parsed, err := strconv.Atoi(perPage)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("invalid GITHUB_PER_PAGE value %q", perPage)
		}
		cfg.GitHubPerPage = parsed
	}

	return cfg, nil
}

// MustLoadFromEnv loads configuration from environment variables and panics
// on error. Useful for initialization in main() where configuration errors
// are fatal.
func MustLoadFromEnv() *Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
