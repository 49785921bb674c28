// Package pgpipelineconfig loads pgpipeline.Options from a pgpipeline.ini
// file's [pipeline] section, falling back to the DATABASE_URL environment
// variable when no file is present — the same file-with-env-fallback
// shape a teacher config loader uses for its own [db] section, adapted
// to this adapter's configuration surface (§6 "Configuration options").
package pgpipelineconfig

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shipq/pgpipeline/dburl"
	"github.com/shipq/pgpipeline/inifile"
	"github.com/shipq/pgpipeline/pgpipeline"
)

// Config is the parsed [pipeline] section plus whatever DATABASE_URL
// fallback was applied.
type Config struct {
	// Adapter must be "postgres_pipeline" when present in the file;
	// Load returns an error for any other value (§6 "adapter =
	// postgres_pipeline: selects this adapter at connection
	// establishment").
	Adapter string

	DatabaseURL    string
	StatementLimit int
}

const adapterName = "postgres_pipeline"

// Load reads path (a pgpipeline.ini-style file) and returns a Config. If
// path does not exist, Load falls back to DATABASE_URL alone with
// default options.
func Load(path string) (*Config, error) {
	cfg := &Config{Adapter: adapterName, StatementLimit: 0}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("pgpipelineconfig: stat %s: %w", path, err)
		}
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if err := requirePostgres(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	f, err := inifile.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("pgpipelineconfig: parse %s: %w", path, err)
	}

	if adapter := f.Get("pipeline", "adapter"); adapter != "" && adapter != adapterName {
		return nil, fmt.Errorf("pgpipelineconfig: unsupported adapter %q (want %q)", adapter, adapterName)
	}

	cfg.DatabaseURL = f.Get("pipeline", "database_url")
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	if limitStr := f.Get("pipeline", "statement_limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, fmt.Errorf("pgpipelineconfig: statement_limit: %w", err)
		}
		cfg.StatementLimit = limit
	}

	if err := requirePostgres(cfg.DatabaseURL); err != nil {
		return nil, err
	}
	return cfg, nil
}

// requirePostgres rejects a database_url pointing at a dialect this
// adapter cannot speak (§1: pipeline mode is a Postgres-only wire
// behavior; a mysql:// or sqlite:// URL here is a configuration mistake,
// not a dialect this package could ever dispatch against).
func requirePostgres(rawURL string) error {
	if rawURL == "" {
		return nil
	}
	dialect, err := dburl.InferDialectFromDBUrl(rawURL)
	if err != nil {
		return fmt.Errorf("pgpipelineconfig: database_url: %w", err)
	}
	if dialect != dburl.DialectPostgres {
		return fmt.Errorf("pgpipelineconfig: database_url: dialect %q is not supported; this adapter speaks Postgres pipeline mode only", dialect)
	}
	return nil
}

// ToOptions converts a Config into pgpipeline.Options, leaving
// TypeRegistry/Logger unset for the caller to fill in with
// concern-specific defaults (pgtypes.Default(), pglog.For(env)).
func (c *Config) ToOptions() pgpipeline.Options {
	return pgpipeline.Options{
		DatabaseURL:    c.DatabaseURL,
		StatementLimit: c.StatementLimit,
	}
}
