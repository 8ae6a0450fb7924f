// Package config loads the dmpsync configuration file.
//
// The file is YAML. Every ${ENV_VAR} reference is expanded before parsing,
// so secrets such as database passwords and S3 keys can stay in the
// environment. Unknown keys are rejected. Missing sections take the
// defaults from Default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dmpsync/internal/archive"
	"github.com/roach88/dmpsync/internal/store"
)

// Config is the complete configuration.
type Config struct {
	Database      Database      `yaml:"database"`
	Ingest        Ingest        `yaml:"ingest"`
	Minting       Minting       `yaml:"minting"`
	Archive       Archive       `yaml:"archive"`
	Organizations Organizations `yaml:"organizations"`
	Citations     Citations     `yaml:"citations"`
	Logging       Logging       `yaml:"logging"`
	Metrics       Metrics       `yaml:"metrics"`
}

// Database selects the store.
type Database struct {
	Driver string `yaml:"driver"` // sqlite3 or pgx
	DSN    string `yaml:"dsn"`
}

// Ingest holds submission defaults.
type Ingest struct {
	Provenance string `yaml:"provenance"`
	Language   string `yaml:"language"`
}

// Minting configures DOI minting for plans without one.
type Minting struct {
	Enabled  bool   `yaml:"enabled"`
	Prefix   string `yaml:"prefix"`
	Shoulder string `yaml:"shoulder"`
}

// Archive configures the payload archive.
type Archive struct {
	Driver string           `yaml:"driver"` // none, fs or s3
	Path   string           `yaml:"path"`
	S3     archive.S3Config `yaml:"s3"`
}

// Organizations points at the local organization directory.
type Organizations struct {
	Directory string `yaml:"directory"`
}

// Citations configures the DOI citation client.
type Citations struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Logging configures the slog handler.
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Metrics configures the textfile dump.
type Metrics struct {
	File string `yaml:"file"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database: Database{Driver: store.DriverSQLite, DSN: "dmpsync.db"},
		Ingest:   Ingest{Provenance: "dmptool", Language: "en"},
		Minting:  Minting{Prefix: "10.80030", Shoulder: "D1"},
		Archive:  Archive{Driver: string(archive.DriverNone), Path: "archive"},
		Citations: Citations{
			BaseURL: "https://doi.org",
			Timeout: 10 * time.Second,
		},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Error lists every problem found in a configuration.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Load reads and validates the file at path. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse expands environment references in data, decodes it over the
// defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	expanded := os.ExpandEnv(string(data))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate returns an *Error naming every invalid setting, or nil.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Database.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		add("database.driver %q must be %s or %s", c.Database.Driver, store.DriverSQLite, store.DriverPostgres)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		add("database.dsn is required")
	}
	if strings.TrimSpace(c.Ingest.Provenance) == "" {
		add("ingest.provenance is required")
	}
	if c.Minting.Enabled && strings.TrimSpace(c.Minting.Prefix) == "" {
		add("minting.prefix is required when minting is enabled")
	}

	switch archive.Driver(c.Archive.Driver) {
	case "", archive.DriverNone:
	case archive.DriverFilesystem:
		if c.Archive.Path == "" {
			add("archive.path is required for the fs driver")
		}
	case archive.DriverS3:
		if c.Archive.S3.Bucket == "" {
			add("archive.s3.bucket is required for the s3 driver")
		}
	default:
		add("archive.driver %q must be none, fs or s3", c.Archive.Driver)
	}

	if c.Citations.Timeout < 0 {
		add("citations.timeout must not be negative")
	}
	if _, err := c.Logging.level(); err != nil {
		add("logging.level: %v", err)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		add("logging.format %q must be text or json", c.Logging.Format)
	}

	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}

// ArchiveConfig converts the archive section for archive.Open.
func (c Config) ArchiveConfig() archive.Config {
	return archive.Config{
		Driver: archive.Driver(c.Archive.Driver),
		Path:   c.Archive.Path,
		S3:     c.Archive.S3,
	}
}

func (l Logging) level() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	err := lvl.UnmarshalText([]byte(l.Level))
	return lvl, err
}

// NewLogger builds the logger described by l. verbose forces debug level.
func (l Logging) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
