package file

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
)

// Environment variables consulted after the file is read.
const (
	EnvTokens        = "GITHUB_TOKENS"
	EnvTokenPrefix   = "GITHUB_TOKEN_"
	EnvStorage       = "DEVTRAWL_STORAGE"
	DefaultConfigDir = ".devtrawl"
	ConfigFile       = "config.toml"
)

// document is the on-disk layout of the configuration file.
type document struct {
	Tokens            []string        `toml:"tokens"`
	Regions           []string        `toml:"regions"`
	Years             []int           `toml:"years"`
	FollowerBuckets   []string        `toml:"follower_buckets"`
	Window            string          `toml:"window"`
	PerPage           int             `toml:"per_page"`
	PageCap           int             `toml:"page_cap"`
	RepoPageCap       int             `toml:"repo_page_cap"`
	CommitsPerRepo    int             `toml:"commits_per_repo"`
	RequestDelay      string          `toml:"request_delay"`
	RequestsPerSecond float64         `toml:"requests_per_second"`
	MaxAttempts       int             `toml:"max_attempts"`
	Workers           int             `toml:"workers"`
	Flush             string          `toml:"flush"`
	DedupeEntities    bool            `toml:"dedupe_entities"`
	NoReplyMarkers    []string        `toml:"noreply_markers"`
	Storage           storageDocument `toml:"storage"`
	ExportPath        string          `toml:"export_path"`
	MetricsAddr       string          `toml:"metrics_addr"`
	APIBaseURL        string          `toml:"api_base_url"`
}

type storageDocument struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

func fromConfig(c domain.CrawlConfig) document {
	return document{
		Tokens:            slices.Clone(c.Tokens),
		Regions:           slices.Clone(c.Regions),
		Years:             slices.Clone(c.Years),
		FollowerBuckets:   slices.Clone(c.FollowerBuckets),
		Window:            string(c.Window),
		PerPage:           c.PerPage,
		PageCap:           c.PageCap,
		RepoPageCap:       c.RepoPageCap,
		CommitsPerRepo:    c.CommitsPerRepo,
		RequestDelay:      c.RequestDelay.String(),
		RequestsPerSecond: c.RequestsPerSecond,
		MaxAttempts:       c.MaxAttempts,
		Workers:           c.Workers,
		Flush:             string(c.Flush),
		DedupeEntities:    c.DedupeEntities,
		NoReplyMarkers:    slices.Clone(c.NoReplyMarkers),
		Storage: storageDocument{
			Driver: string(c.Storage.Driver),
			DSN:    c.Storage.DSN,
		},
		ExportPath:  c.ExportPath,
		MetricsAddr: c.MetricsAddr,
		APIBaseURL:  c.APIBaseURL,
	}
}

func (d document) toConfig() (domain.CrawlConfig, error) {
	delay, err := time.ParseDuration(d.RequestDelay)
	if err != nil {
		return domain.CrawlConfig{}, fmt.Errorf("%w: request_delay: %w", domain.ErrConfiguration, err)
	}
	return domain.CrawlConfig{
		Tokens:            d.Tokens,
		Regions:           d.Regions,
		Years:             d.Years,
		FollowerBuckets:   d.FollowerBuckets,
		Window:            domain.Granularity(d.Window),
		PerPage:           d.PerPage,
		PageCap:           d.PageCap,
		RepoPageCap:       d.RepoPageCap,
		CommitsPerRepo:    d.CommitsPerRepo,
		RequestDelay:      delay,
		RequestsPerSecond: d.RequestsPerSecond,
		MaxAttempts:       d.MaxAttempts,
		Workers:           d.Workers,
		Flush:             domain.FlushPolicy(d.Flush),
		DedupeEntities:    d.DedupeEntities,
		NoReplyMarkers:    d.NoReplyMarkers,
		Storage: domain.StorageSettings{
			Driver: domain.StorageDriver(d.Storage.Driver),
			DSN:    d.Storage.DSN,
		},
		ExportPath:  d.ExportPath,
		MetricsAddr: d.MetricsAddr,
		APIBaseURL:  d.APIBaseURL,
	}, nil
}

// ConfigStore reads the crawl configuration from a TOML file.
type ConfigStore struct {
	filePath string
}

// NewConfigStore creates a store for the file at path.
// If path is empty, defaults to ~/.devtrawl/config.toml.
func NewConfigStore(path string) (*ConfigStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, DefaultConfigDir, ConfigFile)
	}
	return &ConfigStore{filePath: path}, nil
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// Load reads the file over the defaults, applies environment overrides and
// validates the result. A missing file leaves the defaults in place.
func (s *ConfigStore) Load() (domain.CrawlConfig, error) {
	doc := fromConfig(domain.DefaultCrawlConfig())

	data, err := os.ReadFile(s.filePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// No config file yet; env and defaults only
	case err != nil:
		return domain.CrawlConfig{}, fmt.Errorf("reading config: %w", err)
	default:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return domain.CrawlConfig{}, fmt.Errorf("%w: parsing %s: %w", domain.ErrConfiguration, s.filePath, err)
		}
	}

	cfg, err := doc.toConfig()
	if err != nil {
		return domain.CrawlConfig{}, err
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return domain.CrawlConfig{}, err
	}
	return cfg, nil
}

// applyEnv appends tokens from GITHUB_TOKENS and GITHUB_TOKEN_1..N and
// applies the storage override.
func applyEnv(cfg *domain.CrawlConfig) {
	for _, t := range strings.Split(os.Getenv(EnvTokens), ",") {
		if t = strings.TrimSpace(t); t != "" {
			cfg.Tokens = append(cfg.Tokens, t)
		}
	}
	for i := 1; ; i++ {
		t := strings.TrimSpace(os.Getenv(EnvTokenPrefix + strconv.Itoa(i)))
		if t == "" {
			break
		}
		cfg.Tokens = append(cfg.Tokens, t)
	}
	if dsn := os.Getenv(EnvStorage); dsn != "" {
		cfg.Storage.DSN = dsn
	}
}
