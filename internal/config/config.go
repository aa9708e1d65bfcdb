// Package config loads the single JSON configuration document that drives
// a blockgrower run (spec ยง6): remote credentials, file locations, and the
// tuning knobs for the crawl and ranking stages.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrConfigInvalid wraps any validation failure found while loading a
// configuration file. It is always fatal at startup.
var ErrConfigInvalid = errors.New("invalid configuration")

// Config is the typed form of the JSON document described in spec ยง6.
type Config struct {
	// ConfigDir is the directory the config file was loaded from; SessionFile
	// and CacheDB are resolved relative to it, mirroring the Python
	// implementation's config_dir/cache_db_path properties.
	ConfigDir string `json:"-"`

	User     string `json:"user"`
	Password string `json:"password"`

	SessionFile string `json:"session_file"`
	CacheDB     string `json:"cache_db"`

	BlockedCSV string `json:"blocked_csv"`
	OutputCSV  string `json:"output_csv"`

	PageRankDamping float64 `json:"page_rank_damping"`
	RankThreshold   float64 `json:"rank_threshold"`
	RateLimit       int     `json:"rate_limit"`
	MaxFollowers    int     `json:"max_followers"`
	Depth           int     `json:"depth"`

	// DefaultBad enables the bad-DID policy of spec ยง3: block-list entries
	// with an empty reason_type count as bad (and so get personalization
	// weight 1.0) rather than being ignored.
	DefaultBad bool `json:"default_bad"`
}

// defaultRateLimit mirrors the Python relationship module's hard-coded
// aiolimiter.AsyncLimiter(10, 1): used only when the config omits or zeroes
// rate_limit, since the spec promotes it to a config key.
const defaultRateLimit = 10

// Load reads and validates the JSON document at configFile.
func Load(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w: %w", configFile, ErrConfigInvalid, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w: %w", configFile, ErrConfigInvalid, err)
	}
	cfg.ConfigDir = filepath.Dir(configFile)

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.Depth <= 0 {
		cfg.Depth = 1
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SessionFile == "" {
		return fmt.Errorf("%w: session_file is required", ErrConfigInvalid)
	}
	if c.CacheDB == "" {
		return fmt.Errorf("%w: cache_db is required", ErrConfigInvalid)
	}
	if c.BlockedCSV == "" {
		return fmt.Errorf("%w: blocked_csv is required", ErrConfigInvalid)
	}
	if c.OutputCSV == "" {
		return fmt.Errorf("%w: output_csv is required", ErrConfigInvalid)
	}
	if c.PageRankDamping <= 0 || c.PageRankDamping >= 1 {
		return fmt.Errorf("%w: page_rank_damping must be in (0,1), got %v", ErrConfigInvalid, c.PageRankDamping)
	}
	if c.MaxFollowers <= 0 {
		return fmt.Errorf("%w: max_followers must be positive", ErrConfigInvalid)
	}
	if _, hasSession := sessionFileExists(c); hasSession {
		return nil
	}
	if c.User == "" || c.Password == "" {
		return fmt.Errorf("%w: user/password required when no session file exists yet", ErrConfigInvalid)
	}
	return nil
}

func sessionFileExists(c *Config) (string, bool) {
	path := c.SessionFilePath()
	_, err := os.Stat(path)
	return path, err == nil
}

// CacheDBPath returns the cache database path resolved against ConfigDir.
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.ConfigDir, c.CacheDB)
}

// SessionFilePath returns the session file path resolved against ConfigDir.
func (c *Config) SessionFilePath() string {
	return filepath.Join(c.ConfigDir, c.SessionFile)
}
