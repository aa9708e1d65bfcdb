package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// ApplyEnvOverrides layers BLOCKGROWER_* environment variables on top of a
// loaded Config, the same precedence the teacher's
// LoadLocalConfigWithEnv gives BEADS_* variables over config.yaml: env
// wins when set, the file's value otherwise stands. Viper supplies the
// binding/parsing layer; the JSON file remains the format of record.
func ApplyEnvOverrides(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix("BLOCKGROWER")
	for _, key := range []string{
		"rate_limit", "max_followers", "depth",
		"page_rank_damping", "rank_threshold",
		"user", "password", "default_bad",
	} {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if v.IsSet("rate_limit") {
		cfg.RateLimit = v.GetInt("rate_limit")
	}
	if v.IsSet("max_followers") {
		cfg.MaxFollowers = v.GetInt("max_followers")
	}
	if v.IsSet("depth") {
		cfg.Depth = v.GetInt("depth")
	}
	if v.IsSet("page_rank_damping") {
		cfg.PageRankDamping = v.GetFloat64("page_rank_damping")
	}
	if v.IsSet("rank_threshold") {
		cfg.RankThreshold = v.GetFloat64("rank_threshold")
	}
	if v.IsSet("user") {
		cfg.User = v.GetString("user")
	}
	if v.IsSet("password") {
		cfg.Password = v.GetString("password")
	}
	if v.IsSet("default_bad") {
		cfg.DefaultBad = v.GetBool("default_bad")
	}
	return nil
}
