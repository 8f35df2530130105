// Copyright 2025 SirSeer, LLC
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://mariadb.com/bsl11
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides configuration management for searchdl with
// support for multiple configuration sources and a well-defined precedence
// order.
//
// Configuration sources (in precedence order, highest to lowest):
//  1. Environment variables (SEARCHDL_<KEY>, e.g. SEARCHDL_PASSWORD)
//  2. Configuration file
//  3. Built-in defaults
//
// Configuration files are YAML. The legacy config.json is read by the same
// parser, since JSON documents are valid YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	sderrors "github.com/sirseerhq/searchdl/internal/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SEARCHDL"

// LoadConfig loads configuration from multiple sources and applies them in
// the correct precedence order. If configPath is provided, it loads from
// that specific file. Otherwise, it searches standard locations:
//   - searchdl.yaml (current directory)
//   - searchdl.yml (current directory)
//   - config.yaml (current directory)
//   - config.json (current directory)
//   - config.json (next to the executable)
//
// Environment variables are applied after loading the config file, allowing
// runtime overrides. Finding no file is not an error; Validate reports the
// missing settings instead.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadConfigFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else if path := findConfigFile(); path != "" {
		if err := loadConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SearchPaths returns the locations LoadConfig tries, in order.
func SearchPaths() []string {
	paths := []string{
		"searchdl.yaml",
		"searchdl.yml",
		"config.yaml",
		"config.json",
	}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), "config.json"))
	}
	return paths
}

func findConfigFile() string {
	for _, path := range SearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadConfigFile reads and parses a YAML or JSON config file
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s not found: %w", path, sderrors.ErrInvalidConfig)
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %v: %w", path, err, sderrors.ErrInvalidConfig)
	}

	return nil
}

// applyEnvOverrides applies SEARCHDL_* environment variables to cfg.
func applyEnvOverrides(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	strs := map[string]*string{
		"splunk_url":       &cfg.SplunkURL,
		"username":         &cfg.Username,
		"password":         &cfg.Password,
		"search_query":     &cfg.SearchQuery,
		"earliest":         &cfg.Earliest,
		"latest":           &cfg.Latest,
		"job_app":          &cfg.JobApp,
		"output_mode":      &cfg.OutputMode,
		"output_file":      &cfg.OutputFile,
		"resume_file":      &cfg.ResumeFile,
		"resume_redis_url": &cfg.ResumeRedisURL,
		"metadata_file":    &cfg.MetadataFile,
		"metrics_file":     &cfg.MetricsFile,
	}
	for key, dst := range strs {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	bools := map[string]*bool{
		"debug":                &cfg.Debug,
		"resume":               &cfg.Resume,
		"insecure_skip_verify": &cfg.InsecureSkipVerify,
	}
	for key, dst := range bools {
		if v.IsSet(key) {
			*dst = parseBool(v.GetString(key))
		}
	}

	if v.IsSet("page_size") {
		size, err := parsePositiveInt(v.GetString("page_size"))
		if err != nil {
			return fmt.Errorf("%s_PAGE_SIZE: %v: %w", EnvPrefix, err, sderrors.ErrInvalidConfig)
		}
		cfg.PageSize = size
	}

	durations := map[string]*time.Duration{
		"poll_interval":   &cfg.PollInterval,
		"reauth_pause":    &cfg.ReauthPause,
		"page_interval":   &cfg.PageInterval,
		"request_timeout": &cfg.RequestTimeout,
		"resume_ttl":      &cfg.ResumeTTL,
	}
	for key, dst := range durations {
		if !v.IsSet(key) {
			continue
		}
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return fmt.Errorf("%s_%s: %v: %w", EnvPrefix, strings.ToUpper(key), err, sderrors.ErrInvalidConfig)
		}
		*dst = d
	}

	return nil
}

// parsePositiveInt parses a string to a positive integer
func parsePositiveInt(s string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("failed to parse integer from '%s': %w", s, err)
	}
	if i <= 0 {
		return 0, fmt.Errorf("value must be positive, got: %d", i)
	}
	return i, nil
}

// parseBool parses various boolean representations
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "yes" || s == "1" || s == "on"
}

// Validate checks that every required setting is present and that values are
// within range. It should be called after loading configuration to catch
// invalid settings before any request is made.
func (c *Config) Validate() error {
	var missing []string
	for _, f := range []struct{ key, value string }{
		{"splunk_url", c.SplunkURL},
		{"username", c.Username},
		{"password", c.Password},
		{"search_query", c.SearchQuery},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s: %w", strings.Join(missing, ", "), sderrors.ErrInvalidConfig)
	}

	if !strings.HasPrefix(c.SplunkURL, "http://") && !strings.HasPrefix(c.SplunkURL, "https://") {
		return fmt.Errorf("splunk_url must start with http:// or https://, got: %q: %w", c.SplunkURL, sderrors.ErrInvalidConfig)
	}

	switch strings.ToLower(c.OutputMode) {
	case "csv", "json", "log":
	default:
		return fmt.Errorf("output_mode must be csv, json or log, got: %q: %w", c.OutputMode, sderrors.ErrInvalidConfig)
	}

	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got: %d: %w", c.PageSize, sderrors.ErrInvalidConfig)
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output_file cannot be empty: %w", sderrors.ErrInvalidConfig)
	}

	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"poll_interval", c.PollInterval},
		{"reauth_pause", c.ReauthPause},
		{"page_interval", c.PageInterval},
		{"request_timeout", c.RequestTimeout},
		{"resume_ttl", c.ResumeTTL},
	} {
		if d.value < 0 {
			return fmt.Errorf("%s cannot be negative, got: %s: %w", d.key, d.value, sderrors.ErrInvalidConfig)
		}
	}

	return nil
}
