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

// Package config types define the configuration structures used throughout
// searchdl. These types represent settings that can be loaded from YAML or
// JSON configuration files and environment variables.
package config

import (
	"time"
)

// Config represents the complete configuration of a download run.
type Config struct {
	// Connection and credentials.
	SplunkURL          string `yaml:"splunk_url"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`

	// The search and its time bounds. Empty bounds are not sent.
	SearchQuery string `yaml:"search_query"`
	Earliest    string `yaml:"earliest"`
	Latest      string `yaml:"latest"`
	JobApp      string `yaml:"job_app"`

	// Retrieval.
	OutputMode string `yaml:"output_mode"`
	PageSize   int    `yaml:"page_size"`
	OutputFile string `yaml:"output_file"`

	// Debug enables debug logging and, like Resume, reuse of the last job.
	Debug          bool          `yaml:"debug"`
	Resume         bool          `yaml:"resume"`
	ResumeFile     string        `yaml:"resume_file"`
	ResumeRedisURL string        `yaml:"resume_redis_url"`
	ResumeTTL      time.Duration `yaml:"resume_ttl"`

	// Timings.
	PollInterval   time.Duration `yaml:"poll_interval"`
	ReauthPause    time.Duration `yaml:"reauth_pause"`
	PageInterval   time.Duration `yaml:"page_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Optional run artifacts.
	MetadataFile string `yaml:"metadata_file"`
	MetricsFile  string `yaml:"metrics_file"`
}

// DefaultConfig returns a Config with the built-in defaults. Connection
// settings and the query have no default.
func DefaultConfig() *Config {
	return &Config{
		JobApp:       "search",
		OutputMode:   "csv",
		PageSize:     10000,
		OutputFile:   "output.csv",
		ResumeFile:   ".debug_sid.json",
		PollInterval: 2 * time.Second,
		ReauthPause:  2 * time.Second,
		PageInterval: time.Second,
	}
}

// ResumeEnabled reports whether the last submitted job may be reused.
func (c *Config) ResumeEnabled() bool {
	return c.Debug || c.Resume
}
