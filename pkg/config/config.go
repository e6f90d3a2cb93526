// Copyright 2025 repolens authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the service configuration from YAML, JSON, or HCL
// files. Parsers self-register and are selected by filename, so adding a
// format never touches the load path. Secrets (API tokens) always come from
// the environment last, overriding whatever the file says.
package config

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// 🔌 Parser is the interface for config parsers
type Parser interface {
	// 📝 Parse parses the config from bytes
	Parse(ctx context.Context, data []byte) (*Config, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

// 🗺️ parsers is the list of available parsers
var parsers []Parser

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// 🌐 ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `json:"host,omitempty" yaml:"host,omitempty" hcl:"host,optional"`
	Port int    `json:"port,omitempty" yaml:"port,omitempty" hcl:"port,optional"`
}

// 🤖 AnalyzerConfig selects the hosted analysis model.
type AnalyzerConfig struct {
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" hcl:"base_url,optional"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty" hcl:"model,optional"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty" hcl:"api_key,optional"`
}

// 📥 FetchConfig tunes the repository fetcher.
type FetchConfig struct {
	MaxFiles            int `json:"max_files,omitempty" yaml:"max_files,omitempty" hcl:"max_files,optional"`
	RateIntervalSeconds int `json:"rate_interval_seconds,omitempty" yaml:"rate_interval_seconds,omitempty" hcl:"rate_interval_seconds,optional"`
}

// 📚 Config represents the complete service configuration
type Config struct {
	Server      ServerConfig   `json:"server,omitempty" yaml:"server,omitempty"`
	Analyzer    AnalyzerConfig `json:"analyzer,omitempty" yaml:"analyzer,omitempty"`
	Fetch       FetchConfig    `json:"fetch,omitempty" yaml:"fetch,omitempty"`
	GitHubToken string         `json:"github_token,omitempty" yaml:"github_token,omitempty"`
	GitLabToken string         `json:"gitlab_token,omitempty" yaml:"gitlab_token,omitempty"`
	IgnoreGlobs []string       `json:"ignore_globs,omitempty" yaml:"ignore_globs,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 10000,
		},
		Analyzer: AnalyzerConfig{
			Model: "gpt-4o-mini",
		},
		Fetch: FetchConfig{
			MaxFiles:            20,
			RateIntervalSeconds: 1,
		},
	}
}

// 🎯 Load loads the configuration. An empty path yields the defaults; a file
// is parsed by the first registered parser claiming it. Environment
// overrides apply in both cases.
func Load(ctx context.Context, path string) (*Config, error) {
	logger := zerolog.Ctx(ctx)

	cfg := Default()
	if path != "" {
		logger.Debug().Str("path", path).Msg("loading configuration")

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Errorf("reading config file: %w", err)
		}

		p := GetParser(path)
		if p == nil {
			return nil, errors.Errorf("no parser found for file: %s", path)
		}

		parsed, err := p.Parse(ctx, data)
		if err != nil {
			return nil, errors.Errorf("parsing config: %w", err)
		}
		cfg.merge(parsed)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// merge overlays non-zero fields of other onto cfg.
func (cfg *Config) merge(other *Config) {
	if other.Server.Host != "" {
		cfg.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		cfg.Server.Port = other.Server.Port
	}
	if other.Analyzer.BaseURL != "" {
		cfg.Analyzer.BaseURL = other.Analyzer.BaseURL
	}
	if other.Analyzer.Model != "" {
		cfg.Analyzer.Model = other.Analyzer.Model
	}
	if other.Analyzer.APIKey != "" {
		cfg.Analyzer.APIKey = other.Analyzer.APIKey
	}
	if other.Fetch.MaxFiles != 0 {
		cfg.Fetch.MaxFiles = other.Fetch.MaxFiles
	}
	if other.Fetch.RateIntervalSeconds != 0 {
		cfg.Fetch.RateIntervalSeconds = other.Fetch.RateIntervalSeconds
	}
	if other.GitHubToken != "" {
		cfg.GitHubToken = other.GitHubToken
	}
	if other.GitLabToken != "" {
		cfg.GitLabToken = other.GitLabToken
	}
	if len(other.IgnoreGlobs) > 0 {
		cfg.IgnoreGlobs = other.IgnoreGlobs
	}
}

// applyEnv layers environment secrets over the file values. The environment
// always wins so deployments never need tokens on disk.
func (cfg *Config) applyEnv() {
	if v := os.Getenv("REPOLENS_GITHUB_TOKEN"); v != "" {
		cfg.GitHubToken = v
	}
	if v := os.Getenv("REPOLENS_GITLAB_TOKEN"); v != "" {
		cfg.GitLabToken = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Analyzer.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
}

// 🔍 Validate checks if the configuration is valid
func (cfg *Config) Validate() error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return errors.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Fetch.MaxFiles < 1 {
		return errors.Errorf("fetch.max_files must be positive")
	}
	if cfg.Fetch.RateIntervalSeconds < 0 {
		return errors.Errorf("fetch.rate_interval_seconds must not be negative")
	}
	return nil
}

// 📝 String returns the listen address, with secrets kept out.
func (cfg *Config) String() string {
	return fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
}
