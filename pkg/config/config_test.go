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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "writing config fixture")
	return path
}

// clearEnv keeps ambient environment variables out of the assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"REPOLENS_GITHUB_TOKEN", "REPOLENS_GITLAB_TOKEN", "OPENAI_API_KEY", "PORT"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(context.Background(), "")
	require.NoError(t, err, "loading defaults should succeed")

	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "default host")
	assert.Equal(t, 10000, cfg.Server.Port, "default port")
	assert.Equal(t, 20, cfg.Fetch.MaxFiles, "default file cap")
	assert.Equal(t, "gpt-4o-mini", cfg.Analyzer.Model, "default model")
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "repolens.yaml", `
server:
  host: 127.0.0.1
  port: 9000
analyzer:
  model: gpt-4o
fetch:
  max_files: 50
ignore_globs:
  - "**/generated/**"
`)

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err, "loading YAML should succeed")

	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "host should come from the file")
	assert.Equal(t, 9000, cfg.Server.Port, "port should come from the file")
	assert.Equal(t, "gpt-4o", cfg.Analyzer.Model, "model should come from the file")
	assert.Equal(t, 50, cfg.Fetch.MaxFiles, "file cap should come from the file")
	assert.Equal(t, []string{"**/generated/**"}, cfg.IgnoreGlobs, "globs should come from the file")
	assert.Equal(t, 1, cfg.Fetch.RateIntervalSeconds, "unset fields keep their defaults")
}

func TestLoadYAMLRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "repolens.yaml", "serverr:\n  port: 9000\n")

	_, err := Load(context.Background(), path)
	require.Error(t, err, "unknown fields should be rejected")
}

func TestLoadJSON(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "repolens.json", `{"server": {"port": 8088}, "github_token": "file-token"}`)

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err, "loading JSON should succeed")

	assert.Equal(t, 8088, cfg.Server.Port, "port should come from the file")
	assert.Equal(t, "file-token", cfg.GitHubToken, "token should come from the file")
}

func TestLoadHCL(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "repolens.hcl", `
server {
  port = 8443
}

fetch {
  max_files = 30
}

gitlab_token = "hcl-token"
`)

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err, "loading HCL should succeed")

	assert.Equal(t, 8443, cfg.Server.Port, "port should come from the file")
	assert.Equal(t, 30, cfg.Fetch.MaxFiles, "file cap should come from the file")
	assert.Equal(t, "hcl-token", cfg.GitLabToken, "token should come from the file")
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "missing host keeps the default")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "repolens.yaml", "github_token: file-token\n")
	t.Setenv("REPOLENS_GITHUB_TOKEN", "env-token")
	t.Setenv("OPENAI_API_KEY", "env-key")

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err, "loading should succeed")

	assert.Equal(t, "env-token", cfg.GitHubToken, "environment should beat the file")
	assert.Equal(t, "env-key", cfg.Analyzer.APIKey, "api key should come from the environment")
}

func TestPortFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "3000")

	cfg, err := Load(context.Background(), "")
	require.NoError(t, err, "loading should succeed")
	assert.Equal(t, 3000, cfg.Server.Port, "PORT should override the default")
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeConfig(t, "repolens.toml", "port = 1")

	_, err := Load(context.Background(), path)
	require.Error(t, err, "unsupported formats should be rejected")
	assert.Contains(t, err.Error(), "no parser found", "error should name the failure")
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "port_out_of_range",
			cfg:  Config{Server: ServerConfig{Port: 70000}, Fetch: FetchConfig{MaxFiles: 20}},
		},
		{
			name: "zero_max_files",
			cfg:  Config{Server: ServerConfig{Port: 8080}, Fetch: FetchConfig{MaxFiles: 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate(), "invalid config should fail validation")
		})
	}
}
