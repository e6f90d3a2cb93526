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

package fetch

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

const (
	// defaultMaxFiles caps per-file API downloads to stay under rate limits.
	// Archive extraction is exempt: once the zip is downloaded the per-file
	// cost is gone, so archive mode is exhaustive.
	defaultMaxFiles = 20

	defaultRateInterval   = time.Second
	defaultAPITimeout     = 30 * time.Second
	defaultArchiveTimeout = 60 * time.Second

	userAgent = "repolens/1.0 (code analysis service)"
)

// 🔧 Options configures a Fetcher. The zero value is production-ready; the
// base URL overrides exist so tests can point the engine at local doubles.
type Options struct {
	MaxFiles     int           // Per-file download cap for API and raw strategies (default 20)
	RateInterval time.Duration // Minimum spacing between GitHub API calls (default 1s)

	APITimeout     time.Duration // Per-call timeout for API and raw downloads (default 30s)
	ArchiveTimeout time.Duration // Timeout for branch archive downloads (default 60s)

	GitHubBaseURL        string // Override for the GitHub REST API, e.g. an httptest server
	GitHubRawBaseURL     string // Override for raw.githubusercontent.com
	GitHubArchiveBaseURL string // Override for the github.com archive host
	GitLabBaseURL        string // Override for the GitLab REST API
}

// 🎯 Fetcher retrieves repository source from GitHub or GitLab. Construct it
// once at process start and share it: all per-fetch state (the rate limiter)
// is created inside Fetch.
type Fetcher struct {
	opts       Options
	apiClient  *http.Client
	rawClient  *http.Client
	archClient *http.Client
}

// 🏭 New creates a Fetcher.
func New(opts Options) *Fetcher {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = defaultMaxFiles
	}
	if opts.RateInterval <= 0 {
		opts.RateInterval = defaultRateInterval
	}
	if opts.APITimeout <= 0 {
		opts.APITimeout = defaultAPITimeout
	}
	if opts.ArchiveTimeout <= 0 {
		opts.ArchiveTimeout = defaultArchiveTimeout
	}
	if opts.GitHubRawBaseURL == "" {
		opts.GitHubRawBaseURL = "https://raw.githubusercontent.com"
	}
	if opts.GitHubArchiveBaseURL == "" {
		opts.GitHubArchiveBaseURL = "https://github.com"
	}

	return &Fetcher{
		opts:       opts,
		apiClient:  &http.Client{Timeout: opts.APITimeout},
		rawClient:  &http.Client{Timeout: opts.APITimeout},
		archClient: &http.Client{Timeout: opts.ArchiveTimeout},
	}
}

// 🔍 ParseRepoURL derives the owner, name and provider from a repository URL.
func ParseRepoURL(gitURL string) (Repo, error) {
	u, err := url.Parse(strings.TrimSpace(gitURL))
	if err != nil {
		return Repo{}, &InvalidURLError{URL: gitURL}
	}

	var provider Provider
	switch {
	case strings.Contains(u.Host, "github.com"):
		provider = ProviderGitHub
	case strings.Contains(u.Host, "gitlab.com"):
		provider = ProviderGitLab
	default:
		return Repo{}, &UnsupportedProviderError{Host: u.Host}
	}

	var segments []string
	for _, part := range strings.Split(u.Path, "/") {
		if part != "" {
			segments = append(segments, part)
		}
	}
	if len(segments) < 2 {
		return Repo{}, &InvalidURLError{URL: gitURL}
	}

	return Repo{
		Owner:    segments[0],
		Name:     strings.TrimSuffix(segments[1], ".git"),
		Provider: provider,
	}, nil
}

// 📥 Fetch retrieves the analyzable source of the repository at gitURL.
// token is optional; empty means anonymous requests under public rate
// limits. There is no partial success: the result always holds at least one
// file, or the error explains why nothing could be retrieved.
func (f *Fetcher) Fetch(ctx context.Context, gitURL string, token string) (*AggregatedSource, error) {
	logger := zerolog.Ctx(ctx)

	repo, err := ParseRepoURL(gitURL)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("repo", repo.String()).
		Str("provider", string(repo.Provider)).
		Bool("authenticated", token != "").
		Msg("fetching repository")

	var src *AggregatedSource
	switch repo.Provider {
	case ProviderGitHub:
		src, err = f.fetchGitHub(ctx, repo, token)
	case ProviderGitLab:
		src, err = f.fetchGitLab(ctx, repo, token)
	default:
		return nil, &UnsupportedProviderError{Host: string(repo.Provider)}
	}
	if err != nil {
		return nil, errors.Errorf("fetching %s: %w", repo, err)
	}

	if src.Len() == 0 {
		return nil, errors.Errorf("fetching %s: no analyzable code files found", repo)
	}

	logger.Info().
		Str("repo", repo.String()).
		Int("files", src.Len()).
		Msg("repository fetched")

	return src, nil
}
