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
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/google/go-github/v60/github"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/oauth2"
)

// branchCandidates is the probe order for tree and archive lookups.
var branchCandidates = []string{"main", "master"}

// 🏭 githubClient builds a go-github client, authenticated when a token is
// present, pointed at the configured base URL.
func (f *Fetcher) githubClient(ctx context.Context, token string) (*github.Client, error) {
	httpClient := f.apiClient
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(
			context.WithValue(ctx, oauth2.HTTPClient, f.apiClient), ts)
		httpClient.Timeout = f.opts.APITimeout
	}

	client := github.NewClient(httpClient)
	client.UserAgent = userAgent
	if f.opts.GitHubBaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(f.opts.GitHubBaseURL, "/") + "/")
		if err != nil {
			return nil, errors.Errorf("parsing github base url: %w", err)
		}
		client.BaseURL = base
	}
	return client, nil
}

// 🔗 fetchGitHub runs the strategy chain: API, raw content, branch archive.
// The first strategy yielding at least one file wins; a strategy that errors
// or comes back empty is logged and the chain moves on. Exhaustion surfaces
// as *UnavailableError. A 404 from the API strategy does NOT short-circuit
// the chain — the archive host is sometimes reachable when the API is not.
func (f *Fetcher) fetchGitHub(ctx context.Context, repo Repo, token string) (*AggregatedSource, error) {
	logger := zerolog.Ctx(ctx)
	limiter := NewLimiter(f.opts.RateInterval)

	strategies := []struct {
		name string
		run  func(context.Context) (*AggregatedSource, error)
	}{
		{"github api", func(ctx context.Context) (*AggregatedSource, error) {
			return f.fetchViaGitHubAPI(ctx, repo, token, limiter)
		}},
		{"raw content", func(ctx context.Context) (*AggregatedSource, error) {
			return f.fetchViaRawGitHub(ctx, repo, token)
		}},
		{"branch archive", func(ctx context.Context) (*AggregatedSource, error) {
			return f.fetchViaGitHubArchive(ctx, repo, token)
		}},
	}

	var reasons []string
	for _, strategy := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger.Debug().Str("strategy", strategy.name).Msg("trying fetch strategy")

		src, err := strategy.run(ctx)
		if err != nil {
			logger.Warn().Err(err).Str("strategy", strategy.name).Msg("fetch strategy failed")
			reasons = append(reasons, fmt.Sprintf("%s: %v", strategy.name, err))
			continue
		}
		if src.Len() == 0 {
			logger.Warn().Str("strategy", strategy.name).Msg("fetch strategy returned no files")
			reasons = append(reasons, strategy.name+": no files")
			continue
		}

		logger.Info().
			Str("strategy", strategy.name).
			Int("files", src.Len()).
			Msg("fetch strategy succeeded")
		return src, nil
	}

	return nil, &UnavailableError{Repo: repo, Reasons: reasons}
}

// 1️⃣ fetchViaGitHubAPI checks repository accessibility, lists the tree, and
// downloads each qualifying file through the contents API (base64-decoded),
// rate-limited and capped at MaxFiles.
func (f *Fetcher) fetchViaGitHubAPI(ctx context.Context, repo Repo, token string, limiter *Limiter) (*AggregatedSource, error) {
	logger := zerolog.Ctx(ctx)

	client, err := f.githubClient(ctx, token)
	if err != nil {
		return nil, err
	}

	// Accessibility check first: this is where 404/403/rate-limit answers
	// are translated into the typed taxonomy.
	if err := limiter.Throttle(ctx); err != nil {
		return nil, err
	}
	if _, _, err := client.Repositories.Get(ctx, repo.Owner, repo.Name); err != nil {
		return nil, mapGitHubError(repo, err)
	}

	tree, branch, err := f.probeTree(ctx, client, repo, limiter)
	if err != nil {
		return nil, err
	}

	var candidates []string
	for _, entry := range tree.Entries {
		if entry.GetType() == "blob" && IsCodeFile(entry.GetPath()) {
			candidates = append(candidates, entry.GetPath())
		}
	}
	logger.Debug().Int("candidates", len(candidates)).Str("branch", branch).Msg("tree listed via api")

	src := &AggregatedSource{}
	for i, path := range candidates {
		if i >= f.opts.MaxFiles {
			break
		}

		if err := limiter.Throttle(ctx); err != nil {
			return nil, err
		}

		content, _, _, err := client.Repositories.GetContents(ctx, repo.Owner, repo.Name, path,
			&github.RepositoryContentGetOptions{Ref: branch})
		if err != nil || content == nil {
			logger.Warn().Err(err).Str("path", path).Msg("could not download file via api")
			continue
		}

		text, err := content.GetContent()
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("could not decode file content")
			continue
		}
		if !utf8.ValidString(text) {
			logger.Warn().Str("path", path).Msg("skipping non-utf8 file")
			continue
		}

		src.Add(path, text)
	}
	return src, nil
}

// 2️⃣ fetchViaRawGitHub re-lists the tree through the API, then downloads each
// candidate straight from the raw content host, bypassing the contents API's
// encoding and rate overhead. Raw downloads go out with only a User-Agent
// header, never the token.
func (f *Fetcher) fetchViaRawGitHub(ctx context.Context, repo Repo, token string) (*AggregatedSource, error) {
	logger := zerolog.Ctx(ctx)

	client, err := f.githubClient(ctx, token)
	if err != nil {
		return nil, err
	}

	tree, branch, err := f.probeTree(ctx, client, repo, nil)
	if err != nil {
		return nil, err
	}

	var candidates []string
	for _, entry := range tree.Entries {
		if entry.GetType() == "blob" && IsCodeFile(entry.GetPath()) {
			candidates = append(candidates, entry.GetPath())
		}
	}
	if len(candidates) == 0 {
		return nil, errors.New("no candidate files found for raw download")
	}

	src := &AggregatedSource{}
	for i, path := range candidates {
		if i >= f.opts.MaxFiles {
			break
		}

		rawURL := fmt.Sprintf("%s/%s/%s/%s/%s",
			strings.TrimSuffix(f.opts.GitHubRawBaseURL, "/"), repo.Owner, repo.Name, branch, path)

		text, err := f.downloadRaw(ctx, rawURL)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("could not download raw file")
			continue
		}
		if !utf8.ValidString(text) {
			logger.Warn().Str("path", path).Msg("skipping non-utf8 file")
			continue
		}

		src.Add(path, text)
	}
	return src, nil
}

// 🌿 probeTree fetches the recursive tree listing, trying the main branch
// then master; the first answer wins. limiter may be nil for strategies that
// are not rate-limited.
func (f *Fetcher) probeTree(ctx context.Context, client *github.Client, repo Repo, limiter *Limiter) (*github.Tree, string, error) {
	var lastErr error
	for _, branch := range branchCandidates {
		if limiter != nil {
			if err := limiter.Throttle(ctx); err != nil {
				return nil, "", err
			}
		}

		tree, _, err := client.Git.GetTree(ctx, repo.Owner, repo.Name, branch, true)
		if err == nil {
			return tree, branch, nil
		}
		lastErr = err
	}
	return nil, "", errors.Errorf("listing repository tree (tried main and master): %w", lastErr)
}

// 📥 downloadRaw fetches one file from the raw content host.
func (f *Fetcher) downloadRaw(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errors.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.rawClient.Do(req)
	if err != nil {
		return "", errors.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Errorf("reading response body: %w", err)
	}
	return string(body), nil
}

// 🗺️ mapGitHubError translates go-github errors into the fetch taxonomy.
func mapGitHubError(repo Repo, err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &RateLimitError{Reset: rateErr.Rate.Reset.Time}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &RateLimitError{}
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound:
			return &NotFoundError{Repo: repo}
		case http.StatusForbidden:
			return &ForbiddenError{Repo: repo}
		default:
			return &APIError{Status: respErr.Response.StatusCode}
		}
	}

	return err
}
