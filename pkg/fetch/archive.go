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
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// 3️⃣ fetchViaGitHubArchive downloads a whole branch archive (zip) for main
// then master, and extracts it in memory. Unlike the API and raw strategies
// there is no file cap: once the archive is downloaded the per-file cost is
// gone, so this mode is exhaustive.
func (f *Fetcher) fetchViaGitHubArchive(ctx context.Context, repo Repo, token string) (*AggregatedSource, error) {
	logger := zerolog.Ctx(ctx)

	var lastErr error
	for _, branch := range branchCandidates {
		archiveURL := fmt.Sprintf("%s/%s/%s/archive/refs/heads/%s.zip",
			strings.TrimSuffix(f.opts.GitHubArchiveBaseURL, "/"), repo.Owner, repo.Name, branch)

		data, err := f.downloadArchive(ctx, archiveURL, token)
		if err != nil {
			logger.Debug().Err(err).Str("branch", branch).Msg("archive download failed")
			lastErr = err
			continue
		}

		src, err := extractZipSource(ctx, data)
		if err != nil {
			logger.Warn().Err(err).Str("branch", branch).Msg("archive extraction failed")
			lastErr = err
			continue
		}
		if src.Len() > 0 {
			return src, nil
		}
	}

	if lastErr != nil {
		return nil, errors.Errorf("archive download failed for main and master: %w", lastErr)
	}
	return nil, errors.New("archive contained no analyzable files")
}

// 📥 downloadArchive fetches the branch archive. The token rides along when
// present — archive downloads for private repositories honor it.
func (f *Fetcher) downloadArchive(ctx context.Context, archiveURL string, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return nil, errors.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}

	resp, err := f.archClient.Do(req)
	if err != nil {
		return nil, errors.Errorf("downloading archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Errorf("reading archive body: %w", err)
	}
	return data, nil
}

// 📦 extractZipSource walks every archive entry, keeps the ones the
// classifier accepts, and strips the archive's synthetic top-level directory
// from each path. Entries that are not valid UTF-8 are skipped, never
// included garbled.
func extractZipSource(ctx context.Context, data []byte) (*AggregatedSource, error) {
	logger := zerolog.Ctx(ctx)

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Errorf("opening zip archive: %w", err)
	}

	src := &AggregatedSource{}
	for _, entry := range reader.File {
		if strings.HasSuffix(entry.Name, "/") {
			continue
		}
		// The classifier sees the full entry name, synthetic prefix
		// included, matching how tree paths are classified elsewhere.
		if !IsCodeFile(entry.Name) {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			logger.Warn().Err(err).Str("path", entry.Name).Msg("could not open archive entry")
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			logger.Warn().Err(err).Str("path", entry.Name).Msg("could not read archive entry")
			continue
		}
		if !utf8.Valid(content) {
			logger.Warn().Str("path", entry.Name).Msg("skipping non-utf8 archive entry")
			continue
		}

		src.Add(stripArchivePrefix(entry.Name), string(content))
	}
	return src, nil
}

// ✂️ stripArchivePrefix drops the "<repo>-<branch>/" directory GitHub
// synthesizes at the top of branch archives.
func stripArchivePrefix(name string) string {
	if idx := strings.Index(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
