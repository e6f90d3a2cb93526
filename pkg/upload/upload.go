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

// Package upload ingests pasted code and uploaded files into the same
// AggregatedSource shape the repository fetcher produces. Unlike Git fetches,
// uploads tolerate zero surviving files — the HTTP layer decides what to tell
// the user.
package upload

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/repolens/repolens/pkg/fetch"
)

// File is one uploaded file: a client-supplied name and its raw bytes.
type File struct {
	Name string
	Data []byte
}

// Processor turns uploads into aggregated source. IgnoreGlobs are
// doublestar patterns applied on top of the fixed classifier; empty means no
// extra filtering.
type Processor struct {
	ignoreGlobs []string
}

// NewProcessor creates a Processor with the given extra ignore patterns.
func NewProcessor(ignoreGlobs []string) *Processor {
	return &Processor{ignoreGlobs: ignoreGlobs}
}

// ProcessPaste wraps manually pasted code in a single synthetic file record.
// The extension is sniffed the cheap way: anything containing "public class"
// is called Java, everything else Python.
func (p *Processor) ProcessPaste(code string) *fetch.AggregatedSource {
	ext := ".py"
	if strings.Contains(code, "public class") {
		ext = ".java"
	}

	src := &fetch.AggregatedSource{}
	src.Add("manual_input"+ext, code)
	return src
}

// ProcessFiles ingests a batch of uploads. Zip archives are expanded and
// filtered entry by entry; plain files pass through the classifier. Per-file
// failures (binary content, broken zip entries) are logged and skipped,
// never fatal to the batch.
func (p *Processor) ProcessFiles(ctx context.Context, files []File) (*fetch.AggregatedSource, error) {
	logger := zerolog.Ctx(ctx)

	src := &fetch.AggregatedSource{}
	for _, f := range files {
		if f.Name == "" {
			continue
		}

		if strings.HasSuffix(strings.ToLower(f.Name), ".zip") {
			if err := p.expandZip(ctx, f, src); err != nil {
				logger.Warn().Err(err).Str("file", f.Name).Msg("could not expand zip upload")
			}
			continue
		}

		if !fetch.IsCodeFile(f.Name) || p.ignored(f.Name) {
			logger.Debug().Str("file", f.Name).Msg("skipping non-code upload")
			continue
		}
		if !utf8.Valid(f.Data) {
			logger.Warn().Str("file", f.Name).Msg("skipping undecodable upload")
			continue
		}

		src.Add(f.Name, string(f.Data))
	}
	return src, nil
}

// expandZip adds every qualifying entry of the archive to src.
func (p *Processor) expandZip(ctx context.Context, f File, src *fetch.AggregatedSource) error {
	logger := zerolog.Ctx(ctx)

	reader, err := zip.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return errors.Errorf("opening zip upload: %w", err)
	}

	for _, entry := range reader.File {
		if strings.HasSuffix(entry.Name, "/") {
			continue
		}
		if !fetch.IsCodeFile(entry.Name) || p.ignored(entry.Name) {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			logger.Warn().Err(err).Str("path", entry.Name).Msg("could not open zip entry")
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			logger.Warn().Err(err).Str("path", entry.Name).Msg("could not read zip entry")
			continue
		}
		if !utf8.Valid(content) {
			logger.Debug().Str("path", entry.Name).Msg("skipping binary zip entry")
			continue
		}

		src.Add(entry.Name, string(content))
	}
	return nil
}

// ignored reports whether any configured glob matches the path.
func (p *Processor) ignored(path string) bool {
	for _, pattern := range p.ignoreGlobs {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}
