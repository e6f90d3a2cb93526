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

package log

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	// Disable color for testing
	color.NoColor = true
	defer func() { color.NoColor = false }()

	tests := []struct {
		name     string
		op       func(t *testing.T, logger *Logger)
		wantLogs []string
	}{
		{
			name: "log_file_event",
			op: func(t *testing.T, logger *Logger) {
				logger.LogFileEvent(context.Background(), FileEvent{
					Path: "src/main.py",
					Size: 120,
				})
			},
			wantLogs: []string{
				"✓ src/main.py                                   120 B",
			},
		},
		{
			name: "log_skipped_file",
			op: func(t *testing.T, logger *Logger) {
				logger.LogFileEvent(context.Background(), FileEvent{
					Path:    "assets/logo.png",
					Skipped: true,
					Reason:  "not a code file",
				})
			},
			wantLogs: []string{
				"- assets/logo.png                               not a code file",
			},
		},
		{
			name: "log_fetch_operation",
			op: func(t *testing.T, logger *Logger) {
				logger.StartFetch(context.Background(), FetchOperation{
					Repo:     "acme/widgets",
					Provider: "github",
					Strategy: "api",
				})
			},
			wantLogs: []string{
				"[fetching acme/widgets]",
				"◆ github • api",
			},
		},
		{
			name: "log_messages",
			op: func(t *testing.T, logger *Logger) {
				logger.Info("info message")
				logger.Warning("warning message")
				logger.Error("error message")
				logger.Success("success message")
			},
			wantLogs: []string{
				"ℹ️  info message",
				"⚠️  warning message",
				"❌ error message",
				"✅ success message",
			},
		},
		{
			name: "log_formatted_messages",
			op: func(t *testing.T, logger *Logger) {
				logger.Infof("info %s", "test")
				logger.Warningf("warning %s", "test")
				logger.Errorf("error %s", "test")
				logger.Successf("success %s", "test")
			},
			wantLogs: []string{
				"ℹ️  info test",
				"⚠️  warning test",
				"❌ error test",
				"✅ success test",
			},
		},
		{
			name: "log_header",
			op: func(t *testing.T, logger *Logger) {
				logger.Header("fetching repository files")
			},
			wantLogs: []string{
				"repolens • fetching repository files",
			},
		},
		{
			name: "log_newline",
			op: func(t *testing.T, logger *Logger) {
				logger.Info("first")
				logger.LogNewline()
				logger.Info("second")
			},
			wantLogs: []string{
				"ℹ️  first",
				"",
				"ℹ️  second",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := New(buf, zerolog.InfoLevel)

			tt.op(t, logger)

			output := strings.TrimSpace(buf.String())
			lines := strings.Split(output, "\n")

			require.Equal(t, len(tt.wantLogs), len(lines), "number of log lines should match")
			for i, want := range tt.wantLogs {
				assert.Equal(t, want, strings.TrimSpace(lines[i]), "log line %d should match", i)
			}
		})
	}
}

func TestLoggerContext(t *testing.T) {
	logger := New(io.Discard, zerolog.InfoLevel)

	ctx := context.Background()
	ctx = NewContext(ctx, logger)

	got := FromContext(ctx)
	assert.Same(t, logger, got, "logger from context should be the same instance")

	assert.Panics(t, func() {
		FromContext(context.Background())
	}, "FromContext should panic when logger is missing")
}

func TestEndFetchResetsState(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	buf := &bytes.Buffer{}
	logger := New(buf, zerolog.InfoLevel)

	logger.StartFetch(context.Background(), FetchOperation{Repo: "acme/widgets", Provider: "github", Strategy: "api"})
	logger.LogFileEvent(context.Background(), FileEvent{Path: "a.py", Size: 1})
	logger.EndFetch(context.Background())

	assert.Nil(t, logger.currentOp, "operation should be cleared")
	assert.Empty(t, logger.files, "file events should be cleared")

	// EndFetch without a running operation is a no-op.
	logger.EndFetch(context.Background())
}
