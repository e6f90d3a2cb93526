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
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// 🎨 Display configuration
const (
	fileIndent = 4  // spaces to indent file entries
	nameWidth  = 45 // Base width for file path
	sizeWidth  = 10 // Width for the size column
)

// 🎯 FileEvent represents one fetched or skipped file for logging
type FileEvent struct {
	Path    string // File path within the repository
	Size    int    // Content size in bytes
	Skipped bool   // Whether the file was filtered out
	Reason  string // Skip reason, empty for fetched files
}

// 📦 FetchOperation represents a repository fetch for logging
type FetchOperation struct {
	Repo     string // Repository identifier (owner/name)
	Provider string // Hosting provider (github/gitlab)
	Strategy string // Retrieval strategy that ran
}

// 🎯 Logger handles structured logging with console output
type Logger struct {
	zlog      zerolog.Logger
	console   io.Writer
	mu        sync.Mutex
	currentOp *FetchOperation
	files     []FileEvent
}

// 🏭 New creates a new logger
func New(console io.Writer, level zerolog.Level) *Logger {
	zlog := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger().Level(level)
	return &Logger{
		zlog:    zlog,
		console: console,
		mu:      sync.Mutex{},
	}
}

// 🔑 contextKey is the type for context values
type contextKey struct{}

// 🎯 FromContext gets the logger from context
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(contextKey{}).(*Logger)
	if !ok {
		panic("logger not found in context")
	}
	return logger
}

// 🎯 NewContext adds the logger to context
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// 📝 formatFileEvent formats a file event for display
func (l *Logger) formatFileEvent(ev FileEvent) string {
	var symbol rune
	var symbolColor color.Attribute
	var detail string
	if ev.Skipped {
		symbol = '-'
		symbolColor = color.FgYellow
		detail = ev.Reason
	} else {
		symbol = '✓'
		symbolColor = color.FgGreen
		detail = fmt.Sprintf("%-*s", sizeWidth, fmt.Sprintf("%d B", ev.Size))
	}

	return fmt.Sprintf("%s%s %s %s",
		fmt.Sprintf("%*s", fileIndent, ""),
		color.New(symbolColor).Sprint(string(symbol)),
		fmt.Sprintf("%-*s", nameWidth, ev.Path),
		detail)
}

// 📝 LogFileEvent logs one file of the current fetch
func (l *Logger) LogFileEvent(ctx context.Context, ev FileEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.files = append(l.files, ev)

	fmt.Fprintln(l.console, l.formatFileEvent(ev))

	l.zlog.Info().
		Str("file", ev.Path).
		Int("size", ev.Size).
		Bool("skipped", ev.Skipped).
		Str("reason", ev.Reason).
		Msg("file event")
}

// 📝 StartFetch starts a new repository fetch
func (l *Logger) StartFetch(ctx context.Context, op FetchOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.currentOp = &op
	l.files = nil

	fmt.Fprintf(l.console, "[fetching %s]\n",
		color.New(color.FgCyan).Sprint(op.Repo))

	fmt.Fprintf(l.console, "%s %s %s %s\n",
		color.New(color.FgMagenta).Sprint("◆"),
		color.New(color.Bold).Sprint(op.Provider),
		color.New(color.Faint).Sprint("•"),
		color.New(color.FgYellow).Sprint(op.Strategy))

	l.zlog.Info().
		Str("repo", op.Repo).
		Str("provider", op.Provider).
		Str("strategy", op.Strategy).
		Msg("starting repository fetch")
}

// 📝 EndFetch ends the current repository fetch
func (l *Logger) EndFetch(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentOp == nil {
		return
	}

	l.zlog.Info().
		Str("repo", l.currentOp.Repo).
		Int("files", len(l.files)).
		Msg("repository fetch complete")

	l.currentOp = nil
	l.files = nil
}

// 📝 LogNewline logs a newline
func (l *Logger) LogNewline() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.console)
}

// 📝 Header logs a header
func (l *Logger) Header(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	brand := color.New(color.Bold, color.FgCyan).Sprint("repolens")
	fmt.Fprintf(l.console, "\n%s %s\n\n", brand, color.New(color.Faint).Sprint("• "+msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Success logs a success message
func (l *Logger) Success(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "✅ %s\n", color.New(color.FgGreen).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Warning logs a warning message
func (l *Logger) Warning(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "⚠️  %s\n", color.New(color.FgYellow).Sprint(msg))
	l.zlog.Warn().Msg(msg)
}

// 📝 Error logs an error message
func (l *Logger) Error(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "❌ %s\n", color.New(color.FgRed).Sprint(msg))
	l.zlog.Error().Msg(msg)
}

// 📝 Info logs an info message
func (l *Logger) Info(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "ℹ️  %s\n", color.New(color.FgCyan).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// 📝 Warningf logs a formatted warning message
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.Warning(fmt.Sprintf(format, args...))
}

// 📝 Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// 📝 Successf logs a formatted success message
func (l *Logger) Successf(format string, args ...interface{}) {
	l.Success(fmt.Sprintf(format, args...))
}
