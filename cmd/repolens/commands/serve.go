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

package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/repolens/repolens/cmd/repolens/opts"
	"github.com/repolens/repolens/pkg/analyzer"
	"github.com/repolens/repolens/pkg/cache"
	"github.com/repolens/repolens/pkg/fetch"
	"github.com/repolens/repolens/pkg/report"
	"github.com/repolens/repolens/pkg/server"
	"github.com/repolens/repolens/pkg/upload"
)

// shutdownGrace bounds how long in-flight requests may drain.
const shutdownGrace = 10 * time.Second

// NewServeCmd creates a new serve command
func NewServeCmd(ro *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis HTTP service",
		Long: `Serve starts the HTTP API. It will:
1. Wire the repository fetcher, upload processor, and analyzer
2. Listen on the configured host and port
3. Shut down gracefully on SIGINT/SIGTERM`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := zerolog.Ctx(ctx).With().Str("command", "serve").Logger()
			ctx = logger.WithContext(ctx)

			cfg := ro.Config

			anl, err := analyzer.New(analyzer.Config{
				BaseURL: cfg.Analyzer.BaseURL,
				Model:   cfg.Analyzer.Model,
				APIKey:  cfg.Analyzer.APIKey,
			})
			if err != nil {
				return errors.Errorf("creating analyzer: %w", err)
			}
			if !anl.Available() {
				logger.Warn().Msg("no model configured, analysis endpoints will return 503")
			}

			fetcher := fetch.New(fetch.Options{
				MaxFiles:     cfg.Fetch.MaxFiles,
				RateInterval: time.Duration(cfg.Fetch.RateIntervalSeconds) * time.Second,
			})

			srv, err := server.NewServer(server.Config{
				Host:        cfg.Server.Host,
				Port:        cfg.Server.Port,
				GitHubToken: cfg.GitHubToken,
				GitLabToken: cfg.GitLabToken,
			}, server.Deps{
				Fetcher:   fetcher,
				Uploads:   upload.NewProcessor(cfg.IgnoreGlobs),
				Analyzer:  anl,
				Sessions:  cache.New(0),
				Artifacts: report.NewArtifactStore(0),
				Renderer:  report.MarkdownRenderer{},
				Logger:    logger,
			})
			if err != nil {
				return errors.Errorf("creating server: %w", err)
			}

			ro.Console.Header("serving http api")
			ro.Console.Infof("listening on %s", cfg.String())

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(srv.Start)
			g.Go(func() error {
				<-ctx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil {
				return errors.Errorf("serving: %w", err)
			}

			ro.Console.Success("server stopped")
			return nil
		},
	}

	return cmd
}
