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
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/repolens/repolens/cmd/repolens/opts"
	"github.com/repolens/repolens/pkg/fetch"
	"github.com/repolens/repolens/pkg/log"
)

// NewFetchCmd creates a new fetch command
func NewFetchCmd(ro *opts.RootOpts) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "fetch <repository-url>",
		Short: "Fetch a repository's code files and list them",
		Long: `Fetch retrieves the code files of a GitHub or GitLab repository
using the same strategy chain the analysis API uses, and prints what
was retrieved. Useful for checking what an analysis would see.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := zerolog.Ctx(ctx).With().Str("command", "fetch").Logger()
			ctx = logger.WithContext(ctx)

			gitURL := args[0]
			cfg := ro.Config

			repo, err := fetch.ParseRepoURL(gitURL)
			if err != nil {
				return errors.Errorf("parsing repository url: %w", err)
			}

			if token == "" {
				switch repo.Provider {
				case fetch.ProviderGitLab:
					token = cfg.GitLabToken
				default:
					token = cfg.GitHubToken
				}
			}

			fetcher := fetch.New(fetch.Options{
				MaxFiles:     cfg.Fetch.MaxFiles,
				RateInterval: time.Duration(cfg.Fetch.RateIntervalSeconds) * time.Second,
			})

			ro.Console.StartFetch(ctx, log.FetchOperation{
				Repo:     repo.String(),
				Provider: string(repo.Provider),
				Strategy: "auto",
			})

			spinner, _ := pterm.DefaultSpinner.Start("fetching repository files")
			src, err := fetcher.Fetch(ctx, gitURL, token)
			if err != nil {
				spinner.Fail("fetch failed")
				return errors.Errorf("fetching repository: %w", err)
			}
			spinner.Success(fmt.Sprintf("fetched %d files", src.Len()))

			for _, f := range src.Files {
				ro.Console.LogFileEvent(ctx, log.FileEvent{
					Path: f.Path,
					Size: len(f.Content),
				})
			}
			ro.Console.EndFetch(ctx)

			rows := pterm.TableData{{"File", "Size"}}
			for _, f := range src.Files {
				rows = append(rows, []string{f.Path, fmt.Sprintf("%d B", len(f.Content))})
			}
			if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
				return errors.Errorf("rendering table: %w", err)
			}

			ro.Console.Successf("%s: %d code files", repo, src.Len())
			return nil
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "access token (defaults to the configured one)")

	return cmd
}
