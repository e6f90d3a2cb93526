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
	"unicode/utf8"

	"github.com/rs/zerolog"
	gitlab "gitlab.com/gitlab-org/api/client-go"
	"gitlab.com/tozd/go/errors"
)

const gitlabPerPage = 100

// 🦊 fetchGitLab is the single GitLab strategy: resolve the project, list the
// tree recursively, and download each qualifying file's raw content pinned to
// the main branch. No fallback chain — GitLab's raw-file endpoint already is
// the cheap path. Note the classifier runs on the item NAME here, a narrower
// check than GitHub's path-based filtering.
func (f *Fetcher) fetchGitLab(ctx context.Context, repo Repo, token string) (*AggregatedSource, error) {
	logger := zerolog.Ctx(ctx)

	opts := []gitlab.ClientOptionFunc{gitlab.WithHTTPClient(f.apiClient)}
	if f.opts.GitLabBaseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(f.opts.GitLabBaseURL))
	}
	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, errors.Errorf("creating gitlab client: %w", err)
	}

	projectPath := repo.Owner + "/" + repo.Name

	// Verify accessibility before walking the tree.
	_, resp, err := client.Projects.GetProject(projectPath, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, &GitLabProjectError{Status: responseStatus(resp), Stage: "project"}
	}

	nodes, resp, err := client.Repositories.ListTree(projectPath, &gitlab.ListTreeOptions{
		ListOptions: gitlab.ListOptions{PerPage: gitlabPerPage},
		Recursive:   gitlab.Ptr(true),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, &GitLabProjectError{Status: responseStatus(resp), Stage: "tree"}
	}

	var candidates []*gitlab.TreeNode
	for _, node := range nodes {
		if node.Type == "blob" && IsCodeFile(node.Name) {
			candidates = append(candidates, node)
		}
	}
	logger.Debug().Int("candidates", len(candidates)).Msg("gitlab tree listed")

	src := &AggregatedSource{}
	for i, node := range candidates {
		if i >= f.opts.MaxFiles {
			break
		}

		content, _, err := client.RepositoryFiles.GetRawFile(projectPath, node.Path,
			&gitlab.GetRawFileOptions{Ref: gitlab.Ptr("main")}, gitlab.WithContext(ctx))
		if err != nil {
			logger.Warn().Err(err).Str("path", node.Path).Msg("could not download gitlab file")
			continue
		}
		if !utf8.Valid(content) {
			logger.Warn().Str("path", node.Path).Msg("skipping non-utf8 file")
			continue
		}

		src.Add(node.Path, string(content))
	}
	return src, nil
}

func responseStatus(resp *gitlab.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}
