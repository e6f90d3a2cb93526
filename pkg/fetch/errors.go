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
	"fmt"
	"strings"
	"time"
)

// ❌ InvalidURLError means the input URL did not contain an owner and a
// repository segment.
type InvalidURLError struct {
	URL string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid repository URL %q: expected <host>/<owner>/<repo>", e.URL)
}

// ❌ UnsupportedProviderError means the URL host is neither GitHub nor GitLab.
type UnsupportedProviderError struct {
	Host string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported git provider %q: only github.com and gitlab.com are supported", e.Host)
}

// ❌ NotFoundError means the provider answered 404: the repository does not
// exist, or it is private and the request was not authorized to see it.
type NotFoundError struct {
	Repo Repo
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("repository %s not found or not accessible", e.Repo)
}

// ⏳ RateLimitError means the provider rejected the request because the API
// quota is exhausted. Reset is the provider-reported time the quota renews,
// zero when the provider did not say.
type RateLimitError struct {
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return "api rate limit exceeded: wait and retry"
	}
	return fmt.Sprintf("api rate limit exceeded: resets at %s", e.Reset.Format(time.RFC3339))
}

// 🚫 ForbiddenError means the provider answered 403 with quota remaining:
// the repository is most likely private.
type ForbiddenError struct {
	Repo Repo
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("access to %s forbidden: repository might be private", e.Repo)
}

// ❌ APIError is any other non-200 answer from a provider API.
type APIError struct {
	Status int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider api error: status %d", e.Status)
}

// ❌ UnavailableError means every strategy in the chain was tried and none
// yielded a single file. Reasons holds one line per attempted strategy.
type UnavailableError struct {
	Repo    Repo
	Reasons []string
}

func (e *UnavailableError) Error() string {
	msg := fmt.Sprintf("all access methods failed for %s: repository might be private or rate limit exceeded", e.Repo)
	if len(e.Reasons) > 0 {
		msg += " (" + strings.Join(e.Reasons, "; ") + ")"
	}
	return msg
}

// ❌ GitLabProjectError means the GitLab project or its tree could not be
// read. Stage is "project" or "tree".
type GitLabProjectError struct {
	Status int
	Stage  string
}

func (e *GitLabProjectError) Error() string {
	return fmt.Sprintf("gitlab %s not accessible: status %d", e.Stage, e.Status)
}
