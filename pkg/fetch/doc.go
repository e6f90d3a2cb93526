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

// Package fetch retrieves the analyzable source of a remote Git repository.
//
// A Fetcher turns a repository URL into an AggregatedSource: the set of code
// files it could retrieve, plus their concatenation. GitHub repositories are
// fetched through an ordered chain of independent strategies (REST API, raw
// content host, branch archive) — the first strategy that yields at least one
// file wins, and a strategy that errors or comes back empty only causes
// fallback to the next one. GitLab repositories use a single API-based
// strategy.
//
// The engine is deliberately best-effort below the strategy level: a single
// file that fails to download or is not valid UTF-8 is skipped with a
// warning, never fatal. Only exhaustion of the whole chain surfaces to the
// caller, as an *UnavailableError carrying the per-strategy reasons.
package fetch
