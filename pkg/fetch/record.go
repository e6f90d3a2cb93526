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
	"path"
	"strings"
)

// 🏷️ Provider identifies a Git hosting service.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"
)

// 📦 Repo identifies a repository on a hosting provider. It is derived once
// per Fetch call from the input URL and never mutated afterwards.
type Repo struct {
	Owner    string   // Repository owner or group
	Name     string   // Repository name, trailing ".git" stripped
	Provider Provider // Hosting provider
}

// 📝 String returns the owner/name form used in log lines and messages.
func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// 📄 FileRecord is one successfully retrieved code file. Content is always
// valid UTF-8 text; binary or undecodable files are dropped before a record
// is ever created.
type FileRecord struct {
	Name    string `json:"name"` // Basename of the file
	Path    string `json:"path"` // Path relative to the repository root
	Content string `json:"content"`
}

// 🧺 AggregatedSource is the unit handed onward to the analyzer: every
// retrieved file, in discovery order, plus their concatenation.
type AggregatedSource struct {
	Files []FileRecord `json:"files"`
}

// ➕ Add appends a file record, deriving the basename from the path.
func (s *AggregatedSource) Add(filePath, content string) {
	s.Files = append(s.Files, FileRecord{
		Name:    path.Base(filePath),
		Path:    filePath,
		Content: content,
	})
}

// 📝 Concatenated joins every file's content, each prefixed by a
// "// File: <path>" marker line and separated by a blank line.
func (s *AggregatedSource) Concatenated() string {
	var b strings.Builder
	for _, f := range s.Files {
		b.WriteString("\n\n// File: ")
		b.WriteString(f.Path)
		b.WriteString("\n")
		b.WriteString(f.Content)
	}
	return b.String()
}

// 🔢 Len returns the number of retrieved files.
func (s *AggregatedSource) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Files)
}
