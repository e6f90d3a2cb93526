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

import "strings"

// 🚫 skipFragments excludes VCS metadata, dependency and build-output
// directories, IDE metadata, lockfiles, READMEs, and versioned-test/archive/
// spec paths. Matching is plain substring over the lowercased path: coarse on
// purpose, and known to false-positive on names like "SpecialCase.java"
// (contains "spec") or "layout.js" (contains "out"). That imprecision is part
// of the contract — callers rely on it being cheap and predictable, not on it
// being a parser.
var skipFragments = []string{
	"test_v", "archive", "spec", ".git", "node_modules", "target", "build",
	".gradle", ".maven", "dist", "out", "__pycache__", ".idea",
	"package-lock.json", "yarn.lock", ".gitignore", "readme",
}

// ✅ codeExtensions is the fixed allow-list of analyzable source extensions.
var codeExtensions = []string{
	".py", ".java", ".js", ".ts", ".cpp", ".c", ".cs",
	".php", ".rb", ".go", ".kt", ".swift", ".scala", ".rs",
}

// 🔍 IsCodeFile reports whether path names an analyzable source file.
// Exclusion wins over extension: a path containing any skip fragment is never
// code, whatever it ends with.
func IsCodeFile(path string) bool {
	if path == "" {
		return false
	}

	lower := strings.ToLower(path)
	for _, frag := range skipFragments {
		if strings.Contains(lower, frag) {
			return false
		}
	}

	for _, ext := range codeExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
