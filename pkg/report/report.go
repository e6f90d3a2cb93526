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

// Package report turns analysis results into downloadable artifacts: a
// rendered analysis document and a zip package of generated test files.
// Artifacts live in a bounded in-memory store and are addressed by the
// filename the client got back in its download URL.
package report

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gitlab.com/tozd/go/errors"

	"github.com/repolens/repolens/pkg/analyzer"
	"github.com/repolens/repolens/pkg/fetch"
)

// Renderer produces the analysis document. Implementations choose the
// format; the store and handlers only care about bytes and a filename.
type Renderer interface {
	Render(analysis *analyzer.Analysis, src *fetch.AggregatedSource) (Artifact, error)
}

// sectionOrder fixes the document layout regardless of map iteration.
var sectionOrder = []struct {
	key     string
	heading string
}{
	{"quality_assessment", "Code Quality Assessment"},
	{"complexity_analysis", "Complexity Analysis"},
	{"coverage_gaps", "Test Coverage Gaps"},
	{"potential_issues", "Potential Issues & Bugs"},
	{"security_vulnerabilities", "Security Vulnerabilities"},
	{"performance_considerations", "Performance Considerations"},
	{"design_patterns", "Design Patterns & Architecture"},
	{"maintainability", "Maintainability Analysis"},
}

// MarkdownRenderer renders the analysis report as a Markdown document.
type MarkdownRenderer struct{}

// Render builds the full report: title, metadata, graded executive summary,
// the eight analysis sections in fixed order, and the file inventory.
func (MarkdownRenderer) Render(analysis *analyzer.Analysis, src *fetch.AggregatedSource) (Artifact, error) {
	if analysis == nil {
		return Artifact{}, errors.New("rendering report: no analysis data")
	}

	now := time.Now()

	var b strings.Builder
	b.WriteString("# Code Analysis Report\n\n")
	b.WriteString("Comprehensive Code Quality Assessment & Recommendations\n\n")

	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Generated On | %s |\n", now.Format("January 2, 2006 at 3:04 PM"))
	fmt.Fprintf(&b, "| Quality Score | %d/100 |\n", analysis.QualityScore)
	fmt.Fprintf(&b, "| Files Analyzed | %d |\n", src.Len())
	b.WriteString("| Analysis Type | AI-Powered Comprehensive Assessment |\n\n")

	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&b, "**Overall Quality Score: %d/100 (%s)**\n\n", analysis.QualityScore, grade(analysis.QualityScore))
	if analysis.Summary != "" {
		b.WriteString(analysis.Summary + "\n\n")
	}

	b.WriteString("## Detailed Analysis\n\n")
	for i, section := range sectionOrder {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, section.heading)
		body := analysis.Sections[section.key]
		if body == "" {
			body = "No specific issues found."
		}
		b.WriteString(body + "\n\n")
	}

	b.WriteString("## Analyzed Files\n\n")
	paths := make([]string, 0, src.Len())
	for _, f := range src.Files {
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintf(&b, "- `%s`\n", p)
	}

	return Artifact{
		Name:        artifactName("Code_Analysis_Report", "md", now),
		ContentType: "text/markdown; charset=utf-8",
		Data:        []byte(b.String()),
		CreatedAt:   now,
	}, nil
}

// PackageTests zips the generated test files into one downloadable archive.
func PackageTests(files []analyzer.TestFile) (Artifact, error) {
	if len(files) == 0 {
		return Artifact{}, errors.New("packaging tests: no test files")
	}

	now := time.Now()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, tf := range files {
		entry, err := w.Create(tf.Filename)
		if err != nil {
			return Artifact{}, errors.Errorf("creating zip entry %s: %w", tf.Filename, err)
		}
		if _, err := entry.Write([]byte(tf.Content)); err != nil {
			return Artifact{}, errors.Errorf("writing zip entry %s: %w", tf.Filename, err)
		}
	}
	if err := w.Close(); err != nil {
		return Artifact{}, errors.Errorf("closing zip archive: %w", err)
	}

	return Artifact{
		Name:        artifactName("test_cases", "zip", now),
		ContentType: "application/zip",
		Data:        buf.Bytes(),
		CreatedAt:   now,
	}, nil
}

// grade buckets a score the same way the report colors it.
func grade(score int) string {
	switch {
	case score >= 80:
		return "Excellent"
	case score >= 60:
		return "Good"
	default:
		return "Needs Improvement"
	}
}

// artifactName builds a collision-free download name: timestamped like the
// originals people expect, plus a short random suffix so concurrent requests
// never overwrite each other.
func artifactName(prefix, ext string, now time.Time) string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("%s_%s_%s.%s", prefix, now.Format("20060102_150405"), suffix, ext)
}
