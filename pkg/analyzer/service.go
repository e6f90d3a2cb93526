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

// Package analyzer runs LLM-based quality/security/coverage analysis and
// unit-test generation over aggregated source. The model is reached through
// langchaingo's openai-compatible client, so any hosted endpoint speaking
// that protocol works.
//
// A Service without credentials is a valid, deliberately unavailable
// service: its methods return ErrUnavailable instead of silently degrading.
package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"gitlab.com/tozd/go/errors"

	"github.com/repolens/repolens/pkg/fetch"
)

// ErrUnavailable is returned when no model is configured. Handlers surface
// it as a 503, never as fabricated analysis output.
var ErrUnavailable = errors.New("analysis service unavailable: no model configured")

// promptCodeLimit caps how much concatenated source rides in one prompt.
const promptCodeLimit = 12000

// Config selects the hosted model.
type Config struct {
	BaseURL string // openai-compatible endpoint, empty for the default
	Model   string // model name, e.g. "gpt-4o-mini"
	APIKey  string // empty means the service starts unavailable
}

// Analysis is the structured result of one analysis run.
type Analysis struct {
	QualityScore     int               `json:"quality_score"`
	Summary          string            `json:"summary"`
	DetailedAnalysis string            `json:"detailed_analysis"`
	Sections         map[string]string `json:"sections"`
}

// TestFile is one generated unit-test skeleton.
type TestFile struct {
	Filename     string `json:"filename"`
	Content      string `json:"content"`
	OriginalFile string `json:"original_file,omitempty"`
}

// Service talks to the hosted model.
type Service struct {
	llm llms.Model
}

// New creates a Service. A missing API key yields an unavailable service,
// not an error: availability is the caller's runtime concern, misconfigured
// endpoints are a construction error.
func New(cfg Config) (*Service, error) {
	if cfg.APIKey == "" {
		return &Service{}, nil
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
	}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, errors.Errorf("creating llm client: %w", err)
	}
	return &Service{llm: llm}, nil
}

// NewWithModel wires an explicit model. Used by tests and callers that bring
// their own langchaingo model.
func NewWithModel(llm llms.Model) *Service {
	return &Service{llm: llm}
}

// Available reports whether a model is configured.
func (s *Service) Available() bool {
	return s.llm != nil
}

// Analyze runs the full quality/security/coverage analysis over src.
func (s *Service) Analyze(ctx context.Context, src *fetch.AggregatedSource) (*Analysis, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}

	logger := zerolog.Ctx(ctx)
	prompt := buildAnalysisPrompt(src)

	logger.Debug().Int("files", src.Len()).Int("prompt_len", len(prompt)).Msg("requesting analysis")

	text, err := llms.GenerateFromSinglePrompt(ctx, s.llm, prompt)
	if err != nil {
		return nil, errors.Errorf("generating analysis: %w", err)
	}

	return parseAnalysisResponse(text), nil
}

// analysisSections maps the response headings to their structured keys.
var analysisSections = []struct {
	key     string
	heading string
}{
	{"quality_assessment", "CODE QUALITY ASSESSMENT"},
	{"complexity_analysis", "COMPLEXITY ANALYSIS"},
	{"coverage_gaps", "TEST COVERAGE GAPS"},
	{"potential_issues", "POTENTIAL ISSUES"},
	{"security_vulnerabilities", "SECURITY VULNERABILITIES"},
	{"performance_considerations", "PERFORMANCE CONSIDERATIONS"},
	{"design_patterns", "DESIGN PATTERNS"},
	{"maintainability", "MAINTAINABILITY"},
}

// buildAnalysisPrompt assembles the codebase overview plus the (truncated)
// concatenated source and the exact section format the parser expects.
func buildAnalysisPrompt(src *fetch.AggregatedSource) string {
	extensions := map[string]bool{}
	var names []string
	for i, f := range src.Files {
		if idx := strings.LastIndex(f.Name, "."); idx >= 0 {
			extensions[f.Name[idx+1:]] = true
		}
		if i < 10 {
			names = append(names, f.Name)
		}
	}
	var extList []string
	for ext := range extensions {
		extList = append(extList, ext)
	}
	sort.Strings(extList)

	nameList := strings.Join(names, ", ")
	if src.Len() > 10 {
		nameList += "..."
	}

	code := src.Concatenated()
	if len(code) > promptCodeLimit {
		code = code[:promptCodeLimit]
	}

	var b strings.Builder
	b.WriteString("You are an expert software architect and code quality analyst. ")
	b.WriteString("Perform a comprehensive analysis of the following codebase.\n\n")
	fmt.Fprintf(&b, "CODEBASE OVERVIEW:\n- Total files: %d\n- File types: %s\n- Files: %s\n\n",
		src.Len(), strings.Join(extList, ", "), nameList)
	b.WriteString("CODE TO ANALYZE:\n")
	b.WriteString(code)
	b.WriteString("\n\nPROVIDE ANALYSIS IN EXACTLY THIS FORMAT WITH CLEAR SECTIONS:\n\n")
	for i, section := range analysisSections {
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, section.heading)
	}
	b.WriteString("\nStart with an overall quality rating line in the form \"Score: <0-100>\".\n")
	b.WriteString("Format each section with clear bullet points. Use simple, direct language without excessive formatting.\n")
	return b.String()
}

var (
	scoreRe           = regexp.MustCompile(`Score:\s*(\d+)`)
	sectionBoundaryRe = regexp.MustCompile(`\d+\.\s*\*\*`)
)

// parseAnalysisResponse splits the model's answer into the known sections
// and pulls the quality score out. Parsing is heuristic on purpose: a
// response that ignores the format still produces a usable Analysis with the
// default score.
func parseAnalysisResponse(text string) *Analysis {
	score := 75
	if m := scoreRe.FindStringSubmatch(text); m != nil {
		if parsed, err := strconv.Atoi(m[1]); err == nil {
			score = parsed
		}
	}

	sections := map[string]string{}
	for _, section := range analysisSections {
		sections[section.key] = extractSection(text, section.heading)
	}

	return &Analysis{
		QualityScore:     score,
		Summary:          fmt.Sprintf("Code analysis completed with quality score: %d/100", score),
		DetailedAnalysis: text,
		Sections:         sections,
	}
}

// extractSection returns the text from the heading up to the next numbered
// bold heading, or a placeholder when the heading never appears.
func extractSection(text, heading string) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(heading))
	if idx < 0 {
		return heading + ": No specific issues found."
	}

	rest := text[idx:]
	if loc := sectionBoundaryRe.FindStringIndex(rest[len(heading):]); loc != nil {
		return strings.TrimSpace(rest[:len(heading)+loc[0]])
	}
	return strings.TrimSpace(rest)
}
