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

package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/repolens/repolens/pkg/analyzer"
	"github.com/repolens/repolens/pkg/cache"
	"github.com/repolens/repolens/pkg/fetch"
	"github.com/repolens/repolens/pkg/report"
	"github.com/repolens/repolens/pkg/upload"
)

// AnalyzeRequest is the request body for POST /analyze.
type AnalyzeRequest struct {
	GitURL      string `json:"git_url"`
	AccessToken string `json:"access_token"`
	ManualCode  string `json:"manual_code"`
}

// AnalyzeResponse is the response body for POST /analyze and POST /upload.
type AnalyzeResponse struct {
	Success   bool               `json:"success"`
	Analysis  *analyzer.Analysis `json:"analysis"`
	FileCount int                `json:"file_count"`
	CacheKey  string             `json:"cache_key"`
}

// SessionRequest names a cached analysis session by its key.
type SessionRequest struct {
	CacheKey string `json:"cache_key"`
}

// TestFileInfo summarizes one generated test file.
type TestFileInfo struct {
	Filename string `json:"filename"`
	Size     int    `json:"size"`
}

// GenerateTestsResponse is the response body for POST /generate-tests.
type GenerateTestsResponse struct {
	Success     bool           `json:"success"`
	TestFiles   []TestFileInfo `json:"test_files"`
	DownloadURL string         `json:"download_url"`
	TotalFiles  int            `json:"total_files"`
}

// GenerateDocumentResponse is the response body for POST /generate-document.
type GenerateDocumentResponse struct {
	Success     bool   `json:"success"`
	DownloadURL string `json:"download_url"`
	Filename    string `json:"filename"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// errorBody is the uniform error payload.
type errorBody struct {
	Error string `json:"error"`
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorBody{Error: msg})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// handleAnalyze fetches source (from a repository URL or pasted code),
// analyzes it, and opens a cached session for follow-up operations.
func (s *Server) handleAnalyze(c echo.Context) error {
	ctx := c.Request().Context()
	logger := zerolog.Ctx(ctx)

	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}

	gitURL := strings.TrimSpace(req.GitURL)
	manualCode := strings.TrimSpace(req.ManualCode)

	var src *fetch.AggregatedSource
	switch {
	case gitURL != "":
		logger.Info().Str("git_url", gitURL).Msg("fetching repository")

		token := strings.TrimSpace(req.AccessToken)
		if token == "" {
			token = s.fallbackToken(gitURL)
		}

		fetched, err := s.deps.Fetcher.Fetch(ctx, gitURL, token)
		if err != nil {
			return s.fetchError(c, err)
		}
		src = fetched

	case manualCode != "":
		src = s.deps.Uploads.ProcessPaste(manualCode)

	default:
		return jsonError(c, http.StatusBadRequest, "No code provided for analysis")
	}

	return s.analyzeAndCache(c, src)
}

// handleUpload analyzes uploaded files. Zips are expanded; non-code and
// undecodable files are dropped.
func (s *Server) handleUpload(c echo.Context) error {
	ctx := c.Request().Context()
	logger := zerolog.Ctx(ctx)

	form, err := c.MultipartForm()
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "No file provided")
	}

	headers := form.File["file"]
	if len(headers) == 0 || headers[0].Filename == "" {
		return jsonError(c, http.StatusBadRequest, "No file selected")
	}

	logger.Info().Int("files", len(headers)).Msg("processing upload")

	files := make([]upload.File, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return jsonError(c, http.StatusBadRequest, fmt.Sprintf("File processing failed: %v", err))
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return jsonError(c, http.StatusBadRequest, fmt.Sprintf("File processing failed: %v", err))
		}
		files = append(files, upload.File{Name: header.Filename, Data: data})
	}

	src, err := s.deps.Uploads.ProcessFiles(ctx, files)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, fmt.Sprintf("File processing failed: %v", err))
	}
	if src.Len() == 0 {
		return jsonError(c, http.StatusBadRequest, "No valid code files found in upload")
	}

	return s.analyzeAndCache(c, src)
}

// analyzeAndCache runs the analysis and opens the session both entry points
// share.
func (s *Server) analyzeAndCache(c echo.Context, src *fetch.AggregatedSource) error {
	ctx := c.Request().Context()
	logger := zerolog.Ctx(ctx)

	if !s.deps.Analyzer.Available() {
		return jsonError(c, http.StatusServiceUnavailable, "Analysis service unavailable")
	}

	analysis, err := s.deps.Analyzer.Analyze(ctx, src)
	if err != nil {
		logger.Error().Err(err).Msg("analysis failed")
		return jsonError(c, http.StatusInternalServerError, fmt.Sprintf("Analysis failed: %v", err))
	}

	key := cache.Key(src)
	s.deps.Sessions.Put(key, &cache.Entry{Source: src, Analysis: analysis})

	logger.Info().Str("cache_key", key).Int("files", src.Len()).Msg("analysis complete")

	return c.JSON(http.StatusOK, AnalyzeResponse{
		Success:   true,
		Analysis:  analysis,
		FileCount: src.Len(),
		CacheKey:  key,
	})
}

// handleGenerateTests generates unit tests for a cached session and packages
// them into a downloadable zip.
func (s *Server) handleGenerateTests(c echo.Context) error {
	ctx := c.Request().Context()
	logger := zerolog.Ctx(ctx)

	entry, errResp := s.session(c)
	if entry == nil {
		return errResp
	}

	if !s.deps.Analyzer.Available() {
		return jsonError(c, http.StatusServiceUnavailable, "Analysis service unavailable")
	}

	logger.Info().Int("files", entry.Source.Len()).Msg("generating tests")

	testFiles, err := s.deps.Analyzer.GenerateTests(ctx, entry.Source)
	if err != nil {
		logger.Error().Err(err).Msg("test generation failed")
		return jsonError(c, http.StatusInternalServerError, fmt.Sprintf("Test generation failed: %v", err))
	}
	if len(testFiles) == 0 {
		return jsonError(c, http.StatusBadRequest, "No test files were generated")
	}

	artifact, err := report.PackageTests(testFiles)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, fmt.Sprintf("Failed to create test package: %v", err))
	}
	s.deps.Artifacts.Put(artifact)

	infos := make([]TestFileInfo, 0, len(testFiles))
	for _, tf := range testFiles {
		infos = append(infos, TestFileInfo{Filename: tf.Filename, Size: len(tf.Content)})
	}

	return c.JSON(http.StatusOK, GenerateTestsResponse{
		Success:     true,
		TestFiles:   infos,
		DownloadURL: "/download/" + artifact.Name,
		TotalFiles:  len(testFiles),
	})
}

// handleGenerateDocument renders the analysis report for a cached session.
func (s *Server) handleGenerateDocument(c echo.Context) error {
	ctx := c.Request().Context()
	logger := zerolog.Ctx(ctx)

	entry, errResp := s.session(c)
	if entry == nil {
		return errResp
	}

	logger.Info().Int("files", entry.Source.Len()).Msg("generating analysis document")

	artifact, err := s.deps.Renderer.Render(entry.Analysis, entry.Source)
	if err != nil {
		logger.Error().Err(err).Msg("document generation failed")
		return jsonError(c, http.StatusInternalServerError, fmt.Sprintf("Document generation failed: %v", err))
	}
	s.deps.Artifacts.Put(artifact)

	return c.JSON(http.StatusOK, GenerateDocumentResponse{
		Success:     true,
		DownloadURL: "/download/" + artifact.Name,
		Filename:    artifact.Name,
	})
}

// handleDownload serves a stored artifact as an attachment.
func (s *Server) handleDownload(c echo.Context) error {
	name := c.Param("filename")
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return jsonError(c, http.StatusBadRequest, "Invalid filename")
	}

	artifact, ok := s.deps.Artifacts.Get(name)
	if !ok {
		return jsonError(c, http.StatusNotFound, "File not found")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", artifact.Name))
	return c.Blob(http.StatusOK, artifact.ContentType, artifact.Data)
}

// session resolves the cache_key of a follow-up request. A nil entry means
// the error response was already produced.
func (s *Server) session(c echo.Context) (*cache.Entry, error) {
	var req SessionRequest
	if err := c.Bind(&req); err != nil {
		return nil, jsonError(c, http.StatusBadRequest, "invalid request body")
	}

	if req.CacheKey == "" {
		return nil, jsonError(c, http.StatusBadRequest, "No analysis data found. Please analyze code first.")
	}
	entry := s.deps.Sessions.Get(req.CacheKey)
	if entry == nil {
		return nil, jsonError(c, http.StatusBadRequest, "No analysis data found. Please analyze code first.")
	}
	return entry, nil
}

// fallbackToken picks the configured token matching the URL's provider.
func (s *Server) fallbackToken(gitURL string) string {
	repo, err := fetch.ParseRepoURL(gitURL)
	if err != nil {
		return ""
	}
	switch repo.Provider {
	case fetch.ProviderGitLab:
		return s.cfg.GitLabToken
	default:
		return s.cfg.GitHubToken
	}
}

// fetchError maps fetch failures onto HTTP statuses.
func (s *Server) fetchError(c echo.Context, err error) error {
	msg := fmt.Sprintf("Failed to fetch repository: %v", err)

	var (
		invalidURL  *fetch.InvalidURLError
		unsupported *fetch.UnsupportedProviderError
		notFound    *fetch.NotFoundError
		rateLimit   *fetch.RateLimitError
		forbidden   *fetch.ForbiddenError
		unavailable *fetch.UnavailableError
	)
	switch {
	case errors.As(err, &invalidURL), errors.As(err, &unsupported):
		return jsonError(c, http.StatusBadRequest, msg)
	case errors.As(err, &notFound):
		return jsonError(c, http.StatusNotFound, msg)
	case errors.As(err, &rateLimit):
		return jsonError(c, http.StatusTooManyRequests, msg)
	case errors.As(err, &forbidden):
		return jsonError(c, http.StatusForbidden, msg)
	case errors.As(err, &unavailable):
		return jsonError(c, http.StatusBadGateway, msg)
	default:
		return jsonError(c, http.StatusBadRequest, msg)
	}
}
