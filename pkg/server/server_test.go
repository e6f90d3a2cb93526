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
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repolens/repolens/pkg/analyzer"
	"github.com/repolens/repolens/pkg/cache"
	"github.com/repolens/repolens/pkg/fetch"
	"github.com/repolens/repolens/pkg/report"
	"github.com/repolens/repolens/pkg/upload"
)

type stubFetcher struct {
	src      *fetch.AggregatedSource
	err      error
	gotURL   string
	gotToken string
}

func (f *stubFetcher) Fetch(ctx context.Context, gitURL, token string) (*fetch.AggregatedSource, error) {
	f.gotURL = gitURL
	f.gotToken = token
	if f.err != nil {
		return nil, f.err
	}
	return f.src, nil
}

type stubAnalyzer struct {
	unavailable bool
	analysis    *analyzer.Analysis
	analyzeErr  error
	tests       []analyzer.TestFile
	testsErr    error
}

func (a *stubAnalyzer) Available() bool { return !a.unavailable }

func (a *stubAnalyzer) Analyze(ctx context.Context, src *fetch.AggregatedSource) (*analyzer.Analysis, error) {
	if a.analyzeErr != nil {
		return nil, a.analyzeErr
	}
	return a.analysis, nil
}

func (a *stubAnalyzer) GenerateTests(ctx context.Context, src *fetch.AggregatedSource) ([]analyzer.TestFile, error) {
	if a.testsErr != nil {
		return nil, a.testsErr
	}
	return a.tests, nil
}

func sampleAnalysis() *analyzer.Analysis {
	return &analyzer.Analysis{
		QualityScore: 82,
		Summary:      "Code analysis completed with quality score: 82/100",
		Sections:     map[string]string{"quality_assessment": "solid"},
	}
}

func sampleSource() *fetch.AggregatedSource {
	src := &fetch.AggregatedSource{}
	src.Add("src/app.py", "print('x')")
	return src
}

type testServer struct {
	*Server
	fetcher  *stubFetcher
	analyzer *stubAnalyzer
	sessions *cache.Store
}

func newTestServer(t *testing.T, fetcher *stubFetcher, anl *stubAnalyzer) *testServer {
	t.Helper()

	if fetcher == nil {
		fetcher = &stubFetcher{src: sampleSource()}
	}
	if anl == nil {
		anl = &stubAnalyzer{analysis: sampleAnalysis()}
	}

	sessions := cache.New(0)
	srv, err := NewServer(Config{Host: "127.0.0.1", Port: 0, GitHubToken: "cfg-github-token"}, Deps{
		Fetcher:   fetcher,
		Uploads:   upload.NewProcessor(nil),
		Analyzer:  anl,
		Sessions:  sessions,
		Artifacts: report.NewArtifactStore(0),
		Renderer:  report.MarkdownRenderer{},
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err, "server construction should succeed")

	return &testServer{Server: srv, fetcher: fetcher, analyzer: anl, sessions: sessions}
}

func (ts *testServer) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err, "marshaling request body")

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "decoding response body")
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "health should be ok")
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status, "status should be healthy")
	assert.NotEmpty(t, resp.Timestamp, "timestamp should be set")
}

func TestAnalyzeRepository(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.postJSON(t, "/analyze", AnalyzeRequest{GitURL: "https://github.com/acme/widgets"})

	require.Equal(t, http.StatusOK, rec.Code, "analysis should succeed: %s", rec.Body.String())
	resp := decode[AnalyzeResponse](t, rec)
	assert.True(t, resp.Success, "response should report success")
	assert.Equal(t, 82, resp.Analysis.QualityScore, "analysis should be passed through")
	assert.Equal(t, 1, resp.FileCount, "file count should match the fetched source")
	assert.Len(t, resp.CacheKey, 64, "cache key should be a content digest")

	assert.Equal(t, "https://github.com/acme/widgets", ts.fetcher.gotURL, "fetcher should get the url")
	assert.NotNil(t, ts.sessions.Get(resp.CacheKey), "session should be cached for follow-ups")
}

func TestAnalyzeUsesFallbackToken(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.postJSON(t, "/analyze", AnalyzeRequest{GitURL: "https://github.com/acme/widgets"})
	require.Equal(t, http.StatusOK, rec.Code, "analysis should succeed")

	assert.Equal(t, "cfg-github-token", ts.fetcher.gotToken, "configured token should back requests without one")
}

func TestAnalyzeRequestTokenWins(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.postJSON(t, "/analyze", AnalyzeRequest{
		GitURL:      "https://github.com/acme/widgets",
		AccessToken: "user-token",
	})
	require.Equal(t, http.StatusOK, rec.Code, "analysis should succeed")

	assert.Equal(t, "user-token", ts.fetcher.gotToken, "request token should beat the configured one")
}

func TestAnalyzeManualCode(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.postJSON(t, "/analyze", AnalyzeRequest{ManualCode: "public class Foo {}"})

	require.Equal(t, http.StatusOK, rec.Code, "paste analysis should succeed")
	resp := decode[AnalyzeResponse](t, rec)
	assert.Equal(t, 1, resp.FileCount, "paste should count as one file")
	assert.Empty(t, ts.fetcher.gotURL, "fetcher should not run for pasted code")
}

func TestAnalyzeRejectsEmptyRequest(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.postJSON(t, "/analyze", AnalyzeRequest{})

	require.Equal(t, http.StatusBadRequest, rec.Code, "empty requests should be rejected")
	resp := decode[errorBody](t, rec)
	assert.Equal(t, "No code provided for analysis", resp.Error, "error should name the problem")
}

func TestAnalyzeFetchErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "not_found",
			err:        &fetch.NotFoundError{Repo: fetch.Repo{Owner: "acme", Name: "gone"}},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "rate_limited",
			err:        &fetch.RateLimitError{},
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "forbidden",
			err:        &fetch.ForbiddenError{},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "unsupported_provider",
			err:        &fetch.UnsupportedProviderError{Host: "bitbucket.org"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "all_strategies_exhausted",
			err:        &fetch.UnavailableError{Repo: fetch.Repo{Owner: "acme", Name: "widgets"}},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &stubFetcher{err: tt.err}, nil)

			rec := ts.postJSON(t, "/analyze", AnalyzeRequest{GitURL: "https://github.com/acme/widgets"})

			assert.Equal(t, tt.wantStatus, rec.Code, "status should match the failure class")
			resp := decode[errorBody](t, rec)
			assert.Contains(t, resp.Error, "Failed to fetch repository", "error should carry the context")
		})
	}
}

func TestAnalyzeServiceUnavailable(t *testing.T) {
	ts := newTestServer(t, nil, &stubAnalyzer{unavailable: true})

	rec := ts.postJSON(t, "/analyze", AnalyzeRequest{ManualCode: "print('x')"})

	require.Equal(t, http.StatusServiceUnavailable, rec.Code, "missing model should be a 503")
}

func multipartBody(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := w.CreateFormFile("file", name)
		require.NoError(t, err, "creating form file")
		_, err = part.Write(data)
		require.NoError(t, err, "writing form file")
	}
	require.NoError(t, w.Close(), "closing multipart writer")
	return &buf, w.FormDataContentType()
}

func TestUpload(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	body, contentType := multipartBody(t, map[string][]byte{
		"app.py":    []byte("print('x')"),
		"notes.txt": []byte("not code"),
	})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echoHeaderContentType, contentType)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "upload should succeed: %s", rec.Body.String())
	resp := decode[AnalyzeResponse](t, rec)
	assert.True(t, resp.Success, "response should report success")
	assert.Equal(t, 1, resp.FileCount, "only the code file should count")
	assert.NotEmpty(t, resp.CacheKey, "session should be opened")
}

func TestUploadRejectsMissingFile(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(""))
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code, "missing multipart body should be rejected")
}

func TestUploadRejectsNonCodeOnly(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	body, contentType := multipartBody(t, map[string][]byte{"notes.txt": []byte("hi")})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echoHeaderContentType, contentType)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code, "upload with no code files should be rejected")
	resp := decode[errorBody](t, rec)
	assert.Equal(t, "No valid code files found in upload", resp.Error, "error should name the problem")
}

func TestGenerateTestsFlow(t *testing.T) {
	anl := &stubAnalyzer{
		analysis: sampleAnalysis(),
		tests: []analyzer.TestFile{
			{Filename: "test_app.py", Content: "def test_run(): pass", OriginalFile: "app.py"},
		},
	}
	ts := newTestServer(t, nil, anl)

	analyzeRec := ts.postJSON(t, "/analyze", AnalyzeRequest{ManualCode: "print('x')"})
	require.Equal(t, http.StatusOK, analyzeRec.Code, "analysis should succeed")
	key := decode[AnalyzeResponse](t, analyzeRec).CacheKey

	rec := ts.postJSON(t, "/generate-tests", SessionRequest{CacheKey: key})
	require.Equal(t, http.StatusOK, rec.Code, "test generation should succeed: %s", rec.Body.String())

	resp := decode[GenerateTestsResponse](t, rec)
	assert.True(t, resp.Success, "response should report success")
	assert.Equal(t, 1, resp.TotalFiles, "one test file expected")
	require.Len(t, resp.TestFiles, 1, "test file summary expected")
	assert.Equal(t, "test_app.py", resp.TestFiles[0].Filename, "filename should be reported")
	assert.Equal(t, len("def test_run(): pass"), resp.TestFiles[0].Size, "size should be reported")
	require.True(t, strings.HasPrefix(resp.DownloadURL, "/download/"), "download url should point at the artifact")

	// The artifact must be downloadable.
	dlReq := httptest.NewRequest(http.MethodGet, resp.DownloadURL, nil)
	dlRec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(dlRec, dlReq)

	require.Equal(t, http.StatusOK, dlRec.Code, "artifact should download")
	assert.Equal(t, "application/zip", dlRec.Header().Get("Content-Type"), "zip content type expected")
	assert.Contains(t, dlRec.Header().Get("Content-Disposition"), "attachment", "download should be an attachment")
}

func TestGenerateTestsUnknownSession(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.postJSON(t, "/generate-tests", SessionRequest{CacheKey: "nope"})

	require.Equal(t, http.StatusBadRequest, rec.Code, "unknown sessions should be rejected")
	resp := decode[errorBody](t, rec)
	assert.Equal(t, "No analysis data found. Please analyze code first.", resp.Error, "error should instruct the user")
}

func TestGenerateDocumentFlow(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	analyzeRec := ts.postJSON(t, "/analyze", AnalyzeRequest{ManualCode: "print('x')"})
	require.Equal(t, http.StatusOK, analyzeRec.Code, "analysis should succeed")
	key := decode[AnalyzeResponse](t, analyzeRec).CacheKey

	rec := ts.postJSON(t, "/generate-document", SessionRequest{CacheKey: key})
	require.Equal(t, http.StatusOK, rec.Code, "document generation should succeed: %s", rec.Body.String())

	resp := decode[GenerateDocumentResponse](t, rec)
	assert.True(t, resp.Success, "response should report success")
	assert.Contains(t, resp.Filename, "Code_Analysis_Report_", "report naming convention expected")

	dlReq := httptest.NewRequest(http.MethodGet, resp.DownloadURL, nil)
	dlRec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(dlRec, dlReq)

	require.Equal(t, http.StatusOK, dlRec.Code, "report should download")
	assert.Contains(t, dlRec.Body.String(), "# Code Analysis Report", "report body expected")
}

func TestDownloadUnknownArtifact(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/download/missing.zip", nil)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code, "unknown artifacts should 404")
}

func TestDownloadRejectsTraversal(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/download/report..zip", nil)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code, "traversal attempts should be rejected")
}
