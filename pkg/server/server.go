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

// Package server provides the HTTP API: repository analysis, code uploads,
// test generation, report export, and artifact download.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/repolens/repolens/pkg/analyzer"
	"github.com/repolens/repolens/pkg/cache"
	"github.com/repolens/repolens/pkg/fetch"
	"github.com/repolens/repolens/pkg/report"
	"github.com/repolens/repolens/pkg/upload"
)

// maxUploadSize caps request bodies the same way the upload form does.
const maxUploadSize = "50M"

// Fetcher retrieves repository source. Satisfied by *fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, gitURL, token string) (*fetch.AggregatedSource, error)
}

// Analyzer runs analysis and test generation. Satisfied by *analyzer.Service.
type Analyzer interface {
	Available() bool
	Analyze(ctx context.Context, src *fetch.AggregatedSource) (*analyzer.Analysis, error)
	GenerateTests(ctx context.Context, src *fetch.AggregatedSource) ([]analyzer.TestFile, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// Fallback tokens used when a request carries none.
	GitHubToken string
	GitLabToken string
}

// Deps are the collaborators the handlers delegate to.
type Deps struct {
	Fetcher   Fetcher
	Uploads   *upload.Processor
	Analyzer  Analyzer
	Sessions  *cache.Store
	Artifacts *report.ArtifactStore
	Renderer  report.Renderer
	Logger    zerolog.Logger
}

// Server provides the HTTP endpoints.
type Server struct {
	echo *echo.Echo
	cfg  Config
	deps Deps
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if deps.Uploads == nil {
		return nil, errors.New("upload processor is required")
	}
	if deps.Analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if deps.Artifacts == nil {
		return nil, errors.New("artifact store is required")
	}
	if deps.Renderer == nil {
		return nil, errors.New("report renderer is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxUploadSize))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Make the request logger reachable via zerolog.Ctx downstream.
			logger := deps.Logger.With().
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Logger()
			c.SetRequest(c.Request().WithContext(logger.WithContext(c.Request().Context())))

			err := next(c)

			logger.Info().
				Str("method", c.Request().Method).
				Str("uri", c.Request().RequestURI).
				Int("status", c.Response().Status).
				Dur("duration", time.Since(start)).
				Msg("http request")

			return err
		}
	})

	s := &Server{
		echo: e,
		cfg:  cfg,
		deps: deps,
	}
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/analyze", s.handleAnalyze)
	s.echo.POST("/upload", s.handleUpload)
	s.echo.POST("/generate-tests", s.handleGenerateTests)
	s.echo.POST("/generate-document", s.handleGenerateDocument)
	s.echo.GET("/download/:filename", s.handleDownload)
}

// Handler exposes the router for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return errors.Errorf("starting http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return errors.Errorf("shutting down http server: %w", err)
	}
	return nil
}
