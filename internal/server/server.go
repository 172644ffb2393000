package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"course-rag/internal/models"
	"course-rag/internal/rag"
)

// Service is what the HTTP API needs from the RAG system.
type Service interface {
	Query(ctx context.Context, query, sessionID string) (models.Response, error)
	Stats(ctx context.Context) (models.CourseStats, error)
}

type QueryRequest struct {
	Query      string `json:"query"`
	SessionID  string `json:"session_id,omitempty"`
	RenderHTML bool   `json:"render_html,omitempty"`
}

type QueryResponse struct {
	Answer     string          `json:"answer"`
	AnswerHTML string          `json:"answer_html,omitempty"`
	Sources    []models.Source `json:"sources"`
	SessionID  string          `json:"session_id"`
}

type Server struct {
	echo *echo.Echo
	svc  Service
	md   goldmark.Markdown
}

func New(svc Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo: e,
		svc:  svc,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug().Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Dur("latency", v.Latency).Msg("Request")
			return nil
		},
	}))

	e.GET("/healthz", s.health)
	api := e.Group("/api")
	api.POST("/query", s.query)
	api.GET("/courses", s.courses)
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info().Msg("Shutting down HTTP server")
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/query
func (s *Server) query(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Query) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": rag.ErrEmptyQuery.Error()})
	}

	resp, err := s.svc.Query(c.Request().Context(), req.Query, req.SessionID)
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}

	out := QueryResponse{
		Answer:    resp.Answer,
		Sources:   resp.Sources,
		SessionID: resp.SessionID,
	}
	if out.Sources == nil {
		out.Sources = []models.Source{}
	}
	if req.RenderHTML {
		var buf bytes.Buffer
		if err := s.md.Convert([]byte(resp.Answer), &buf); err != nil {
			log.Warn().Err(err).Msg("Failed to render answer as HTML")
		} else {
			out.AnswerHTML = buf.String()
		}
	}
	return c.JSON(http.StatusOK, out)
}

// GET /api/courses
func (s *Server) courses(c echo.Context) error {
	stats, err := s.svc.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrModelCall):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrRetrieval):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
