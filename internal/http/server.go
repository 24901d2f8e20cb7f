// Package http provides the HTTP API for digestd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/anthrax3/sentry/internal/digest"
	"github.com/anthrax3/sentry/internal/directory"
	"github.com/anthrax3/sentry/internal/ownership"
	"github.com/anthrax3/sentry/internal/personalize"
)

// Directory is the subset of the directory store the API reads and writes.
type Directory interface {
	ProjectMemberIDs(ctx context.Context, projectID int64) ([]int64, error)
	OwnershipSchema(ctx context.Context, projectID int64) (*ownership.Schema, error)
	SetOwnershipSchema(ctx context.Context, projectID int64, schema *ownership.Schema) error
}

// Publisher hands personalized digests off to the delivery subsystem.
type Publisher interface {
	Publish(ctx context.Context, projectID int64, digests []personalize.UserDigest) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides HTTP endpoints for digest personalization.
type Server struct {
	echo      *echo.Echo
	svc       *personalize.Service
	dir       Directory
	publisher Publisher
	metrics   *HTTPMetrics
	logger    *zap.Logger
	config    *Config
}

// NewServer creates a new HTTP server. The publisher may be nil; responses
// are then the only delivery channel.
func NewServer(svc *personalize.Service, dir Directory, publisher Publisher, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("personalize service cannot be nil")
	}
	if dir == nil {
		return nil, fmt.Errorf("directory cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9290,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewHTTPMetrics(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:      e,
		svc:       svc,
		dir:       dir,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		config:    cfg,
	}

	s.registerRoutes()

	return s, nil
}

// Echo exposes the underlying router so callers can mount extra handlers.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/projects/:project_id/digests/personalize", s.handlePersonalize)
	v1.GET("/projects/:project_id/ownership", s.handleGetOwnership)
	v1.PUT("/projects/:project_id/ownership", s.handlePutOwnership)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handlePersonalize builds a digest from the posted records and computes a
// personalized view per recipient. Recipients default to the project's
// active members when the request names none.
func (s *Server) handlePersonalize(c echo.Context) error {
	projectID, err := parseProjectID(c)
	if err != nil {
		return err
	}

	var req PersonalizeRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid personalize request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Records) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "records field is required")
	}

	ctx := c.Request().Context()

	userIDs := req.UserIDs
	if len(userIDs) == 0 {
		userIDs, err = s.dir.ProjectMemberIDs(ctx, projectID)
		if err != nil {
			s.logger.Error("loading project members", zap.Int64("project_id", projectID), zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "loading project members")
		}
	}

	records := make([]digest.Record, len(req.Records))
	for i, r := range req.Records {
		records[i] = recordFromPayload(r)
	}
	d := digest.Build(projectID, digest.SortRecords(records))

	digests, err := s.svc.PersonalizedDigests(ctx, projectID, d, userIDs)
	if err != nil {
		s.logger.Error("personalizing digest",
			zap.Int64("project_id", projectID),
			zap.String("digest_id", d.ID),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "personalizing digest")
	}

	s.metrics.RecordPersonalized(ctx, len(digests))

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, projectID, digests); err != nil {
			// Delivery is best effort; the response still carries the result.
			s.logger.Warn("publishing personalized digests",
				zap.Int64("project_id", projectID),
				zap.String("digest_id", d.ID),
				zap.Error(err))
		}
	}

	resp := PersonalizeResponse{
		DigestID: d.ID,
		Digests:  make([]UserDigestPayload, len(digests)),
	}
	for i, ud := range digests {
		resp.Digests[i] = UserDigestPayload{
			UserID: ud.UserID,
			Digest: digestToPayload(ud.Digest),
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// handleGetOwnership returns the project's ownership schema.
func (s *Server) handleGetOwnership(c echo.Context) error {
	projectID, err := parseProjectID(c)
	if err != nil {
		return err
	}

	schema, err := s.dir.OwnershipSchema(c.Request().Context(), projectID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "project not found")
		}
		s.logger.Error("loading ownership schema", zap.Int64("project_id", projectID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "loading ownership schema")
	}
	return c.JSON(http.StatusOK, schema)
}

// handlePutOwnership replaces the project's ownership schema.
func (s *Server) handlePutOwnership(c echo.Context) error {
	projectID, err := parseProjectID(c)
	if err != nil {
		return err
	}

	var schema ownership.Schema
	if err := c.Bind(&schema); err != nil {
		s.logger.Warn("invalid ownership schema", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.dir.SetOwnershipSchema(c.Request().Context(), projectID, &schema); err != nil {
		s.logger.Error("storing ownership schema", zap.Int64("project_id", projectID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "storing ownership schema")
	}
	return c.NoContent(http.StatusNoContent)
}

func parseProjectID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("project_id"), 10, 64)
	if err != nil || id < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid project id")
	}
	return id, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
