// Package server streams timetable feeds over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/username/timetable/internal/calendar"
	"github.com/username/timetable/internal/config"
	"github.com/username/timetable/internal/feed"
)

const shutdownTimeout = 10 * time.Second

// RunStore reports feed runs recorded by the dimension store.
type RunStore interface {
	LastRun(ctx context.Context, schema feed.Schema) (id uuid.UUID, rows int, ok bool, err error)
	Count(ctx context.Context, schema feed.Schema) (int, error)
}

// Server serves monthly and daily feeds. A nil store disables the runs endpoint.
type Server struct {
	cfg    *config.Config
	clock  calendar.Clock
	store  RunStore
	logger *zap.Logger
	echo   *echo.Echo
}

// New builds a server and registers its routes. A nil clock means calendar.SystemClock.
func New(cfg *config.Config, clock calendar.Clock, store RunStore, logger *zap.Logger) *Server {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("Request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))

	s := &Server{cfg: cfg, clock: clock, store: store, logger: logger, echo: e}
	s.RegisterRoutes(e)
	return s
}

// RegisterRoutes mounts the feed endpoints on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.Health)
	api := e.Group("/api/timetable")
	api.GET("/monthly", s.GetMonthly)
	api.GET("/daily", s.GetDaily)
	api.GET("/runs/:feed", s.GetLastRun)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.Server.Addr))
		errCh <- s.echo.Start(s.cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		return nil
	}
}

// --- HANDLERS ---

func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// GetMonthly streams the monthly feed for start_year..end_year, both
// defaulting to the current year.
func (s *Server) GetMonthly(c echo.Context) error {
	year, _, _, err := s.clock.Today().YMD()
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	startYear, err := intParam(c, "start_year", year)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	endYear, err := intParam(c, "end_year", year)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	format, err := s.formatParam(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}

	seq, err := calendar.OpenMonthly(startYear, endYear)
	if err != nil {
		return errorJSON(c, statusFor(err), err)
	}
	// Out-of-range years would only fail at the first row; reject them while
	// the status line is still ours to choose.
	for _, y := range []int{startYear, endYear} {
		if y < calendar.MinYear || y > calendar.MaxYear {
			return errorJSON(c, http.StatusUnprocessableEntity,
				fmt.Errorf("%w: year %d", calendar.ErrDateRangeOverflow, y))
		}
	}
	return s.stream(c, format, feed.MonthlySource(seq))
}

// GetDaily streams the daily feed for start..end. Omitted bounds default to
// the configured window around today.
func (s *Server) GetDaily(c echo.Context) error {
	start, err := dateParam(c, "start")
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	end, err := dateParam(c, "end")
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	format, err := s.formatParam(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}

	seq, err := calendar.OpenDailyWindow(start, end, s.clock, s.cfg.Daily.WindowDays)
	if err != nil {
		return errorJSON(c, statusFor(err), err)
	}
	lo, hi := seq.Bounds()
	for _, d := range []calendar.Date{lo, hi} {
		if !d.Valid() {
			return errorJSON(c, http.StatusUnprocessableEntity,
				fmt.Errorf("%w: %s", calendar.ErrDateRangeOverflow, d))
		}
	}
	return s.stream(c, format, feed.DailySource(seq))
}

// GetLastRun reports the most recent stored run of the monthly or daily feed.
func (s *Server) GetLastRun(c echo.Context) error {
	if s.store == nil {
		return errorJSON(c, http.StatusServiceUnavailable, errors.New("no store configured"))
	}
	var schema feed.Schema
	switch c.Param("feed") {
	case "monthly":
		schema = feed.MonthlySchema
	case "daily":
		schema = feed.DailySchema
	default:
		return errorJSON(c, http.StatusNotFound, fmt.Errorf("unknown feed %q", c.Param("feed")))
	}

	ctx := c.Request().Context()
	id, rows, ok, err := s.store.LastRun(ctx, schema)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	if !ok {
		return errorJSON(c, http.StatusNotFound, fmt.Errorf("no runs recorded for %s", schema.Name))
	}
	stored, err := s.store.Count(ctx, schema)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"run_id": id.String(),
		"feed":   schema.Name,
		"rows":   rows,
		"stored": stored,
	})
}

// stream writes the whole source to the response. Once the header is sent a
// failure can only truncate the body, so it is logged.
func (s *Server) stream(c echo.Context, format feed.Format, src feed.Source) error {
	res := c.Response()
	sink, err := feed.NewSink(format, res, src.Schema(), s.cfg.Export.BatchSize)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}

	runID := uuid.New()
	res.Header().Set(echo.HeaderContentType, format.ContentType())
	res.Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%s.%s", src.Schema().Name, format))
	res.Header().Set("X-Run-Id", runID.String())
	res.Header().Set("X-Row-Count", strconv.Itoa(src.Len()))
	res.WriteHeader(http.StatusOK)

	if _, err := feed.Run(c.Request().Context(), runID, src, sink, s.logger); err != nil {
		s.logger.Error("Feed stream aborted",
			zap.String("run_id", runID.String()),
			zap.Error(err))
	}
	return nil
}

func (s *Server) formatParam(c echo.Context) (feed.Format, error) {
	raw := c.QueryParam("format")
	if raw == "" {
		raw = s.cfg.Output.Format
	}
	return feed.ParseFormat(raw)
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: expected an integer, got %q", name, raw)
	}
	return v, nil
}

func dateParam(c echo.Context, name string) (*calendar.Date, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	d, err := calendar.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &d, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, calendar.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, calendar.ErrDateRangeOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func errorJSON(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]string{"error": err.Error()})
}
