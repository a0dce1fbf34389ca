package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tejiriaustin/resource-monitor/checksum"
	"github.com/tejiriaustin/resource-monitor/config"
	"github.com/tejiriaustin/resource-monitor/db"
	"github.com/tejiriaustin/resource-monitor/logger"
	"github.com/tejiriaustin/resource-monitor/models"
	"github.com/tejiriaustin/resource-monitor/monitoring"
)

type (
	Server struct {
		cfg    *config.Config
		server *http.Server
		logger *logger.Logger
	}

	Handler struct {
		logger  *logger.Logger
		limiter *rate.Limiter
	}

	// Monitor is the part of the change monitor exposed over HTTP.
	Monitor interface {
		monitoring.Tracker
		Stats() monitoring.Stats
	}

	resourceRequest struct {
		Path string `json:"path" binding:"required"`
	}
)

func New(cfg *config.Config, logger *logger.Logger) *Server {
	return &Server{
		cfg:    cfg,
		server: &http.Server{Addr: cfg.Port},
		logger: logger,
	}
}

// Start serves handler until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, handler http.Handler) error {
	s.server.Handler = handler

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("Server error", "error", err)
			errChan <- err
		}
	}()

	s.logger.Infow("Server listening", "addr", s.cfg.Port)

	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorw("Server forced to shutdown", "error", err)
		return err
	}

	s.logger.Info("Server gracefully stopped")
	return nil
}

// NewHandler builds the HTTP handler. controlPerMinute and controlBurst limit
// the endpoints that mutate the tracked set; a rate of zero disables the limit.
func NewHandler(logger *logger.Logger, controlPerMinute, controlBurst int) *Handler {
	limit := rate.Inf
	if controlPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(controlPerMinute))
	}
	if controlBurst <= 0 {
		controlBurst = 1
	}

	return &Handler{
		logger:  logger,
		limiter: rate.NewLimiter(limit, controlBurst),
	}
}

func (s *Handler) SetupHandler(monitor Monitor, repo db.Repository) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(s.loggerMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", s.healthCheck())
	r.GET("/stats", s.retrieveStats(monitor))
	r.GET("/events", s.retrieveEvents(repo))
	r.GET("/resources", s.listResources(monitor))

	control := r.Group("/", s.rateLimitMiddleware())
	control.POST("/resources", s.trackResource(monitor))
	control.DELETE("/resources", s.untrackResource(monitor))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"status": "not found",
		})
	})

	return r
}

func (s *Handler) healthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "alive and well",
		})
	}
}

func (s *Handler) retrieveStats(monitor Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, monitor.Stats())
	}
}

func (s *Handler) retrieveEvents(repo db.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = parsed
		}

		var (
			events []models.ChangeEvent
			err    error
		)
		if path := c.Query("path"); path != "" {
			events, err = repo.GetChangeEventsByPath(path, limit)
		} else {
			events, err = repo.GetChangeEvents(limit)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if events == nil {
			events = []models.ChangeEvent{}
		}
		c.JSON(http.StatusOK, events)
	}
}

func (s *Handler) listResources(monitor Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, monitor.Resources())
	}
}

func (s *Handler) trackResource(monitor Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		path, err := validateResourcePath(req.Path)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resource, err := monitor.AddResource(path)
		if err != nil {
			c.JSON(statusForTrackError(err), gin.H{"error": err.Error()})
			return
		}

		s.logger.Infow("Resource tracked via API", "path", resource.Path)
		c.JSON(http.StatusCreated, resource)
	}
}

func (s *Handler) untrackResource(monitor Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		path, err := validateResourcePath(req.Path)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if !monitor.RemoveResource(path) {
			c.JSON(http.StatusNotFound, gin.H{"error": "resource not tracked"})
			return
		}

		s.logger.Infow("Resource untracked via API", "path", path)
		c.JSON(http.StatusOK, gin.H{"status": "resource untracked"})
	}
}

func statusForTrackError(err error) int {
	var ioErr *checksum.IOError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.As(err, &ioErr):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
