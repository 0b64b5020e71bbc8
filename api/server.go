// Package api exposes the scraper over HTTP: health probes, run status,
// manual triggering and the last run's result.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"philgeps-scraper/config"
	"philgeps-scraper/models"
)

// Runner executes one scrape run end to end, including report output.
type Runner func(ctx context.Context) (*models.ScrapeResult, error)

// Server serializes scrape triggers: only one run may be in flight, and
// the most recent result stays available until the next run replaces it.
type Server struct {
	cfg *config.Config
	run Runner
	log *slog.Logger

	mu         sync.Mutex
	inProgress bool
	lastRun    time.Time
	lastResult *models.ScrapeResult
}

// NewServer builds the API server around a run function.
func NewServer(cfg *config.Config, run Runner, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, run: run, log: logger}
}

// Router assembles the gin routing table.
func (s *Server) Router() *gin.Engine {
	if !s.cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/", s.health)
	router.GET("/health", s.health)
	router.GET("/status", s.status)
	router.POST("/scrape/trigger", s.trigger)
	router.GET("/scrape/last-result", s.lastResultHandler)

	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":                 "healthy",
		"service":                "philgeps-scraper",
		"credentials_configured": s.cfg.HasCredentials(),
		"database_configured":    s.cfg.DatabasePath != "",
	})
}

func (s *Server) status(c *gin.Context) {
	s.mu.Lock()
	inProgress := s.inProgress
	lastRun := s.lastRun
	s.mu.Unlock()

	resp := gin.H{"scraping_in_progress": inProgress}
	if !lastRun.IsZero() {
		resp["last_scrape"] = lastRun.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) trigger(c *gin.Context) {
	s.mu.Lock()
	if s.inProgress {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "scrape already in progress"})
		return
	}
	s.inProgress = true
	s.mu.Unlock()

	go s.runScrape()

	c.JSON(http.StatusOK, gin.H{"message": "scrape started"})
}

func (s *Server) runScrape() {
	defer func() {
		s.mu.Lock()
		s.inProgress = false
		s.mu.Unlock()
	}()

	result, err := s.run(context.Background())
	if err != nil {
		s.log.Error("triggered scrape failed", slog.Any("error", err))
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	if result != nil {
		s.lastResult = result
	}
	s.mu.Unlock()
}

func (s *Server) lastResultHandler(c *gin.Context) {
	s.mu.Lock()
	result := s.lastResult
	s.mu.Unlock()

	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scrape has completed yet"})
		return
	}
	c.JSON(http.StatusOK, result)
}
