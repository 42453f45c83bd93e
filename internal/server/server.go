package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/interviewer/internal/document"
	"github.com/spigell/interviewer/internal/interview"
	"github.com/spigell/interviewer/internal/logger"
	"github.com/spigell/interviewer/internal/metrics"
	"github.com/spigell/interviewer/internal/store"
)

const (
	DefaultAddr = ":4000"

	maxUploadBytes  = 10 << 20
	shutdownTimeout = 10 * time.Second
)

type Config struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed-origins"`
}

// Decoder turns an uploaded file into plain text.
type Decoder func(r io.Reader, filename, contentType string) (string, error)

// Server exposes the interview engine over HTTP. Calls touching one
// candidate are serialized.
type Server struct {
	cfg     Config
	engine  *interview.Engine
	store   store.Store
	metrics *metrics.Metrics
	decode  Decoder
	locks   *keyedMutex
	logger  *zap.Logger
}

func New(cfg Config, engine *interview.Engine, st store.Store, m *metrics.Metrics, log *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if m == nil {
		m = metrics.New()
	}

	return &Server{
		cfg:     cfg,
		engine:  engine,
		store:   st,
		metrics: m,
		decode:  document.Decode,
		locks:   newKeyedMutex(),
		logger:  logger.WithFields(log, zap.String("component", "http")),
	}
}

// Handler builds the routing tree.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.metrics.Middleware(), cors.New(s.corsConfig()))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api")
	api.POST("/parse", limitBody, s.parse)

	candidates := api.Group("/candidates")
	candidates.POST("", s.createCandidate)
	candidates.GET("", s.listCandidates)
	candidates.GET("/current", s.currentCandidate)
	candidates.GET("/:id", s.getCandidate)
	candidates.POST("/:id/resume", limitBody, s.uploadResume)
	candidates.POST("/:id/messages", s.postMessage)
	candidates.POST("/:id/retry", s.retryPending)
	candidates.PATCH("/:id/contact", s.patchContact)

	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("http server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}

	if len(s.cfg.AllowedOrigins) == 0 || slices.Contains(s.cfg.AllowedOrigins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = s.cfg.AllowedOrigins
	return cfg
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.logger.Debug("request served",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	c.Next()
}
