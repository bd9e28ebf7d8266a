// Package server exposes the pipeline over HTTP for the companion web app.
// Runs stream their events as server-sent events.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/valpere/studyspark/internal/completion"
	"github.com/valpere/studyspark/internal/conversation"
	"github.com/valpere/studyspark/internal/logger"
	"github.com/valpere/studyspark/internal/metrics"
	"github.com/valpere/studyspark/internal/orchestrator"
	"github.com/valpere/studyspark/internal/store"
)

const shutdownTimeout = 10 * time.Second

// HistoryReader serves past runs.
type HistoryReader interface {
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	GetRun(ctx context.Context, id string) (*store.Run, []store.ChunkResult, error)
}

type Options struct {
	Service  completion.Service
	Runner   conversation.Runner
	Resolver orchestrator.Resolver
	History  HistoryReader
	Metrics  *metrics.Metrics
	Logger   logger.Logger
}

type Server struct {
	service  completion.Service
	runner   conversation.Runner
	resolver orchestrator.Resolver
	history  HistoryReader
	metrics  *metrics.Metrics
	log      logger.Logger

	convs  *conversation.Manager
	engine *gin.Engine
}

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.GetDefault()
	}
	s := &Server{
		service:  opts.Service,
		runner:   opts.Runner,
		resolver: opts.Resolver,
		history:  opts.History,
		metrics:  opts.Metrics,
		log:      log,
		convs:    conversation.NewManager(opts.Runner),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	if s.metrics != nil {
		r.Use(s.metrics.GinMiddleware())
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	r.GET("/healthz", s.health)

	api := r.Group("/api/v1")
	api.POST("/runs", s.createRun)
	if s.history != nil {
		api.GET("/runs", s.listRuns)
		api.GET("/runs/:id", s.getRun)
	}

	convs := api.Group("/conversations")
	convs.POST("", s.createConversation)
	convs.GET("/:id", s.getConversation)
	convs.DELETE("/:id", s.deleteConversation)
	convs.POST("/:id/turns", s.sendTurn)
	convs.PUT("/:id/turns/:index", s.editTurn)
	convs.POST("/:id/regenerate", s.regenerate)
	convs.POST("/:id/cancel", s.cancel)

	return r
}

// requestLogger attaches a request-scoped logger to the request context and
// logs each request when it completes.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		log := s.log.With("request_id", uuid.NewString())
		c.Request = c.Request.WithContext(logger.ContextWithLogger(c.Request.Context(), log))

		c.Next()

		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
// Request contexts derive from ctx, so active runs are cancelled on
// shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
