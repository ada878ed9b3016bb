package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/amqpwire/internal/auth"
	"github.com/danmuck/amqpwire/internal/observability"
	"github.com/danmuck/amqpwire/internal/protocol/schema"
	"github.com/danmuck/amqpwire/internal/tap"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// ConnSource reports live proxied connections.
type ConnSource interface {
	Stats() []tap.ConnInfo
	Accepted() uint64
}

type Server struct {
	addr     string
	router   *gin.Engine
	conns    ConnSource
	spec     *schema.Spec
	guard    auth.Validator
	appeared time.Time
}

type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on every route except
// /health and /metrics. An empty token leaves the routes open.
func WithToken(token string) Option {
	return func(s *Server) {
		if token != "" {
			s.guard = auth.StaticToken{Token: token}
		}
	}
}

func New(addr string, corsOrigins []string, conns ConnSource, spec *schema.Spec, opts ...Option) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		addr:     addr,
		router:   r,
		conns:    conns,
		spec:     spec,
		appeared: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": "amqpwire",
			"version": "0.1.0",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/")
	if s.guard != nil {
		api.Use(auth.Middleware(s.guard))
	}

	api.GET("/connections", func(c *gin.Context) {
		conns := s.conns.Stats()
		c.JSON(http.StatusOK, gin.H{
			"accepted":    s.conns.Accepted(),
			"active":      len(conns),
			"connections": conns,
		})
	})

	api.GET("/schema", func(c *gin.Context) {
		if s.spec == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "schema not loaded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"version":     s.spec.Version(),
			"frame_types": s.spec.FrameTypes,
			"classes":     s.spec.Classes,
		})
	})
}

// ListenAndServe serves until ctx ends, then shuts down within five seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("admin listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
