// Package server exposes the navigator over HTTP.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"webnavigator/navigator"
)

const RequestIDHeader = "X-Request-ID"

type Options struct {
	// CORSOrigins defaults to all origins. "*" allows every origin.
	CORSOrigins []string
	// Gatherer backs /metrics. Defaults to the default registry.
	Gatherer prometheus.Gatherer
	Debug    bool
	Logger   *zerolog.Logger
}

type Server struct {
	nav    *navigator.Navigator
	engine *gin.Engine
	logger zerolog.Logger
}

func New(nav *navigator.Navigator, options *Options) *Server {
	if options == nil {
		options = &Options{}
	}
	s := &Server{nav: nav, logger: zerolog.Nop()}
	if options.Logger != nil {
		s.logger = *options.Logger
	}
	if !options.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	gatherer := options.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestID())
	engine.Use(s.accessLog())
	engine.Use(cors.New(corsConfig(options.CORSOrigins)))

	v1 := engine.Group("/v1")
	{
		v1.POST("/get_next_action", s.handleNextAction)
		v1.POST("/hello", s.handleHello)
		v1.GET("/sessions/:id/replay", s.handleReplay)
	}
	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	s.engine = engine
	return s
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", RequestIDHeader}
	config.AllowCredentials = true
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		// AllowAllOrigins cannot be combined with credentials.
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return config
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// HTTPServer wraps the handler in an http.Server listening on addr.
func (s *Server) HTTPServer(addr string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		logger := s.logger.With().Str("request_id", id).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zerolog.Ctx(c.Request.Context()).Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleNextAction(c *gin.Context) {
	var req navigator.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	resp, err := s.nav.NextAction(c.Request.Context(), &req)
	if err != nil {
		status := navigator.StatusCode(err)
		detail := err.Error()
		if status >= http.StatusInternalServerError {
			detail = fmt.Sprintf("%+v", err)
			zerolog.Ctx(c.Request.Context()).Error().
				Str("session_id", req.SessionID).
				Str("trace", detail).
				Msg("next action failed")
		}
		c.JSON(status, gin.H{"detail": detail})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Hello, World!"})
}

func (s *Server) handleReplay(c *gin.Context) {
	r, mu, ok := s.nav.Store().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found"})
		return
	}
	mu.Lock()
	data, err := json.Marshal(r)
	mu.Unlock()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("%+v", err)})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.nav.Store().Len()})
}
