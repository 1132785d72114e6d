// Package http exposes the agent's gossip intake and operational endpoints
// over gin, with mutual TLS between configured peers.
package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/octoreflex/octoreflex/internal/config"
	"github.com/octoreflex/octoreflex/internal/infrastructure/monitoring"
	"github.com/octoreflex/octoreflex/pkg/errors"
	"github.com/octoreflex/octoreflex/pkg/logger"
)

// Router owns the peer-facing HTTP server.
type Router struct {
	engine        *gin.Engine
	cfg           *config.Config
	log           logger.Logger
	gossipHandler *GossipHandler
	scoreHandler  *ScoreHandler
	tracing       *monitoring.TracingManager
	server        *http.Server
}

// NewRouter assembles the gin engine and routes. Routes are registered
// immediately; Start only binds the listener.
func NewRouter(
	cfg *config.Config,
	log logger.Logger,
	gossipHandler *GossipHandler,
	scoreHandler *ScoreHandler,
	tracing *monitoring.TracingManager,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	if log == nil {
		log = logger.NewNoopLogger()
	}
	r := &Router{
		engine:        engine,
		cfg:           cfg,
		log:           log,
		gossipHandler: gossipHandler,
		scoreHandler:  scoreHandler,
		tracing:       tracing,
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.engine.Use(RecoveryMiddleware(r.log))
	r.engine.Use(RequestIDMiddleware())
	r.engine.Use(LoggingMiddleware(r.log))
	if r.tracing != nil {
		r.engine.Use(TracingMiddleware(r.tracing))
	}

	r.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"version":    config.Version,
			"git_commit": config.GitCommit,
		})
	})

	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if r.cfg.Observability.PprofEnabled {
		pprof.Register(r.engine)
	}

	v1 := r.engine.Group("/v1")
	{
		gossip := v1.Group("/gossip")
		{
			gossip.POST("/observations", r.gossipHandler.ReceiveObservation)
			gossip.GET("/signal/:process_hash", r.gossipHandler.GetSignal)
			gossip.GET("/partition", r.gossipHandler.GetPartitionState)
		}
		if r.scoreHandler != nil {
			v1.POST("/score", r.scoreHandler.Evaluate)
		}
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})
}

// Handler exposes the assembled engine, mainly for httptest.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// Start serves until the listener fails or Stop is called. When TLS
// material is configured the server requires and verifies peer client
// certificates against the configured CA; otherwise it serves plain HTTP,
// which is only acceptable on loopback.
func (r *Router) Start() error {
	r.server = &http.Server{
		Addr:           r.cfg.Gossip.ListenAddr,
		Handler:        r.engine,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	if r.cfg.Gossip.TLSCertFile == "" {
		r.log.Warn(context.Background(), "gossip listener starting without TLS", logger.Fields{
			"addr": r.cfg.Gossip.ListenAddr,
		})
		if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}

	tlsCfg, err := r.mutualTLSConfig()
	if err != nil {
		return err
	}
	r.server.TLSConfig = tlsCfg

	r.log.Info(context.Background(), "gossip listener starting", logger.Fields{
		"addr": r.cfg.Gossip.ListenAddr,
	})
	if err := r.server.ListenAndServeTLS(r.cfg.Gossip.TLSCertFile, r.cfg.Gossip.TLSKeyFile); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (r *Router) mutualTLSConfig() (*tls.Config, error) {
	caPEM, err := os.ReadFile(r.cfg.Gossip.TLSCAFile)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfigInvalid, "failed to read gossip CA certificate")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, errors.New(errors.CodeConfigInvalid, "gossip CA certificate contains no usable certificates")
	}
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		ClientAuth: tls.RequireAndVerifyClientCert,
		ClientCAs:  pool,
	}, nil
}

// Stop drains in-flight requests and shuts the listener down.
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	r.log.Info(ctx, "gossip listener stopping")
	return r.server.Shutdown(ctx)
}
