// Command ioloopd runs the iocore WebSocket server: a pool of event
// loops accepting connections on one socket, fanning each accepted
// client out round-robin, with an admin HTTP surface for health,
// stats, and Prometheus scraping alongside it.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/brannigan/iocore/internal/adminhttp"
	"github.com/brannigan/iocore/internal/config"
	"github.com/brannigan/iocore/internal/ioloop"
	"github.com/brannigan/iocore/internal/metrics"
	"github.com/brannigan/iocore/internal/telemetry"
	"github.com/brannigan/iocore/internal/wsconn"
	"github.com/brannigan/iocore/internal/wsecho"
	"github.com/brannigan/iocore/internal/wsserver"
)

func main() {
	logger := telemetry.NewLogger(slog.LevelInfo)
	slog.SetDefault(logger)
	logger.Info("booting ioloopd")

	cfg, err := config.LoadServer("")
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	lock, err := wsserver.AcquireInterlock(cfg.Host + ":" + strconv.Itoa(cfg.Port))
	if err != nil {
		logger.Error("another ioloopd instance already owns this address", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	pool, err := ioloop.NewThreadedEventLoop(cfg.Loops, logger)
	if err != nil {
		logger.Error("failed to build loop pool", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := pool.Run(); err != nil {
			logger.Error("loop pool stopped with error", "error", err)
		}
	}()

	hub := telemetry.NewHub()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	acceptLoop := pool.Loops()[0]
	handlerRef := acceptLoop.StartThread(wsecho.New(logger, hub, m))

	var authenticator wsconn.HandshakeAuthenticator
	switch {
	case cfg.JWTSecret != "":
		authenticator = wsconn.NewJWTAuthenticator(cfg.JWTSecret)
	case cfg.PreSharedKey != "":
		authenticator = wsconn.NewPreSharedKeyAuthenticator("X-Iocore-Key", cfg.PreSharedKey)
	}

	var acceptLimiter *rate.Limiter
	if cfg.AcceptRatePerS > 0 {
		acceptLimiter = rate.NewLimiter(rate.Limit(cfg.AcceptRatePerS), 1)
	}

	server, err := wsserver.Start(pool, acceptLoop, wsserver.Config{
		Host:             cfg.Host,
		Port:             cfg.Port,
		MaxHandshakeSize: cfg.MaxHandshakeSize,
		MaxMessageSize:   cfg.MaxMessageSize,
		Authenticator:    authenticator,
		AcceptLimiter:    acceptLimiter,
	}, handlerRef, logger)
	if err != nil {
		logger.Error("failed to start websocket server", "error", err)
		os.Exit(1)
	}

	if err := lock.WritePort(cfg.Port); err != nil {
		logger.Warn("failed to record port in interlock file", "error", err)
	}

	adminRouter := adminhttp.NewRouter(adminhttp.RouterConfig{
		Logger:   logger,
		Registry: reg,
		Stats:    server,
	})
	adminSrv := &http.Server{
		Addr:    cfg.AdminHost + ":" + strconv.Itoa(cfg.AdminPort),
		Handler: adminRouter,
	}
	go func() {
		logger.Info("admin http surface listening", "addr", adminSrv.Addr)
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin http surface crashed", "error", err)
		}
	}()

	logger.Info("websocket server listening", "host", cfg.Host, "port", cfg.Port, "loops", cfg.Loops)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = adminSrv.Shutdown(shutdownCtx)

	server.Stop()
	pool.Stop()
	logger.Info("ioloopd shutdown complete")
}
