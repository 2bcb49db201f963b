package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/rpc"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"go.uber.org/zap"

	"github.com/kloudmate/header-resolver/detector"
	"github.com/kloudmate/header-resolver/pkg/api"
	"github.com/kloudmate/header-resolver/pkg/config"
	"github.com/kloudmate/header-resolver/pkg/logger"
	"github.com/kloudmate/header-resolver/pkg/telemetry"
	resolverRpc "github.com/kloudmate/header-resolver/rpc"
	"github.com/kloudmate/header-resolver/workload"
)

const defaultRPCAddr = ":7070"

var (
	version = "0.1.0"
	commit  = "none"
)

// main starts the RPC and HTTP classification server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	domainLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer domainLogger.Sync()

	domainLogger.ApplicationStarting(version, commit)
	telemetry.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	table, err := workload.BuildRuleTable(ctx, cfg.RulesSource, domainLogger)
	if err != nil {
		os.Exit(1)
	}
	defer table.Release()

	resolver := detector.NewHeaderResolver(ctx, table, detector.NewClassifier(domainLogger), cfg.ResolverOptions("server"), domainLogger)

	// Register the RPC handler
	rpcServer := rpc.NewServer()
	if err := resolverRpc.Register(rpcServer, &resolverRpc.ResolverService{Resolver: resolver, Logger: domainLogger}); err != nil {
		domainLogger.Fatal("Failed to register RPC service", zap.Error(err))
	}

	addr := cfg.RPCAddr
	if addr == "" {
		addr = defaultRPCAddr
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		domainLogger.Fatal("Error starting RPC server", zap.String("address", addr), zap.Error(err))
	}
	defer listener.Close()
	domainLogger.Info("RPC server listening", zap.String("address", addr))

	// Accept connections and serve them concurrently
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				domainLogger.Warn("Error accepting connection", zap.Error(err))
				continue
			}
			go rpcServer.ServeConn(conn)
		}
	}()

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.NewServer(resolver, cfg.RateLimit).Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		domainLogger.Info("HTTP server listening", zap.String("address", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			domainLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	domainLogger.ApplicationReady()

	// graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	domainLogger.ApplicationShuttingDown(sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	cancel()
	domainLogger.ApplicationShutdownComplete()
}
