package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/quietledger/sniper-core/internal/config"
	"github.com/quietledger/sniper-core/internal/engine"
	"github.com/quietledger/sniper-core/internal/logging"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the process config file")
	registryPath := flag.String("token-registry", "configs/token_programs.yaml", "path to the token program registry file")
	debug := flag.Bool("debug", false, "use human-friendly development logging")
	flag.Parse()

	logger := logging.New(*debug)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load process config", zap.Error(err))
	}

	registry, err := config.LoadTokenProgramRegistry(*registryPath)
	if err != nil {
		logger.Fatal("failed to load token program registry", zap.Error(err))
	}

	// A production deployment supplies real adapters here: a Solana RPC
	// client per cluster, a WebSocket client per cluster, a block-engine
	// client, and the venue-specific swap/aggregator/trade-local builders.
	// The core never constructs these itself — see internal/adapters.
	clients := engine.Clients{}
	if cfg.DebugLogging {
		logger.Warn("no adapters wired; engine assembly will fail until clients are supplied")
	}

	eng, err := engine.New(cfg, registry, clients, logger)
	if err != nil {
		logger.Fatal("failed to assemble engine", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("starting sniper core")
	eng.Run(ctx)

	waitForShutdown()
	logger.Info("shutting down sniper core")
	eng.Shutdown()
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
