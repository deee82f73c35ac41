package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"vision-wallet/go-backend/internal/composition/daemon"
	"vision-wallet/go-backend/internal/composition/daemonserver"
	"vision-wallet/go-backend/internal/config"
	"vision-wallet/go-backend/internal/platform/privacylog"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	dataDir := flag.String("data-dir", "", "Directory for keystore data (optional)")
	rpcAddr := flag.String("rpc-addr", "", "JSON-RPC listen address override")
	rpcToken := flag.String("rpc-token", "", "RPC token for Authorization/X-Vision-RPC-Token (optional)")
	backend := flag.String("backend", "", "Storage backend override: file | bolt | sqlite | memory")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()
	if *showVersion {
		fmt.Printf("walletd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := privacylog.NewJSONLogger(os.Stderr, level)
	slog.SetDefault(logger)

	cfg, err := config.LoadWithDataDir(*configPath, *dataDir)
	if err != nil {
		logger.Error("walletd config failed", "error", err.Error())
		os.Exit(1)
	}
	if *rpcAddr != "" {
		cfg.RPC.Addr = *rpcAddr
	}
	if *rpcToken != "" {
		cfg.RPC.Token = *rpcToken
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := daemon.Build(cfg, logger)
	if err != nil {
		logger.Error("walletd failed to initialize", "error", err.Error())
		os.Exit(1)
	}
	defer func() { _ = app.Close() }()

	srv, err := daemonserver.NewRPCServer(app)
	if err != nil {
		logger.Error("walletd failed to initialize rpc", "error", err.Error())
		_ = app.Close()
		os.Exit(1)
	}

	logger.Info("walletd starting", "version", version, "addr", srv.Addr())
	if err := srv.Run(ctx); err != nil {
		logger.Error("walletd failed", "error", err.Error())
		_ = app.Close()
		os.Exit(1)
	}
	logger.Info("walletd stopped")
}
