// CoinShift sidechain node daemon.
//
// Usage:
//
//	coinshiftd [--datadir=... --network=mainnet|testnet]
//	coinshiftd --help
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coinshift-network/coinshift-core/config"
	klog "github.com/coinshift-network/coinshift-core/internal/log"
	"github.com/coinshift-network/coinshift-core/internal/oracle"
	"github.com/coinshift-network/coinshift-core/internal/state"
	"github.com/coinshift-network/coinshift-core/internal/storage"
)

func main() {
	// ── 1. Load config (defaults, overridden by flags) ──────────────────
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Init logger ────────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating logs dir: %v\n", err)
			os.Exit(1)
		}
		logFile = logsDir + "/coinshift.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := klog.WithComponent("node")

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("datadir", cfg.DataDir).
		Msg("Starting CoinShift sidechain node")

	// ── 3. Open storage ──────────────────────────────────────────────
	if err := os.MkdirAll(cfg.StateDir(), 0755); err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StateDir()).Msg("Failed to create state dir")
	}
	db, err := storage.NewBadger(cfg.StateDir())
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StateDir()).Msg("Failed to open database")
	}
	defer db.Close()
	logger.Info().Str("path", cfg.StateDir()).Msg("Database opened")

	// ── 4. Wire the parent-chain oracle and the block engine ─────────
	oracleMgr := oracle.NewManager(cfg.Oracle.Build())

	engine, err := chain.New(db, oracleMgr)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start block engine")
	}

	if _, err := engine.InitGenesis(uint64(time.Now().Unix())); err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize genesis block")
	}
	logger.Info().
		Uint64("height", engine.Height()).
		Str("tip", engine.TipHash().String()).
		Msg("Chain state loaded")

	// ── 5. Serve until interrupted ─────────────────────────────────
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go watchTip(ctx, engine)

	<-ctx.Done()
	logger.Info().Msg("Shutting down")
}

// watchTip logs each tip change until ctx is cancelled, subscribing
// through internal/state's WatchTip.
func watchTip(ctx context.Context, engine *chain.Engine) {
	logger := klog.WithComponent("node")
	tipCh := engine.WatchTip()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tipCh:
			logger.Info().
				Uint64("height", engine.Height()).
				Str("tip", engine.TipHash().String()).
				Msg("New tip")
		}
	}
}

// loadConfig builds the node configuration from defaults overridden by
// command-line flags. A full conf-file reader (matching the `conf:"..."`
// struct tags in package config) is left for the RPC/wallet layer this
// daemon doesn't yet carry.
func loadConfig() (*config.Config, error) {
	var (
		network = flag.String("network", string(config.Mainnet), "network: mainnet or testnet")
		datadir = flag.String("datadir", "", "data directory (default: platform-specific)")
		logLvl  = flag.String("loglevel", "info", "log level: debug, info, warn, error")
		logJSON = flag.Bool("logjson", false, "emit JSON logs to stdout")
	)
	flag.Parse()

	net := config.NetworkType(*network)
	if net != config.Mainnet && net != config.Testnet {
		return nil, fmt.Errorf("unknown network %q", *network)
	}

	cfg := config.Default(net)
	if *datadir != "" {
		cfg.DataDir = *datadir
	}
	cfg.Log.Level = *logLvl
	cfg.Log.JSON = *logJSON
	return cfg, nil
}
