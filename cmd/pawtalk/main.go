package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pawtalk/internal/app"
	"pawtalk/pkg/config"
	"pawtalk/pkg/logger"
)

// build metadata, set via ldflags during release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, _, _, _, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// flags explicitly set win over env/config
	addr := addrVal
	if !setFlags["addr"] {
		addr = cfg.Addr()
	}
	dbPath := dbVal
	if !setFlags["db"] && cfg.Storage.DBPath != "" {
		dbPath = cfg.Storage.DBPath
	}

	logger.InitWithLevel(cfg.Logging.Level)

	a, err := app.New(cfg, addr, dbPath, version, commit, buildDate)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logger.Error("server_exit", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}
