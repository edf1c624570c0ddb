package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ohnitiel/upsql/cmd/cli"
	"ohnitiel/upsql/internal/config"
	"ohnitiel/upsql/internal/logger"
)

const defaultConfigPath = "./config/config.toml"

func main() {
	configPath := os.Getenv("UPSQL_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	closer, err := logger.Setup(cfg.Logging)
	if err != nil {
		log.Fatal(err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Upsql(ctx, cfg, configPath, os.Args); err != nil {
		stop()
		closer.Close()
		log.Fatal(err)
	}
}
