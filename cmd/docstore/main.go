// Command docstore runs the content-addressed document storage gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/meeplabs/docstore/internal/logger"
	"github.com/meeplabs/docstore/internal/server"
	"github.com/meeplabs/docstore/pkg/config"
	"github.com/meeplabs/docstore/pkg/derive"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	initConfig := flag.Bool("init", false, "Write a default config file and exit")
	flag.Parse()

	// A .env file is optional; absence is not an error.
	_ = godotenv.Load()

	if *initConfig {
		path := *configPath
		if path == "" {
			path = config.GetDefaultConfigPath()
		}
		if err := config.WriteDefaultConfig(path); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logOutput := cfg.Logging.Output
	if logOutput == "stdout" {
		logOutput = ""
	}
	logger.Configure(cfg.Logging.Level, logOutput)

	extractor := derive.NewHTTPExtractor(cfg.Processing.OCREndpoint)
	summarizer := derive.NewHTTPSummarizer(cfg.Processing.SummaryEndpoint)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, cleanup, err := config.BuildRegistry(ctx, cfg, extractor, summarizer)
	if err != nil {
		log.Fatalf("Failed to initialize backends: %v", err)
	}
	defer cleanup()

	srv := server.New(server.Config{
		ListenAddr:      cfg.Server.ListenAddr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
	}, reg)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server exited with error: %v", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
