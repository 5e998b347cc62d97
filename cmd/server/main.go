package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/config"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/logging"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flags override environment
	port := flag.Int("port", cfg.Server.Port, "Server port")
	hostAddr := flag.String("host", cfg.Server.Host, "Listen address")
	catalog := flag.String("catalog", cfg.Catalog.Pattern, "Application manifest glob")
	sdks := flag.String("sdks", strings.Join(cfg.Host.SDKs, ","), "Installed simulator SDKs, comma separated (skips probing)")
	instrumentsCmd := flag.String("instruments", cfg.Instruments.Command, "Instruments command")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode (colored logs, debug level)")
	flag.Parse()

	cfg.Server.Port = *port
	cfg.Server.Host = *hostAddr
	cfg.Catalog.Pattern = *catalog
	cfg.Instruments.Command = *instrumentsCmd
	if *sdks != "" {
		cfg.Host.SDKs = strings.Split(*sdks, ",")
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
		Fields:      map[string]string{"service": "iosdriver"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(cfg, server.Options{Logger: logger})
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	// Instruments processes must not outlive the server, whatever the exit path
	stopHooks := srv.Hooks().Notify(context.Background())
	defer stopHooks()
	defer srv.Hooks().Run()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server error", zap.Error(err))
		srv.Hooks().Run()
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
