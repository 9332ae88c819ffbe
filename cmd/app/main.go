package main

import (
	"flag"
	"log"
	"os"

	"DriftWatch/internal/di"
	"DriftWatch/pkg/config"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s source=%s sink=%s", cfg.Environment, cfg.MarketData.Source, cfg.Alerts.Sink)

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	log.Printf("tracking %d symbols against %s", len(cfg.MarketData.Symbols), cfg.MarketData.ReferenceSymbol)

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
