package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"folio-optimizer/internal/alpaca"
	"folio-optimizer/internal/api"
	"folio-optimizer/internal/config"
	"folio-optimizer/internal/db"
	"folio-optimizer/internal/engine"
	"folio-optimizer/internal/factors"
	"folio-optimizer/internal/fred"
	"folio-optimizer/internal/logger"
)

var version = "dev"

func main() {
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	configPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	logger.Banner(version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("CONFIG", fmt.Sprintf("Failed to load config: %v", err))
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if cfg.AlpacaKey == "" || cfg.AlpacaSecret == "" {
		logger.Warn("CONFIG", "ALPACA_API_KEY / ALPACA_SECRET_KEY not set; market data requests will fail")
	}
	if cfg.FredKey == "" {
		logger.Warn("CONFIG", "FRED_API_KEY not set; risk-free rate requests will fail")
	}

	database, err := db.Open(time.Duration(cfg.BarCacheTTLHours) * time.Hour)
	if err != nil {
		logger.Error("DB", fmt.Sprintf("Failed to open database: %v", err))
		os.Exit(1)
	}
	defer database.Close()

	market := alpaca.NewClient(cfg, database)
	rates := fred.NewClient(cfg)

	srv := api.NewServer(cfg, version)

	// Load the factor dataset in the background; optimize requests get 503
	// until it is ready.
	go func() {
		store, err := factors.Load(cfg.FactorDir)
		if err != nil {
			logger.Error("FACTORS", fmt.Sprintf("Load failed: %v", err))
			return
		}
		srv.SetOptimizer(engine.NewOptimizer(market, rates, store))
		logger.Section("Factor dataset")
		logger.Stats("Daily periods", store.ForCadence(factors.Daily).Len())
		logger.Stats("Weekly periods", store.ForCadence(factors.Weekly).Len())
		logger.Success("FACTORS", "Optimizer ready")
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Server(fmt.Sprintf("http://localhost%s", addr))
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server failed: %v", err))
		os.Exit(1)
	}
}
