package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mkessler/flight-data-evaluation-tool/config"
	"github.com/mkessler/flight-data-evaluation-tool/database"
	"github.com/mkessler/flight-data-evaluation-tool/diagnostics"
	"github.com/mkessler/flight-data-evaluation-tool/evaluation"
	"github.com/mkessler/flight-data-evaluation-tool/grading"
	"github.com/mkessler/flight-data-evaluation-tool/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	diagnostics.Init()
	if err := database.Init(cfg.DatabaseDir, cfg.DataDir); err != nil {
		log.Fatalf("Failed to initialize database storage: %v", err)
	}

	schema, err := evaluation.LoadSchema(cfg.SchemaPath)
	if err != nil {
		log.Fatalf("Failed to load result schema: %v", err)
	}

	// Set up graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Println("Shutting down gracefully...")
		os.Exit(0)
	}()

	diagnostics.SetupHandlers()
	evaluation.SetupHandlers(schema)
	database.SetupHandlers(schema)
	grading.SetupHandlers(schema, cfg.Alpha, cfg.UnlockToken)
	metrics.SetupHandlers()

	log.Printf("Server started at http://127.0.0.1%s", cfg.Addr)
	http.ListenAndServe(cfg.Addr, nil)
}
