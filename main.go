package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/mkoh/backwalk/service"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Printf("loading config: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collectorCfg := service.CollectorConfig{
		DataFilepath:   cfg.DataFilepath,
		DBEndpoint:     cfg.DBEndpoint,
		DBUser:         cfg.DBUser,
		DBPass:         cfg.DBPass,
		ExportDir:      cfg.ExportDir,
		TickWindowDays: cfg.TickWindowDays,
		BarWindowDays:  cfg.BarWindowDays,
		RunOnce:        cfg.RunOnce,
		Cancel:         cancel,
	}
	collector, err := service.NewCollector(ctx, &collectorCfg)
	if err != nil {
		log.Printf("creating collector service: %v", err)
		return
	}

	go handleTermination(ctx, cancel)
	collector.Run(ctx)
}
