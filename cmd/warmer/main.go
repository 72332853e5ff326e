package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kiosk/internal/cache"
	"kiosk/internal/config"
	"kiosk/internal/hrapi"
	"kiosk/internal/notify"
)

// Warmer consumes refresh signals published by the kiosk after a
// successful submission and re-warms the snapshot cache from the HR
// API, so the next dashboard view is served fresh without waiting on
// the backend.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.HRAPIServiceToken == "" {
		log.Fatal("HR_API_SERVICE_TOKEN required (manager or admin token)")
	}

	snapshots := cache.New(cfg.RedisAddr, cfg.CacheTTL)

	var bus notify.Bus
	if cfg.QueueBackend == "memory" {
		bus = notify.NewInMemory(64)
	} else {
		bus = notify.NewRedisBus(snapshots.Client, "kiosk:refresh")
	}

	hr := hrapi.New(cfg.HRAPIBaseURL)
	if err := hr.Health(ctx); err != nil {
		log.Printf("WARNING: HR API not reachable: %v", err)
	}

	refreshes, err := bus.Consume(ctx)
	if err != nil {
		log.Fatalf("bus consume init failed: %v", err)
	}

	log.Println("warmer started, waiting for refreshes...")
	for r := range refreshes {
		if r.Subject == "" {
			continue
		}
		log.Printf("re-warming history for %s", r.Subject)

		fetchCtx, fetchCancel := context.WithTimeout(ctx, 15*time.Second)
		events, err := hr.EmployeeAttendance(fetchCtx, cfg.HRAPIServiceToken, r.Subject)
		fetchCancel()
		if err != nil {
			log.Printf("fetch history for %s failed: %v", r.Subject, err)
			continue
		}

		if err := snapshots.SetEvents(ctx, r.Subject, events); err != nil {
			log.Printf("snapshot store for %s failed: %v", r.Subject, err)
			continue
		}
		log.Printf("history for %s warmed (%d events)", r.Subject, len(events))
	}

	log.Println("warmer stopped")
}
