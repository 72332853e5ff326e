package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"kiosk/internal/cache"
	"kiosk/internal/camera"
	"kiosk/internal/capture"
	"kiosk/internal/config"
	"kiosk/internal/hrapi"
	"kiosk/internal/notify"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	var cam capture.Camera
	switch {
	case cfg.CameraSnapshotURL != "":
		cam = camera.NewHTTP(cfg.CameraSnapshotURL, cfg.CameraTimeout)
		log.Printf("camera: snapshot device %s", cfg.CameraSnapshotURL)
	case cfg.CameraStaticFile != "":
		static, err := camera.NewStaticFromFile(cfg.CameraStaticFile)
		if err != nil {
			return err
		}
		cam = static
		log.Printf("camera: static frame %s", cfg.CameraStaticFile)
	default:
		log.Fatal("no camera configured (set CAMERA_SNAPSHOT_URL or CAMERA_STATIC_FILE)")
	}

	snapshots := cache.New(cfg.RedisAddr, cfg.CacheTTL)

	var bus notify.Bus
	if cfg.QueueBackend == "memory" {
		bus = notify.NewInMemory(64)
	} else {
		bus = notify.NewRedisBus(snapshots.Client, "kiosk:refresh")
	}

	s := &server{
		cfg:       cfg,
		hr:        hrapi.New(cfg.HRAPIBaseURL),
		sessions:  capture.NewManager(cam, cfg.AcquireTimeout),
		snapshots: snapshots,
		bus:       bus,
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      s.buildRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("kiosk listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}

	// Release any camera stream still held by an abandoned session.
	s.sessions.CloseAll()

	log.Println("kiosk exited")
	return nil
}
