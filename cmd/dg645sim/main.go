package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dg645-sim/internal/config"
	"github.com/dg645-sim/internal/control"
	"github.com/dg645-sim/internal/device"
	"github.com/dg645-sim/internal/logging"
	"github.com/dg645-sim/internal/protocol"
	"github.com/dg645-sim/internal/snapshot"
	"github.com/dg645-sim/internal/stream"
)

func main() {
	log.Println("Starting DG645 delay generator simulator...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logCloser := logging.Setup(cfg.Logging)
	defer logCloser.Close()

	log.Printf("Starting DG645 simulator with config: %+v", cfg)

	// Initialize device state
	dev := device.NewDevice(cfg)

	var store *snapshot.Store
	if cfg.Device.SnapshotFile != "" {
		store = snapshot.NewStore(cfg.Device.SnapshotFile)
		state, err := store.Load()
		switch {
		case err == snapshot.ErrNoSnapshot:
			log.Printf("No snapshot at %s, starting from power-on state", store.Path())
		case err != nil:
			log.Printf("Failed to restore snapshot %s: %v", store.Path(), err)
		default:
			dev.Restore(state)
			log.Printf("Restored device state from %s", store.Path())
		}
	}

	dispatcher := protocol.NewDispatcher(dev, cfg.Logging.Verbose)

	// Create line protocol TCP server
	streamServer := stream.NewServer(cfg, dispatcher)

	go func() {
		log.Printf("Starting stream server on port %d", cfg.Network.Stream.Port)
		if err := streamServer.ListenAndServe(); err != nil {
			log.Fatalf("Stream server failed: %v", err)
		}
	}()

	// Create JSON-RPC control server
	var httpServer *http.Server
	if cfg.Network.Control.Enabled {
		controlServer := control.NewServer(cfg, dev, dispatcher, store)
		httpServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Network.Control.Port),
			Handler:      controlServer.Handler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("Starting control server on port %d", cfg.Network.Control.Port)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Control server failed: %v", err)
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down servers...")

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("Control server shutdown error: %v", err)
		}
	}

	if err := streamServer.Close(); err != nil {
		log.Printf("Stream server shutdown error: %v", err)
	}

	if store != nil {
		if err := store.Save(dev.Snapshot()); err != nil {
			log.Printf("Failed to save snapshot: %v", err)
		} else {
			log.Printf("Saved device state to %s", store.Path())
		}
	}

	log.Println("Servers stopped")
}
