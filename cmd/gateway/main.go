package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"draftsync/internal/bootstrap"
	"draftsync/internal/config"
	"draftsync/internal/server"
	"draftsync/internal/tracer"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Start Background Services
	if err := container.StatusConsumer.Consume(ctx); err != nil {
		log.Printf("Background Status Consumer Error: %v", err)
	}
	if err := container.EngineNotifier.Start(ctx); err != nil {
		log.Printf("Background Engine Notifier Error: %v", err)
	}
	if container.StatusStream != nil {
		go container.StatusStream.Run(ctx)
	} else {
		log.Println("Note: UPSTREAM_WS_URL not set, status push channel disabled")
	}

	// 4. Initialize Server
	srv := server.New(cfg, container)

	// 5. Flush unsaved drafts before exiting on SIGINT/SIGTERM
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		// Tell every connected UI the gateway is going away, then flush.
		notice, _ := json.Marshal(map[string]string{"type": "gateway_closing"})
		container.WebSocketHub.Broadcast(notice)

		flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer flushCancel()
		container.Sessions.Shutdown(flushCtx)
		cancel()
		os.Exit(0)
	}()

	// 6. Run Server
	log.Fatal(srv.Run())
}
