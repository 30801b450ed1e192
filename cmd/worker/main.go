package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/suPer8Hu/chat-batch-worker/internal/chat"
	"github.com/suPer8Hu/chat-batch-worker/internal/config"
	"github.com/suPer8Hu/chat-batch-worker/internal/db"
	"github.com/suPer8Hu/chat-batch-worker/internal/httpapi"
	"github.com/suPer8Hu/chat-batch-worker/internal/ingest"
	"github.com/suPer8Hu/chat-batch-worker/internal/store/rabbitmq"
	"github.com/suPer8Hu/chat-batch-worker/internal/store/redisstore"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if cfg.DBAutoMigrate {
		if err := db.Migrate(gdb); err != nil {
			log.Fatalf("db migrate: %v", err)
		}
	}

	counter, err := redisstore.NewCounter(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, cfg.RabbitPrefetch, cfg.RabbitDeadLetter)
	if err != nil {
		log.Fatalf("rabbit: %v", err)
	}

	repo := chat.NewRepo(gdb)
	proc := ingest.NewProcessor(repo, counter)

	// released in this order after the final flush
	w := ingest.NewWorker(consumer, proc, cfg.FlushInterval, consumer, counter, db.Closer{DB: gdb})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// flushes run to completion even after a signal
	w.Start(context.Background())
	log.Printf("worker started, queue=%s flush_interval=%s prefetch=%d", cfg.RabbitQueue, cfg.FlushInterval, cfg.RabbitPrefetch)

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		srv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpapi.NewRouter(w),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server: %v", err)
			}
		}()
		log.Printf("health endpoint on %s", cfg.HTTPAddr)
	}

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Printf("worker shutting down")
	case err := <-w.Err():
		log.Printf("worker failed: %v", err)
		exitCode = 1
	}

	w.Shutdown(context.Background())

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(sctx)
		cancel()
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
