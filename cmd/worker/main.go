package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"studentportal/internal/attendance"
	"studentportal/internal/config"
	"studentportal/internal/queue"
	"studentportal/internal/store"
)

// auditEvent mirrors the payload published by the API on every mark.
type auditEvent struct {
	RecordID string   `json:"record_id"`
	MarkType string   `json:"mark_type"`
	Method   string   `json:"method"`
	Distance *float64 `json:"distance,omitempty"`
}

// Worker consumes mark events and writes the attendance audit trail.
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

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema init failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "portal:attendance")
	}

	repo := attendance.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "attendance" {
			continue
		}

		var evt auditEvent
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Printf("bad message payload: %v", err)
			continue
		}

		if err := repo.RecordAudit(ctx, evt.RecordID, evt.MarkType, evt.Method, evt.Distance); err != nil {
			log.Printf("audit write failed for %s: %v", evt.RecordID, err)
			continue
		}
		log.Printf("audited %s mark for record %s (method %s)", evt.MarkType, evt.RecordID, evt.Method)
	}

	log.Println("worker stopped")
}
