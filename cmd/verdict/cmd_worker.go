package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/felixgeelhaar/verdict/internal/queue"
)

// cmdWorker grades jobs from the run queue until interrupted
func cmdWorker() error {
	ctx, cancel := signalContext()
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	e, err := newEngine(ctx, engineOptions{storage: true, logger: logger})
	if err != nil {
		return err
	}
	defer e.Close()

	qc := e.cfg.Queue
	if qc.URL == "" {
		return fmt.Errorf("queue not configured (set queue.url or RABBITMQ_URL)")
	}

	conn, err := queue.NewConnection(qc.URL, logger)
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer conn.Close()

	consumer := queue.NewConsumer(conn, queue.NewRunHandler(e.runner, e.registry.GetExercise), queue.ConsumerConfig{
		Workers:    qc.Workers,
		Prefetch:   qc.Prefetch,
		JobTimeout: time.Duration(qc.JobTimeoutSeconds) * time.Second,
	}, logger)
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	logger.Info("worker started",
		"workers", qc.Workers,
		"backend", e.backend.Name(),
		"exercises", len(e.registry.ListExercises()),
	)
	<-ctx.Done()

	logger.Info("worker stopping")
	consumer.Stop()
	return nil
}
