// Package main implements the Sentinel worker process. It runs a configured
// number of dispatcher loops that claim tasks from the shared queue, execute
// them, and retry failures with exponential backoff.
//
// The process also runs the delayed-queue promoter and exposes Prometheus
// metrics. Shutdown is graceful via SIGINT/SIGTERM: every loop notices
// cancellation within one polling interval.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sentinelq/sentinel/pkg/config"
	"github.com/sentinelq/sentinel/pkg/logger"
	"github.com/sentinelq/sentinel/pkg/metrics"
	"github.com/sentinelq/sentinel/pkg/queue"
	"github.com/sentinelq/sentinel/pkg/worker"
)

// Simulated executor knobs, mirroring the task bodies this system is
// exercised with: work takes about a second and fails one time in five.
const (
	failureProbability = 0.2
	executionTime      = time.Second
)

// simulateExecution stands in for a real task body. The payload stays
// opaque; the executor only pretends to work on it.
func simulateExecution(ctx context.Context, payload json.RawMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(executionTime):
	}
	if rand.Float64() < failureProbability {
		return fmt.Errorf("simulated execution failure")
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Invalid configuration")
	}

	client := queue.NewClient(cfg.Redis.Addr)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Log.Info().Msg("Shutting down worker...")
		cancel()
	}()

	metrics.StartServer(cfg.Worker.MetricsAddr)
	go client.StartPromoter(ctx, cfg.Worker.PromoteInterval)
	go collectQueueMetrics(ctx, client)

	logger.Log.Info().
		Int("dispatchers", cfg.Worker.Count).
		Str("backoff_mode", cfg.Worker.BackoffMode).
		Msg("Worker started. Waiting for tasks...")

	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Count; i++ {
		d := worker.New(client, simulateExecution, worker.Options{
			ID:           i,
			MaxRetries:   cfg.Worker.MaxRetries,
			Backoff:      worker.NewExponentialBackoff(cfg.Worker.BackoffBase),
			PollInterval: cfg.Worker.PollInterval,
			Mode:         worker.BackoffMode(cfg.Worker.BackoffMode),
			RateLimit:    cfg.Worker.RateLimit,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Run(ctx)
		}()
	}
	wg.Wait()
}

// collectQueueMetrics periodically publishes queue depths as Prometheus
// gauges.
func collectQueueMetrics(ctx context.Context, client *queue.Client) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depths, err := client.QueueDepths(ctx)
			if err != nil {
				logger.Log.Warn().Err(err).Msg("Failed to collect queue depths")
				continue
			}
			for name, depth := range depths {
				metrics.QueueDepth.WithLabelValues(name).Set(float64(depth))
			}
		}
	}
}
