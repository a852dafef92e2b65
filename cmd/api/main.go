// Package main implements the Sentinel HTTP API for task submission and
// statistics.
//
// API Endpoints:
//
//	POST /submit-task - submit a task for background processing
//	GET  /stats       - queue size, per-status counts, lifetime counters
//	GET  /status?id=  - one task's current status
//	GET  /result?id=  - a completed task's stored result
//	GET  /tasks?queue= - inspect the main, delayed, or dead-letter queue
//	POST /schedule    - register a cron submission
//	GET  /healthz     - store reachability probe
//
// Configuration comes from SENTINEL_* environment variables; see pkg/config.
package main

import (
	"net/http"

	"github.com/sentinelq/sentinel/pkg/config"
	"github.com/sentinelq/sentinel/pkg/logger"
	"github.com/sentinelq/sentinel/pkg/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Invalid configuration")
	}

	client := queue.NewClient(cfg.Redis.Addr)
	defer client.Close()

	client.StartCronScheduler()
	defer client.StopCronScheduler()

	if cfg.API.Key == "" {
		logger.Log.Warn().Msg("API key not set. Authentication disabled.")
	} else {
		logger.Log.Info().Msg("API authentication enabled.")
	}

	router := setupRouter(client, cfg.API.Key)

	logger.Log.Info().Str("addr", cfg.API.Addr).Msg("API server listening")
	if err := http.ListenAndServe(cfg.API.Addr, router); err != nil {
		logger.Log.Fatal().Err(err).Msg("API server failed")
	}
}
