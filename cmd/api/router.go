package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sentinelq/sentinel/pkg/logger"
	"github.com/sentinelq/sentinel/pkg/metrics"
	"github.com/sentinelq/sentinel/pkg/queue"
	"github.com/sentinelq/sentinel/pkg/tasks"
)

// submitRequest is the body of POST /submit-task. Payload is opaque JSON
// handed through to the executor. Priority is optional; omitted means 0.
type submitRequest struct {
	Payload  json.RawMessage `json:"payload"`
	Priority *int            `json:"priority"`
}

// submitResponse acknowledges an accepted task. Submission is
// fire-and-forget: terminal failures later surface only via /stats and
// /status, never back to the submitter.
type submitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type scheduleRequest struct {
	Spec     string          `json:"spec"`
	Payload  json.RawMessage `json:"payload"`
	Priority *int            `json:"priority"`
}

// authMiddleware enforces X-API-Key authentication. An empty requiredKey
// disables the check (dev mode).
func authMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiredKey != "" && r.Header.Get("X-API-Key") != requiredKey {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware adds permissive CORS headers and answers preflights.
// Runs before auth so OPTIONS requests don't fail the key check.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// setupRouter wires the HTTP surface around an explicit queue client.
func setupRouter(client *queue.Client, apiKey string) chi.Router {
	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := client.Ping(r.Context()); err != nil {
			http.Error(w, "store unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(apiKey))

		r.Post("/submit-task", func(w http.ResponseWriter, r *http.Request) {
			var req submitRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			priority := 0
			if req.Priority != nil {
				priority = *req.Priority
			}

			task := tasks.New(req.Payload, priority)
			if err := client.Submit(r.Context(), task); err != nil {
				writeStoreError(w, err)
				return
			}
			metrics.TasksSubmitted.Inc()
			logger.Log.Info().Str("task_id", task.ID).Int("priority", priority).Msg("Task submitted")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			if err := json.NewEncoder(w).Encode(submitResponse{TaskID: task.ID, Status: string(task.Status)}); err != nil {
				logger.Log.Error().Err(err).Msg("Failed to encode response")
			}
		})

		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			stats, err := client.Stats(r.Context())
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, stats)
		})

		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			taskID := r.URL.Query().Get("id")
			if taskID == "" {
				http.Error(w, "Missing task ID", http.StatusBadRequest)
				return
			}
			status, err := client.TaskStatus(r.Context(), taskID)
			if errors.Is(err, queue.ErrEmpty) {
				http.Error(w, "Unknown task", http.StatusNotFound)
				return
			}
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, map[string]string{"task_id": taskID, "status": string(status)})
		})

		r.Get("/result", func(w http.ResponseWriter, r *http.Request) {
			taskID := r.URL.Query().Get("id")
			if taskID == "" {
				http.Error(w, "Missing task ID", http.StatusBadRequest)
				return
			}
			result, err := client.GetResult(r.Context(), taskID)
			if errors.Is(err, queue.ErrEmpty) {
				http.Error(w, "Result not found", http.StatusNotFound)
				return
			}
			if err != nil {
				writeStoreError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(result))
		})

		r.Get("/tasks", func(w http.ResponseWriter, r *http.Request) {
			queueName := r.URL.Query().Get("queue")
			if queueName == "" {
				queueName = queue.QueueMain
			}
			limit := int64(50)
			if raw := r.URL.Query().Get("limit"); raw != "" {
				n, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || n < 1 {
					http.Error(w, "Invalid limit", http.StatusBadRequest)
					return
				}
				limit = n
			}

			list, err := client.InspectQueue(r.Context(), queueName, limit)
			if err != nil {
				if errors.Is(err, queue.ErrUnavailable) {
					writeStoreError(w, err)
				} else {
					http.Error(w, err.Error(), http.StatusBadRequest)
				}
				return
			}
			writeJSON(w, list)
		})

		r.Post("/schedule", func(w http.ResponseWriter, r *http.Request) {
			var req scheduleRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			priority := 0
			if req.Priority != nil {
				priority = *req.Priority
			}

			template := tasks.Task{Payload: req.Payload, Priority: priority}
			entryID, err := client.Schedule(req.Spec, template)
			if err != nil {
				http.Error(w, "Invalid cron spec: "+err.Error(), http.StatusBadRequest)
				return
			}
			writeJSON(w, map[string]int{"entry_id": int(entryID)})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeStoreError maps a store failure to 503: the store being down is a
// service-level condition, not a client mistake.
func writeStoreError(w http.ResponseWriter, err error) {
	logger.Log.Error().Err(err).Msg("Store operation failed")
	if errors.Is(err, queue.ErrUnavailable) {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
