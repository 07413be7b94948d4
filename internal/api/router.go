package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtr002/linkboard/internal/airbridge"
	"github.com/mtr002/linkboard/internal/interfaces"
	"github.com/mtr002/linkboard/internal/links"
	"github.com/mtr002/linkboard/internal/logger"
	"github.com/mtr002/linkboard/internal/marts"
	"github.com/mtr002/linkboard/internal/nats"
	"github.com/mtr002/linkboard/internal/reports"
	"github.com/mtr002/linkboard/internal/websocket"
	"github.com/mtr002/linkboard/internal/worker"
)

const (
	correlationHeader = "X-Correlation-ID"
	maxBodyBytes      = 1 << 20
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// BulkQueue hands bulk batches to the worker process.
type BulkQueue interface {
	PublishBulkSubmission(msg *nats.BulkSubmissionMessage) error
}

// BatchStatusReader reports on batches handed to the worker process.
type BatchStatusReader interface {
	GetBatchStatus(ctx context.Context, batchID string) (*nats.BulkStatusMessage, error)
}

// Services wires the handlers. Queue, Batches, Hub and AccessToken are
// optional.
type Services struct {
	Links       *links.Manager
	Marts       *marts.Service
	Reports     *reports.Service
	Queue       BulkQueue
	Batches     BatchStatusReader
	Hub         *websocket.Hub
	AccessToken string
}

func AddRoutes(mux *http.ServeMux, s Services) {
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, correlationMiddleware(accessGate(s.AccessToken, h)))
	}

	mux.HandleFunc("POST /access", correlationMiddleware(handleAccess(s.AccessToken)))

	route("POST /links", handleCreateLink(s.Links))
	route("GET /links", handleListLinks(s.Links))
	route("GET /links/{id}", handleGetLink(s.Links))
	route("POST /links/bulk", handleBulkLinks(s.Links, s.Queue))
	route("GET /links/bulk/{batch_id}", handleBatchStatus(s.Batches))
	route("DELETE /admin/links", handleClearLinks(s.Links))

	route("GET /marts", handleSearchMarts(s.Marts))
	route("GET /marts/{code}", handleGetMart(s.Marts))
	route("POST /marts/sync", handleSyncMarts(s.Marts))

	route("GET /reports/summary", handleReportSummary(s.Reports))

	if s.Hub != nil {
		mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
			if s.AccessToken != "" && !hasAccess(r, s.AccessToken) {
				http.Error(w, "access token required", http.StatusUnauthorized)
				return
			}
			websocket.HandleWebSocket(s.Hub, w, r)
		})
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", HandleHealth)
	mux.HandleFunc("GET /health/ready", HandleReadiness)
	mux.HandleFunc("GET /health/live", HandleLiveness)
}

func correlationMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get(correlationHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		w.Header().Set(correlationHeader, correlationID)

		logger.WithCorrelationID(correlationID).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Received request")

		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		next(w, r.WithContext(ctx))
	}
}

func getCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var apiErr *airbridge.APIError
	switch {
	case errors.Is(err, links.ErrInvalidRequest),
		errors.Is(err, reports.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrNotFound),
		errors.Is(err, links.ErrMartNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, reports.ErrReportPending):
		return http.StatusAccepted
	case errors.Is(err, marts.ErrSyncNotConfigured),
		errors.Is(err, worker.ErrPoolFull),
		errors.Is(err, worker.ErrPoolStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, reports.ErrReportFailed),
		errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	correlationID := getCorrelationID(r.Context())
	status := statusFor(err)

	log := logger.WithCorrelationID(correlationID)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("Request failed")
	} else {
		log.Warn().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("Request rejected")
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), CorrelationID: correlationID})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", links.ErrInvalidRequest, err)
	}
	return nil
}

type createLinkRequest struct {
	MartCode   string `json:"mart_code"`
	AdCreative string `json:"ad_creative"`
}

func handleCreateLink(manager *links.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createLinkRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		link, created, err := manager.Create(r.Context(), req.MartCode, req.AdCreative)
		if err != nil {
			writeError(w, r, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, link)
	}
}

func handleListLinks(manager *links.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		found, err := manager.List(r.Context(), r.URL.Query().Get("mart_code"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"links": found,
			"count": len(found),
		})
	}
}

func handleGetLink(manager *links.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		link, err := manager.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, link)
	}
}

type queuedBatchResponse struct {
	BatchID string `json:"batch_id"`
	Status  string `json:"status"`
	Total   int    `json:"total"`
}

func handleBulkLinks(manager *links.Manager, queue BulkQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req links.BulkRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
		if !async {
			// a started batch runs to completion even if the client goes away
			result, err := manager.CreateBulk(context.WithoutCancel(r.Context()), req)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
			return
		}

		if queue == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{
				Error:         "async bulk creation is not enabled",
				CorrelationID: getCorrelationID(r.Context()),
			})
			return
		}

		tasks, err := manager.Validate(req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if req.BatchID == "" {
			req.BatchID = uuid.New().String()
		}

		correlationID := getCorrelationID(r.Context())
		if err := queue.PublishBulkSubmission(nats.NewBulkSubmission(req, correlationID)); err != nil {
			writeError(w, r, err)
			return
		}

		logger.WithBatchID(req.BatchID).Info().
			Str("correlation_id", correlationID).
			Int("tasks", len(tasks)).
			Msg("Bulk batch queued")
		writeJSON(w, http.StatusAccepted, queuedBatchResponse{
			BatchID: req.BatchID,
			Status:  nats.StatusQueued,
			Total:   len(tasks),
		})
	}
}

func handleBatchStatus(batches BatchStatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if batches == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{
				Error:         "batch status is not available",
				CorrelationID: getCorrelationID(r.Context()),
			})
			return
		}
		status, err := batches.GetBatchStatus(r.Context(), r.PathValue("batch_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func handleClearLinks(manager *links.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := manager.Clear(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleSearchMarts(service *marts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", links.ErrInvalidRequest))
				return
			}
			limit = n
		}

		found, err := service.Search(r.Context(), r.URL.Query().Get("q"), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"marts": found,
			"count": len(found),
		})
	}
}

func handleGetMart(service *marts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mart, err := service.Get(r.Context(), r.PathValue("code"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mart)
	}
}

func handleSyncMarts(service *marts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := service.Sync(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleReportSummary(service *reports.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		summary, err := service.Summary(r.Context(), q.Get("from"), q.Get("to"))
		if errors.Is(err, reports.ErrReportPending) {
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":         "pending",
				"error":          err.Error(),
				"correlation_id": getCorrelationID(r.Context()),
			})
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}
