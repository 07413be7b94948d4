package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

const serviceName = "linkboard-api"

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

type ReadinessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Database  string    `json:"database"`
}

var dbConn *sql.DB

// SetDBConnection enables the database check of the readiness probe.
// Without it the server is assumed to run on the in-memory store.
func SetDBConnection(conn *sql.DB) {
	dbConn = conn
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   serviceName,
	})
}

func HandleReadiness(w http.ResponseWriter, r *http.Request) {
	response := ReadinessResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Service:   serviceName,
		Database:  "memory",
	}

	if dbConn != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := dbConn.PingContext(ctx); err != nil {
			response.Status = "not ready"
			response.Database = "disconnected"
			writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}
		response.Database = "connected"
	}

	writeJSON(w, http.StatusOK, response)
}

func HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: time.Now(),
		Service:   serviceName,
	})
}
