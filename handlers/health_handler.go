package handlers

import (
	"net/http"
	"time"

	"github.com/classics-lab/scriptorium/services/library"
	"github.com/classics-lab/scriptorium/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Library   string `json:"library"`
	Timestamp string `json:"timestamp"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	libraries *library.Manager
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(libraries *library.Manager) *HealthHandler {
	return &HealthHandler{libraries: libraries}
}

// HandleHealth handles GET /healthz. It reports liveness only; provider
// availability is served by the status endpoint.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Library:   h.libraries.Current().Name,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
