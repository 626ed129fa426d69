package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/classics-lab/scriptorium/services/library"
	"github.com/classics-lab/scriptorium/utils"
)

// UsageHandler serves usage-ledger summaries.
type UsageHandler struct {
	libraries *library.Manager
	logger    *zap.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(libraries *library.Manager, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{
		libraries: libraries,
		logger:    logger,
	}
}

// HandleSummary handles GET /api/v1/usage/summary
func (h *UsageHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.libraries.Current().Router.Usage().MonthlySummary()
	if err != nil {
		h.logger.Error("failed to compute usage summary", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "failed to read usage ledger")
		return
	}
	_ = utils.WriteOK(w, summary)
}
