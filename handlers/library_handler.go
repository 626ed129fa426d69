package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classics-lab/scriptorium/services/library"
	"github.com/classics-lab/scriptorium/utils"
)

// SwitchLibraryRequest activates a different library.
type SwitchLibraryRequest struct {
	Name string `json:"name" validate:"required"`
}

// LibraryHandler serves library selection endpoints.
type LibraryHandler struct {
	libraries *library.Manager
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewLibraryHandler creates a new LibraryHandler.
func NewLibraryHandler(libraries *library.Manager, logger *zap.Logger) *LibraryHandler {
	return &LibraryHandler{
		libraries: libraries,
		validate:  validator.New(),
		logger:    logger,
	}
}

// HandleCurrent handles GET /api/v1/library
func (h *LibraryHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	names, err := h.libraries.List()
	if err != nil {
		h.logger.Error("failed to list libraries", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "failed to list libraries")
		return
	}

	_ = utils.WriteOK(w, map[string]interface{}{
		"active":    h.libraries.Current().Name,
		"libraries": names,
	})
}

// HandleSwitch handles POST /api/v1/library/switch. The entire workspace
// (settings, providers, router, drafts, ledger binding) is rebuilt.
func (h *LibraryHandler) HandleSwitch(w http.ResponseWriter, r *http.Request) {
	var req SwitchLibraryRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	ws, err := h.libraries.Switch(req.Name)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	_ = utils.WriteOK(w, map[string]interface{}{
		"active": ws.Name,
	})
}
