package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classics-lab/scriptorium/services/library"
	"github.com/classics-lab/scriptorium/services/review"
	"github.com/classics-lab/scriptorium/utils"
)

// CreateDraftRequest wraps an LLM result into a pending review draft.
type CreateDraftRequest struct {
	Purpose  string `json:"purpose" validate:"required"`
	Provider string `json:"provider" validate:"required"`
	Model    string `json:"model" validate:"required"`
}

// AcceptDraftRequest resolves a draft as accepted.
type AcceptDraftRequest struct {
	QualityRating *int   `json:"quality_rating,omitempty" validate:"omitempty,gte=1,lte=5"`
	QualityNotes  string `json:"quality_notes,omitempty"`
}

// ModifyDraftRequest resolves a draft as modified.
type ModifyDraftRequest struct {
	Modifications string `json:"modifications" validate:"required"`
	QualityRating *int   `json:"quality_rating,omitempty" validate:"omitempty,gte=1,lte=5"`
}

// RejectDraftRequest resolves a draft as rejected.
type RejectDraftRequest struct {
	QualityNotes string `json:"quality_notes" validate:"required"`
}

// DraftHandler serves the human-review endpoints.
type DraftHandler struct {
	libraries *library.Manager
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewDraftHandler creates a new DraftHandler.
func NewDraftHandler(libraries *library.Manager, logger *zap.Logger) *DraftHandler {
	return &DraftHandler{
		libraries: libraries,
		validate:  validator.New(),
		logger:    logger,
	}
}

// HandleList handles GET /api/v1/drafts
func (h *DraftHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	drafts := h.libraries.Current().Drafts.List()

	out := make([]map[string]interface{}, len(drafts))
	for i, d := range drafts {
		out[i] = d.ToDict()
	}
	_ = utils.WriteOK(w, out)
}

// HandleCreate handles POST /api/v1/drafts
func (h *DraftHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateDraftRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	d := review.NewDraft(req.Purpose, req.Provider, req.Model)
	h.libraries.Current().Drafts.Add(d)

	h.logger.Info("draft created",
		zap.String("draft_id", d.ID),
		zap.String("purpose", d.Purpose),
		zap.String("provider", d.Provider))
	_ = utils.WriteCreated(w, d.ToDict())
}

// HandleAccept handles POST /api/v1/drafts/{id}/accept
func (h *DraftHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	var req AcceptDraftRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	h.resolve(w, r, func(d *review.Draft) error {
		return d.Accept(req.QualityRating, req.QualityNotes)
	})
}

// HandleModify handles POST /api/v1/drafts/{id}/modify
func (h *DraftHandler) HandleModify(w http.ResponseWriter, r *http.Request) {
	var req ModifyDraftRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	h.resolve(w, r, func(d *review.Draft) error {
		return d.Modify(req.Modifications, req.QualityRating)
	})
}

// HandleReject handles POST /api/v1/drafts/{id}/reject
func (h *DraftHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	var req RejectDraftRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	h.resolve(w, r, func(d *review.Draft) error {
		return d.Reject(req.QualityNotes)
	})
}

func (h *DraftHandler) resolve(w http.ResponseWriter, r *http.Request, apply func(*review.Draft) error) {
	id := chi.URLParam(r, "id")

	// Mutation happens inside the store; handlers only see snapshots.
	d, err := h.libraries.Current().Drafts.Resolve(id, apply)
	if err != nil {
		if errors.Is(err, review.ErrDraftNotFound) {
			_ = utils.WriteNotFound(w, "draft not found")
			return
		}
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	h.logger.Info("draft resolved",
		zap.String("draft_id", d.ID),
		zap.String("status", string(d.Status)))
	_ = utils.WriteOK(w, d.ToDict())
}
