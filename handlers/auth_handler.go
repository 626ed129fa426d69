package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classics-lab/scriptorium/config"
	"github.com/classics-lab/scriptorium/middleware"
	"github.com/classics-lab/scriptorium/utils"
)

// TokenRequest asks for a bearer token for the named subject.
type TokenRequest struct {
	Subject string `json:"subject" validate:"required"`
}

// AuthHandler issues bearer tokens for the single-user deployment. In
// production the endpoint is disabled; tokens are provisioned out of band.
type AuthHandler struct {
	cfg      *config.Config
	auth     *middleware.AuthMiddleware
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(cfg *config.Config, auth *middleware.AuthMiddleware, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		cfg:      cfg,
		auth:     auth,
		validate: validator.New(),
		logger:   logger,
	}
}

// HandleIssueToken handles POST /api/v1/auth/token
func (h *AuthHandler) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	if h.cfg.IsProduction() {
		_ = utils.WriteNotFound(w, "endpoint not found")
		return
	}
	if !h.auth.Enabled() {
		_ = utils.WriteBadRequest(w, "auth is not configured", nil)
		return
	}

	var req TokenRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	token, err := h.auth.IssueToken(req.Subject, h.cfg.Auth.TokenTTL)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "failed to issue token")
		return
	}

	_ = utils.WriteOK(w, map[string]interface{}{
		"token":      token,
		"expires_in": int(h.cfg.Auth.TokenTTL.Seconds()),
	})
}
