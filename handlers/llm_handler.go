package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classics-lab/scriptorium/services/library"
	"github.com/classics-lab/scriptorium/services/providers"
	"github.com/classics-lab/scriptorium/services/routing"
	"github.com/classics-lab/scriptorium/services/usage"
	"github.com/classics-lab/scriptorium/utils"
)

// CallRequest is the completion request consumed throughout the platform:
// layout analysis, OCR, text separation, bibliography extraction and review
// drafting all come through here.
type CallRequest struct {
	Prompt        string `json:"prompt" validate:"required"`
	System        string `json:"system,omitempty"`
	Format        string `json:"format,omitempty" validate:"omitempty,oneof=text json"`
	Model         string `json:"model,omitempty"`
	MaxTokens     int    `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	Purpose       string `json:"purpose" validate:"required"`
	ForceProvider string `json:"force_provider,omitempty"`
}

// ImageCallRequest carries an additional base64-encoded image.
type ImageCallRequest struct {
	CallRequest
	ImageB64  string `json:"image_b64" validate:"required,base64"`
	ImageMIME string `json:"image_mime" validate:"required"`
}

// CompareRequest fans one prompt out to several providers at once.
type CompareRequest struct {
	Prompt    string                 `json:"prompt" validate:"required"`
	System    string                 `json:"system,omitempty"`
	Format    string                 `json:"format,omitempty" validate:"omitempty,oneof=text json"`
	MaxTokens int                    `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	Purpose   string                 `json:"purpose" validate:"required"`
	Targets   []CompareTargetRequest `json:"targets" validate:"required,min=1,dive"`
}

// CompareTargetRequest names one comparison target.
type CompareTargetRequest struct {
	Provider string `json:"provider" validate:"required"`
	Model    string `json:"model,omitempty"`
}

// CallResponse is the serialized form of a successful completion.
type CallResponse struct {
	Text       string  `json:"text"`
	Provider   string  `json:"provider"`
	Model      string  `json:"model"`
	TokensIn   int     `json:"tokens_in"`
	TokensOut  int     `json:"tokens_out"`
	CostUSD    float64 `json:"cost_usd"`
	ElapsedSec float64 `json:"elapsed_sec"`
}

// CompareSlotResponse is one positional comparison outcome.
type CompareSlotResponse struct {
	Provider string        `json:"provider"`
	Result   *CallResponse `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// LLMHandler serves the orchestration endpoints.
type LLMHandler struct {
	libraries *library.Manager
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewLLMHandler creates a new LLMHandler.
func NewLLMHandler(libraries *library.Manager, logger *zap.Logger) *LLMHandler {
	return &LLMHandler{
		libraries: libraries,
		validate:  validator.New(),
		logger:    logger,
	}
}

// HandleCall handles POST /api/v1/llm/call
func (h *LLMHandler) HandleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	h.dispatch(r.Context(), w, &req, nil)
}

// HandleCallWithImage handles POST /api/v1/llm/call-image
func (h *LLMHandler) HandleCallWithImage(w http.ResponseWriter, r *http.Request) {
	var req ImageCallRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.ImageB64)
	if err != nil {
		_ = utils.WriteBadRequest(w, "image_b64 is not valid base64", nil)
		return
	}

	h.dispatch(r.Context(), w, &req.CallRequest, &providers.ImageData{
		Bytes: raw,
		MIME:  req.ImageMIME,
	})
}

// dispatch routes a call through the active workspace and logs the outcome
// to the workspace ledger.
func (h *LLMHandler) dispatch(ctx context.Context, w http.ResponseWriter, req *CallRequest, image *providers.ImageData) {
	ws := h.libraries.Current()

	provReq := &providers.Request{
		Prompt:    req.Prompt,
		System:    req.System,
		Format:    toFormat(req.Format),
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Purpose:   req.Purpose,
		Image:     image,
	}

	var resp *providers.Response
	var err error
	if req.ForceProvider != "" {
		resp, err = ws.Router.Force(ctx, req.ForceProvider, provReq)
	} else {
		resp, err = ws.Router.Complete(ctx, provReq)
	}
	if err != nil {
		h.writeRoutingError(w, err)
		return
	}

	if logErr := ws.Router.Usage().LogCall(resp, req.Purpose); logErr != nil {
		// Accounting loss could mask a cost overrun; surface it even
		// though the completion itself succeeded.
		h.logger.Error("failed to log usage", zap.Error(logErr))
		_ = utils.WriteInternalServerError(w, "completion succeeded but usage logging failed")
		return
	}

	_ = utils.WriteOK(w, toCallResponse(resp))
}

// HandleCompare handles POST /api/v1/llm/compare
func (h *LLMHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	targets := make([]routing.CompareTarget, len(req.Targets))
	for i, t := range req.Targets {
		targets[i] = routing.CompareTarget{Provider: t.Provider, Model: t.Model}
	}

	ws := h.libraries.Current()
	results := ws.Router.Compare(r.Context(), &providers.Request{
		Prompt:    req.Prompt,
		System:    req.System,
		Format:    toFormat(req.Format),
		MaxTokens: req.MaxTokens,
		Purpose:   req.Purpose,
	}, targets)

	slots := make([]usage.ComparisonSlot, len(results))
	out := make([]CompareSlotResponse, len(results))
	for i, res := range results {
		slots[i] = usage.ComparisonSlot{Response: res.Response, Err: res.Err}
		out[i] = CompareSlotResponse{Provider: res.Target.Provider}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
			continue
		}
		out[i].Result = toCallResponse(res.Response)
	}

	if logErr := ws.Router.Usage().LogComparison(req.Purpose, slots); logErr != nil {
		h.logger.Error("failed to log comparison", zap.Error(logErr))
		_ = utils.WriteInternalServerError(w, "comparison succeeded but usage logging failed")
		return
	}

	_ = utils.WriteOK(w, out)
}

// HandleStatus handles GET /api/v1/llm/status
func (h *LLMHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ws := h.libraries.Current()
	_ = utils.WriteOK(w, ws.Router.Status(r.Context()))
}

// HandleModels handles GET /api/v1/llm/models
func (h *LLMHandler) HandleModels(w http.ResponseWriter, r *http.Request) {
	ws := h.libraries.Current()
	_ = utils.WriteOK(w, ws.Router.AvailableModels(r.Context()))
}

func (h *LLMHandler) writeRoutingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, routing.ErrProviderNotFound):
		_ = utils.WriteNotFound(w, err.Error())
	case errors.Is(err, routing.ErrProviderUnavailable):
		_ = utils.WriteConflict(w, err.Error(), nil)
	case errors.Is(err, routing.ErrAllProvidersExhausted):
		_ = utils.WriteServiceUnavailable(w, err.Error())
	default:
		h.logger.Error("completion failed", zap.Error(err))
		_ = utils.WriteInternalServerError(w, err.Error())
	}
}

func toFormat(s string) providers.ResponseFormat {
	if s == string(providers.FormatJSON) {
		return providers.FormatJSON
	}
	return providers.FormatText
}

func toCallResponse(resp *providers.Response) *CallResponse {
	return &CallResponse{
		Text:       resp.Text,
		Provider:   resp.Provider,
		Model:      resp.Model,
		TokensIn:   resp.TokensIn,
		TokensOut:  resp.TokensOut,
		CostUSD:    resp.CostUSD,
		ElapsedSec: resp.ElapsedSeconds(),
	}
}
