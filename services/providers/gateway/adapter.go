package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/classics-lab/scriptorium/services/providers"
)

const providerID = "gateway"

// Adapter implements the Provider interface for a tool-call gateway: a
// backend whose protocol only accepts structured tool invocations, never
// arbitrary free-text prompts. Advertising CapStructuredToolCall alone keeps
// it out of the router's free-text and vision fallback chains.
type Adapter struct {
	token        string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	probeTimeout time.Duration

	// The gateway exchanges the long-lived token for a short-lived
	// bearer; the exchange result is cached until shortly before expiry.
	mu           sync.Mutex
	bearer       string
	bearerExpiry time.Time
}

// Config holds gateway adapter configuration.
type Config struct {
	// Token is the long-lived gateway credential; empty means the
	// adapter reports unavailable.
	Token        string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	ProbeTimeout time.Duration
}

// New creates a new gateway adapter.
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8090"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gateway-default"
	}

	return &Adapter{
		token:        cfg.Token,
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.DefaultModel,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		probeTimeout: cfg.ProbeTimeout,
	}
}

// ID returns the provider identity
func (a *Adapter) ID() string {
	return providerID
}

// DisplayName returns the human-readable provider name
func (a *Adapter) DisplayName() string {
	return "Tool gateway"
}

// Capabilities returns only structured tool calls; the router's capability
// filter excludes this backend from free-text fallback.
func (a *Adapter) Capabilities() providers.CapabilitySet {
	return providers.NewCapabilitySet(providers.CapStructuredToolCall)
}

// Models returns the models this provider exposes
func (a *Adapter) Models() []providers.ModelInfo {
	return []providers.ModelInfo{
		{
			ID:       a.defaultModel,
			Name:     a.defaultModel,
			Provider: providerID,
		},
	}
}

// IsAvailable checks that a credential is configured and the gateway
// answers its status endpoint.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	if a.token == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/status", nil)
	if err != nil {
		return false
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Complete dispatches a structured tool invocation. The gateway cannot take
// free text, so only FormatJSON requests are accepted; the prompt rides in
// the tool envelope's input field.
func (a *Adapter) Complete(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	start := time.Now()

	if req.Format != providers.FormatJSON {
		return nil, providers.NewProviderError(providerID, "UNSUPPORTED_FORMAT",
			"gateway only serves structured tool calls", 0, nil)
	}
	if req.Image != nil {
		return nil, providers.NewProviderError(providerID, "UNSUPPORTED_INPUT",
			"gateway does not accept image input", 0, nil)
	}

	bearer, err := a.exchangeToken(ctx)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	envelope := &toolRequest{
		Tool:  "complete_json",
		Model: model,
		Input: toolInput{
			Instructions: req.System,
			Payload:      req.Prompt,
			MaxTokens:    req.MaxTokens,
		},
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, providers.NewProviderError(providerID, "MARSHAL_ERROR", "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/tools/invoke", bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(providerID, "REQUEST_ERROR", "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+bearer)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(providerID, "HTTP_ERROR", "gateway request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(providerID, "READ_ERROR", "failed to read response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, providers.NewProviderError(providerID, "API_ERROR", string(respBody), httpResp.StatusCode, nil)
	}

	var toolResp toolResponse
	if err := json.Unmarshal(respBody, &toolResp); err != nil {
		return nil, providers.NewProviderError(providerID, "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, err)
	}

	return &providers.Response{
		Text:      toolResp.Output,
		Provider:  providerID,
		Model:     model,
		TokensIn:  toolResp.Usage.InputTokens,
		TokensOut: toolResp.Usage.OutputTokens,
		CostUSD:   toolResp.Usage.CostUSD,
		Elapsed:   time.Since(start),
	}, nil
}

// exchangeToken trades the long-lived gateway token for a short-lived
// bearer, caching it until one minute before expiry.
func (a *Adapter) exchangeToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bearer != "" && time.Now().Before(a.bearerExpiry.Add(-time.Minute)) {
		return a.bearer, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/token", nil)
	if err != nil {
		return "", providers.NewProviderError(providerID, "REQUEST_ERROR", "failed to create token request", 0, err)
	}
	httpReq.Header.Set("Authorization", "token "+a.token)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", providers.NewProviderError(providerID, "TOKEN_ERROR", "token exchange failed", 0, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return "", providers.NewProviderError(providerID, "TOKEN_ERROR", string(body), httpResp.StatusCode, nil)
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&tokenResp); err != nil {
		return "", providers.NewProviderError(providerID, "TOKEN_ERROR", "failed to decode token response", httpResp.StatusCode, err)
	}

	a.bearer = tokenResp.Token
	a.bearerExpiry = time.Unix(tokenResp.ExpiresAt, 0)
	return a.bearer, nil
}

// Gateway wire types

type toolRequest struct {
	Tool  string    `json:"tool"`
	Model string    `json:"model"`
	Input toolInput `json:"input"`
}

type toolInput struct {
	Instructions string `json:"instructions,omitempty"`
	Payload      string `json:"payload"`
	MaxTokens    int    `json:"max_tokens,omitempty"`
}

type toolResponse struct {
	Output string `json:"output"`
	Usage  struct {
		InputTokens  int     `json:"input_tokens"`
		OutputTokens int     `json:"output_tokens"`
		CostUSD      float64 `json:"cost_usd"`
	} `json:"usage"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}
