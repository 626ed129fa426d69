package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/classics-lab/scriptorium/services/providers"
)

const providerID = "ollama"

// Adapter implements the Provider interface for a local Ollama daemon.
// Local inference is free, so CostUSD is always zero.
type Adapter struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	probeTimeout time.Duration
}

// Config holds Ollama adapter configuration.
type Config struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	ProbeTimeout time.Duration
}

// New creates a new Ollama adapter.
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}

	return &Adapter{
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
	return "Ollama (local)"
}

// Capabilities returns the operations the daemon can serve
func (a *Adapter) Capabilities() providers.CapabilitySet {
	return providers.NewCapabilitySet(providers.CapTextCompletion, providers.CapVision)
}

// Models returns the models this provider exposes
func (a *Adapter) Models() []providers.ModelInfo {
	return []providers.ModelInfo{
		{
			ID:             a.defaultModel,
			Name:           a.defaultModel,
			Provider:       providerID,
			ContextWindow:  8192,
			SupportsVision: true,
		},
	}
}

// IsAvailable pings the daemon's tag listing endpoint. Any failure,
// including an unreachable daemon, reports false.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
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

// Complete performs a chat request against the daemon.
func (a *Adapter) Complete(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	body, err := json.Marshal(a.buildChatRequest(req, model))
	if err != nil {
		return nil, providers.NewProviderError(providerID, "MARSHAL_ERROR", "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(providerID, "REQUEST_ERROR", "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(providerID, "HTTP_ERROR", "daemon request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(providerID, "READ_ERROR", "failed to read response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, providers.NewProviderError(providerID, "API_ERROR", string(respBody), httpResp.StatusCode, nil)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, providers.NewProviderError(providerID, "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, err)
	}

	return &providers.Response{
		Text:      chatResp.Message.Content,
		Provider:  providerID,
		Model:     model,
		TokensIn:  chatResp.PromptEvalCount,
		TokensOut: chatResp.EvalCount,
		CostUSD:   0,
		Elapsed:   time.Since(start),
	}, nil
}

func (a *Adapter) buildChatRequest(req *providers.Request, model string) *chatRequest {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}

	userMsg := chatMessage{Role: "user", Content: req.Prompt}
	if req.Image != nil {
		userMsg.Images = []string{base64.StdEncoding.EncodeToString(req.Image.Bytes)}
	}
	messages = append(messages, userMsg)

	out := &chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	}
	if req.Format == providers.FormatJSON {
		out.Format = "json"
	}
	if req.MaxTokens > 0 {
		out.Options = &chatOptions{NumPredict: req.MaxTokens}
	}
	return out
}

// Ollama wire types

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
	Done            bool        `json:"done"`
}
