package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/classics-lab/scriptorium/services/providers"
)

const (
	providerID     = "anthropic"
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

// Adapter implements the Provider interface for the Anthropic Messages API.
type Adapter struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	models       map[string]*providers.ModelInfo
}

// Config holds Anthropic adapter configuration.
type Config struct {
	// APIKey may be empty; the adapter then reports unavailable instead
	// of failing at construction.
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// New creates a new Anthropic adapter.
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	a := &Adapter{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.DefaultModel,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}
	a.initModels()
	return a
}

// ID returns the provider identity
func (a *Adapter) ID() string {
	return providerID
}

// DisplayName returns the human-readable provider name
func (a *Adapter) DisplayName() string {
	return "Anthropic Claude"
}

// Capabilities returns the operations this backend can serve
func (a *Adapter) Capabilities() providers.CapabilitySet {
	return providers.NewCapabilitySet(providers.CapTextCompletion, providers.CapVision)
}

// Models returns the models this provider exposes
func (a *Adapter) Models() []providers.ModelInfo {
	out := make([]providers.ModelInfo, 0, len(a.models))
	for _, m := range a.models {
		out = append(out, *m)
	}
	return out
}

// IsAvailable reports whether a credential is configured. The Messages API
// has no cheap unauthenticated health endpoint, so key presence is the
// probe; a bad key surfaces as a call failure handled by the fallback loop.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	return a.apiKey != ""
}

// Complete performs a messages request.
func (a *Adapter) Complete(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	body, err := json.Marshal(a.buildMessagesRequest(req, model))
	if err != nil {
		return nil, providers.NewProviderError(providerID, "MARSHAL_ERROR", "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(providerID, "REQUEST_ERROR", "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(providerID, "HTTP_ERROR", "HTTP request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(providerID, "READ_ERROR", "failed to read response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(respBody, &msgResp); err != nil {
		return nil, providers.NewProviderError(providerID, "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, err)
	}

	var text strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	cost := 0.0
	if info, ok := a.models[msgResp.Model]; ok {
		cost = info.Cost(msgResp.Usage.InputTokens, msgResp.Usage.OutputTokens)
	} else if info, ok := a.models[model]; ok {
		cost = info.Cost(msgResp.Usage.InputTokens, msgResp.Usage.OutputTokens)
	}

	return &providers.Response{
		Text:      text.String(),
		Provider:  providerID,
		Model:     msgResp.Model,
		TokensIn:  msgResp.Usage.InputTokens,
		TokensOut: msgResp.Usage.OutputTokens,
		CostUSD:   cost,
		Elapsed:   time.Since(start),
	}, nil
}

func (a *Adapter) buildMessagesRequest(req *providers.Request, model string) *messagesRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	content := make([]contentBlock, 0, 2)
	if req.Image != nil {
		content = append(content, contentBlock{
			Type: "image",
			Source: &imageSource{
				Type:      "base64",
				MediaType: req.Image.MIME,
				Data:      base64.StdEncoding.EncodeToString(req.Image.Bytes),
			},
		})
	}

	prompt := req.Prompt
	if req.Format == providers.FormatJSON {
		// The Messages API has no JSON mode switch; the instruction
		// rides on the prompt.
		prompt += "\n\nRespond with valid JSON only, no surrounding prose."
	}
	content = append(content, contentBlock{Type: "text", Text: prompt})

	out := &messagesRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []message{
			{Role: "user", Content: content},
		},
	}
	if req.System != "" {
		out.System = req.System
	}
	return out
}

func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return providers.NewProviderError(providerID, "UNKNOWN_ERROR", string(body), statusCode, err)
	}
	return providers.NewProviderError(providerID, errResp.Error.Type, errResp.Error.Message, statusCode, nil)
}

// initModels initializes the model and pricing table (USD per token).
func (a *Adapter) initModels() {
	a.models = map[string]*providers.ModelInfo{
		"claude-sonnet-4-20250514": {
			ID:                        "claude-sonnet-4-20250514",
			Name:                      "Claude Sonnet 4",
			Provider:                  providerID,
			ContextWindow:             200000,
			PricingPerPromptToken:     0.000003,
			PricingPerCompletionToken: 0.000015,
			SupportsVision:            true,
		},
		"claude-3-5-haiku-20241022": {
			ID:                        "claude-3-5-haiku-20241022",
			Name:                      "Claude 3.5 Haiku",
			Provider:                  providerID,
			ContextWindow:             200000,
			PricingPerPromptToken:     0.0000008,
			PricingPerCompletionToken: 0.000004,
			SupportsVision:            true,
		},
	}
}

// Anthropic wire types

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	Model   string         `json:"model"`
	Content []contentBlock `json:"content"`
	Usage   usage          `json:"usage"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
