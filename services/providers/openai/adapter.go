package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/classics-lab/scriptorium/services/providers"
)

const (
	providerID     = "openai"
	defaultBaseURL = "https://api.openai.com/v1"
)

// Adapter implements the Provider interface for the OpenAI chat API.
type Adapter struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	probeTimeout time.Duration
	models       map[string]*providers.ModelInfo
}

// Config holds OpenAI adapter configuration.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	ProbeTimeout time.Duration
}

// New creates a new OpenAI adapter.
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}

	a := &Adapter{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.DefaultModel,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		probeTimeout: cfg.ProbeTimeout,
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
	return "OpenAI"
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

// IsAvailable probes the models endpoint. Missing key, network failures and
// non-200 responses all report false.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	if a.apiKey == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Complete performs a chat completion request.
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

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(providerID, "REQUEST_ERROR", "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

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

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, providers.NewProviderError(providerID, "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, providers.NewProviderError(providerID, "EMPTY_RESPONSE", "response contained no choices", httpResp.StatusCode, nil)
	}

	cost := 0.0
	if info, ok := a.models[model]; ok {
		cost = info.Cost(chatResp.Usage.PromptTokens, chatResp.Usage.CompletionTokens)
	}

	return &providers.Response{
		Text:      chatResp.Choices[0].Message.Content,
		Provider:  providerID,
		Model:     chatResp.Model,
		TokensIn:  chatResp.Usage.PromptTokens,
		TokensOut: chatResp.Usage.CompletionTokens,
		CostUSD:   cost,
		Elapsed:   time.Since(start),
	}, nil
}

func (a *Adapter) buildChatRequest(req *providers.Request, model string) *chatRequest {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}

	if req.Image != nil {
		dataURI := fmt.Sprintf("data:%s;base64,%s", req.Image.MIME,
			base64.StdEncoding.EncodeToString(req.Image.Bytes))
		messages = append(messages, chatMessage{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
			},
		})
	} else {
		messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})
	}

	out := &chatRequest{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = &req.MaxTokens
	}
	if req.Format == providers.FormatJSON {
		out.ResponseFormat = &responseFormat{Type: "json_object"}
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
		"gpt-4o": {
			ID:                        "gpt-4o",
			Name:                      "GPT-4o",
			Provider:                  providerID,
			ContextWindow:             128000,
			PricingPerPromptToken:     0.0000025,
			PricingPerCompletionToken: 0.00001,
			SupportsVision:            true,
		},
		"gpt-4o-mini": {
			ID:                        "gpt-4o-mini",
			Name:                      "GPT-4o Mini",
			Provider:                  providerID,
			ContextWindow:             128000,
			PricingPerPromptToken:     0.00000015,
			PricingPerCompletionToken: 0.0000006,
			SupportsVision:            true,
		},
	}
}

// OpenAI wire types. Message content is either a plain string or a list of
// content parts (vision), so it marshals as interface{}.

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
