package providers

import (
	"context"
	"time"
)

// Provider represents one LLM backend integration: a local inference daemon,
// a cloud completion API, or a tool-call gateway. Implementations are
// long-lived and constructed once per library workspace.
type Provider interface {
	// ID returns the stable provider identity used for forced selection,
	// usage logging, and the review UI (e.g., "ollama", "anthropic")
	ID() string

	// DisplayName returns the human-readable provider name
	DisplayName() string

	// Capabilities returns the operations this backend can serve. The
	// router filters candidates by capability; callers never compare
	// provider IDs to decide what a backend can do.
	Capabilities() CapabilitySet

	// Models returns the models this provider exposes
	Models() []ModelInfo

	// IsAvailable probes the backend (daemon ping, key presence, quota).
	// It must never panic and reports false on any internal failure.
	IsAvailable(ctx context.Context) bool

	// Complete performs a completion request. Requests carrying an image
	// are only dispatched to providers with CapVision. Any backend
	// problem (HTTP error, malformed output, quota) is returned as a
	// *ProviderError.
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Capability enumerates what a backend can serve.
type Capability string

const (
	// CapTextCompletion covers free-text prompt/response calls
	CapTextCompletion Capability = "text_completion"

	// CapVision covers calls carrying an image
	CapVision Capability = "vision"

	// CapStructuredToolCall covers gateways whose protocol only accepts
	// structured tool invocations, never arbitrary free text
	CapStructuredToolCall Capability = "structured_tool_call"
)

// CapabilitySet is the set of capabilities a provider advertises.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the capability.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// List returns the capabilities in stable declaration order.
func (s CapabilitySet) List() []Capability {
	ordered := []Capability{CapTextCompletion, CapVision, CapStructuredToolCall}
	out := make([]Capability, 0, len(s))
	for _, c := range ordered {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// ResponseFormat is the closed set of output formats a caller may request.
type ResponseFormat string

const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json"
)

// Valid reports whether the format is one of the defined variants.
func (f ResponseFormat) Valid() bool {
	return f == FormatText || f == FormatJSON
}

// Request represents a unified completion request.
type Request struct {
	// Prompt is the user prompt
	Prompt string

	// System is an optional system prompt
	System string

	// Format selects the response format
	Format ResponseFormat

	// Model overrides the provider's default model when set
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// Purpose is a free-form analytics label (e.g., "layout_analysis",
	// "ocr", "translation_review"); it never affects routing
	Purpose string

	// Image carries optional image input; requests with an image are
	// only offered to vision-capable providers
	Image *ImageData
}

// ImageData is raw image input for vision calls.
type ImageData struct {
	Bytes []byte
	MIME  string
}

// Response represents a successful completion. It is produced only by a
// successful provider call and is never mutated afterwards.
type Response struct {
	Text      string        `json:"text"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	TokensIn  int           `json:"tokens_in"`
	TokensOut int           `json:"tokens_out"`
	CostUSD   float64       `json:"cost_usd"`
	Elapsed   time.Duration `json:"-"`
}

// ElapsedSeconds returns the call duration in seconds for serialization.
func (r *Response) ElapsedSeconds() float64 {
	return r.Elapsed.Seconds()
}

// ModelInfo contains metadata about a model.
type ModelInfo struct {
	// ID is the model identifier
	ID string `json:"id"`

	// Name is the human-readable name
	Name string `json:"name"`

	// Provider that offers this model
	Provider string `json:"provider"`

	// ContextWindow size in tokens
	ContextWindow int `json:"context_window"`

	// Pricing per token in USD (zero for local models)
	PricingPerPromptToken     float64 `json:"pricing_per_prompt_token"`
	PricingPerCompletionToken float64 `json:"pricing_per_completion_token"`

	// SupportsVision indicates the model accepts image input
	SupportsVision bool `json:"supports_vision"`
}

// Cost computes the USD cost for the given token counts.
func (m *ModelInfo) Cost(tokensIn, tokensOut int) float64 {
	return float64(tokensIn)*m.PricingPerPromptToken +
		float64(tokensOut)*m.PricingPerCompletionToken
}
