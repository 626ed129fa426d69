package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classics-lab/scriptorium/services/providers"
)

func TestIsAvailable_KeyPresence(t *testing.T) {
	assert.True(t, New(Config{APIKey: "sk-ant-test"}).IsAvailable(context.Background()))
	assert.False(t, New(Config{}).IsAvailable(context.Background()))
}

func TestComplete(t *testing.T) {
	var got messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(messagesResponse{
			Model: "claude-sonnet-4-20250514",
			Content: []contentBlock{
				{Type: "text", Text: "In principio erat Verbum"},
			},
			Usage: usage{InputTokens: 1000, OutputTokens: 500},
		})
	}))
	defer srv.Close()

	a := New(Config{APIKey: "sk-ant-test", BaseURL: srv.URL})

	resp, err := a.Complete(context.Background(), &providers.Request{
		Prompt: "translate John 1:1 into Latin",
		System: "you are a translator of patristic texts",
	})
	require.NoError(t, err)

	assert.Equal(t, "In principio erat Verbum", resp.Text)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", resp.Model)
	assert.Equal(t, 1000, resp.TokensIn)
	assert.Equal(t, 500, resp.TokensOut)
	// 1000 * 0.000003 + 500 * 0.000015
	assert.InDelta(t, 0.0105, resp.CostUSD, 1e-9)

	assert.Equal(t, "you are a translator of patristic texts", got.System)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Content, 1)
	assert.Equal(t, "text", got.Messages[0].Content[0].Type)
}

func TestComplete_VisionPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		require.Len(t, req.Messages[0].Content, 2)
		img := req.Messages[0].Content[0]
		assert.Equal(t, "image", img.Type)
		require.NotNil(t, img.Source)
		assert.Equal(t, "base64", img.Source.Type)
		assert.Equal(t, "image/png", img.Source.MediaType)

		_ = json.NewEncoder(w).Encode(messagesResponse{
			Model:   "claude-sonnet-4-20250514",
			Content: []contentBlock{{Type: "text", Text: "two columns"}},
		})
	}))
	defer srv.Close()

	a := New(Config{APIKey: "sk-ant-test", BaseURL: srv.URL})

	resp, err := a.Complete(context.Background(), &providers.Request{
		Prompt: "describe the page layout",
		Image:  &providers.ImageData{Bytes: []byte{0x89, 0x50}, MIME: "image/png"},
	})
	require.NoError(t, err)
	assert.Equal(t, "two columns", resp.Text)
}

func TestComplete_JSONFormatRidesOnPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		text := req.Messages[0].Content[len(req.Messages[0].Content)-1].Text
		assert.Contains(t, text, "valid JSON only")

		_ = json.NewEncoder(w).Encode(messagesResponse{
			Model:   "claude-sonnet-4-20250514",
			Content: []contentBlock{{Type: "text", Text: `{"ok":true}`}},
		})
	}))
	defer srv.Close()

	a := New(Config{APIKey: "sk-ant-test", BaseURL: srv.URL})

	_, err := a.Complete(context.Background(), &providers.Request{
		Prompt: "extract the bibliography",
		Format: providers.FormatJSON,
	})
	require.NoError(t, err)
}

func TestComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(errorResponse{
			Error: apiError{Type: "rate_limit_error", Message: "quota exceeded"},
		})
	}))
	defer srv.Close()

	a := New(Config{APIKey: "sk-ant-test", BaseURL: srv.URL})

	_, err := a.Complete(context.Background(), &providers.Request{Prompt: "salve"})
	require.Error(t, err)

	var perr *providers.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "rate_limit_error", perr.Code)
	assert.Equal(t, "quota exceeded", perr.Message)
	assert.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
}
