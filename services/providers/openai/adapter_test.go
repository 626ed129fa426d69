package openai

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

func chatResponseBody(model, text string, tokensIn, tokensOut int) map[string]interface{} {
	return map[string]interface{}{
		"model": model,
		"choices": []map[string]interface{}{
			{
				"message":       map[string]string{"content": text},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     tokensIn,
			"completion_tokens": tokensOut,
		},
	}
}

func TestIsAvailable(t *testing.T) {
	t.Run("probes models endpoint", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/models", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		a := New(Config{APIKey: "sk-test", BaseURL: srv.URL})
		assert.True(t, a.IsAvailable(context.Background()))
	})

	t.Run("missing key short-circuits", func(t *testing.T) {
		a := New(Config{BaseURL: "http://127.0.0.1:1"})
		assert.False(t, a.IsAvailable(context.Background()))
	})

	t.Run("rejected key", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		a := New(Config{APIKey: "sk-bad", BaseURL: srv.URL})
		assert.False(t, a.IsAvailable(context.Background()))
	})
}

func TestComplete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(chatResponseBody("gpt-4o", "Liber primus", 2000, 100))
	}))
	defer srv.Close()

	a := New(Config{APIKey: "sk-test", BaseURL: srv.URL})

	resp, err := a.Complete(context.Background(), &providers.Request{
		Prompt:    "summarize book one",
		System:    "you are a classicist",
		Format:    providers.FormatJSON,
		MaxTokens: 512,
	})
	require.NoError(t, err)

	assert.Equal(t, "Liber primus", resp.Text)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "gpt-4o", resp.Model)
	// 2000 * 0.0000025 + 100 * 0.00001
	assert.InDelta(t, 0.006, resp.CostUSD, 1e-9)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, 512, *got.MaxTokens)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestComplete_VisionUsesDataURI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))

		messages := raw["messages"].([]interface{})
		content := messages[0].(map[string]interface{})["content"].([]interface{})
		require.Len(t, content, 2)
		img := content[1].(map[string]interface{})
		assert.Equal(t, "image_url", img["type"])
		url := img["image_url"].(map[string]interface{})["url"].(string)
		assert.Contains(t, url, "data:image/jpeg;base64,")

		_ = json.NewEncoder(w).Encode(chatResponseBody("gpt-4o", "a woodcut initial", 10, 5))
	}))
	defer srv.Close()

	a := New(Config{APIKey: "sk-test", BaseURL: srv.URL})

	resp, err := a.Complete(context.Background(), &providers.Request{
		Prompt: "describe the illustration",
		Image:  &providers.ImageData{Bytes: []byte{0xFF, 0xD8}, MIME: "image/jpeg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a woodcut initial", resp.Text)
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{Model: "gpt-4o"})
	}))
	defer srv.Close()

	a := New(Config{APIKey: "sk-test", BaseURL: srv.URL})

	_, err := a.Complete(context.Background(), &providers.Request{Prompt: "salve"})
	require.Error(t, err)

	var perr *providers.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "EMPTY_RESPONSE", perr.Code)
}

func TestComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad key"}}`))
	}))
	defer srv.Close()

	a := New(Config{APIKey: "sk-bad", BaseURL: srv.URL})

	_, err := a.Complete(context.Background(), &providers.Request{Prompt: "salve"})
	require.Error(t, err)

	var perr *providers.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "invalid_request_error", perr.Code)
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
}
