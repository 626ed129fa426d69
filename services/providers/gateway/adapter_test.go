package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classics-lab/scriptorium/services/providers"
)

func newFakeGateway(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var exchanges atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			w.WriteHeader(http.StatusOK)
		case "/v1/token":
			require.Equal(t, "token long-lived", r.Header.Get("Authorization"))
			exchanges.Add(1)
			_ = json.NewEncoder(w).Encode(tokenResponse{
				Token:     "short-lived",
				ExpiresAt: time.Now().Add(time.Hour).Unix(),
			})
		case "/v1/tools/invoke":
			require.Equal(t, "Bearer short-lived", r.Header.Get("Authorization"))
			var req toolRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "complete_json", req.Tool)

			var resp toolResponse
			resp.Output = `{"entries":[]}`
			resp.Usage.InputTokens = 30
			resp.Usage.OutputTokens = 10
			resp.Usage.CostUSD = 0.002
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &exchanges
}

func TestCapabilities_StructuredOnly(t *testing.T) {
	a := New(Config{Token: "long-lived"})

	caps := a.Capabilities()
	assert.True(t, caps.Has(providers.CapStructuredToolCall))
	assert.False(t, caps.Has(providers.CapTextCompletion))
	assert.False(t, caps.Has(providers.CapVision))
}

func TestIsAvailable(t *testing.T) {
	srv, _ := newFakeGateway(t)

	assert.True(t, New(Config{Token: "long-lived", BaseURL: srv.URL}).IsAvailable(context.Background()))
	// missing credential never probes
	assert.False(t, New(Config{BaseURL: srv.URL}).IsAvailable(context.Background()))
}

func TestComplete_RejectsNonJSON(t *testing.T) {
	a := New(Config{Token: "long-lived"})

	_, err := a.Complete(context.Background(), &providers.Request{
		Prompt: "free text",
		Format: providers.FormatText,
	})
	require.Error(t, err)

	var perr *providers.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "UNSUPPORTED_FORMAT", perr.Code)
}

func TestComplete_RejectsImages(t *testing.T) {
	a := New(Config{Token: "long-lived"})

	_, err := a.Complete(context.Background(), &providers.Request{
		Prompt: "extract",
		Format: providers.FormatJSON,
		Image:  &providers.ImageData{Bytes: []byte{1}, MIME: "image/png"},
	})
	require.Error(t, err)

	var perr *providers.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "UNSUPPORTED_INPUT", perr.Code)
}

func TestComplete_ExchangesAndCachesBearer(t *testing.T) {
	srv, exchanges := newFakeGateway(t)
	a := New(Config{Token: "long-lived", BaseURL: srv.URL})

	req := &providers.Request{
		Prompt: `{"task":"bibliography"}`,
		Format: providers.FormatJSON,
	}

	resp, err := a.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"entries":[]}`, resp.Text)
	assert.Equal(t, "gateway", resp.Provider)
	assert.Equal(t, 30, resp.TokensIn)
	assert.Equal(t, 10, resp.TokensOut)
	assert.InDelta(t, 0.002, resp.CostUSD, 1e-9)

	// the second call reuses the cached bearer
	_, err = a.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), exchanges.Load())
}

func TestComplete_ExpiredBearerReExchanged(t *testing.T) {
	srv, exchanges := newFakeGateway(t)
	a := New(Config{Token: "long-lived", BaseURL: srv.URL})

	req := &providers.Request{Prompt: "{}", Format: providers.FormatJSON}

	_, err := a.Complete(context.Background(), req)
	require.NoError(t, err)

	a.mu.Lock()
	a.bearerExpiry = time.Now().Add(-time.Minute)
	a.mu.Unlock()

	_, err = a.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), exchanges.Load())
}
