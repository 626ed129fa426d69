package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/classics-lab/scriptorium/services/providers"
	"github.com/classics-lab/scriptorium/services/usage"
	"go.uber.org/zap"
)

var (
	// ErrAllProvidersExhausted is returned when no configured, capable,
	// available provider could serve the request
	ErrAllProvidersExhausted = errors.New("all providers exhausted")

	// ErrProviderNotFound is returned when a forced provider ID is not
	// configured
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderUnavailable is returned when a forced provider is
	// configured but currently unavailable
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// Router walks an ordered provider list until one succeeds. The list, its
// order and the settings it was built from are fixed at construction;
// switching libraries builds a new Router rather than mutating this one.
type Router struct {
	providers []providers.Provider
	tracker   *usage.Tracker
	logger    *zap.Logger
}

// NewRouter creates a router over the given providers in priority order.
func NewRouter(ordered []providers.Provider, tracker *usage.Tracker, logger *zap.Logger) *Router {
	return &Router{
		providers: ordered,
		tracker:   tracker,
		logger:    logger,
	}
}

// Usage returns the router's usage tracker.
func (r *Router) Usage() *usage.Tracker {
	return r.tracker
}

// Complete tries providers in priority order until one succeeds. An
// unavailable provider is skipped silently; a failing call is recorded and
// the walk continues. The first success returns immediately and no later
// candidate is tried. When nothing succeeds the exhaustion error carries
// every attempt failure.
func (r *Router) Complete(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	required := []providers.Capability{providers.CapTextCompletion}
	if req.Image != nil {
		required = append(required, providers.CapVision)
	}

	var attemptErrs []error
	attempted := false

	for _, p := range r.providers {
		if !hasAll(p, required) {
			continue
		}
		if !p.IsAvailable(ctx) {
			r.logger.Debug("provider unavailable, skipping",
				zap.String("provider", p.ID()))
			continue
		}

		attempted = true
		resp, err := p.Complete(ctx, req)
		if err != nil {
			r.logger.Warn("provider call failed, trying next candidate",
				zap.String("provider", p.ID()),
				zap.String("purpose", req.Purpose),
				zap.Error(err))
			attemptErrs = append(attemptErrs, fmt.Errorf("%s: %w", p.ID(), err))
			continue
		}

		r.logger.Info("provider call succeeded",
			zap.String("provider", p.ID()),
			zap.String("model", resp.Model),
			zap.String("purpose", req.Purpose),
			zap.Int("tokens_in", resp.TokensIn),
			zap.Int("tokens_out", resp.TokensOut),
			zap.Float64("cost_usd", resp.CostUSD))
		return resp, nil
	}

	if !attempted {
		return nil, fmt.Errorf("%w: no capable provider is available", ErrAllProvidersExhausted)
	}
	return nil, fmt.Errorf("%w: %w", ErrAllProvidersExhausted, errors.Join(attemptErrs...))
}

// Force invokes exactly one provider by ID, bypassing the fallback loop.
// The lookup covers all configured providers regardless of capability. An
// unknown ID and an unavailable provider are both caller misconfiguration;
// they differ only in message. Call failures propagate with no retry.
func (r *Router) Force(ctx context.Context, providerID string, req *providers.Request) (*providers.Response, error) {
	p := r.find(providerID)
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, providerID)
	}
	if !p.IsAvailable(ctx) {
		return nil, fmt.Errorf("%w: %q", ErrProviderUnavailable, providerID)
	}
	return p.Complete(ctx, req)
}

// CompareTarget names one provider (and optional model override) for a
// comparison run.
type CompareTarget struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// CompareResult is one slot of a comparison: the response or the error that
// replaced it, in the input order.
type CompareResult struct {
	Target   CompareTarget
	Response *providers.Response
	Err      error
}

// Compare invokes every target concurrently and waits for all of them;
// comparison exists to measure simultaneous cost and latency. The result
// slice preserves the input order, one failing target never aborts the
// others, and no cross-target timeout is applied; a hanging target delays
// the whole comparison.
func (r *Router) Compare(ctx context.Context, req *providers.Request, targets []CompareTarget) []CompareResult {
	results := make([]CompareResult, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		results[i].Target = target

		wg.Add(1)
		go func(i int, target CompareTarget) {
			defer wg.Done()

			p := r.find(target.Provider)
			if p == nil {
				results[i].Err = fmt.Errorf("%w: %q", ErrProviderNotFound, target.Provider)
				return
			}

			sub := *req
			if target.Model != "" {
				sub.Model = target.Model
			}

			resp, err := p.Complete(ctx, &sub)
			if err != nil {
				results[i].Err = err
				return
			}
			results[i].Response = resp
		}(i, target)
	}
	wg.Wait()

	return results
}

// ProviderStatus describes one provider for dashboards.
type ProviderStatus struct {
	ID           string                 `json:"id"`
	DisplayName  string                 `json:"display_name"`
	Available    bool                   `json:"available"`
	Capabilities []providers.Capability `json:"capabilities"`
}

// Status probes every configured provider.
func (r *Router) Status(ctx context.Context) map[string]ProviderStatus {
	out := make(map[string]ProviderStatus, len(r.providers))
	for _, p := range r.providers {
		out[p.ID()] = ProviderStatus{
			ID:           p.ID(),
			DisplayName:  p.DisplayName(),
			Available:    p.IsAvailable(ctx),
			Capabilities: p.Capabilities().List(),
		}
	}
	return out
}

// ModelStatus is one flattened model entry tagged with availability.
type ModelStatus struct {
	providers.ModelInfo
	Available bool `json:"available"`
}

// AvailableModels flattens the configured providers' models, in provider
// priority order, tagged with the provider's current availability.
func (r *Router) AvailableModels(ctx context.Context) []ModelStatus {
	var out []ModelStatus
	for _, p := range r.providers {
		available := p.IsAvailable(ctx)
		for _, m := range p.Models() {
			out = append(out, ModelStatus{ModelInfo: m, Available: available})
		}
	}
	return out
}

func (r *Router) find(providerID string) providers.Provider {
	for _, p := range r.providers {
		if p.ID() == providerID {
			return p
		}
	}
	return nil
}

func hasAll(p providers.Provider, required []providers.Capability) bool {
	caps := p.Capabilities()
	for _, c := range required {
		if !caps.Has(c) {
			return false
		}
	}
	return true
}
