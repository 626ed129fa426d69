package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/classics-lab/scriptorium/services/providers"
	"github.com/classics-lab/scriptorium/services/providers/anthropic"
	"github.com/classics-lab/scriptorium/services/providers/gateway"
	"github.com/classics-lab/scriptorium/services/providers/ollama"
	"github.com/classics-lab/scriptorium/services/providers/openai"
	"github.com/classics-lab/scriptorium/services/review"
	"github.com/classics-lab/scriptorium/services/routing"
	"github.com/classics-lab/scriptorium/services/usage"
	"go.uber.org/zap"
)

// LedgerFile is the per-library usage ledger, JSON Lines, append-only.
const LedgerFile = "usage_log.jsonl"

// Workspace owns everything bound to one active library: its settings, the
// ordered provider set, the router (which owns the usage tracker) and the
// draft store. A workspace is immutable after construction; switching
// libraries builds a replacement and in-flight calls finish on the old one.
type Workspace struct {
	Name     string
	Settings *Settings
	Router   *routing.Router
	Drafts   *review.Store
}

// NewWorkspace builds a workspace for the library rooted at root.
func NewWorkspace(name, root string, logger *zap.Logger) (*Workspace, error) {
	settings, err := LoadSettings(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for library %q: %w", name, err)
	}

	ordered := buildProviders(settings, logger)
	if len(ordered) == 0 {
		logger.Warn("no providers configured for library", zap.String("library", name))
	}

	tracker := usage.NewTracker(
		filepath.Join(root, LedgerFile),
		settings.GetBool("USAGE_LOGGING", true),
		logger,
	)

	return &Workspace{
		Name:     name,
		Settings: settings,
		Router:   routing.NewRouter(ordered, tracker, logger),
		Drafts:   review.NewStore(),
	}, nil
}

// buildProviders constructs adapters in the order given by the
// PROVIDER_ORDER setting. Unknown identities are skipped with a warning so
// one typo cannot take down the whole chain.
func buildProviders(settings *Settings, logger *zap.Logger) []providers.Provider {
	requestTimeout := settings.GetDuration("REQUEST_TIMEOUT", 120*time.Second)
	probeTimeout := settings.GetDuration("PROBE_TIMEOUT", 3*time.Second)

	var ordered []providers.Provider
	for _, id := range strings.Split(settings.Get("PROVIDER_ORDER", ""), ",") {
		id = strings.TrimSpace(id)
		switch id {
		case "ollama":
			ordered = append(ordered, ollama.New(ollama.Config{
				BaseURL:      settings.Get("OLLAMA_URL", ""),
				DefaultModel: settings.Get("OLLAMA_MODEL", ""),
				Timeout:      requestTimeout,
				ProbeTimeout: probeTimeout,
			}))
		case "anthropic":
			key, _ := settings.APIKey("anthropic")
			ordered = append(ordered, anthropic.New(anthropic.Config{
				APIKey:       key,
				DefaultModel: settings.Get("ANTHROPIC_MODEL", ""),
				Timeout:      requestTimeout,
			}))
		case "openai":
			key, _ := settings.APIKey("openai")
			ordered = append(ordered, openai.New(openai.Config{
				APIKey:       key,
				DefaultModel: settings.Get("OPENAI_MODEL", ""),
				Timeout:      requestTimeout,
				ProbeTimeout: probeTimeout,
			}))
		case "gateway":
			token, _ := settings.APIKey("gateway")
			ordered = append(ordered, gateway.New(gateway.Config{
				Token:        token,
				BaseURL:      settings.Get("GATEWAY_URL", ""),
				Timeout:      requestTimeout,
				ProbeTimeout: probeTimeout,
			}))
		case "":
			// trailing comma or empty order
		default:
			logger.Warn("unknown provider in PROVIDER_ORDER, skipping",
				zap.String("provider", id))
		}
	}
	return ordered
}

// Manager holds the active workspace and rebuilds it on library switch.
// Nothing else in the application caches a router; every call site reaches
// the current workspace through the manager.
type Manager struct {
	root   string
	logger *zap.Logger

	mu      sync.RWMutex
	current *Workspace
}

// NewManager creates a manager rooted at root and activates the default
// library, creating its directory if needed.
func NewManager(root, defaultLibrary string, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		root:   root,
		logger: logger,
	}
	if _, err := m.Switch(defaultLibrary); err != nil {
		return nil, err
	}
	return m, nil
}

// Current returns the active workspace.
func (m *Manager) Current() *Workspace {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Switch activates the named library by building a fresh workspace and
// swapping it in. Calls in flight on the previous workspace complete or
// fail on that instance with no cross-talk.
func (m *Manager) Switch(name string) (*Workspace, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid library name %q", name)
	}

	dir := filepath.Join(m.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create library directory: %w", err)
	}

	ws, err := NewWorkspace(name, dir, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = ws
	m.mu.Unlock()

	m.logger.Info("library activated", zap.String("library", name))
	return ws, nil
}

// List returns the library names available under the manager's root.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read libraries root: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
