package handlers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classics-lab/scriptorium/services/library"
)

// newTestManager builds a manager over a throwaway library with no
// providers configured, so handler tests never touch the network.
func newTestManager(t *testing.T) *library.Manager {
	t.Helper()

	root := t.TempDir()
	dir := filepath.Join(root, "default")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, library.SettingsFile),
		[]byte("PROVIDER_ORDER=\n"), 0o644))

	m, err := library.NewManager(root, "default", zap.NewNop())
	require.NoError(t, err)
	return m
}
