package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/classics-lab/scriptorium/config"
	"github.com/classics-lab/scriptorium/middleware"
	"github.com/classics-lab/scriptorium/services/library"
)

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	Config *config.Config
	Logger *zap.Logger

	// Libraries owns the active workspace (settings, providers, router,
	// usage ledger, draft store) and rebuilds it on library switch.
	Libraries *library.Manager

	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	manager, err := library.NewManager(cfg.Libraries.Root, cfg.Libraries.Default, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize libraries: %w", err)
	}
	deps.Libraries = manager

	deps.AuthMiddleware = middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, logger)
	if !deps.AuthMiddleware.Enabled() {
		logger.Warn("JWT secret not set, auth enforcement disabled")
	}

	logger.Info("all dependencies initialized",
		zap.String("active_library", manager.Current().Name))
	return deps, nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}
	return nil
}
