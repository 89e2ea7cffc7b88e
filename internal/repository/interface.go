package repository

import (
	"context"

	"socialpulse/backend/pkg/models"
)

// Store is the persistence interface the orchestrator consumes. It is plain
// CRUD; the orchestrator never depends on storage internals.
type Store interface {
	Ping(ctx context.Context) error

	// Platform configuration records are upserted per (username, platform).
	SavePlatformConfig(ctx context.Context, cfg *models.PlatformConfig) error
	GetPlatformConfigs(ctx context.Context, username string) ([]*models.PlatformConfig, error)

	// Insights and actionables are append-only.
	AddInsight(ctx context.Context, insight *models.Insight) error
	ListInsights(ctx context.Context, username string, limit, offset int) ([]*models.Insight, error)
	AddActionable(ctx context.Context, actionable *models.Actionable) error
	ListActionables(ctx context.Context, username string, limit, offset int) ([]*models.Actionable, error)

	// The onboarding marker is keyed by (username, workflow version).
	SetOnboardingCompleted(ctx context.Context, username string, workflowVersion int) error
	GetOnboardingStatus(ctx context.Context, username string, workflowVersion int) (*models.OnboardingStatus, error)

	SaveCompanyProfile(ctx context.Context, profile *models.CompanyProfile) error
	GetCompanyProfile(ctx context.Context, username string) (*models.CompanyProfile, error)
}
