package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"socialpulse/backend/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// PostgresStore is a PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping verifies the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// SavePlatformConfig upserts the tri-state configuration record for one
// platform.
func (s *PostgresStore) SavePlatformConfig(ctx context.Context, cfg *models.PlatformConfig) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO platform_configs (username, platform, has_account, profile_url, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (username, platform)
		DO UPDATE SET has_account = $3, profile_url = $4, updated_at = now()`,
		cfg.Username, cfg.Platform, cfg.HasAccount, cfg.ProfileURL)
	return err
}

// GetPlatformConfigs returns all platform configuration records for a company.
func (s *PostgresStore) GetPlatformConfigs(ctx context.Context, username string) ([]*models.PlatformConfig, error) {
	rows, err := s.db.Query(ctx, `
		SELECT username, platform, has_account, profile_url, updated_at
		FROM platform_configs WHERE username = $1 ORDER BY platform`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*models.PlatformConfig
	for rows.Next() {
		var cfg models.PlatformConfig
		if err := rows.Scan(&cfg.Username, &cfg.Platform, &cfg.HasAccount, &cfg.ProfileURL, &cfg.UpdatedAt); err != nil {
			return nil, err
		}
		configs = append(configs, &cfg)
	}
	return configs, rows.Err()
}

// AddInsight appends one insight. Insights are never updated or deleted.
func (s *PostgresStore) AddInsight(ctx context.Context, insight *models.Insight) error {
	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO insights (id, username, platform, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		insight.ID, insight.Username, insight.Platform, insight.Title, insight.Body, insight.CreatedAt)
	return err
}

// ListInsights returns insights for a company, newest first.
func (s *PostgresStore) ListInsights(ctx context.Context, username string, limit, offset int) ([]*models.Insight, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, username, platform, title, body, created_at
		FROM insights WHERE username = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, username, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var insights []*models.Insight
	for rows.Next() {
		var in models.Insight
		if err := rows.Scan(&in.ID, &in.Username, &in.Platform, &in.Title, &in.Body, &in.CreatedAt); err != nil {
			return nil, err
		}
		insights = append(insights, &in)
	}
	return insights, rows.Err()
}

// AddActionable appends one actionable.
func (s *PostgresStore) AddActionable(ctx context.Context, actionable *models.Actionable) error {
	if actionable.CreatedAt.IsZero() {
		actionable.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO actionables (id, username, platform, title, body, done, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		actionable.ID, actionable.Username, actionable.Platform, actionable.Title, actionable.Body, actionable.Done, actionable.CreatedAt)
	return err
}

// ListActionables returns actionables for a company, newest first.
func (s *PostgresStore) ListActionables(ctx context.Context, username string, limit, offset int) ([]*models.Actionable, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, username, platform, title, body, done, created_at
		FROM actionables WHERE username = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, username, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actionables []*models.Actionable
	for rows.Next() {
		var a models.Actionable
		if err := rows.Scan(&a.ID, &a.Username, &a.Platform, &a.Title, &a.Body, &a.Done, &a.CreatedAt); err != nil {
			return nil, err
		}
		actionables = append(actionables, &a)
	}
	return actionables, rows.Err()
}

// SetOnboardingCompleted upserts the completion marker for one workflow
// version.
func (s *PostgresStore) SetOnboardingCompleted(ctx context.Context, username string, workflowVersion int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO onboarding_status (username, workflow_version, completed, completed_at)
		VALUES ($1, $2, true, now())
		ON CONFLICT (username, workflow_version)
		DO UPDATE SET completed = true, completed_at = now()`,
		username, workflowVersion)
	return err
}

// GetOnboardingStatus returns the completion marker for one workflow version.
// A missing row means onboarding has not completed for that version.
func (s *PostgresStore) GetOnboardingStatus(ctx context.Context, username string, workflowVersion int) (*models.OnboardingStatus, error) {
	status := models.OnboardingStatus{Username: username, WorkflowVersion: workflowVersion}
	err := s.db.QueryRow(ctx, `
		SELECT completed, completed_at FROM onboarding_status
		WHERE username = $1 AND workflow_version = $2`, username, workflowVersion).
		Scan(&status.Completed, &status.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &status, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// SaveCompanyProfile upserts the company profile record.
func (s *PostgresStore) SaveCompanyProfile(ctx context.Context, profile *models.CompanyProfile) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO company_profiles (username, name, industry, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (username)
		DO UPDATE SET name = $2, industry = $3, updated_at = now()`,
		profile.Username, profile.Name, profile.Industry)
	return err
}

// GetCompanyProfile retrieves the company profile by username.
func (s *PostgresStore) GetCompanyProfile(ctx context.Context, username string) (*models.CompanyProfile, error) {
	var p models.CompanyProfile
	err := s.db.QueryRow(ctx, `
		SELECT username, name, industry, created_at, updated_at
		FROM company_profiles WHERE username = $1`, username).
		Scan(&p.Username, &p.Name, &p.Industry, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
