package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"socialpulse/backend/pkg/models"
)

const schema = `
CREATE TABLE platform_configs (
	username TEXT NOT NULL,
	platform TEXT NOT NULL,
	has_account TEXT NOT NULL,
	profile_url TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (username, platform)
);
CREATE TABLE insights (
	id UUID PRIMARY KEY,
	username TEXT NOT NULL,
	platform TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE actionables (
	id UUID PRIMARY KEY,
	username TEXT NOT NULL,
	platform TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	done BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE onboarding_status (
	username TEXT NOT NULL,
	workflow_version INT NOT NULL,
	completed BOOLEAN NOT NULL,
	completed_at TIMESTAMPTZ,
	PRIMARY KEY (username, workflow_version)
);
CREATE TABLE company_profiles (
	username TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	industry TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		t.Fatal(err)
	}

	store := NewPostgresStore(pool)

	t.Run("platform config upsert", func(t *testing.T) {
		cfg := &models.PlatformConfig{
			Username:   "acme",
			Platform:   models.PlatformInstagram,
			HasAccount: models.HasAccountUnknown,
		}
		require.NoError(t, store.SavePlatformConfig(ctx, cfg))

		cfg.HasAccount = models.HasAccountYes
		cfg.ProfileURL = "https://instagram.com/acme"
		require.NoError(t, store.SavePlatformConfig(ctx, cfg))

		configs, err := store.GetPlatformConfigs(ctx, "acme")
		require.NoError(t, err)
		require.Len(t, configs, 1)
		assert.Equal(t, models.HasAccountYes, configs[0].HasAccount)
		assert.Equal(t, "https://instagram.com/acme", configs[0].ProfileURL)
	})

	t.Run("insights append", func(t *testing.T) {
		for _, title := range []string{"first", "second"} {
			in := &models.Insight{
				ID:       uuid.New().String(),
				Username: "acme",
				Platform: models.PlatformInstagram,
				Title:    title,
				Body:     "body",
			}
			require.NoError(t, store.AddInsight(ctx, in))
		}

		insights, err := store.ListInsights(ctx, "acme", 10, 0)
		require.NoError(t, err)
		assert.Len(t, insights, 2)

		limited, err := store.ListInsights(ctx, "acme", 1, 0)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("actionables append", func(t *testing.T) {
		a := &models.Actionable{
			ID:       uuid.New().String(),
			Username: "acme",
			Title:    "schedule reels",
			Body:     "three per week",
		}
		require.NoError(t, store.AddActionable(ctx, a))

		actionables, err := store.ListActionables(ctx, "acme", 10, 0)
		require.NoError(t, err)
		require.Len(t, actionables, 1)
		assert.False(t, actionables[0].Done)
	})

	t.Run("onboarding marker keyed by workflow version", func(t *testing.T) {
		status, err := store.GetOnboardingStatus(ctx, "acme", 1)
		require.NoError(t, err)
		assert.False(t, status.Completed)

		require.NoError(t, store.SetOnboardingCompleted(ctx, "acme", 1))
		require.NoError(t, store.SetOnboardingCompleted(ctx, "acme", 1)) // idempotent

		status, err = store.GetOnboardingStatus(ctx, "acme", 1)
		require.NoError(t, err)
		assert.True(t, status.Completed)
		assert.NotNil(t, status.CompletedAt)

		// a new workflow version starts unfinished
		status, err = store.GetOnboardingStatus(ctx, "acme", 2)
		require.NoError(t, err)
		assert.False(t, status.Completed)
	})

	t.Run("company profile", func(t *testing.T) {
		_, err := store.GetCompanyProfile(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, store.SaveCompanyProfile(ctx, &models.CompanyProfile{
			Username: "acme",
			Name:     "Acme Inc",
			Industry: "retail",
		}))

		p, err := store.GetCompanyProfile(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "Acme Inc", p.Name)
	})
}
