package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"socialpulse/backend/internal/config"
	"socialpulse/backend/internal/logging"
	"socialpulse/backend/internal/repository"
	"socialpulse/backend/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS platform_configs (
	username TEXT NOT NULL,
	platform TEXT NOT NULL,
	has_account TEXT NOT NULL,
	profile_url TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (username, platform)
);
CREATE TABLE IF NOT EXISTS insights (
	id UUID PRIMARY KEY,
	username TEXT NOT NULL,
	platform TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS actionables (
	id UUID PRIMARY KEY,
	username TEXT NOT NULL,
	platform TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	done BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS onboarding_status (
	username TEXT NOT NULL,
	workflow_version INT NOT NULL,
	completed BOOLEAN NOT NULL,
	completed_at TIMESTAMPTZ,
	PRIMARY KEY (username, workflow_version)
);
CREATE TABLE IF NOT EXISTS company_profiles (
	username TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	industry TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	// Load config
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to DB
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	// 1. Ensure schema exists
	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}
	logger.Info("Schema ensured")

	store := repository.NewPostgresStore(pool)

	// 2. Ensure a demo company exists
	username := "demo"
	if _, err := store.GetCompanyProfile(ctx, username); err != nil {
		logger.Info("Creating demo company profile", "username", username)
		profile := &models.CompanyProfile{
			Username: username,
			Name:     "Demo Bakery",
			Industry: "food & beverage",
		}
		if err := store.SaveCompanyProfile(ctx, profile); err != nil {
			log.Fatalf("Failed to create company profile: %v", err)
		}
	} else {
		logger.Info("Found existing company profile", "username", username)
	}

	// 3. Seed unanswered platform configs so the onboarding UI has a row per
	// platform to fill in
	existing, err := store.GetPlatformConfigs(ctx, username)
	if err != nil {
		log.Fatalf("Failed to list platform configs: %v", err)
	}
	existingMap := make(map[models.Platform]bool)
	for _, cfg := range existing {
		existingMap[cfg.Platform] = true
	}

	for _, platform := range models.AllPlatforms {
		if existingMap[platform] {
			logger.Info("Skipping existing platform config", "platform", platform)
			continue
		}
		cfg := &models.PlatformConfig{
			Username:   username,
			Platform:   platform,
			HasAccount: models.HasAccountUnknown,
		}
		if err := store.SavePlatformConfig(ctx, cfg); err != nil {
			log.Printf("Failed to seed platform config %s: %v", platform, err)
		} else {
			logger.Info("Seeded platform config", "platform", platform)
		}
	}
	logger.Info("Seeding complete!")
}
