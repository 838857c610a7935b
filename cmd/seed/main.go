// seed creates the site administrator: a confirmed ELEVATED principal whose tokens are signed at the
// ADMIN level. Set SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD (SEED_ADMIN_USERNAME defaults to "Site Admin").
// Idempotent: skips the insert if the email is already registered.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mohamedFouadgebil/socialMedia/internal/config"
	"github.com/mohamedFouadgebil/socialMedia/internal/db"
	"github.com/mohamedFouadgebil/socialMedia/internal/logger"
	"github.com/mohamedFouadgebil/socialMedia/internal/security"
	userdomain "github.com/mohamedFouadgebil/socialMedia/internal/user/domain"
	userrepo "github.com/mohamedFouadgebil/socialMedia/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Dev: cfg.LogDev})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}
	email := strings.ToLower(strings.TrimSpace(cfg.SeedAdminEmail))
	if email == "" || cfg.SeedAdminPassword == "" {
		log.Fatal("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db", zap.Error(err))
	}
	defer conn.Close()
	users := userrepo.NewPostgresRepository(conn)

	existing, err := users.GetByEmail(ctx, email)
	if err != nil {
		log.Fatal("seed check", zap.Error(err))
	}
	if existing != nil {
		log.Info("seed already applied; skipping", zap.String("email", email))
		return
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash(cfg.SeedAdminPassword)
	if err != nil {
		log.Fatal("hash password", zap.Error(err))
	}
	now := time.Now().UTC()
	admin := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         userdomain.RoleElevated,
		ConfirmedAt:  &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := admin.SetUsername(cfg.SeedAdminUsername); err != nil {
		log.Fatal("SEED_ADMIN_USERNAME", zap.Error(err))
	}
	if err := admin.Validate(); err != nil {
		log.Fatal("admin user", zap.Error(err))
	}

	err = users.Create(ctx, admin)
	switch {
	case errors.Is(err, userrepo.ErrDuplicateEmail):
		log.Info("seed already applied; skipping", zap.String("email", email))
	case err != nil:
		log.Fatal("create admin", zap.Error(err))
	default:
		log.Info("seed complete", zap.String("email", email), zap.String("id", admin.ID))
	}
}
