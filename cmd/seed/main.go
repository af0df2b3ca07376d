package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-credential-service/config"
		"github.com/oksasatya/go-credential-service/internal/domain/entity"
	"github.com/oksasatya/go-credential-service/internal/domain/repository"
	"github.com/oksasatya/go-credential-service/internal/domain/valueobject"
	pginfra "github.com/oksasatya/go-credential-service/internal/infrastructure/postgres"
	"github.com/oksasatya/go-credential-service/pkg/helpers"
)

// seed creates an ACTIVE ADMIN credential so the admin routes can be used
// on a fresh database.
func main() {
	_ = godotenv.Load()

	email := flag.String("email", "admin@example.com", "admin email")
	phone := flag.String("phone", "79990000000", "admin phone number")
	first := flag.String("first-name", "Admin", "admin first name")
	last := flag.String("last-name", "Root", "admin last name")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env, cfg.LogLevel)

	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		logger.Fatal("SEED_ADMIN_PASSWORD is required")
	}

	cred, err := buildAdmin(*first, *last, *email, *phone, password, cfg.BcryptCost)
	if err != nil {
		logger.Fatalf("invalid admin: %v", err)
	}

	ctx := context.Background()
	pool, err := pginfra.NewPool(ctx, pginfra.PoolConfig{DSN: cfg.PostgresDSN(), Size: 1})
	if err != nil {
		logger.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := pginfra.MigrateUp(cfg.PostgresDSN()); err != nil {
		logger.Fatalf("migration failed: %v", err)
	}

	uow, err := pginfra.NewUnitOfWorkFactory(pool).Begin(ctx)
	if err != nil {
		logger.Fatalf("begin: %v", err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	if _, err := uow.Credentials().Add(ctx, cred); err != nil {
		var uv *repository.UniqueViolationError
		if errors.As(err, &uv) {
			logger.WithField("email", *email).Info("admin already exists")
			return
		}
		logger.Fatalf("failed to seed admin: %v", err)
	}
	if err := uow.Commit(ctx); err != nil {
		logger.Fatalf("commit: %v", err)
	}
	logger.WithFields(logrus.Fields{"id": cred.ID, "email": *email}).Info("seeded admin credential")
}

func buildAdmin(first, last, email, phone, password string, cost int) (*entity.Credential, error) {
	var p entity.NewCredentialParams
	var err error
	if p.FirstName, err = valueobject.NewNamedFullName("first_name", first); err != nil {
		return nil, err
	}
	if p.LastName, err = valueobject.NewNamedFullName("last_name", last); err != nil {
		return nil, err
	}
	if p.Email, err = valueobject.NewEmail(email); err != nil {
		return nil, err
	}
	if p.Phone, err = valueobject.NewPhone(phone); err != nil {
		return nil, err
	}
	if p.Password, err = valueobject.NewPassword(password); err != nil {
		return nil, err
	}
	cred, err := entity.NewCredential(p)
	if err != nil {
		return nil, err
	}
	cred.SetHashCost(cost)
	if err := cred.HashPassword(nil); err != nil {
		return nil, err
	}
	cred.Role = entity.RoleAdmin
	cred.Status = entity.StatusActive
	return cred, nil
}
