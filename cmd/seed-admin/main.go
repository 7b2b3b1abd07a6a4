// Command seed-admin creates the administrator account, or resets its
// password when the email already exists.
//
//	seed-admin -email admin@example.com -password 'change-me'
//
// ADMIN_EMAIL and ADMIN_PASSWORD are used when the flags are omitted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/bus-charter-booking/internal/config"
	"github.com/iliyamo/bus-charter-booking/internal/database"
	"github.com/iliyamo/bus-charter-booking/internal/logger"
	"github.com/iliyamo/bus-charter-booking/internal/model"
	"github.com/iliyamo/bus-charter-booking/internal/repository"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	email := flag.String("email", os.Getenv("ADMIN_EMAIL"), "administrator email")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "administrator password")
	migrate := flag.Bool("migrate", true, "apply the schema before seeding")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "email and password are required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env, os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if *migrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
	}

	users := repository.NewUserRepo(db)
	id, err := users.Create(ctx, *email, *password, model.RoleAdmin, cfg.BcryptCost)
	switch {
	case err == nil:
		log.Info("admin created", zap.Uint64("user_id", id), zap.String("email", *email))
	case errors.Is(err, repository.ErrDuplicate):
		if err := users.SetPassword(ctx, *email, *password, cfg.BcryptCost); err != nil {
			log.Fatal("reset admin password", zap.Error(err))
		}
		log.Info("admin password reset", zap.String("email", *email))
	default:
		log.Fatal("create admin", zap.Error(err))
	}
}
