// Package main is catalogctl, the one-shot operator tool for the wagering
// item catalog.
//
//	catalogctl seed -file items.yaml      create items missing from the catalog
//	catalogctl migrate-legacy [-dry-run]  normalise legacy reward_rate values
//	catalogctl token -sub <uuid> -role ops [-ttl 1h]
//	                                      sign an access token for local runs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evetabi/periodsettle/internal/catalog"
	"github.com/evetabi/periodsettle/internal/config"
	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/evetabi/periodsettle/internal/repository"
	"github.com/evetabi/periodsettle/internal/service"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: catalogctl <command> [flags]

commands:
  seed            -file items.yaml
  migrate-legacy  [-dry-run]
  token           -sub <uuid> -role user|ops|admin|readonly [-ttl 1h]`)
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "seed":
		err = runSeed(ctx, cfg, logger, args)
	case "migrate-legacy":
		err = runMigrateLegacy(ctx, cfg, logger, args)
	case "token":
		err = runToken(cfg, args)
	case "help", "-h", "--help":
		usage(os.Stdout)
	default:
		usage(os.Stderr)
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "catalogctl:", err)
		os.Exit(1)
	}
}

func openDB(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := repository.Open(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := repository.RunMigrations(ctx, db, cfg.Server.MigrationsDir); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ── seed ──────────────────────────────────────────────────────────────────────

func runSeed(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("catalogctl seed", flag.ContinueOnError)
	file := fs.String("file", "", "YAML seed file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file required")
	}

	fh, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer fh.Close()

	seed, err := catalog.ParseSeed(fh)
	if err != nil {
		return err
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	catalogSvc := service.NewCatalogService(
		repository.NewItemRepository(db),
		repository.NewOutcomeRepository(db),
		cfg, nil, logger,
	)
	report, err := catalog.Seed(ctx, catalogSvc, seed, logger)
	fmt.Printf("created %d, skipped %d\n", len(report.Created), len(report.Skipped))
	return err
}

// ── migrate-legacy ────────────────────────────────────────────────────────────

func runMigrateLegacy(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("catalogctl migrate-legacy", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "report what would change without writing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := catalog.MigrateLegacy(ctx, repository.NewItemRepository(db), *dryRun, logger)
	if err != nil {
		return err
	}
	fmt.Printf("migrated %d, flagged %d\n", len(report.Migrated), len(report.Flagged))
	for id, reason := range report.Flagged {
		fmt.Printf("  flagged %s: %s\n", id, reason)
	}
	return nil
}

// ── token ─────────────────────────────────────────────────────────────────────

func runToken(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("catalogctl token", flag.ContinueOnError)
	sub := fs.String("sub", "", "subject (user id)")
	role := fs.String("role", string(domain.RoleUser), "role claim")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	subject, err := uuid.Parse(*sub)
	if err != nil {
		return fmt.Errorf("-sub must be a UUID: %w", err)
	}
	switch r := domain.UserRole(*role); r {
	case domain.RoleUser, domain.RoleOps, domain.RoleAdmin, domain.RoleReadOnly:
	default:
		return fmt.Errorf("unknown role %q", r)
	}

	tok, err := service.NewAuthService(cfg).IssueAccessToken(subject, domain.UserRole(*role), *ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
