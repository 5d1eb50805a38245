package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/evetabi/periodsettle/internal/repository"
	"github.com/google/uuid"
)

// LegacyStore is the item table as seen by the reward-rate migration.
// *repository.ItemRepository implements it.
type LegacyStore interface {
	ListLegacy(ctx context.Context) ([]repository.LegacyRow, error)
	ApplyLegacy(ctx context.Context, id uuid.UUID, coef domain.Coefficients) error
	FlagInvalid(ctx context.Context, id uuid.UUID, reason string) error
}

var _ LegacyStore = (*repository.ItemRepository)(nil)

// LegacyReport summarises one migration run.
type LegacyReport struct {
	Migrated []uuid.UUID
	Flagged  map[uuid.UUID]string // item → reason
}

// MigrateLegacy normalises every remaining legacy reward_rate into a full
// coefficient map. Values that cannot be normalised are never guessed: the
// item is flagged invalid and keeps its legacy value for an operator to fix.
// With dryRun nothing is written.
func MigrateLegacy(ctx context.Context, store LegacyStore, dryRun bool, logger *slog.Logger) (LegacyReport, error) {
	report := LegacyReport{Flagged: make(map[uuid.UUID]string)}

	rows, err := store.ListLegacy(ctx)
	if err != nil {
		return report, fmt.Errorf("catalog.MigrateLegacy: %w", err)
	}

	for _, row := range rows {
		coef, err := domain.ParseLegacyRewardRate(row.RewardRate)
		if err != nil {
			reason := err.Error()
			report.Flagged[row.ID] = reason
			logger.Warn("legacy: reward rate rejected", "item", row.ID, "title", row.Title, "raw", row.RewardRate, "err", err)
			if !dryRun {
				if ferr := store.FlagInvalid(ctx, row.ID, reason); ferr != nil {
					return report, fmt.Errorf("catalog.MigrateLegacy: flag %s: %w", row.ID, ferr)
				}
			}
			continue
		}

		if !dryRun {
			if err := store.ApplyLegacy(ctx, row.ID, coef); err != nil {
				return report, fmt.Errorf("catalog.MigrateLegacy: apply %s: %w", row.ID, err)
			}
		}
		report.Migrated = append(report.Migrated, row.ID)
		logger.Info("legacy: reward rate normalised", "item", row.ID, "title", row.Title, "dry_run", dryRun)
	}
	return report, nil
}
