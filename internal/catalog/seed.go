// Package catalog holds the one-shot catalog jobs run by catalogctl: seeding
// items from a YAML file and normalising legacy reward rates.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/evetabi/periodsettle/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// SeedFile is the YAML document accepted by `catalogctl seed`:
//
//	items:
//	  - title: dice
//	    period_seconds: 60
//	    coefficients: {A: "1", B: "1.2", C: "1.5", D: "2"}
type SeedFile struct {
	Items []SeedItem `yaml:"items" validate:"required,min=1,dive"`
}

// SeedItem is one catalog entry. Active defaults to true.
type SeedItem struct {
	Title         string            `yaml:"title"          validate:"required,max=200"`
	PeriodSeconds int64             `yaml:"period_seconds" validate:"required,gt=0"`
	Coefficients  map[string]string `yaml:"coefficients"   validate:"required,len=4,dive,keys,oneof=A B C D,endkeys,required"`
	Active        *bool             `yaml:"active"`
}

// ParseSeed decodes and structurally validates a seed document. Unknown keys
// are rejected so a typo does not silently drop a field.
func ParseSeed(r io.Reader) (*SeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f SeedFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("catalog.ParseSeed: empty document")
		}
		return nil, fmt.Errorf("catalog.ParseSeed: %w", err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("catalog.ParseSeed: %w", err)
	}
	return &f, nil
}

// Input converts the entry into the catalog service's input, parsing every
// coefficient as a decimal.
func (it SeedItem) Input() (service.ItemInput, error) {
	coef := make(domain.Coefficients, len(it.Coefficients))
	for k, v := range it.Coefficients {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return service.ItemInput{}, fmt.Errorf("%w: %s: coefficient %s=%q is not a decimal",
				domain.ErrInvalidItemConfig, it.Title, k, v)
		}
		coef[domain.Label(k)] = d
	}
	active := true
	if it.Active != nil {
		active = *it.Active
	}
	return service.ItemInput{
		Title:                 it.Title,
		Coefficients:          coef,
		PeriodDurationSeconds: it.PeriodSeconds,
		Active:                active,
	}, nil
}

// ItemSeeder is the part of the catalog service seeding needs.
type ItemSeeder interface {
	ListItems(ctx context.Context, limit, offset int) ([]*domain.WageringItem, int, error)
	CreateItem(ctx context.Context, in service.ItemInput) (*domain.WageringItem, error)
}

// SeedReport summarises one seeding run.
type SeedReport struct {
	Created []string
	Skipped []string // title already present
}

// Seed creates every item whose title is not in the catalog yet, so the same
// file can be applied repeatedly. It stops at the first item the catalog
// rejects; items created before that stay.
func Seed(ctx context.Context, items ItemSeeder, f *SeedFile, logger *slog.Logger) (SeedReport, error) {
	var report SeedReport

	existing, err := titles(ctx, items)
	if err != nil {
		return report, err
	}

	for _, it := range f.Items {
		if existing[it.Title] {
			report.Skipped = append(report.Skipped, it.Title)
			continue
		}
		in, err := it.Input()
		if err != nil {
			return report, err
		}
		created, err := items.CreateItem(ctx, in)
		if err != nil {
			return report, fmt.Errorf("catalog.Seed: %s: %w", it.Title, err)
		}
		existing[it.Title] = true
		report.Created = append(report.Created, it.Title)
		logger.Info("seed: item created", "item", created.ID, "title", created.Title)
	}
	return report, nil
}

func titles(ctx context.Context, items ItemSeeder) (map[string]bool, error) {
	const page = 200
	seen := make(map[string]bool)
	for offset := 0; ; offset += page {
		batch, total, err := items.ListItems(ctx, page, offset)
		if err != nil {
			return nil, fmt.Errorf("catalog.Seed: list items: %w", err)
		}
		for _, it := range batch {
			seen[it.Title] = true
		}
		if len(batch) == 0 || offset+len(batch) >= total {
			return seen, nil
		}
	}
}
