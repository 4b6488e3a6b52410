package instruments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	domain "dip-trader/internal/domain/entity/instruments"
	"dip-trader/internal/infrastructure/instruments/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNoTiers = errors.New("instrument_tiers is empty")

// TierRepository reads tier memberships from the instrument_tiers table.
type TierRepository struct {
	db *gorm.DB
}

func NewTierRepository(dsn string) (*TierRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	return &TierRepository{db: db}, nil
}

func (r *TierRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates or updates the instrument_tiers table.
func (r *TierRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&models.InstrumentTierModel{})
}

// LoadMemberships returns one membership per tier present in the table.
func (r *TierRepository) LoadMemberships(ctx context.Context) ([]domain.Membership, error) {
	var rows []models.InstrumentTierModel
	err := r.db.WithContext(ctx).
		Order("tier").
		Order("position").
		Order("ticker").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load instrument tiers: %w", err)
	}
	return membershipsFromModels(rows)
}

func membershipsFromModels(rows []models.InstrumentTierModel) ([]domain.Membership, error) {
	if len(rows) == 0 {
		return nil, ErrNoTiers
	}

	sorted := make([]models.InstrumentTierModel, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Tier != sorted[j].Tier {
			return sorted[i].Tier < sorted[j].Tier
		}
		return sorted[i].Position < sorted[j].Position
	})

	symbols := make(map[domain.Tier][]string)
	var order []domain.Tier
	for _, row := range sorted {
		tier, err := domain.NewTier(row.Tier)
		if err != nil {
			return nil, fmt.Errorf("ticker %q: %w", row.Ticker, err)
		}
		ticker := strings.TrimSpace(row.Ticker)
		if ticker == "" {
			continue
		}
		if strings.ContainsAny(ticker, " \t\n") {
			return nil, fmt.Errorf("ticker %q contains whitespace", row.Ticker)
		}
		if _, ok := symbols[tier]; !ok {
			order = append(order, tier)
		}
		symbols[tier] = append(symbols[tier], ticker)
	}

	out := make([]domain.Membership, 0, len(order))
	for _, tier := range order {
		out = append(out, domain.Membership{Tier: tier, Symbols: strings.Join(symbols[tier], " ")})
	}
	return out, nil
}
