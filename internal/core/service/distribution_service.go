package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/donagest/donation-tracker/internal/core/domain"
	"github.com/donagest/donation-tracker/internal/port"
)

// BeneficiaryInput carries the beneficiary identity and the defaults used
// when the beneficiary is created on first reference.
type BeneficiaryInput struct {
	TaxID   string
	Name    string
	Address string
	Phone   string
	Email   string
}

// DistributionLineInput is one requested delivery line. ContributionLineID,
// when set, links the delivered goods back to the donated line they came
// from.
type DistributionLineInput struct {
	ItemID             int64
	Quantity           int
	ContributionLineID *int64
}

type DistributionService struct {
	db     port.DatabaseRepository
	cache  port.CacheRepository
	logger *zap.Logger
}

func NewDistributionService(db port.DatabaseRepository, cache port.CacheRepository, logger *zap.Logger) *DistributionService {
	return &DistributionService{db: db, cache: cache, logger: logger}
}

// CreateDistribution records a multi-line delivery. Every line is validated
// against current stock before anything is written; any violation aborts
// the whole call. The header, lines, stock decrements and fulfillment
// linking then run in one transaction, with a conditional decrement per
// item so concurrent distributions of the same item serialize instead of
// overdrawing it.
func (s *DistributionService) CreateDistribution(ctx context.Context, beneficiary BeneficiaryInput, responsibleName, notes string, lines []DistributionLineInput) (*domain.Distribution, error) {
	taxID := strings.TrimSpace(beneficiary.TaxID)
	if taxID == "" {
		return nil, ErrMissingTaxID
	}
	if len(lines) == 0 {
		return nil, ErrEmptyDistribution
	}

	b, err := s.db.UpsertBeneficiary(ctx, domain.Beneficiary{
		TaxID:   taxID,
		Name:    strings.TrimSpace(beneficiary.Name),
		Address: strings.TrimSpace(beneficiary.Address),
		Phone:   strings.TrimSpace(beneficiary.Phone),
		Email:   strings.TrimSpace(beneficiary.Email),
		Active:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert beneficiary: %w", err)
	}

	for _, in := range lines {
		if in.Quantity < 1 {
			return nil, fmt.Errorf("item %d: %w", in.ItemID, ErrInvalidQuantity)
		}
		item, err := s.db.GetItem(ctx, in.ItemID)
		if err != nil {
			return nil, fmt.Errorf("load item %d: %w", in.ItemID, err)
		}
		if item == nil {
			return nil, fmt.Errorf("item %d: %w", in.ItemID, domain.ErrNotFound)
		}
		if in.Quantity > item.Stock {
			return nil, fmt.Errorf("%s: available %d, requested %d: %w",
				item.Name, item.Stock, in.Quantity, domain.ErrInsufficientStock)
		}
		if in.ContributionLineID != nil {
			cl, err := s.db.GetContributionLine(ctx, *in.ContributionLineID)
			if err != nil {
				return nil, fmt.Errorf("load contribution line %d: %w", *in.ContributionLineID, err)
			}
			if cl == nil {
				return nil, fmt.Errorf("contribution line %d: %w", *in.ContributionLineID, domain.ErrNotFound)
			}
		}
	}

	d := &domain.Distribution{
		BeneficiaryID:   b.ID,
		ResponsibleName: strings.TrimSpace(responsibleName),
		TrackingID:      uuid.NewString(),
		Status:          domain.DistributionCompleted,
		Notes:           notes,
	}
	for _, in := range lines {
		d.Lines = append(d.Lines, domain.DistributionLine{
			ItemID:             in.ItemID,
			Quantity:           in.Quantity,
			ContributionLineID: in.ContributionLineID,
		})
	}

	delivered, err := s.db.CreateDistribution(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("create distribution: %w", err)
	}

	for _, trackingID := range delivered {
		if err := s.cache.InvalidateTracking(ctx, trackingID); err != nil {
			s.logger.Warn("snapshot invalidation failed",
				zap.String("tracking_id", trackingID), zap.Error(err))
		}
		s.logger.Info("contribution fully delivered", zap.String("tracking_id", trackingID))
	}

	s.logger.Info("distribution recorded",
		zap.Int64("distribution_id", d.ID),
		zap.String("tracking_id", d.TrackingID),
		zap.Int("lines", len(d.Lines)))

	return d, nil
}

// UpdateDistributionLine changes a delivered quantity, adjusting item stock
// by the inverted difference inside the same transaction.
func (s *DistributionService) UpdateDistributionLine(ctx context.Context, lineID int64, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	adj, err := s.db.UpdateDistributionLine(ctx, lineID, quantity)
	if err != nil {
		return fmt.Errorf("update distribution line: %w", err)
	}
	if adj != nil && adj.Shortfall > 0 {
		s.logger.Warn("stock clamped at zero",
			zap.Int64("item_id", adj.ItemID), zap.Int("shortfall", adj.Shortfall))
		if err := s.cache.AddClampShortfall(ctx, adj.ItemID, adj.Shortfall); err != nil {
			s.logger.Warn("shortfall counter update failed", zap.Error(err))
		}
	}
	return nil
}

// DeleteDistributionLine removes a delivered line, restoring its stock
// decrement in full. The delivered latch on any linked contribution is
// never reverted.
func (s *DistributionService) DeleteDistributionLine(ctx context.Context, lineID int64) error {
	if err := s.db.DeleteDistributionLine(ctx, lineID); err != nil {
		return fmt.Errorf("delete distribution line: %w", err)
	}
	return nil
}

// DeleteDistribution removes a header and cascades to its lines, restoring
// each line's stock in full.
func (s *DistributionService) DeleteDistribution(ctx context.Context, id int64) error {
	if err := s.db.DeleteDistribution(ctx, id); err != nil {
		return fmt.Errorf("delete distribution: %w", err)
	}
	return nil
}

func (s *DistributionService) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.db.ListItems(ctx)
}

func (s *DistributionService) ListBeneficiaries(ctx context.Context) ([]domain.Beneficiary, error) {
	return s.db.ListBeneficiaries(ctx)
}
