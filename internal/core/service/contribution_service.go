package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/donagest/donation-tracker/internal/core/domain"
	"github.com/donagest/donation-tracker/internal/port"
)

// DonorInput carries the donor identity and the defaults used when the
// donor is created on first reference.
type DonorInput struct {
	TaxID       string
	Name        string
	ContactName string
	Class       string
	Email       string
	Phone       string
}

// ContributionLineInput is one submitted donation line. Invalid lines are
// skipped, not fatal: the contribution is accepted as long as at least one
// line survives.
type ContributionLineInput struct {
	ItemName    string
	Description string
	Category    string
	Unit        string
	Quantity    int
	ExpiresAt   *time.Time
}

type ContributionService struct {
	db          port.DatabaseRepository
	cache       port.CacheRepository
	logger      *zap.Logger
	snapshotTTL time.Duration
}

func NewContributionService(db port.DatabaseRepository, cache port.CacheRepository, logger *zap.Logger, snapshotTTL time.Duration) *ContributionService {
	return &ContributionService{
		db:          db,
		cache:       cache,
		logger:      logger,
		snapshotTTL: snapshotTTL,
	}
}

// CreateContribution records a multi-line donation: the donor is upserted
// by tax id, each valid line resolves or creates its item, and the header,
// lines, stock increments and initial RECEIVED trace event are persisted in
// one transaction.
func (s *ContributionService) CreateContribution(ctx context.Context, donor DonorInput, notes string, lines []ContributionLineInput) (*domain.Contribution, error) {
	taxID := strings.TrimSpace(donor.TaxID)
	if taxID == "" {
		return nil, ErrMissingTaxID
	}

	d, err := s.db.UpsertDonor(ctx, domain.Donor{
		TaxID:       taxID,
		Name:        strings.TrimSpace(donor.Name),
		ContactName: strings.TrimSpace(donor.ContactName),
		Class:       donorClassOrDefault(donor.Class),
		Email:       strings.TrimSpace(donor.Email),
		Phone:       strings.TrimSpace(donor.Phone),
		Active:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert donor: %w", err)
	}

	accepted := make([]domain.ContributionLine, 0, len(lines))
	seen := make(map[string]bool, len(lines))

	for _, in := range lines {
		name := strings.TrimSpace(in.ItemName)
		if name == "" || in.Quantity < 1 {
			s.logger.Debug("skipping invalid contribution line",
				zap.String("item", name), zap.Int("quantity", in.Quantity))
			continue
		}
		if seen[name] {
			s.logger.Debug("skipping duplicate contribution line", zap.String("item", name))
			continue
		}

		item, err := s.db.GetOrCreateItem(ctx, domain.Item{
			Name:        name,
			Description: strings.TrimSpace(in.Description),
			Category:    itemCategoryOrDefault(in.Category),
			Unit:        itemUnitOrDefault(in.Unit),
			ExpiresAt:   in.ExpiresAt,
		})
		if err != nil {
			return nil, fmt.Errorf("resolve item %q: %w", name, err)
		}

		seen[name] = true
		accepted = append(accepted, domain.ContributionLine{
			ItemID:   item.ID,
			Quantity: in.Quantity,
		})
	}

	if len(accepted) == 0 {
		return nil, ErrEmptyContribution
	}

	c := &domain.Contribution{
		DonorID:    d.ID,
		TrackingID: uuid.NewString(),
		Status:     domain.StatusReceived,
		Notes:      notes,
		Lines:      accepted,
	}
	if err := s.db.CreateContribution(ctx, c); err != nil {
		return nil, fmt.Errorf("create contribution: %w", err)
	}

	s.logger.Info("contribution recorded",
		zap.Int64("contribution_id", c.ID),
		zap.String("tracking_id", c.TrackingID),
		zap.Int("lines", len(accepted)))

	return c, nil
}

// AdvanceStatus moves a contribution to the given status and appends one
// trace event. Transitions are unrestricted; an empty description is
// synthesized from the status.
func (s *ContributionService) AdvanceStatus(ctx context.Context, contributionID int64, status, description, actor string) (*domain.TraceEvent, error) {
	st, ok := domain.ParseContributionStatus(status)
	if !ok {
		return nil, fmt.Errorf("%q: %w", status, ErrUnknownStatus)
	}

	c, err := s.db.GetContribution(ctx, contributionID)
	if err != nil {
		return nil, fmt.Errorf("load contribution: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("contribution %d: %w", contributionID, domain.ErrNotFound)
	}

	if description == "" {
		description = domain.StatusNote(st)
	}

	ev, err := s.db.AdvanceStatus(ctx, contributionID, st, description, actor)
	if err != nil {
		return nil, fmt.Errorf("advance status: %w", err)
	}

	s.invalidateTracking(ctx, c.TrackingID)
	s.logger.Info("contribution status advanced",
		zap.Int64("contribution_id", contributionID),
		zap.String("status", string(st)))

	return ev, nil
}

// Track serves the tracking lookup for a contribution, read-through the
// snapshot cache. Cache failures degrade to direct reads.
func (s *ContributionService) Track(ctx context.Context, trackingID string) (*domain.ContributionSnapshot, error) {
	if data, err := s.cache.GetTrackingSnapshot(ctx, trackingID); err != nil {
		s.logger.Warn("snapshot cache read failed", zap.Error(err))
	} else if data != nil {
		var snap domain.ContributionSnapshot
		if err := json.Unmarshal(data, &snap); err == nil {
			return &snap, nil
		}
		s.logger.Warn("dropping undecodable cached snapshot", zap.String("tracking_id", trackingID))
	}

	snap, err := s.db.GetContributionByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, fmt.Errorf("tracking lookup: %w", err)
	}
	if snap == nil {
		return nil, fmt.Errorf("tracking id %s: %w", trackingID, domain.ErrNotFound)
	}

	if data, err := json.Marshal(snap); err == nil {
		if err := s.cache.SetTrackingSnapshot(ctx, trackingID, data, s.snapshotTTL); err != nil {
			s.logger.Warn("snapshot cache write failed", zap.Error(err))
		}
	}

	return snap, nil
}

// UpdateContributionLine changes a donated quantity, adjusting item stock
// by the difference inside the same transaction.
func (s *ContributionService) UpdateContributionLine(ctx context.Context, lineID int64, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	adj, err := s.db.UpdateContributionLine(ctx, lineID, quantity)
	if err != nil {
		return fmt.Errorf("update contribution line: %w", err)
	}
	s.reportShortfall(ctx, adj)
	return nil
}

// DeleteContributionLine removes a donated line, reversing its stock
// increment (floored at zero).
func (s *ContributionService) DeleteContributionLine(ctx context.Context, lineID int64) error {
	adj, err := s.db.DeleteContributionLine(ctx, lineID)
	if err != nil {
		return fmt.Errorf("delete contribution line: %w", err)
	}
	s.reportShortfall(ctx, adj)
	return nil
}

// DeleteContribution removes a header and cascades to its lines, each
// cascade applying the same stock reversal an explicit delete would.
func (s *ContributionService) DeleteContribution(ctx context.Context, id int64) error {
	adjustments, err := s.db.DeleteContribution(ctx, id)
	if err != nil {
		return fmt.Errorf("delete contribution: %w", err)
	}
	for i := range adjustments {
		s.reportShortfall(ctx, &adjustments[i])
	}
	return nil
}

func (s *ContributionService) ListDonors(ctx context.Context) ([]domain.Donor, error) {
	return s.db.ListDonors(ctx)
}

func (s *ContributionService) invalidateTracking(ctx context.Context, trackingID string) {
	if err := s.cache.InvalidateTracking(ctx, trackingID); err != nil {
		s.logger.Warn("snapshot invalidation failed",
			zap.String("tracking_id", trackingID), zap.Error(err))
	}
}

func (s *ContributionService) reportShortfall(ctx context.Context, adj *domain.StockAdjustment) {
	if adj == nil || adj.Shortfall == 0 {
		return
	}
	// A nonzero shortfall means the stock counter no longer matched the
	// line totals; the clamp hides the drift, so make it loud.
	s.logger.Warn("stock clamped at zero",
		zap.Int64("item_id", adj.ItemID), zap.Int("shortfall", adj.Shortfall))
	if err := s.cache.AddClampShortfall(ctx, adj.ItemID, adj.Shortfall); err != nil {
		s.logger.Warn("shortfall counter update failed", zap.Error(err))
	}
}

func donorClassOrDefault(c string) domain.DonorClass {
	switch class := domain.DonorClass(c); class {
	case domain.DonorIndividual, domain.DonorCompany, domain.DonorOrganization:
		return class
	}
	return domain.DonorIndividual
}

func itemCategoryOrDefault(c string) domain.ItemCategory {
	switch cat := domain.ItemCategory(c); cat {
	case domain.CategoryFood, domain.CategoryClothing, domain.CategoryHygiene,
		domain.CategoryMedicine, domain.CategoryEducation, domain.CategoryAppliances,
		domain.CategoryFurniture, domain.CategoryToys, domain.CategoryOther:
		return cat
	}
	return domain.CategoryOther
}

func itemUnitOrDefault(u string) domain.ItemUnit {
	switch unit := domain.ItemUnit(u); unit {
	case domain.UnitUnit, domain.UnitKg, domain.UnitLiter, domain.UnitBox,
		domain.UnitPack, domain.UnitBag, domain.UnitPair, domain.UnitMeter:
		return unit
	}
	return domain.UnitUnit
}
