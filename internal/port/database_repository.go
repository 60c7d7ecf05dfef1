package port

import (
	"context"

	"github.com/donagest/donation-tracker/internal/core/domain"
)

// DatabaseRepository is the persistence boundary of the core. Multi-step
// operations (header + lines + stock deltas + trace events) run inside a
// single transaction on the adapter side; line mutations report the stock
// quantity discarded by clamping at zero, if any.
type DatabaseRepository interface {
	UpsertDonor(ctx context.Context, d domain.Donor) (*domain.Donor, error)
	UpsertBeneficiary(ctx context.Context, b domain.Beneficiary) (*domain.Beneficiary, error)
	ListDonors(ctx context.Context) ([]domain.Donor, error)
	ListBeneficiaries(ctx context.Context) ([]domain.Beneficiary, error)

	// GetOrCreateItem resolves an item by name, creating it with the given
	// defaults and zero stock when absent.
	GetOrCreateItem(ctx context.Context, it domain.Item) (*domain.Item, error)
	GetItem(ctx context.Context, id int64) (*domain.Item, error)
	ListItems(ctx context.Context) ([]domain.Item, error)

	// CreateContribution persists the header, its lines, the positive stock
	// deltas and the initial RECEIVED trace event atomically, filling in
	// generated ids on c.
	CreateContribution(ctx context.Context, c *domain.Contribution) error
	GetContribution(ctx context.Context, id int64) (*domain.Contribution, error)
	GetContributionLine(ctx context.Context, id int64) (*domain.ContributionLine, error)
	GetContributionByTrackingID(ctx context.Context, trackingID string) (*domain.ContributionSnapshot, error)

	// AdvanceStatus persists the new status and appends one trace event.
	AdvanceStatus(ctx context.Context, contributionID int64, status domain.ContributionStatus, description, actor string) (*domain.TraceEvent, error)

	UpdateContributionLine(ctx context.Context, lineID int64, quantity int) (*domain.StockAdjustment, error)
	DeleteContributionLine(ctx context.Context, lineID int64) (*domain.StockAdjustment, error)
	DeleteContribution(ctx context.Context, id int64) ([]domain.StockAdjustment, error)

	// CreateDistribution persists the header and lines atomically, applying
	// conditional stock decrements and running fulfillment linking per line.
	// It returns the tracking ids of contributions completed by this call.
	CreateDistribution(ctx context.Context, d *domain.Distribution) (deliveredTracking []string, err error)
	UpdateDistributionLine(ctx context.Context, lineID int64, quantity int) (*domain.StockAdjustment, error)
	DeleteDistributionLine(ctx context.Context, lineID int64) error
	DeleteDistribution(ctx context.Context, id int64) error
}
