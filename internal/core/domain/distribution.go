package domain

import "time"

type DistributionStatus string

const (
	DistributionPending    DistributionStatus = "PENDING"
	DistributionInProgress DistributionStatus = "IN_PROGRESS"
	DistributionCompleted  DistributionStatus = "COMPLETED"
	DistributionCancelled  DistributionStatus = "CANCELLED"
)

// Distribution is a delivery header: one beneficiary, a responsible party
// and one or more item lines drawing down stock.
type Distribution struct {
	ID              int64
	BeneficiaryID   int64
	ResponsibleName string
	TrackingID      string
	Status          DistributionStatus
	Notes           string
	CreatedAt       time.Time
	Lines           []DistributionLine
}

// DistributionLine records one distributed item; unique per
// (distribution, item). ContributionLineID, when set, links the line back
// to the donated line it satisfies for chain-of-custody traceability.
type DistributionLine struct {
	ID                 int64
	DistributionID     int64
	ItemID             int64
	Quantity           int
	ContributionLineID *int64
}
