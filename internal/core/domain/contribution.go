package domain

import (
	"fmt"
	"time"
)

type ContributionStatus string

const (
	StatusReceived       ContributionStatus = "RECEIVED"
	StatusProcessing     ContributionStatus = "PROCESSING"
	StatusStored         ContributionStatus = "STORED"
	StatusInDistribution ContributionStatus = "IN_DISTRIBUTION"
	StatusDelivered      ContributionStatus = "DELIVERED"
	StatusCancelled      ContributionStatus = "CANCELLED"
)

// ParseContributionStatus reports whether s names a known status.
// Any status may follow any other; there is no transition table.
func ParseContributionStatus(s string) (ContributionStatus, bool) {
	switch st := ContributionStatus(s); st {
	case StatusReceived, StatusProcessing, StatusStored,
		StatusInDistribution, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

// StatusNote is the default trace description when a status change carries
// no description of its own.
func StatusNote(s ContributionStatus) string {
	return fmt.Sprintf("status changed to %s", s)
}

// ReceiptNote is the trace description written when a contribution is
// first recorded.
func ReceiptNote(lineCount int) string {
	return fmt.Sprintf("contribution received with %d item(s)", lineCount)
}

// DeliveryNote is the trace description written when fulfillment linking
// completes a contribution.
func DeliveryNote(beneficiary string) string {
	return fmt.Sprintf("fully distributed to %s", beneficiary)
}

// Contribution is a donation header: one donor, one or more item lines,
// a public tracking id and a status history. Delivered is a one-way latch
// set by the fulfillment linker.
type Contribution struct {
	ID         int64
	DonorID    int64
	TrackingID string
	Status     ContributionStatus
	Notes      string
	Delivered  bool
	CreatedAt  time.Time
	Lines      []ContributionLine
}

// ContributionLine records one donated item; unique per (contribution, item).
type ContributionLine struct {
	ID             int64
	ContributionID int64
	ItemID         int64
	Quantity       int
}
