package domain

import "time"

// TraceEvent is one immutable entry in a contribution's public history.
// Rows are append-only and ordered by creation time.
type TraceEvent struct {
	ID             int64
	ContributionID int64
	Status         ContributionStatus
	Description    string
	Actor          string
	CreatedAt      time.Time
}

// ContributionSnapshot is the read model served for tracking lookups,
// public and authenticated alike.
type ContributionSnapshot struct {
	TrackingID string             `json:"tracking_id"`
	DonorName  string             `json:"donor_name"`
	Status     ContributionStatus `json:"status"`
	Delivered  bool               `json:"delivered"`
	Notes      string             `json:"notes,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	Lines      []SnapshotLine     `json:"lines"`
	History    []SnapshotEvent    `json:"history"`
}

type SnapshotLine struct {
	LineID   int64    `json:"line_id"`
	ItemName string   `json:"item_name"`
	Unit     ItemUnit `json:"unit"`
	Quantity int      `json:"quantity"`
}

type SnapshotEvent struct {
	Status      ContributionStatus `json:"status"`
	Description string             `json:"description"`
	Actor       string             `json:"actor,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}
