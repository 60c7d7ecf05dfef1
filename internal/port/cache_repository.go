package port

import (
	"context"
	"time"
)

// CacheRepository is the read-side cache for public tracking lookups plus
// the shortfall counters fed by stock clamping.
type CacheRepository interface {
	// GetTrackingSnapshot returns the cached snapshot bytes, or nil on miss.
	GetTrackingSnapshot(ctx context.Context, trackingID string) ([]byte, error)

	SetTrackingSnapshot(ctx context.Context, trackingID string, data []byte, ttl time.Duration) error

	// InvalidateTracking drops a cached snapshot after a status change.
	InvalidateTracking(ctx context.Context, trackingID string) error

	// AddClampShortfall accumulates stock discarded by clamping at zero.
	AddClampShortfall(ctx context.Context, itemID int64, qty int) error
}
