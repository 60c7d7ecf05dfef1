package domain

// ApplyDelta applies a signed stock delta and clamps the result at zero.
// The returned shortfall is the quantity discarded by the clamp; a nonzero
// shortfall means the counter had already drifted from the line totals and
// callers are expected to surface it.
func ApplyDelta(stock, delta int) (next, shortfall int) {
	next = stock + delta
	if next < 0 {
		shortfall = -next
		next = 0
	}
	return next, shortfall
}

// StockAdjustment describes one applied stock delta. Shortfall is nonzero
// only when clamping at zero discarded part of a negative delta.
type StockAdjustment struct {
	ItemID    int64
	Delta     int
	Shortfall int
}
