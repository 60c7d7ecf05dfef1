package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/donagest/donation-tracker/internal/core/domain"
	"github.com/donagest/donation-tracker/internal/port"
)

var (
	_ port.DatabaseRepository = (*mockRepo)(nil)
	_ port.CacheRepository    = (*mockCache)(nil)
)

// mockRepo is an in-memory DatabaseRepository faithful to the adapter
// contract: stock deltas, clamping, fulfillment linking and trace appends
// behave like the MySQL implementation.
type mockRepo struct {
	mu     sync.Mutex
	nextID int64

	donors            map[string]*domain.Donor
	beneficiaries     map[string]*domain.Beneficiary
	items             map[int64]*domain.Item
	itemsByName       map[string]int64
	contributions     map[int64]*domain.Contribution
	contributionLines map[int64]*domain.ContributionLine
	distributions     map[int64]*domain.Distribution
	distributionLines map[int64]*domain.DistributionLine
	events            []domain.TraceEvent
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		donors:            make(map[string]*domain.Donor),
		beneficiaries:     make(map[string]*domain.Beneficiary),
		items:             make(map[int64]*domain.Item),
		itemsByName:       make(map[string]int64),
		contributions:     make(map[int64]*domain.Contribution),
		contributionLines: make(map[int64]*domain.ContributionLine),
		distributions:     make(map[int64]*domain.Distribution),
		distributionLines: make(map[int64]*domain.DistributionLine),
	}
}

func (m *mockRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *mockRepo) UpsertDonor(_ context.Context, d domain.Donor) (*domain.Donor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.donors[d.TaxID]; ok {
		if d.Email != "" {
			existing.Email = d.Email
		}
		if d.Phone != "" {
			existing.Phone = d.Phone
		}
		out := *existing
		return &out, nil
	}
	d.ID = m.id()
	d.CreatedAt = time.Now()
	m.donors[d.TaxID] = &d
	out := d
	return &out, nil
}

func (m *mockRepo) UpsertBeneficiary(_ context.Context, b domain.Beneficiary) (*domain.Beneficiary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.beneficiaries[b.TaxID]; ok {
		if b.Phone != "" {
			existing.Phone = b.Phone
		}
		if b.Email != "" {
			existing.Email = b.Email
		}
		out := *existing
		return &out, nil
	}
	b.ID = m.id()
	b.CreatedAt = time.Now()
	m.beneficiaries[b.TaxID] = &b
	out := b
	return &out, nil
}

func (m *mockRepo) ListDonors(context.Context) ([]domain.Donor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Donor
	for _, d := range m.donors {
		out = append(out, *d)
	}
	return out, nil
}

func (m *mockRepo) ListBeneficiaries(context.Context) ([]domain.Beneficiary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Beneficiary
	for _, b := range m.beneficiaries {
		out = append(out, *b)
	}
	return out, nil
}

func (m *mockRepo) GetOrCreateItem(_ context.Context, it domain.Item) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.itemsByName[it.Name]; ok {
		out := *m.items[id]
		return &out, nil
	}
	it.ID = m.id()
	it.Stock = 0
	m.items[it.ID] = &it
	m.itemsByName[it.Name] = it.ID
	out := it
	return &out, nil
}

func (m *mockRepo) GetItem(_ context.Context, id int64) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	out := *it
	return &out, nil
}

func (m *mockRepo) ListItems(context.Context) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Item
	for _, it := range m.items {
		out = append(out, *it)
	}
	return out, nil
}

func (m *mockRepo) CreateContribution(_ context.Context, c *domain.Contribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c.ID = m.id()
	c.CreatedAt = time.Now()
	for i := range c.Lines {
		line := &c.Lines[i]
		line.ID = m.id()
		line.ContributionID = c.ID
		stored := *line
		m.contributionLines[line.ID] = &stored
		m.items[line.ItemID].Stock += line.Quantity
	}
	stored := *c
	m.contributions[c.ID] = &stored
	m.appendEvent(c.ID, domain.StatusReceived, domain.ReceiptNote(len(c.Lines)), "")
	return nil
}

func (m *mockRepo) GetContribution(_ context.Context, id int64) (*domain.Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contributions[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (m *mockRepo) GetContributionLine(_ context.Context, id int64) (*domain.ContributionLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	line, ok := m.contributionLines[id]
	if !ok {
		return nil, nil
	}
	out := *line
	return &out, nil
}

func (m *mockRepo) GetContributionByTrackingID(_ context.Context, trackingID string) (*domain.ContributionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.contributions {
		if c.TrackingID != trackingID {
			continue
		}
		snap := &domain.ContributionSnapshot{
			TrackingID: c.TrackingID,
			Status:     c.Status,
			Delivered:  c.Delivered,
			Notes:      c.Notes,
			CreatedAt:  c.CreatedAt,
		}
		for _, d := range m.donors {
			if d.ID == c.DonorID {
				snap.DonorName = d.Name
			}
		}
		for _, line := range m.contributionLines {
			if line.ContributionID == c.ID {
				snap.Lines = append(snap.Lines, domain.SnapshotLine{
					LineID:   line.ID,
					ItemName: m.items[line.ItemID].Name,
					Unit:     m.items[line.ItemID].Unit,
					Quantity: line.Quantity,
				})
			}
		}
		for _, ev := range m.events {
			if ev.ContributionID == c.ID {
				snap.History = append(snap.History, domain.SnapshotEvent{
					Status:      ev.Status,
					Description: ev.Description,
					Actor:       ev.Actor,
					CreatedAt:   ev.CreatedAt,
				})
			}
		}
		return snap, nil
	}
	return nil, nil
}

func (m *mockRepo) AdvanceStatus(_ context.Context, contributionID int64, status domain.ContributionStatus, description, actor string) (*domain.TraceEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contributions[contributionID]
	if !ok {
		return nil, fmt.Errorf("contribution %d: %w", contributionID, domain.ErrNotFound)
	}
	c.Status = status
	ev := m.appendEvent(contributionID, status, description, actor)
	return &ev, nil
}

func (m *mockRepo) UpdateContributionLine(_ context.Context, lineID int64, quantity int) (*domain.StockAdjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	line, ok := m.contributionLines[lineID]
	if !ok {
		return nil, fmt.Errorf("contribution line %d: %w", lineID, domain.ErrNotFound)
	}
	delta := quantity - line.Quantity
	line.Quantity = quantity
	return m.adjustItem(line.ItemID, delta), nil
}

func (m *mockRepo) DeleteContributionLine(_ context.Context, lineID int64) (*domain.StockAdjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	line, ok := m.contributionLines[lineID]
	if !ok {
		return nil, fmt.Errorf("contribution line %d: %w", lineID, domain.ErrNotFound)
	}
	delete(m.contributionLines, lineID)
	return m.adjustItem(line.ItemID, -line.Quantity), nil
}

func (m *mockRepo) DeleteContribution(_ context.Context, id int64) ([]domain.StockAdjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.contributions[id]; !ok {
		return nil, fmt.Errorf("contribution %d: %w", id, domain.ErrNotFound)
	}
	var adjustments []domain.StockAdjustment
	for lineID, line := range m.contributionLines {
		if line.ContributionID == id {
			adjustments = append(adjustments, *m.adjustItem(line.ItemID, -line.Quantity))
			delete(m.contributionLines, lineID)
		}
	}
	delete(m.contributions, id)
	return adjustments, nil
}

func (m *mockRepo) CreateDistribution(_ context.Context, d *domain.Distribution) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, line := range d.Lines {
		it, ok := m.items[line.ItemID]
		if !ok {
			return nil, fmt.Errorf("item %d: %w", line.ItemID, domain.ErrNotFound)
		}
		if it.Stock < line.Quantity {
			return nil, fmt.Errorf("item %d: %w", line.ItemID, domain.ErrInsufficientStock)
		}
	}

	d.ID = m.id()
	d.CreatedAt = time.Now()
	var beneficiaryName string
	for _, b := range m.beneficiaries {
		if b.ID == d.BeneficiaryID {
			beneficiaryName = b.Name
		}
	}

	var delivered []string
	for i := range d.Lines {
		line := &d.Lines[i]
		line.ID = m.id()
		line.DistributionID = d.ID
		stored := *line
		m.distributionLines[line.ID] = &stored
		m.items[line.ItemID].Stock -= line.Quantity

		if line.ContributionLineID == nil {
			continue
		}
		cl := m.contributionLines[*line.ContributionLineID]
		c := m.contributions[cl.ContributionID]
		if c.Delivered {
			continue
		}
		if m.fullyLinked(c.ID) {
			c.Status = domain.StatusDelivered
			c.Delivered = true
			m.appendEvent(c.ID, domain.StatusDelivered, domain.DeliveryNote(beneficiaryName), "")
			delivered = append(delivered, c.TrackingID)
		}
	}
	stored := *d
	m.distributions[d.ID] = &stored
	return delivered, nil
}

func (m *mockRepo) UpdateDistributionLine(_ context.Context, lineID int64, quantity int) (*domain.StockAdjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	line, ok := m.distributionLines[lineID]
	if !ok {
		return nil, fmt.Errorf("distribution line %d: %w", lineID, domain.ErrNotFound)
	}
	delta := line.Quantity - quantity
	line.Quantity = quantity
	return m.adjustItem(line.ItemID, delta), nil
}

func (m *mockRepo) DeleteDistributionLine(_ context.Context, lineID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	line, ok := m.distributionLines[lineID]
	if !ok {
		return fmt.Errorf("distribution line %d: %w", lineID, domain.ErrNotFound)
	}
	delete(m.distributionLines, lineID)
	m.items[line.ItemID].Stock += line.Quantity
	return nil
}

func (m *mockRepo) DeleteDistribution(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.distributions[id]; !ok {
		return fmt.Errorf("distribution %d: %w", id, domain.ErrNotFound)
	}
	for lineID, line := range m.distributionLines {
		if line.DistributionID == id {
			m.items[line.ItemID].Stock += line.Quantity
			delete(m.distributionLines, lineID)
		}
	}
	delete(m.distributions, id)
	return nil
}

func (m *mockRepo) fullyLinked(contributionID int64) bool {
	for _, cl := range m.contributionLines {
		if cl.ContributionID != contributionID {
			continue
		}
		linked := false
		for _, dl := range m.distributionLines {
			if dl.ContributionLineID != nil && *dl.ContributionLineID == cl.ID {
				linked = true
				break
			}
		}
		if !linked {
			return false
		}
	}
	return true
}

func (m *mockRepo) adjustItem(itemID int64, delta int) *domain.StockAdjustment {
	it := m.items[itemID]
	next, shortfall := domain.ApplyDelta(it.Stock, delta)
	it.Stock = next
	return &domain.StockAdjustment{ItemID: itemID, Delta: delta, Shortfall: shortfall}
}

func (m *mockRepo) appendEvent(contributionID int64, status domain.ContributionStatus, description, actor string) domain.TraceEvent {
	ev := domain.TraceEvent{
		ID:             m.id(),
		ContributionID: contributionID,
		Status:         status,
		Description:    description,
		Actor:          actor,
		CreatedAt:      time.Now(),
	}
	m.events = append(m.events, ev)
	return ev
}

func (m *mockRepo) eventsFor(contributionID int64) []domain.TraceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TraceEvent
	for _, ev := range m.events {
		if ev.ContributionID == contributionID {
			out = append(out, ev)
		}
	}
	return out
}

// mockCache records snapshot and shortfall traffic.
type mockCache struct {
	mu          sync.Mutex
	snapshots   map[string][]byte
	shortfalls  map[int64]int64
	invalidated []string
}

func newMockCache() *mockCache {
	return &mockCache{
		snapshots:  make(map[string][]byte),
		shortfalls: make(map[int64]int64),
	}
}

func (m *mockCache) GetTrackingSnapshot(_ context.Context, trackingID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots[trackingID], nil
}

func (m *mockCache) SetTrackingSnapshot(_ context.Context, trackingID string, data []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[trackingID] = data
	return nil
}

func (m *mockCache) InvalidateTracking(_ context.Context, trackingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, trackingID)
	m.invalidated = append(m.invalidated, trackingID)
	return nil
}

func (m *mockCache) AddClampShortfall(_ context.Context, itemID int64, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortfalls[itemID] += int64(qty)
	return nil
}
