package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/donagest/donation-tracker/internal/core/domain"
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS donors (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		tax_id VARCHAR(20) NOT NULL UNIQUE,
		name VARCHAR(100) NOT NULL,
		contact_name VARCHAR(100) NOT NULL DEFAULT '',
		donor_class VARCHAR(20) NOT NULL DEFAULT 'INDIVIDUAL',
		email VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(20) NOT NULL DEFAULT '',
		active TINYINT(1) NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS beneficiaries (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		tax_id VARCHAR(20) NOT NULL UNIQUE,
		name VARCHAR(100) NOT NULL,
		address VARCHAR(200) NOT NULL DEFAULT '',
		phone VARCHAR(20) NOT NULL DEFAULT '',
		email VARCHAR(255) NOT NULL DEFAULT '',
		active TINYINT(1) NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(100) NOT NULL UNIQUE,
		description TEXT NOT NULL,
		category VARCHAR(50) NOT NULL DEFAULT 'OTHER',
		unit VARCHAR(20) NOT NULL DEFAULT 'UNIT',
		stock INT NOT NULL DEFAULT 0,
		expires_at DATE NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		CONSTRAINT chk_items_stock CHECK (stock >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS contributions (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		donor_id BIGINT NOT NULL,
		tracking_id CHAR(36) NOT NULL UNIQUE,
		status VARCHAR(20) NOT NULL DEFAULT 'RECEIVED',
		notes TEXT NOT NULL,
		delivered TINYINT(1) NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (donor_id) REFERENCES donors (id)
	)`,
	`CREATE TABLE IF NOT EXISTS contribution_lines (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		contribution_id BIGINT NOT NULL,
		item_id BIGINT NOT NULL,
		quantity INT NOT NULL,
		UNIQUE KEY uniq_contribution_item (contribution_id, item_id),
		FOREIGN KEY (contribution_id) REFERENCES contributions (id) ON DELETE CASCADE,
		FOREIGN KEY (item_id) REFERENCES items (id),
		CONSTRAINT chk_contribution_qty CHECK (quantity >= 1)
	)`,
	`CREATE TABLE IF NOT EXISTS trace_events (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		contribution_id BIGINT NOT NULL,
		status VARCHAR(20) NOT NULL,
		description TEXT NOT NULL,
		actor VARCHAR(100) NULL,
		created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		FOREIGN KEY (contribution_id) REFERENCES contributions (id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS distributions (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		beneficiary_id BIGINT NOT NULL,
		responsible_name VARCHAR(100) NOT NULL,
		tracking_id CHAR(36) NOT NULL UNIQUE,
		status VARCHAR(20) NOT NULL DEFAULT 'COMPLETED',
		notes TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (beneficiary_id) REFERENCES beneficiaries (id)
	)`,
	`CREATE TABLE IF NOT EXISTS distribution_lines (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		distribution_id BIGINT NOT NULL,
		item_id BIGINT NOT NULL,
		quantity INT NOT NULL,
		contribution_line_id BIGINT NULL,
		UNIQUE KEY uniq_distribution_item (distribution_id, item_id),
		FOREIGN KEY (distribution_id) REFERENCES distributions (id) ON DELETE CASCADE,
		FOREIGN KEY (item_id) REFERENCES items (id),
		FOREIGN KEY (contribution_line_id) REFERENCES contribution_lines (id) ON DELETE SET NULL,
		CONSTRAINT chk_distribution_qty CHECK (quantity >= 1)
	)`,
}

// Migrate creates the schema when it does not exist yet.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// UpsertDonor creates the donor on first reference. On match only email and
// phone are refreshed, and only with non-empty newer values.
func (m *MySQLAdapter) UpsertDonor(ctx context.Context, d domain.Donor) (*domain.Donor, error) {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO donors (tax_id, name, contact_name, donor_class, email, phone, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			email = IF(VALUES(email) <> '', VALUES(email), email),
			phone = IF(VALUES(phone) <> '', VALUES(phone), phone)`,
		d.TaxID, d.Name, d.ContactName, d.Class, d.Email, d.Phone, d.Active,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert donor: %w", err)
	}

	var out domain.Donor
	err = m.db.QueryRowContext(ctx, `
		SELECT id, tax_id, name, contact_name, donor_class, email, phone, active, created_at
		FROM donors WHERE tax_id = ?`, d.TaxID,
	).Scan(&out.ID, &out.TaxID, &out.Name, &out.ContactName, &out.Class,
		&out.Email, &out.Phone, &out.Active, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("reload donor: %w", err)
	}
	return &out, nil
}

// UpsertBeneficiary mirrors UpsertDonor for the receiving party.
func (m *MySQLAdapter) UpsertBeneficiary(ctx context.Context, b domain.Beneficiary) (*domain.Beneficiary, error) {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO beneficiaries (tax_id, name, address, phone, email, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			phone = IF(VALUES(phone) <> '', VALUES(phone), phone),
			email = IF(VALUES(email) <> '', VALUES(email), email)`,
		b.TaxID, b.Name, b.Address, b.Phone, b.Email, b.Active,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert beneficiary: %w", err)
	}

	var out domain.Beneficiary
	err = m.db.QueryRowContext(ctx, `
		SELECT id, tax_id, name, address, phone, email, active, created_at
		FROM beneficiaries WHERE tax_id = ?`, b.TaxID,
	).Scan(&out.ID, &out.TaxID, &out.Name, &out.Address, &out.Phone,
		&out.Email, &out.Active, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("reload beneficiary: %w", err)
	}
	return &out, nil
}

func (m *MySQLAdapter) ListDonors(ctx context.Context) ([]domain.Donor, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, tax_id, name, contact_name, donor_class, email, phone, active, created_at
		FROM donors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list donors: %w", err)
	}
	defer rows.Close()

	var donors []domain.Donor
	for rows.Next() {
		var d domain.Donor
		if err := rows.Scan(&d.ID, &d.TaxID, &d.Name, &d.ContactName, &d.Class,
			&d.Email, &d.Phone, &d.Active, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan donor: %w", err)
		}
		donors = append(donors, d)
	}
	return donors, rows.Err()
}

func (m *MySQLAdapter) ListBeneficiaries(ctx context.Context) ([]domain.Beneficiary, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, tax_id, name, address, phone, email, active, created_at
		FROM beneficiaries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list beneficiaries: %w", err)
	}
	defer rows.Close()

	var beneficiaries []domain.Beneficiary
	for rows.Next() {
		var b domain.Beneficiary
		if err := rows.Scan(&b.ID, &b.TaxID, &b.Name, &b.Address, &b.Phone,
			&b.Email, &b.Active, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan beneficiary: %w", err)
		}
		beneficiaries = append(beneficiaries, b)
	}
	return beneficiaries, rows.Err()
}

// GetOrCreateItem resolves an item by name, creating it with zero stock
// when absent. Defaults on the input are only used at creation time.
func (m *MySQLAdapter) GetOrCreateItem(ctx context.Context, it domain.Item) (*domain.Item, error) {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO items (name, description, category, unit, stock, expires_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON DUPLICATE KEY UPDATE id = id`,
		it.Name, it.Description, it.Category, it.Unit, it.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert item: %w", err)
	}

	var out domain.Item
	err = m.db.QueryRowContext(ctx, itemSelect+` WHERE name = ?`, it.Name).
		Scan(itemFields(&out)...)
	if err != nil {
		return nil, fmt.Errorf("reload item: %w", err)
	}
	return &out, nil
}

const itemSelect = `
	SELECT id, name, description, category, unit, stock, expires_at, created_at, updated_at
	FROM items`

func itemFields(it *domain.Item) []any {
	return []any{&it.ID, &it.Name, &it.Description, &it.Category, &it.Unit,
		&it.Stock, &it.ExpiresAt, &it.CreatedAt, &it.UpdatedAt}
}

func (m *MySQLAdapter) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	var it domain.Item
	err := m.db.QueryRowContext(ctx, itemSelect+` WHERE id = ?`, id).
		Scan(itemFields(&it)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	return &it, nil
}

func (m *MySQLAdapter) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := m.db.QueryContext(ctx, itemSelect+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(itemFields(&it)...); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CreateContribution writes the header, every line, the matching stock
// increments and the initial RECEIVED trace event in one transaction.
func (m *MySQLAdapter) CreateContribution(ctx context.Context, c *domain.Contribution) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO contributions (donor_id, tracking_id, status, notes, delivered)
		VALUES (?, ?, ?, ?, 0)`,
		c.DonorID, c.TrackingID, c.Status, c.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert contribution: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("contribution id: %w", err)
	}

	for i := range c.Lines {
		line := &c.Lines[i]
		line.ContributionID = c.ID

		res, err := tx.ExecContext(ctx, `
			INSERT INTO contribution_lines (contribution_id, item_id, quantity)
			VALUES (?, ?, ?)`,
			line.ContributionID, line.ItemID, line.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert contribution line: %w", err)
		}
		if line.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("contribution line id: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET stock = stock + ? WHERE id = ?`,
			line.Quantity, line.ItemID,
		); err != nil {
			return fmt.Errorf("apply stock delta: %w", err)
		}
	}

	if err := insertTraceEvent(ctx, tx, c.ID, domain.StatusReceived,
		domain.ReceiptNote(len(c.Lines)), ""); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	c.CreatedAt = time.Now()
	return nil
}

func insertTraceEvent(ctx context.Context, tx *sql.Tx, contributionID int64, status domain.ContributionStatus, description, actor string) error {
	var actorArg any
	if actor != "" {
		actorArg = actor
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trace_events (contribution_id, status, description, actor)
		VALUES (?, ?, ?, ?)`,
		contributionID, status, description, actorArg,
	)
	if err != nil {
		return fmt.Errorf("insert trace event: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetContribution(ctx context.Context, id int64) (*domain.Contribution, error) {
	var c domain.Contribution
	err := m.db.QueryRowContext(ctx, `
		SELECT id, donor_id, tracking_id, status, notes, delivered, created_at
		FROM contributions WHERE id = ?`, id,
	).Scan(&c.ID, &c.DonorID, &c.TrackingID, &c.Status, &c.Notes, &c.Delivered, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query contribution: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, contribution_id, item_id, quantity
		FROM contribution_lines WHERE contribution_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query contribution lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.ContributionLine
		if err := rows.Scan(&line.ID, &line.ContributionID, &line.ItemID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan contribution line: %w", err)
		}
		c.Lines = append(c.Lines, line)
	}
	return &c, rows.Err()
}

func (m *MySQLAdapter) GetContributionLine(ctx context.Context, id int64) (*domain.ContributionLine, error) {
	var line domain.ContributionLine
	err := m.db.QueryRowContext(ctx, `
		SELECT id, contribution_id, item_id, quantity
		FROM contribution_lines WHERE id = ?`, id,
	).Scan(&line.ID, &line.ContributionID, &line.ItemID, &line.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query contribution line: %w", err)
	}
	return &line, nil
}

// GetContributionByTrackingID assembles the public tracking snapshot:
// header, donor name, item lines and the full trace history.
func (m *MySQLAdapter) GetContributionByTrackingID(ctx context.Context, trackingID string) (*domain.ContributionSnapshot, error) {
	var (
		snap           domain.ContributionSnapshot
		contributionID int64
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT c.id, c.tracking_id, d.name, c.status, c.delivered, c.notes, c.created_at
		FROM contributions c JOIN donors d ON d.id = c.donor_id
		WHERE c.tracking_id = ?`, trackingID,
	).Scan(&contributionID, &snap.TrackingID, &snap.DonorName, &snap.Status,
		&snap.Delivered, &snap.Notes, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query tracking snapshot: %w", err)
	}

	lineRows, err := m.db.QueryContext(ctx, `
		SELECT cl.id, i.name, i.unit, cl.quantity
		FROM contribution_lines cl JOIN items i ON i.id = cl.item_id
		WHERE cl.contribution_id = ? ORDER BY cl.id`, contributionID)
	if err != nil {
		return nil, fmt.Errorf("query snapshot lines: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var line domain.SnapshotLine
		if err := lineRows.Scan(&line.LineID, &line.ItemName, &line.Unit, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan snapshot line: %w", err)
		}
		snap.Lines = append(snap.Lines, line)
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}

	eventRows, err := m.db.QueryContext(ctx, `
		SELECT status, description, actor, created_at
		FROM trace_events WHERE contribution_id = ?
		ORDER BY created_at, id`, contributionID)
	if err != nil {
		return nil, fmt.Errorf("query trace history: %w", err)
	}
	defer eventRows.Close()

	for eventRows.Next() {
		var (
			ev    domain.SnapshotEvent
			actor sql.NullString
		)
		if err := eventRows.Scan(&ev.Status, &ev.Description, &actor, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trace event: %w", err)
		}
		ev.Actor = actor.String
		snap.History = append(snap.History, ev)
	}
	return &snap, eventRows.Err()
}

// AdvanceStatus persists the status and appends one trace event. Any status
// may follow any other.
func (m *MySQLAdapter) AdvanceStatus(ctx context.Context, contributionID int64, status domain.ContributionStatus, description, actor string) (*domain.TraceEvent, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE contributions SET status = ? WHERE id = ?`, status, contributionID)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		// Same-status updates also report zero rows, so check existence.
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM contributions WHERE id = ?`, contributionID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("contribution %d: %w", contributionID, domain.ErrNotFound)
			}
			return nil, fmt.Errorf("check contribution: %w", err)
		}
	}

	now := time.Now()
	var actorArg any
	if actor != "" {
		actorArg = actor
	}
	res, err = tx.ExecContext(ctx, `
		INSERT INTO trace_events (contribution_id, status, description, actor, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		contributionID, status, description, actorArg, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert trace event: %w", err)
	}
	eventID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("trace event id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &domain.TraceEvent{
		ID:             eventID,
		ContributionID: contributionID,
		Status:         status,
		Description:    description,
		Actor:          actor,
		CreatedAt:      now,
	}, nil
}

// UpdateContributionLine applies the quantity difference to item stock in
// the same transaction as the line update, locking both rows.
func (m *MySQLAdapter) UpdateContributionLine(ctx context.Context, lineID int64, quantity int) (*domain.StockAdjustment, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		itemID int64
		oldQty int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT item_id, quantity FROM contribution_lines WHERE id = ? FOR UPDATE`, lineID,
	).Scan(&itemID, &oldQty)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contribution line %d: %w", lineID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock contribution line: %w", err)
	}

	delta := quantity - oldQty
	if delta == 0 {
		return &domain.StockAdjustment{ItemID: itemID}, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE contribution_lines SET quantity = ? WHERE id = ?`, quantity, lineID); err != nil {
		return nil, fmt.Errorf("update contribution line: %w", err)
	}

	adj, err := applyItemDelta(ctx, tx, itemID, delta)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return adj, nil
}

// DeleteContributionLine removes the line and reverses its stock increment,
// floored at zero.
func (m *MySQLAdapter) DeleteContributionLine(ctx context.Context, lineID int64) (*domain.StockAdjustment, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		itemID int64
		qty    int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT item_id, quantity FROM contribution_lines WHERE id = ? FOR UPDATE`, lineID,
	).Scan(&itemID, &qty)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contribution line %d: %w", lineID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock contribution line: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM contribution_lines WHERE id = ?`, lineID); err != nil {
		return nil, fmt.Errorf("delete contribution line: %w", err)
	}

	adj, err := applyItemDelta(ctx, tx, itemID, -qty)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return adj, nil
}

// DeleteContribution cascades to its lines, each cascade-deleted line
// applying the same stock reversal an explicit delete would. Trace events
// go with the header via FK cascade.
func (m *MySQLAdapter) DeleteContribution(ctx context.Context, id int64) ([]domain.StockAdjustment, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT item_id, quantity FROM contribution_lines WHERE contribution_id = ? FOR UPDATE`, id)
	if err != nil {
		return nil, fmt.Errorf("lock contribution lines: %w", err)
	}

	type lineRef struct {
		itemID int64
		qty    int
	}
	var lines []lineRef
	for rows.Next() {
		var l lineRef
		if err := rows.Scan(&l.itemID, &l.qty); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan contribution line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var adjustments []domain.StockAdjustment
	for _, l := range lines {
		adj, err := applyItemDelta(ctx, tx, l.itemID, -l.qty)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, *adj)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM contributions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("delete contribution: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, fmt.Errorf("contribution %d: %w", id, domain.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return adjustments, nil
}

// CreateDistribution writes the header and lines in one transaction. Each
// line decrements stock with a conditional UPDATE so that concurrent
// distributions of the same item serialize; a zero-row result means the
// stock checked upfront was consumed in between, and aborts everything.
// Lines carrying a contribution-line reference run the fulfillment check.
func (m *MySQLAdapter) CreateDistribution(ctx context.Context, d *domain.Distribution) ([]string, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var beneficiaryName string
	err = tx.QueryRowContext(ctx,
		`SELECT name FROM beneficiaries WHERE id = ?`, d.BeneficiaryID).Scan(&beneficiaryName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("beneficiary %d: %w", d.BeneficiaryID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query beneficiary: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO distributions (beneficiary_id, responsible_name, tracking_id, status, notes)
		VALUES (?, ?, ?, ?, ?)`,
		d.BeneficiaryID, d.ResponsibleName, d.TrackingID, d.Status, d.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert distribution: %w", err)
	}
	if d.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("distribution id: %w", err)
	}

	var delivered []string
	completed := make(map[int64]bool)

	for i := range d.Lines {
		line := &d.Lines[i]
		line.DistributionID = d.ID

		res, err := tx.ExecContext(ctx, `
			INSERT INTO distribution_lines (distribution_id, item_id, quantity, contribution_line_id)
			VALUES (?, ?, ?, ?)`,
			line.DistributionID, line.ItemID, line.Quantity, line.ContributionLineID,
		)
		if err != nil {
			return nil, fmt.Errorf("insert distribution line: %w", err)
		}
		if line.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("distribution line id: %w", err)
		}

		res, err = tx.ExecContext(ctx,
			`UPDATE items SET stock = stock - ? WHERE id = ? AND stock >= ?`,
			line.Quantity, line.ItemID, line.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("decrement stock: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return nil, fmt.Errorf("item %d: %w", line.ItemID, domain.ErrInsufficientStock)
		}

		if line.ContributionLineID == nil {
			continue
		}
		trackingID, err := m.linkFulfillment(ctx, tx, *line.ContributionLineID, beneficiaryName, completed)
		if err != nil {
			return nil, err
		}
		if trackingID != "" {
			delivered = append(delivered, trackingID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	d.CreatedAt = time.Now()
	return delivered, nil
}

// linkFulfillment checks whether the contribution owning the referenced
// line is now fully covered: every one of its lines must be referenced by
// at least one distribution line. Quantities are not compared. Completion
// latches the delivered flag and appends the terminal trace event; the
// latch is never reverted.
func (m *MySQLAdapter) linkFulfillment(ctx context.Context, tx *sql.Tx, contributionLineID int64, beneficiaryName string, completed map[int64]bool) (string, error) {
	var (
		contributionID int64
		trackingID     string
		isDelivered    bool
	)
	err := tx.QueryRowContext(ctx, `
		SELECT c.id, c.tracking_id, c.delivered
		FROM contributions c
		JOIN contribution_lines cl ON cl.contribution_id = c.id
		WHERE cl.id = ?`, contributionLineID,
	).Scan(&contributionID, &trackingID, &isDelivered)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("contribution line %d: %w", contributionLineID, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query owning contribution: %w", err)
	}
	if isDelivered || completed[contributionID] {
		return "", nil
	}

	var unlinked int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM contribution_lines cl
		LEFT JOIN distribution_lines dl ON dl.contribution_line_id = cl.id
		WHERE cl.contribution_id = ? AND dl.id IS NULL`, contributionID,
	).Scan(&unlinked)
	if err != nil {
		return "", fmt.Errorf("count unlinked lines: %w", err)
	}
	if unlinked > 0 {
		return "", nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE contributions SET status = ?, delivered = 1 WHERE id = ?`,
		domain.StatusDelivered, contributionID,
	); err != nil {
		return "", fmt.Errorf("latch delivered: %w", err)
	}
	if err := insertTraceEvent(ctx, tx, contributionID, domain.StatusDelivered,
		domain.DeliveryNote(beneficiaryName), ""); err != nil {
		return "", err
	}

	completed[contributionID] = true
	return trackingID, nil
}

// UpdateDistributionLine applies the inverted quantity difference to item
// stock in the same transaction as the line update.
func (m *MySQLAdapter) UpdateDistributionLine(ctx context.Context, lineID int64, quantity int) (*domain.StockAdjustment, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		itemID int64
		oldQty int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT item_id, quantity FROM distribution_lines WHERE id = ? FOR UPDATE`, lineID,
	).Scan(&itemID, &oldQty)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("distribution line %d: %w", lineID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock distribution line: %w", err)
	}

	delta := oldQty - quantity // distribution consumes stock
	if delta == 0 {
		return &domain.StockAdjustment{ItemID: itemID}, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE distribution_lines SET quantity = ? WHERE id = ?`, quantity, lineID); err != nil {
		return nil, fmt.Errorf("update distribution line: %w", err)
	}

	adj, err := applyItemDelta(ctx, tx, itemID, delta)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return adj, nil
}

// DeleteDistributionLine restores the full line quantity to stock; the
// restore is a plain addition, never clamped.
func (m *MySQLAdapter) DeleteDistributionLine(ctx context.Context, lineID int64) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		itemID int64
		qty    int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT item_id, quantity FROM distribution_lines WHERE id = ? FOR UPDATE`, lineID,
	).Scan(&itemID, &qty)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("distribution line %d: %w", lineID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock distribution line: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM distribution_lines WHERE id = ?`, lineID); err != nil {
		return fmt.Errorf("delete distribution line: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET stock = stock + ? WHERE id = ?`, qty, itemID); err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeleteDistribution cascades to its lines, restoring each line's stock in
// full before the header delete.
func (m *MySQLAdapter) DeleteDistribution(ctx context.Context, id int64) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT item_id, quantity FROM distribution_lines WHERE distribution_id = ? FOR UPDATE`, id)
	if err != nil {
		return fmt.Errorf("lock distribution lines: %w", err)
	}
	type lineRef struct {
		itemID int64
		qty    int
	}
	var lines []lineRef
	for rows.Next() {
		var l lineRef
		if err := rows.Scan(&l.itemID, &l.qty); err != nil {
			rows.Close()
			return fmt.Errorf("scan distribution line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, l := range lines {
		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET stock = stock + ? WHERE id = ?`, l.qty, l.itemID); err != nil {
			return fmt.Errorf("restore stock: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM distributions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete distribution: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("distribution %d: %w", id, domain.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// applyItemDelta locks the item row, applies the signed delta clamped at
// zero and reports the discarded shortfall, if any.
func applyItemDelta(ctx context.Context, tx *sql.Tx, itemID int64, delta int) (*domain.StockAdjustment, error) {
	var stock int
	err := tx.QueryRowContext(ctx,
		`SELECT stock FROM items WHERE id = ? FOR UPDATE`, itemID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", itemID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock item: %w", err)
	}

	next, shortfall := domain.ApplyDelta(stock, delta)
	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET stock = ? WHERE id = ?`, next, itemID); err != nil {
		return nil, fmt.Errorf("apply stock delta: %w", err)
	}

	return &domain.StockAdjustment{ItemID: itemID, Delta: delta, Shortfall: shortfall}, nil
}
