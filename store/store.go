// Package store persists bid records in SQLite. Writes are idempotent:
// replaying the same record updates the existing row instead of
// duplicating it, and line items are always replaced as a full set.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"philgeps-scraper/models"
)

//go:embed schema.sql
var schema string

// ErrPersistence indicates a database write failed for one record.
type ErrPersistence struct {
	Reference string
	Err       error
}

func (e ErrPersistence) Error() string {
	return fmt.Errorf("persistence %s: %w", e.Reference, e.Err).Error()
}

func (e ErrPersistence) Unwrap() error {
	return e.Err
}

// Store wraps the bid database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Pass ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for callers that need raw queries.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

const upsertBid = `
INSERT INTO bid_opportunities (
    reference_number, title, status, detail_url, source_url,
    procurement_mode, classification, lot_type, control_number,
    approved_budget, publish_date, closing_date,
    date_created, date_last_updated,
    agency_name, client_agency, contact_person,
    delivery_location, delivery_period, business_category,
    funding_source, bid_validity_period, description, scraped_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(reference_number) DO UPDATE SET
    title = excluded.title,
    status = excluded.status,
    detail_url = excluded.detail_url,
    source_url = excluded.source_url,
    procurement_mode = excluded.procurement_mode,
    classification = excluded.classification,
    lot_type = COALESCE(NULLIF(excluded.lot_type, ''), lot_type),
    control_number = COALESCE(NULLIF(excluded.control_number, ''), control_number),
    approved_budget = COALESCE(excluded.approved_budget, approved_budget),
    publish_date = COALESCE(excluded.publish_date, publish_date),
    closing_date = COALESCE(excluded.closing_date, closing_date),
    date_created = COALESCE(excluded.date_created, date_created),
    date_last_updated = COALESCE(excluded.date_last_updated, date_last_updated),
    agency_name = COALESCE(NULLIF(excluded.agency_name, ''), agency_name),
    client_agency = COALESCE(NULLIF(excluded.client_agency, ''), client_agency),
    contact_person = COALESCE(NULLIF(excluded.contact_person, ''), contact_person),
    delivery_location = COALESCE(NULLIF(excluded.delivery_location, ''), delivery_location),
    delivery_period = COALESCE(NULLIF(excluded.delivery_period, ''), delivery_period),
    business_category = COALESCE(NULLIF(excluded.business_category, ''), business_category),
    funding_source = COALESCE(NULLIF(excluded.funding_source, ''), funding_source),
    bid_validity_period = COALESCE(NULLIF(excluded.bid_validity_period, ''), bid_validity_period),
    description = COALESCE(NULLIF(excluded.description, ''), description),
    scraped_at = excluded.scraped_at,
    updated_at = datetime('now')
`

// Upsert writes one record and reports whether it was new or updated.
// Line items are replaced wholesale, but only when the record carries
// detail data, so a failed detail fetch never erases earlier items.
func (s *Store) Upsert(ctx context.Context, r models.BidRecord) (models.RecordOutcome, error) {
	if r.ReferenceNumber == "" {
		return models.OutcomeFailed, ErrPersistence{Err: fmt.Errorf("record has no reference number")}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.OutcomeFailed, ErrPersistence{Reference: r.ReferenceNumber, Err: err}
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM bid_opportunities WHERE reference_number = ?)",
		r.ReferenceNumber,
	).Scan(&exists)
	if err != nil {
		return models.OutcomeFailed, ErrPersistence{Reference: r.ReferenceNumber, Err: err}
	}

	_, err = tx.ExecContext(ctx, upsertBid,
		r.ReferenceNumber, r.Title, r.Status, r.DetailURL, r.SourceURL,
		r.ProcurementMode, r.Classification, r.LotType, r.ControlNumber,
		r.ApprovedBudget, nullTime(r.PublishDate), nullTime(r.ClosingDate),
		nullTime(r.DateCreated), nullTime(r.DateLastUpdated),
		r.AgencyName, r.ClientAgency, r.ContactPerson,
		r.DeliveryLocation, r.DeliveryPeriod, r.BusinessCategory,
		r.FundingSource, r.BidValidityPeriod, r.Description,
		nullTime(r.ScrapedAt),
	)
	if err != nil {
		return models.OutcomeFailed, ErrPersistence{Reference: r.ReferenceNumber, Err: err}
	}

	if r.HasDetail {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM bid_line_items WHERE reference_number = ?", r.ReferenceNumber,
		); err != nil {
			return models.OutcomeFailed, ErrPersistence{Reference: r.ReferenceNumber, Err: err}
		}
		for _, item := range r.LineItems {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO bid_line_items
				 (reference_number, item_no, unspsc, lot_name, lot_description, quantity, unit_of_measure)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				r.ReferenceNumber, item.ItemNo, item.UNSPSC, item.LotName,
				item.LotDescription, item.Quantity, item.UnitOfMeasure,
			); err != nil {
				return models.OutcomeFailed, ErrPersistence{Reference: r.ReferenceNumber, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return models.OutcomeFailed, ErrPersistence{Reference: r.ReferenceNumber, Err: err}
	}

	if exists {
		return models.OutcomeUpdated, nil
	}
	return models.OutcomeNew, nil
}

// References returns the set of reference numbers already stored,
// used by incremental runs to skip known bids.
func (s *Store) References(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT reference_number FROM bid_opportunities")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make(map[string]struct{})
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs[ref] = struct{}{}
	}
	return refs, rows.Err()
}

// Count returns the number of stored bid records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bid_opportunities").Scan(&n)
	return n, err
}

// LineItems returns the stored line items for one bid.
func (s *Store) LineItems(ctx context.Context, reference string) ([]models.LineItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_no, unspsc, lot_name, lot_description, quantity, unit_of_measure
		 FROM bid_line_items WHERE reference_number = ? ORDER BY id`, reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var item models.LineItem
		if err := rows.Scan(&item.ItemNo, &item.UNSPSC, &item.LotName,
			&item.LotDescription, &item.Quantity, &item.UnitOfMeasure); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
