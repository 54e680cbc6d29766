// Package repository persists job visits and their line items.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatch_backend/platform/apperr"
)

// Visit is a concrete job visit on the dispatch board. Visits born from a
// recurring plan keep their plan and occurrence links.
type Visit struct {
	ID                 uuid.UUID  `db:"id"`
	ClientID           uuid.UUID  `db:"client_id"`
	PlanID             *uuid.UUID `db:"plan_id"`
	OccurrenceID       *uuid.UUID `db:"occurrence_id"`
	Name               string     `db:"name"`
	Address            *string    `db:"address"`
	Latitude           *float64   `db:"latitude"`
	Longitude          *float64   `db:"longitude"`
	StartAt            time.Time  `db:"start_at"`
	EndAt              time.Time  `db:"end_at"`
	ArrivalWindowStart *time.Time `db:"arrival_window_start"`
	ArrivalWindowEnd   *time.Time `db:"arrival_window_end"`
	Priority           string     `db:"priority"`
	Status             string     `db:"status"`
	BillingMode        string     `db:"billing_mode"`
	InvoiceTiming      string     `db:"invoice_timing"`
	AutoInvoice        bool       `db:"auto_invoice"`
	CompletedAt        *time.Time `db:"completed_at"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

// LineItem is one billable line on a visit.
type LineItem struct {
	ID        uuid.UUID `db:"id"`
	VisitID   uuid.UUID `db:"visit_id"`
	Name      string    `db:"name"`
	Quantity  float64   `db:"quantity"`
	UnitPrice float64   `db:"unit_price"`
	ItemType  string    `db:"item_type"`
	SortOrder int       `db:"sort_order"`
}

// Store is the visit persistence interface.
type Store interface {
	CreateVisit(ctx context.Context, visit *Visit, items []LineItem) error
	GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error)
	ListLineItems(ctx context.Context, visitID uuid.UUID) ([]LineItem, error)
	ListByPlan(ctx context.Context, planID uuid.UUID) ([]Visit, error)
	// CompleteVisit flips a scheduled visit to completed. Returns
	// KindInvalidState when the visit is not scheduled.
	CompleteVisit(ctx context.Context, id uuid.UUID, at time.Time) (*Visit, error)
}

// PostgresStore implements Store on top of pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

const visitColumns = `id, client_id, plan_id, occurrence_id, name, address, latitude, longitude,
	start_at, end_at, arrival_window_start, arrival_window_end, priority, status,
	billing_mode, invoice_timing, auto_invoice, completed_at, created_at, updated_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(
		&v.ID, &v.ClientID, &v.PlanID, &v.OccurrenceID, &v.Name, &v.Address, &v.Latitude, &v.Longitude,
		&v.StartAt, &v.EndAt, &v.ArrivalWindowStart, &v.ArrivalWindowEnd, &v.Priority, &v.Status,
		&v.BillingMode, &v.InvoiceTiming, &v.AutoInvoice, &v.CompletedAt, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresStore) CreateVisit(ctx context.Context, visit *Visit, items []LineItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO job_visits (
			id, client_id, plan_id, occurrence_id, name, address, latitude, longitude,
			start_at, end_at, arrival_window_start, arrival_window_end, priority, status,
			billing_mode, invoice_timing, auto_invoice
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		visit.ID, visit.ClientID, visit.PlanID, visit.OccurrenceID, visit.Name, visit.Address,
		visit.Latitude, visit.Longitude, visit.StartAt, visit.EndAt,
		visit.ArrivalWindowStart, visit.ArrivalWindowEnd, visit.Priority, visit.Status,
		visit.BillingMode, visit.InvoiceTiming, visit.AutoInvoice,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to create visit", err)
	}

	for _, it := range items {
		_, err = tx.Exec(ctx, `INSERT INTO visit_line_items (id, visit_id, name, quantity, unit_price, item_type, sort_order)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			it.ID, it.VisitID, it.Name, it.Quantity, it.UnitPrice, it.ItemType, it.SortOrder,
		)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to create visit line item", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to commit visit", err)
	}
	return nil
}

func (s *PostgresStore) GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	query := fmt.Sprintf(`SELECT %s FROM job_visits WHERE id = $1`, visitColumns)
	v, err := scanVisit(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Wrap(apperr.KindNotFound, "visit not found", err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to get visit", err)
	}
	return v, nil
}

func (s *PostgresStore) ListLineItems(ctx context.Context, visitID uuid.UUID) ([]LineItem, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, visit_id, name, quantity, unit_price, item_type, sort_order
		FROM visit_line_items WHERE visit_id = $1 ORDER BY sort_order, name`, visitID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list visit line items", err)
	}
	defer rows.Close()

	items := []LineItem{}
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ID, &it.VisitID, &it.Name, &it.Quantity, &it.UnitPrice, &it.ItemType, &it.SortOrder); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan visit line item", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to read visit line items", err)
	}
	return items, nil
}

func (s *PostgresStore) ListByPlan(ctx context.Context, planID uuid.UUID) ([]Visit, error) {
	query := fmt.Sprintf(`SELECT %s FROM job_visits WHERE plan_id = $1 ORDER BY start_at`, visitColumns)
	rows, err := s.pool.Query(ctx, query, planID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list visits", err)
	}
	defer rows.Close()

	visits := []Visit{}
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan visit", err)
		}
		visits = append(visits, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to read visits", err)
	}
	return visits, nil
}

func (s *PostgresStore) CompleteVisit(ctx context.Context, id uuid.UUID, at time.Time) (*Visit, error) {
	query := fmt.Sprintf(`UPDATE job_visits
		SET status = 'completed', completed_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
		RETURNING %s`, visitColumns)

	v, err := scanVisit(s.pool.QueryRow(ctx, query, id, at))
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to complete visit", err)
	}
	existing, gerr := s.GetVisit(ctx, id)
	if gerr != nil {
		return nil, gerr
	}
	return nil, apperr.InvalidState(fmt.Sprintf("visit is %s, expected scheduled", existing.Status))
}
