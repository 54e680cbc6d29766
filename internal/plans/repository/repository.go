package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatch_backend/platform/apperr"
)

// PostgresStore implements Store on top of pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

const planColumns = `id, client_id, name, description, address, latitude, longitude,
	starts_at, ends_at, timezone, generation_window_days, min_advance_days,
	billing_mode, invoice_timing, auto_invoice, priority, status,
	last_generated_through, created_at, updated_at`

func scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	err := row.Scan(
		&p.ID, &p.ClientID, &p.Name, &p.Description, &p.Address, &p.Latitude, &p.Longitude,
		&p.StartsAt, &p.EndsAt, &p.Timezone, &p.GenerationWindowDays, &p.MinAdvanceDays,
		&p.BillingMode, &p.InvoiceTiming, &p.AutoInvoice, &p.Priority, &p.Status,
		&p.LastGeneratedThrough, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM recurring_plans WHERE id = $1`, planColumns)
	p, err := scanPlan(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Wrap(apperr.KindNotFound, "plan not found", err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to get plan", err)
	}
	return p, nil
}

func (s *PostgresStore) GetRule(ctx context.Context, planID uuid.UUID) (*Rule, error) {
	query := `SELECT plan_id, frequency, "interval", by_weekday, by_month_day, by_month,
		arrival_kind, arrival_time, arrival_window_start, arrival_window_end, arrival_deadline,
		finish_kind, finish_time, updated_at
		FROM recurring_rules WHERE plan_id = $1`

	var r Rule
	err := s.pool.QueryRow(ctx, query, planID).Scan(
		&r.PlanID, &r.Frequency, &r.Interval, &r.ByWeekday, &r.ByMonthDay, &r.ByMonth,
		&r.ArrivalKind, &r.ArrivalTime, &r.ArrivalWindowStart, &r.ArrivalWindowEnd, &r.ArrivalDeadline,
		&r.FinishKind, &r.FinishTime, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Wrap(apperr.KindNotFound, "recurrence rule not found", err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to get recurrence rule", err)
	}
	return &r, nil
}

func (s *PostgresStore) ListPlans(ctx context.Context, params ListPlansParams) (*ListPlansResult, error) {
	where := []string{"1=1"}
	args := []any{}
	idx := 1

	if params.ClientID != nil {
		where = append(where, fmt.Sprintf("client_id = $%d", idx))
		args = append(args, *params.ClientID)
		idx++
	}
	if params.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, *params.Status)
		idx++
	}
	if params.Search != "" {
		where = append(where, fmt.Sprintf("name ILIKE $%d", idx))
		args = append(args, "%"+params.Search+"%")
		idx++
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM recurring_plans WHERE %s`, whereClause)
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to count plans", err)
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 20
	}
	offset := (params.Page - 1) * params.PageSize

	query := fmt.Sprintf(`SELECT %s FROM recurring_plans WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, planColumns, whereClause, idx, idx+1)
	args = append(args, params.PageSize, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list plans", err)
	}
	defer rows.Close()

	items := []Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan plan", err)
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to read plans", err)
	}

	totalPages := (total + params.PageSize - 1) / params.PageSize
	return &ListPlansResult{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	}, nil
}

func (s *PostgresStore) ListActivePlanIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM recurring_plans WHERE status = 'active' ORDER BY created_at`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list active plans", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan plan id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to read plan ids", err)
	}
	return ids, nil
}

func (s *PostgresStore) ListLineItems(ctx context.Context, planID uuid.UUID) ([]LineItem, error) {
	query := `SELECT id, plan_id, name, quantity, unit_price, item_type, sort_order
		FROM plan_line_items WHERE plan_id = $1 ORDER BY sort_order, name`

	rows, err := s.pool.Query(ctx, query, planID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list line items", err)
	}
	defer rows.Close()

	items := []LineItem{}
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ID, &it.PlanID, &it.Name, &it.Quantity, &it.UnitPrice, &it.ItemType, &it.SortOrder); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan line item", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to read line items", err)
	}
	return items, nil
}

func (s *PostgresStore) CreatePlan(ctx context.Context, plan *Plan, rule *Rule, items []LineItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO recurring_plans (
			id, client_id, name, description, address, latitude, longitude,
			starts_at, ends_at, timezone, generation_window_days, min_advance_days,
			billing_mode, invoice_timing, auto_invoice, priority, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		plan.ID, plan.ClientID, plan.Name, plan.Description, plan.Address, plan.Latitude, plan.Longitude,
		plan.StartsAt, plan.EndsAt, plan.Timezone, plan.GenerationWindowDays, plan.MinAdvanceDays,
		plan.BillingMode, plan.InvoiceTiming, plan.AutoInvoice, plan.Priority, plan.Status,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to create plan", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO recurring_rules (
			plan_id, frequency, "interval", by_weekday, by_month_day, by_month,
			arrival_kind, arrival_time, arrival_window_start, arrival_window_end, arrival_deadline,
			finish_kind, finish_time
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		rule.PlanID, rule.Frequency, rule.Interval, rule.ByWeekday, rule.ByMonthDay, rule.ByMonth,
		rule.ArrivalKind, rule.ArrivalTime, rule.ArrivalWindowStart, rule.ArrivalWindowEnd, rule.ArrivalDeadline,
		rule.FinishKind, rule.FinishTime,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to create recurrence rule", err)
	}

	for _, it := range items {
		_, err = tx.Exec(ctx, `INSERT INTO plan_line_items (id, plan_id, name, quantity, unit_price, item_type, sort_order)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			it.ID, it.PlanID, it.Name, it.Quantity, it.UnitPrice, it.ItemType, it.SortOrder,
		)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to create line item", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to commit plan", err)
	}
	return nil
}

func (s *PostgresStore) UpdateRule(ctx context.Context, rule *Rule) error {
	tag, err := s.pool.Exec(ctx, `UPDATE recurring_rules SET
			frequency = $2, "interval" = $3, by_weekday = $4, by_month_day = $5, by_month = $6,
			arrival_kind = $7, arrival_time = $8, arrival_window_start = $9, arrival_window_end = $10,
			arrival_deadline = $11, finish_kind = $12, finish_time = $13, updated_at = NOW()
		WHERE plan_id = $1`,
		rule.PlanID, rule.Frequency, rule.Interval, rule.ByWeekday, rule.ByMonthDay, rule.ByMonth,
		rule.ArrivalKind, rule.ArrivalTime, rule.ArrivalWindowStart, rule.ArrivalWindowEnd,
		rule.ArrivalDeadline, rule.FinishKind, rule.FinishTime,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to update recurrence rule", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("recurrence rule not found")
	}
	return nil
}

func (s *PostgresStore) TransitionPlan(ctx context.Context, id uuid.UUID, from, to string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recurring_plans SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to update plan status", err)
	}
	if tag.RowsAffected() == 0 {
		// Either gone or moved status underneath us; re-check to report which.
		if _, gerr := s.GetPlan(ctx, id); gerr != nil {
			return gerr
		}
		return apperr.InvalidState("plan status changed concurrently")
	}
	return nil
}

const occurrenceColumns = `id, plan_id, occurrence_date, occurrence_start_at, occurrence_end_at,
	arrival_window_start, arrival_window_end, status, job_visit_id, skip_reason, created_at, updated_at`

func scanOccurrence(row pgx.Row) (*Occurrence, error) {
	var o Occurrence
	err := row.Scan(
		&o.ID, &o.PlanID, &o.OccurrenceDate, &o.StartAt, &o.EndAt,
		&o.ArrivalWindowStart, &o.ArrivalWindowEnd, &o.Status, &o.JobVisitID, &o.SkipReason,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) GetOccurrence(ctx context.Context, id uuid.UUID) (*Occurrence, error) {
	query := fmt.Sprintf(`SELECT %s FROM recurring_occurrences WHERE id = $1`, occurrenceColumns)
	o, err := scanOccurrence(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Wrap(apperr.KindNotFound, "occurrence not found", err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to get occurrence", err)
	}
	return o, nil
}

func (s *PostgresStore) ListOccurrences(ctx context.Context, params ListOccurrencesParams) (*ListOccurrencesResult, error) {
	where := []string{"plan_id = $1"}
	args := []any{params.PlanID}
	idx := 2

	if params.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, *params.Status)
		idx++
	}
	if params.DateFrom != nil {
		where = append(where, fmt.Sprintf("occurrence_date >= $%d", idx))
		args = append(args, *params.DateFrom)
		idx++
	}
	if params.DateTo != nil {
		where = append(where, fmt.Sprintf("occurrence_date <= $%d", idx))
		args = append(args, *params.DateTo)
		idx++
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM recurring_occurrences WHERE %s`, whereClause)
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to count occurrences", err)
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 50
	}
	offset := (params.Page - 1) * params.PageSize

	query := fmt.Sprintf(`SELECT %s FROM recurring_occurrences WHERE %s
		ORDER BY occurrence_date ASC LIMIT $%d OFFSET $%d`, occurrenceColumns, whereClause, idx, idx+1)
	args = append(args, params.PageSize, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list occurrences", err)
	}
	defer rows.Close()

	items := []Occurrence{}
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan occurrence", err)
		}
		items = append(items, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to read occurrences", err)
	}

	totalPages := (total + params.PageSize - 1) / params.PageSize
	return &ListOccurrencesResult{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	}, nil
}

func (s *PostgresStore) ExistingDates(ctx context.Context, planID uuid.UUID, from, to time.Time) (map[time.Time]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT occurrence_date FROM recurring_occurrences
		WHERE plan_id = $1 AND occurrence_date BETWEEN $2 AND $3`,
		planID, from, to,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query occurrence dates", err)
	}
	defer rows.Close()

	dates := map[time.Time]bool{}
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan occurrence date", err)
		}
		dates[time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to read occurrence dates", err)
	}
	return dates, nil
}

func (s *PostgresStore) ActiveDateTaken(ctx context.Context, planID uuid.UUID, date time.Time, excludeID uuid.UUID) (bool, error) {
	var taken bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM recurring_occurrences
			WHERE plan_id = $1 AND occurrence_date = $2 AND id <> $3
			AND status NOT IN ('cancelled', 'skipped')
		)`,
		planID, date, excludeID,
	).Scan(&taken)
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "failed to check occurrence date", err)
	}
	return taken, nil
}

func (s *PostgresStore) InsertBatch(ctx context.Context, planID uuid.UUID, occs []Occurrence, through time.Time) ([]uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	created := []uuid.UUID{}
	for _, o := range occs {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `INSERT INTO recurring_occurrences (
				id, plan_id, occurrence_date, occurrence_start_at, occurrence_end_at,
				arrival_window_start, arrival_window_end, status
			) VALUES ($1,$2,$3,$4,$5,$6,$7,'planned')
			ON CONFLICT (plan_id, occurrence_date) WHERE status NOT IN ('cancelled', 'skipped')
			DO NOTHING
			RETURNING id`,
			o.ID, o.PlanID, o.OccurrenceDate, o.StartAt, o.EndAt,
			o.ArrivalWindowStart, o.ArrivalWindowEnd,
		).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, apperr.Wrap(apperr.KindInternal, "failed to insert occurrence", err)
		}
		created = append(created, id)
	}

	_, err = tx.Exec(ctx, `UPDATE recurring_plans SET
			last_generated_through = GREATEST(COALESCE(last_generated_through, $2), $2),
			updated_at = NOW()
		WHERE id = $1`,
		planID, through,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to advance generation watermark", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to commit generated occurrences", err)
	}
	return created, nil
}

// mutatePlanned applies a status-guarded update to a planned occurrence and
// reports NotFound or InvalidState when the guard fails.
func (s *PostgresStore) mutatePlanned(ctx context.Context, id uuid.UUID, query string, args ...any) (*Occurrence, error) {
	o, err := scanOccurrence(s.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, apperr.Wrap(apperr.KindConflict, "another occurrence already exists on that date", err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to update occurrence", err)
	}
	existing, gerr := s.GetOccurrence(ctx, id)
	if gerr != nil {
		return nil, gerr
	}
	return nil, apperr.InvalidState(fmt.Sprintf("occurrence is %s, expected planned", existing.Status))
}

func (s *PostgresStore) MarkSkipped(ctx context.Context, id uuid.UUID, reason string) (*Occurrence, error) {
	query := fmt.Sprintf(`UPDATE recurring_occurrences
		SET status = 'skipped', skip_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'planned'
		RETURNING %s`, occurrenceColumns)
	return s.mutatePlanned(ctx, id, query, id, reason)
}

func (s *PostgresStore) Reschedule(ctx context.Context, id uuid.UUID, date time.Time, startAt, endAt time.Time) (*Occurrence, error) {
	query := fmt.Sprintf(`UPDATE recurring_occurrences
		SET occurrence_date = $2, occurrence_start_at = $3, occurrence_end_at = $4,
			arrival_window_start = NULL, arrival_window_end = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'planned'
		RETURNING %s`, occurrenceColumns)
	return s.mutatePlanned(ctx, id, query, id, date, startAt, endAt)
}

func (s *PostgresStore) MarkGenerated(ctx context.Context, id uuid.UUID, visitID uuid.UUID) (*Occurrence, error) {
	query := fmt.Sprintf(`UPDATE recurring_occurrences
		SET status = 'generated', job_visit_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'planned'
		RETURNING %s`, occurrenceColumns)
	return s.mutatePlanned(ctx, id, query, id, visitID)
}

func (s *PostgresStore) MarkCompletedByVisit(ctx context.Context, visitID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE recurring_occurrences
		SET status = 'completed', updated_at = NOW()
		WHERE job_visit_id = $1 AND status = 'generated'`,
		visitID,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to complete occurrence", err)
	}
	return nil
}

func (s *PostgresStore) CancelPlanned(ctx context.Context, planID uuid.UUID, from time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE recurring_occurrences
		SET status = 'cancelled', updated_at = NOW()
		WHERE plan_id = $1 AND status = 'planned' AND occurrence_date >= $2`,
		planID, from,
	)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to cancel planned occurrences", err)
	}
	return int(tag.RowsAffected()), nil
}
