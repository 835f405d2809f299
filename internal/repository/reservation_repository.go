package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/rental-hold-engine/internal/database"
	"github.com/iliyamo/rental-hold-engine/internal/model"
)

// Queryable is implemented by both *sql.DB and *sql.Tx so read helpers can
// run inside or outside a transaction.
type Queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ReservationRepo is the interval store: it persists reservation records and
// answers overlap queries.  Every method that depends on "now" takes it as a
// parameter; no query calls the database clock.  State changes are single
// conditional UPDATEs so concurrent callers cannot both win a transition.
type ReservationRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB, dialect database.Dialect) *ReservationRepo {
	return &ReservationRepo{db: db, dialect: dialect}
}

// DB exposes the handle so callers can open transactions.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

// PaymentRefs are the identifiers stamped on a hold when it is confirmed.
type PaymentRefs struct {
	SessionRef     string
	TransactionRef string
	EventRef       string
}

// LockUnitTx takes the per-unit creation lock inside tx.  In MySQL the upsert
// leaves an exclusive row lock on unit_locks until commit; in SQLite the write
// acquires the database write lock.  Either way a second transaction for the
// same unit blocks here until the first one finishes.
func (r *ReservationRepo) LockUnitTx(ctx context.Context, tx *sql.Tx, unitID string, now time.Time) error {
	q := `INSERT INTO unit_locks (unit_id, locked_at) VALUES (?, ?)
		ON CONFLICT(unit_id) DO UPDATE SET locked_at = excluded.locked_at`
	if r.dialect == database.MySQL {
		q = `INSERT INTO unit_locks (unit_id, locked_at) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE locked_at = VALUES(locked_at)`
	}
	_, err := tx.ExecContext(ctx, q, unitID, ts(now))
	return err
}

// FindConflictTx returns a binding record of unitID whose stay overlaps
// [checkIn, checkOut), or nil when the range is free.  Binding means
// confirmed, or a hold whose deadline is after now.
func (r *ReservationRepo) FindConflictTx(ctx context.Context, q Queryable, unitID string, checkIn, checkOut model.Date, now time.Time) (*model.Conflict, error) {
	const sel = `SELECT id, check_in, check_out, status FROM reservations
		WHERE unit_id = ?
		  AND (status = 'confirmed' OR (status = 'hold' AND hold_expires_at > ?))
		  AND check_in < ? AND check_out > ?
		ORDER BY check_in
		LIMIT 1`
	var (
		c      model.Conflict
		status string
	)
	err := q.QueryRowContext(ctx, sel, unitID, ts(now), checkOut, checkIn).Scan(&c.ID, &c.CheckIn, &c.CheckOut, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Status = model.Status(status)
	return &c, nil
}

// FindConflict runs FindConflictTx outside a transaction.  The answer is
// advisory; only the check inside a creation transaction is authoritative.
func (r *ReservationRepo) FindConflict(ctx context.Context, unitID string, checkIn, checkOut model.Date, now time.Time) (*model.Conflict, error) {
	return r.FindConflictTx(ctx, r.db, unitID, checkIn, checkOut, now)
}

// CreateTx inserts res within the scope of an existing transaction.  The
// caller must commit or rollback.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations (id, unit_id, check_in, check_out, status, hold_expires_at, guest_count,
		contact_email, contact_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var expires sql.NullString
	if res.HoldExpiresAt != nil {
		expires = sql.NullString{String: ts(*res.HoldExpiresAt), Valid: true}
	}
	_, err := tx.ExecContext(ctx, q,
		res.ID, res.UnitID, res.CheckIn, res.CheckOut, string(res.Status), expires, res.GuestCount,
		nullStr(&res.ContactEmail), nullStr(&res.ContactName), ts(res.CreatedAt), ts(res.UpdatedAt),
	)
	return err
}

// GetByID loads one reservation.  Returns ErrNotFound when absent.
func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// ConfirmHold moves a live hold to confirmed, stamps the payment refs and
// clears the deadline.  A hold whose deadline is not after now does not
// qualify.  Returns ErrConflict when no row matched.
func (r *ReservationRepo) ConfirmHold(ctx context.Context, id string, refs PaymentRefs, now time.Time) error {
	const q = `UPDATE reservations
		SET status = 'confirmed', payment_session_ref = ?, payment_transaction_ref = ?, payment_event_ref = ?,
		    hold_expires_at = NULL, updated_at = ?
		WHERE id = ? AND status = 'hold' AND hold_expires_at > ?`
	return r.execOne(ctx, q,
		nullStr(&refs.SessionRef), nullStr(&refs.TransactionRef), nullStr(&refs.EventRef),
		ts(now), id, ts(now))
}

// CancelHold moves a hold to cancelled.  Returns ErrConflict when the row is
// missing or not a hold.
func (r *ReservationRepo) CancelHold(ctx context.Context, id string, now time.Time) error {
	const q = `UPDATE reservations SET status = 'cancelled', hold_expires_at = NULL, updated_at = ?
		WHERE id = ? AND status = 'hold'`
	return r.execOne(ctx, q, ts(now), id)
}

// ExpireHold expires a single hold whose deadline is at or before now.
func (r *ReservationRepo) ExpireHold(ctx context.Context, id string, now time.Time) error {
	const q = `UPDATE reservations SET status = 'expired', hold_expires_at = NULL, updated_at = ?
		WHERE id = ? AND status = 'hold' AND hold_expires_at <= ?`
	return r.execOne(ctx, q, ts(now), id, ts(now))
}

// ExpireLapsed expires every hold whose deadline is strictly before now and
// returns how many rows changed.  Other statuses are never touched.
func (r *ReservationRepo) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	const q = `UPDATE reservations SET status = 'expired', hold_expires_at = NULL, updated_at = ?
		WHERE status = 'hold' AND hold_expires_at IS NOT NULL AND hold_expires_at < ?`
	result, err := r.db.ExecContext(ctx, q, ts(now), ts(now))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RecordSyncError overwrites last_sync_error.
func (r *ReservationRepo) RecordSyncError(ctx context.Context, id, msg string, now time.Time) error {
	const q = `UPDATE reservations SET last_sync_error = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, q, msg, ts(now), id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetExternalRef records the channel-manager id on a confirmed reservation
// that has none yet and clears last_sync_error.  Returns ErrConflict when the
// ref was already set or the row is not confirmed.
func (r *ReservationRepo) SetExternalRef(ctx context.Context, id, ref string, now time.Time) error {
	const q = `UPDATE reservations SET external_reservation_ref = ?, last_sync_error = NULL, updated_at = ?
		WHERE id = ? AND status = 'confirmed' AND external_reservation_ref IS NULL`
	return r.execOne(ctx, q, ref, ts(now), id)
}

// ListBinding returns the records that currently block bookings, newest
// first.  An empty unitID lists every unit.
func (r *ReservationRepo) ListBinding(ctx context.Context, unitID string, now time.Time) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE (status = 'confirmed' OR (status = 'hold' AND hold_expires_at > ?))`
	args := []any{ts(now)}
	if unitID != "" {
		q += ` AND unit_id = ?`
		args = append(args, unitID)
	}
	q += ` ORDER BY created_at DESC`
	return r.list(ctx, q, args...)
}

// ListUnsynced returns confirmed reservations without an external ref whose
// last update is at or before olderThan, oldest first.
func (r *ReservationRepo) ListUnsynced(ctx context.Context, olderThan time.Time, limit int) ([]model.Reservation, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE status = 'confirmed' AND external_reservation_ref IS NULL AND updated_at <= ?
		ORDER BY updated_at
		LIMIT ?`
	return r.list(ctx, q, ts(olderThan), limit)
}

func (r *ReservationRepo) list(ctx context.Context, q string, args ...any) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func (r *ReservationRepo) execOne(ctx context.Context, q string, args ...any) error {
	result, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
