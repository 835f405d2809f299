package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/rental-hold-engine/internal/model"
)

// timestampLayout is the wire form of every timestamp parameter.  It is
// accepted by MySQL DATETIME(6) columns and sorts lexically in SQLite TEXT
// columns.
const timestampLayout = "2006-01-02 15:04:05.000000"

func ts(t time.Time) string { return t.UTC().Format(timestampLayout) }

// nullTime scans DATETIME values from MySQL (time.Time with parseTime=true)
// and the TEXT timestamps of the SQLite schema.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	}
	return fmt.Errorf("scan timestamp: unsupported type %T", src)
}

func (n *nullTime) parse(s string) error {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("scan timestamp: cannot parse %q", s)
}

func (n nullTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullStr(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const reservationColumns = `id, unit_id, check_in, check_out, status, hold_expires_at, guest_count,
	contact_email, contact_name, payment_session_ref, payment_transaction_ref, payment_event_ref,
	external_reservation_ref, last_sync_error, created_at, updated_at`

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		res                                      model.Reservation
		status                                   string
		holdExpires, created, updated            nullTime
		email, name, session, txn, event, extRef sql.NullString
		syncErr                                  sql.NullString
	)
	err := s.Scan(
		&res.ID, &res.UnitID, &res.CheckIn, &res.CheckOut, &status, &holdExpires, &res.GuestCount,
		&email, &name, &session, &txn, &event,
		&extRef, &syncErr, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	res.Status = model.Status(status)
	if !res.Status.Valid() {
		return nil, fmt.Errorf("reservation %s: unknown status %q", res.ID, status)
	}
	res.HoldExpiresAt = holdExpires.ptr()
	res.ContactEmail = email.String
	res.ContactName = name.String
	res.PaymentSessionRef = strPtr(session)
	res.PaymentTransactionRef = strPtr(txn)
	res.PaymentEventRef = strPtr(event)
	res.ExternalReservationRef = strPtr(extRef)
	res.LastSyncError = strPtr(syncErr)
	res.CreatedAt = created.Time
	res.UpdatedAt = updated.Time
	return &res, nil
}
