package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrConflict is returned when a uniqueness constraint would be violated
// by an insert — duplicate signal_id, duplicate decision_id on outcomes,
// duplicate tenant or API-key rows.
var ErrConflict = errors.New("storage: conflict")

// ErrReconcileAlreadyRunning is returned when a reconcile run is requested
// for a tenant that already has one in the "running" state (spec.md §4.4
// concurrency rule: at most one concurrent run per tenant).
var ErrReconcileAlreadyRunning = errors.New("storage: reconcile already running for tenant")

// isUniqueViolation reports whether err is a Postgres unique_violation
// (23505), the class raised when two concurrent ingests race on the same
// signal_id or two outcome POSTs race on the same decision_id.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505"
}
