package storage

import "context"

// ChannelAuditEvents is the Postgres LISTEN/NOTIFY channel audit.Log
// publishes to on every successful append, and internal/server's Broker
// subscribes to for the live SSE feed (spec.md's audit log is the single
// record of every state-changing action, including decision generation —
// see DESIGN.md's "no persisted decisions table" resolution — so one
// channel covers both audit and decision events).
const ChannelAuditEvents = "riskcast_audit_events"

// Notify publishes payload on channel via pg_notify. Any pool connection
// can send a NOTIFY — only *receiving* one needs the dedicated notifyConn
// (see Listen/WaitForNotification in pool.go).
func (db *DB) Notify(ctx context.Context, channel, payload string) error {
	_, err := db.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, payload)
	return err
}
