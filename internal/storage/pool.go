package storage

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the pooled connection used for request-serving queries plus a
// dedicated connection for LISTEN/NOTIFY, which must bypass any transaction
// pooler (PgBouncer) sitting in front of the pool DSN.
type DB struct {
	pool       *pgxpool.Pool
	notifyConn *pgx.Conn
	notifyDSN  string

	notifyMu       sync.Mutex
	listenChannels []string

	logger zerolog.Logger
}

// New opens the pool against poolDSN and, if notifyDSN is non-empty, a
// separate direct connection for LISTEN/NOTIFY. notifyDSN may be empty in
// deployments that don't need the live SSE feed, in which case
// HasNotifyConn reports false and internal/server's Broker leaves the feed
// disabled.
func New(ctx context.Context, poolDSN, notifyDSN string, logger zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(poolDSN)
	if err != nil {
		return nil, fmt.Errorf("storage: parse pool dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	db := &DB{
		pool:      pool,
		notifyDSN: notifyDSN,
		logger:    logger,
	}

	if notifyDSN != "" {
		conn, err := pgx.Connect(ctx, notifyDSN)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("storage: connect notify conn: %w", err)
		}
		db.notifyConn = conn
	}

	return db, nil
}

// Pool returns the underlying connection pool for callers that need raw
// pgx access (batch inserts, explicit transactions).
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// HasNotifyConn reports whether a dedicated LISTEN/NOTIFY connection is
// available.
func (db *DB) HasNotifyConn() bool {
	return db.notifyConn != nil
}

// Notification mirrors the subset of pgconn.Notification callers need,
// without leaking the pgx type into the Broker's listen loop.
type Notification struct {
	Channel string
	Payload string
}

// Listen subscribes the notify connection to channel and remembers it so
// reconnectNotify can re-subscribe after a dropped connection.
func (db *DB) Listen(ctx context.Context, channel string) error {
	if db.notifyConn == nil {
		return fmt.Errorf("storage: no notify connection configured")
	}
	db.notifyMu.Lock()
	defer db.notifyMu.Unlock()

	if _, err := db.notifyConn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("storage: listen %s: %w", channel, err)
	}
	db.listenChannels = append(db.listenChannels, channel)
	return nil
}

// WaitForNotification blocks until a notification arrives on the notify
// connection, ctx is canceled, or the connection drops. On a drop it
// reconnects with backoff and returns the original error; the caller can
// then wait again on the new connection.
func (db *DB) WaitForNotification(ctx context.Context) (*Notification, error) {
	if db.notifyConn == nil {
		return nil, fmt.Errorf("storage: no notify connection configured")
	}
	n, err := db.notifyConn.WaitForNotification(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		db.logger.Warn().Err(err).Msg("storage: notify connection dropped, reconnecting")
		if rerr := db.reconnectNotify(ctx); rerr != nil {
			return nil, fmt.Errorf("storage: reconnect notify conn: %w", rerr)
		}
		return nil, err
	}
	return &Notification{Channel: n.Channel, Payload: n.Payload}, nil
}

// reconnectNotify re-establishes the dedicated notify connection with
// exponential backoff and jitter, then re-subscribes to every channel this
// process had previously LISTENed on.
func (db *DB) reconnectNotify(ctx context.Context) error {
	db.notifyMu.Lock()
	channels := append([]string(nil), db.listenChannels...)
	db.notifyMu.Unlock()

	delay := 500 * time.Millisecond
	const maxRetries = 5

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + time.Duration(rand.Int64N(int64(delay/2)+1))):
		}

		conn, err := pgx.Connect(ctx, db.notifyDSN)
		if err != nil {
			lastErr = err
			delay *= 2
			continue
		}

		ok := true
		for _, ch := range channels {
			if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
				lastErr = fmt.Errorf("re-listen %s: %w", ch, err)
				_ = conn.Close(ctx)
				ok = false
				break
			}
		}
		if !ok {
			delay *= 2
			continue
		}

		db.notifyMu.Lock()
		db.notifyConn = conn
		db.notifyMu.Unlock()
		return nil
	}
	return fmt.Errorf("storage: exhausted %d reconnect attempts: %w", maxRetries, lastErr)
}

// Ping checks pool connectivity for readiness probes.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close releases the pool and, if present, the notify connection.
func (db *DB) Close(ctx context.Context) error {
	if db.notifyConn != nil {
		_ = db.notifyConn.Close(ctx)
	}
	db.pool.Close()
	return nil
}
