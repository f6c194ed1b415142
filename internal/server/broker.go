package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/storage"
)

// subscriber tracks an SSE subscriber's channel and tenant scope.
type subscriber struct {
	tenantID string
}

// Broker fans out Postgres LISTEN/NOTIFY messages published on
// storage.ChannelAuditEvents to SSE subscribers of GET /v1/subscribe. It
// runs a background goroutine that calls db.WaitForNotification in a loop
// and delivers each payload only to subscribers of the matching tenant.
// Grounded on akashi's internal/server/broker.go, narrowed from two
// channels (decisions/conflicts) to one — every state-changing event
// already flows through the audit log (see DESIGN.md's "no persisted
// decisions table" resolution).
type Broker struct {
	db     *storage.DB
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[chan []byte]subscriber
}

func NewBroker(db *storage.DB, logger zerolog.Logger) *Broker {
	return &Broker{
		db:          db,
		logger:      logger,
		subscribers: make(map[chan []byte]subscriber),
	}
}

// Start begins listening on storage.ChannelAuditEvents. It blocks, so
// call it in a goroutine; it returns when ctx is canceled or the notify
// connection can't be established after retries.
func (b *Broker) Start(ctx context.Context) {
	if !b.db.HasNotifyConn() {
		b.logger.Info().Msg("broker: no notify connection configured, SSE feed disabled")
		return
	}
	if err := b.listenWithRetry(ctx); err != nil {
		b.logger.Error().Err(err).Msg("broker: failed to listen after retries, giving up")
		return
	}
	b.logger.Info().Str("channel", storage.ChannelAuditEvents).Msg("broker: listening for notifications")

	for {
		n, err := b.db.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn().Err(err).Msg("broker: notification error, retrying")
			continue
		}
		tenantID := extractTenantID(n.Payload)
		b.broadcastToTenant(formatSSE("audit", n.Payload), tenantID)
	}
}

func (b *Broker) listenWithRetry(ctx context.Context) error {
	const maxAttempts = 5
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = b.db.Listen(ctx, storage.ChannelAuditEvents); err == nil {
			return nil
		}
		backoff := time.Duration(1<<attempt) * time.Second
		b.logger.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", backoff).Msg("broker: listen failed, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("broker: listen %s failed after %d attempts: %w", storage.ChannelAuditEvents, maxAttempts, err)
}

// Subscribe returns a channel that receives SSE-formatted events scoped to
// tenantID. Admins subscribing across tenants is not supported — the
// audit trail's own tenant scoping rule (non-admin sees only its own
// tenant) applies identically here; an admin-wide feed would need a
// second subscription per tenant.
func (b *Broker) Subscribe(tenantID string) chan []byte {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.subscribers[ch] = subscriber{tenantID: tenantID}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) broadcastToTenant(event []byte, tenantID string) {
	if tenantID == "" {
		b.logger.Warn().Msg("broker: dropping event with unparseable tenant_id")
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, sub := range b.subscribers {
		if sub.tenantID != tenantID {
			continue
		}
		select {
		case ch <- event:
		default:
			b.logger.Warn().Str("tenant_id", tenantID).Int("buffer_cap", cap(ch)).Msg("broker: dropped event for slow subscriber")
		}
	}
}

func extractTenantID(payload string) string {
	var e model.AuditEntry
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return ""
	}
	return e.TenantID
}

// formatSSE formats a notification as a Server-Sent Events message. Each
// line of a multi-line data field is prefixed with "data: " so the SSE
// parser never desynchronizes on embedded newlines.
func formatSSE(eventType, data string) []byte {
	var buf bytes.Buffer
	buf.WriteString("event: ")
	buf.WriteString(eventType)
	buf.WriteByte('\n')
	for _, line := range strings.Split(data, "\n") {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}
