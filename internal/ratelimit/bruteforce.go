package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// BruteForceProtection throttles login attempts along two dimensions: by
// source IP and by the account being targeted. It is deliberately separate
// from Limiter — login throttling locks out a key for a fixed duration
// after too many failures, rather than metering a steady rate.
type BruteForceProtection struct {
	ipMax         int
	ipWindow      time.Duration
	ipLockout     time.Duration
	accountMax    int
	accountWindow time.Duration
	accountLockout time.Duration

	mu       sync.Mutex
	byIP     map[string]*attemptTracker
	byAccount map[string]*attemptTracker
}

type attemptTracker struct {
	attempts   []time.Time
	lockedUntil time.Time
}

func (t *attemptTracker) pruneOld(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	kept := t.attempts[:0]
	for _, a := range t.attempts {
		if a.After(cutoff) {
			kept = append(kept, a)
		}
	}
	t.attempts = kept
}

func (t *attemptTracker) isLocked(now time.Time) bool {
	return now.Before(t.lockedUntil)
}

// NewBruteForceProtection returns a protector configured per the RiskCast
// defaults: 5 failures per IP in 15 minutes locks that IP for 15 minutes,
// 10 failures per account in 60 minutes locks that account for 60 minutes.
func NewBruteForceProtection() *BruteForceProtection {
	return &BruteForceProtection{
		ipMax:          5,
		ipWindow:       15 * time.Minute,
		ipLockout:      15 * time.Minute,
		accountMax:     10,
		accountWindow:  60 * time.Minute,
		accountLockout: 60 * time.Minute,
		byIP:           make(map[string]*attemptTracker),
		byAccount:      make(map[string]*attemptTracker),
	}
}

// CheckAllowed reports whether a login attempt from ip against account may
// proceed, and if not, how many seconds until it may retry.
func (b *BruteForceProtection) CheckAllowed(ip, account string) (allowed bool, reason string, retryAfterSeconds int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()

	if t, ok := b.byIP[ip]; ok && t.isLocked(now) {
		return false, "too many failed attempts from this IP", int(t.lockedUntil.Sub(now).Seconds()) + 1
	}
	if account != "" {
		key := strings.ToLower(account)
		if t, ok := b.byAccount[key]; ok && t.isLocked(now) {
			return false, "account temporarily locked", int(t.lockedUntil.Sub(now).Seconds()) + 1
		}
	}
	return true, "", 0
}

// RecordFailure records a failed attempt and locks the IP and/or account
// out once their respective thresholds are crossed.
func (b *BruteForceProtection) RecordFailure(ip, account string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()

	ipTracker, ok := b.byIP[ip]
	if !ok {
		ipTracker = &attemptTracker{}
		b.byIP[ip] = ipTracker
	}
	ipTracker.pruneOld(now, b.ipWindow)
	ipTracker.attempts = append(ipTracker.attempts, now)
	if len(ipTracker.attempts) >= b.ipMax {
		ipTracker.lockedUntil = now.Add(b.ipLockout)
	}

	if account == "" {
		return
	}
	key := strings.ToLower(account)
	acctTracker, ok := b.byAccount[key]
	if !ok {
		acctTracker = &attemptTracker{}
		b.byAccount[key] = acctTracker
	}
	acctTracker.pruneOld(now, b.accountWindow)
	acctTracker.attempts = append(acctTracker.attempts, now)
	if len(acctTracker.attempts) >= b.accountMax {
		acctTracker.lockedUntil = now.Add(b.accountLockout)
	}
}

// RecordSuccess clears attempt history for ip and account.
func (b *BruteForceProtection) RecordSuccess(ip, account string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byIP, ip)
	if account != "" {
		delete(b.byAccount, strings.ToLower(account))
	}
}

// ProgressiveDelay returns how long the caller should wait before
// processing this IP's next attempt: 0 for the first two failures, then
// 1s, 2s, 4s, 8s (capped) as failures accumulate.
func (b *BruteForceProtection) ProgressiveDelay(ip string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.byIP[ip]
	if !ok || len(t.attempts) < 3 {
		return 0
	}
	exponent := len(t.attempts) - 3
	if exponent > 3 {
		exponent = 3
	}
	return time.Duration(1<<exponent) * time.Second
}
