// Package token implements the handoff token authority: short-lived,
// single-use credentials minted on an allowed gate decision and consumed
// exactly once by the interception layer before it permits navigation.
package token

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stepgate/stepgate/internal/domain"
)

// DefaultTTL bounds the replay window between issuance and the
// interception layer's confirmation.
const DefaultTTL = 60 * time.Second

type entry struct {
	token    domain.HandoffToken
	consumed bool
}

// Authority issues and tracks handoff tokens. The table is in-memory
// only: tokens from a prior process instance validate as Unknown, which
// is the safe answer for a credential that cannot be vouched for.
type Authority struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]*entry
	log    *slog.Logger
	clock  func() time.Time
}

// New creates an authority with the given TTL. ttl <= 0 falls back to
// DefaultTTL.
func New(ttl time.Duration, log *slog.Logger) *Authority {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Authority{
		ttl:    ttl,
		tokens: make(map[string]*entry),
		log:    log,
		clock:  time.Now,
	}
}

// TTL returns the configured lifetime.
func (a *Authority) TTL() time.Duration { return a.ttl }

// Issue mints a fresh token for targetApp.
func (a *Authority) Issue(targetApp string) domain.HandoffToken {
	t := domain.HandoffToken{
		TokenID:       uuid.NewString(),
		TargetAppName: targetApp,
		CreatedAt:     a.clock(),
	}
	a.mu.Lock()
	a.tokens[t.TokenID] = &entry{token: t}
	a.mu.Unlock()
	a.log.Debug("token issued", "token_id", t.TokenID, "target_app", targetApp)
	return t
}

// Validate reports the lifecycle state of a token id without changing it.
// Consumption is terminal: a consumed token reports AlreadyConsumed even
// after its TTL elapses.
func (a *Authority) Validate(tokenID string) domain.TokenState {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.tokens[tokenID]
	if !ok {
		return domain.TokenUnknown
	}
	if e.consumed {
		return domain.TokenConsumed
	}
	if e.token.ExpiredAfter(a.ttl, a.clock()) {
		return domain.TokenExpired
	}
	return domain.TokenValid
}

// Consume redeems a token. The first successful call transitions it to
// AlreadyConsumed; every later call on the same id fails deterministically.
func (a *Authority) Consume(tokenID string) (domain.HandoffToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.tokens[tokenID]
	if !ok {
		return domain.HandoffToken{}, fmt.Errorf("%w: %s", domain.ErrTokenUnknown, tokenID)
	}
	if e.consumed {
		return domain.HandoffToken{}, fmt.Errorf("%w: %s", domain.ErrTokenConsumed, tokenID)
	}
	if e.token.ExpiredAfter(a.ttl, a.clock()) {
		return domain.HandoffToken{}, fmt.Errorf("%w: %s", domain.ErrTokenExpired, tokenID)
	}
	e.consumed = true
	a.log.Info("token consumed", "token_id", tokenID, "target_app", e.token.TargetAppName)
	return e.token, nil
}

// Sweep drops expired and consumed entries older than twice the TTL and
// returns how many were removed. Recently dead entries are kept so
// Validate can still distinguish Expired and AlreadyConsumed from
// Unknown.
func (a *Authority) Sweep() int {
	cutoff := a.clock().Add(-2 * a.ttl)
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for id, e := range a.tokens {
		if e.token.CreatedAt.Before(cutoff) {
			delete(a.tokens, id)
			removed++
		}
	}
	return removed
}

// Run sweeps the table periodically until ctx is cancelled.
func (a *Authority) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = a.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := a.Sweep(); n > 0 {
				a.log.Debug("token sweep", "removed", n)
			}
		}
	}
}
