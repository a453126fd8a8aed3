// Package gate decides ALLOW or BLOCK for a requested target app. An
// allowed request atomically charges the entry cost and mints a handoff
// token; a blocked one reports the shortfall so callers can explain how
// many more steps are needed.
package gate

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stepgate/stepgate/internal/domain"
)

// Ledger is the balance slice the gate charges against. SpendSteps is
// check-and-commit under the ledger lock, so racing requests serialize
// there and losers see ErrInsufficientBalance with no partial charge.
type Ledger interface {
	Balance() domain.BalanceSummary
	SpendSteps(targetApp string, steps int64) error
	Tariff() domain.TariffConfig
}

// TokenIssuer mints handoff tokens for allowed requests.
type TokenIssuer interface {
	Issue(targetApp string) domain.HandoffToken
}

// DayPassStore persists purchased day passes across restarts. May be nil.
type DayPassStore interface {
	SaveDayPass(targetApp, dayKey string) error
	HasDayPass(targetApp, dayKey string) (bool, error)
}

// Config holds the administered gate settings beyond the base tariff.
type Config struct {
	// DayPassCostSteps prices a whole-day unlimited pass for one app.
	// 0 disables day passes.
	DayPassCostSteps int64

	// EntryCostOverrides replaces the tariff entry cost per target app.
	EntryCostOverrides map[string]int64
}

// Gate is the access-control decision point. Safe for concurrent use.
type Gate struct {
	mu        sync.Mutex
	ledger    Ledger
	tokens    TokenIssuer
	cfg       Config
	passes    map[string]string // target app -> day key of active pass
	passStore DayPassStore
	dayKey    func(time.Time) string
	log       *slog.Logger
	clock     func() time.Time
}

// New creates a gate. dayKey maps an instant to its economic-day label;
// passStore may be nil, in which case day passes live only in memory.
func New(ledger Ledger, tokens TokenIssuer, cfg Config, dayKey func(time.Time) string, passStore DayPassStore, log *slog.Logger) *Gate {
	if cfg.EntryCostOverrides == nil {
		cfg.EntryCostOverrides = make(map[string]int64)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		ledger:    ledger,
		tokens:    tokens,
		cfg:       cfg,
		passes:    make(map[string]string),
		passStore: passStore,
		dayKey:    dayKey,
		log:       log,
		clock:     time.Now,
	}
}

// DayPassCost returns the configured day-pass price (0 = disabled).
func (g *Gate) DayPassCost() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg.DayPassCostSteps
}

// EntryCost returns the effective per-open price for targetApp.
func (g *Gate) EntryCost(targetApp string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cost, ok := g.cfg.EntryCostOverrides[targetApp]; ok {
		return cost
	}
	return g.ledger.Tariff().EntryCostSteps
}

// SetEntryCostOverride prices targetApp independently of the tariff.
func (g *Gate) SetEntryCostOverride(targetApp string, cost int64) error {
	if cost < 0 {
		return fmt.Errorf("%w: entry cost override %d", domain.ErrInvalidTariff, cost)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.EntryCostOverrides[targetApp] = cost
	return nil
}

// ClearEntryCostOverride returns targetApp to the tariff price.
func (g *Gate) ClearEntryCostOverride(targetApp string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.cfg.EntryCostOverrides, targetApp)
}

// SetDayPassCost reprices day passes at runtime. 0 disables new
// purchases; passes already bought stay valid until the day boundary.
func (g *Gate) SetDayPassCost(cost int64) error {
	if cost < 0 {
		return fmt.Errorf("%w: day pass cost %d", domain.ErrInvalidTariff, cost)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.DayPassCostSteps = cost
	return nil
}

// ReplaceEntryCostOverrides swaps the whole per-app price table, for
// config reloads. Rejected whole if any override is negative.
func (g *Gate) ReplaceEntryCostOverrides(overrides map[string]int64) error {
	for app, cost := range overrides {
		if cost < 0 {
			return fmt.Errorf("%w: entry cost override %d for %s", domain.ErrInvalidTariff, cost, app)
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.EntryCostOverrides = make(map[string]int64, len(overrides))
	for app, cost := range overrides {
		g.cfg.EntryCostOverrides[app] = cost
	}
	return nil
}

// RequestAccess is the gate decision for a single open attempt.
// Allow mints a token; the entry cost is charged unless the tariff is
// unlimited for this app or an active day pass covers it. Block is a
// decision, not an error.
func (g *Gate) RequestAccess(targetApp string) (domain.GateDecision, error) {
	cost := g.EntryCost(targetApp)

	if cost == 0 || g.HasDayPass(targetApp) {
		tok := g.tokens.Issue(targetApp)
		return domain.GateDecision{
			Allowed:        true,
			Token:          &tok,
			RemainingSteps: g.ledger.Balance().TotalStepsBalance,
		}, nil
	}

	err := g.ledger.SpendSteps(targetApp, cost)
	if errors.Is(err, domain.ErrInsufficientBalance) {
		remaining := g.ledger.Balance().TotalStepsBalance
		g.log.Info("gate blocked", "target_app", targetApp, "cost", cost, "remaining", remaining)
		return domain.GateDecision{
			Reason:         domain.BlockInsufficientBalance,
			RemainingSteps: remaining,
			StepsShort:     cost - remaining,
		}, nil
	}
	if err != nil {
		return domain.GateDecision{}, err
	}

	tok := g.tokens.Issue(targetApp)
	remaining := g.ledger.Balance().TotalStepsBalance
	g.log.Info("gate allowed", "target_app", targetApp, "cost", cost, "remaining", remaining)
	return domain.GateDecision{
		Allowed:        true,
		Token:          &tok,
		RemainingSteps: remaining,
	}, nil
}

// OpensLeft reports how many more opens today's balance affords for
// targetApp. unlimited is true for a zero entry cost or an active day
// pass.
func (g *Gate) OpensLeft(targetApp string) (opens int64, unlimited bool) {
	cost := g.EntryCost(targetApp)
	if cost == 0 || g.HasDayPass(targetApp) {
		return 0, true
	}
	available := g.ledger.Balance().TotalStepsBalance
	if available < 0 {
		available = 0
	}
	return available / cost, false
}

// BuyDayPass charges the day-pass price once and marks targetApp free
// until the next day boundary. Buying an already-active pass is a no-op.
// The pass check and the charge stay under one lock so racing purchases
// cannot both pay.
func (g *Gate) BuyDayPass(targetApp string) error {
	key := g.dayKey(g.clock())

	g.mu.Lock()
	defer g.mu.Unlock()
	cost := g.cfg.DayPassCostSteps
	if cost <= 0 {
		return fmt.Errorf("%w: day passes disabled", domain.ErrInvalidTariff)
	}
	if g.hasDayPassLocked(targetApp, key) {
		return nil
	}
	if err := g.ledger.SpendSteps(targetApp, cost); err != nil {
		return err
	}

	g.passes[targetApp] = key
	if g.passStore != nil {
		if err := g.passStore.SaveDayPass(targetApp, key); err != nil {
			g.log.Error("day pass persist failed", "target_app", targetApp, "error", err)
		}
	}
	g.log.Info("day pass granted", "target_app", targetApp, "day_key", key)
	return nil
}

// HasDayPass reports whether targetApp holds a pass for the current
// economic day. Passes bought on earlier days lapse implicitly.
func (g *Gate) HasDayPass(targetApp string) bool {
	key := g.dayKey(g.clock())
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hasDayPassLocked(targetApp, key)
}

func (g *Gate) hasDayPassLocked(targetApp, key string) bool {
	if stored, ok := g.passes[targetApp]; ok && stored == key {
		return true
	}
	if g.passStore != nil {
		has, err := g.passStore.HasDayPass(targetApp, key)
		if err != nil {
			g.log.Error("day pass lookup failed", "target_app", targetApp, "error", err)
			return false
		}
		if has {
			g.passes[targetApp] = key
		}
		return has
	}
	return false
}
