// Package ratelimit implements sliding-window lockouts over the append-only
// access log. Limits are evaluated per (identity, action) and, at a doubled
// threshold, per (origin, action); only failed attempts ever count.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// Decision scopes, used as metric labels and for logging.
const (
	ScopeIdentity = "identity"
	ScopeOrigin   = "origin"
)

// Policy is the sliding-window lockout configuration of one action.
type Policy struct {
	// Window is how far back failures are counted.
	Window time.Duration

	// MaxFailures is the identity-scoped trip threshold. Origins trip at
	// twice this value.
	MaxFailures int

	// Lockout is added to the oldest in-window failure to obtain the
	// lockout end.
	Lockout time.Duration
}

// DefaultPolicies returns the production lockout policies. Retrieval is
// attacked most often and gets the tightest window; mutations are rarer and
// lock out longer.
func DefaultPolicies() map[interfaces.AccessAction]Policy {
	return map[interfaces.AccessAction]Policy{
		interfaces.ActionRetrieve: {Window: 15 * time.Minute, MaxFailures: 5, Lockout: 30 * time.Minute},
		interfaces.ActionStore:    {Window: 60 * time.Minute, MaxFailures: 3, Lockout: 2 * time.Hour},
		interfaces.ActionUpdate:   {Window: 30 * time.Minute, MaxFailures: 3, Lockout: time.Hour},
	}
}

// Decision is the outcome of a limit check.
type Decision struct {
	Limited bool

	// RetryAfterMinutes is the ceiling of the time remaining until the
	// lockout ends. At least 1 when Limited.
	RetryAfterMinutes int

	// Scope names which threshold tripped: ScopeIdentity or ScopeOrigin.
	Scope string
}

// Limiter evaluates lockout policies against the access log. It holds no
// state of its own: every decision is recomputed from stored failures, so
// multiple replicas sharing one database agree without coordination.
type Limiter struct {
	store    interfaces.AccessLogStore
	policies map[interfaces.AccessAction]Policy
	log      *slog.Logger

	// now is injectable for tests.
	now func() time.Time
}

// NewLimiter builds a limiter over an access log store. A nil policies map
// selects DefaultPolicies.
func NewLimiter(store interfaces.AccessLogStore, policies map[interfaces.AccessAction]Policy, log *slog.Logger) *Limiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Limiter{
		store:    store,
		policies: policies,
		log:      log,
		now:      time.Now,
	}
}

// IsLimited reports whether an identity or its origin is currently locked out
// of an action. The identity threshold is checked first; the origin threshold
// at twice the failure budget catches rotation across identities from one
// address.
//
// The check-then-act gap between IsLimited and the attempt it guards is
// accepted: a burst racing the window can exceed the budget by a few attempts
// but every failure still lands in the log and extends the lockout.
func (l *Limiter) IsLimited(ctx context.Context, identity, origin string, action interfaces.AccessAction) (Decision, error) {
	policy, ok := l.policies[action]
	if !ok {
		return Decision{}, fmt.Errorf("no lockout policy for action %q", action)
	}

	now := l.now()
	since := now.Add(-policy.Window)

	identityFailures, err := l.store.FailuresByIdentity(ctx, identity, action, since)
	if err != nil {
		return Decision{}, err
	}
	if decision := evaluate(identityFailures, policy.MaxFailures, policy.Lockout, now, ScopeIdentity); decision.Limited {
		l.log.Info("Identity locked out",
			slog.String("identity", identity),
			slog.String("action", action.String()),
			slog.Int("retry_after_minutes", decision.RetryAfterMinutes))
		return decision, nil
	}

	originFailures, err := l.store.FailuresByOrigin(ctx, origin, action, since)
	if err != nil {
		return Decision{}, err
	}
	if decision := evaluate(originFailures, 2*policy.MaxFailures, policy.Lockout, now, ScopeOrigin); decision.Limited {
		l.log.Info("Origin locked out",
			slog.String("origin", origin),
			slog.String("action", action.String()),
			slog.Int("retry_after_minutes", decision.RetryAfterMinutes))
		return decision, nil
	}

	return Decision{}, nil
}

// evaluate applies one threshold to a window of failure timestamps, oldest
// first. The lockout is anchored at the oldest in-window failure; once that
// failure plus the lockout duration has passed, the limit lifts even if the
// failures are still inside the window.
func evaluate(failures []time.Time, maxFailures int, lockout time.Duration, now time.Time, scope string) Decision {
	if maxFailures <= 0 || len(failures) < maxFailures {
		return Decision{}
	}

	lockoutEnd := failures[0].Add(lockout)
	remaining := lockoutEnd.Sub(now)
	if remaining <= 0 {
		return Decision{}
	}

	minutes := int(remaining / time.Minute)
	if remaining%time.Minute != 0 {
		minutes++
	}

	return Decision{Limited: true, RetryAfterMinutes: minutes, Scope: scope}
}

// LogAccess appends one audit entry. Both outcomes are recorded; reason is
// stored only for failures and an empty reason maps to NULL.
func (l *Limiter) LogAccess(ctx context.Context, identity, origin string, action interfaces.AccessAction, success bool, reason string) error {
	entry := &interfaces.AccessLogEntry{
		Identity:  identity,
		Origin:    origin,
		Action:    action,
		Success:   success,
		CreatedAt: l.now(),
	}
	if reason != "" {
		entry.Reason = &reason
	}

	return l.store.Append(ctx, entry)
}
