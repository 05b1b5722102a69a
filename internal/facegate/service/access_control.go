package service

import (
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/facegate/internal/facegate/types"
)

// DefaultCooldown is the minimum gap between two grants for the same identity.
const DefaultCooldown = 5 * time.Second

type AccessPolicy struct {
	Authorized map[string]struct{}
	Cooldown   time.Duration
}

// NewAccessPolicy builds a policy from a list of names.  Blank entries are
// ignored.
func NewAccessPolicy(names []string, cooldown time.Duration) AccessPolicy {
	authorized := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			authorized[n] = struct{}{}
		}
	}
	return AccessPolicy{Authorized: authorized, Cooldown: cooldown}
}

// AccessControl turns resolved names into access decisions.  It owns the
// last-access table: entries are written only on a grant and live until the
// process exits.
type AccessControl struct {
	policy AccessPolicy

	mu         sync.Mutex
	lastAccess map[string]time.Time
}

func NewAccessControl(policy AccessPolicy) *AccessControl {
	if policy.Authorized == nil {
		policy.Authorized = map[string]struct{}{}
	}
	if policy.Cooldown < 0 {
		policy.Cooldown = 0
	}
	return &AccessControl{
		policy:     policy,
		lastAccess: make(map[string]time.Time),
	}
}

// Decide applies the policy to name at time t.
//
// The cooldown window is fixed: an AlreadyGranted result leaves the stored
// timestamp untouched, so the window always counts from the grant that
// opened it.
func (a *AccessControl) Decide(name string, t time.Time) types.Decision {
	if name == types.Unknown {
		return types.DecisionDenied
	}
	if _, ok := a.policy.Authorized[name]; !ok {
		return types.DecisionDenied
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if last, ok := a.lastAccess[name]; ok && t.Sub(last) < a.policy.Cooldown {
		return types.DecisionAlreadyGranted
	}

	a.lastAccess[name] = t
	return types.DecisionGranted
}

func (a *AccessControl) IsAuthorized(name string) bool {
	_, ok := a.policy.Authorized[name]
	return ok
}

func (a *AccessControl) Cooldown() time.Duration { return a.policy.Cooldown }

// LastAccess returns the time of the most recent grant for name.
func (a *AccessControl) LastAccess(name string) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.lastAccess[name]
	return t, ok
}

// Snapshot returns a copy of the last-access table.
func (a *AccessControl) Snapshot() map[string]time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]time.Time, len(a.lastAccess))
	for k, v := range a.lastAccess {
		out[k] = v
	}
	return out
}
