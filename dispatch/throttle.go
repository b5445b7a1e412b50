package dispatch

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle limits (§4.4 table).
const (
	DefaultMaxConcurrentDispatches = 3
	DefaultMinDispatchIntervalMs   = 0
	DefaultMaxDispatchesPerPoll    = 10
	DefaultMaxDispatchRetries      = 3
)

// Limits is the resolved set of throttle parameters for one poll pass,
// combining process-global defaults with an optional team override.
type Limits struct {
	MaxConcurrentDispatches int
	MinDispatchIntervalMs   int
	MaxDispatchesPerPoll    int
}

// TeamOverride narrows Limits for members of a specific team (§3 org chart
// dispatch overrides).
func (l Limits) TeamOverride(maxConcurrent, minIntervalMs int) Limits {
	out := l
	if maxConcurrent > 0 {
		out.MaxConcurrentDispatches = maxConcurrent
	}
	if minIntervalMs > 0 {
		out.MinDispatchIntervalMs = minIntervalMs
	}
	return out
}

// Throttle tracks per-poll and cross-poll dispatch state: one rate.Limiter
// gating the wall-clock spacing between any two dispatches, plus one more
// per team, built lazily. State persists in memory across poll cycles per
// §4.4 ("interval state persists... in memory"); it is never mutated when
// dryRun is true.
type Throttle struct {
	mu         sync.Mutex
	global     Limits
	teamLimits map[string]Limits

	// limiters is keyed by teamID, with "" holding the cross-team global
	// limiter. limiterMs records the interval each cached limiter was built
	// with, so a changed team override rebuilds it instead of reusing a
	// limiter configured for the wrong rate.
	limiters  map[string]*rate.Limiter
	limiterMs map[string]int

	perPollCount int
}

// NewThrottle builds a Throttle with process-global defaults, overridable by
// the caller before the first poll.
func NewThrottle(global Limits) *Throttle {
	return &Throttle{
		global:     global,
		teamLimits: map[string]Limits{},
		limiters:   map[string]*rate.Limiter{},
		limiterMs:  map[string]int{},
	}
}

// SetTeamLimits registers a team's throttle override, read by Allow.
func (t *Throttle) SetTeamLimits(teamID string, l Limits) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.teamLimits[teamID] = l
}

// BeginPoll resets the per-poll dispatch counter; call once at the top of
// each scheduler.poll invocation.
func (t *Throttle) BeginPoll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.perPollCount = 0
}

// Allow reports whether a dispatch to teamID (may be "") is currently
// permitted given currentInProgress and now, without mutating state.
func (t *Throttle) Allow(teamID string, currentInProgress int, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowLocked(teamID, currentInProgress, now)
}

func (t *Throttle) resolveLimits(teamID string) Limits {
	limits := t.global
	if ov, ok := t.teamLimits[teamID]; ok {
		limits = t.global.TeamOverride(ov.MaxConcurrentDispatches, ov.MinDispatchIntervalMs)
	}
	return limits
}

// limiterLocked returns the cached rate.Limiter for key ("" for the global
// gate, a team id otherwise), rebuilding it if intervalMs no longer matches
// what it was built with. Callers must hold t.mu.
func (t *Throttle) limiterLocked(key string, intervalMs int) *rate.Limiter {
	if lim, ok := t.limiters[key]; ok && t.limiterMs[key] == intervalMs {
		return lim
	}
	lim := rateLimiterFor(intervalMs)
	t.limiters[key] = lim
	t.limiterMs[key] = intervalMs
	return lim
}

func (t *Throttle) allowLocked(teamID string, currentInProgress int, now time.Time) bool {
	limits := t.resolveLimits(teamID)

	if limits.MaxDispatchesPerPoll > 0 && t.perPollCount >= limits.MaxDispatchesPerPoll {
		return false
	}
	if limits.MaxConcurrentDispatches > 0 && currentInProgress >= limits.MaxConcurrentDispatches {
		return false
	}
	if limits.MinDispatchIntervalMs > 0 {
		if t.limiterLocked("", limits.MinDispatchIntervalMs).TokensAt(now) < 1 {
			return false
		}
		if teamID != "" && t.limiterLocked(teamID, limits.MinDispatchIntervalMs).TokensAt(now) < 1 {
			return false
		}
	}
	return true
}

// RecordDispatch marks a successful dispatch at now, consuming a token from
// the interval limiters and advancing the per-poll counter. Skipped entirely
// when dryRun is true, per §4.4 ("In dry-run the interval tracker is not
// mutated").
func (t *Throttle) RecordDispatch(teamID string, now time.Time, dryRun bool) {
	if dryRun {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	limits := t.resolveLimits(teamID)
	if limits.MinDispatchIntervalMs > 0 {
		t.limiterLocked("", limits.MinDispatchIntervalMs).AllowN(now, 1)
		if teamID != "" {
			t.limiterLocked(teamID, limits.MinDispatchIntervalMs).AllowN(now, 1)
		}
	}
	t.perPollCount++
}

// rateLimiterFor builds the token-bucket backing one interval gate. A
// non-positive interval never throttles, so it gets an infinite-rate
// limiter that always has a token available.
func rateLimiterFor(minIntervalMs int) *rate.Limiter {
	if minIntervalMs <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	every := time.Duration(minIntervalMs) * time.Millisecond
	return rate.NewLimiter(rate.Every(every), 1)
}
