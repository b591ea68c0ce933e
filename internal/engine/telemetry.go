package engine

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// Telemetry counts what one client session did. Counters are reset when
// the session starts and logged when it ends.
type Telemetry struct {
	Heartbeats      atomic.Int64
	GuessesAccepted atomic.Int64
	BranchCharges   atomic.Int64
	StaleWrites     atomic.Int64
	HostMigrations  atomic.Int64
	GhostsEvicted   atomic.Int64
	RoundsForced    atomic.Int64
	RoundsResolved  atomic.Int64

	mu       sync.Mutex
	rejected map[string]int64
}

func NewTelemetry() *Telemetry {
	return &Telemetry{rejected: make(map[string]int64)}
}

func (t *Telemetry) Reset() {
	for _, c := range []*atomic.Int64{
		&t.Heartbeats, &t.GuessesAccepted, &t.BranchCharges, &t.StaleWrites,
		&t.HostMigrations, &t.GhostsEvicted, &t.RoundsForced, &t.RoundsResolved,
	} {
		c.Store(0)
	}
	t.mu.Lock()
	clear(t.rejected)
	t.mu.Unlock()
}

// Rejected returns how many guesses were turned away for reason.
func (t *Telemetry) Rejected(reason string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rejected[reason]
}

func (t *Telemetry) reject(reason string) {
	t.mu.Lock()
	t.rejected[reason]++
	t.mu.Unlock()
}

func (t *Telemetry) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("heartbeats", t.Heartbeats.Load()),
		slog.Int64("guesses", t.GuessesAccepted.Load()),
		slog.Int64("branchCharges", t.BranchCharges.Load()),
		slog.Int64("staleWrites", t.StaleWrites.Load()),
		slog.Int64("hostMigrations", t.HostMigrations.Load()),
		slog.Int64("ghostsEvicted", t.GhostsEvicted.Load()),
		slog.Int64("roundsForced", t.RoundsForced.Load()),
		slog.Int64("roundsResolved", t.RoundsResolved.Load()),
	}
	t.mu.Lock()
	for _, reason := range slices.Sorted(maps.Keys(t.rejected)) {
		attrs = append(attrs, slog.Int64("rejected."+reason, t.rejected[reason]))
	}
	t.mu.Unlock()
	return slog.GroupValue(attrs...)
}
