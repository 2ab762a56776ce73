package safety

import (
	"sync"
	"time"

	"holly/internal/config"
	"holly/internal/types"
)

// rateLimiter tracks proposal volume with a sliding one-hour window plus a
// per-path cooldown map. State is process-local and not persisted across
// restarts. Admission goes through reserve, which checks every limit and
// stamps the proposal inside one critical section; a separate check followed
// by record would let concurrent callers all pass before any of them writes.
type rateLimiter struct {
	mu sync.Mutex

	cfg config.SafetyConfig

	// proposals holds the timestamps of approved proposals, pruned to the
	// trailing hour on every check.
	proposals []time.Time

	// lastProposed maps file path to the time it was last approved.
	lastProposed map[string]time.Time

	// now is swapped out by tests.
	now func() time.Time
}

const windowSize = time.Hour

func newRateLimiter(cfg config.SafetyConfig) *rateLimiter {
	return &rateLimiter{
		cfg:          cfg,
		lastProposed: make(map[string]time.Time),
		now:          time.Now,
	}
}

// reserve checks every volume limit and, when all pass, stamps the proposal
// into the window and cooldown map under a single lock. Callers run their
// pure content checks first: a reservation is a consumed budget slot.
func (rl *rateLimiter) reserve(files []types.FileOp) (types.RejectReason, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if reason, hit := rl.checkLocked(files, now); hit {
		return reason, true
	}
	rl.recordLocked(files, now)
	return "", false
}

// check runs every volume limit without mutating state.
func (rl *rateLimiter) check(files []types.FileOp) (types.RejectReason, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.checkLocked(files, rl.now())
}

// checkLocked evaluates the limits. Caller holds the mutex.
func (rl *rateLimiter) checkLocked(files []types.FileOp, now time.Time) (types.RejectReason, bool) {
	rl.prune(now)

	if len(rl.proposals) >= rl.cfg.MaxProposalsPerHour {
		return types.ReasonRateLimitExceeded, true
	}
	if len(files) > rl.cfg.MaxFilesPerProposal {
		return types.ReasonTooManyFiles, true
	}

	total := 0
	for _, f := range files {
		total += len(f.Content)
	}
	if total > rl.cfg.MaxBytesPerProposal {
		return types.ReasonContentTooLarge, true
	}

	cooldown := time.Duration(rl.cfg.CooldownSeconds) * time.Second
	for _, f := range files {
		if last, ok := rl.lastProposed[f.Path]; ok && now.Sub(last) < cooldown {
			return types.ReasonCooldownActive, true
		}
	}

	return "", false
}

// record stamps an approved proposal into the window and cooldown map.
func (rl *rateLimiter) record(files []types.FileOp) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.recordLocked(files, rl.now())
}

// recordLocked writes the stamps. Caller holds the mutex.
func (rl *rateLimiter) recordLocked(files []types.FileOp, now time.Time) {
	rl.proposals = append(rl.proposals, now)
	for _, f := range files {
		rl.lastProposed[f.Path] = now
	}
}

// prune drops window entries older than an hour. Caller holds the mutex.
func (rl *rateLimiter) prune(now time.Time) {
	cutoff := now.Add(-windowSize)
	kept := rl.proposals[:0]
	for _, ts := range rl.proposals {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	rl.proposals = kept
}
