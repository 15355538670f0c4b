// Package explore decides when a branch of the document has been mined out.
// Each extraction call over a branch reports how many of its candidates were
// actually new; once the novelty ratio stays below a floor for enough
// consecutive calls, further calls are spending budget on repeats and the
// branch is closed.
package explore

// Config tunes the stopping rule. Epsilon is the minimum fraction of new
// candidates a call must produce to count as productive; Patience is how
// many unproductive calls in a row are tolerated before stopping.
type Config struct {
	Epsilon  float64
	Patience int
}

func DefaultConfig() Config {
	return Config{Epsilon: 0.5, Patience: 2}
}

// Tracker accumulates per-branch novelty observations. Not safe for
// concurrent use; each branch owns its tracker and calls are sequential
// within a branch.
type Tracker struct {
	cfg     Config
	calls   int
	lowRun  int
	exhaust bool
}

func NewTracker(cfg Config) *Tracker {
	if cfg.Patience < 1 {
		cfg.Patience = 1
	}
	return &Tracker{cfg: cfg}
}

// Observe records the outcome of one extraction call: total candidates
// returned and how many of them were new after deduplication. A call
// yielding nothing at all exhausts the branch immediately.
func (t *Tracker) Observe(novel, total int) {
	t.calls++
	if total == 0 {
		t.exhaust = true
		return
	}
	if float64(novel)/float64(total) < t.cfg.Epsilon {
		t.lowRun++
	} else {
		t.lowRun = 0
	}
}

// ShouldContinue reports whether the branch deserves another extraction call.
func (t *Tracker) ShouldContinue() bool {
	if t.exhaust {
		return false
	}
	return t.lowRun < t.cfg.Patience
}

// Calls returns how many observations this branch has recorded.
func (t *Tracker) Calls() int { return t.calls }
