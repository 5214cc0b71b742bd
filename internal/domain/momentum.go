package domain

// SafetyResult is the memoized outcome of a mint safety check.
type SafetyResult struct {
	OK       bool
	Reason   string
	Top1Pct  float64
	Top10Pct float64
}

// MomentumEntry tracks one mint's rolling signal/payer window for one
// session. Entries live for the lifetime of the session's current run
// (stop/start resets the whole map).
type MomentumEntry struct {
	FirstSeenMs  int64
	CreatedAtMs  int64
	Count        int
	UniquePayers map[string]struct{}
	Safety       *SafetyResult // nil until the safety check has run once
}

// NewMomentumEntry starts tracking a mint as of now.
func NewMomentumEntry(nowMs int64) *MomentumEntry {
	return &MomentumEntry{
		FirstSeenMs:  nowMs,
		CreatedAtMs:  nowMs,
		UniquePayers: make(map[string]struct{}),
	}
}

// Reset re-arms the entry when its window has expired but a fresh create
// signal restarts tracking.
func (m *MomentumEntry) Reset(nowMs int64) {
	m.FirstSeenMs = nowMs
	m.CreatedAtMs = nowMs
	m.Count = 0
	m.UniquePayers = make(map[string]struct{})
	m.Safety = nil
}

// AutoStats is the monotonically non-decreasing counter family a session
// keeps for its auto-discovery filter.
type AutoStats struct {
	Signals      uint64
	TxOK         uint64
	MintInferred uint64
	SafetyOK     uint64
	Triggered    uint64
	Rejects      map[string]uint64
}

// NewAutoStats returns a zeroed stats block.
func NewAutoStats() *AutoStats {
	return &AutoStats{Rejects: make(map[string]uint64)}
}

// BumpReject increments the named rejection reason counter.
func (s *AutoStats) BumpReject(reason string) {
	s.Rejects[reason]++
}

// Snapshot returns a copy safe to read without the session lock.
func (s *AutoStats) Snapshot() AutoStats {
	cp := AutoStats{
		Signals:      s.Signals,
		TxOK:         s.TxOK,
		MintInferred: s.MintInferred,
		SafetyOK:     s.SafetyOK,
		Triggered:    s.Triggered,
		Rejects:      make(map[string]uint64, len(s.Rejects)),
	}
	for k, v := range s.Rejects {
		cp.Rejects[k] = v
	}
	return cp
}
