// Package session implements the session state machine: the per-wallet
// lifecycle, its epoch counter, its at-most-one pending action slot, and
// the bounded logs/bundles/momentum maps a session owns exclusively. A
// Session never holds a pointer back to its ClusterRuntime — it only
// carries its cluster tag.
package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quietledger/sniper-core/internal/domain"
	"github.com/quietledger/sniper-core/internal/logring"
)

// Guard is the (config, epoch) pair every asynchronous continuation must
// capture before starting network I/O, and re-check before any
// observable write.
type Guard struct {
	Epoch  uint64
	Config *domain.BotConfig
}

// Session is per-wallet state. All mutation goes through its methods,
// which take sess.mu — this is the per-session lock that guarantees
// at most one pending action.
type Session struct {
	Owner   string
	Cluster domain.Cluster

	// processMu serializes a whole signal's worth of router+discovery work
	// on a per-session basis. It is distinct from mu, which only ever
	// guards a single field read or write, so pipeline code can hold
	// processMu across network I/O
	// while still calling the fine-grained accessors below.
	processMu sync.Mutex

	mu      sync.Mutex
	running bool
	config  *domain.BotConfig
	epoch   uint64

	logs            *logring.Ring
	bundles         map[string]*domain.BundleStatus
	preparedBundles map[string]*domain.PreparedBundle
	pendingAction   *domain.PendingAction
	autoMintStats   map[string]*domain.MomentumEntry
	autoStats       *domain.AutoStats

	lastVolumeActionMs int64
	lastVolumeRoute    string

	lastHeartbeatMs map[domain.ActionSource]int64
	lastEmptyListMs int64

	logger *zap.Logger
}

// New creates a stopped session for owner on cluster. Sessions are never
// destroyed once created; New is only called by the
// manager's lookup-or-create path.
func New(owner string, cluster domain.Cluster, logRingCap int, logger *zap.Logger) *Session {
	return &Session{
		Owner:           owner,
		Cluster:         cluster,
		logs:            logring.New(logRingCap),
		bundles:         make(map[string]*domain.BundleStatus),
		preparedBundles: make(map[string]*domain.PreparedBundle),
		autoMintStats:   make(map[string]*domain.MomentumEntry),
		autoStats:       domain.NewAutoStats(),
		lastHeartbeatMs: make(map[domain.ActionSource]int64),
		logger:          logger.Named("session").With(zap.String("owner", owner), zap.String("cluster", string(cluster))),
	}
}

// Start installs config, resets transient state and bumps the epoch
// It returns the new epoch so the caller can kick off the log stream
// multiplexer and volume timer
// without re-taking the lock.
func (s *Session) Start(config *domain.BotConfig) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = true
	s.config = config
	s.epoch++
	s.pendingAction = nil
	s.autoMintStats = make(map[string]*domain.MomentumEntry)
	s.autoStats = domain.NewAutoStats()
	s.lastVolumeActionMs = 0
	s.lastVolumeRoute = ""
	s.lastHeartbeatMs = make(map[domain.ActionSource]int64)
	s.lastEmptyListMs = 0

	s.appendLogLocked(logring.LevelInfo, "session started")
	return s.epoch
}

// Stop clears config and the pending action, bumps the epoch, and marks
// the session not running. Bundles, preparedBundles and logs survive a
// stop — only transient fields are reset.
func (s *Session) Stop() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.config = nil
	s.pendingAction = nil
	s.epoch++
	s.appendLogLocked(logring.LevelInfo, "session stopped")
	return s.epoch
}

// Snapshot captures the (config, epoch) guard for a new asynchronous
// continuation, along with whether the session is currently eligible
// (running, configured, no pending action already held).
func (s *Session) Snapshot() (guard Guard, running bool, hasPending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Guard{Epoch: s.epoch, Config: s.config}, s.running, s.pendingAction != nil
}

// CheckGuard re-validates a previously captured guard. A mismatch means
// Stop/Start happened mid-flight and the caller must silently abort
// since the guard was captured.
func (s *Session) CheckGuard(g Guard) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.epoch == g.Epoch && s.config == g.Config
}

// Config returns the current config pointer (nil when stopped).
func (s *Session) Config() *domain.BotConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Running reports whether the session is currently started.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TryArmPendingAction sets action iff the guard still holds, the session
// is running and no pending action is currently set. It returns false
// on any failed precondition,
// silently — callers log separately if they want visibility.
func (s *Session) TryArmPendingAction(g Guard, action *domain.PendingAction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.epoch != g.Epoch || s.config != g.Config {
		return false
	}
	if s.pendingAction != nil {
		return false
	}
	s.pendingAction = action
	return true
}

// PendingAction returns the current pending action, or nil.
func (s *Session) PendingAction() *domain.PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingAction
}

// ClearPendingActionNow clears the pending action unconditionally. Used
// by Prepare, which owns the pending action synchronously once it has
// the client's signed transactions, and by materialization failure —
// callers in the latter case must call CheckGuard themselves first, since
// Materialize suspends on network I/O against a captured guard before
// reaching here.
func (s *Session) ClearPendingActionNow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingAction = nil
}

// SetUnsignedTxs fills in a pending action's unsigned tx list once
// Materialize succeeds, clearing NeedsUnsignedTxs. It
// re-checks the guard first; a stale materialization is dropped silently.
func (s *Session) SetUnsignedTxs(g Guard, txsBase64 []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.epoch != g.Epoch || s.config != g.Config {
		return false
	}
	if s.pendingAction == nil || s.pendingAction.SignAndBundle == nil {
		return false
	}
	s.pendingAction.SignAndBundle.UnsignedTxsBase64 = txsBase64
	s.pendingAction.SignAndBundle.NeedsUnsignedTxs = false
	return true
}

// AppendLog appends a line to the session's bounded log ring and mirrors
// it to the structured logger.
func (s *Session) AppendLog(level logring.Level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLogLocked(level, msg)
}

func (s *Session) appendLogLocked(level logring.Level, msg string) {
	s.logs.Append(logring.Line{TimestampMs: nowMs(), Level: level, Message: msg})
	switch level {
	case logring.LevelError:
		s.logger.Error(msg)
	case logring.LevelWarn:
		s.logger.Warn(msg)
	default:
		s.logger.Info(msg)
	}
}

// Logs returns the session's log ring for the edge's GetSessionView.
func (s *Session) Logs() *logring.Ring {
	return s.logs
}

// ShouldHeartbeat reports whether a heartbeat for src is due — at most
// once per interval per (session, src) — and, if so, marks it emitted.
func (s *Session) ShouldHeartbeat(src domain.ActionSource, intervalMs int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := nowMs()
	last, ok := s.lastHeartbeatMs[src]
	if ok && now-last < intervalMs {
		return false
	}
	s.lastHeartbeatMs[src] = now
	return true
}

// ShouldWarnEmptySnipeList throttles the "empty snipe list" warning to at
// most once per minute.
func (s *Session) ShouldWarnEmptySnipeList() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := nowMs()
	if now-s.lastEmptyListMs < 60_000 {
		return false
	}
	s.lastEmptyListMs = now
	return true
}

// AutoStatsSnapshot returns a read-only copy of the auto-discovery counters.
func (s *Session) AutoStatsSnapshot() domain.AutoStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoStats.Snapshot()
}

// BumpAutoStat applies fn to the session's live AutoStats under lock. This
// keeps every counter mutation serialized with pending
// action state changes, which is what makes property 6's monotonicity
// hold even under concurrent signals.
func (s *Session) BumpAutoStat(fn func(*domain.AutoStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.autoStats)
}

// Momentum returns the entry for mint without creating one. The bool
// reports whether the entry exists.
func (s *Session) Momentum(mint string) (*domain.MomentumEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.autoMintStats[mint]
	return e, ok
}

// SetMomentum installs or replaces the momentum entry for mint.
func (s *Session) SetMomentum(mint string, e *domain.MomentumEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoMintStats[mint] = e
}

// WithMomentumLock runs fn with the session locked, so a caller can read
// and then conditionally mutate a single mint's momentum entry
// atomically with respect to other signals for the same session.
func (s *Session) WithMomentumLock(fn func(get func(string) *domain.MomentumEntry, set func(string, *domain.MomentumEntry))) {
	s.mu.Lock()
	defer s.mu.Unlock()
	get := func(mint string) *domain.MomentumEntry { return s.autoMintStats[mint] }
	set := func(mint string, e *domain.MomentumEntry) { s.autoMintStats[mint] = e }
	fn(get, set)
}

// Bundles / PreparedBundles accessors (C6 uses these under the session
// lock so bundle-map mutation is serialized with pending-action changes).

func (s *Session) PutPreparedBundle(b *domain.PreparedBundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preparedBundles[b.LocalID] = b
}

func (s *Session) PreparedBundle(localID string) (*domain.PreparedBundle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.preparedBundles[localID]
	return b, ok
}

func (s *Session) PutBundleStatus(b *domain.BundleStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[b.LocalID] = b
}

func (s *Session) BundleStatus(localID string) (*domain.BundleStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[localID]
	return b, ok
}

func (s *Session) MutateBundleStatus(localID string, fn func(*domain.BundleStatus)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[localID]
	if !ok {
		return false
	}
	fn(b)
	return true
}

// AllBundleStatuses returns a snapshot of every bundle status for the
// edge's GetSessionView.
func (s *Session) AllBundleStatuses() []*domain.BundleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.BundleStatus, 0, len(s.bundles))
	for _, b := range s.bundles {
		out = append(out, b.Clone())
	}
	return out
}

// LastVolumeAction reports the timestamp of the last volume-mode action
// and the route it used.
func (s *Session) LastVolumeAction() (ms int64, route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastVolumeActionMs, s.lastVolumeRoute
}

// SetLastVolumeAction records when the volume timer last armed an action
// (or when a volume materialization last failed). The route is recorded
// separately by SetLastVolumeRoute.
func (s *Session) SetLastVolumeAction(ms int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastVolumeActionMs = ms
}

func (s *Session) SetLastVolumeRoute(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastVolumeRoute = route
}

// ProcessLock/ProcessUnlock bracket one notification's worth of router and
// auto-discovery work for this session, guaranteeing total ordering of
// pending-action transitions within a session.
func (s *Session) ProcessLock()   { s.processMu.Lock() }
func (s *Session) ProcessUnlock() { s.processMu.Unlock() }

func nowMs() int64 { return time.Now().UnixMilli() }
