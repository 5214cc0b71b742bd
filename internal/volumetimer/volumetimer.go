// Package volumetimer implements the Volume Timer (C7): a single 1Hz
// driver shared by every session that, on each tick, checks whether a
// running volume-mode session is due to arm its next buy/sell action.
package volumetimer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quietledger/sniper-core/internal/domain"
	"github.com/quietledger/sniper-core/internal/logring"
	"github.com/quietledger/sniper-core/internal/session"
)

const tickInterval = time.Second

// minCadenceSec is the floor applied to a session's configured interval so
// a misconfigured IntervalSec of 0 or 1 can't busy-loop the timer.
const minCadenceSec = 2

// Timer drives a single background ticker across every session the
// manager knows about; it never starts a per-session goroutine.
type Timer struct {
	sessions *session.Manager
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

func New(sessions *session.Manager, logger *zap.Logger) *Timer {
	return &Timer{sessions: sessions, logger: logger.Named("volumetimer")}
}

// Start is idempotent: calling it while the driver is already running is
// a no-op, so callers don't need to track whether some other session's
// Start already brought the ticker up.
func (t *Timer) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.running = true
	go t.loop(runCtx)
}

// Stop halts the shared ticker. Safe to call when not running.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.cancel()
	t.running = false
}

func (t *Timer) loop(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *Timer) tick() {
	now := nowMs()
	for _, s := range t.sessions.AllSessions() {
		t.tickSession(s, now)
	}
}

// tickSession evaluates one session against the current tick. Skips are
// silent; they are the overwhelmingly common case on every tick for every
// session that isn't due yet.
func (t *Timer) tickSession(s *session.Session, now int64) {
	guard, running, hasPending := s.Snapshot()
	if !running || guard.Config == nil || hasPending {
		return
	}
	cfg := guard.Config
	if cfg.Mode != domain.ModeVolume || !cfg.Volume.Enabled {
		return
	}

	cadenceSec := cfg.Volume.IntervalSec
	if cadenceSec < minCadenceSec {
		cadenceSec = minCadenceSec
	}
	intervalMs := int64(cadenceSec) * 1000

	lastMs, _ := s.LastVolumeAction()
	if now-lastMs < intervalMs {
		return
	}

	action := domain.NewSignAndBundleAction(
		"volume timer tick",
		fmt.Sprintf("volumeTimer:%d", now),
		domain.SourceVolumeTimer,
		cfg.Volume.TokenMint,
	)
	if s.TryArmPendingAction(guard, action) {
		s.SetLastVolumeAction(now)
		s.AppendLog(logring.LevelInfo, fmt.Sprintf("volume timer armed a new action for mint %s", cfg.Volume.TokenMint))
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }
