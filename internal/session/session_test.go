package session

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/quietledger/sniper-core/internal/domain"
)

func newTestSession(t *testing.T) *Session {
	return New("owner1", domain.ClusterMainnet, 500, zaptest.NewLogger(t))
}

func TestStartStopEpochMonotonic(t *testing.T) {
	s := newTestSession(t)
	cfg1 := &domain.BotConfig{Mode: domain.ModeSnipe}
	e1 := s.Start(cfg1)
	e2 := s.Stop()
	e3 := s.Start(&domain.BotConfig{Mode: domain.ModeVolume})
	if !(e1 < e2 && e2 < e3) {
		t.Fatalf("expected strictly increasing epochs, got %d %d %d", e1, e2, e3)
	}
}

func TestAtMostOnePendingAction(t *testing.T) {
	s := newTestSession(t)
	cfg := &domain.BotConfig{Mode: domain.ModeSnipe}
	s.Start(cfg)
	g, running, hasPending := s.Snapshot()
	if !running || hasPending {
		t.Fatalf("unexpected initial state running=%v hasPending=%v", running, hasPending)
	}

	a1 := domain.NewSignAndBundleAction("first", "sig1", domain.SourcePumpFun, "mintA")
	if !s.TryArmPendingAction(g, a1) {
		t.Fatal("expected first arm to succeed")
	}

	a2 := domain.NewSignAndBundleAction("second", "sig2", domain.SourcePumpFun, "mintB")
	if s.TryArmPendingAction(g, a2) {
		t.Fatal("expected second arm to fail while one is pending")
	}

	if s.PendingAction().SignAndBundle.TriggerSignature != "sig1" {
		t.Fatal("expected first action to remain pending")
	}

	s.ClearPendingActionNow()
	if s.PendingAction() != nil {
		t.Fatal("expected pending action cleared")
	}
}

func TestEpochInvalidatesStaleGuard(t *testing.T) {
	s := newTestSession(t)
	cfg := &domain.BotConfig{Mode: domain.ModeSnipe}
	s.Start(cfg)
	g, _, _ := s.Snapshot()

	s.Stop() // epoch bumps, config cleared

	action := domain.NewSignAndBundleAction("late", "sig-late", domain.SourcePumpFun, "mintA")
	if s.TryArmPendingAction(g, action) {
		t.Fatal("expected stale guard to fail to arm after Stop")
	}
	if s.PendingAction() != nil {
		t.Fatal("expected no pending action after Stop invalidates stale async work")
	}
}

func TestConfigReplacementInvalidatesGuard(t *testing.T) {
	s := newTestSession(t)
	cfg1 := &domain.BotConfig{Mode: domain.ModeSnipe}
	s.Start(cfg1)
	g, _, _ := s.Snapshot()

	s.Stop()
	cfg2 := &domain.BotConfig{Mode: domain.ModeSnipe}
	s.Start(cfg2) // new epoch AND new config pointer

	if s.CheckGuard(g) {
		t.Fatal("expected old guard to be invalid after restart")
	}
}

func TestManagerLookupOrCreateIsStable(t *testing.T) {
	m := NewManager(500, zaptest.NewLogger(t))
	s1 := m.GetOrCreate(domain.ClusterMainnet, "ownerA")
	s2 := m.GetOrCreate(domain.ClusterMainnet, "ownerA")
	if s1 != s2 {
		t.Fatal("expected same session instance on repeated lookup")
	}
	if m.AnyRunning(domain.ClusterMainnet) {
		t.Fatal("expected no running sessions yet")
	}
	s1.Start(&domain.BotConfig{Mode: domain.ModeVolume})
	if !m.AnyRunning(domain.ClusterMainnet) {
		t.Fatal("expected a running session after Start")
	}
}
