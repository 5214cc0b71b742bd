// Package router implements the signal router: per deduped notification,
// it walks the running sessions for that cluster, applies the mode x
// phase x target-mode filter, and either hands the signal to the
// auto-discovery filter or arms the pending action directly for
// list-mode snipes.
package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/quietledger/sniper-core/internal/adapters"
	"github.com/quietledger/sniper-core/internal/discovery"
	"github.com/quietledger/sniper-core/internal/domain"
	"github.com/quietledger/sniper-core/internal/logring"
	"github.com/quietledger/sniper-core/internal/session"
	"github.com/quietledger/sniper-core/internal/streammux"
)

// Config tunes the router's throttling behavior.
type Config struct {
	HeartbeatIntervalMs int64
}

// Router is the Signal Router. It is stateless beyond its dependencies —
// all per-session state lives on the Session itself.
type Router struct {
	sessions  *session.Manager
	discovery *discovery.Filter
	rpc       map[domain.Cluster]adapters.ClusterRpcClient
	cfg       Config
	logger    *zap.Logger
}

func New(sessions *session.Manager, disc *discovery.Filter, rpc map[domain.Cluster]adapters.ClusterRpcClient, cfg Config, logger *zap.Logger) *Router {
	if cfg.HeartbeatIntervalMs <= 0 {
		cfg.HeartbeatIntervalMs = 15_000
	}
	return &Router{sessions: sessions, discovery: disc, rpc: rpc, cfg: cfg, logger: logger.Named("router")}
}

// Route processes one deduped notification against every running session
// in its cluster.
func (r *Router) Route(ctx context.Context, notif streammux.Notification) {
	r.sessions.ForEachRunning(notif.Cluster, func(s *session.Session) {
		r.routeForSession(ctx, s, notif)
	})
}

func (r *Router) routeForSession(ctx context.Context, s *session.Session, notif streammux.Notification) {
	s.ProcessLock()
	defer s.ProcessUnlock()

	guard, running, hasPending := s.Snapshot()
	if !running || guard.Config == nil || hasPending {
		return
	}

	src := domain.ActionSource(notif.Topic)
	if !r.topicMatchesMode(guard.Config, notif.Topic) {
		return
	}

	if s.ShouldHeartbeat(src, r.cfg.HeartbeatIntervalMs) {
		stats := s.AutoStatsSnapshot()
		s.AppendLog(logring.LevelInfo, fmt.Sprintf(
			"heartbeat src=%s signals=%d txOk=%d mintInferred=%d safetyOk=%d triggered=%d",
			src, stats.Signals, stats.TxOK, stats.MintInferred, stats.SafetyOK, stats.Triggered))
	}

	switch {
	case guard.Config.Mode == domain.ModeSnipe && guard.Config.PumpFunPhase == domain.PhasePre && guard.Config.SnipeTargetMode == domain.TargetModeAuto:
		r.discovery.Evaluate(ctx, s, guard, notif)

	case guard.Config.Mode == domain.ModeSnipe && guard.Config.SnipeTargetMode == domain.TargetModeList:
		r.routeListMode(ctx, s, guard, notif, src)

	case guard.Config.Mode == domain.ModeVolume:
		// Volume actions are timer-driven only; the router never arms them
		// from a log signal.
	}
}

// topicMatchesMode applies the topic-to-mode routing table.
func (r *Router) topicMatchesMode(cfg *domain.BotConfig, topic domain.Topic) bool {
	switch {
	case cfg.Mode == domain.ModeSnipe && cfg.PumpFunPhase == domain.PhasePre:
		return topic == domain.TopicPumpFun
	case cfg.Mode == domain.ModeSnipe && cfg.PumpFunPhase == domain.PhasePost:
		return topic == domain.TopicRaydium
	case cfg.Mode == domain.ModeVolume:
		return topic == domain.TopicRaydium
	default:
		return false
	}
}

// routeListMode implements the list-mode branch: fetch the triggering
// transaction, intersect its static account keys with the session's
// snipe list, and arm on the first match.
func (r *Router) routeListMode(ctx context.Context, s *session.Session, guard session.Guard, notif streammux.Notification, src domain.ActionSource) {
	if len(guard.Config.SnipeList) == 0 {
		if s.ShouldWarnEmptySnipeList() {
			s.AppendLog(logring.LevelWarn, "snipe list is empty, dropping signal")
		}
		return
	}

	rpc, ok := r.rpc[notif.Cluster]
	if !ok {
		return
	}
	tx, err := rpc.GetTransaction(ctx, notif.Signature, adapters.CommitmentConfirmed)
	if err != nil || tx == nil {
		return
	}

	wanted := make(map[string]struct{}, len(guard.Config.SnipeList))
	for _, m := range guard.Config.SnipeList {
		wanted[m] = struct{}{}
	}

	var matched string
	for _, key := range tx.StaticAccountKeys {
		if _, ok := wanted[key]; ok {
			matched = key
			break
		}
	}
	if matched == "" {
		return
	}

	if !s.CheckGuard(guard) {
		return
	}

	action := domain.NewSignAndBundleAction(
		fmt.Sprintf("list-mode target %s matched in %s", matched, notif.Signature),
		notif.Signature, src, matched)
	if s.TryArmPendingAction(guard, action) {
		s.AppendLog(logring.LevelInfo, fmt.Sprintf("armed pending action for list target %s (sig=%s)", matched, notif.Signature))
	}
}
