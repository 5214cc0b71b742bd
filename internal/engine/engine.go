// Package engine wires the Log Stream Multiplexer, Signal Router,
// Auto-Discovery Filter, Session State Machine, Action Materializer,
// Bundle Lifecycle and Volume Timer into one runnable core, and exposes
// the handful of operations an edge (RPC server, CLI, whatever drives it)
// actually needs: Start/Stop a session, materialize and submit its
// pending action, and read a live view of its state.
package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/quietledger/sniper-core/internal/adapters"
	"github.com/quietledger/sniper-core/internal/bundle"
	"github.com/quietledger/sniper-core/internal/config"
	"github.com/quietledger/sniper-core/internal/discovery"
	"github.com/quietledger/sniper-core/internal/domain"
	"github.com/quietledger/sniper-core/internal/logring"
	"github.com/quietledger/sniper-core/internal/materialize"
	"github.com/quietledger/sniper-core/internal/router"
	"github.com/quietledger/sniper-core/internal/session"
	"github.com/quietledger/sniper-core/internal/streammux"
	"github.com/quietledger/sniper-core/internal/tipcache"
	"github.com/quietledger/sniper-core/internal/volumetimer"
)

// Clients bundles every external collaborator the engine needs, one per
// cluster where the adapter is cluster-scoped.
type Clients struct {
	RPC         map[domain.Cluster]adapters.ClusterRpcClient
	WS          map[domain.Cluster]adapters.ClusterWsClient
	BlockEngine map[domain.Cluster]adapters.BlockEngineClient
	Swap        adapters.SwapAdapter
	Aggregator  adapters.DexAggregatorAdapter
	TradeLocal  adapters.TradeLocalAdapter
}

// Engine is the top-level object a binary constructs once at startup.
type Engine struct {
	sessions  *session.Manager
	runtimes  map[domain.Cluster]*streammux.ClusterRuntime
	router    *router.Router
	discovery *discovery.Filter
	materials *materialize.Materializer
	bundles   *bundle.Lifecycle
	timer     *volumetimer.Timer
	clients   Clients
	logger    *zap.Logger

	dispatchWg     sync.WaitGroup
	dispatchCancel context.CancelFunc
}

// New assembles an Engine from its process config and external clients.
// It does not open any network connection; call Run to start dispatching.
func New(cfg *config.ProcessConfig, registry *config.TokenProgramRegistry, clients Clients, logger *zap.Logger) (*Engine, error) {
	if len(clients.RPC) == 0 {
		return nil, fmt.Errorf("engine: at least one cluster RPC client is required")
	}

	sessions := session.NewManager(cfg.LogRingCap, logger)

	programIDs := streammux.ProgramIDs{
		domain.TopicRaydium: cfg.RaydiumProgramID,
		domain.TopicPumpFun: cfg.PumpFunProgramID,
	}
	runtimes := make(map[domain.Cluster]*streammux.ClusterRuntime, len(clients.WS))
	for cluster := range clients.WS {
		runtimes[cluster] = streammux.New(cluster, programIDs, streammux.Config{
			DedupCap:    cfg.DedupSetCap,
			DedupTrimTo: cfg.DedupSetTrimTo,
			LogRingCap:  cfg.LogRingCap,
		}, logger)
	}

	disc := discovery.New(clients.RPC, registry, int64(cfg.RPCSemaphoreCapacity), logger)
	rtr := router.New(sessions, disc, clients.RPC, router.Config{HeartbeatIntervalMs: int64(cfg.HeartbeatIntervalSec) * 1000}, logger)

	tips := tipcache.New(clients.BlockEngine, tipcache.DefaultTTL)
	mat := materialize.New(clients.RPC, clients.Swap, clients.Aggregator, clients.TradeLocal, tips, logger)
	bnd := bundle.New(clients.BlockEngine, tips, logger)
	timer := volumetimer.New(sessions, logger)

	return &Engine{
		sessions:  sessions,
		runtimes:  runtimes,
		router:    rtr,
		discovery: disc,
		materials: mat,
		bundles:   bnd,
		timer:     timer,
		clients:   clients,
		logger:    logger.Named("engine"),
	}, nil
}

// Run starts the per-cluster notification dispatchers and the shared
// volume timer. It does not block; call Shutdown to stop everything.
func (e *Engine) Run(ctx context.Context) {
	dispatchCtx, cancel := context.WithCancel(ctx)
	e.dispatchCancel = cancel

	for cluster, rt := range e.runtimes {
		e.dispatchWg.Add(1)
		go e.dispatchLoop(dispatchCtx, cluster, rt)
	}
	e.timer.Start(dispatchCtx)
}

// Shutdown stops the dispatchers and the volume timer, and waits for
// in-flight dispatch goroutines to exit.
func (e *Engine) Shutdown() {
	if e.dispatchCancel != nil {
		e.dispatchCancel()
	}
	e.timer.Stop()
	e.dispatchWg.Wait()
}

func (e *Engine) dispatchLoop(ctx context.Context, cluster domain.Cluster, rt *streammux.ClusterRuntime) {
	defer e.dispatchWg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-rt.Notifications():
			if !ok {
				return
			}
			e.router.Route(ctx, notif)
		}
	}
}

// StartSession installs config on the (cluster, owner) session. Snipe-mode
// sessions open their cluster's log subscription (C1); volume-mode
// sessions have no use for it and rely solely on the shared volume timer
// (C7), which is always running once Run has been called and re-evaluates
// per-session eligibility every tick.
func (e *Engine) StartSession(ctx context.Context, owner string, cfg *domain.BotConfig) error {
	if !cfg.Cluster.Valid() {
		return fmt.Errorf("engine: invalid cluster %q", cfg.Cluster)
	}
	s := e.sessions.GetOrCreate(cfg.Cluster, owner)
	s.Start(cfg)

	if cfg.Mode != domain.ModeSnipe {
		return nil
	}

	rt, ok := e.runtimes[cfg.Cluster]
	if !ok {
		return fmt.Errorf("engine: no websocket client configured for cluster %s", cfg.Cluster)
	}
	ws, ok := e.clients.WS[cfg.Cluster]
	if !ok {
		return fmt.Errorf("engine: no websocket client for cluster %s", cfg.Cluster)
	}
	return rt.EnsureSubscription(ctx, ws)
}

// StopSession stops the session and, if no other session on the cluster
// is still running, tears down that cluster's WebSocket subscription.
func (e *Engine) StopSession(cluster domain.Cluster, owner string) {
	s, ok := e.sessions.Get(cluster, owner)
	if !ok {
		return
	}
	s.Stop()
	if rt, ok := e.runtimes[cluster]; ok {
		rt.TeardownIfIdle(e.sessions.AnyRunning(cluster))
	}
}

// Materialize fills in the session's pending action's unsigned
// transactions, if it needs them.
func (e *Engine) Materialize(ctx context.Context, cluster domain.Cluster, owner string) error {
	s, ok := e.sessions.Get(cluster, owner)
	if !ok {
		return fmt.Errorf("engine: no session for owner %s on %s", owner, cluster)
	}
	guard, running, _ := s.Snapshot()
	if !running {
		return fmt.Errorf("engine: session %s on %s is not running", owner, cluster)
	}
	return e.materials.Materialize(ctx, s, guard)
}

// PrepareBundle decodes and simulates the client's signed transactions.
func (e *Engine) PrepareBundle(ctx context.Context, cluster domain.Cluster, owner string, signedTxsBase64 []string) (*bundle.PrepareResult, error) {
	s, ok := e.sessions.Get(cluster, owner)
	if !ok {
		return nil, fmt.Errorf("engine: no session for owner %s on %s", owner, cluster)
	}
	return e.bundles.Prepare(ctx, s, cluster, signedTxsBase64)
}

// SubmitBundle sends a previously prepared bundle.
func (e *Engine) SubmitBundle(ctx context.Context, cluster domain.Cluster, owner string, localID string) (*bundle.SubmitResult, error) {
	s, ok := e.sessions.Get(cluster, owner)
	if !ok {
		return nil, fmt.Errorf("engine: no session for owner %s on %s", owner, cluster)
	}
	return e.bundles.Submit(ctx, s, cluster, localID)
}

// SessionView is the read model an edge serializes back to a client.
type SessionView struct {
	Owner           string
	Cluster         domain.Cluster
	Running         bool
	Config          *domain.BotConfig
	PendingAction   *domain.PendingAction
	AutoStats       domain.AutoStats
	Bundles         []*domain.BundleStatus
	LastVolumeMs    int64
	LastVolumeRoute string
	Logs            []logring.Line
}

// GetSessionView returns a point-in-time snapshot of a session for the
// edge's live-progress surface. Returns false if no session has ever been
// created for (cluster, owner).
func (e *Engine) GetSessionView(cluster domain.Cluster, owner string) (SessionView, bool) {
	s, ok := e.sessions.Get(cluster, owner)
	if !ok {
		return SessionView{}, false
	}
	guard, running, _ := s.Snapshot()
	lastMs, lastRoute := s.LastVolumeAction()
	return SessionView{
		Owner:           s.Owner,
		Cluster:         s.Cluster,
		Running:         running,
		Config:          guard.Config,
		PendingAction:   s.PendingAction(),
		AutoStats:       s.AutoStatsSnapshot(),
		Bundles:         s.AllBundleStatuses(),
		LastVolumeMs:    lastMs,
		LastVolumeRoute: lastRoute,
		Logs:            s.Logs().Snapshot(),
	}, true
}

// ClusterLogs returns a cluster's log-stream-multiplexer log ring
// snapshot, or false if that cluster has no runtime configured.
func (e *Engine) ClusterLogs(cluster domain.Cluster) ([]logring.Line, bool) {
	rt, ok := e.runtimes[cluster]
	if !ok {
		return nil, false
	}
	return rt.Logs().Snapshot(), true
}

// VizEvents returns every session's and every cluster's log lines,
// classified by heuristic component, for an edge's SubscribeVizEvents
// surface. The classification is advisory only.
func (e *Engine) VizEvents() []logring.VizLine {
	var out []logring.VizLine
	for _, rt := range e.runtimes {
		out = append(out, logring.ClassifyLines(rt.Logs().Snapshot())...)
	}
	for _, s := range e.sessions.AllSessions() {
		out = append(out, logring.ClassifyLines(s.Logs().Snapshot())...)
	}
	return out
}
