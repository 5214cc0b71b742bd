package streammux

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/quietledger/sniper-core/internal/adapters"
	"github.com/quietledger/sniper-core/internal/domain"
	"github.com/quietledger/sniper-core/internal/logring"
)

// Notification is a deduped, heuristic-passed program-log event, ready for
// the signal router.
type Notification struct {
	Cluster   domain.Cluster
	Topic     domain.Topic
	Signature string
	Logs      []string
}

// ProgramIDs maps the two known topics to their on-chain program address.
// The launchpad topic is optional: a deployment that only trades the AMM
// may omit it.
type ProgramIDs map[domain.Topic]string

// ClusterRuntime owns everything the log stream multiplexer needs for one
// cluster: the WebSocket connection (if open), the topic<->subscription-id
// maps, the pending-request map, the dedup set and the cluster log ring.
// It never holds a reference to any Session — that ownership boundary is
// what keeps this package free of the session package's lock discipline.
type ClusterRuntime struct {
	cluster    domain.Cluster
	programIDs ProgramIDs
	logger     *zap.Logger

	notifyCh chan Notification
	logs     *logring.Ring

	mu           sync.Mutex
	ws           adapters.ClusterWsClient
	subByTopic   map[domain.Topic]int64
	topicBySub   map[int64]domain.Topic
	pendingByReq map[int64]domain.Topic
	dedup        *dedupSet
	rng          *rand.Rand
}

// Config bundles the dedup/log-ring/notification-channel tunables that the process
// config (internal/config) is free to override per deployment.
type Config struct {
	DedupCap       int
	DedupTrimTo    int
	LogRingCap     int
	NotifyChanSize int
}

// New constructs an idle ClusterRuntime: no WebSocket open yet.
func New(cluster domain.Cluster, programIDs ProgramIDs, cfg Config, logger *zap.Logger) *ClusterRuntime {
	if cfg.NotifyChanSize <= 0 {
		cfg.NotifyChanSize = 256
	}
	return &ClusterRuntime{
		cluster:      cluster,
		programIDs:   programIDs,
		logger:       logger.Named("streammux").With(zap.String("cluster", string(cluster))),
		notifyCh:     make(chan Notification, cfg.NotifyChanSize),
		logs:         logring.New(cfg.LogRingCap),
		subByTopic:   make(map[domain.Topic]int64),
		topicBySub:   make(map[int64]domain.Topic),
		pendingByReq: make(map[int64]domain.Topic),
		dedup:        newDedupSet(cfg.DedupCap, cfg.DedupTrimTo),
		rng:          rand.New(rand.NewSource(rand.Int63())),
	}
}

// Notifications is the channel the per-cluster dispatcher drains.
func (r *ClusterRuntime) Notifications() <-chan Notification {
	return r.notifyCh
}

// Logs returns the cluster-level log ring for the edge's viz surface.
func (r *ClusterRuntime) Logs() *logring.Ring {
	return r.logs
}

// IsOpen reports whether the WebSocket is currently established.
func (r *ClusterRuntime) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ws != nil
}

// EnsureSubscription idempotently opens the cluster's single WebSocket and
// registers one logsSubscribe topic per known program id. A second call
// while already open is a no-op.
func (r *ClusterRuntime) EnsureSubscription(ctx context.Context, ws adapters.ClusterWsClient) error {
	r.mu.Lock()
	if r.ws != nil {
		r.mu.Unlock()
		return nil
	}
	r.ws = ws
	r.mu.Unlock()

	ws.OnMessage(r.handleRawMessage)
	ws.OnOpen(func() { r.onOpen(ctx) })
	ws.OnClose(r.onClose)
	ws.OnError(func(err error) {
		r.appendLog(logring.LevelError, fmt.Sprintf("websocket error: %v", err))
	})

	if err := ws.Open(ctx); err != nil {
		r.mu.Lock()
		r.ws = nil
		r.mu.Unlock()
		return fmt.Errorf("open websocket: %w", err)
	}
	return nil
}

// onOpen fires the logsSubscribe requests. Implementations that call
// OnOpen synchronously from within Open and those that call it from a
// later read-loop goroutine are both supported.
func (r *ClusterRuntime) onOpen(ctx context.Context) {
	r.mu.Lock()
	ws := r.ws
	r.mu.Unlock()
	if ws == nil {
		return
	}

	for topic, programID := range r.programIDs {
		if programID == "" {
			continue
		}
		r.mu.Lock()
		reqID := r.rng.Int63()
		r.pendingByReq[reqID] = topic
		r.mu.Unlock()

		req := newLogsSubscribeRequest(reqID, programID)
		raw, err := json.Marshal(req)
		if err != nil {
			r.appendLog(logring.LevelError, fmt.Sprintf("marshal logsSubscribe for %s: %v", topic, err))
			continue
		}
		if err := ws.Send(ctx, raw); err != nil {
			r.appendLog(logring.LevelError, fmt.Sprintf("send logsSubscribe for %s: %v", topic, err))
		}
	}
}

// onClose clears all runtime WS state.
func (r *ClusterRuntime) onClose() {
	r.mu.Lock()
	r.ws = nil
	r.subByTopic = make(map[domain.Topic]int64)
	r.topicBySub = make(map[int64]domain.Topic)
	r.pendingByReq = make(map[int64]domain.Topic)
	r.mu.Unlock()
	r.appendLog(logring.LevelWarn, "websocket closed")
}

// TeardownIfIdle closes the connection and clears subscription maps when
// no running session remains in this cluster.
func (r *ClusterRuntime) TeardownIfIdle(anyRunning bool) {
	if anyRunning {
		return
	}
	r.mu.Lock()
	ws := r.ws
	r.ws = nil
	r.subByTopic = make(map[domain.Topic]int64)
	r.topicBySub = make(map[int64]domain.Topic)
	r.pendingByReq = make(map[int64]domain.Topic)
	r.mu.Unlock()

	if ws != nil {
		if err := ws.Close(); err != nil {
			r.appendLog(logring.LevelWarn, fmt.Sprintf("close websocket: %v", err))
		}
	}
}

// handleRawMessage is the WebSocket's single OnMessage callback. Malformed
// JSON, missing signatures, empty logs and unknown subscription ids are
// all dropped silently.
func (r *ClusterRuntime) handleRawMessage(raw []byte) {
	var env rpcEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	if env.ID != nil {
		r.handleSubscribeReply(*env.ID, env.Result)
		return
	}

	if env.Method == "logsNotification" {
		r.handleLogsNotification(env.Params)
	}
}

func (r *ClusterRuntime) handleSubscribeReply(reqID int64, result json.RawMessage) {
	var subID int64
	if err := json.Unmarshal(result, &subID); err != nil {
		return
	}

	r.mu.Lock()
	topic, ok := r.pendingByReq[reqID]
	if ok {
		delete(r.pendingByReq, reqID)
		r.subByTopic[topic] = subID
		r.topicBySub[subID] = topic
	}
	r.mu.Unlock()

	if ok {
		r.appendLog(logring.LevelInfo, fmt.Sprintf("subscribed topic=%s sub_id=%d", topic, subID))
	}
}

func (r *ClusterRuntime) handleLogsNotification(params json.RawMessage) {
	var p logsNotificationParams
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}

	r.mu.Lock()
	topic, ok := r.topicBySub[p.Subscription]
	r.mu.Unlock()
	if !ok {
		return
	}

	sig := p.Result.Value.Signature
	logs := p.Result.Value.Logs
	if sig == "" || len(logs) == 0 {
		return
	}

	r.mu.Lock()
	isNew := r.dedup.observe(sig)
	r.mu.Unlock()
	if !isNew {
		return
	}

	if !passesHeuristic(topic, logs) {
		return
	}

	notif := Notification{Cluster: r.cluster, Topic: topic, Signature: sig, Logs: logs}
	select {
	case r.notifyCh <- notif:
	default:
		// Firehose outpacing the dispatcher: drop rather than block the
		// single WebSocket reader.
		r.appendLog(logring.LevelWarn, "notification channel full, dropping signal")
	}
}

func (r *ClusterRuntime) appendLog(level logring.Level, msg string) {
	r.logs.Append(logring.Line{Level: level, Message: msg})
	switch level {
	case logring.LevelError:
		r.logger.Error(msg)
	case logring.LevelWarn:
		r.logger.Warn(msg)
	default:
		r.logger.Info(msg)
	}
}
