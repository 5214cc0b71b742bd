package streammux

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/quietledger/sniper-core/internal/domain"
)

type fakeWS struct {
	mu        sync.Mutex
	sent      [][]byte
	onOpen    func()
	onMessage func([]byte)
	onClose   func()
	onError   func(error)
	opened    bool
}

func (f *fakeWS) Open(ctx context.Context) error {
	f.opened = true
	if f.onOpen != nil {
		f.onOpen()
	}
	return nil
}
func (f *fakeWS) Send(ctx context.Context, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, raw)
	return nil
}
func (f *fakeWS) Close() error {
	f.opened = false
	if f.onClose != nil {
		f.onClose()
	}
	return nil
}
func (f *fakeWS) OnOpen(fn func())          { f.onOpen = fn }
func (f *fakeWS) OnMessage(fn func([]byte)) { f.onMessage = fn }
func (f *fakeWS) OnClose(fn func())         { f.onClose = fn }
func (f *fakeWS) OnError(fn func(error))    { f.onError = fn }

func testConfig() Config {
	return Config{DedupCap: 3000, DedupTrimTo: 2000, LogRingCap: 500, NotifyChanSize: 16}
}

func TestEnsureSubscriptionSendsOneRequestPerTopic(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ids := ProgramIDs{domain.TopicRaydium: "RAYDIUM_PID", domain.TopicPumpFun: "PUMPFUN_PID"}
	rt := New(domain.ClusterMainnet, ids, testConfig(), logger)

	ws := &fakeWS{}
	if err := rt.EnsureSubscription(context.Background(), ws); err != nil {
		t.Fatalf("EnsureSubscription: %v", err)
	}
	if len(ws.sent) != 2 {
		t.Fatalf("expected 2 subscribe requests, got %d", len(ws.sent))
	}

	// second call is a no-op
	if err := rt.EnsureSubscription(context.Background(), &fakeWS{}); err != nil {
		t.Fatalf("second EnsureSubscription: %v", err)
	}
	if len(ws.sent) != 2 {
		t.Fatalf("expected no additional requests on idempotent call")
	}
}

func TestSubscribeReplyThenNotificationDelivered(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ids := ProgramIDs{domain.TopicPumpFun: "PUMPFUN_PID"}
	rt := New(domain.ClusterMainnet, ids, testConfig(), logger)

	ws := &fakeWS{}
	if err := rt.EnsureSubscription(context.Background(), ws); err != nil {
		t.Fatalf("EnsureSubscription: %v", err)
	}

	var req subscribeRequest
	if err := json.Unmarshal(ws.sent[0], &req); err != nil {
		t.Fatalf("unmarshal sent request: %v", err)
	}

	reply, _ := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 42})
	ws.onMessage(reply)

	notif, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "logsNotification",
		"params": map[string]interface{}{
			"subscription": 42,
			"result": map[string]interface{}{
				"value": map[string]interface{}{
					"signature": "sig1",
					"logs":      []string{"Program log: Instruction: Create"},
				},
			},
		},
	})
	ws.onMessage(notif)

	select {
	case n := <-rt.Notifications():
		if n.Signature != "sig1" || n.Topic != domain.TopicPumpFun {
			t.Fatalf("unexpected notification: %+v", n)
		}
	default:
		t.Fatal("expected a notification to be delivered")
	}

	// repeat signature is deduped
	ws.onMessage(notif)
	select {
	case n := <-rt.Notifications():
		t.Fatalf("expected dedup to drop repeat, got %+v", n)
	default:
	}
}

func TestNotificationDroppedWhenHeuristicFails(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ids := ProgramIDs{domain.TopicRaydium: "RAYDIUM_PID"}
	rt := New(domain.ClusterMainnet, ids, testConfig(), logger)
	ws := &fakeWS{}
	_ = rt.EnsureSubscription(context.Background(), ws)

	var req subscribeRequest
	_ = json.Unmarshal(ws.sent[0], &req)
	reply, _ := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 7})
	ws.onMessage(reply)

	notif, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "logsNotification",
		"params": map[string]interface{}{
			"subscription": 7,
			"result": map[string]interface{}{
				"value": map[string]interface{}{
					"signature": "sig-no-match",
					"logs":      []string{"Program log: some unrelated line"},
				},
			},
		},
	})
	ws.onMessage(notif)

	select {
	case n := <-rt.Notifications():
		t.Fatalf("expected heuristic to drop non-matching log, got %+v", n)
	default:
	}
}

func TestTeardownIfIdleClosesConnection(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ids := ProgramIDs{domain.TopicRaydium: "RAYDIUM_PID"}
	rt := New(domain.ClusterMainnet, ids, testConfig(), logger)
	ws := &fakeWS{}
	_ = rt.EnsureSubscription(context.Background(), ws)
	if !rt.IsOpen() {
		t.Fatal("expected runtime to be open after EnsureSubscription")
	}

	rt.TeardownIfIdle(true)
	if !rt.IsOpen() {
		t.Fatal("expected runtime to stay open while a session is running")
	}

	rt.TeardownIfIdle(false)
	if rt.IsOpen() {
		t.Fatal("expected runtime to close once idle")
	}
	if ws.opened {
		t.Fatal("expected underlying websocket to be closed")
	}
}
