// Package streammux implements the log stream multiplexer: one WebSocket
// per cluster, one logsSubscribe topic per known program, sig dedup, and
// the cheap log-text heuristics that gate expensive RPC work downstream.
package streammux

import (
	"encoding/json"
	"regexp"

	"github.com/quietledger/sniper-core/internal/domain"
)

// subscribeRequest is the JSON-RPC 2.0 envelope for one logsSubscribe call.
type subscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

func newLogsSubscribeRequest(reqID int64, programID string) subscribeRequest {
	return subscribeRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			map[string]interface{}{"mentions": []string{programID}},
			map[string]interface{}{"commitment": "processed"},
		},
	}
}

// rpcEnvelope is parsed loosely: a reply has ID+Result, a notification has
// Method+Params. Fields that don't apply to a given message are left zero.
type rpcEnvelope struct {
	ID     *int64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

type logsNotificationParams struct {
	Subscription int64                  `json:"subscription"`
	Result       logsNotificationResult `json:"result"`
}

type logsNotificationResult struct {
	Value logsNotificationValue `json:"value"`
}

type logsNotificationValue struct {
	Signature string   `json:"signature"`
	Logs      []string `json:"logs"`
	Err       any      `json:"err"`
}

// poolInitPattern and tradeCreatePattern are cheap pre-filters: run
// before any RPC call, they decide whether a notification is even worth
// handing to the router.
var (
	poolInitPattern    = regexp.MustCompile(`(?i)initialize2|initialize`)
	tradeCreatePattern = regexp.MustCompile(`(?i)buy|sell|create|initialize`)
)

// passesHeuristic applies the per-topic cheap filter to a log line set.
func passesHeuristic(topic domain.Topic, logs []string) bool {
	var pattern *regexp.Regexp
	switch topic {
	case domain.TopicRaydium:
		pattern = poolInitPattern
	case domain.TopicPumpFun:
		pattern = tradeCreatePattern
	default:
		return false
	}
	for _, line := range logs {
		if pattern.MatchString(line) {
			return true
		}
	}
	return false
}
