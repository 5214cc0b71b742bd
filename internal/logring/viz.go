package logring

import "strings"

// VizComponent is the heuristic component tag SubscribeVizEvents attaches
// to a log line. It is a pure classification of the message text, used
// only for observability grouping in an edge's viz surface — never for a
// correctness decision inside the core.
type VizComponent string

const (
	VizHeliusWS   VizComponent = "helius-ws"
	VizSolanaRPC  VizComponent = "solana-rpc"
	VizPumpFun    VizComponent = "pumpfun"
	VizRaydium    VizComponent = "raydium"
	VizJupiter    VizComponent = "jupiter"
	VizJito       VizComponent = "jito"
	VizPumpPortal VizComponent = "pumpportal"
	VizTxBuilder  VizComponent = "tx-builder"
	VizBackendAPI VizComponent = "backend-api"
	VizOther      VizComponent = "other"
)

// vizKeywords is checked in order; the first match wins. Order matters
// because one message can contain several keywords ("pumpportal websocket
// connected" matches both "pumpportal" and "websocket"), and the earlier
// entry decides the tag.
var vizKeywords = []struct {
	substr string
	tag    VizComponent
}{
	{"pumpportal", VizPumpPortal},
	{"pump.fun", VizPumpFun},
	{"pumpfun", VizPumpFun},
	{"raydium", VizRaydium},
	{"jupiter", VizJupiter},
	{"jito", VizJito},
	{"block engine", VizJito},
	{"helius", VizHeliusWS},
	{"logssubscribe", VizHeliusWS},
	{"websocket", VizHeliusWS},
	{"getlatestblockhash", VizSolanaRPC},
	{"getaccountinfo", VizSolanaRPC},
	{"gettransaction", VizSolanaRPC},
	{"rpc", VizSolanaRPC},
	{"materialize", VizTxBuilder},
	{"unsigned tx", VizTxBuilder},
	{"tip tx", VizTxBuilder},
	{"bundle", VizJito},
	{"session", VizBackendAPI},
	{"engine", VizBackendAPI},
}

// Classify maps a log message to a VizComponent by lowercase substring
// match. It is a policy, not a contract: callers MUST NOT use its output
// for anything other than grouping log lines in a display.
func Classify(message string) VizComponent {
	lower := strings.ToLower(message)
	for _, kw := range vizKeywords {
		if strings.Contains(lower, kw.substr) {
			return kw.tag
		}
	}
	return VizOther
}

// VizLine pairs a Line with its heuristic component classification.
type VizLine struct {
	Line
	Component VizComponent
}

// ClassifyLines classifies a batch of lines, e.g. a Ring.Snapshot result,
// for SubscribeVizEvents.
func ClassifyLines(lines []Line) []VizLine {
	out := make([]VizLine, len(lines))
	for i, l := range lines {
		out[i] = VizLine{Line: l, Component: Classify(l.Message)}
	}
	return out
}
