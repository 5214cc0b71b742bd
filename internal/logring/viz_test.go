package logring

import "testing"

func TestClassifyKnownComponents(t *testing.T) {
	cases := map[string]VizComponent{
		"pumpportal websocket connected":        VizPumpPortal,
		"pump.fun create instruction seen":      VizPumpFun,
		"raydium pool account fetched":          VizRaydium,
		"jupiter quote failed":                  VizJupiter,
		"jito block engine rejected bundle":      VizJito,
		"helius logsSubscribe ack received":      VizHeliusWS,
		"getLatestBlockhash rpc call failed":     VizSolanaRPC,
		"materialize failed: no route":           VizTxBuilder,
		"engine: no session for owner on cluster": VizBackendAPI,
		"totally unrelated message":              VizOther,
	}
	for msg, want := range cases {
		if got := Classify(msg); got != want {
			t.Errorf("Classify(%q) = %q, want %q", msg, got, want)
		}
	}
}

func TestClassifyLinesPreservesOrder(t *testing.T) {
	lines := []Line{
		{Message: "raydium signal"},
		{Message: "pumpfun signal"},
	}
	out := ClassifyLines(lines)
	if len(out) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(out))
	}
	if out[0].Component != VizRaydium || out[1].Component != VizPumpFun {
		t.Fatalf("unexpected classifications: %+v", out)
	}
}
