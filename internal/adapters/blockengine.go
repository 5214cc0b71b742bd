package adapters

import "context"

// BlockEngineClient is the MEV-protection block-engine RPC surface.
// SendBundle may return either a plain string id or an opaque payload; the
// core's bundle lifecycle (internal/bundle) normalizes that.
type BlockEngineClient interface {
	GetTipAccounts(ctx context.Context, cluster string) ([]string, error)
	SimulateBundle(ctx context.Context, cluster string, txsBase58 []string) (any, error)
	SendBundle(ctx context.Context, cluster string, txsBase58 []string) (any, error)
	GetBundleStatuses(ctx context.Context, cluster string, ids []string) (any, error)
}
