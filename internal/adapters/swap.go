package adapters

import "context"

// BuildTipTxParams configures a validator-tip transfer transaction.
type BuildTipTxParams struct {
	Cluster     string
	Owner       string
	TipAccount  string
	TipLamports uint64
	Memo        string
}

// BuildBuyTxParams configures the snipe-mode swap-intent placeholder
// transaction. In production this is replaced by a real venue-specific
// swap instruction; the core only depends on the shape.
type BuildBuyTxParams struct {
	Cluster   string
	Owner     string
	AmountSol float64
	Memo      string
	CULimit   uint32 // 0 means use the adapter's default
	CUPrice   uint64 // microLamports; 0 means use the adapter's default
}

// SwapAdapter builds unsigned transactions for the snipe-mode placeholder
// swap and the optional validator tip.
type SwapAdapter interface {
	BuildUnsignedBuyTxBase64(ctx context.Context, p BuildBuyTxParams) (string, error)
	BuildUnsignedSellTxBase64(ctx context.Context, p BuildBuyTxParams) (string, error)
	BuildUnsignedTipTxBase64(ctx context.Context, p BuildTipTxParams) (string, error)
}

// Quote is the opaque result of a DexAggregatorAdapter.Quote call; the
// core only needs to read OutAmount back out of it for roundtrip legs.
type Quote struct {
	InputMint   string
	OutputMint  string
	InAmount    uint64
	OutAmount   uint64
	SlippageBps int
	Raw         any
}

// QuoteParams requests a quote from the aggregator.
type QuoteParams struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// SwapTxParams requests a swap transaction build from a prior quote.
type SwapTxParams struct {
	Quote            *Quote
	UserPublicKey    string
	WrapAndUnwrapSol bool
}

// DexAggregatorAdapter is the volume-mode primary route.
type DexAggregatorAdapter interface {
	Quote(ctx context.Context, p QuoteParams) (*Quote, error)
	SwapTxBase64(ctx context.Context, p SwapTxParams) (string, error)
}

// TradeLocalAction is the buy/sell action for TradeLocalAdapter.
type TradeLocalAction string

const (
	TradeLocalBuy  TradeLocalAction = "buy"
	TradeLocalSell TradeLocalAction = "sell"
)

// TradeLocalPool selects which fallback pool a TradeLocalAdapter targets.
type TradeLocalPool string

const (
	TradeLocalPoolPump    TradeLocalPool = "pump"
	TradeLocalPoolRaydium TradeLocalPool = "raydium"
)

// TradeLocalParams configures a fallback-route trade build.
type TradeLocalParams struct {
	Owner            string
	Mint             string
	Action           TradeLocalAction
	Pool             TradeLocalPool
	Amount           float64
	DenominatedInSol bool
	SlippagePercent  float64
	PriorityFeeSol   float64 // 0 means adapter default
}

// TradeLocalAdapter is the volume-mode fallback route, used for both the
// pre-migration launchpad builder and the post-migration AMM builder. It
// MAY return base64, base58 or raw bytes; the adapter itself is
// responsible for giving the core back base64 text.
type TradeLocalAdapter interface {
	TradeTxBase64(ctx context.Context, p TradeLocalParams) (string, error)
}
