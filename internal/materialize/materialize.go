// Package materialize implements the action materializer: it turns a
// session's pending action into concrete unsigned, base64 transactions
// just-in-time, the first time the edge asks for them.
package materialize

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/quietledger/sniper-core/internal/adapters"
	"github.com/quietledger/sniper-core/internal/domain"
	"github.com/quietledger/sniper-core/internal/logring"
	"github.com/quietledger/sniper-core/internal/session"
	"github.com/quietledger/sniper-core/internal/tipcache"
)

const (
	snipeComputeUnitLimit = 1_000_000
	snipeComputeUnitPrice = 20_000
	tipBaseLamports       = 1000
	tipJitterLamports     = 50_000
)

// Materializer wires the venue adapters the core depends on into the
// per-mode build logic.
type Materializer struct {
	rpc        map[domain.Cluster]adapters.ClusterRpcClient
	swap       adapters.SwapAdapter
	aggregator adapters.DexAggregatorAdapter
	tradeLocal adapters.TradeLocalAdapter
	tips       *tipcache.Cache
	logger     *zap.Logger
}

func New(rpc map[domain.Cluster]adapters.ClusterRpcClient, swap adapters.SwapAdapter, aggregator adapters.DexAggregatorAdapter, tradeLocal adapters.TradeLocalAdapter, tips *tipcache.Cache, logger *zap.Logger) *Materializer {
	return &Materializer{rpc: rpc, swap: swap, aggregator: aggregator, tradeLocal: tradeLocal, tips: tips, logger: logger.Named("materialize")}
}

// Materialize fills in a session's pending action's unsigned transaction
// list. It is a no-op if the action no longer needs materialization.
// Callers (the edge) are expected to hold nothing beyond a fresh guard.
func (m *Materializer) Materialize(ctx context.Context, s *session.Session, guard session.Guard) error {
	action := s.PendingAction()
	if action == nil || action.SignAndBundle == nil || !action.SignAndBundle.NeedsUnsignedTxs {
		return nil
	}
	cfg := guard.Config
	if cfg == nil {
		return fmt.Errorf("materialize: session has no config")
	}

	var txs []string
	var err error
	switch cfg.Mode {
	case domain.ModeSnipe:
		txs, err = m.materializeSnipe(ctx, s, guard, action.SignAndBundle)
	case domain.ModeVolume:
		txs, err = m.materializeVolume(ctx, s, guard, action.SignAndBundle)
	default:
		err = fmt.Errorf("materialize: unknown mode %s", cfg.Mode)
	}

	if err != nil {
		s.AppendLog(logring.LevelError, fmt.Sprintf("materialize failed: %v", err))
		if !s.CheckGuard(guard) {
			return err
		}
		s.ClearPendingActionNow()
		if cfg.Mode == domain.ModeVolume {
			s.SetLastVolumeAction(nowMs())
		}
		return err
	}

	if !s.SetUnsignedTxs(guard, txs) {
		return fmt.Errorf("materialize: session guard invalidated mid-flight")
	}
	return nil
}

// materializeSnipe builds the snipe-mode transaction sequence: one
// placeholder swap-intent transaction, optionally followed by a tip
// transaction that must be the last element of the sequence.
func (m *Materializer) materializeSnipe(ctx context.Context, s *session.Session, guard session.Guard, payload *domain.SignAndBundlePayload) ([]string, error) {
	cfg := guard.Config
	rpc, ok := m.rpc[cfg.Cluster]
	if !ok {
		return nil, fmt.Errorf("no RPC client for cluster %s", cfg.Cluster)
	}
	if _, err := rpc.GetLatestBlockhash(ctx, adapters.CommitmentProcessed); err != nil {
		return nil, fmt.Errorf("fetch blockhash: %w", err)
	}

	memo := fmt.Sprintf("mode=%s phase=%s source=%s sig=%s mint=%s", cfg.Mode, cfg.PumpFunPhase, payload.Source, payload.TriggerSignature, payload.TargetMint)
	buyTx, err := m.swap.BuildUnsignedBuyTxBase64(ctx, adapters.BuildBuyTxParams{
		Cluster:   string(cfg.Cluster),
		Owner:     s.Owner,
		AmountSol: cfg.BuyAmountSol,
		Memo:      memo,
		CULimit:   snipeComputeUnitLimit,
		CUPrice:   snipeComputeUnitPrice,
	})
	if err != nil {
		return nil, fmt.Errorf("build swap tx: %w", err)
	}
	txs := []string{buyTx}

	if !cfg.MevEnabled {
		return txs, nil
	}
	if cfg.Cluster == domain.ClusterDevnet {
		s.AppendLog(logring.LevelWarn, "mev enabled but cluster is devnet, skipping tip")
		return txs, nil
	}

	tipTx, err := m.buildTipTx(ctx, s, cfg.Cluster, memo)
	if err != nil {
		s.AppendLog(logring.LevelWarn, fmt.Sprintf("tip build failed, proceeding without tip: %v", err))
		return txs, nil
	}
	return append(txs, tipTx), nil
}

// buildTipTx picks a random tip account, computes a randomized tip
// amount to resist fingerprinting, and builds the transfer.
func (m *Materializer) buildTipTx(ctx context.Context, s *session.Session, cluster domain.Cluster, memo string) (string, error) {
	accounts, err := m.tips.Get(ctx, cluster)
	if err != nil || len(accounts) == 0 {
		return "", fmt.Errorf("no tip accounts available: %w", err)
	}
	account := accounts[rand.Intn(len(accounts))]
	tipLamports := uint64(tipBaseLamports + rand.Intn(tipJitterLamports))

	return m.swap.BuildUnsignedTipTxBase64(ctx, adapters.BuildTipTxParams{
		Cluster:     string(cluster),
		Owner:       s.Owner,
		TipAccount:  account,
		TipLamports: tipLamports,
		Memo:        memo,
	})
}

// materializeVolume runs the volume-mode route fallback chain:
// aggregator, then launchpad trade-local, then AMM trade-local, strictly
// in that order, each attempted iff the prior raised.
func (m *Materializer) materializeVolume(ctx context.Context, s *session.Session, guard session.Guard, payload *domain.SignAndBundlePayload) ([]string, error) {
	cfg := guard.Config
	vol := cfg.Volume
	if vol.TokenMint == "" {
		return nil, fmt.Errorf("volume mode requires a token mint")
	}
	amountLamports := uint64(cfg.BuyAmountSol * 1e9)

	txs, route, err := m.volumeAggregatorRoute(ctx, s, vol, amountLamports)
	if err == nil {
		s.SetLastVolumeRoute(route)
		return m.appendVolumeTip(ctx, s, cfg, payload, txs)
	}
	aggregatorErr := err

	txs, route, err = m.volumeTradeLocalRoute(ctx, s, vol, cfg.BuyAmountSol, adapters.TradeLocalPoolPump, "pumpfun")
	if err == nil {
		if vol.Roundtrip {
			s.AppendLog(logring.LevelWarn, "roundtrip not supported on fallback route, degrading to buy-only")
		}
		s.SetLastVolumeRoute(route)
		return m.appendVolumeTip(ctx, s, cfg, payload, txs)
	}
	launchpadErr := err

	txs, route, err = m.volumeTradeLocalRoute(ctx, s, vol, cfg.BuyAmountSol, adapters.TradeLocalPoolRaydium, "raydium")
	if err == nil {
		if vol.Roundtrip {
			s.AppendLog(logring.LevelWarn, "roundtrip not supported on fallback route, degrading to buy-only")
		}
		s.SetLastVolumeRoute(route)
		return m.appendVolumeTip(ctx, s, cfg, payload, txs)
	}

	return nil, fmt.Errorf("all volume routes failed: aggregator=%v, launchpad=%v, amm=%v", aggregatorErr, launchpadErr, err)
}

func (m *Materializer) volumeAggregatorRoute(ctx context.Context, s *session.Session, vol domain.VolumeConfig, amountLamports uint64) ([]string, string, error) {
	quote, err := m.aggregator.Quote(ctx, adapters.QuoteParams{
		InputMint:   nativeWrapperMint,
		OutputMint:  vol.TokenMint,
		Amount:      amountLamports,
		SlippageBps: vol.SlippageBps,
	})
	if err != nil {
		return nil, "", fmt.Errorf("aggregator quote: %w", err)
	}
	swapTx, err := m.aggregator.SwapTxBase64(ctx, adapters.SwapTxParams{
		Quote:            quote,
		UserPublicKey:    s.Owner,
		WrapAndUnwrapSol: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("aggregator swap build: %w", err)
	}
	txs := []string{swapTx}

	if vol.Roundtrip {
		reverseQuote, err := m.aggregator.Quote(ctx, adapters.QuoteParams{
			InputMint:   vol.TokenMint,
			OutputMint:  nativeWrapperMint,
			Amount:      quote.OutAmount,
			SlippageBps: vol.SlippageBps,
		})
		if err != nil {
			return nil, "", fmt.Errorf("aggregator reverse quote: %w", err)
		}
		reverseTx, err := m.aggregator.SwapTxBase64(ctx, adapters.SwapTxParams{
			Quote:            reverseQuote,
			UserPublicKey:    s.Owner,
			WrapAndUnwrapSol: true,
		})
		if err != nil {
			return nil, "", fmt.Errorf("aggregator reverse swap build: %w", err)
		}
		txs = append(txs, reverseTx)
	}
	return txs, "aggregator", nil
}

func (m *Materializer) volumeTradeLocalRoute(ctx context.Context, s *session.Session, vol domain.VolumeConfig, amountSol float64, pool adapters.TradeLocalPool, routeName string) ([]string, string, error) {
	slippagePercent := float64(1)
	if computed := ceilDiv(vol.SlippageBps, 100); computed > slippagePercent {
		slippagePercent = computed
	}
	tx, err := m.tradeLocal.TradeTxBase64(ctx, adapters.TradeLocalParams{
		Owner:            s.Owner,
		Mint:             vol.TokenMint,
		Action:           adapters.TradeLocalBuy,
		Pool:             pool,
		Amount:           amountSol,
		DenominatedInSol: true,
		SlippagePercent:  slippagePercent,
	})
	if err != nil {
		return nil, "", fmt.Errorf("trade-local %s: %w", routeName, err)
	}
	return []string{tx}, routeName, nil
}

func (m *Materializer) appendVolumeTip(ctx context.Context, s *session.Session, cfg *domain.BotConfig, payload *domain.SignAndBundlePayload, txs []string) ([]string, error) {
	if !cfg.MevEnabled {
		return txs, nil
	}
	if cfg.Cluster == domain.ClusterDevnet {
		s.AppendLog(logring.LevelWarn, "mev enabled but cluster is devnet, skipping tip")
		return txs, nil
	}
	memo := fmt.Sprintf("mode=volume source=%s sig=%s mint=%s", payload.Source, payload.TriggerSignature, payload.TargetMint)
	tipTx, err := m.buildTipTx(ctx, s, cfg.Cluster, memo)
	if err != nil {
		s.AppendLog(logring.LevelWarn, fmt.Sprintf("tip build failed, proceeding without tip: %v", err))
		return txs, nil
	}
	return append(txs, tipTx), nil
}

// ceilDiv computes ceil(bps/divisor) as a float, so a partial percent
// rounds up to a whole one; it returns 0 for non-positive bps. The floor
// of 1 percent is applied by the caller.
func ceilDiv(bps int, divisor int) float64 {
	if bps <= 0 {
		return 0
	}
	return float64((bps + divisor - 1) / divisor)
}

// nativeWrapperMint is the wrapped-SOL mint address every aggregator quote
// uses as the native leg of a swap.
const nativeWrapperMint = "So11111111111111111111111111111111111111112"

func nowMs() int64 { return time.Now().UnixMilli() }
