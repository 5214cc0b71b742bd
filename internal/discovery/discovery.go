// Package discovery implements the auto-discovery filter: given a
// deduped pumpfun pre-migration signal, it fetches the triggering
// transaction, infers the target mint, runs the safety check, tracks a
// per-mint momentum window, and decides whether to arm the session's
// pending action.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/quietledger/sniper-core/internal/adapters"
	"github.com/quietledger/sniper-core/internal/config"
	"github.com/quietledger/sniper-core/internal/domain"
	"github.com/quietledger/sniper-core/internal/logring"
	"github.com/quietledger/sniper-core/internal/session"
	"github.com/quietledger/sniper-core/internal/streammux"
)

// createLogPattern is the cheap log-create heuristic.
var createLogPattern = regexp.MustCompile(`(?i)instruction:\s*create`)

var errTxNotFound = errors.New("discovery: transaction not yet visible")

// Filter is the auto-discovery filter. One Filter instance serves every
// cluster; it holds one RPC semaphore per cluster to bound in-flight
// discovery RPCs.
type Filter struct {
	rpc      map[domain.Cluster]adapters.ClusterRpcClient
	registry *config.TokenProgramRegistry
	sem      map[domain.Cluster]*semaphore.Weighted
	logger   *zap.Logger
}

// New builds a Filter. semCap is the per-cluster in-flight RPC cap.
func New(rpc map[domain.Cluster]adapters.ClusterRpcClient, registry *config.TokenProgramRegistry, semCap int64, logger *zap.Logger) *Filter {
	sems := make(map[domain.Cluster]*semaphore.Weighted, len(rpc))
	for cluster := range rpc {
		sems[cluster] = semaphore.NewWeighted(semCap)
	}
	return &Filter{rpc: rpc, registry: registry, sem: sems, logger: logger.Named("discovery")}
}

// Evaluate runs the full discovery algorithm for one notification against
// one session. Errors never escape: every rejection becomes a counter
// bump and a session log line.
func (f *Filter) Evaluate(ctx context.Context, s *session.Session, guard session.Guard, notif streammux.Notification) {
	if !s.CheckGuard(guard) {
		return
	}
	s.BumpAutoStat(func(st *domain.AutoStats) { st.Signals++ })

	rpc, ok := f.rpc[notif.Cluster]
	if !ok {
		f.reject(s, "noMint")
		return
	}
	sem := f.sem[notif.Cluster]
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer sem.Release(1)
	}

	isCreateFromLogs := false
	for _, line := range notif.Logs {
		if createLogPattern.MatchString(line) {
			isCreateFromLogs = true
			break
		}
	}

	tx, err := fetchTransaction(ctx, rpc, notif.Signature, adapters.CommitmentConfirmed, 3, 200*time.Millisecond)
	if err != nil {
		tx, err = fetchTransaction(ctx, rpc, notif.Signature, adapters.CommitmentFinalized, 2, 250*time.Millisecond)
	}
	if err != nil || tx == nil {
		f.reject(s, "noMint")
		return
	}
	if !s.CheckGuard(guard) {
		return
	}
	s.BumpAutoStat(func(st *domain.AutoStats) { st.TxOK++ })

	mint := inferMint(tx)
	if mint == "" {
		mint = f.probeStaticAccountKeys(ctx, rpc, tx)
	}
	if mint == "" {
		f.reject(s, "noMint")
		return
	}
	if !s.CheckGuard(guard) {
		return
	}
	s.BumpAutoStat(func(st *domain.AutoStats) { st.MintInferred++ })

	isMintNewInTx := containsMint(tx.PostTokenBalances, mint) && !containsMint(tx.PreTokenBalances, mint)
	isCreate := isCreateFromLogs || isMintNewInTx

	now := nowMs()
	cfg := guard.Config.AutoSnipe

	var rejectReason string
	var count, numPayers int
	var cachedSafety *domain.SafetyResult
	s.WithMomentumLock(func(get func(string) *domain.MomentumEntry, set func(string, *domain.MomentumEntry)) {
		e := get(mint)
		switch {
		case e == nil && !isCreate:
			rejectReason = "notNew"
			return
		case e == nil:
			e = domain.NewMomentumEntry(now)
			set(mint, e)
		case now-e.FirstSeenMs > int64(cfg.WindowSec)*1000:
			if !isCreate {
				rejectReason = "windowExpired"
				return
			}
			e.Reset(now)
		}

		ageSec := (now - e.CreatedAtMs) / 1000
		if ageSec > int64(cfg.MaxTxAgeSec) {
			rejectReason = "tooOld"
			return
		}

		e.Count++
		if len(tx.StaticAccountKeys) > 0 {
			e.UniquePayers[tx.StaticAccountKeys[0]] = struct{}{}
		}
		count = e.Count
		numPayers = len(e.UniquePayers)
		cachedSafety = e.Safety
	})
	if rejectReason != "" {
		f.reject(s, rejectReason)
		return
	}

	safety := cachedSafety
	if safety == nil {
		safety = CheckMintSafety(ctx, rpc, f.registry, cfg, mint)
		s.WithMomentumLock(func(get func(string) *domain.MomentumEntry, set func(string, *domain.MomentumEntry)) {
			if e := get(mint); e != nil {
				e.Safety = safety
			}
		})
	}
	// Re-verify the guard here unconditionally: the cached-safety branch
	// above does no I/O itself, but Evaluate may have been suspended on
	// the RPC/backoff calls above it for long enough to span a Stop/Start.
	if !s.CheckGuard(guard) {
		return
	}
	if !safety.OK {
		f.reject(s, safety.Reason)
		return
	}
	s.BumpAutoStat(func(st *domain.AutoStats) { st.SafetyOK++ })

	if count < cfg.MinSignalsInWindow {
		f.reject(s, "momentum")
		return
	}
	if numPayers < cfg.MinUniqueFeePayersInWindow {
		f.reject(s, "uniquePayers")
		return
	}

	if !s.CheckGuard(guard) {
		return
	}
	s.BumpAutoStat(func(st *domain.AutoStats) { st.Triggered++ })

	action := domain.NewSignAndBundleAction(
		fmt.Sprintf("auto-discovery trigger on %s for mint %s", notif.Signature, mint),
		notif.Signature, domain.SourcePumpFun, mint)
	if s.TryArmPendingAction(guard, action) {
		s.AppendLog(logring.LevelInfo, fmt.Sprintf("auto-discovery armed mint %s (sig=%s)", mint, notif.Signature))
	}
}

func (f *Filter) reject(s *session.Session, reason string) {
	s.BumpAutoStat(func(st *domain.AutoStats) { st.BumpReject(reason) })
	s.AppendLog(logring.LevelInfo, fmt.Sprintf("auto-discovery reject: %s", reason))
}

// fetchTransaction retries GetTransaction with exponential backoff; a nil
// transaction (not yet visible to this commitment level) is treated as a
// retryable condition, same as a transport error.
func fetchTransaction(ctx context.Context, rpc adapters.ClusterRpcClient, signature string, commitment adapters.Commitment, maxTries int, base time.Duration) (*adapters.Transaction, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base

	op := func() (*adapters.Transaction, error) {
		tx, err := rpc.GetTransaction(ctx, signature, commitment)
		if err != nil {
			return nil, err
		}
		if tx == nil {
			return nil, errTxNotFound
		}
		return tx, nil
	}
	return backoff.Retry(ctx, op, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(maxTries)))
}

// inferMint applies the pre/postTokenBalances union rule.
func inferMint(tx *adapters.Transaction) string {
	var mints []string
	seen := make(map[string]struct{})
	add := func(entries []adapters.TokenBalanceEntry) {
		for _, e := range entries {
			if _, ok := seen[e.Mint]; !ok {
				seen[e.Mint] = struct{}{}
				mints = append(mints, e.Mint)
			}
		}
	}
	add(tx.PreTokenBalances)
	add(tx.PostTokenBalances)
	if len(mints) == 0 {
		return ""
	}
	return mints[0]
}

// probeStaticAccountKeys is the fallback probe: the first 25 static
// account keys, filtered to token-program-owned accounts with a
// parseable initialized mint layout.
func (f *Filter) probeStaticAccountKeys(ctx context.Context, rpc adapters.ClusterRpcClient, tx *adapters.Transaction) string {
	limit := len(tx.StaticAccountKeys)
	if limit > 25 {
		limit = 25
	}
	for _, key := range tx.StaticAccountKeys[:limit] {
		info, err := rpc.GetAccountInfo(ctx, key, adapters.CommitmentConfirmed)
		if err != nil || info == nil {
			continue
		}
		if info.Owner != f.registry.ClassicTokenProgramID && info.Owner != f.registry.ExtendedTokenProgramID {
			continue
		}
		layout, err := ParseMintLayout(info.Data)
		if err != nil || !layout.IsInitialized {
			continue
		}
		return key
	}
	return ""
}

func containsMint(entries []adapters.TokenBalanceEntry, mint string) bool {
	for _, e := range entries {
		if e.Mint == mint {
			return true
		}
	}
	return false
}

func nowMs() int64 { return time.Now().UnixMilli() }
