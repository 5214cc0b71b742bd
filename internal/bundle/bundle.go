// Package bundle implements the bundle lifecycle: turning a client's
// signed transactions into a simulated, then submitted, block-engine
// bundle, addressed by (cluster, owner, localId).
package bundle

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/quietledger/sniper-core/internal/adapters"
	"github.com/quietledger/sniper-core/internal/domain"
	"github.com/quietledger/sniper-core/internal/logring"
	"github.com/quietledger/sniper-core/internal/session"
	"github.com/quietledger/sniper-core/internal/tipcache"
)

const maxTxsPerBundle = 5

// Lifecycle implements Prepare and Submit against the block-engine
// adapter, sharing the tip-account cache with the materializer.
type Lifecycle struct {
	blockEngine map[domain.Cluster]adapters.BlockEngineClient
	tips        *tipcache.Cache
	logger      *zap.Logger
}

func New(blockEngine map[domain.Cluster]adapters.BlockEngineClient, tips *tipcache.Cache, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{blockEngine: blockEngine, tips: tips, logger: logger.Named("bundle")}
}

// PrepareResult is the Prepare return shape.
type PrepareResult struct {
	LocalID    string
	Simulation any
}

// Prepare decodes and simulates a client's signed transactions, records a
// bundle entry and clears the session's pending action so the client is
// never prompted twice for the same opportunity.
func (l *Lifecycle) Prepare(ctx context.Context, s *session.Session, cluster domain.Cluster, signedTxsBase64 []string) (*PrepareResult, error) {
	if cluster == domain.ClusterDevnet {
		return nil, fmt.Errorf("bundles are mainnet-only")
	}
	if len(signedTxsBase64) == 0 || len(signedTxsBase64) > maxTxsPerBundle {
		return nil, fmt.Errorf("bundle must contain 1-%d signed transactions", maxTxsPerBundle)
	}

	txsBase58 := make([]string, len(signedTxsBase64))
	firstSignatures := make([]string, len(signedTxsBase64))
	var decoded []*solana.Transaction
	for i, raw := range signedTxsBase64 {
		tx, err := solana.TransactionFromBase64(raw)
		if err != nil {
			return nil, fmt.Errorf("decode signed transaction %d: %w", i, err)
		}
		if len(tx.Signatures) == 0 {
			return nil, fmt.Errorf("signed transaction %d has no signature", i)
		}
		wire, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("re-serialize signed transaction %d: %w", i, err)
		}
		decoded = append(decoded, tx)
		txsBase58[i] = base58.Encode(wire)
		firstSignatures[i] = tx.Signatures[0].String()
	}

	l.checkTipLast(ctx, s, cluster, decoded)

	be, ok := l.blockEngine[cluster]
	if !ok {
		return nil, fmt.Errorf("no block-engine client for cluster %s", cluster)
	}
	simulation, err := be.SimulateBundle(ctx, string(cluster), txsBase58)
	if err != nil {
		return nil, fmt.Errorf("simulate bundle: %w", err)
	}

	localID := uuid.NewString()
	now := nowMs()
	s.PutPreparedBundle(&domain.PreparedBundle{LocalID: localID, SignedTxsBase58: txsBase58, CreatedAtMs: now})
	s.PutBundleStatus(&domain.BundleStatus{
		LocalID: localID, State: domain.BundleStatePrepared,
		CreatedAtMs: now, LastUpdateMs: now, Simulation: simulation, FirstSignatures: firstSignatures,
	})
	s.ClearPendingActionNow()
	s.AppendLog(logring.LevelInfo, fmt.Sprintf("prepared bundle %s with %d transactions", localID, len(signedTxsBase64)))

	return &PrepareResult{LocalID: localID, Simulation: simulation}, nil
}

// checkTipLast runs a non-fatal tip-presence check.
func (l *Lifecycle) checkTipLast(ctx context.Context, s *session.Session, cluster domain.Cluster, decoded []*solana.Transaction) {
	if len(decoded) == 0 {
		return
	}
	accounts, err := l.tips.Get(ctx, cluster)
	if err != nil {
		s.AppendLog(logring.LevelWarn, fmt.Sprintf("tip-account lookup failed, continuing: %v", err))
		return
	}
	tipSet := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		tipSet[a] = struct{}{}
	}
	last := decoded[len(decoded)-1]
	if !isNativeTransferTo(last, tipSet) {
		s.AppendLog(logring.LevelWarn, "no tip detected as the last transaction in the bundle")
	}
}

// isNativeTransferTo reports whether tx's last instruction invokes the
// System Program against one of the given accounts. It does not inspect
// the transfer amount; a congested mainnet bundle with no tip is a policy
// warning, not a rejection.
func isNativeTransferTo(tx *solana.Transaction, tipAccounts map[string]struct{}) bool {
	msg := tx.Message
	if len(msg.Instructions) == 0 {
		return false
	}
	last := msg.Instructions[len(msg.Instructions)-1]
	if int(last.ProgramIDIndex) >= len(msg.AccountKeys) {
		return false
	}
	if !msg.AccountKeys[last.ProgramIDIndex].Equals(solana.SystemProgramID) {
		return false
	}
	for _, idx := range last.Accounts {
		if int(idx) >= len(msg.AccountKeys) {
			continue
		}
		if _, ok := tipAccounts[msg.AccountKeys[idx].String()]; ok {
			return true
		}
	}
	return false
}

// SubmitResult is the Submit return shape.
type SubmitResult struct {
	LocalID    string
	SendResult any
}

// Submit sends a previously prepared bundle and polls its status once.
func (l *Lifecycle) Submit(ctx context.Context, s *session.Session, cluster domain.Cluster, localID string) (*SubmitResult, error) {
	if cluster == domain.ClusterDevnet {
		return nil, fmt.Errorf("bundles are mainnet-only")
	}
	prepared, ok := s.PreparedBundle(localID)
	if !ok {
		return nil, fmt.Errorf("no prepared bundle with id %s", localID)
	}
	be, ok := l.blockEngine[cluster]
	if !ok {
		return nil, fmt.Errorf("no block-engine client for cluster %s", cluster)
	}

	sendResult, err := be.SendBundle(ctx, string(cluster), prepared.SignedTxsBase58)
	if err != nil {
		s.MutateBundleStatus(localID, func(b *domain.BundleStatus) {
			b.State = domain.BundleStateError
			b.Error = err.Error()
			b.LastUpdateMs = nowMs()
		})
		s.AppendLog(logring.LevelError, fmt.Sprintf("submit bundle %s failed: %v", localID, err))
		return nil, fmt.Errorf("send bundle: %w", err)
	}

	remoteID := ""
	if str, ok := sendResult.(string); ok {
		remoteID = str
	}
	s.MutateBundleStatus(localID, func(b *domain.BundleStatus) {
		b.State = domain.BundleStateSubmitted
		b.RemoteID = remoteID
		b.LastUpdateMs = nowMs()
	})
	s.AppendLog(logring.LevelInfo, fmt.Sprintf("submitted bundle %s", localID))

	l.pollStatusOnce(ctx, s, cluster, localID, remoteID)

	return &SubmitResult{LocalID: localID, SendResult: sendResult}, nil
}

// pollStatusOnce runs a single best-effort status poll whose errors are
// swallowed.
func (l *Lifecycle) pollStatusOnce(ctx context.Context, s *session.Session, cluster domain.Cluster, localID, remoteID string) {
	be, ok := l.blockEngine[cluster]
	if !ok {
		return
	}
	pollID := localID
	if remoteID != "" {
		pollID = remoteID
	}
	status, err := be.GetBundleStatuses(ctx, string(cluster), []string{pollID})
	if err != nil {
		return
	}
	s.MutateBundleStatus(localID, func(b *domain.BundleStatus) {
		b.RemoteStatus = status
		b.LastUpdateMs = nowMs()
	})
}

func nowMs() int64 { return time.Now().UnixMilli() }
