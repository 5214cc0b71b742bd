// Package adapters declares the external collaborators the core consumes.
// None of these are implemented here — a production deployment
// wires in a real Solana RPC client, a real WebSocket client, real
// venue-specific transaction builders and a real block-engine RPC client.
// The core only depends on these interfaces so it can be driven by fakes
// in tests.
package adapters

import "context"

// Commitment mirrors Solana's confirmation levels, restricted to the
// values this spec actually asks for.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// AccountInfo is the subset of getAccountInfo/getMultipleAccountsInfo the
// core reads.
type AccountInfo struct {
	Owner    string
	Data     []byte
	Lamports uint64
}

// TokenBalanceEntry is one row of pre/postTokenBalances on a transaction.
type TokenBalanceEntry struct {
	AccountIndex int
	Mint         string
	Owner        string
}

// Transaction is the subset of getTransaction the core reads: the static
// account keys (for mint probing and fee-payer identification) and the
// pre/post token balance deltas (for mint inference and newness checks).
type Transaction struct {
	Signature          string
	StaticAccountKeys  []string // payer is index 0
	PreTokenBalances   []TokenBalanceEntry
	PostTokenBalances  []TokenBalanceEntry
	BlockTimeUnixSec   int64
}

// TokenSupply is the result of getTokenSupply.
type TokenSupply struct {
	Amount   uint64
	Decimals uint8
}

// TokenLargestAccount is one row of getTokenLargestAccounts (≤20 rows).
type TokenLargestAccount struct {
	Amount uint64
}

// SignatureInfo is one row of getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	BlockTime *int64
}

// ClusterRpcClient is the synchronous-feeling async Solana RPC surface the
// core uses. Implementations SHOULD retry transient errors internally.
// The core's own retry wrapper (internal/discovery) covers only the
// auto-discovery filter's GetTransaction call; the filter's account,
// supply and largest-holder lookups are each made once.
type ClusterRpcClient interface {
	GetLatestBlockhash(ctx context.Context, commitment Commitment) (string, error)
	GetMultipleAccountsInfo(ctx context.Context, pubkeys []string) ([]*AccountInfo, error)
	GetAccountInfo(ctx context.Context, pubkey string, commitment Commitment) (*AccountInfo, error)
	GetTransaction(ctx context.Context, signature string, commitment Commitment) (*Transaction, error)
	GetTokenSupply(ctx context.Context, mint string) (*TokenSupply, error)
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenLargestAccount, error)
	GetSignaturesForAddress(ctx context.Context, pubkey string, limit int, commitment Commitment) ([]SignatureInfo, error)
}
