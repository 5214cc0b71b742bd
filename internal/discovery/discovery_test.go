package discovery

import (
	"context"
	"encoding/binary"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/quietledger/sniper-core/internal/adapters"
	"github.com/quietledger/sniper-core/internal/config"
	"github.com/quietledger/sniper-core/internal/domain"
	"github.com/quietledger/sniper-core/internal/session"
	"github.com/quietledger/sniper-core/internal/streammux"
)

const (
	classicProgramID  = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	extendedProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

func buildMintBytes(mintAuthorityOption uint32, supply uint64, decimals byte, initialized bool, freezeAuthorityOption uint32) []byte {
	buf := make([]byte, 82)
	binary.LittleEndian.PutUint32(buf[0:4], mintAuthorityOption)
	binary.LittleEndian.PutUint64(buf[36:44], supply)
	buf[44] = decimals
	if initialized {
		buf[45] = 1
	}
	binary.LittleEndian.PutUint32(buf[46:50], freezeAuthorityOption)
	return buf
}

type fakeRPC struct {
	accounts map[string]*adapters.AccountInfo
	txs      map[string]*adapters.Transaction
	supply   map[string]*adapters.TokenSupply
	holders  map[string][]adapters.TokenLargestAccount
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		accounts: map[string]*adapters.AccountInfo{},
		txs:      map[string]*adapters.Transaction{},
		supply:   map[string]*adapters.TokenSupply{},
		holders:  map[string][]adapters.TokenLargestAccount{},
	}
}

func (f *fakeRPC) GetLatestBlockhash(ctx context.Context, commitment adapters.Commitment) (string, error) {
	return "blockhash", nil
}
func (f *fakeRPC) GetMultipleAccountsInfo(ctx context.Context, pubkeys []string) ([]*adapters.AccountInfo, error) {
	out := make([]*adapters.AccountInfo, len(pubkeys))
	for i, k := range pubkeys {
		out[i] = f.accounts[k]
	}
	return out, nil
}
func (f *fakeRPC) GetAccountInfo(ctx context.Context, pubkey string, commitment adapters.Commitment) (*adapters.AccountInfo, error) {
	return f.accounts[pubkey], nil
}
func (f *fakeRPC) GetTransaction(ctx context.Context, signature string, commitment adapters.Commitment) (*adapters.Transaction, error) {
	return f.txs[signature], nil
}
func (f *fakeRPC) GetTokenSupply(ctx context.Context, mint string) (*adapters.TokenSupply, error) {
	return f.supply[mint], nil
}
func (f *fakeRPC) GetTokenLargestAccounts(ctx context.Context, mint string) ([]adapters.TokenLargestAccount, error) {
	return f.holders[mint], nil
}
func (f *fakeRPC) GetSignaturesForAddress(ctx context.Context, pubkey string, limit int, commitment adapters.Commitment) ([]adapters.SignatureInfo, error) {
	return nil, nil
}

func scenarioAConfig() domain.AutoSnipeConfig {
	return domain.AutoSnipeConfig{
		WindowSec:                      8,
		MinSignalsInWindow:             3,
		MinUniqueFeePayersInWindow:     3,
		MaxTxAgeSec:                    20,
		RequireMintAuthorityDisabled:   true,
		RequireFreezeAuthorityDisabled: true,
		AllowToken2022:                 true,
		MaxTop1HolderPct:               20,
		MaxTop10HolderPct:              60,
	}
}

func newScenarioFixture(t *testing.T, mintAuthorityOption uint32) (*Filter, *session.Session, session.Guard, *fakeRPC) {
	rpc := newFakeRPC()
	rpc.accounts["M"] = &adapters.AccountInfo{
		Owner: classicProgramID,
		Data:  buildMintBytes(mintAuthorityOption, 100000, 6, true, 0),
	}
	rpc.supply["M"] = &adapters.TokenSupply{Amount: 100000, Decimals: 6}
	rpc.holders["M"] = []adapters.TokenLargestAccount{
		{Amount: 12000}, {Amount: 8000}, {Amount: 6000}, {Amount: 5000},
		{Amount: 5000}, {Amount: 5000}, {Amount: 4000},
	}

	registry := &config.TokenProgramRegistry{
		ClassicTokenProgramID:  classicProgramID,
		ExtendedTokenProgramID: extendedProgramID,
		BlockedExtensionTypes:  config.DefaultBlockedExtensionTypes,
	}

	logger := zaptest.NewLogger(t)
	filter := New(map[domain.Cluster]adapters.ClusterRpcClient{domain.ClusterMainnet: rpc}, registry, 2, logger)

	s := session.New("owner1", domain.ClusterMainnet, 500, logger)
	s.Start(&domain.BotConfig{
		Mode:            domain.ModeSnipe,
		PumpFunPhase:    domain.PhasePre,
		SnipeTargetMode: domain.TargetModeAuto,
		AutoSnipe:       scenarioAConfig(),
	})
	guard, _, _ := s.Snapshot()
	return filter, s, guard, rpc
}

func sigNotif(sig, payer string) streammux.Notification {
	return streammux.Notification{
		Cluster:   domain.ClusterMainnet,
		Topic:     domain.TopicPumpFun,
		Signature: sig,
		Logs:      []string{"Program log: Instruction: Create"},
	}
}

func txFor(payer string) *adapters.Transaction {
	return &adapters.Transaction{
		StaticAccountKeys: []string{payer},
		PostTokenBalances: []adapters.TokenBalanceEntry{{AccountIndex: 1, Mint: "M"}},
	}
}

func TestScenarioA_AutoSnipeTrigger(t *testing.T) {
	filter, s, guard, rpc := newScenarioFixture(t, 0)

	sigs := []struct{ sig, payer string }{{"sig1", "p1"}, {"sig2", "p2"}, {"sig3", "p3"}}
	for _, sp := range sigs {
		rpc.txs[sp.sig] = txFor(sp.payer)
		filter.Evaluate(context.Background(), s, guard, sigNotif(sp.sig, sp.payer))
	}

	action := s.PendingAction()
	if action == nil || action.SignAndBundle == nil {
		t.Fatal("expected pending action to be armed after sig3")
	}
	if action.SignAndBundle.Source != domain.SourcePumpFun || action.SignAndBundle.TargetMint != "M" || action.SignAndBundle.TriggerSignature != "sig3" {
		t.Fatalf("unexpected action payload: %+v", action.SignAndBundle)
	}

	stats := s.AutoStatsSnapshot()
	if stats.Signals != 3 || stats.TxOK != 3 || stats.MintInferred != 3 || stats.SafetyOK != 3 || stats.Triggered != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestScenarioB_SafetyRejectMintAuthorityEnabled(t *testing.T) {
	filter, s, guard, rpc := newScenarioFixture(t, 1)
	rpc.txs["sig1"] = txFor("p1")

	filter.Evaluate(context.Background(), s, guard, sigNotif("sig1", "p1"))

	if s.PendingAction() != nil {
		t.Fatal("expected no pending action")
	}
	stats := s.AutoStatsSnapshot()
	if stats.Rejects["mint authority still enabled"] != 1 {
		t.Fatalf("expected one mint-authority reject, got %+v", stats.Rejects)
	}
}

func TestScenarioC_MomentumInsufficient(t *testing.T) {
	filter, s, guard, rpc := newScenarioFixture(t, 0)
	rpc.txs["sig1"] = txFor("p1")
	rpc.txs["sig2"] = txFor("p2")

	filter.Evaluate(context.Background(), s, guard, sigNotif("sig1", "p1"))
	filter.Evaluate(context.Background(), s, guard, sigNotif("sig2", "p2"))

	if s.PendingAction() != nil {
		t.Fatal("expected no pending action with only two signals")
	}
	stats := s.AutoStatsSnapshot()
	if stats.Rejects["momentum"] == 0 {
		t.Fatalf("expected momentum rejects, got %+v", stats.Rejects)
	}

	rpc.txs["sig3"] = txFor("p3")
	filter.Evaluate(context.Background(), s, guard, sigNotif("sig3", "p3"))
	if s.PendingAction() == nil {
		t.Fatal("expected a third signal within window to trigger")
	}
}

func TestEvaluateAbortsOnStaleGuardAfterStop(t *testing.T) {
	filter, s, guard, rpc := newScenarioFixture(t, 0)
	rpc.txs["sig1"] = txFor("p1")

	s.Stop()
	s.Start(&domain.BotConfig{
		Mode:            domain.ModeSnipe,
		PumpFunPhase:    domain.PhasePre,
		SnipeTargetMode: domain.TargetModeAuto,
		AutoSnipe:       scenarioAConfig(),
	})

	before := s.AutoStatsSnapshot()
	filter.Evaluate(context.Background(), s, guard, sigNotif("sig1", "p1"))
	after := s.AutoStatsSnapshot()

	if after.Signals != before.Signals || after.TxOK != before.TxOK ||
		after.MintInferred != before.MintInferred || after.SafetyOK != before.SafetyOK ||
		after.Triggered != before.Triggered {
		t.Fatalf("expected a stale guard to prevent any stat mutation: before=%+v after=%+v", before, after)
	}
	if s.PendingAction() != nil {
		t.Fatal("expected no pending action from a stale-epoch evaluation")
	}
}

func TestMintLayoutRoundTrip(t *testing.T) {
	cases := []struct {
		name                                string
		authorityOpt, freezeOpt             uint32
		supply                              uint64
		decimals                            byte
		initialized                         bool
	}{
		{"absent-authorities", 0, 0, 0, 0, false},
		{"present-authorities", 1, 1, 1, 9, true},
		{"max-supply", 0, 0, 1<<64 - 1, 9, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf := buildMintBytes(c.authorityOpt, c.supply, c.decimals, c.initialized, c.freezeOpt)
			layout, err := ParseMintLayout(buf)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if layout.MintAuthorityOption != c.authorityOpt || layout.FreezeAuthorityOption != c.freezeOpt ||
				layout.Supply != c.supply || layout.Decimals != c.decimals || layout.IsInitialized != c.initialized {
				t.Fatalf("round trip mismatch: %+v vs case %+v", layout, c)
			}
		})
	}
}

func TestExtensionTypesWellFormedAndTruncated(t *testing.T) {
	base := buildMintBytes(0, 1, 9, true, 0)

	tlv := []byte{}
	tlv = appendTLV(tlv, 4, []byte{0xAA})
	tlv = appendTLV(tlv, 16, []byte{0xBB, 0xCC})
	wellFormed := append(base, tlv...)

	types := ParseExtensionTypes(wellFormed)
	if len(types) != 2 || types[0] != 4 || types[1] != 16 {
		t.Fatalf("expected [4 16], got %v", types)
	}

	truncated := append(append([]byte{}, base...), tlv[:len(tlv)-1]...)
	if got := ParseExtensionTypes(truncated); got != nil {
		t.Fatalf("expected empty list on truncated TLV, got %v", got)
	}
}

func appendTLV(buf []byte, typ uint16, value []byte) []byte {
	header := make([]byte, 4)
	binary.LittleEndian.PutUint16(header[0:2], typ)
	binary.LittleEndian.PutUint16(header[2:4], uint16(len(value)))
	buf = append(buf, header...)
	buf = append(buf, value...)
	return buf
}
