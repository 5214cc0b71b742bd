package discovery

import (
	"context"

	"github.com/quietledger/sniper-core/internal/adapters"
	"github.com/quietledger/sniper-core/internal/config"
	"github.com/quietledger/sniper-core/internal/domain"
)

// CheckMintSafety runs the mint safety check algorithm. It never returns
// a Go error for a policy rejection — every failure mode is expressed as
// a typed SafetyResult.Reason; upstream callers never let errors escape
// as errors.
func CheckMintSafety(ctx context.Context, rpc adapters.ClusterRpcClient, registry *config.TokenProgramRegistry, cfg domain.AutoSnipeConfig, mint string) *domain.SafetyResult {
	info, err := rpc.GetAccountInfo(ctx, mint, adapters.CommitmentConfirmed)
	if err != nil || info == nil {
		return fail("mint account not found")
	}

	isExtended := info.Owner == registry.ExtendedTokenProgramID
	if isExtended && !cfg.AllowToken2022 {
		return fail("token-2022 not allowed")
	}
	if isExtended {
		blocked := blockedSet(registry.BlockedExtensionTypes)
		for _, t := range ParseExtensionTypes(info.Data) {
			if _, bad := blocked[t]; bad {
				return fail("token-2022 extension blocked")
			}
		}
	}

	layout, err := ParseMintLayout(info.Data)
	if err != nil {
		return fail("mint account not found")
	}
	if !layout.IsInitialized {
		return fail("mint not initialized")
	}
	if cfg.RequireMintAuthorityDisabled && layout.MintAuthorityOption != 0 {
		return fail("mint authority still enabled")
	}
	if cfg.RequireFreezeAuthorityDisabled && layout.FreezeAuthorityOption != 0 {
		return fail("freeze authority still enabled")
	}

	supply, err := rpc.GetTokenSupply(ctx, mint)
	if err != nil || supply == nil || supply.Amount == 0 {
		return fail("zero supply")
	}

	holders, err := rpc.GetTokenLargestAccounts(ctx, mint)
	if err != nil {
		holders = nil
	}

	var top1, top10 uint64
	nonZero := 0
	for i, h := range holders {
		if i == 0 {
			top1 = h.Amount
		}
		if i < 10 {
			top10 += h.Amount
		}
		if h.Amount > 0 {
			nonZero++
		}
	}
	top1Pct := float64(top1) * 100 / float64(supply.Amount)
	top10Pct := float64(top10) * 100 / float64(supply.Amount)

	// Immediately post-launch distribution is trivially concentrated; the
	// caps would falsely reject every candidate at t≈0, so they only bind
	// once enough holders exist to mean something.
	if nonZero >= 5 {
		if top1Pct > cfg.MaxTop1HolderPct {
			return fail("top1 too high")
		}
		if top10Pct > cfg.MaxTop10HolderPct {
			return fail("top10 too high")
		}
	}

	return &domain.SafetyResult{OK: true, Top1Pct: top1Pct, Top10Pct: top10Pct}
}

func fail(reason string) *domain.SafetyResult {
	return &domain.SafetyResult{OK: false, Reason: reason}
}

func blockedSet(types []int) map[int]struct{} {
	m := make(map[int]struct{}, len(types))
	for _, t := range types {
		m[t] = struct{}{}
	}
	return m
}
