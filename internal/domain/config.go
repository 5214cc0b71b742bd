package domain

// AutoSnipeConfig holds the auto-discovery filter's tunables.
type AutoSnipeConfig struct {
	WindowSec                      int
	MinSignalsInWindow             int
	MinUniqueFeePayersInWindow     int
	MaxTxAgeSec                    int
	RequireMintAuthorityDisabled   bool
	RequireFreezeAuthorityDisabled bool
	AllowToken2022                 bool
	MaxTop1HolderPct               float64
	MaxTop10HolderPct              float64
}

// VolumeConfig holds the volume-mode tunables.
type VolumeConfig struct {
	Enabled     bool
	IntervalSec int
	TokenMint   string
	SlippageBps int
	Roundtrip   bool
}

// BotConfig is the immutable snapshot installed on Session.Start. A restart
// replaces the pointer wholesale and bumps the session epoch; it is never
// mutated in place.
type BotConfig struct {
	Cluster         Cluster
	Mode            Mode
	PumpFunPhase    PumpFunPhase
	SnipeTargetMode SnipeTargetMode
	AutoSnipe       AutoSnipeConfig
	MevEnabled      bool
	BuyAmountSol    float64
	Volume          VolumeConfig
	SnipeList       []string // mint addresses, list target mode

	// Liquidity / take-profit / stop-loss / autosell knobs are carried
	// through to the monitoring surface this core hands off to; the core
	// itself does not interpret them.
	LiquidityMinSol float64
	TakeProfitPct   float64
	StopLossPct     float64
	AutosellPct     float64
}
