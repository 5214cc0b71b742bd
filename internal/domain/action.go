package domain

// ActionKind discriminates the shape of a PendingAction. Today the core
// only ever produces SIGN_AND_BUNDLE actions; the discriminator and the
// per-kind payload struct exist so a second kind can be added without
// turning PendingAction into a bag of optional fields.
type ActionKind string

const ActionKindSignAndBundle ActionKind = "SIGN_AND_BUNDLE"

// SignAndBundlePayload is the payload for ActionKindSignAndBundle: an
// unsigned transaction list the client must sign and return for bundling.
type SignAndBundlePayload struct {
	Reason            string
	TriggerSignature  string
	Source            ActionSource
	TargetMint        string // empty when the source has no target mint yet
	UnsignedTxsBase64 []string
	NeedsUnsignedTxs  bool
}

// PendingAction is the at-most-one opportunity a session is currently
// holding open for its client to sign. A nil *PendingAction means none.
type PendingAction struct {
	Kind          ActionKind
	SignAndBundle *SignAndBundlePayload
}

// NewSignAndBundleAction builds a freshly-armed pending action with an
// empty unsigned-tx list; Materialize fills it in later.
func NewSignAndBundleAction(reason, triggerSignature string, source ActionSource, targetMint string) *PendingAction {
	return &PendingAction{
		Kind: ActionKindSignAndBundle,
		SignAndBundle: &SignAndBundlePayload{
			Reason:            reason,
			TriggerSignature:  triggerSignature,
			Source:            source,
			TargetMint:        targetMint,
			UnsignedTxsBase64: []string{},
			NeedsUnsignedTxs:  true,
		},
	}
}
