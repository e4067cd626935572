package domain

import "context"

// ChainStore is the append-only persistence layer for the audit chain.
// It owns sequence allocation and the tip compare, but no hashing logic.
type ChainStore interface {
	// AppendIfTip atomically appends entry only if the current tip hash
	// still equals expectedPrevHash, assigning the entry's SequenceID.
	// Returns ErrTipConflict when another appender moved the tip first.
	AppendIfTip(ctx context.Context, expectedPrevHash string, entry *LogEntry) error

	// LatestHash returns the tip's CurrHash, or GenesisHash when the
	// chain is empty.
	LatestHash(ctx context.Context) (string, error)

	// ScanAll streams every entry in ascending SequenceID order. Each
	// call re-reads from the beginning. Returning an error from fn
	// stops the scan and propagates that error.
	ScanAll(ctx context.Context, fn func(*LogEntry) error) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// Signer seals a chain hash and verifies seals. Implementations range
// from a shared-secret HMAC to an HSM-backed MAC; the appender and
// verifier are agnostic.
type Signer interface {
	Sign(ctx context.Context, digest string) (string, error)
	Verify(ctx context.Context, digest, signature string) (bool, error)
}

// SecretProvider supplies opaque key material from an external source
// (environment, parameter store, vault).
type SecretProvider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// VerificationReport is the outcome of a full-chain integrity scan.
// Corruption is a reportable result, never an error.
type VerificationReport struct {
	Valid bool `json:"valid"`
	// FirstCorruptSequenceID identifies the first entry, in ascending
	// sequence order, that failed a structural check. Nil when valid.
	FirstCorruptSequenceID *int64 `json:"first_corrupt_sequence_id,omitempty"`
	// TotalChecked counts the entries examined, including the entry
	// that failed. Equals the chain length when the chain is valid.
	TotalChecked int64 `json:"total_checked"`
	// Reason names the check that tripped, for operators. Empty when valid.
	Reason string `json:"reason,omitempty"`
}
