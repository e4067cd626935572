package domain

import "encoding/json"

// GenesisHash is the fixed previous-hash sentinel carried by the first
// entry of an otherwise-empty chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// LogEntry is one immutable record of the audit chain. Every field that
// participates in hashing is persisted in exactly the representation
// used to compute CurrHash: Timestamp as UTC Unix nanoseconds and
// Metadata as the canonical JSON text, so verification can recompute
// the hash byte for byte from stored columns.
type LogEntry struct {
	ID         string          `json:"id"`
	SequenceID int64           `json:"sequence_id"`
	Action     string          `json:"action"`
	Category   Category        `json:"category"`
	ActorID    *string         `json:"actor_id"`
	TargetID   *string         `json:"target_id"`
	TargetType *string         `json:"target_type"`
	IPAddress  *string         `json:"ip_address"`
	Metadata   json.RawMessage `json:"metadata"`
	Timestamp  int64           `json:"timestamp"`
	PrevHash   string          `json:"prev_hash"`
	CurrHash   string          `json:"curr_hash"`
	Signature  string          `json:"signature"`
}
