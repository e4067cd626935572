// Package canonical produces the deterministic byte encoding that the
// audit chain hashes. The same logical entry must always encode to the
// same bytes: the preimage is a struct with a fixed field order (never a
// bare map), metadata keys are emitted in lexicographic order, and
// timestamps enter as UTC Unix nanoseconds so no locale or formatting
// can leak into the digest.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/chainproof-io/chainproof/internal/domain"
)

// preimage fixes the order and representation of every hashed field.
// Optional fields are always present and encode as JSON null when
// absent, never omitted.
type preimage struct {
	PrevHash   string          `json:"prev_hash"`
	Action     string          `json:"action"`
	Category   domain.Category `json:"category"`
	ActorID    *string         `json:"actor_id"`
	TargetID   *string         `json:"target_id"`
	TargetType *string         `json:"target_type"`
	IPAddress  *string         `json:"ip_address"`
	Metadata   json.RawMessage `json:"metadata"`
	Timestamp  int64           `json:"ts"`
}

// Metadata canonicalizes an event's metadata map. encoding/json sorts
// map keys lexicographically at every nesting level, which gives one
// byte representation per logical value regardless of insertion order.
// A nil or empty map canonicalizes to {}.
func Metadata(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage(`{}`), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("canonicalize metadata: %w", err)
	}
	return b, nil
}

// EncodeEntry serializes the hashed fields of an entry. The entry's
// Metadata must already be canonical JSON (as produced by Metadata and
// persisted verbatim), so appending and verifying share one code path.
func EncodeEntry(e *domain.LogEntry) ([]byte, error) {
	meta := e.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	b, err := json.Marshal(preimage{
		PrevHash:   e.PrevHash,
		Action:     e.Action,
		Category:   e.Category,
		ActorID:    e.ActorID,
		TargetID:   e.TargetID,
		TargetType: e.TargetType,
		IPAddress:  e.IPAddress,
		Metadata:   meta,
		Timestamp:  e.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	return b, nil
}

// EntryHash recomputes an entry's chain hash from its stored fields and
// PrevHash: hex(SHA-256(EncodeEntry(e))).
func EntryHash(e *domain.LogEntry) (string, error) {
	b, err := EncodeEntry(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
