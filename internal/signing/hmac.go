// Package signing seals chain hashes. A seal proves the hash was
// produced by a holder of the signing key, so tampering is detectable
// even by an attacker who can recompute hashes.
package signing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/chainproof-io/chainproof/internal/domain"
	apperrors "github.com/chainproof-io/chainproof/internal/errors"
)

// HMACSigner seals hashes with HMAC-SHA256 over a shared secret. The
// key is supplied externally and never stored in the chain.
type HMACSigner struct {
	key []byte
}

// NewHMACSigner fails closed when no key material is supplied, so an
// appender can never be wired up unsealed.
func NewHMACSigner(key []byte) (*HMACSigner, error) {
	if len(key) == 0 {
		return nil, apperrors.ErrSigningUnavailable
	}
	return &HMACSigner{key: key}, nil
}

// LoadHMACSigner resolves the key from a secret provider and builds a
// signer. A missing or empty secret is reported as ErrSigningUnavailable.
func LoadHMACSigner(ctx context.Context, provider domain.SecretProvider, name string) (*HMACSigner, error) {
	secret, err := provider.GetSecret(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSigningUnavailable, err)
	}
	return NewHMACSigner([]byte(secret))
}

func (s *HMACSigner) mac(digest string) []byte {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte(digest))
	return m.Sum(nil)
}

// Sign seals the given hex digest.
func (s *HMACSigner) Sign(_ context.Context, digest string) (string, error) {
	return hex.EncodeToString(s.mac(digest)), nil
}

// Verify reports whether signature is a valid seal over digest. A
// malformed signature is a failed verification, not an error.
func (s *HMACSigner) Verify(_ context.Context, digest, signature string) (bool, error) {
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return false, nil
	}
	return hmac.Equal(s.mac(digest), decoded), nil
}
