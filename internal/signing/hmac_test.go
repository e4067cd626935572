package signing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chainproof-io/chainproof/internal/errors"
	"github.com/chainproof-io/chainproof/internal/signing"
)

type staticSecrets map[string]string

func (s staticSecrets) GetSecret(_ context.Context, name string) (string, error) {
	v, ok := s[name]
	if !ok {
		return "", errors.New("secret not found")
	}
	return v, nil
}

func TestHMACSignerRoundTrip(t *testing.T) {
	signer, err := signing.NewHMACSigner([]byte("audit-chain-secret"))
	require.NoError(t, err)
	ctx := context.Background()

	digest := "a3f1c2d4e5a3f1c2d4e5a3f1c2d4e5a3f1c2d4e5a3f1c2d4e5a3f1c2d4e5a3f1"
	sig, err := signer.Sign(ctx, digest)
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	ok, err := signer.Verify(ctx, digest, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	sig2, err := signer.Sign(ctx, digest)
	require.NoError(t, err)
	assert.Equal(t, sig, sig2, "signing must be deterministic for a fixed key")
}

func TestHMACSignerRejectsTamper(t *testing.T) {
	signer, err := signing.NewHMACSigner([]byte("audit-chain-secret"))
	require.NoError(t, err)
	ctx := context.Background()

	digest := "a3f1c2d4e5a3f1c2d4e5a3f1c2d4e5a3f1c2d4e5a3f1c2d4e5a3f1c2d4e5a3f1"
	sig, err := signer.Sign(ctx, digest)
	require.NoError(t, err)

	otherDigest := "b" + digest[1:]
	ok, err := signer.Verify(ctx, otherDigest, sig)
	require.NoError(t, err)
	assert.False(t, ok, "seal over one digest must not verify another")

	ok, err = signer.Verify(ctx, digest, "not-hex")
	require.NoError(t, err)
	assert.False(t, ok, "malformed signature is a failed verification, not an error")

	other, err := signing.NewHMACSigner([]byte("different-secret"))
	require.NoError(t, err)
	ok, err = other.Verify(ctx, digest, sig)
	require.NoError(t, err)
	assert.False(t, ok, "seal must not verify under a different key")
}

func TestHMACSignerFailsClosedWithoutKey(t *testing.T) {
	_, err := signing.NewHMACSigner(nil)
	assert.ErrorIs(t, err, apperrors.ErrSigningUnavailable)

	_, err = signing.LoadHMACSigner(context.Background(), staticSecrets{}, "missing")
	assert.ErrorIs(t, err, apperrors.ErrSigningUnavailable)
}

func TestLoadHMACSigner(t *testing.T) {
	secrets := staticSecrets{"chain_key": "super-secret"}
	signer, err := signing.LoadHMACSigner(context.Background(), secrets, "chain_key")
	require.NoError(t, err)

	direct, err := signing.NewHMACSigner([]byte("super-secret"))
	require.NoError(t, err)

	ctx := context.Background()
	digest := "0011223344556677001122334455667700112233445566770011223344556677"
	s1, err := signer.Sign(ctx, digest)
	require.NoError(t, err)
	s2, err := direct.Sign(ctx, digest)
	require.NoError(t, err)
	assert.Equal(t, s2, s1)
}
