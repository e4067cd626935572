package chain_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainproof-io/chainproof/internal/chain"
	"github.com/chainproof-io/chainproof/internal/domain"
	apperrors "github.com/chainproof-io/chainproof/internal/errors"
	"github.com/chainproof-io/chainproof/internal/infra/persistence"
	"github.com/chainproof-io/chainproof/internal/signing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSigner(t *testing.T) *signing.HMACSigner {
	t.Helper()
	signer, err := signing.NewHMACSigner([]byte("test-chain-key"))
	require.NoError(t, err)
	return signer
}

func strptr(s string) *string { return &s }

func sampleEvent(action string) *domain.AuditEvent {
	return &domain.AuditEvent{
		Action:   action,
		Category: domain.CategorySecurity,
		ActorID:  strptr("admin-1"),
		Metadata: map[string]any{"source": "test"},
	}
}

func TestAppendLinksEntries(t *testing.T) {
	store := persistence.NewMemoryChainStore()
	appender := chain.NewAppender(store, testSigner(t), testLogger(), chain.AppenderConfig{})
	ctx := context.Background()

	first, err := appender.Append(ctx, sampleEvent("auth.login"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.SequenceID)
	assert.Equal(t, domain.GenesisHash, first.PrevHash)
	assert.Len(t, first.CurrHash, 64)
	assert.NotEmpty(t, first.Signature)

	second, err := appender.Append(ctx, sampleEvent("auth.logout"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.SequenceID)
	assert.Equal(t, first.CurrHash, second.PrevHash)
}

func TestAppendRejectsInvalidEvent(t *testing.T) {
	store := persistence.NewMemoryChainStore()
	appender := chain.NewAppender(store, testSigner(t), testLogger(), chain.AppenderConfig{})
	ctx := context.Background()

	_, err := appender.Append(ctx, &domain.AuditEvent{Category: domain.CategoryAuth})
	assert.ErrorIs(t, err, apperrors.ErrInvalidEvent)

	_, err = appender.Append(ctx, &domain.AuditEvent{Action: "x", Category: "gossip"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidEvent)

	assert.Equal(t, 0, store.Len(), "invalid events must not reach the store")
}

func TestSequentialAppendsVerify(t *testing.T) {
	store := persistence.NewMemoryChainStore()
	signer := testSigner(t)
	appender := chain.NewAppender(store, signer, testLogger(), chain.AppenderConfig{})
	verifier := chain.NewVerifier(store, signer, testLogger())
	ctx := context.Background()

	const n = 12
	for i := 0; i < n; i++ {
		_, err := appender.Append(ctx, sampleEvent("finance.transaction.create"))
		require.NoError(t, err)
	}

	report, err := verifier.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, int64(n), report.TotalChecked)
	assert.Nil(t, report.FirstCorruptSequenceID)
}

func TestConcurrentAppendsNeverFork(t *testing.T) {
	store := persistence.NewMemoryChainStore()
	signer := testSigner(t)
	appender := chain.NewAppender(store, signer, testLogger(), chain.AppenderConfig{
		MaxAttempts:    10,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = appender.Append(ctx, sampleEvent("users.update"))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}
	assert.Equal(t, writers, store.Len())

	// Exactly one winner per tip: no two entries may claim the same predecessor.
	seen := make(map[string]int64)
	err := store.ScanAll(ctx, func(e *domain.LogEntry) error {
		if prev, dup := seen[e.PrevHash]; dup {
			t.Fatalf("entries %d and %d share prev hash %s", prev, e.SequenceID, e.PrevHash)
		}
		seen[e.PrevHash] = e.SequenceID
		return nil
	})
	require.NoError(t, err)

	report, err := chain.NewVerifier(store, signer, testLogger()).Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, int64(writers), report.TotalChecked)
}

// conflictingStore always reports a moved tip, simulating a writer that
// loses every race.
type conflictingStore struct {
	persistence.MemoryChainStore
	attempts int
}

func (s *conflictingStore) AppendIfTip(context.Context, string, *domain.LogEntry) error {
	s.attempts++
	return apperrors.ErrTipConflict
}

func TestAppendFailsAfterBoundedRetries(t *testing.T) {
	store := &conflictingStore{}
	appender := chain.NewAppender(store, testSigner(t), testLogger(), chain.AppenderConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})

	_, err := appender.Append(context.Background(), sampleEvent("tools.run"))
	assert.ErrorIs(t, err, apperrors.ErrChainWrite)
	assert.Equal(t, 3, store.attempts)
}

func TestAppendFailsClosedWithoutSigner(t *testing.T) {
	store := persistence.NewMemoryChainStore()
	appender := chain.NewAppender(store, nil, testLogger(), chain.AppenderConfig{})

	_, err := appender.Append(context.Background(), sampleEvent("auth.login"))
	assert.ErrorIs(t, err, apperrors.ErrSigningUnavailable)
	assert.Equal(t, 0, store.Len(), "no store I/O may happen without a signer")
}
