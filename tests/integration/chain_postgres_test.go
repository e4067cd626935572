package integration_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainproof-io/chainproof/internal/chain"
	"github.com/chainproof-io/chainproof/internal/domain"
	"github.com/chainproof-io/chainproof/internal/infra/persistence"
	"github.com/chainproof-io/chainproof/internal/signing"
)

// setupTestDB connects to the database named by
// CHAINPROOF_TEST_DATABASE_URL. The audit_chain schema must already be
// migrated (cmd/utils/migrate.go). Tests are skipped when the variable
// is unset so the unit suite stays self-contained.
func setupTestDB(t *testing.T) (*persistence.PostgresChainStore, func()) {
	t.Helper()
	url := os.Getenv("CHAINPROOF_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CHAINPROOF_TEST_DATABASE_URL not set")
	}

	dbpool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(dbpool.Close)

	cleanup := func() {
		_, err := dbpool.Exec(context.Background(), "DELETE FROM audit_chain")
		require.NoError(t, err)
	}
	cleanup()

	return persistence.NewPostgresChainStore(dbpool, slog.Default()), cleanup
}

func testAppender(t *testing.T, store domain.ChainStore) (*chain.Appender, *chain.Verifier) {
	t.Helper()
	signer, err := signing.NewHMACSigner([]byte("integration-test-key"))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return chain.NewAppender(store, signer, logger, chain.AppenderConfig{}),
		chain.NewVerifier(store, signer, logger)
}

func strptr(s string) *string { return &s }

func TestPostgresChainAppendAndVerify(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	appender, verifier := testAppender(t, store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := appender.Append(ctx, &domain.AuditEvent{
			Action:   "finance.transaction.create",
			Category: domain.CategoryFinance,
			ActorID:  strptr("user-7"),
			Metadata: map[string]any{"amount": 125.50, "currency": "EUR"},
		})
		require.NoError(t, err)
	}

	report, err := verifier.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, int64(5), report.TotalChecked)
}

func TestPostgresChainSurvivesRoundTrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	appender, _ := testAppender(t, store)
	ctx := context.Background()

	written, err := appender.Append(ctx, &domain.AuditEvent{
		Action:   "users.role.change",
		Category: domain.CategoryUsers,
		ActorID:  strptr("admin-1"),
		TargetID: strptr("user-42"),
		Metadata: map[string]any{"role": "auditor", "nested": map[string]any{"b": 2, "a": 1}},
	})
	require.NoError(t, err)

	var read *domain.LogEntry
	err = store.ScanAll(ctx, func(e *domain.LogEntry) error {
		read = e
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, read)

	// Every hashed field must come back byte for byte.
	assert.Equal(t, written.CurrHash, read.CurrHash)
	assert.Equal(t, written.Timestamp, read.Timestamp)
	assert.Equal(t, string(written.Metadata), string(read.Metadata))
	assert.Equal(t, written.Signature, read.Signature)
}

func TestPostgresChainConcurrentAppends(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	appender, verifier := testAppender(t, store)
	ctx := context.Background()

	const writers = 6
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = appender.Append(ctx, &domain.AuditEvent{
				Action:   "security.permission.grant",
				Category: domain.CategorySecurity,
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	report, err := verifier.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, int64(writers), report.TotalChecked)
}
