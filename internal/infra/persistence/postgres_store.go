// Package persistence implements the append-only ChainStore against
// Postgres (production) and memory (tests, dev mode).
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainproof-io/chainproof/internal/domain"
	apperrors "github.com/chainproof-io/chainproof/internal/errors"
)

const (
	querySelectTipForUpdate = `
		SELECT sequence_id, curr_hash
		FROM audit_chain
		ORDER BY sequence_id DESC
		LIMIT 1
		FOR UPDATE`

	querySelectTip = `
		SELECT curr_hash
		FROM audit_chain
		ORDER BY sequence_id DESC
		LIMIT 1`

	queryInsertEntry = `
		INSERT INTO audit_chain
			(id, sequence_id, action, category, actor_id, target_id, target_type,
			 ip_address, metadata, ts, prev_hash, curr_hash, signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	queryScanAll = `
		SELECT id, sequence_id, action, category, actor_id, target_id, target_type,
		       ip_address, metadata, ts, prev_hash, curr_hash, signature
		FROM audit_chain
		ORDER BY sequence_id ASC`
)

// Postgres error codes that mean another appender won the race.
const (
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
)

// PostgresChainStore persists the chain in a single audit_chain table.
// AppendIfTip runs in a serializable transaction with a tip row lock;
// a unique index on prev_hash is the second line of defense against
// forks, so a lost race is always observed as a conflict, never as two
// entries claiming the same predecessor.
type PostgresChainStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresChainStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresChainStore {
	return &PostgresChainStore{pool: pool, logger: logger}
}

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgUniqueViolation
	}
	return false
}

func (s *PostgresChainStore) AppendIfTip(ctx context.Context, expectedPrevHash string, entry *domain.LogEntry) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("%w: begin: %v", apperrors.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var tipSeq int64
	tip := domain.GenesisHash
	err = tx.QueryRow(ctx, querySelectTipForUpdate).Scan(&tipSeq, &tip)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		if isConflict(err) {
			return apperrors.ErrTipConflict
		}
		return fmt.Errorf("%w: read tip: %v", apperrors.ErrStoreUnavailable, err)
	}

	if tip != expectedPrevHash {
		return apperrors.ErrTipConflict
	}
	entry.SequenceID = tipSeq + 1

	_, err = tx.Exec(ctx, queryInsertEntry,
		entry.ID, entry.SequenceID, entry.Action, string(entry.Category),
		entry.ActorID, entry.TargetID, entry.TargetType, entry.IPAddress,
		string(entry.Metadata), entry.Timestamp,
		entry.PrevHash, entry.CurrHash, entry.Signature)
	if err != nil {
		if isConflict(err) {
			return apperrors.ErrTipConflict
		}
		return fmt.Errorf("%w: insert: %v", apperrors.ErrStoreUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isConflict(err) {
			return apperrors.ErrTipConflict
		}
		return fmt.Errorf("%w: commit: %v", apperrors.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresChainStore) LatestHash(ctx context.Context) (string, error) {
	var tip string
	err := s.pool.QueryRow(ctx, querySelectTip).Scan(&tip)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read tip: %v", apperrors.ErrStoreUnavailable, err)
	}
	return tip, nil
}

func (s *PostgresChainStore) ScanAll(ctx context.Context, fn func(*domain.LogEntry) error) error {
	// Repeatable read keeps the scan from observing a half-committed append.
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("%w: begin scan: %v", apperrors.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, queryScanAll)
	if err != nil {
		return fmt.Errorf("%w: scan: %v", apperrors.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.LogEntry
		var category, metadata string
		if err := rows.Scan(&e.ID, &e.SequenceID, &e.Action, &category,
			&e.ActorID, &e.TargetID, &e.TargetType, &e.IPAddress,
			&metadata, &e.Timestamp, &e.PrevHash, &e.CurrHash, &e.Signature); err != nil {
			return fmt.Errorf("%w: scan row: %v", apperrors.ErrStoreUnavailable, err)
		}
		e.Category = domain.Category(category)
		e.Metadata = []byte(metadata)
		if err := fn(&e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: scan: %v", apperrors.ErrStoreUnavailable, err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresChainStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	return nil
}
