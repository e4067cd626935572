// Package chain orchestrates the hash-chained audit ledger: the
// appender links, seals, and commits new entries against the store's
// tip; the verifier re-derives the whole chain and reports the first
// point of corruption.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/chainproof-io/chainproof/internal/canonical"
	"github.com/chainproof-io/chainproof/internal/domain"
	apperrors "github.com/chainproof-io/chainproof/internal/errors"
)

// AppenderConfig bounds the optimistic retry loop around AppendIfTip.
type AppenderConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c AppenderConfig) withDefaults() AppenderConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 10 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 250 * time.Millisecond
	}
	return c
}

// Appender commits audit events to the chain. Safe for concurrent use:
// the store's compare-and-append is the serialization point, so racing
// appenders never fork the chain; the loser re-reads the new tip and
// retries.
type Appender struct {
	store  domain.ChainStore
	signer domain.Signer
	logger *slog.Logger
	cfg    AppenderConfig
	now    func() time.Time
}

func NewAppender(store domain.ChainStore, signer domain.Signer, logger *slog.Logger, cfg AppenderConfig) *Appender {
	return &Appender{
		store:  store,
		signer: signer,
		logger: logger,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}
}

func validateEvent(ev *domain.AuditEvent) error {
	if ev == nil || ev.Action == "" {
		return fmt.Errorf("%w: action is required", apperrors.ErrInvalidEvent)
	}
	if !ev.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", apperrors.ErrInvalidEvent, ev.Category)
	}
	return nil
}

// Append derives a LogEntry from ev, links it to the current tip, seals
// it, and commits it. Exactly one entry is persisted, or none: a tip
// conflict is retried against the new tip up to MaxAttempts times, then
// the call fails with ErrChainWrite so the enclosing business action
// can fail rather than proceed unaudited.
func (a *Appender) Append(ctx context.Context, ev *domain.AuditEvent) (*domain.LogEntry, error) {
	if err := validateEvent(ev); err != nil {
		return nil, err
	}
	if a.signer == nil {
		return nil, apperrors.ErrSigningUnavailable
	}

	meta, err := canonical.Metadata(ev.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidEvent, err)
	}

	var lastErr error
	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		prev, err := a.store.LatestHash(ctx)
		if err != nil {
			return nil, fmt.Errorf("read tip: %w", err)
		}

		entry := &domain.LogEntry{
			ID:         uuid.NewString(),
			Action:     ev.Action,
			Category:   ev.Category,
			ActorID:    ev.ActorID,
			TargetID:   ev.TargetID,
			TargetType: ev.TargetType,
			IPAddress:  ev.IPAddress,
			Metadata:   meta,
			Timestamp:  a.now().UTC().UnixNano(),
			PrevHash:   prev,
		}

		hash, err := canonical.EntryHash(entry)
		if err != nil {
			return nil, fmt.Errorf("hash entry: %w", err)
		}
		entry.CurrHash = hash

		sig, err := a.signer.Sign(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrSigningUnavailable, err)
		}
		entry.Signature = sig

		err = a.store.AppendIfTip(ctx, prev, entry)
		if err == nil {
			a.logger.InfoContext(ctx, "audit entry appended",
				slog.Int64("sequence_id", entry.SequenceID),
				slog.String("action", entry.Action),
				slog.String("category", string(entry.Category)))
			return entry, nil
		}
		if !errors.Is(err, apperrors.ErrTipConflict) {
			return nil, fmt.Errorf("append entry: %w", err)
		}

		lastErr = err
		a.logger.WarnContext(ctx, "tip moved during append, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", a.cfg.MaxAttempts))
		if err := a.backoff(ctx, attempt); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: after %d attempts: %v", apperrors.ErrChainWrite, a.cfg.MaxAttempts, lastErr)
}

func (a *Appender) backoff(ctx context.Context, attempt int) error {
	delay := a.cfg.InitialBackoff * time.Duration(1<<uint(attempt-1))
	if delay > a.cfg.MaxBackoff {
		delay = a.cfg.MaxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	select {
	case <-time.After(delay + jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
