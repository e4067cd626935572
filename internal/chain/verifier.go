package chain

import (
	"context"
	"errors"
	"log/slog"

	"github.com/chainproof-io/chainproof/internal/canonical"
	"github.com/chainproof-io/chainproof/internal/domain"
)

// errStopScan terminates the scan after the first structural failure.
// A broken link invalidates everything after it by construction, so
// continuing would produce meaningless results.
var errStopScan = errors.New("stop scan")

// Verifier re-derives the full chain from stored fields and reports the
// first corrupt entry. Corruption is a normal, reportable outcome;
// Verify only returns an error for storage-layer failures.
type Verifier struct {
	store  domain.ChainStore
	signer domain.Signer
	logger *slog.Logger
}

func NewVerifier(store domain.ChainStore, signer domain.Signer, logger *slog.Logger) *Verifier {
	return &Verifier{store: store, signer: signer, logger: logger}
}

// Verify scans every entry in ascending sequence order and validates,
// per entry: contiguous sequence allocation, linkage to the previous
// entry's hash (the first entry must link to the genesis sentinel),
// byte-exact recomputation of the stored hash, and the seal. It stops
// at the first failure.
func (v *Verifier) Verify(ctx context.Context) (*domain.VerificationReport, error) {
	report := &domain.VerificationReport{Valid: true}
	prevHash := domain.GenesisHash
	var lastSeq int64

	fail := func(e *domain.LogEntry, reason string) error {
		seq := e.SequenceID
		report.Valid = false
		report.FirstCorruptSequenceID = &seq
		report.Reason = reason
		return errStopScan
	}

	err := v.store.ScanAll(ctx, func(e *domain.LogEntry) error {
		report.TotalChecked++

		if report.TotalChecked == 1 {
			if e.PrevHash != domain.GenesisHash {
				return fail(e, "first entry does not link to the genesis sentinel")
			}
		} else {
			if e.SequenceID != lastSeq+1 {
				return fail(e, "sequence gap")
			}
			if e.PrevHash != prevHash {
				return fail(e, "previous hash does not match predecessor")
			}
		}

		recomputed, err := canonical.EntryHash(e)
		if err != nil {
			return fail(e, "entry is not canonically encodable")
		}
		if recomputed != e.CurrHash {
			return fail(e, "stored hash does not match recomputed hash")
		}

		ok, err := v.signer.Verify(ctx, e.CurrHash, e.Signature)
		if err != nil {
			return err
		}
		if !ok {
			return fail(e, "signature does not verify")
		}

		prevHash = e.CurrHash
		lastSeq = e.SequenceID
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return nil, err
	}

	if report.Valid {
		v.logger.InfoContext(ctx, "chain verification passed",
			slog.Int64("total_checked", report.TotalChecked))
	} else {
		v.logger.WarnContext(ctx, "chain verification failed",
			slog.Int64("first_corrupt_sequence_id", *report.FirstCorruptSequenceID),
			slog.String("reason", report.Reason),
			slog.Int64("total_checked", report.TotalChecked))
	}
	return report, nil
}
