package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/chainproof-io/chainproof/internal/chain"
	"github.com/chainproof-io/chainproof/internal/domain"
	apperrors "github.com/chainproof-io/chainproof/internal/errors"
)

type handler struct {
	appender *chain.Appender
	verifier *chain.Verifier
	store    domain.ChainStore
	logger   *slog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleAppend commits one audit event to the chain. A failed append is
// surfaced as an error, never swallowed: callers must treat their
// enclosing action as failed rather than proceed unaudited.
func (h *handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	var ev domain.AuditEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	entry, err := h.appender.Append(r.Context(), &ev)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidEvent):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		case errors.Is(err, apperrors.ErrSigningUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "signing key unavailable"})
		case errors.Is(err, apperrors.ErrChainWrite), errors.Is(err, apperrors.ErrStoreUnavailable):
			h.logger.ErrorContext(r.Context(), "append failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "audit chain write failed"})
		default:
			h.logger.ErrorContext(r.Context(), "append failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// handleVerify runs a full-chain integrity scan. Corruption is an
// expected outcome and still answers 200; only a storage failure is an
// error status.
func (h *handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	report, err := h.verifier.Verify(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "verification failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "audit store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "store unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
