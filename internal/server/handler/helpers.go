package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/metrics"
	"github.com/chigozzdevv/tossr/internal/server/middleware"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps a domain error code to the HTTP status reported for it.
func statusFor(code string) int {
	switch code {
	case domain.ErrNotFound.Code:
		return http.StatusNotFound
	case domain.ErrUnauthorized.Code:
		return http.StatusForbidden
	case domain.ErrRateLimited.Code:
		return http.StatusTooManyRequests
	case domain.ErrInvalidStake.Code, domain.ErrInvalidHouseEdge.Code,
		domain.ErrInvalidMarketType.Code, domain.ErrAssetMismatch.Code,
		domain.ErrInvalidStreakTarget.Code, domain.ErrInvalidLockTime.Code,
		domain.ErrLockTimeTooLate.Code, domain.ErrNoCommunitySeedsProvided.Code,
		domain.ErrInvalidOutcomeType.Code:
		return http.StatusBadRequest
	case domain.ErrNoCommitment.Code, domain.ErrInvalidCommitment.Code,
		domain.ErrInvalidAttestation.Code, domain.ErrOverflow.Code:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}

// writeDomainError reports err with its domain code when it has one and as
// an opaque 500 otherwise.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	metrics.OperationsTotal.WithLabelValues(op, metrics.ResultCode(err)).Inc()
	var de *domain.Error
	if errors.As(err, &de) {
		writeJSON(w, statusFor(de.Code), errorResponse{Error: de.Message, Code: de.Code})
		return
	}
	logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.Any("error", err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// okJSON records a successful operation and writes v.
func okJSON(w http.ResponseWriter, op string, status int, v any) {
	metrics.OperationsTotal.WithLabelValues(op, "ok").Inc()
	writeJSON(w, status, v)
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// caller returns the request identity or writes 401 when there is none.
func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := middleware.CallerFrom(r.Context())
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error: "missing " + middleware.HeaderCaller + " header",
			Code:  domain.ErrUnauthorized.Code,
		})
		return "", false
	}
	return id, true
}

// roundKey reads {market} and {number} path parameters.
func roundKey(w http.ResponseWriter, r *http.Request) (domain.RoundKey, bool) {
	n, err := strconv.ParseUint(r.PathValue("number"), 10, 64)
	if err != nil || n == 0 {
		writeError(w, http.StatusBadRequest, "round number must be a positive integer")
		return domain.RoundKey{}, false
	}
	return domain.RoundKey{MarketID: r.PathValue("market"), Number: n}, true
}

// parseListOpts extracts pagination and time window parameters from the
// query string. Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	limit = min(limit, 500)

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	opts := domain.ListOpts{Limit: limit, Offset: offset}
	if t, err := time.Parse(time.RFC3339, q.Get("since")); err == nil {
		opts.Since = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("until")); err == nil {
		opts.Until = &t
	}
	return opts
}
