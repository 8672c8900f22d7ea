package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/chigozzdevv/tossr/internal/domain"
)

type EventReader interface {
	Events(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error)
	Transfers(ctx context.Context, account string, opts domain.ListOpts) ([]domain.Transfer, error)
}

// EventHandler replays the lifecycle stream and the transfer journal.
type EventHandler struct {
	reader EventReader
	logger *slog.Logger
}

func NewEventHandler(reader EventReader, logger *slog.Logger) *EventHandler {
	return &EventHandler{reader: reader, logger: logger}
}

type streamEvent struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

type eventsResponse struct {
	Events []streamEvent `json:"events"`
	// Next is the id to pass as ?after= to continue.
	Next string `json:"next"`
}

// ListEvents replays events recorded after the given stream id.
// GET /api/events?after=0&count=100
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	count, _ := strconv.Atoi(r.URL.Query().Get("count"))

	msgs, err := h.reader.Events(r.Context(), after, count)
	if err != nil {
		writeDomainError(w, r, h.logger, "list_events", err)
		return
	}
	resp := eventsResponse{Events: make([]streamEvent, 0, len(msgs)), Next: after}
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		resp.Events = append(resp.Events, streamEvent{ID: m.ID, Event: m.Payload})
		resp.Next = m.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListTransfers returns the transfer journal, optionally for one account.
// GET /api/transfers?account=alice&since=2026-01-02T00:00:00Z
func (h *EventHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.reader.Transfers(r.Context(), r.URL.Query().Get("account"), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list_transfers", err)
		return
	}
	if transfers == nil {
		transfers = []domain.Transfer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}
