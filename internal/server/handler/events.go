package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/clawstreet/clawd/internal/domain"
	"github.com/clawstreet/clawd/internal/engine"
)

// EventsHandler lets external indexers page through the durable event stream.
type EventsHandler struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(bus domain.SignalBus, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{bus: bus, logger: logger}
}

type streamEntry struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// List reads events appended after the given stream cursor.
// GET /api/events?after=0&count=100
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	after := q.Get("after")
	if after == "" {
		after = "0"
	}
	count := 100
	if v := q.Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			count = n
		}
	}

	msgs, err := h.bus.StreamRead(r.Context(), engine.StreamEvents, after, count)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stream read", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	entries := make([]streamEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, streamEntry{ID: m.ID, Event: json.RawMessage(m.Payload)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}
