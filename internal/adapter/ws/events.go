package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventRequestStatus = "request.status"
	EventStageStatus   = "stage.status"
	EventContentReady  = "content.ready"
)

// RequestStatusEvent is broadcast when a content request's status changes.
type RequestStatusEvent struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// StageStatusEvent is broadcast when a pipeline stage starts or finishes.
type StageStatusEvent struct {
	RequestID string `json:"request_id"`
	Stage     string `json:"stage"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// ContentReadyEvent is broadcast when a finished piece becomes retrievable.
type ContentReadyEvent struct {
	RequestID    string  `json:"request_id"`
	PieceID      string  `json:"piece_id"`
	Title        string  `json:"title"`
	WordCount    int     `json:"word_count"`
	OverallScore float64 `json:"overall_score"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
