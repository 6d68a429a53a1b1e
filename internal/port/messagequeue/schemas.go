package messagequeue

// RequestQueuedPayload is the schema for content.requests.queued messages.
type RequestQueuedPayload struct {
	RequestID string `json:"request_id"`
}
