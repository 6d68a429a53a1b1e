package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quillhq/quill/internal/domain/request"
	"github.com/quillhq/quill/internal/domain/stage"
	"github.com/quillhq/quill/internal/service"
)

// Handlers bundles the services the HTTP layer exposes.
type Handlers struct {
	Pipeline *service.PipelineService
}

type submitResponse struct {
	RequestID string         `json:"request_id"`
	Status    request.Status `json:"status"`
}

type statusResponse struct {
	RequestID   string              `json:"request_id"`
	Topic       string              `json:"topic"`
	ContentType request.ContentType `json:"content_type"`
	Status      request.Status      `json:"status"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

func toStatusResponse(r *request.Request) statusResponse {
	return statusResponse{
		RequestID:   r.ID,
		Topic:       r.Topic,
		ContentType: r.ContentType,
		Status:      r.Status,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CompletedAt: r.CompletedAt,
	}
}

type listResponse struct {
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
	Items  []request.Summary `json:"items"`
}

// SubmitContent accepts a new content request and queues a pipeline run.
func (h *Handlers) SubmitContent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[request.CreateRequest](w, r)
	if !ok {
		return
	}

	created, err := h.Pipeline.Submit(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "content request not found")
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{RequestID: created.ID, Status: created.Status})
}

// GetContent returns the finished content piece for a completed request.
func (h *Handlers) GetContent(w http.ResponseWriter, r *http.Request) {
	piece, err := h.Pipeline.GetContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "content request not found")
		return
	}
	writeJSON(w, http.StatusOK, piece)
}

// GetContentStatus returns the current state of a request.
func (h *Handlers) GetContentStatus(w http.ResponseWriter, r *http.Request) {
	req, err := h.Pipeline.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "content request not found")
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(req))
}

// CancelContent cancels a request that has not yet reached scoring.
func (h *Handlers) CancelContent(w http.ResponseWriter, r *http.Request) {
	req, err := h.Pipeline.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "content request not found")
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(req))
}

// ListContent returns a page of request summaries, newest first.
func (h *Handlers) ListContent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	offset := queryInt(r, "offset", 0)

	items, total, err := h.Pipeline.List(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, err, "content request not found")
		return
	}
	if items == nil {
		items = []request.Summary{}
	}

	writeJSON(w, http.StatusOK, listResponse{Total: total, Limit: limit, Offset: offset, Items: items})
}

// ListContentStages returns the stage task history for a request.
func (h *Handlers) ListContentStages(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Pipeline.Stages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "content request not found")
		return
	}
	if tasks == nil {
		tasks = []stage.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// GetStats returns aggregate pipeline counters.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Pipeline.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err, "content request not found")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
