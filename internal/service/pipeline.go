package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	qotel "github.com/quillhq/quill/internal/adapter/otel"
	"github.com/quillhq/quill/internal/adapter/ws"
	"github.com/quillhq/quill/internal/agent"
	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/domain/content"
	"github.com/quillhq/quill/internal/domain/request"
	"github.com/quillhq/quill/internal/domain/stage"
	"github.com/quillhq/quill/internal/port/broadcast"
	"github.com/quillhq/quill/internal/port/database"
	"github.com/quillhq/quill/internal/port/messagequeue"
	"github.com/quillhq/quill/internal/scoring"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// cancelReason is the stored failure reason for user-cancelled requests.
const cancelReason = "cancelled"

// PipelineService drives content requests through the research, writing and
// scoring stages and serves the request-facing API operations.
type PipelineService struct {
	store   database.Store
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	steps   []agent.Step
	scorer  *scoring.Scorer
	metrics *qotel.Metrics
	cfg     config.Pipeline
}

// NewPipelineService creates a PipelineService. Steps run in the given
// order; the stock pipeline is research then writing.
func NewPipelineService(store database.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, steps []agent.Step, scorer *scoring.Scorer, cfg config.Pipeline) *PipelineService {
	return &PipelineService{
		store:  store,
		queue:  queue,
		hub:    hub,
		steps:  steps,
		scorer: scorer,
		cfg:    cfg,
	}
}

// SetMetrics attaches metric instruments. Telemetry is optional; with no
// instruments attached the service records nothing.
func (s *PipelineService) SetMetrics(m *qotel.Metrics) {
	s.metrics = m
}

// Submit validates and stores a new content request, publishes it for
// worker pickup and returns immediately with the queued request.
func (s *PipelineService) Submit(ctx context.Context, req request.CreateRequest) (*request.Request, error) {
	if req.ContentType == "" {
		req.ContentType = request.TypeBlogPost
	}
	if strings.TrimSpace(req.TargetAudience) == "" {
		req.TargetAudience = "general"
	}
	if err := req.Validate(s.cfg.MaxWordCount); err != nil {
		return nil, err
	}

	r, err := s.store.CreateRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	data, err := json.Marshal(messagequeue.RequestQueuedPayload{RequestID: r.ID})
	if err != nil {
		return r, fmt.Errorf("marshal queued payload: %w", err)
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectRequestQueued, data); err != nil {
		// The request is saved in the store, so we return it even if the
		// queue publish fails.
		slog.Error("failed to publish queued request", "request_id", r.ID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.RequestsSubmitted.Add(ctx, 1, metric.WithAttributes(
			attribute.String("content_type", string(r.ContentType)),
		))
	}
	s.hub.BroadcastEvent(ctx, ws.EventRequestStatus, ws.RequestStatusEvent{
		RequestID: r.ID,
		Status:    string(r.Status),
	})

	slog.Info("content request submitted",
		"request_id", r.ID, "topic", r.Topic, "content_type", r.ContentType)
	return r, nil
}

// GetStatus returns the full request record including its current status.
func (s *PipelineService) GetStatus(ctx context.Context, id string) (*request.Request, error) {
	return s.store.GetRequest(ctx, id)
}

// GetContent returns the finished piece for a completed request. Requests
// in any other status, including failed ones, yield ErrNotReady: content is
// never served partially.
func (s *PipelineService) GetContent(ctx context.Context, id string) (*content.Piece, error) {
	r, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != request.StatusCompleted {
		return nil, fmt.Errorf("request %s is %s: %w", id, r.Status, domain.ErrNotReady)
	}
	return s.store.GetPieceByRequest(ctx, id)
}

// Cancel marks a queued, researching or writing request failed with reason
// "cancelled". A running pipeline observes the flip at its next stage
// boundary and stops. Requests in scoring or a terminal status cannot be
// cancelled.
func (s *PipelineService) Cancel(ctx context.Context, id string) (*request.Request, error) {
	for {
		r, err := s.store.GetRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		if !r.Status.Cancellable() {
			return nil, fmt.Errorf("cannot cancel request %s in status %s: %w", id, r.Status, domain.ErrInvalidState)
		}

		err = s.store.UpdateRequestStatus(ctx, id, r.Status, request.StatusFailed, cancelReason)
		if errors.Is(err, domain.ErrConflict) {
			// The pipeline advanced underneath us; re-check the status.
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	if s.metrics != nil {
		s.metrics.RunsCancelled.Add(ctx, 1)
	}
	s.hub.BroadcastEvent(ctx, ws.EventRequestStatus, ws.RequestStatusEvent{
		RequestID: id,
		Status:    string(request.StatusFailed),
		Error:     cancelReason,
	})
	slog.Info("content request cancelled", "request_id", id)

	return s.store.GetRequest(ctx, id)
}

// List returns request summaries ordered most recent first, plus the total
// request count for pagination.
func (s *PipelineService) List(ctx context.Context, limit, offset int) ([]request.Summary, int, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	items, err := s.store.ListRequests(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	counts, err := s.store.CountRequestsByStatus(ctx)
	if err != nil {
		return nil, 0, err
	}
	var total int
	for _, n := range counts {
		total += n
	}
	return items, total, nil
}

// Stats summarizes pipeline throughput across all requests.
type Stats struct {
	TotalRequests int     `json:"total_requests"`
	Completed     int     `json:"completed"`
	Failed        int     `json:"failed"`
	Pending       int     `json:"pending"`
	SuccessRate   float64 `json:"success_rate"`
}

// Stats aggregates request counts by outcome. Pending covers every
// non-terminal status. SuccessRate is completed over total as a percentage,
// zero while nothing has been submitted.
func (s *PipelineService) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.store.CountRequestsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		Completed: counts[request.StatusCompleted],
		Failed:    counts[request.StatusFailed],
	}
	for _, n := range counts {
		st.TotalRequests += n
	}
	st.Pending = st.TotalRequests - st.Completed - st.Failed
	if st.TotalRequests > 0 {
		st.SuccessRate = float64(st.Completed) / float64(st.TotalRequests) * 100
	}
	return st, nil
}

// Stages returns the stage task records for a request in execution order.
func (s *PipelineService) Stages(ctx context.Context, id string) ([]stage.Task, error) {
	if _, err := s.store.GetRequest(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListStageTasks(ctx, id)
}
