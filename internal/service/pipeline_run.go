package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	qotel "github.com/quillhq/quill/internal/adapter/otel"
	"github.com/quillhq/quill/internal/adapter/ws"
	"github.com/quillhq/quill/internal/agent"
	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/domain/content"
	"github.com/quillhq/quill/internal/domain/request"
	"github.com/quillhq/quill/internal/domain/stage"
)

// Run executes the full pipeline for a queued request: research, writing,
// scoring, finalization. It is invoked by the queue worker.
//
// An error is returned only while the request is still queued, where
// redelivery can retry the pickup. Once the run has left queued, failures
// are recorded on the request itself and Run returns nil so the message is
// acked: stages are never retried.
func (s *PipelineService) Run(ctx context.Context, requestID string) error {
	r, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Warn("queued request no longer exists", "request_id", requestID)
			return nil
		}
		return fmt.Errorf("load queued request: %w", err)
	}
	if r.Status != request.StatusQueued {
		slog.Info("skipping pipeline run", "request_id", r.ID, "status", r.Status)
		return nil
	}

	ctx, span := qotel.StartRunSpan(ctx, r.ID, string(r.ContentType))
	defer span.End()
	started := time.Now()

	slog.Info("pipeline run started", "request_id", r.ID, "topic", r.Topic)

	in := agent.Input{Request: r}
	var draft *content.Piece
	current := request.StatusQueued

	for _, step := range s.steps {
		next, ok := statusFor(step.Stage())
		if !ok {
			s.failRun(ctx, span, r, current, fmt.Sprintf("unknown pipeline stage %q", step.Stage()))
			return nil
		}

		if err := s.store.UpdateRequestStatus(ctx, r.ID, current, next, ""); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				s.stopRun(ctx, span, r.ID)
				return nil
			}
			if current == request.StatusQueued {
				return fmt.Errorf("start pipeline run: %w", err)
			}
			s.failRun(ctx, span, r, current, fmt.Sprintf("advance to %s: %v", next, err))
			return nil
		}
		current = next
		s.broadcastStatus(ctx, r.ID, current, "")

		out, err := s.runStage(ctx, step, r, in)
		if err != nil {
			s.failRun(ctx, span, r, current, err.Error())
			return nil
		}
		if out.Research != nil {
			in.Research = out.Research
		}
		if out.Draft != nil {
			draft = out.Draft
		}
	}

	// Scoring is past the last stage boundary, so a cancel can no longer
	// land; a lost transition here means a duplicate delivery won.
	if err := s.store.UpdateRequestStatus(ctx, r.ID, current, request.StatusScoring, ""); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.stopRun(ctx, span, r.ID)
			return nil
		}
		s.failRun(ctx, span, r, current, fmt.Sprintf("advance to scoring: %v", err))
		return nil
	}
	current = request.StatusScoring
	s.broadcastStatus(ctx, r.ID, current, "")

	if draft == nil {
		s.failRun(ctx, span, r, current, "writing stage produced no draft")
		return nil
	}

	assessment := s.scorer.Assess(draft, in.Research, r.WordCount)
	draft.Assessment = &assessment
	draft.RequestID = r.ID

	// The piece is saved before the request flips to completed so that a
	// completed status always means retrievable content.
	if err := s.store.SavePiece(ctx, draft); err != nil {
		s.failRun(ctx, span, r, current, fmt.Sprintf("save content piece: %v", err))
		return nil
	}
	if err := s.store.UpdateRequestStatus(ctx, r.ID, current, request.StatusCompleted, ""); err != nil {
		s.failRun(ctx, span, r, current, fmt.Sprintf("finalize request: %v", err))
		return nil
	}
	s.broadcastStatus(ctx, r.ID, request.StatusCompleted, "")

	elapsed := time.Since(started)
	span.SetAttributes(
		attribute.String("run.status", string(request.StatusCompleted)),
		attribute.Float64("run.quality_score", assessment.Overall),
	)
	if s.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("content_type", string(r.ContentType)))
		s.metrics.RunsCompleted.Add(ctx, 1, attrs)
		s.metrics.RunDuration.Record(ctx, elapsed.Seconds(), attrs)
		s.metrics.QualityScore.Record(ctx, assessment.Overall, attrs)
	}
	s.hub.BroadcastEvent(ctx, ws.EventContentReady, ws.ContentReadyEvent{
		RequestID:    r.ID,
		PieceID:      draft.ID,
		Title:        draft.Title,
		WordCount:    draft.WordCount,
		OverallScore: assessment.Overall,
	})

	slog.Info("pipeline run completed",
		"request_id", r.ID,
		"piece_id", draft.ID,
		"word_count", draft.WordCount,
		"overall_score", assessment.Overall,
		"duration", elapsed.Truncate(time.Millisecond))
	return nil
}

// runStage records the stage task lifecycle around one step execution.
func (s *PipelineService) runStage(ctx context.Context, step agent.Step, r *request.Request, in agent.Input) (*agent.Output, error) {
	name := step.Stage()

	task, err := s.store.CreateStageTask(ctx, r.ID, name)
	if err != nil {
		return nil, fmt.Errorf("create %s stage task: %w", name, err)
	}
	if err := s.store.StartStageTask(ctx, task.ID); err != nil {
		return nil, fmt.Errorf("start %s stage task: %w", name, err)
	}
	s.broadcastStage(ctx, r.ID, name, stage.StatusRunning, "")

	stageCtx, stageSpan := qotel.StartStageSpan(ctx, r.ID, string(name))
	out, err := step.Execute(stageCtx, in)
	if err != nil {
		stageSpan.SetStatus(codes.Error, err.Error())
		stageSpan.End()
		if ferr := s.store.FinishStageTask(ctx, task.ID, stage.StatusFailed, nil, err.Error()); ferr != nil {
			slog.Error("failed to record stage failure", "task_id", task.ID, "error", ferr)
		}
		s.broadcastStage(ctx, r.ID, name, stage.StatusFailed, err.Error())
		return nil, err
	}
	stageSpan.End()

	if err := s.store.FinishStageTask(ctx, task.ID, stage.StatusSucceeded, marshalStageOutput(name, out), ""); err != nil {
		slog.Error("failed to record stage success", "task_id", task.ID, "error", err)
	}
	s.broadcastStage(ctx, r.ID, name, stage.StatusSucceeded, "")
	return out, nil
}

// failRun records a terminal failure: it stores the reason, emits telemetry
// and notifies subscribers. Failures are terminal; nothing is retried.
func (s *PipelineService) failRun(ctx context.Context, span trace.Span, r *request.Request, from request.Status, reason string) {
	if err := s.store.UpdateRequestStatus(ctx, r.ID, from, request.StatusFailed, reason); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			slog.Info("request already terminal", "request_id", r.ID, "from", from)
		} else {
			slog.Error("failed to record pipeline failure", "request_id", r.ID, "from", from, "error", err)
		}
	}

	span.SetStatus(codes.Error, reason)
	if s.metrics != nil {
		s.metrics.RunsFailed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("content_type", string(r.ContentType)),
		))
	}
	s.broadcastStatus(ctx, r.ID, request.StatusFailed, reason)
	slog.Error("pipeline run failed", "request_id", r.ID, "reason", reason)
}

// stopRun handles a lost status transition. The competing writer is either
// a cancel or a duplicate delivery; in both cases this run must not
// continue, and the winner owns the stored state.
func (s *PipelineService) stopRun(ctx context.Context, span trace.Span, requestID string) {
	status := "unknown"
	if r, err := s.store.GetRequest(ctx, requestID); err == nil {
		status = string(r.Status)
	}
	span.SetStatus(codes.Error, "run stopped: request status is now "+status)
	slog.Info("pipeline run stopped after losing status transition",
		"request_id", requestID, "status", status)
}

func (s *PipelineService) broadcastStatus(ctx context.Context, requestID string, status request.Status, errMsg string) {
	s.hub.BroadcastEvent(ctx, ws.EventRequestStatus, ws.RequestStatusEvent{
		RequestID: requestID,
		Status:    string(status),
		Error:     errMsg,
	})
}

func (s *PipelineService) broadcastStage(ctx context.Context, requestID string, name stage.Name, status stage.Status, errMsg string) {
	s.hub.BroadcastEvent(ctx, ws.EventStageStatus, ws.StageStatusEvent{
		RequestID: requestID,
		Stage:     string(name),
		Status:    string(status),
		Error:     errMsg,
	})
}

// statusFor maps a pipeline stage to the request status that announces it.
func statusFor(name stage.Name) (request.Status, bool) {
	switch name {
	case stage.NameResearch:
		return request.StatusResearching, true
	case stage.NameWriting:
		return request.StatusWriting, true
	default:
		return "", false
	}
}

func marshalStageOutput(name stage.Name, out *agent.Output) json.RawMessage {
	var v any
	switch {
	case out.Research != nil:
		v = out.Research
	case out.Draft != nil:
		v = out.Draft
	default:
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal stage output", "stage", name, "error", err)
		return nil
	}
	return data
}
