// Package worker consumes queued content requests and drives pipeline runs.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quillhq/quill/internal/port/messagequeue"
)

// Runner executes one pipeline run to completion.
// *service.PipelineService satisfies it.
type Runner interface {
	Run(ctx context.Context, requestID string) error
}

// Pool consumes queued content requests. Each subscription handles one
// message at a time, so the pool's run parallelism equals its subscription
// count.
type Pool struct {
	queue   messagequeue.Queue
	runner  Runner
	workers int
}

// NewPool creates a pool that executes up to workers pipeline runs in
// parallel.
func NewPool(queue messagequeue.Queue, runner Runner, workers int64) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{queue: queue, runner: runner, workers: int(workers)}
}

// Start opens one competing subscription per worker slot; the stream
// distributes queued requests across them. The returned function stops all
// subscriptions.
func (p *Pool) Start(ctx context.Context) (func(), error) {
	cancels := make([]func(), 0, p.workers)
	for i := 0; i < p.workers; i++ {
		cancel, err := p.queue.Subscribe(ctx, messagequeue.SubjectRequestQueued, p.handle)
		if err != nil {
			for _, c := range cancels {
				c()
			}
			return nil, fmt.Errorf("subscribe worker %d: %w", i, err)
		}
		cancels = append(cancels, cancel)
	}

	slog.Info("pipeline workers started", "workers", p.workers)
	return func() {
		for _, c := range cancels {
			c()
		}
	}, nil
}

// handle unpacks one queued-request message and runs the pipeline for it.
// Malformed messages are dropped rather than returned as errors: an error
// here means redelivery, which can never fix a message that does not parse.
func (p *Pool) handle(ctx context.Context, _ string, data []byte) error {
	var payload messagequeue.RequestQueuedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Error("dropping malformed queue message", "error", err)
		return nil
	}
	if payload.RequestID == "" {
		slog.Error("dropping queue message without request_id")
		return nil
	}

	return p.runner.Run(ctx, payload.RequestID)
}
