// Package database defines the database store port (interface).
package database

import (
	"context"
	"encoding/json"

	"github.com/quillhq/quill/internal/domain/content"
	"github.com/quillhq/quill/internal/domain/request"
	"github.com/quillhq/quill/internal/domain/stage"
)

// Store is the port interface for database operations.
type Store interface {
	// Requests
	CreateRequest(ctx context.Context, req request.CreateRequest) (*request.Request, error)
	GetRequest(ctx context.Context, id string) (*request.Request, error)
	ListRequests(ctx context.Context, limit, offset int) ([]request.Summary, error)
	CountRequestsByStatus(ctx context.Context) (map[request.Status]int, error)

	// UpdateRequestStatus performs a compare-and-swap on the status column:
	// the row is updated only while its stored status still equals from.
	// Returns domain.ErrConflict when another transition won the race, which
	// is how cancellation is observed at stage boundaries. The reason is
	// stored only for transitions into the failed status.
	UpdateRequestStatus(ctx context.Context, id string, from, to request.Status, reason string) error

	// Stage tasks: created pending when the stage is entered, marked
	// running when the step dispatches, finalized when it returns.
	CreateStageTask(ctx context.Context, requestID string, name stage.Name) (*stage.Task, error)
	StartStageTask(ctx context.Context, id string) error
	FinishStageTask(ctx context.Context, id string, status stage.Status, output json.RawMessage, errMsg string) error
	ListStageTasks(ctx context.Context, requestID string) ([]stage.Task, error)

	// Content pieces
	SavePiece(ctx context.Context, p *content.Piece) error
	GetPieceByRequest(ctx context.Context, requestID string) (*content.Piece, error)
}
