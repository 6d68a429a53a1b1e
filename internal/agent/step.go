// Package agent defines the pipeline stage contract and the research and
// writing implementations behind it.
package agent

import (
	"context"

	"github.com/quillhq/quill/internal/domain/content"
	"github.com/quillhq/quill/internal/domain/request"
	"github.com/quillhq/quill/internal/domain/research"
	"github.com/quillhq/quill/internal/domain/stage"
)

// Input carries the inputs a stage may read. The research stage reads the
// request only; the writing stage additionally reads the research result.
type Input struct {
	Request  *request.Request
	Research *research.Result
}

// Output carries whichever payload the stage produced.
type Output struct {
	Research *research.Result
	Draft    *content.Piece
}

// Step is the shared contract for pipeline stages. Implementations make a
// single attempt per call and report failures as errors wrapping
// domain.ErrResearch or domain.ErrWriting; the pipeline never retries.
type Step interface {
	// Stage returns the stage this step implements.
	Stage() stage.Name

	// Execute runs the stage once against the given input.
	Execute(ctx context.Context, in Input) (*Output, error)
}
