// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates the input was rejected before a run started.
var ErrValidation = errors.New("validation failed")

// ErrResearch indicates the research stage failed, terminating its run.
var ErrResearch = errors.New("research failed")

// ErrWriting indicates the writing stage failed, terminating its run.
var ErrWriting = errors.New("writing failed")

// ErrNotReady indicates content was requested before the pipeline completed.
var ErrNotReady = errors.New("content not ready")

// ErrInvalidState indicates an operation that is illegal for the current status,
// such as cancelling a request that already reached a terminal state.
var ErrInvalidState = errors.New("invalid state for operation")

// ErrConflict indicates a concurrent modification conflict: the status observed
// when the update was issued no longer matches the stored one.
var ErrConflict = errors.New("conflict: resource was modified by another request")
