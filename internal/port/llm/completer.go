// Package llm defines the language-model completion port.
package llm

import "context"

// Completer sends prompts to a language-model completion API.
// Implementations make a single attempt per call; retries are the
// caller's decision, and the pipeline deliberately makes none.
type Completer interface {
	// Complete sends a system and user prompt to the model and returns
	// the generated text.
	Complete(ctx context.Context, system, user string) (string, error)
}
