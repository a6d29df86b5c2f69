package summarizer

import (
	"context"
)

// Input describes the payload for a summary request.
type Input struct {
	// DocumentID identifies the job, for logging only.
	DocumentID string
	// Text contains the original plain text to summarize.
	Text string
}

// Summarizer produces a single summary for a given input text. The call is
// safely re-invocable: it has no side effects beyond returning text, so
// at-least-once execution under queue redelivery is fine.
type Summarizer interface {
	Summarize(ctx context.Context, input Input) (string, error)
}
