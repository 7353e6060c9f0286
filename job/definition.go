package job

import "context"

// Definition is a typed job definition with a handler function.
// T is the payload type (must be JSON-serializable).
type Definition[T any] struct {
	// Title identifies the job type. Submitted jobs carry it as Job.Title.
	Title string

	// Handler processes the decoded payload.
	Handler func(ctx context.Context, payload T) error

	// Defaults are applied before per-call options when submitting.
	Defaults []SubmitOption
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](title string, handler func(ctx context.Context, payload T) error, defaults ...SubmitOption) *Definition[T] {
	return &Definition[T]{
		Title:    title,
		Handler:  handler,
		Defaults: defaults,
	}
}
