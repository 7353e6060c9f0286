package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Defaults applied by Service.Submit.
const (
	DefaultPriority    = 1
	DefaultMaxAttempts = 3
	DefaultWindow      = 10
)

// SubmitOptions holds the optional attributes of a new job.
type SubmitOptions struct {
	Description string
	Priority    int
	Payload     []byte
	MaxAttempts int
	ScheduledAt *time.Time
}

// DefaultSubmitOptions returns SubmitOptions with defaults applied.
func DefaultSubmitOptions() SubmitOptions {
	return SubmitOptions{
		Priority:    DefaultPriority,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// SubmitOption is a functional option for Service.Submit.
type SubmitOption func(*SubmitOptions) error

// WithDescription sets a human-readable description.
func WithDescription(d string) SubmitOption {
	return func(o *SubmitOptions) error {
		o.Description = d
		return nil
	}
}

// WithPriority sets the job priority. Higher values are claimed first.
func WithPriority(p int) SubmitOption {
	return func(o *SubmitOptions) error {
		o.Priority = p
		return nil
	}
}

// WithPayload sets a raw JSON payload.
func WithPayload(raw []byte) SubmitOption {
	return func(o *SubmitOptions) error {
		if len(raw) > 0 && !json.Valid(raw) {
			return errors.New("payload is not valid JSON")
		}
		o.Payload = raw
		return nil
	}
}

// WithPayloadValue JSON-encodes v as the payload.
func WithPayloadValue(v any) SubmitOption {
	return func(o *SubmitOptions) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		o.Payload = raw
		return nil
	}
}

// WithMaxAttempts records the attempt budget. It is not enforced.
func WithMaxAttempts(n int) SubmitOption {
	return func(o *SubmitOptions) error {
		if n < 1 {
			return fmt.Errorf("max attempts must be positive, got %d", n)
		}
		o.MaxAttempts = n
		return nil
	}
}

// WithScheduledAt keeps the job out of claim candidates until t.
func WithScheduledAt(t time.Time) SubmitOption {
	return func(o *SubmitOptions) error {
		u := t.UTC()
		o.ScheduledAt = &u
		return nil
	}
}
