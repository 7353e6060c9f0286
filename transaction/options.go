package transaction

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// WorkFunc performs the side effect of processing a transaction. Returning
// an error marks the transaction failed with the error's message.
type WorkFunc func(ctx context.Context, t *Transaction) error

// FixedDelay returns a WorkFunc that waits d and succeeds. It stands in for
// a real ledger operation.
func FixedDelay(d time.Duration) WorkFunc {
	return func(ctx context.Context, _ *Transaction) error {
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SubmitOptions holds the optional attributes of a new transaction.
type SubmitOptions struct {
	Currency    string
	Description string
	Reference   string
	FromAccount string
	ToAccount   string
	Metadata    map[string]string
}

// SubmitOption is a functional option for Processor.Submit.
type SubmitOption func(*SubmitOptions) error

// WithCurrency sets an ISO 4217 currency code.
func WithCurrency(code string) SubmitOption {
	return func(o *SubmitOptions) error {
		code = strings.ToUpper(strings.TrimSpace(code))
		if len(code) != 3 {
			return fmt.Errorf("currency must be a 3-letter code, got %q", code)
		}
		o.Currency = code
		return nil
	}
}

// WithDescription sets a free-form description.
func WithDescription(d string) SubmitOption {
	return func(o *SubmitOptions) error {
		o.Description = d
		return nil
	}
}

// WithReference sets an external reference.
func WithReference(ref string) SubmitOption {
	return func(o *SubmitOptions) error {
		o.Reference = ref
		return nil
	}
}

// WithAccounts sets the source and destination accounts.
func WithAccounts(from, to string) SubmitOption {
	return func(o *SubmitOptions) error {
		o.FromAccount = from
		o.ToAccount = to
		return nil
	}
}

// WithMetadata attaches string metadata.
func WithMetadata(md map[string]string) SubmitOption {
	return func(o *SubmitOptions) error {
		o.Metadata = md
		return nil
	}
}
