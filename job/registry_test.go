package job_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/xraph/claim/job"
)

type invoice struct {
	Customer string `json:"customer"`
	Cents    int64  `json:"cents"`
}

func runHandler(t *testing.T, r *job.Registry, j *job.Job) error {
	t.Helper()
	h, ok := r.Lookup(j.Title)
	if !ok {
		t.Fatalf("no handler for %q", j.Title)
	}
	return h(context.Background(), j)
}

func TestRegisterDefinitionDecodesPayload(t *testing.T) {
	r := job.NewRegistry()

	var got invoice
	job.RegisterDefinition(r, job.NewDefinition("send-invoice", func(_ context.Context, in invoice) error {
		got = in
		return nil
	}))

	err := runHandler(t, r, &job.Job{Title: "send-invoice", Payload: []byte(`{"customer":"acme","cents":1250}`)})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got.Customer != "acme" || got.Cents != 1250 {
		t.Errorf("decoded %+v", got)
	}
}

func TestRegisterDefinitionPayloadEdges(t *testing.T) {
	handlerErr := errors.New("smtp down")

	tests := []struct {
		name    string
		payload []byte
		result  error
		wantErr error
		called  bool
	}{
		{name: "empty payload", payload: nil, called: true},
		{name: "handler error", payload: []byte(`{}`), result: handlerErr, wantErr: handlerErr, called: true},
		{name: "malformed payload", payload: []byte(`{"customer":`), called: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := job.NewRegistry()
			called := false
			job.RegisterDefinition(r, job.NewDefinition("send-invoice", func(context.Context, invoice) error {
				called = true
				return tt.result
			}))

			err := runHandler(t, r, &job.Job{Title: "send-invoice", Payload: tt.payload})
			if called != tt.called {
				t.Errorf("handler called = %v, want %v", called, tt.called)
			}
			switch {
			case tt.wantErr != nil && !errors.Is(err, tt.wantErr):
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			case !tt.called && err == nil:
				t.Error("malformed payload should fail")
			case tt.called && tt.wantErr == nil && err != nil:
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRegistryHandlerSeesJob(t *testing.T) {
	r := job.NewRegistry()
	var attempts int
	r.Register("retryable", func(_ context.Context, j *job.Job) error {
		attempts = j.Attempts
		return nil
	})

	if err := runHandler(t, r, &job.Job{Title: "retryable", Attempts: 3}); err != nil {
		t.Fatal(err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d", attempts)
	}
}

func TestRegistryLookupAndFallback(t *testing.T) {
	r := job.NewRegistry()
	if _, ok := r.Lookup("unknown"); ok {
		t.Fatal("empty registry returned a handler")
	}

	r.Register("a", func(context.Context, *job.Job) error { return errors.New("old") })
	r.Register("a", func(context.Context, *job.Job) error { return errors.New("a") })
	r.SetFallback(func(_ context.Context, j *job.Job) error { return errors.New("fallback " + j.Title) })

	if err := runHandler(t, r, &job.Job{Title: "a"}); err == nil || err.Error() != "a" {
		t.Errorf("registered handler: %v", err)
	}
	if err := runHandler(t, r, &job.Job{Title: "z"}); err == nil || err.Error() != "fallback z" {
		t.Errorf("fallback handler: %v", err)
	}
}

func TestRegistryTitles(t *testing.T) {
	r := job.NewRegistry()
	for _, title := range []string{"c", "a", "b"} {
		r.Register(title, func(context.Context, *job.Job) error { return nil })
	}
	if got := r.Titles(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("Titles() = %v", got)
	}
}
