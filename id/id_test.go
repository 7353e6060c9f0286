package id_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/xraph/claim/id"
)

func TestNewPrefixes(t *testing.T) {
	if got := id.NewJobID().Prefix(); got != id.PrefixJob {
		t.Errorf("job prefix = %q", got)
	}
	if got := id.NewTransactionID().Prefix(); got != id.PrefixTransaction {
		t.Errorf("transaction prefix = %q", got)
	}

	w1, w2 := id.NewWorkerName(), id.NewWorkerName()
	if !strings.HasPrefix(w1, "wkr_") || w1 == w2 {
		t.Errorf("worker names %q %q", w1, w2)
	}
}

func TestParse(t *testing.T) {
	j := id.NewJobID()
	x := id.NewTransactionID()

	tests := []struct {
		name    string
		in      string
		allowed []id.Prefix
		wantErr bool
	}{
		{"any prefix", j.String(), nil, false},
		{"allowed prefix", x.String(), []id.Prefix{id.PrefixTransaction}, false},
		{"one of several", j.String(), []id.Prefix{id.PrefixTransaction, id.PrefixJob}, false},
		{"wrong prefix", j.String(), []id.Prefix{id.PrefixTransaction}, true},
		{"garbage", "job_not-a-suffix", nil, true},
		{"empty", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := id.Parse(tt.in, tt.allowed...)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.in, err)
			}
			if got.String() != tt.in {
				t.Errorf("round trip %q != %q", got, tt.in)
			}
		})
	}

	if _, err := id.Parse(""); !errors.Is(err, id.ErrEmpty) {
		t.Errorf("Parse(\"\") error = %v, want ErrEmpty", err)
	}
	if _, err := id.ParseJobID(x.String()); err == nil {
		t.Error("ParseJobID accepted a transaction id")
	}
	if _, err := id.ParseTransactionID(j.String()); err == nil {
		t.Error("ParseTransactionID accepted a job id")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() || i.String() != "" || i.Prefix() != "" {
		t.Errorf("zero ID = %q / %q, want nil", i.String(), i.Prefix())
	}

	v, err := i.Value()
	if err != nil || v != nil {
		t.Errorf("Value() = %v, %v, want NULL", v, err)
	}
	text, _ := i.MarshalText()
	if len(text) != 0 {
		t.Errorf("MarshalText() = %q", text)
	}
}

func TestTextAndSQL(t *testing.T) {
	orig := id.NewTransactionID()

	text, err := orig.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var fromText id.ID
	if err := fromText.UnmarshalText(text); err != nil || fromText.String() != orig.String() {
		t.Errorf("UnmarshalText = %v, %v", fromText, err)
	}

	v, err := orig.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	for _, src := range []any{v, []byte(orig.String())} {
		var scanned id.ID
		if err := scanned.Scan(src); err != nil {
			t.Fatalf("Scan(%T): %v", src, err)
		}
		if scanned.String() != orig.String() {
			t.Errorf("Scan(%T) = %q", src, scanned)
		}
	}

	for _, src := range []any{nil, "", []byte{}} {
		scanned := orig
		if err := scanned.Scan(src); err != nil || !scanned.IsNil() {
			t.Errorf("Scan(%#v) = %v, %v, want nil ID", src, scanned, err)
		}
	}

	var bad id.ID
	if err := bad.Scan(42); err == nil {
		t.Error("Scan(int) succeeded")
	}
}
