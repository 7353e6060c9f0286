// Package id provides the identifiers of claimable records.
//
// Jobs and transactions are identified by TypeIDs: a short type prefix
// followed by a UUIDv7 suffix, for example "job_01h2xcejqtf2nbrexx3vqjhp41".
// The suffix sorts by creation time at millisecond resolution.
package id

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"slices"

	"go.jetify.com/typeid/v2"
)

// Prefix is the type part of an ID.
type Prefix string

const (
	PrefixJob         Prefix = "job"
	PrefixTransaction Prefix = "txn"
	PrefixWorker      Prefix = "wkr"
)

// ErrEmpty is returned when parsing an empty string.
var ErrEmpty = errors.New("id: empty string")

// ID identifies a job or a transaction. The zero value is the nil ID and
// is stored as NULL.
//
//nolint:recvcheck // pointer receivers only where the value is decoded.
type ID struct {
	tid typeid.TypeID
	set bool
}

// JobID is an ID with the "job" prefix.
type JobID = ID

// TransactionID is an ID with the "txn" prefix.
type TransactionID = ID

// New returns a fresh ID with prefix. An invalid prefix is a programming
// error and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: generate %q: %v", prefix, err))
	}
	return ID{tid: tid, set: true}
}

func NewJobID() JobID                 { return New(PrefixJob) }
func NewTransactionID() TransactionID { return New(PrefixTransaction) }

// NewWorkerName returns a unique default worker identifier. Worker
// identifiers are plain strings in storage; any non-empty value works.
func NewWorkerName() string { return New(PrefixWorker).String() }

// Parse decodes s. When allowed is non-empty the prefix must be one of
// allowed.
func Parse(s string, allowed ...Prefix) (ID, error) {
	if s == "" {
		return ID{}, ErrEmpty
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("id: parse %q: %w", s, err)
	}
	i := ID{tid: tid, set: true}
	if len(allowed) > 0 && !slices.Contains(allowed, i.Prefix()) {
		return ID{}, fmt.Errorf("id: %q has prefix %q, want %v", s, i.Prefix(), allowed)
	}
	return i, nil
}

func ParseJobID(s string) (JobID, error) { return Parse(s, PrefixJob) }

func ParseTransactionID(s string) (TransactionID, error) {
	return Parse(s, PrefixTransaction)
}

// String returns "prefix_suffix", or "" for the nil ID.
func (i ID) String() string {
	if !i.set {
		return ""
	}
	return i.tid.String()
}

func (i ID) Prefix() Prefix {
	if !i.set {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

func (i ID) IsNil() bool { return !i.set }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields the
// nil ID.
func (i *ID) UnmarshalText(data []byte) error {
	return i.decode(string(data))
}

// Value implements driver.Valuer.
func (i ID) Value() (driver.Value, error) {
	if !i.set {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = ID{}
		return nil
	case string:
		return i.decode(v)
	case []byte:
		return i.decode(string(v))
	default:
		return fmt.Errorf("id: cannot scan %T", src)
	}
}

func (i *ID) decode(s string) error {
	if s == "" {
		*i = ID{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
