package natshook

import (
	"time"

	"github.com/xraph/claim/lock"
)

// DefaultSubjectPrefix is the first token of every published subject.
const DefaultSubjectPrefix = "claim"

// Lifecycle event names. Each maps to one ext hook and forms the last
// token of the subject, after the kind.
const (
	EventLockAcquired  = "lock_acquired"
	EventLockContended = "lock_contended"
	EventLockReleased  = "lock_released"
	EventLocksExpired  = "locks_expired"
	EventSubmitted     = "submitted"
	EventClaimed       = "claimed"
	EventTransitioned  = "transitioned"
)

// AllEvents lists every event name.
var AllEvents = []string{
	EventLockAcquired,
	EventLockContended,
	EventLockReleased,
	EventLocksExpired,
	EventSubmitted,
	EventClaimed,
	EventTransitioned,
}

// Subject returns the subject an event of kind is published on.
func Subject(prefix string, kind lock.Kind, event string) string {
	return prefix + "." + string(kind) + "." + event
}

// Message is the JSON body of every published event. Fields that do not
// apply to an event are omitted.
type Message struct {
	Event    string    `json:"event"`
	Kind     lock.Kind `json:"kind"`
	ID       string    `json:"id,omitempty"`
	WorkerID string    `json:"worker_id,omitempty"`
	Status   string    `json:"status,omitempty"`
	OK       *bool     `json:"ok,omitempty"`
	Count    *int64    `json:"count,omitempty"`
	Title    string    `json:"title,omitempty"`
	Type     string    `json:"type,omitempty"`
	Amount   *int64    `json:"amount,omitempty"`
	Currency string    `json:"currency,omitempty"`
	Time     time.Time `json:"time"`
}
