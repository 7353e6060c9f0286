package redis

import "github.com/xraph/claim/lock"

// Redis key naming conventions for claim data.
// All keys are prefixed with "claim:" to avoid collisions.

const keyPrefix = "claim:"

// keyspace names the keys used for one lockable kind.
type keyspace struct {
	kind   lock.Kind
	plural string
}

var (
	jobKeys         = keyspace{kind: lock.KindJob, plural: "jobs"}
	transactionKeys = keyspace{kind: lock.KindTransaction, plural: "transactions"}
)

func keysFor(kind lock.Kind) (keyspace, error) {
	switch kind {
	case lock.KindJob:
		return jobKeys, nil
	case lock.KindTransaction:
		return transactionKeys, nil
	default:
		return keyspace{}, kind.NotFound()
	}
}

// itemPrefix is prepended to an ID to form the hash key: claim:job:{id}
func (k keyspace) itemPrefix() string { return keyPrefix + string(k.kind) + ":" }

// item returns the Hash key holding one record.
func (k keyspace) item(id string) string { return k.itemPrefix() + id }

// all is the Sorted Set of every ID scored by created_at (µs).
func (k keyspace) all() string { return keyPrefix + k.plural + ":all" }

// statusPrefix is prepended to a status to form its index key.
func (k keyspace) statusPrefix() string { return keyPrefix + k.plural + ":status:" }

// status is the Sorted Set of IDs in one status scored by created_at (µs).
func (k keyspace) status(s string) string { return k.statusPrefix() + s }

// locked is the Sorted Set of locked IDs scored by locked_at (µs).
func (k keyspace) locked() string { return keyPrefix + k.plural + ":locked" }

// candidates is the Sorted Set of due pending IDs in claim order. The
// score is -priority and members are candidateMember values, so equal
// priorities fall back to creation order.
func (k keyspace) candidates() string { return keyPrefix + k.plural + ":candidates" }

// scheduled is the Sorted Set of pending IDs not yet due, scored by
// scheduled_at (µs). ListClaimCandidates promotes them once due.
func (k keyspace) scheduled() string { return keyPrefix + k.plural + ":scheduled" }
