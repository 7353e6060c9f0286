package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/claim"
)

func wrap(op string, err error) error {
	if errors.Is(err, goredis.ErrClosed) {
		err = claim.ErrStoreClosed
	}
	return fmt.Errorf("claim/redis: %s: %w", op, err)
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func micros(t time.Time) string { return strconv.FormatInt(t.UTC().UnixMicro(), 10) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s) //nolint:errcheck // best-effort parse from trusted Redis data
	return t.UTC()
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := parseTime(s)
	return &t
}

func setTime(m map[string]any, field string, t *time.Time) {
	if t != nil {
		m[field] = formatTime(*t)
	}
}

// setLease writes the lock fields for a record inserted already locked.
func setLease(m map[string]any, lockedBy string, lockedAt *time.Time) {
	if lockedBy == "" || lockedAt == nil {
		return
	}
	m["locked_by"] = lockedBy
	m["locked_at"] = formatTime(*lockedAt)
	m["locked_at_us"] = micros(*lockedAt)
}

// page converts offset/limit to an inclusive Sorted Set range.
func page(offset, limit int) (start, stop int64) {
	start = int64(max(offset, 0))
	stop = -1
	if limit > 0 {
		stop = start + int64(limit) - 1
	}
	return start, stop
}

// loadHashes fetches every hash in keys with one pipeline. Missing keys
// yield empty maps and are dropped.
func (s *Store) loadHashes(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make([]map[string]string, 0, len(keys))
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		out = append(out, vals)
	}
	return out, nil
}

// insert writes a new record hash and its index entries. The HSETNX on id
// rejects duplicates before anything else is written. index adds any
// kind-specific index writes to the same transaction.
func (s *Store) insert(ctx context.Context, ks keyspace, recordID, status string, createdAt time.Time, fields map[string]any, lockedAt *time.Time, index ...func(goredis.Pipeliner)) (bool, error) {
	key := ks.item(recordID)
	created, err := s.client.HSetNX(ctx, key, "id", recordID).Result()
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	score := float64(createdAt.UTC().UnixMicro())
	fields["created_at_us"] = micros(createdAt)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.ZAdd(ctx, ks.all(), goredis.Z{Score: score, Member: recordID})
	pipe.ZAdd(ctx, ks.status(status), goredis.Z{Score: score, Member: recordID})
	if _, ok := fields["locked_at_us"]; ok && lockedAt != nil {
		pipe.ZAdd(ctx, ks.locked(), goredis.Z{Score: float64(lockedAt.UTC().UnixMicro()), Member: recordID})
	}
	for _, fn := range index {
		fn(pipe)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// candidateMember orders equal-priority candidates by creation time. The
// fixed-width prefix makes lexical order match numeric order.
func candidateMember(createdAt time.Time, recordID string) string {
	return fmt.Sprintf("%020d:%s", createdAt.UTC().UnixMicro(), recordID)
}

// candidateID strips the creation prefix from a candidate member.
func candidateID(member string) string {
	if i := strings.IndexByte(member, ':'); i >= 0 {
		return member[i+1:]
	}
	return member
}

// ids returns the members of an index in score order, newest first when
// desc is set.
func (s *Store) ids(ctx context.Context, key string, desc bool, offset, limit int) ([]string, error) {
	start, stop := page(offset, limit)
	if desc {
		return s.client.ZRevRange(ctx, key, start, stop).Result()
	}
	return s.client.ZRange(ctx, key, start, stop).Result()
}
