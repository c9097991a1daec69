package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/lkarlslund/redflag/pkg/event"
	"github.com/lkarlslund/redflag/pkg/keys"
	"github.com/lkarlslund/redflag/pkg/kv"
	"github.com/lkarlslund/redflag/pkg/metrics"
)

const (
	// MaxResults caps one merged range read across all buckets. Reaching it
	// truncates the result silently.
	MaxResults = 50_000

	identityWindowMS = 100
	identityScanCap  = 10
)

var ErrEventNotFound = errors.New("event not found")

// Store is the time-bucketed event index: one sorted set per hour, score is
// the event timestamp in milliseconds, member is the serialized event. All
// calls are synchronous round trips; retry policy belongs to the caller.
type Store struct {
	conn  kv.Conn
	codec event.Codec
}

func New(conn kv.Conn) *Store {
	return &Store{conn: conn, codec: event.Codec{}}
}

// Write validates, serializes and inserts one event into its bucket. An
// event without a uuid gets one derived from its timestamp, which is the
// durable identity scheme. Re-adding an identical payload overwrites the
// existing member rather than duplicating it.
func (s *Store) Write(ctx context.Context, e event.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.UUID == "" {
		e.UUID = strconv.FormatInt(e.Timestamp, 10)
	}
	payload, err := s.codec.Encode(e)
	if err != nil {
		return err
	}
	key := keys.EventBucket(e.Timestamp)
	if err := s.conn.ZAdd(ctx, key, redis.Z{Score: float64(e.Timestamp), Member: string(payload)}).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", key, err)
	}
	metrics.EventsWritten.Inc()
	return nil
}

// WriteBatch writes events in order and reports how many landed. The first
// failure stops the batch; earlier writes stay persisted.
func (s *Store) WriteBatch(ctx context.Context, events []event.Event) (int, error) {
	for i, e := range events {
		if err := s.Write(ctx, e); err != nil {
			return i, fmt.Errorf("event %d of %d: %w", i+1, len(events), err)
		}
	}
	return len(events), nil
}

// Range returns every stored event with From <= timestamp <= To, ascending.
// The window may span any number of buckets; each intersected bucket is
// queried with the remaining capacity so the merged result never exceeds
// the limit. A payload that fails to decode fails the whole read.
func (s *Store) Range(ctx context.Context, q event.Query) ([]event.Event, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 || limit > MaxResults {
		limit = MaxResults
	}
	minScore := strconv.FormatInt(q.From, 10)
	maxScore := strconv.FormatInt(q.To, 10)
	var out []event.Event
	for _, start := range keys.BucketStarts(q.From, q.To) {
		remaining := limit - len(out)
		if remaining <= 0 {
			metrics.RangeTruncations.Inc()
			slog.Debug("event range hit result ceiling", "from", q.From, "to", q.To, "limit", limit)
			break
		}
		key := keys.EventBucket(start)
		members, err := s.conn.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min:   minScore,
			Max:   maxScore,
			Count: int64(remaining),
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("zrangebyscore %s: %w", key, err)
		}
		for _, m := range members {
			e, err := s.codec.Decode([]byte(m))
			if err != nil {
				return nil, fmt.Errorf("bucket %s: %w", key, err)
			}
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	metrics.EventsRead.Add(float64(len(out)))
	return out, nil
}

// FindByIdentity looks up a single event by uuid and timestamp. It scans a
// narrow score window around the timestamp inside its bucket and matches on
// the exact timestamp, so it tolerates tiny clock skew without being a true
// index lookup.
func (s *Store) FindByIdentity(ctx context.Context, uuid string, ts int64) (event.Event, error) {
	key := keys.EventBucket(ts)
	members, err := s.conn.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   strconv.FormatInt(ts-identityWindowMS, 10),
		Max:   strconv.FormatInt(ts+identityWindowMS, 10),
		Count: identityScanCap,
	}).Result()
	if err != nil {
		return event.Event{}, fmt.Errorf("zrangebyscore %s: %w", key, err)
	}
	for _, m := range members {
		e, err := s.codec.Decode([]byte(m))
		if err != nil {
			return event.Event{}, fmt.Errorf("bucket %s: %w", key, err)
		}
		if uuid != "" && e.UUID != "" && e.UUID != uuid {
			continue
		}
		if e.Timestamp == ts {
			return e, nil
		}
	}
	return event.Event{}, ErrEventNotFound
}

// Count tallies events in the window without fetching payloads.
func (s *Store) Count(ctx context.Context, q event.Query) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	minScore := strconv.FormatInt(q.From, 10)
	maxScore := strconv.FormatInt(q.To, 10)
	var total int64
	for _, start := range keys.BucketStarts(q.From, q.To) {
		key := keys.EventBucket(start)
		n, err := s.conn.ZCount(ctx, key, minScore, maxScore).Result()
		if err != nil {
			return total, fmt.Errorf("zcount %s: %w", key, err)
		}
		total += n
	}
	return total, nil
}

// Purge removes every event inside the window and reports how many members
// went away. Redis drops a sorted set that loses its last member, so
// emptied buckets disappear on their own. On failure the count covers the
// buckets already processed.
func (s *Store) Purge(ctx context.Context, q event.Query) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	minScore := strconv.FormatInt(q.From, 10)
	maxScore := strconv.FormatInt(q.To, 10)
	var removed int64
	for _, start := range keys.BucketStarts(q.From, q.To) {
		key := keys.EventBucket(start)
		n, err := s.conn.ZRemRangeByScore(ctx, key, minScore, maxScore).Result()
		if err != nil {
			return removed, fmt.Errorf("zremrangebyscore %s: %w", key, err)
		}
		removed += n
	}
	if removed > 0 {
		metrics.EventsPurged.Add(float64(removed))
		slog.Info("event store purged window", "from", q.From, "to", q.To, "removed", removed)
	}
	return removed, nil
}
