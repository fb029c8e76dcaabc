package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bsm/redislock"
	"github.com/immxrtalbeast/speeddating/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Queue layout: a ZSET ordered by join time (ms * 1000 + per-millisecond
// insertion sequence), a HASH of serialized entries and a ZSET of last
// heartbeats (ms).
var addScript = redis.NewScript(`
local rank = redis.call('ZRANK', KEYS[1], ARGV[1])
if rank then
	return {rank, 0}
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[4])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return {redis.call('ZRANK', KEYS[1], ARGV[1]), 1}
`)

var removeScript = redis.NewScript(`
local n = redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
return n
`)

var removePairScript = redis.NewScript(`
if ARGV[1] == ARGV[2] then
	return 0
end
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) or not redis.call('ZSCORE', KEYS[1], ARGV[2]) then
	return 0
end
for i = 1, 2 do
	redis.call('ZREM', KEYS[1], ARGV[i])
	redis.call('HDEL', KEYS[2], ARGV[i])
	redis.call('ZREM', KEYS[3], ARGV[i])
end
return 1
`)

var touchScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
	return 1
end
return 0
`)

// queueRecord is the serialized form of a queue entry in the entries hash.
type queueRecord struct {
	UserID           string   `json:"user_id"`
	JoinedAt         int64    `json:"joined_at"`
	Anonymous        bool     `json:"anonymous,omitempty"`
	AgeMin           int      `json:"age_min,omitempty"`
	AgeMax           int      `json:"age_max,omitempty"`
	GenderPreference string   `json:"gender_preference,omitempty"`
	Interests        []string `json:"interests,omitempty"`
	Name             string   `json:"name,omitempty"`
	PhotoURL         string   `json:"photo_url,omitempty"`
	Age              int      `json:"age,omitempty"`
	Gender           string   `json:"gender,omitempty"`
}

func toQueueRecord(e *domain.QueueEntry) queueRecord {
	rec := queueRecord{
		UserID:           e.UserID,
		JoinedAt:         e.JoinedAt.UnixMilli(),
		Anonymous:        e.Preferences.Anonymous,
		GenderPreference: e.Preferences.GenderPreference,
		Interests:        e.Preferences.Interests,
		Name:             e.Display.Name,
		PhotoURL:         e.Display.PhotoURL,
		Age:              e.Display.Age,
		Gender:           e.Display.Gender,
	}
	if r := e.Preferences.AgeRange; r != nil {
		rec.AgeMin, rec.AgeMax = r.Min, r.Max
	}
	return rec
}

func (r queueRecord) toDomain() *domain.QueueEntry {
	e := &domain.QueueEntry{
		UserID:   r.UserID,
		JoinedAt: time.UnixMilli(r.JoinedAt).UTC(),
		Preferences: domain.Preferences{
			Anonymous:        r.Anonymous,
			GenderPreference: r.GenderPreference,
			Interests:        r.Interests,
		},
		Display: domain.DisplayInfo{
			Name:     r.Name,
			PhotoURL: r.PhotoURL,
			Age:      r.Age,
			Gender:   r.Gender,
		},
	}
	if r.AgeMin != 0 || r.AgeMax != 0 {
		e.Preferences.AgeRange = &domain.AgeRange{Min: r.AgeMin, Max: r.AgeMax}
	}
	return e
}

const (
	maxSeqPerMilli = 999
	seqKeyTTL      = time.Minute
)

type RedisQueueStore struct {
	rdb           *redis.Client
	queueKey      string
	entriesKey    string
	heartbeatsKey string
	seqKey        string
}

func NewRedisQueueStore(rdb *redis.Client, prefix string) *RedisQueueStore {
	return &RedisQueueStore{
		rdb:           rdb,
		queueKey:      prefix + ":queue",
		entriesKey:    prefix + ":queue:entries",
		heartbeatsKey: prefix + ":queue:heartbeats",
		seqKey:        prefix + ":queue:seq",
	}
}

func (q *RedisQueueStore) keys() []string {
	return []string{q.queueKey, q.entriesKey, q.heartbeatsKey}
}

func (q *RedisQueueStore) Add(ctx context.Context, entry *domain.QueueEntry) (int, bool, error) {
	payload, err := json.Marshal(toQueueRecord(entry))
	if err != nil {
		return 0, false, err
	}

	joined := entry.JoinedAt.UnixMilli()
	seq, err := q.nextSeq(ctx, joined)
	if err != nil {
		return 0, false, err
	}
	score := joined*1000 + seq

	res, err := addScript.Run(ctx, q.rdb, q.keys(),
		entry.UserID,
		strconv.FormatInt(score, 10),
		strconv.FormatInt(joined, 10),
		string(payload),
	).Int64Slice()
	if err != nil {
		return 0, false, storeErr(err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("%w: unexpected add reply", domain.ErrStoreUnavailable)
	}
	return int(res[0]) + 1, res[1] == 1, nil
}

// nextSeq returns the insertion sequence within one millisecond, starting at 0.
// Past maxSeqPerMilli, same-millisecond ties fall back to member order.
func (q *RedisQueueStore) nextSeq(ctx context.Context, joinedMilli int64) (int64, error) {
	key := q.seqKey + ":" + strconv.FormatInt(joinedMilli, 10)

	pipe := q.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, seqKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, storeErr(err)
	}
	return min(incr.Val()-1, maxSeqPerMilli), nil
}

func (q *RedisQueueStore) Remove(ctx context.Context, userID string) (bool, error) {
	n, err := removeScript.Run(ctx, q.rdb, q.keys(), userID).Int64()
	if err != nil {
		return false, storeErr(err)
	}
	return n == 1, nil
}

func (q *RedisQueueStore) RemovePair(ctx context.Context, a, b string) (bool, error) {
	n, err := removePairScript.Run(ctx, q.rdb, q.keys(), a, b).Int64()
	if err != nil {
		return false, storeErr(err)
	}
	return n == 1, nil
}

func (q *RedisQueueStore) PositionOf(ctx context.Context, userID string) (int, bool, error) {
	rank, err := q.rdb.ZRank(ctx, q.queueKey, userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storeErr(err)
	}
	return int(rank) + 1, true, nil
}

func (q *RedisQueueStore) Snapshot(ctx context.Context, limit int) ([]*domain.QueueEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := q.rdb.ZRange(ctx, q.queueKey, 0, stop).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	return q.load(ctx, ids)
}

func (q *RedisQueueStore) Len(ctx context.Context) (int, error) {
	n, err := q.rdb.ZCard(ctx, q.queueKey).Result()
	if err != nil {
		return 0, storeErr(err)
	}
	return int(n), nil
}

func (q *RedisQueueStore) PurgeOlderThan(ctx context.Context, ts time.Time) ([]*domain.QueueEntry, error) {
	maxScore := ts.UnixMilli() * 1000
	ids, err := q.rdb.ZRangeByScore(ctx, q.queueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(maxScore, 10),
	}).Result()
	if err != nil {
		return nil, storeErr(err)
	}

	entries, err := q.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	purged := make([]*domain.QueueEntry, 0, len(entries))
	for _, e := range entries {
		removed, err := q.Remove(ctx, e.UserID)
		if err != nil {
			return purged, err
		}
		if removed {
			purged = append(purged, e)
		}
	}
	return purged, nil
}

func (q *RedisQueueStore) Touch(ctx context.Context, userID string, at time.Time) (bool, error) {
	n, err := touchScript.Run(ctx, q.rdb, []string{q.queueKey, q.heartbeatsKey},
		userID, strconv.FormatInt(at.UnixMilli(), 10)).Int64()
	if err != nil {
		return false, storeErr(err)
	}
	return n == 1, nil
}

func (q *RedisQueueStore) StaleSince(ctx context.Context, before time.Time) ([]string, error) {
	ids, err := q.rdb.ZRangeByScore(ctx, q.heartbeatsKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	return ids, nil
}

func (q *RedisQueueStore) load(ctx context.Context, ids []string) ([]*domain.QueueEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw, err := q.rdb.HMGet(ctx, q.entriesKey, ids...).Result()
	if err != nil {
		return nil, storeErr(err)
	}

	entries := make([]*domain.QueueEntry, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			// removed between ZRANGE and HMGET
			continue
		}
		var rec queueRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("decode queue entry: %w", err)
		}
		entries = append(entries, rec.toDomain())
	}
	return entries, nil
}

type RedisPairingStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisPairingStore(rdb *redis.Client, prefix string) *RedisPairingStore {
	return &RedisPairingStore{rdb: rdb, prefix: prefix + ":pairing:"}
}

func (p *RedisPairingStore) key(a, b string) string {
	lo, hi := domain.PairKey(a, b)
	return p.prefix + lo + ":" + hi
}

func (p *RedisPairingStore) Record(ctx context.Context, a, b string, ttl time.Duration) error {
	if err := p.rdb.Set(ctx, p.key(a, b), "1", ttl).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (p *RedisPairingStore) Exists(ctx context.Context, a, b string) (bool, error) {
	n, err := p.rdb.Exists(ctx, p.key(a, b)).Result()
	if err != nil {
		return false, storeErr(err)
	}
	return n == 1, nil
}

type RedisMatchLocker struct {
	rdb    *redis.Client
	locker *redislock.Client
	key    string
}

func NewRedisMatchLocker(rdb *redis.Client, prefix string) *RedisMatchLocker {
	return &RedisMatchLocker{
		rdb:    rdb,
		locker: redislock.New(rdb),
		key:    prefix + ":matching:lock",
	}
}

func (l *RedisMatchLocker) Acquire(ctx context.Context, ttl time.Duration) (Lock, error) {
	lock, err := l.locker.Obtain(ctx, l.key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, domain.ErrLockNotAcquired
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return redisLock{lock: lock}, nil
}

func (l *RedisMatchLocker) ClearOrphaned(ctx context.Context) (bool, error) {
	ttl, err := l.rdb.PTTL(ctx, l.key).Result()
	if err != nil {
		return false, storeErr(err)
	}
	// -1: key exists without expiry, -2: no key.
	if ttl != -1 {
		return false, nil
	}
	n, err := l.rdb.Del(ctx, l.key).Result()
	if err != nil {
		return false, storeErr(err)
	}
	return n == 1, nil
}

type redisLock struct {
	lock *redislock.Lock
}

func (r redisLock) Release(ctx context.Context) error {
	err := r.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return ErrLockNotHeld
	}
	return err
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
