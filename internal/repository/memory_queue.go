package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/speeddating/internal/domain"
	"github.com/immxrtalbeast/speeddating/lib/clock"
)

type queuedEntry struct {
	entry     domain.QueueEntry
	seq       uint64
	heartbeat time.Time
}

// InMemoryQueueStore is a single-process QueueStore for tests and local runs.
type InMemoryQueueStore struct {
	mu      sync.RWMutex
	seq     uint64
	entries map[string]*queuedEntry
}

func NewInMemoryQueueStore() *InMemoryQueueStore {
	return &InMemoryQueueStore{entries: make(map[string]*queuedEntry)}
}

func (q *InMemoryQueueStore) Add(ctx context.Context, entry *domain.QueueEntry) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[entry.UserID]; ok {
		return q.positionLocked(entry.UserID), false, nil
	}

	q.seq++
	q.entries[entry.UserID] = &queuedEntry{
		entry:     copyEntry(entry),
		seq:       q.seq,
		heartbeat: entry.JoinedAt,
	}
	return q.positionLocked(entry.UserID), true, nil
}

func (q *InMemoryQueueStore) Remove(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[userID]; !ok {
		return false, nil
	}
	delete(q.entries, userID)
	return true, nil
}

func (q *InMemoryQueueStore) RemovePair(ctx context.Context, a, b string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	_, okA := q.entries[a]
	_, okB := q.entries[b]
	if !okA || !okB || a == b {
		return false, nil
	}
	delete(q.entries, a)
	delete(q.entries, b)
	return true, nil
}

func (q *InMemoryQueueStore) PositionOf(ctx context.Context, userID string) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if _, ok := q.entries[userID]; !ok {
		return 0, false, nil
	}
	return q.positionLocked(userID), true, nil
}

func (q *InMemoryQueueStore) Snapshot(ctx context.Context, limit int) ([]*domain.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	ordered := q.orderedLocked()
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}

	result := make([]*domain.QueueEntry, 0, len(ordered))
	for _, e := range ordered {
		entry := copyEntry(&e.entry)
		result = append(result, &entry)
	}
	return result, nil
}

func (q *InMemoryQueueStore) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries), nil
}

func (q *InMemoryQueueStore) PurgeOlderThan(ctx context.Context, ts time.Time) ([]*domain.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var purged []*domain.QueueEntry
	for _, e := range q.orderedLocked() {
		if !e.entry.JoinedAt.Before(ts) {
			break
		}
		entry := copyEntry(&e.entry)
		purged = append(purged, &entry)
		delete(q.entries, e.entry.UserID)
	}
	return purged, nil
}

func (q *InMemoryQueueStore) Touch(ctx context.Context, userID string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[userID]
	if !ok {
		return false, nil
	}
	e.heartbeat = at
	return true, nil
}

func (q *InMemoryQueueStore) StaleSince(ctx context.Context, before time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	var stale []string
	for _, e := range q.orderedLocked() {
		if e.heartbeat.Before(before) {
			stale = append(stale, e.entry.UserID)
		}
	}
	return stale, nil
}

func (q *InMemoryQueueStore) orderedLocked() []*queuedEntry {
	ordered := make([]*queuedEntry, 0, len(q.entries))
	for _, e := range q.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].entry.JoinedAt.Equal(ordered[j].entry.JoinedAt) {
			return ordered[i].entry.JoinedAt.Before(ordered[j].entry.JoinedAt)
		}
		return ordered[i].seq < ordered[j].seq
	})
	return ordered
}

func (q *InMemoryQueueStore) positionLocked(userID string) int {
	for i, e := range q.orderedLocked() {
		if e.entry.UserID == userID {
			return i + 1
		}
	}
	return 0
}

func copyEntry(e *domain.QueueEntry) domain.QueueEntry {
	out := *e
	if e.Preferences.AgeRange != nil {
		r := *e.Preferences.AgeRange
		out.Preferences.AgeRange = &r
	}
	if e.Preferences.Interests != nil {
		out.Preferences.Interests = append([]string(nil), e.Preferences.Interests...)
	}
	return out
}

// InMemoryPairingStore keeps recent pairings until their TTL passes on the given clock.
type InMemoryPairingStore struct {
	mu    sync.Mutex
	clock clock.Clock
	pairs map[[2]string]time.Time
}

func NewInMemoryPairingStore(c clock.Clock) *InMemoryPairingStore {
	if c == nil {
		c = clock.Real{}
	}
	return &InMemoryPairingStore{clock: c, pairs: make(map[[2]string]time.Time)}
}

func (p *InMemoryPairingStore) Record(ctx context.Context, a, b string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lo, hi := domain.PairKey(a, b)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pairs[[2]string{lo, hi}] = p.clock.Now().Add(ttl)
	return nil
}

func (p *InMemoryPairingStore) Exists(ctx context.Context, a, b string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	lo, hi := domain.PairKey(a, b)
	key := [2]string{lo, hi}

	p.mu.Lock()
	defer p.mu.Unlock()

	expiresAt, ok := p.pairs[key]
	if !ok {
		return false, nil
	}
	if !p.clock.Now().Before(expiresAt) {
		delete(p.pairs, key)
		return false, nil
	}
	return true, nil
}

// InMemoryMatchLocker is a set-if-not-exists lock with TTL on the given clock.
type InMemoryMatchLocker struct {
	mu        sync.Mutex
	clock     clock.Clock
	token     string
	expiresAt time.Time
}

func NewInMemoryMatchLocker(c clock.Clock) *InMemoryMatchLocker {
	if c == nil {
		c = clock.Real{}
	}
	return &InMemoryMatchLocker{clock: c}
}

func (l *InMemoryMatchLocker) Acquire(ctx context.Context, ttl time.Duration) (Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if l.token != "" && (l.expiresAt.IsZero() || now.Before(l.expiresAt)) {
		return nil, domain.ErrLockNotAcquired
	}

	l.token = uuid.NewString()
	l.expiresAt = time.Time{}
	if ttl > 0 {
		l.expiresAt = now.Add(ttl)
	}
	return &memoryLock{owner: l, token: l.token}, nil
}

func (l *InMemoryMatchLocker) ClearOrphaned(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token != "" && l.expiresAt.IsZero() {
		l.token = ""
		return true, nil
	}
	return false, nil
}

// Held reports whether a lock is currently in force.
func (l *InMemoryMatchLocker) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token != "" && (l.expiresAt.IsZero() || l.clock.Now().Before(l.expiresAt))
}

type memoryLock struct {
	owner *InMemoryMatchLocker
	token string
}

func (m *memoryLock) Release(ctx context.Context) error {
	m.owner.mu.Lock()
	defer m.owner.mu.Unlock()

	if m.owner.token != m.token {
		return ErrLockNotHeld
	}
	m.owner.token = ""
	m.owner.expiresAt = time.Time{}
	return nil
}
