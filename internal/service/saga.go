package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Saga states for the two-phase order write.
const (
	SagaHeaderCreated = "header_created"
	SagaCompleted     = "completed"
	SagaCompensated   = "compensated"
	SagaOrphaned      = "orphaned"
)

// SagaEntry records that a header exists whose line items may not. Entries in
// the header_created or orphaned state are candidates for reconciliation.
type SagaEntry struct {
	ID             string    `json:"id"`
	HeaderRecordID int       `json:"headerRecordId"`
	State          string    `json:"state"`
	CreatedAt      time.Time `json:"createdAt"`
}

// SagaLog persists the pending state between the header write and the
// line-item write, so orphaned headers are visible to a sweep instead of
// silently accumulating.
type SagaLog interface {
	Record(ctx context.Context, entry SagaEntry) error
	Resolve(ctx context.Context, id, state string) error
	Pending(ctx context.Context) ([]SagaEntry, error)
}

// sagaTTL bounds how long resolved and pending entries stay visible.
const sagaTTL = 7 * 24 * time.Hour

const sagaKeyPrefix = "order:saga:"

// RedisSagaLog stores entries as JSON under order:saga:<id>.
type RedisSagaLog struct {
	rdb *redis.Client
}

// NewRedisSagaLog creates a Redis-backed saga log.
func NewRedisSagaLog(rdb *redis.Client) *RedisSagaLog {
	return &RedisSagaLog{rdb: rdb}
}

func (l *RedisSagaLog) Record(ctx context.Context, entry SagaEntry) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode saga entry: %w", err)
	}
	if err := l.rdb.Set(ctx, sagaKeyPrefix+entry.ID, encoded, sagaTTL).Err(); err != nil {
		return fmt.Errorf("failed to record saga entry: %w", err)
	}
	return nil
}

func (l *RedisSagaLog) Resolve(ctx context.Context, id, state string) error {
	key := sagaKeyPrefix + id
	if state == SagaCompleted || state == SagaCompensated {
		// Nothing left to reconcile.
		return l.rdb.Del(ctx, key).Err()
	}

	raw, err := l.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return fmt.Errorf("failed to load saga entry %s: %w", id, err)
	}
	var entry SagaEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fmt.Errorf("failed to decode saga entry %s: %w", id, err)
	}
	entry.State = state
	encoded, _ := json.Marshal(entry)
	return l.rdb.Set(ctx, key, encoded, sagaTTL).Err()
}

func (l *RedisSagaLog) Pending(ctx context.Context) ([]SagaEntry, error) {
	var entries []SagaEntry
	iter := l.rdb.Scan(ctx, 0, sagaKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := l.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var entry SagaEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if entry.State == SagaHeaderCreated || entry.State == SagaOrphaned {
			entries = append(entries, entry)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan saga entries: %w", err)
	}
	return entries, nil
}

// MemorySagaLog is the fallback when no Redis address is configured. Pending
// state survives only as long as the process does.
type MemorySagaLog struct {
	mu      sync.Mutex
	entries map[string]SagaEntry
}

// NewMemorySagaLog creates an in-process saga log.
func NewMemorySagaLog() *MemorySagaLog {
	return &MemorySagaLog{entries: make(map[string]SagaEntry)}
}

func (l *MemorySagaLog) Record(_ context.Context, entry SagaEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[entry.ID] = entry
	return nil
}

func (l *MemorySagaLog) Resolve(_ context.Context, id, state string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if state == SagaCompleted || state == SagaCompensated {
		delete(l.entries, id)
		return nil
	}
	entry, ok := l.entries[id]
	if !ok {
		return fmt.Errorf("unknown saga entry %s", id)
	}
	entry.State = state
	l.entries[id] = entry
	return nil
}

func (l *MemorySagaLog) Pending(_ context.Context) ([]SagaEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var entries []SagaEntry
	for _, entry := range l.entries {
		if entry.State == SagaHeaderCreated || entry.State == SagaOrphaned {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
