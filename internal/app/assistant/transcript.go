package assistant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Transcript keeps the most recent turns of each assistant conversation
type Transcript interface {
	Append(ctx context.Context, key string, turns ...ChatMessage) error
	Recent(ctx context.Context, key string) ([]ChatMessage, error)
}

// MemoryTranscript is a process-local Transcript
type MemoryTranscript struct {
	mu    sync.Mutex
	limit int
	turns map[string][]ChatMessage
}

// NewMemoryTranscript keeps up to limit turns per key
func NewMemoryTranscript(limit int) *MemoryTranscript {
	return &MemoryTranscript{limit: limit, turns: map[string][]ChatMessage{}}
}

func (t *MemoryTranscript) Append(_ context.Context, key string, turns ...ChatMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	all := append(t.turns[key], turns...)
	if len(all) > t.limit {
		all = append([]ChatMessage(nil), all[len(all)-t.limit:]...)
	}
	t.turns[key] = all
	return nil
}

func (t *MemoryTranscript) Recent(_ context.Context, key string) ([]ChatMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ChatMessage(nil), t.turns[key]...), nil
}

// RedisTranscript stores each conversation as a capped redis list
type RedisTranscript struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

// NewRedisTranscript keeps up to limit turns per key; idle keys expire after ttl
func NewRedisTranscript(rdb *redis.Client, limit int, ttl time.Duration) *RedisTranscript {
	return &RedisTranscript{rdb: rdb, limit: limit, ttl: ttl}
}

func (t *RedisTranscript) key(key string) string {
	return "assistant:transcript:" + key
}

func (t *RedisTranscript) Append(ctx context.Context, key string, turns ...ChatMessage) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("failed to marshal turn: %w", err)
		}
		values = append(values, data)
	}

	k := t.key(key)
	pipe := t.rdb.TxPipeline()
	pipe.RPush(ctx, k, values...)
	pipe.LTrim(ctx, k, int64(-t.limit), -1)
	if t.ttl > 0 {
		pipe.Expire(ctx, k, t.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	return nil
}

func (t *RedisTranscript) Recent(ctx context.Context, key string) ([]ChatMessage, error) {
	raw, err := t.rdb.LRange(ctx, t.key(key), int64(-t.limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	turns := make([]ChatMessage, 0, len(raw))
	for _, item := range raw {
		var turn ChatMessage
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}
