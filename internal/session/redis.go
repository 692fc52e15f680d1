package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Skufu/cardioscore/internal/report"
)

const keyPrefix = "cardioscore:session:"

// RedisStore keeps each session's history in a capped list and its patients
// in a hash. Every write refreshes the session TTL.
type RedisStore struct {
	client redis.Cmdable
	limit  int
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, limit int, ttl time.Duration) *RedisStore {
	if limit <= 0 {
		limit = 100
	}
	return &RedisStore{client: client, limit: limit, ttl: ttl}
}

func historyKey(sessionID string) string { return keyPrefix + sessionID + ":history" }

func patientsKey(sessionID string) string { return keyPrefix + sessionID + ":patients" }

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Append(ctx context.Context, sessionID string, entry report.Entry) error {
	if !ValidID(sessionID) {
		return fmt.Errorf("append %q: %w", sessionID, ErrInvalidSessionID)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	key := historyKey(sessionID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-r.limit), -1)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append %s: %w", sessionID, err)
	}
	return nil
}

func (r *RedisStore) History(ctx context.Context, sessionID string) ([]report.Entry, error) {
	raw, err := r.client.LRange(ctx, historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis history %s: %w", sessionID, err)
	}
	out := make([]report.Entry, 0, len(raw))
	for _, item := range raw {
		var e report.Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *RedisStore) SavePatient(ctx context.Context, sessionID string, p Patient) error {
	if !ValidID(sessionID) {
		return fmt.Errorf("save patient %q: %w", sessionID, ErrInvalidSessionID)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal patient: %w", err)
	}

	key := patientsKey(sessionID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, p.Name, data)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save patient %s: %w", sessionID, err)
	}
	return nil
}

func (r *RedisStore) Patient(ctx context.Context, sessionID, name string) (Patient, error) {
	raw, err := r.client.HGet(ctx, patientsKey(sessionID), name).Result()
	if errors.Is(err, redis.Nil) {
		return Patient{}, fmt.Errorf("patient %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Patient{}, fmt.Errorf("redis patient %s: %w", sessionID, err)
	}
	var p Patient
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Patient{}, fmt.Errorf("decode patient: %w", err)
	}
	return p, nil
}

func (r *RedisStore) Patients(ctx context.Context, sessionID string) ([]Patient, error) {
	raw, err := r.client.HGetAll(ctx, patientsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis patients %s: %w", sessionID, err)
	}
	out := make([]Patient, 0, len(raw))
	for _, item := range raw {
		var p Patient
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			return nil, fmt.Errorf("decode patient: %w", err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
