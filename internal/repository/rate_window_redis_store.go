package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/rc-quote-api/internal/models"
)

const (
	rateWindowKeyPrefix = "rc:rate:"
	maxTxRetries        = 10
)

// ErrRateWindowContention is returned when optimistic updates keep colliding.
var ErrRateWindowContention = errors.New("rate window update contention")

// RateWindowRedisStore keeps records in redis, updated with WATCH/MULTI so
// concurrent admissions for a key never consume the same slot twice.
type RateWindowRedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRateWindowRedisStore builds the store; ttl should match the rate window.
func NewRateWindowRedisStore(client redis.UniversalClient, ttl time.Duration) *RateWindowRedisStore {
	return &RateWindowRedisStore{client: client, ttl: ttl}
}

// Update runs fn inside an optimistic transaction, retrying when the key changed underneath.
func (s *RateWindowRedisStore) Update(ctx context.Context, key string, fn RateWindowUpdateFunc) error {
	rkey := rateWindowKeyPrefix + key

	txf := func(tx *redis.Tx) error {
		rec := models.NewRateWindowRecord(key)
		raw, err := tx.Get(ctx, rkey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("read rate window: %w", err)
		default:
			if jsonErr := json.Unmarshal(raw, rec); jsonErr != nil {
				rec = models.NewRateWindowRecord(key)
			}
			rec.Key = key
		}

		commit, err := fn(rec)
		if err != nil || !commit {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode rate window: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, data, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, rkey)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrRateWindowContention
}
