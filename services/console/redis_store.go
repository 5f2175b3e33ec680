package console

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	cs "github.com/webtor-io/common-services"
)

const (
	redisKeyPrefix     = "console:"
	redisUpdateRetries = 10
)

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type RedisStore struct {
	cl  redis.UniversalClient
	ttl time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore keeps states in Redis through the shared client; closing the
// client is left to its owner.
func NewRedisStore(rc *cs.RedisClient, ttl time.Duration) *RedisStore {
	return NewRedisStoreWithClient(rc.Get(), ttl)
}

func NewRedisStoreWithClient(cl redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{
		cl:  cl,
		ttl: ttl,
	}
}

func (s *RedisStore) key(id string) string {
	return redisKeyPrefix + id
}

func (s *RedisStore) load(ctx context.Context, cmd stringGetter, key string) (*State, error) {
	data, err := cmd.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return &State{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get console state")
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errors.Wrap(err, "failed to decode console state")
	}
	return &st, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*State, error) {
	return s.load(ctx, s.cl, s.key(id))
}

// Update uses optimistic locking: the transaction is retried when the key
// changes between WATCH and EXEC.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(s *State) error) (*State, error) {
	key := s.key(id)
	var res *State
	txf := func(tx *redis.Tx) error {
		st, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := fn(st); err != nil {
			return err
		}
		data, err := json.Marshal(st)
		if err != nil {
			return errors.Wrap(err, "failed to encode console state")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		res = st
		return nil
	}
	for i := 0; i < redisUpdateRetries; i++ {
		err := s.cl.Watch(ctx, txf, key)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, errors.Errorf("console state %v is too contended", id)
}
