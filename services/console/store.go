package console

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	cs "github.com/webtor-io/common-services"
)

const (
	stateTTLFlag   = "state-ttl"
	stateStoreFlag = "state-store"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

func RegisterFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.DurationFlag{
			Name:   stateTTLFlag,
			Usage:  "how long an untouched console state is kept",
			Value:  24 * time.Hour,
			EnvVar: "STATE_TTL",
		},
		cli.StringFlag{
			Name:   stateStoreFlag,
			Usage:  "console state store (memory or redis)",
			Value:  StoreMemory,
			EnvVar: "STATE_STORE",
		},
	)
}

// Store keeps console states by console id. A missing id reads as an empty
// State. Update runs fn on the current state and persists the result
// atomically; if fn returns an error nothing is written.
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	Update(ctx context.Context, id string, fn func(s *State) error) (*State, error)
}

func NewStore(c *cli.Context, rc *cs.RedisClient) (Store, error) {
	ttl := c.Duration(stateTTLFlag)
	switch c.String(stateStoreFlag) {
	case StoreRedis:
		log.Info("using redis console state store")
		return NewRedisStore(rc, ttl), nil
	case StoreMemory, "":
		log.Info("using in-memory console state store")
		return NewMemoryStore(ttl), nil
	default:
		return nil, errors.Errorf("unknown console state store %q", c.String(stateStoreFlag))
	}
}

type memoryEntry struct {
	state     *State
	expiresAt time.Time
}

type MemoryStore struct {
	mux       sync.Mutex
	ttl       time.Duration
	states    map[string]*memoryEntry
	lastSweep time.Time
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:    ttl,
		states: map[string]*memoryEntry{},
		now:    time.Now,
	}
}

func (s *MemoryStore) get(id string, now time.Time) *State {
	e, ok := s.states[id]
	if !ok {
		return &State{}
	}
	if s.ttl > 0 && now.After(e.expiresAt) {
		delete(s.states, id)
		return &State{}
	}
	return e.state.Clone()
}

func (s *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.get(id, s.now()), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(s *State) error) (*State, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	now := s.now()
	s.sweep(now)
	st := s.get(id, now)
	if err := fn(st); err != nil {
		return nil, err
	}
	s.states[id] = &memoryEntry{
		state:     st.Clone(),
		expiresAt: now.Add(s.ttl),
	}
	return st, nil
}

func (s *MemoryStore) sweep(now time.Time) {
	if s.ttl <= 0 || now.Sub(s.lastSweep) < s.ttl {
		return
	}
	s.lastSweep = now
	for id, e := range s.states {
		if now.After(e.expiresAt) {
			delete(s.states, id)
		}
	}
}
