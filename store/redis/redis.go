package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/distcache/store"
)

var ErrNilClient = errors.New("redis store: nil client")

type Redis struct {
	rdb           goredis.UniversalClient
	closeClient   bool
	pipelineReads bool

	scripts sync.Map // source -> *goredis.Script
}

var _ store.Store = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this store exclusively owns the client

	// PipelineReads makes GetMany pipeline single-key GETs instead of one MGET.
	// Always on for *redis.ClusterClient, where MGET across slots fails with
	// CROSSSLOT. Set it for proxies that do not split multi-key commands.
	PipelineReads bool
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	_, cluster := cfg.Client.(*goredis.ClusterClient)
	return &Redis{
		rdb:           cfg.Client,
		closeClient:   cfg.CloseClient,
		pipelineReads: cfg.PipelineReads || cluster,
	}, nil
}

func (s *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

// GetMany issues a single MGET, or a pipeline of GETs when reads may span slots.
func (s *Redis) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if s.pipelineReads {
		return s.getPipelined(ctx, keys)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	for i, v := range vals {
		switch vv := v.(type) {
		case nil:
		case string:
			out[i] = []byte(vv)
		case []byte:
			out[i] = vv
		default:
			return nil, fmt.Errorf("redis mget at %s: unexpected reply %T", keys[i], v)
		}
	}
	return out, nil
}

// getPipelined lets the cluster client route each GET to its own slot owner.
func (s *Redis) getPipelined(ctx context.Context, keys []string) ([][]byte, error) {
	cmds := make([]*goredis.StringCmd, len(keys))
	_, err := s.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.Get(ctx, k)
		}
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, err
	}
	out := make([][]byte, len(keys))
	for i, cmd := range cmds {
		b, err := cmd.Bytes()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis get at %s: %w", keys[i], err)
		}
		out[i] = b
	}
	return out, nil
}

func (s *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0 // no expiry
	}
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *Redis) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	return s.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (s *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Eval runs the script's Lua source via EVALSHA, falling back to EVAL on NOSCRIPT.
// A nil script reply is returned as (nil, nil).
func (s *Redis) Eval(ctx context.Context, script *store.Script, keys []string, args ...any) (any, error) {
	if script == nil || script.Source() == "" {
		return nil, store.ErrScriptUnsupported
	}
	res, err := s.script(script.Source()).Run(ctx, s.rdb, keys, args...).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	return res, err
}

func (s *Redis) script(src string) *goredis.Script {
	if v, ok := s.scripts.Load(src); ok {
		return v.(*goredis.Script)
	}
	v, _ := s.scripts.LoadOrStore(src, goredis.NewScript(src))
	return v.(*goredis.Script)
}

func (s *Redis) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (s *Redis) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
