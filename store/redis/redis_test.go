package redis

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/distcache/store"
)

func newStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	st, err := New(Config{Client: rdb, CloseClient: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	return st, mr
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("err=%v want ErrNilClient", err)
	}
}

func TestGetSetTTL(t *testing.T) {
	ctx := context.Background()
	st, mr := newStore(t)

	if _, ok, err := st.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	want := []byte{0, 1, 2, 0xff}
	if err := st.Set(ctx, "k", want, time.Second); err != nil {
		t.Fatal(err)
	}
	v, ok, err := st.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(v, want) {
		t.Fatalf("got=%x want %x", v, want)
	}
	if ttl := mr.TTL("k"); ttl != time.Second {
		t.Fatalf("ttl=%v want 1s", ttl)
	}

	if err := st.Set(ctx, "nottl", []byte("x"), -time.Second); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("nottl"); ttl != 0 {
		t.Fatalf("negative ttl should mean no expiry, got %v", ttl)
	}

	mr.FastForward(time.Second)
	if ok, err := st.Exists(ctx, "k"); err != nil || ok {
		t.Fatalf("expired key still exists: ok=%v err=%v", ok, err)
	}
}

func TestSetNX(t *testing.T) {
	ctx := context.Background()
	st, mr := newStore(t)

	if ok, err := st.SetNX(ctx, "lock", []byte("a"), 5*time.Second); err != nil || !ok {
		t.Fatalf("first SetNX: ok=%v err=%v", ok, err)
	}
	if ok, err := st.SetNX(ctx, "lock", []byte("b"), 5*time.Second); err != nil || ok {
		t.Fatalf("second SetNX should fail: ok=%v err=%v", ok, err)
	}

	if got, _ := mr.Get("lock"); got != "a" {
		t.Fatalf("lock=%q want a", got)
	}
	if ttl := mr.TTL("lock"); ttl != 5*time.Second {
		t.Fatalf("ttl=%v want 5s", ttl)
	}
}

func checkGetManyAndDel(t *testing.T, st *Redis) {
	t.Helper()
	ctx := context.Background()

	if err := st.Set(ctx, "a", []byte("1"), 0); err != nil {
		t.Fatal(err)
	}
	if err := st.Set(ctx, "c", []byte("3"), 0); err != nil {
		t.Fatal(err)
	}

	vals, err := st.GetMany(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 3 || string(vals[0]) != "1" || vals[1] != nil || string(vals[2]) != "3" {
		t.Fatalf("got=%q want [1 <nil> 3]", vals)
	}

	if err := st.Del(ctx, "a", "c"); err != nil {
		t.Fatal(err)
	}
	if err := st.Del(ctx); err != nil {
		t.Fatal(err)
	}
	vals, err = st.GetMany(ctx, []string{"a", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 2 || vals[0] != nil || vals[1] != nil {
		t.Fatalf("after del got=%q want two nils", vals)
	}
}

func TestGetManyAndDel(t *testing.T) {
	st, _ := newStore(t)
	checkGetManyAndDel(t, st)
}

func TestGetManyPipelined(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	st, err := New(Config{Client: rdb, CloseClient: true, PipelineReads: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	checkGetManyAndDel(t, st)
}

func TestGetManyOnClusterClient(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClusterClient(&goredis.ClusterOptions{Addrs: []string{mr.Addr()}})
	st, err := New(Config{Client: rdb, CloseClient: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close(ctx) })

	if !st.pipelineReads {
		t.Fatal("cluster client must read through a pipeline, MGET fails across slots")
	}
	// keys that hash to different slots on a real cluster
	if err := st.Set(ctx, "app:tag:users", []byte("u"), 0); err != nil {
		t.Fatal(err)
	}
	if err := st.Set(ctx, "app:tag:orders", []byte("o"), 0); err != nil {
		t.Fatal(err)
	}
	vals, err := st.GetMany(ctx, []string{"app:tag:users", "app:tag:none", "app:tag:orders"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 3 || string(vals[0]) != "u" || vals[1] != nil || string(vals[2]) != "o" {
		t.Fatalf("got=%q want [u <nil> o]", vals)
	}
}

func TestGetManyPipelinedServerError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	st, err := New(Config{Client: rdb, CloseClient: true, PipelineReads: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	mr.SetError("ERR server unavailable")
	if _, err := st.GetMany(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected server error from pipelined reads")
	}
}

func TestEval(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t)

	incr := store.NewScript(`return redis.call("INCRBY", KEYS[1], ARGV[1])`, nil)
	res, err := st.Eval(ctx, incr, []string{"n"}, 2)
	if err != nil || res != int64(2) {
		t.Fatalf("first incr: res=%v err=%v", res, err)
	}
	res, err = st.Eval(ctx, incr, []string{"n"}, 3)
	if err != nil || res != int64(5) {
		t.Fatalf("second incr: res=%v err=%v", res, err)
	}

	nilReply := store.NewScript(`return redis.call("GET", KEYS[1])`, nil)
	res, err = st.Eval(ctx, nilReply, []string{"absent"})
	if err != nil || res != nil {
		t.Fatalf("nil reply: res=%v err=%v", res, err)
	}

	local := store.NewScript("", func(store.Tx, []string, ...any) (any, error) { return nil, nil })
	if _, err := st.Eval(ctx, local, nil); !errors.Is(err, store.ErrScriptUnsupported) {
		t.Fatalf("script without source: err=%v", err)
	}
}

func TestPingAndClose(t *testing.T) {
	ctx := context.Background()
	st, mr := newStore(t)
	if err := st.Ping(ctx); err != nil {
		t.Fatal(err)
	}

	mr.SetError("ERR server unavailable")
	if err := st.Ping(ctx); err == nil {
		t.Fatal("ping should surface server error")
	}
	mr.SetError("")

	if err := st.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(ctx); err != nil {
		t.Fatalf("second close is a no-op, got %v", err)
	}
	if err := st.Ping(ctx); err == nil {
		t.Fatal("ping after close should fail")
	}
}

func TestSharedClientNotClosed(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	st, err := New(Config{Client: rdb})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("shared client closed by store: %v", err)
	}
}

func TestConnConfigValidate(t *testing.T) {
	bad := []ConnConfig{
		{},
		{Addrs: []string{""}},
		{Addrs: []string{"x:6379"}, DB: -1},
		{Addrs: []string{"x:6379"}, MaxRetries: -2},
		{Addrs: []string{"x:6379"}, DialTimeout: -time.Second},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error for %+v", i, c)
		}
	}
	if err := (ConnConfig{Addrs: []string{"x:6379"}, MaxRetries: -1, PoolSize: 10}).Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestNewClient(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	if _, err := NewClient(ConnConfig{}); err == nil {
		t.Fatal("empty config should fail")
	}

	rdb, err := NewClient(ConnConfig{Addrs: []string{mr.Addr()}})
	if err != nil {
		t.Fatal(err)
	}
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}
}
