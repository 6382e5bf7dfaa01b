package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosly/envelope-stock/pkg/config"
)

func TestIncrWithTTLOpensWindowOnFirstHit(t *testing.T) {
	ctx := context.Background()
	mock := newMockCommander()
	client := &Client{cmd: mock}
	key := client.RateLimitKey("login:203.0.113.7")

	for want := int64(1); want <= 3; want++ {
		count, err := client.IncrWithTTL(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}
	assert.Equal(t, map[string]int64{key: time.Minute.Milliseconds()}, mock.windows)
}

func TestDelIfValueOnlyReleasesOwner(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newMockCommander()}
	key := client.LockKey("reconcile", "default")

	ok, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := client.DelIfValue(ctx, key, "owner-b")
	require.NoError(t, err)
	assert.False(t, deleted, "foreign owner must not release the lease")

	deleted, err = client.DelIfValue(ctx, key, "owner-a")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, Nil)
}

func TestJSONCacheMissThenHit(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newMockCommander()}

	type window struct {
		Orders int `json:"orders"`
	}
	key := client.CacheKey("orders", "2025-03-01", "2025-03-07")

	var got window
	found, err := client.GetJSON(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, client.SetJSON(ctx, key, window{Orders: 12}, time.Minute))
	found, err = client.GetJSON(ctx, key, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 12, got.Orders)
}

func TestUnconnectedClientFails(t *testing.T) {
	client := &Client{}
	ctx := context.Background()

	assert.ErrorIs(t, client.Ping(ctx), ErrNotConnected)
	_, err := client.IncrWithTTL(ctx, "k", time.Second)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, client.Close())
}

func TestKeyspace(t *testing.T) {
	var keys Keyspace
	assert.Equal(t, "mosly:idempotency:scope:id", keys.IdempotencyKey("scope", "id"))
	assert.Equal(t, "mosly:rate_limit:scope", keys.RateLimitKey("scope"))
	assert.Equal(t, "mosly:session:access:jti", keys.AccessSessionKey("jti"))
	assert.Equal(t, "mosly:lock:cron-worker:prod", keys.LockKey("cron-worker", "prod"))
	assert.Equal(t, "mosly:cache:orders:range", keys.CacheKey("orders", " ", "range"))

	staging := Keyspace{Prefix: "mosly-staging"}
	assert.Equal(t, "mosly-staging:lock:reconcile", staging.LockKey("reconcile"))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://:secret@cache.internal:6380/2",
		PoolSize:    7,
		DialTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 3*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 4})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 4, opts.DB)
}

// mockCommander runs the two scripts in memory, keyed by their SHA.
type mockCommander struct {
	data    map[string]string
	counts  map[string]int64
	windows map[string]int64
}

func newMockCommander() *mockCommander {
	return &mockCommander{
		data:    map[string]string{},
		counts:  map[string]int64{},
		windows: map[string]int64{},
	}
}

func (m *mockCommander) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCommander) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = stringify(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCommander) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCommander) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = stringify(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCommander) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCommander) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	if len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script arity"))
	}
	key := keys[0]
	switch sha {
	case releaseIfOwner.Hash():
		if v, ok := m.data[key]; ok && v == stringify(args[0]) {
			delete(m.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	case countInWindow.Hash():
		m.counts[key]++
		if m.counts[key] == 1 {
			m.windows[key] = args[0].(int64)
		}
		return redis.NewCmdResult(m.counts[key], nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unknown script %s", sha))
}

func (m *mockCommander) Eval(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return redis.NewCmdResult(nil, fmt.Errorf("eval not expected"))
}

func (m *mockCommander) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return m.Eval(ctx, script, keys, args...)
}

func (m *mockCommander) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *mockCommander) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (m *mockCommander) ScriptLoad(_ context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func stringify(value any) string {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(value)
}
