package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis implements the Get/Set/Del slice of redis.Cmdable over a map.
type fakeRedis struct {
	redis.Cmdable

	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	default:
		return redis.NewStatusResult("", errors.New("unsupported value type"))
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			delete(f.ttls, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestNewRedisStoreValidatesInput(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisStore(nil); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewRedisStore(newFakeRedis(), WithTTL(-time.Second)); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	store, err := NewRedisStore(client, WithKeyPrefix("test:conv:"), WithTTL(time.Hour))
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	ctx := context.Background()

	st := NewConversationState("conv-1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err := st.Apply(AppendMessages(UserMessage("hi"))); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, ok := client.data["test:conv:conv-1"]; !ok {
		t.Fatalf("keys = %v, want test:conv:conv-1", client.data)
	}
	if got := client.ttls["test:conv:conv-1"]; got != time.Hour {
		t.Fatalf("ttl = %v, want 1h", got)
	}

	loaded, err := store.Load(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.ConversationID != "conv-1" || len(loaded.Messages) != 1 || loaded.Messages[0].Content != "hi" {
		t.Fatalf("loaded = %#v", loaded)
	}

	if err := store.Delete(ctx, "conv-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "conv-1"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() after delete error = %v, want ErrStateNotFound", err)
	}
}

func TestRedisStoreDefaultsAndNotFound(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	store, err := NewRedisStore(client)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() error = %v, want ErrStateNotFound", err)
	}

	if err := store.Save(ctx, NewConversationState("conv-2", time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got := client.ttls["shop:conversation:conv-2"]; got != 24*time.Hour {
		t.Fatalf("ttl = %v, want 24h", got)
	}
}

func TestRedisStoreRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	store, err := NewRedisStore(client)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	ctx := context.Background()

	if _, err := store.Load(ctx, "  "); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("Load(blank) error = %v, want ErrInvalidSession", err)
	}
	if err := store.Delete(ctx, ""); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("Delete(blank) error = %v, want ErrInvalidSession", err)
	}
	if err := store.Save(ctx, nil); !errors.Is(err, ErrNilState) {
		t.Fatalf("Save(nil) error = %v, want ErrNilState", err)
	}

	client.data["shop:conversation:bad"] = "not json"
	if _, err := store.Load(ctx, "bad"); err == nil || errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load(corrupt) error = %v", err)
	}
}

func TestRedisStoreWrapsClientErrors(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	client.err = errors.New("connection reset")
	store, err := NewRedisStore(client)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	ctx := context.Background()

	if _, err := store.Load(ctx, "conv"); !errors.Is(err, client.err) || errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() error = %v", err)
	}
	if err := store.Save(ctx, NewConversationState("conv", time.Now())); !errors.Is(err, client.err) {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete(ctx, "conv"); !errors.Is(err, client.err) {
		t.Fatalf("Delete() error = %v", err)
	}
}
