package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/intervox/pkg/memory"
)

func setupStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, opts...), mr
}

func TestStore_AppendAndRecent(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	_ = store.Append(ctx, "s1", memory.Message{Role: memory.RoleAssistant, Content: "Hi"})
	if err := store.Append(ctx, "s1",
		memory.Message{Role: memory.RoleUser, Content: "Hello"},
		memory.Message{Role: memory.RoleAssistant, Content: "First question"},
	); err != nil {
		t.Fatalf("Append: %v", err)
	}

	all, err := store.Recent(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 3 || all[0].Content != "Hi" || all[2].Content != "First question" {
		t.Errorf("all = %+v", all)
	}

	last, _ := store.Recent(ctx, "s1", 2)
	if len(last) != 2 || last[0].Role != memory.RoleUser {
		t.Errorf("last = %+v", last)
	}

	more, _ := store.Recent(ctx, "s1", 50)
	if len(more) != 3 {
		t.Errorf("len(Recent(50)) = %d, want 3", len(more))
	}
}

func TestStore_UnknownSessionIsEmpty(t *testing.T) {
	store, _ := setupStore(t)
	got, err := store.Recent(context.Background(), "missing", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Recent = %#v, want empty non-nil slice", got)
	}
}

func TestStore_TTL(t *testing.T) {
	store, mr := setupStore(t, WithTTL(time.Hour), WithPrefix("test"))
	ctx := context.Background()

	_ = store.Append(ctx, "s1", memory.Message{Role: memory.RoleUser, Content: "x"})
	if !mr.Exists("test:history:s1") {
		t.Fatal("key test:history:s1 not written")
	}
	if ttl := mr.TTL("test:history:s1"); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	mr.FastForward(30 * time.Minute)
	_ = store.Append(ctx, "s1", memory.Message{Role: memory.RoleAssistant, Content: "y"})
	if ttl := mr.TTL("test:history:s1"); ttl != time.Hour {
		t.Errorf("TTL after append = %v, want refreshed 1h", ttl)
	}

	mr.FastForward(2 * time.Hour)
	got, _ := store.Recent(ctx, "s1", 0)
	if len(got) != 0 {
		t.Errorf("Recent after expiry = %+v, want empty", got)
	}
}

func TestStore_NoTTL(t *testing.T) {
	store, mr := setupStore(t, WithTTL(0))
	_ = store.Append(context.Background(), "s1", memory.Message{Role: memory.RoleUser, Content: "x"})
	if ttl := mr.TTL("intervox:history:s1"); ttl != 0 {
		t.Errorf("TTL = %v, want none", ttl)
	}
}

func TestStore_Delete(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()
	_ = store.Append(ctx, "s1", memory.Message{Role: memory.RoleUser, Content: "x"})
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if mr.Exists("intervox:history:s1") {
		t.Error("key still exists after Delete")
	}
}

func TestStore_EmptySessionID(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	if err := store.Append(ctx, "", memory.Message{}); !errors.Is(err, memory.ErrInvalidSession) {
		t.Errorf("Append err = %v", err)
	}
	if _, err := store.Recent(ctx, "", 1); !errors.Is(err, memory.ErrInvalidSession) {
		t.Errorf("Recent err = %v", err)
	}
}

func TestStore_ServerDown(t *testing.T) {
	store, mr := setupStore(t)
	mr.Close()
	if _, err := store.Recent(context.Background(), "s1", 1); err == nil {
		t.Error("Recent against closed server: err = nil")
	}
}
