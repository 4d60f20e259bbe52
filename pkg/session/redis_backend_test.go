package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *RedisBackend) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	backend := NewRedisBackendFromClient(client, "test:", 0)

	t.Cleanup(func() {
		_ = backend.Close()
	})

	return mr, backend
}

func TestRedisBackend_SaveAndLoadRoundTrip(t *testing.T) {
	_, backend := setupMiniredis(t)
	ctx := context.Background()

	want := sampleState()
	if err := backend.Save(ctx, "12345", want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := backend.Load(ctx, "12345")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got.Mood != want.Mood {
		t.Errorf("Mood mismatch: got %s, want %s", got.Mood, want.Mood)
	}
	if got.InteractionCount != want.InteractionCount {
		t.Errorf("InteractionCount mismatch: got %d, want %d", got.InteractionCount, want.InteractionCount)
	}
	if len(got.Transcript) != len(want.Transcript) {
		t.Errorf("Transcript length mismatch: got %d, want %d", len(got.Transcript), len(want.Transcript))
	}
	if len(got.Memories) != 1 || got.Memories[0].Content != "Suka kopi" {
		t.Errorf("unexpected memories: %+v", got.Memories)
	}
}

func TestRedisBackend_LoadNotFound(t *testing.T) {
	_, backend := setupMiniredis(t)

	_, err := backend.Load(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisBackend_MalformedRecordTreatedAsAbsent(t *testing.T) {
	mr, backend := setupMiniredis(t)

	if err := mr.Set("test:777", "{corrupt"); err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}

	_, err := backend.Load(context.Background(), "777")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for corrupt record, got %v", err)
	}
}

func TestRedisBackend_Exists(t *testing.T) {
	_, backend := setupMiniredis(t)
	ctx := context.Background()

	ok, err := backend.Exists(ctx, "9")
	if err != nil || ok {
		t.Errorf("expected absent, got ok=%v err=%v", ok, err)
	}

	if err := backend.Save(ctx, "9", sampleState()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	ok, err = backend.Exists(ctx, "9")
	if err != nil || !ok {
		t.Errorf("expected present, got ok=%v err=%v", ok, err)
	}
}

func TestRedisBackend_TTLApplied(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackendFromClient(client, "test:", time.Minute)
	t.Cleanup(func() { _ = backend.Close() })
	ctx := context.Background()

	if err := backend.Save(ctx, "55", sampleState()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	_, err := backend.Load(ctx, "55")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected record to expire, got %v", err)
	}
}

func TestRedisBackend_ClosedReturnsError(t *testing.T) {
	_, backend := setupMiniredis(t)
	_ = backend.Close()

	if err := backend.Save(context.Background(), "1", sampleState()); !errors.Is(err, ErrStorageClosed) {
		t.Errorf("expected ErrStorageClosed, got %v", err)
	}
}
