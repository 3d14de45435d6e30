package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryRedis struct {
	values map[string]string
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	value, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestRedisLockIsPerJob(t *testing.T) {
	store := &memoryRedis{values: map[string]string{}}
	lock, err := NewRedisLock(store, "fs:cron:lock", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "sweeper"); !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	if ok, _ := lock.Acquire(ctx, "sweeper"); ok {
		t.Fatalf("expected second acquire of same job to fail")
	}
	if ok, _ := lock.Acquire(ctx, "menu-sync-tick"); !ok {
		t.Fatalf("expected other job to acquire its own lock")
	}
	if err := lock.Release(ctx, "sweeper"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok := store.values["fs:cron:lock:sweeper"]; ok {
		t.Fatalf("expected lock key removed")
	}
	if _, ok := store.values["fs:cron:lock:menu-sync-tick"]; !ok {
		t.Fatalf("expected other lock untouched")
	}
}

func TestRedisLockReleaseKeepsForeignOwner(t *testing.T) {
	store := &memoryRedis{values: map[string]string{}}
	lock, _ := NewRedisLock(store, "fs:cron:lock", time.Minute)
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "sweeper"); !ok {
		t.Fatalf("expected acquire")
	}
	// The TTL lapsed and another replica took over.
	store.values["fs:cron:lock:sweeper"] = "someone-else"
	if err := lock.Release(ctx, "sweeper"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["fs:cron:lock:sweeper"] != "someone-else" {
		t.Fatalf("foreign lock must not be deleted")
	}
}
