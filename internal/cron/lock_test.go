package cron

import (
	"context"
	"testing"
	"time"
)

type fakeRedisStore struct {
	values map[string]string
}

func newFakeRedisStore() *fakeRedisStore {
	return &fakeRedisStore{values: map[string]string{}}
}

func (f *fakeRedisStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeRedisStore) Get(_ context.Context, key string) (string, error) {
	return f.values[key], nil
}

func (f *fakeRedisStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func TestRedisLockAcquireRelease(t *testing.T) {
	t.Parallel()
	store := newFakeRedisStore()
	lock, err := NewRedisLock(store, "trace:test:lock", time.Minute)
	if err != nil {
		t.Fatalf("construct lock: %v", err)
	}

	ok, err := lock.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("expected to acquire free lock")
	}

	other, err := NewRedisLock(store, "trace:test:lock", time.Minute)
	if err != nil {
		t.Fatalf("construct second lock: %v", err)
	}
	ok, err = other.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("expected contended acquire to fail")
	}

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = other.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if !ok {
		t.Fatal("expected acquire to succeed after release")
	}
}

func TestRedisLockReleaseOnlyWhenOwner(t *testing.T) {
	t.Parallel()
	store := newFakeRedisStore()
	holder, err := NewRedisLock(store, "trace:test:owner", time.Minute)
	if err != nil {
		t.Fatalf("construct lock: %v", err)
	}
	if ok, _ := holder.Acquire(context.Background()); !ok {
		t.Fatal("expected acquire to succeed")
	}

	stranger, err := NewRedisLock(store, "trace:test:owner", time.Minute)
	if err != nil {
		t.Fatalf("construct second lock: %v", err)
	}
	if err := stranger.Release(context.Background()); err != nil {
		t.Fatalf("stranger release: %v", err)
	}
	if ok, _ := stranger.Acquire(context.Background()); ok {
		t.Fatal("stranger release must not free the holder's lock")
	}
}
