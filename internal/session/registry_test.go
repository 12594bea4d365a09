package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeBackend simulates the session service: sessions exist until deleted
// or explicitly invalidated.
type fakeBackend struct {
	mu          sync.Mutex
	createDelay time.Duration
	failCreate  error
	failDelete  error
	created     int
	valid       map[string]bool
	deleted     []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{valid: make(map[string]bool)}
}

func (f *fakeBackend) CreateSession(ctx context.Context) (string, error) {
	if f.failCreate != nil {
		return "", f.failCreate
	}
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}
	id := "thread_" + uuid.NewString()
	f.mu.Lock()
	f.created++
	f.valid[id] = true
	f.mu.Unlock()
	return id, nil
}

func (f *fakeBackend) SessionValid(ctx context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.valid[sessionID], nil
}

func (f *fakeBackend) DeleteSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		return f.failDelete
	}
	delete(f.valid, sessionID)
	f.deleted = append(f.deleted, sessionID)
	return nil
}

func (f *fakeBackend) invalidate(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid[sessionID] = false
}

func (f *fakeBackend) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func TestResolveCreatesOnce(t *testing.T) {
	backend := newFakeBackend()
	r := NewRegistry(backend)
	key := Key{ChatID: 1, UserID: 2}

	first, err := r.Resolve(context.Background(), key)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), key)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if first != second {
		t.Fatalf("expected same session id, got %q and %q", first, second)
	}
	if backend.createdCount() != 1 {
		t.Fatalf("expected 1 backend create, got %d", backend.createdCount())
	}
}

func TestResolveConcurrentSameKeyCreatesOne(t *testing.T) {
	backend := newFakeBackend()
	backend.createDelay = 5 * time.Millisecond // widen the race window
	r := NewRegistry(backend)
	key := Key{ChatID: 7, UserID: 7}

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.Resolve(context.Background(), key)
			if err != nil {
				t.Errorf("resolve %d: %v", i, err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	if backend.createdCount() != 1 {
		t.Fatalf("concurrent resolves for one key must create exactly one session, got %d", backend.createdCount())
	}
	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("resolve %d returned %q, want %q", i, ids[i], ids[0])
		}
	}
}

func TestResolveDistinctKeysGetDistinctSessions(t *testing.T) {
	backend := newFakeBackend()
	r := NewRegistry(backend)

	a, _ := r.Resolve(context.Background(), Key{ChatID: 1, UserID: 1})
	b, _ := r.Resolve(context.Background(), Key{ChatID: 1, UserID: 2})
	if a == b {
		t.Fatal("different keys must not share a session")
	}
	if backend.createdCount() != 2 {
		t.Fatalf("expected 2 creates, got %d", backend.createdCount())
	}
}

func TestResolveRecreatesStaleSession(t *testing.T) {
	backend := newFakeBackend()
	r := NewRegistry(backend)
	key := Key{ChatID: 3, UserID: 4}

	old, err := r.Resolve(context.Background(), key)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	backend.invalidate(old)

	fresh, err := r.Resolve(context.Background(), key)
	if err != nil {
		t.Fatalf("resolve after invalidation: %v", err)
	}
	if fresh == old {
		t.Fatal("stale session id must never be reused")
	}
	if backend.createdCount() != 2 {
		t.Fatalf("expected recreate, got %d creates", backend.createdCount())
	}
}

func TestResolveCreateFailurePropagates(t *testing.T) {
	backend := newFakeBackend()
	backend.failCreate = fmt.Errorf("backend down")
	r := NewRegistry(backend)

	if _, err := r.Resolve(context.Background(), Key{ChatID: 1, UserID: 1}); err == nil {
		t.Fatal("create failure must propagate")
	}
	if r.Len() != 0 {
		t.Fatal("no record should exist after a failed create")
	}
}

func TestEvictExpiredBoundary(t *testing.T) {
	backend := newFakeBackend()
	r := NewRegistry(backend)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	maxIdle := time.Hour

	r.now = func() time.Time { return base }
	oldID, _ := r.Resolve(context.Background(), Key{ChatID: 1, UserID: 1})

	r.now = func() time.Time { return base.Add(30 * time.Minute) }
	if _, err := r.Resolve(context.Background(), Key{ChatID: 2, UserID: 2}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Just past the idle budget for the first record, within it for the
	// second.
	now := base.Add(maxIdle + time.Second)
	evicted := r.EvictExpired(context.Background(), now, maxIdle)

	if len(evicted) != 1 || evicted[0] != (Key{ChatID: 1, UserID: 1}) {
		t.Fatalf("expected only the idle key evicted, got %v", evicted)
	}
	if len(backend.deleted) != 1 || backend.deleted[0] != oldID {
		t.Fatalf("expected backend delete of %q, got %v", oldID, backend.deleted)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 record left, got %d", r.Len())
	}

	// Exactly at the boundary nothing further is evicted: idle time must
	// exceed maxIdle.
	now = base.Add(30*time.Minute + maxIdle)
	if evicted := r.EvictExpired(context.Background(), now, maxIdle); len(evicted) != 0 {
		t.Fatalf("record exactly at maxIdle must survive, got %v", evicted)
	}
}

func TestEvictionIgnoresStaleHeapEntries(t *testing.T) {
	backend := newFakeBackend()
	r := NewRegistry(backend)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	key := Key{ChatID: 5, UserID: 5}

	r.now = func() time.Time { return base }
	id, _ := r.Resolve(context.Background(), key)

	// Bump the record two hours later; the original heap entry is now a
	// stale duplicate pointing at the same key.
	r.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, err := r.Resolve(context.Background(), key); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// The stale entry is past the budget but the record is fresh; the
	// sweep must discard the duplicate without touching the session.
	now := base.Add(2*time.Hour + time.Minute)
	if evicted := r.EvictExpired(context.Background(), now, time.Hour); len(evicted) != 0 {
		t.Fatalf("fresh record must not be evicted via stale heap entry, got %v", evicted)
	}
	if len(backend.deleted) != 0 {
		t.Fatalf("no backend delete expected, got %v", backend.deleted)
	}
	if got, _ := r.Resolve(context.Background(), key); got != id {
		t.Fatalf("record should be intact, got %q want %q", got, id)
	}
}

func TestRemove(t *testing.T) {
	backend := newFakeBackend()
	r := NewRegistry(backend)
	key := Key{ChatID: 1, UserID: 1}

	if r.Remove(context.Background(), key) {
		t.Fatal("remove of unknown key should report false")
	}

	id, _ := r.Resolve(context.Background(), key)
	if !r.Remove(context.Background(), key) {
		t.Fatal("remove of existing key should report true")
	}
	if len(backend.deleted) != 1 || backend.deleted[0] != id {
		t.Fatalf("expected backend delete of %q, got %v", id, backend.deleted)
	}

	// The next resolve starts over with a new session.
	fresh, _ := r.Resolve(context.Background(), key)
	if fresh == id {
		t.Fatal("removed session id must not come back")
	}
}

func TestRemoveAll(t *testing.T) {
	backend := newFakeBackend()
	r := NewRegistry(backend)

	for i := int64(1); i <= 3; i++ {
		if _, err := r.Resolve(context.Background(), Key{ChatID: i, UserID: i}); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}

	r.RemoveAll(context.Background())

	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d records", r.Len())
	}
	if len(backend.deleted) != 3 {
		t.Fatalf("expected 3 backend deletes, got %d", len(backend.deleted))
	}
	if evicted := r.EvictExpired(context.Background(), time.Now().Add(100*time.Hour), time.Hour); len(evicted) != 0 {
		t.Fatalf("heap should be cleared too, got %v", evicted)
	}
}

func TestRemoveAllToleratesBackendFailure(t *testing.T) {
	backend := newFakeBackend()
	r := NewRegistry(backend)

	if _, err := r.Resolve(context.Background(), Key{ChatID: 1, UserID: 1}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// A failing delete must not stop the purge.
	backend.mu.Lock()
	backend.failDelete = fmt.Errorf("backend down")
	backend.mu.Unlock()

	r.RemoveAll(context.Background())
	if r.Len() != 0 {
		t.Fatal("local state must be cleared regardless of backend outcome")
	}
}
