// Package session maintains the local registry of backend conversation
// sessions: which session belongs to which (chat, user) pair, when it was
// last used, and when it should be evicted.
package session

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/vgrebnev/teleassist/internal/logging"
)

// Key identifies one conversation slot: a user within a chat.
type Key struct {
	ChatID int64
	UserID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.ChatID, k.UserID)
}

// Backend is the subset of the session service the registry needs.
// DeleteSession is best-effort: adapters swallow not-found themselves and
// only surface errors worth logging.
type Backend interface {
	CreateSession(ctx context.Context) (string, error)
	SessionValid(ctx context.Context, sessionID string) (bool, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// record is the authoritative state for one key. lastAccess only moves
// forward.
type record struct {
	sessionID  string
	lastAccess time.Time
}

// Registry owns the key -> session mapping and the eviction ordering.
//
// Mutations for a single key are serialized through a per-key mutex so two
// concurrent messages for the same key cannot both create a backend session.
// Distinct keys proceed concurrently; the registry-wide mutex only guards
// the map and heap, never a backend call.
type Registry struct {
	backend Backend
	now     func() time.Time

	mu      sync.Mutex
	records map[Key]*record
	heap    entryHeap
	locks   map[Key]*sync.Mutex
}

// NewRegistry creates an empty registry over the given backend.
func NewRegistry(backend Backend) *Registry {
	return &Registry{
		backend: backend,
		now:     time.Now,
		records: make(map[Key]*record),
		locks:   make(map[Key]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing operations on key.
func (r *Registry) lockFor(key Key) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.locks[key]
	if l == nil {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

// touch records a session id for key with lastAccess = now. The previous
// heap entry, if any, is left in place and becomes stale.
func (r *Registry) touch(key Key, sessionID string) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[key] = &record{sessionID: sessionID, lastAccess: now}
	heap.Push(&r.heap, &entry{key: key, sessionID: sessionID, lastAccess: now})
}

// Resolve returns a usable session id for key, creating a new backend
// session when none exists or the remembered one is no longer valid.
// A validity-check error is treated as invalid and forces a recreate.
func (r *Registry) Resolve(ctx context.Context, key Key) (string, error) {
	kl := r.lockFor(key)
	kl.Lock()
	defer kl.Unlock()

	r.mu.Lock()
	rec := r.records[key]
	r.mu.Unlock()

	if rec != nil {
		valid, err := r.backend.SessionValid(ctx, rec.sessionID)
		if err != nil {
			L_warn("session: validity check failed, recreating",
				"key", key.String(), "sessionID", rec.sessionID, "error", err)
		} else if valid {
			r.touch(key, rec.sessionID)
			return rec.sessionID, nil
		} else {
			L_info("session: stale session detected",
				"key", key.String(), "sessionID", rec.sessionID)
		}
	}

	sessionID, err := r.backend.CreateSession(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create session for %s: %w", key, err)
	}

	r.touch(key, sessionID)
	L_info("session: created", "key", key.String(), "sessionID", sessionID)
	return sessionID, nil
}

// Remove deletes the record for key, issuing a best-effort backend delete.
// It reports whether a record existed. Local removal happens regardless of
// the backend outcome.
func (r *Registry) Remove(ctx context.Context, key Key) bool {
	kl := r.lockFor(key)
	kl.Lock()
	defer kl.Unlock()

	r.mu.Lock()
	rec := r.records[key]
	delete(r.records, key)
	r.mu.Unlock()

	if rec == nil {
		return false
	}

	r.deleteBackend(ctx, key, rec.sessionID)
	L_info("session: removed", "key", key.String(), "sessionID", rec.sessionID)
	return true
}

// RemoveAll best-effort deletes every known session and clears all local
// state. Called once at startup to guarantee a clean slate; any record
// present at that point is a leftover that should not exist.
func (r *Registry) RemoveAll(ctx context.Context) {
	r.mu.Lock()
	recs := r.records
	r.records = make(map[Key]*record)
	r.heap = nil
	r.mu.Unlock()

	for key, rec := range recs {
		r.deleteBackend(ctx, key, rec.sessionID)
	}

	if len(recs) > 0 {
		L_info("session: purged all sessions", "count", len(recs))
	}
}

// EvictExpired removes every record idle longer than maxIdle, oldest first,
// and returns the evicted keys. The heap orders candidates; the map decides.
// A popped entry that no longer matches the map's current record is a stale
// duplicate and is discarded without side effects.
func (r *Registry) EvictExpired(ctx context.Context, now time.Time, maxIdle time.Duration) []Key {
	var evicted []Key

	for {
		r.mu.Lock()
		if len(r.heap) == 0 {
			r.mu.Unlock()
			break
		}

		// Oldest entry still within budget: everything behind it is newer.
		if now.Sub(r.heap[0].lastAccess) <= maxIdle {
			r.mu.Unlock()
			break
		}

		e := heap.Pop(&r.heap).(*entry)

		rec := r.records[e.key]
		if rec == nil || rec.sessionID != e.sessionID || rec.lastAccess.After(e.lastAccess) {
			// Superseded or already removed; the map is authoritative.
			r.mu.Unlock()
			continue
		}

		// Serialize with any in-flight Resolve for this key. A held lock
		// means the key is active right now, so it is about to be bumped;
		// leave the entry for the next sweep.
		kl := r.locks[e.key]
		if kl == nil {
			kl = &sync.Mutex{}
			r.locks[e.key] = kl
		}
		if !kl.TryLock() {
			heap.Push(&r.heap, e)
			r.mu.Unlock()
			break
		}

		delete(r.records, e.key)
		r.mu.Unlock()

		r.deleteBackend(ctx, e.key, e.sessionID)
		kl.Unlock()

		evicted = append(evicted, e.key)
	}

	return evicted
}

// Len returns the number of live records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// deleteBackend issues a best-effort backend delete. Failures are logged
// and never propagated: local state has already moved on.
func (r *Registry) deleteBackend(ctx context.Context, key Key, sessionID string) {
	if err := r.backend.DeleteSession(ctx, sessionID); err != nil {
		L_error("session: backend delete failed",
			"key", key.String(), "sessionID", sessionID, "error", err)
	}
}
