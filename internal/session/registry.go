// ABOUTME: Sharded session map with a background sweeper enforcing idle/expiry timeouts
// ABOUTME: Shard key is an FNV-1a hash of the session UUID mod 16, for fine-grained per-shard locking

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const shardCount = 16

// ErrSessionNotFound is returned for an unknown or already-closed session id.
var ErrSessionNotFound = errors.New("session: not found")

// ErrProtocolMismatch is returned when initialize offers no protocol
// version the server supports; no session is created.
var ErrProtocolMismatch = errors.New("session: no mutually supported protocol version")

// SupportedProtocolVersions lists server-supported MCP revisions, newest first.
var SupportedProtocolVersions = []string{"2025-11-25", "2025-06-18", "2025-03-26"}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// Registry is the SessionRegistry: a sharded map of active Sessions plus
// the sweeper that ages them through the state machine.
type Registry struct {
	shards      [shardCount]*shard
	idleTimeout time.Duration
	expiry      time.Duration
}

// NewRegistry creates a Registry with the given idle and expiry timeouts.
func NewRegistry(idleTimeout, expiry time.Duration) *Registry {
	r := &Registry{idleTimeout: idleTimeout, expiry: expiry}
	for i := range r.shards {
		r.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	if len(id) == 0 {
		return r.shards[0]
	}
	h := fnv32(id)
	return r.shards[h%shardCount]
}

func fnv32(s string) uint32 {
	const prime = 16777619
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= prime
	}
	return hash
}

// NegotiateProtocolVersion picks the highest mutually-supported protocol
// version from the client's offered set, newest-first by server priority.
func NegotiateProtocolVersion(clientOffered []string) (string, error) {
	offered := make(map[string]bool, len(clientOffered))
	for _, v := range clientOffered {
		offered[v] = true
	}
	for _, v := range SupportedProtocolVersions {
		if offered[v] {
			return v, nil
		}
	}
	return "", ErrProtocolMismatch
}

// Create mints a new session in the initializing state for a negotiated
// protocol version and capability sets.
func (r *Registry) Create(protocolVersion string, clientInfo, clientCaps, serverCaps map[string]any) *Session {
	sess := newSession(uuid.NewString(), protocolVersion, clientInfo, clientCaps, serverCaps)
	sh := r.shardFor(sess.ID)
	sh.mu.Lock()
	sh.sessions[sess.ID] = sess
	sh.mu.Unlock()
	return sess
}

// Get returns the session by id, or ErrSessionNotFound if it is unknown or
// already closed.
func (r *Registry) Get(id string) (*Session, error) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	sess, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if !ok || sess.State() == StateClosed {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Close transitions a session to closed and removes it from the registry.
// Idempotent: closing an unknown id is not an error.
func (r *Registry) Close(id string) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	sess, ok := sh.sessions[id]
	delete(sh.sessions, id)
	sh.mu.Unlock()
	if ok {
		sess.Close()
	}
}

// Count returns the number of sessions currently held across all shards,
// including suspended ones.
func (r *Registry) Count() int {
	total := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		total += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return total
}

// RunSweeper ages sessions through suspended and closed on a timer until
// ctx is cancelled: active sessions idle past idleTimeout become
// suspended; suspended sessions past expiry are purged entirely.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

func (r *Registry) sweepOnce() {
	now := time.Now().UTC()
	for _, sh := range r.shards {
		sh.mu.Lock()
		for id, sess := range sh.sessions {
			snap := sess.snapshot()
			switch snap.state {
			case StateActive:
				if now.Sub(snap.lastActivityAt) >= r.idleTimeout {
					sess.Suspend()
				}
			case StateSuspended:
				if !snap.suspendedAt.IsZero() && now.Sub(snap.suspendedAt) >= r.expiry {
					sess.Close()
					delete(sh.sessions, id)
				}
			case StateClosed:
				delete(sh.sessions, id)
			}
		}
		sh.mu.Unlock()
	}
}
