package session

import (
	"hash/fnv"
	"sync"
)

// Registry maps session ids to sessions. Implementations must be safe for
// concurrent use, and GetOrCreate must be idempotent per id: when requests
// race to create the same id exactly one session wins and every caller sees
// it. A clustered store can stand in for the in-memory one.
type Registry interface {
	// GetOrCreate returns the session for id, calling create only when none
	// exists. created reports whether this call created it.
	GetOrCreate(id string, create func() *Session) (s *Session, created bool)
	// Get returns the session for id if present.
	Get(id string) (*Session, bool)
	// Remove drops id from the registry. Callers close the session first.
	Remove(id string)
	// Range calls fn for every session until fn returns false.
	Range(fn func(*Session) bool)
	// Len returns the number of registered sessions.
	Len() int
}

// MemoryRegistry is a sharded, in-process Registry.
type MemoryRegistry struct {
	shards []*registryShard
	mask   uint32
}

type registryShard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates a registry with shardCount shards, rounded up to a
// power of two. A non-positive count means 16.
func NewMemoryRegistry(shardCount int) *MemoryRegistry {
	if shardCount <= 0 {
		shardCount = 16
	}
	n := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*registryShard, n)
	for i := range shards {
		shards[i] = &registryShard{sessions: make(map[string]*Session)}
	}
	return &MemoryRegistry{shards: shards, mask: n - 1}
}

func (r *MemoryRegistry) shard(id string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return r.shards[h.Sum32()&r.mask]
}

// GetOrCreate implements Registry.
func (r *MemoryRegistry) GetOrCreate(id string, create func() *Session) (*Session, bool) {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if s, ok := sh.sessions[id]; ok {
		return s, false
	}
	s := create()
	sh.sessions[id] = s
	return s, true
}

// Get implements Registry.
func (r *MemoryRegistry) Get(id string) (*Session, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[id]
	return s, ok
}

// Remove implements Registry.
func (r *MemoryRegistry) Remove(id string) {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.sessions, id)
}

// Range implements Registry. fn runs outside the shard locks, so it may call
// back into the registry.
func (r *MemoryRegistry) Range(fn func(*Session) bool) {
	for _, sh := range r.shards {
		sh.mu.RLock()
		snapshot := make([]*Session, 0, len(sh.sessions))
		for _, s := range sh.sessions {
			snapshot = append(snapshot, s)
		}
		sh.mu.RUnlock()

		for _, s := range snapshot {
			if !fn(s) {
				return
			}
		}
	}
}

// Len implements Registry.
func (r *MemoryRegistry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
