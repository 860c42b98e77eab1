package registry

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const routeShards = 32

type routeShard struct {
	mu    sync.RWMutex
	paths map[string]struct{}
}

// RouteTable is the set of canonical paths served by the dynamic read handler.
// It only grows and starts empty with every process. Reserved paths belong to
// fixed routes and are never registered.
type RouteTable struct {
	shards [routeShards]*routeShard

	mu       sync.RWMutex
	reserved map[string]struct{}
}

func NewRouteTable() *RouteTable {
	rt := &RouteTable{reserved: make(map[string]struct{})}
	for i := range rt.shards {
		rt.shards[i] = &routeShard{paths: make(map[string]struct{})}
	}
	return rt
}

func (rt *RouteTable) shard(path string) *routeShard {
	return rt.shards[xxhash.Sum64String(path)%routeShards]
}

// Reserve marks canonical paths as served elsewhere.
func (rt *RouteTable) Reserve(paths ...string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for _, p := range paths {
		rt.reserved[p] = struct{}{}
	}
}

func (rt *RouteTable) Reserved(path string) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	_, ok := rt.reserved[path]
	return ok
}

// Register adds path and reports whether it was not registered before.
func (rt *RouteTable) Register(path string) bool {
	s := rt.shard(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.paths[path]; ok {
		return false
	}

	s.paths[path] = struct{}{}
	return true
}

func (rt *RouteTable) Has(path string) bool {
	s := rt.shard(path)

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.paths[path]
	return ok
}

func (rt *RouteTable) Len() int {
	n := 0
	for _, s := range rt.shards {
		s.mu.RLock()
		n += len(s.paths)
		s.mu.RUnlock()
	}
	return n
}

// Paths returns the registered paths sorted.
func (rt *RouteTable) Paths() []string {
	paths := make([]string, 0, rt.Len())
	for _, s := range rt.shards {
		s.mu.RLock()
		for p := range s.paths {
			paths = append(paths, p)
		}
		s.mu.RUnlock()
	}

	sort.Strings(paths)
	return paths
}
