package pool

import (
	"context"
	"slices"
	"sync"
)

// Set lazily creates one Pool per database URL
type Set[C Conn] struct {
	mu      sync.Mutex
	pools   map[string]*Pool[C]
	connect ConnectFunc[C]
}

// NewSet creates an empty Set whose pools open sessions with connect
func NewSet[C Conn](connect ConnectFunc[C]) *Set[C] {
	return &Set[C]{
		pools:   make(map[string]*Pool[C]),
		connect: connect,
	}
}

// Get returns the pool for url, creating it with opts on first use.
// Options of later calls for the same url are ignored.
func (s *Set[C]) Get(url string, opts Options) (*Pool[C], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pools[url]; ok {
		return p, nil
	}

	p, err := New(url, s.connect, opts)
	if err != nil {
		return nil, err
	}

	s.pools[url] = p

	return p, nil
}

// Acquire borrows a session from the pool of url
func (s *Set[C]) Acquire(ctx context.Context, url string, opts Options) (*Lease[C], error) {
	p, err := s.Get(url, opts)
	if err != nil {
		return nil, err
	}

	return p.Acquire(ctx)
}

// Lookup returns the pool for url if it was created
func (s *Set[C]) Lookup(url string) (*Pool[C], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[url]

	return p, ok
}

// URLs returns the URLs that have a pool, sorted
func (s *Set[C]) URLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	urls := make([]string, 0, len(s.pools))
	for url := range s.pools {
		urls = append(urls, url)
	}

	slices.Sort(urls)

	return urls
}

// Close closes every pool. The host process normally exits instead.
func (s *Set[C]) Close() {
	s.mu.Lock()
	pools := make([]*Pool[C], 0, len(s.pools))

	for url, p := range s.pools {
		pools = append(pools, p)
		delete(s.pools, url)
	}
	s.mu.Unlock()

	for _, p := range pools {
		p.Close()
	}
}
