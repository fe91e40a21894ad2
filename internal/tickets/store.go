// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package tickets implements the per-hostname session ticket store used for
// TLS session resumption and 0-RTT. It is a keyed multimap bounded both
// per-host and in total, backed by a per-store LRU over ticket IDs so the
// overall bound is enforced oldest-first regardless of which host churns.
package tickets

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const (
	DefaultMaxPerHost = 2
	DefaultMaxTotal   = 512

	DefaultLifetime = 24 * time.Hour
	ShortLifetime   = 4 * time.Hour

	// shortLifetimeChance is the probability a newly stored ticket imitates
	// a short-lived CDN-issued ticket instead of the default lifetime.
	shortLifetimeChance = 0.10

	// olderTicketChance is the probability Get returns a random older
	// ticket instead of the newest, imitating multi-tab browser reuse.
	olderTicketChance = 0.20
)

// Entry is one stored session ticket.
type Entry struct {
	Hostname    string
	Ticket      []byte
	Created     time.Time
	Lifetime    time.Duration
	Fingerprint string
}

func (e Entry) expired(now time.Time) bool {
	return now.Sub(e.Created) >= e.Lifetime
}

// Store is the bounded, thread-safe session ticket cache.
type Store struct {
	mu sync.Mutex

	maxPerHost int
	maxTotal   int
	byHost     map[string][]*ticket
	overall    *lru.Cache // ticket id -> hostname, evicts the oldest-stored ticket across all hosts

	rand *rand.Rand
	now  func() time.Time
}

type ticket struct {
	id int64
	Entry
}

// Option configures a Store at construction.
type Option func(*Store)

func MaxPerHost(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxPerHost = n
		}
	}
}

func MaxTotal(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxTotal = n
		}
	}
}

// RandSource overrides the PRNG, e.g. for deterministic tests.
func RandSource(r *rand.Rand) Option {
	return func(s *Store) { s.rand = r }
}

// NowFunc overrides the clock, e.g. for deterministic tests.
func NowFunc(f func() time.Time) Option {
	return func(s *Store) { s.now = f }
}

func New(opts ...Option) *Store {
	s := &Store{
		maxPerHost: DefaultMaxPerHost,
		maxTotal:   DefaultMaxTotal,
		byHost:     make(map[string][]*ticket),
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.overall, _ = lru.NewWithEvict(s.maxTotal, s.onEvict)

	return s
}

var idSeq int64

func nextID() int64 {
	return atomic.AddInt64(&idSeq, 1)
}

// Store records a new ticket for hostname. A small fraction of stores are
// given a short lifetime to imitate CDN-issued tickets.
func (s *Store) Store(hostname string, raw []byte, fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lifetime := DefaultLifetime
	if s.rand.Float64() < shortLifetimeChance {
		lifetime = ShortLifetime
	}

	t := &ticket{
		id: nextID(),
		Entry: Entry{
			Hostname:    hostname,
			Ticket:      raw,
			Created:     s.now(),
			Lifetime:    lifetime,
			Fingerprint: fingerprint,
		},
	}

	s.byHost[hostname] = append(s.byHost[hostname], t)
	s.evictHostOverflow(hostname)

	s.overall.Add(t.id, hostname)
}

// evictHostOverflow drops the oldest entries for hostname beyond
// maxPerHost. Caller must hold s.mu.
func (s *Store) evictHostOverflow(hostname string) {
	list := s.byHost[hostname]
	if len(list) <= s.maxPerHost {
		return
	}

	excess := len(list) - s.maxPerHost
	dropped := append([]*ticket(nil), list[:excess]...)
	// Detach first: overall.Remove fires onEvict, which must not edit the
	// list being iterated.
	s.byHost[hostname] = list[excess:]
	for _, t := range dropped {
		s.overall.Remove(t.id)
	}
}

// onEvict is the LRU callback fired when the total bound is exceeded and on
// every overall.Remove; it removes the corresponding entry from its host's
// list if it is still there. Caller already holds s.mu via Store, Remove or
// pruneExpiredLocked.
func (s *Store) onEvict(key, value interface{}) {
	id := key.(int64)
	hostname := value.(string)

	list := s.byHost[hostname]
	for i, t := range list {
		if t.id == id {
			s.byHost[hostname] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// Get returns the newest valid ticket for hostname, or with low probability
// a randomly chosen older one when at least two exist. Returns nil if no
// valid ticket is held.
func (s *Store) Get(hostname string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneExpiredLocked(hostname)

	list := s.byHost[hostname]
	if len(list) == 0 {
		return nil
	}

	if len(list) >= 2 && s.rand.Float64() < olderTicketChance {
		idx := s.rand.Intn(len(list) - 1)
		e := list[idx].Entry
		return &e
	}

	e := list[len(list)-1].Entry
	return &e
}

// Remove deletes all tickets held for hostname.
func (s *Store) Remove(hostname string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byHost[hostname]
	delete(s.byHost, hostname)
	for _, t := range list {
		s.overall.Remove(t.id)
	}
}

// CleanupExpired drops every ticket past its lifetime across all hosts.
func (s *Store) CleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hostname := range s.byHost {
		s.pruneExpiredLocked(hostname)
	}
}

func (s *Store) pruneExpiredLocked(hostname string) {
	list := s.byHost[hostname]
	if len(list) == 0 {
		return
	}

	now := s.now()
	var kept, expired []*ticket
	for _, t := range list {
		if t.expired(now) {
			expired = append(expired, t)
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		delete(s.byHost, hostname)
	} else {
		s.byHost[hostname] = kept
	}
	for _, t := range expired {
		s.overall.Remove(t.id)
	}
}

// Count returns the total number of tickets currently held across all
// hosts.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overall.Len()
}
