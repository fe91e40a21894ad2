// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Strategy selects how the Rotator picks the next fingerprint.
type Strategy int

const (
	Sequential Strategy = iota
	Random
	TimeBased
	ConnectionBased
)

// Rotator chooses which fingerprint a new connection uses. SEQUENTIAL and
// TIME_BASED strategies own a background task that wakes every second;
// RANDOM and CONNECTION_BASED are computed purely on demand from
// RotateToNext.
type Rotator struct {
	mu sync.Mutex

	log      *zap.Logger
	rand     *rand.Rand
	nowFunc  func() time.Time
	strategy Strategy

	catalog         []Identifier
	index           int
	current         Identifier
	rotationEvery   time.Duration
	lastRotation    time.Time

	wg       sync.WaitGroup
	shutdown chan struct{}
}

// RotatorOption configures a Rotator at construction.
type RotatorOption func(*Rotator)

func WithStrategy(s Strategy) RotatorOption {
	return func(r *Rotator) { r.strategy = s }
}

func WithCatalog(ids []Identifier) RotatorOption {
	return func(r *Rotator) { r.catalog = ids }
}

func WithRotationInterval(d time.Duration) RotatorOption {
	return func(r *Rotator) { r.rotationEvery = d }
}

func WithRotatorLogger(l *zap.Logger) RotatorOption {
	return func(r *Rotator) { r.log = l }
}

func NewRotator(opts ...RotatorOption) *Rotator {
	r := &Rotator{
		log:           zap.NewNop(),
		rand:          rand.New(rand.NewSource(time.Now().UnixNano())),
		nowFunc:       time.Now,
		strategy:      Sequential,
		rotationEvery: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.catalog) == 0 {
		r.catalog = []Identifier{ChromeLatest, FirefoxLatest, SafariLatest}
	}
	r.current = r.catalog[0]
	r.lastRotation = r.nowFunc()
	return r
}

// timeBasedBuckets maps hour-of-day to the subset of profiles eligible for
// TIME_BASED selection: workday hours favor Chrome/Edge, evenings favor
// Firefox/Safari, nights favor mobile profiles.
func timeBasedBuckets() map[string][]Identifier {
	return map[string][]Identifier{
		"workday": {ChromeLatest, EdgeChromium},
		"evening": {FirefoxLatest, SafariLatest},
		"night":   {ChromeAndroid, SafariIOS, FirefoxMobile},
	}
}

func (r *Rotator) timeBucket(hour int) string {
	switch {
	case hour >= 8 && hour < 18:
		return "workday"
	case hour >= 18 && hour < 23:
		return "evening"
	default:
		return "night"
	}
}

// Current returns the fingerprint currently selected, without rotating.
func (r *Rotator) Current() Identifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// RotateToNext advances the selection per the configured strategy and
// returns the newly selected fingerprint.
func (r *Rotator) RotateToNext() Identifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotateLocked()
}

func (r *Rotator) rotateLocked() Identifier {
	switch r.strategy {
	case Sequential, ConnectionBased:
		r.index = (r.index + 1) % len(r.catalog)
		r.current = r.catalog[r.index]
	case Random:
		choices := make([]Identifier, 0, len(r.catalog)-1)
		for _, id := range r.catalog {
			if id != r.current {
				choices = append(choices, id)
			}
		}
		if len(choices) == 0 {
			break
		}
		r.current = choices[r.rand.Intn(len(choices))]
	case TimeBased:
		bucket := timeBasedBuckets()[r.timeBucket(r.nowFunc().Hour())]
		if len(bucket) > 0 {
			r.current = bucket[r.rand.Intn(len(bucket))]
		}
	}

	r.lastRotation = r.nowFunc()
	return r.current
}

// Start launches the background rotation task for strategies that need one
// (SEQUENTIAL and TIME_BASED). It is a no-op for RANDOM and
// CONNECTION_BASED, which rotate only on explicit RotateToNext calls.
func (r *Rotator) Start() {
	r.mu.Lock()
	needsTask := r.strategy == Sequential || r.strategy == TimeBased
	if !needsTask || r.shutdown != nil {
		r.mu.Unlock()
		return
	}
	r.shutdown = make(chan struct{})
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run()
}

func (r *Rotator) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.shutdown:
			return
		case <-ticker.C:
			r.mu.Lock()
			due := r.nowFunc().Sub(r.lastRotation) >= r.rotationEvery
			if due {
				r.rotateLocked()
			}
			r.mu.Unlock()
		}
	}
}

// Stop cancels the background task, if any, and waits for it to exit. It
// returns within one wake cycle.
func (r *Rotator) Stop() {
	r.mu.Lock()
	ch := r.shutdown
	r.shutdown = nil
	r.mu.Unlock()

	if ch == nil {
		return
	}
	close(ch)
	r.wg.Wait()
}

// Apply re-initializes configurator with the current fingerprint for
// hostname.
func (r *Rotator) Apply(configurator *Configurator, hostname string) error {
	id := r.Current()
	return configurator.Initialize(id, hostname, nil, true)
}
