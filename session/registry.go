/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Seednode/liedetector/store"
)

var ErrNoPlayer = errors.New("missing player id")

type entry struct {
	manager    *Manager
	lastActive time.Time
}

// Registry keeps one Manager per player, namespaced by player id inside a
// shared KV. Scores and usernames are per player; statement sets live in
// one Pool that every player's manager plays from. Managers idle for
// longer than the timeout are dropped from memory; their state remains in
// the store.
type Registry struct {
	mu      sync.Mutex
	kv      store.KV
	entries map[string]*entry
	pool    *Pool

	idleTimeout time.Duration
	adapterOpts []store.Option
	managerOpts []Option
	onCommit    func(playerID string, snap store.Snapshot)

	done chan struct{}
	once sync.Once
}

type RegistryOption func(*Registry)

func WithAdapterOptions(opts ...store.Option) RegistryOption {
	return func(r *Registry) { r.adapterOpts = append(r.adapterOpts, opts...) }
}

func WithManagerOptions(opts ...Option) RegistryOption {
	return func(r *Registry) { r.managerOpts = append(r.managerOpts, opts...) }
}

// WithCommitHook is called after any player's state has been committed.
func WithCommitHook(fn func(playerID string, snap store.Snapshot)) RegistryOption {
	return func(r *Registry) { r.onCommit = fn }
}

func NewRegistry(kv store.KV, idleTimeout time.Duration, opts ...RegistryOption) *Registry {
	r := &Registry{
		kv:          kv,
		entries:     make(map[string]*entry),
		idleTimeout: idleTimeout,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if idleTimeout > 0 {
		go r.reaperLoop()
	}
	return r
}

// Get returns the player's manager, loading it from the store on first use.
func (r *Registry) Get(ctx context.Context, playerID string) (*Manager, error) {
	if playerID == "" {
		return nil, ErrNoPlayer
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[playerID]; ok {
		e.lastActive = time.Now()
		return e.manager, nil
	}

	if r.pool == nil {
		sets, err := store.NewAdapter(r.kv, r.adapterOpts...).LoadStatements(ctx)
		if err != nil {
			return nil, err
		}
		r.pool = NewPool(sets)
	}

	adapterOpts := append(r.adapterOpts[:len(r.adapterOpts):len(r.adapterOpts)],
		store.WithNamespace(playerID),
		store.WithSharedStatements(),
	)
	adapter := store.NewAdapter(r.kv, adapterOpts...)

	opts := append(r.managerOpts[:len(r.managerOpts):len(r.managerOpts)], WithPool(r.pool))
	if r.onCommit != nil {
		hook := r.onCommit
		opts = append(opts, OnCommit(func(snap store.Snapshot) {
			hook(playerID, snap)
		}))
	}

	m, err := Load(ctx, adapter, opts...)
	if err != nil {
		return nil, err
	}

	r.entries[playerID] = &entry{manager: m, lastActive: time.Now()}
	return m, nil
}

// Len reports how many managers are held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

func (r *Registry) reap(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.entries {
		if e.lastActive.Before(cutoff) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

func (r *Registry) reaperLoop() {
	ticker := time.NewTicker(r.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reap(time.Now().Add(-r.idleTimeout))
		case <-r.done:
			return
		}
	}
}

// Close stops the reaper. It does not close the KV.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.done) })
}
