/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import (
	"slices"
	"sync"

	"github.com/Seednode/liedetector/store"
)

// Pool holds the statement sets that one or more managers play from.
// A manager always takes its own lock before the pool's.
type Pool struct {
	mu   sync.RWMutex
	sets []store.StatementSet
}

func NewPool(sets []store.StatementSet) *Pool {
	if sets == nil {
		sets = []store.StatementSet{}
	}
	return &Pool{sets: slices.Clone(sets)}
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.sets)
}
