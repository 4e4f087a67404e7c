/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Record keys.
const (
	KeyStatements  = "statements"
	KeyUsers       = "users"
	KeyCurrentUser = "currentUser"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Score        int       `json:"score"`
	CreatedAt    time.Time `json:"createdAt"`
	StatementIDs []string  `json:"statementIds"`
}

// StatementSet is one submission: three statements, one of which is the lie.
type StatementSet struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Username   string    `json:"username"`
	Statements [3]string `json:"statements"`
	LieIndex   int       `json:"lieIndex"`
	CreatedAt  time.Time `json:"createdAt"`
	PlayCount  int       `json:"playCount"`
}

// Snapshot holds the three persisted records.
type Snapshot struct {
	Statements  []StatementSet
	Users       []User
	CurrentUser User
}

// Adapter mirrors a Snapshot into a KV under three fixed keys. Missing
// keys load as defaults; stored values are trusted.
type Adapter struct {
	kv        KV
	namespace string
	shared    bool

	now   func() time.Time
	newID func() string
	intN  func(int) int
}

type Option func(*Adapter)

// WithNamespace prefixes every key with ns + "/".
func WithNamespace(ns string) Option {
	return func(a *Adapter) { a.namespace = ns }
}

// WithSharedStatements keeps the statements record outside the namespace,
// so every namespaced adapter reads and writes the same statement sets.
func WithSharedStatements() Option {
	return func(a *Adapter) { a.shared = true }
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

func WithIDs(newID func() string) Option {
	return func(a *Adapter) { a.newID = newID }
}

// WithRand sets the source used to number generated usernames.
func WithRand(intN func(int) int) Option {
	return func(a *Adapter) { a.intN = intN }
}

func NewAdapter(kv KV, opts ...Option) *Adapter {
	a := &Adapter{
		kv:    kv,
		now:   time.Now,
		newID: uuid.NewString,
		intN:  rand.IntN,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) key(name string) string {
	if a.namespace == "" || (a.shared && name == KeyStatements) {
		return name
	}
	return a.namespace + "/" + name
}

// SeedUsers returns the users present before anyone has played.
func SeedUsers(now time.Time) []User {
	return []User{
		{ID: "1", Username: "player1", Score: 150, CreatedAt: now, StatementIDs: []string{}},
		{ID: "2", Username: "player2", Score: 120, CreatedAt: now, StatementIDs: []string{}},
		{ID: "3", Username: "player3", Score: 100, CreatedAt: now, StatementIDs: []string{}},
	}
}

// NewUser returns a fresh player with a generated name and no score.
func (a *Adapter) NewUser() User {
	return User{
		ID:           a.newID(),
		Username:     fmt.Sprintf("player%d", a.intN(1000)),
		Score:        0,
		CreatedAt:    a.now().UTC(),
		StatementIDs: []string{},
	}
}

func (a *Adapter) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	sets, err := a.LoadStatements(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Statements = sets

	found, err := a.read(ctx, KeyUsers, &snap.Users)
	if err != nil {
		return Snapshot{}, err
	}
	if !found {
		snap.Users = SeedUsers(a.now().UTC())
	}

	found, err = a.read(ctx, KeyCurrentUser, &snap.CurrentUser)
	if err != nil {
		return Snapshot{}, err
	}
	if !found {
		snap.CurrentUser = a.NewUser()
	}
	if snap.CurrentUser.StatementIDs == nil {
		snap.CurrentUser.StatementIDs = []string{}
	}

	return snap, nil
}

// LoadStatements reads only the statements record.
func (a *Adapter) LoadStatements(ctx context.Context) ([]StatementSet, error) {
	var sets []StatementSet

	found, err := a.read(ctx, KeyStatements, &sets)
	if err != nil {
		return nil, err
	}
	if !found || sets == nil {
		sets = []StatementSet{}
	}
	return sets, nil
}

func (a *Adapter) SaveStatements(ctx context.Context, sets []StatementSet) error {
	return a.write(ctx, KeyStatements, sets)
}

func (a *Adapter) read(ctx context.Context, name string, dst any) (bool, error) {
	data, ok, err := a.kv.Get(ctx, a.key(name))
	if err != nil || !ok {
		return false, err
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (a *Adapter) Save(ctx context.Context, snap Snapshot) error {
	records := []struct {
		name  string
		value any
	}{
		{KeyStatements, snap.Statements},
		{KeyUsers, snap.Users},
		{KeyCurrentUser, snap.CurrentUser},
	}

	for _, r := range records {
		if err := a.write(ctx, r.name, r.value); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) write(ctx context.Context, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return a.kv.Set(ctx, a.key(name), data)
}
