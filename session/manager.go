/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package session holds the in-memory game state for one player and
// commits every change through a store.Adapter.
package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/liedetector/store"
	"github.com/google/uuid"
)

const (
	CorrectPoints   = 10
	IncorrectPoints = -5
)

var ErrInvalidLieIndex = errors.New("lie index must be 0, 1 or 2")

// GuessResult reports the outcome of SubmitGuess. Success is false only
// when the statement set does not exist.
type GuessResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	IsCorrect   bool   `json:"isCorrect"`
	ScoreChange int    `json:"scoreChange"`
	LieIndex    int    `json:"lieIndex"`
}

// Manager owns the users and current user of one session, and plays from
// a Pool of statement sets.
type Manager struct {
	mu sync.RWMutex

	adapter *store.Adapter
	pool    *Pool
	users   []store.User
	current store.User

	now      func() time.Time
	newID    func() string
	intN     func(int) int
	onCommit func(store.Snapshot)
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithIDs(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// WithRand replaces the source used by RandomStatement.
func WithRand(intN func(int) int) Option {
	return func(m *Manager) { m.intN = intN }
}

// WithPool plays from p instead of the statements stored for the session.
// The adapter should then be built with store.WithSharedStatements.
func WithPool(p *Pool) Option {
	return func(m *Manager) { m.pool = p }
}

// OnCommit registers a callback run with the committed snapshot, after it
// has been written. fn runs under the manager's lock and must not call
// back into the Manager.
func OnCommit(fn func(store.Snapshot)) Option {
	return func(m *Manager) { m.onCommit = fn }
}

// Load reads the session state through adapter, falling back to defaults.
func Load(ctx context.Context, adapter *store.Adapter, opts ...Option) (*Manager, error) {
	snap, err := adapter.Load(ctx)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		adapter: adapter,
		current: cloneUser(snap.CurrentUser),
		now:     time.Now,
		newID:   uuid.NewString,
		intN:    rand.IntN,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.pool == nil {
		m.pool = NewPool(snap.Statements)
	}
	m.users = withUser(snap.Users, m.current)

	return m, nil
}

// withUser returns a copy of users with u added, or replacing the stale
// entry with the same id.
func withUser(users []store.User, u store.User) []store.User {
	out := make([]store.User, 0, len(users)+1)

	found := false
	for _, existing := range users {
		if existing.ID == u.ID {
			existing, found = u, true
		}
		out = append(out, cloneUser(existing))
	}
	if !found {
		out = append(out, cloneUser(u))
	}
	return out
}

// snapshotLocked needs m.mu and m.pool.mu held.
func (m *Manager) snapshotLocked() store.Snapshot {
	users := make([]store.User, len(m.users))
	for i, u := range m.users {
		users[i] = cloneUser(u)
	}

	return store.Snapshot{
		Statements:  slices.Clone(m.pool.sets),
		Users:       users,
		CurrentUser: cloneUser(m.current),
	}
}

// lockAll takes the manager's lock, then the pool's.
func (m *Manager) lockAll() func() {
	m.mu.Lock()
	m.pool.mu.Lock()

	return func() {
		m.pool.mu.Unlock()
		m.mu.Unlock()
	}
}

func (m *Manager) rlockAll() func() {
	m.mu.RLock()
	m.pool.mu.RLock()

	return func() {
		m.pool.mu.RUnlock()
		m.mu.RUnlock()
	}
}

// commitLocked writes sets and current as the new state and adopts them
// only once the write succeeded; on error nothing in memory changes.
// Callers hold both locks for writing and never modify the slices they
// read from the pool in place.
func (m *Manager) commitLocked(ctx context.Context, sets []store.StatementSet, current store.User) error {
	users := withUser(m.users, current)

	err := m.adapter.Save(ctx, store.Snapshot{
		Statements:  sets,
		Users:       users,
		CurrentUser: current,
	})
	if err != nil {
		return err
	}

	m.pool.sets = sets
	m.users = users
	m.current = current

	if m.onCommit != nil {
		m.onCommit(m.snapshotLocked())
	}
	return nil
}

// AddStatements records a new statement set for the current user and
// returns its id. Statement text is not validated here.
func (m *Manager) AddStatements(ctx context.Context, statements [3]string, lieIndex int) (string, error) {
	if lieIndex < 0 || lieIndex > 2 {
		return "", ErrInvalidLieIndex
	}

	defer m.lockAll()()

	id := m.newID()

	sets := append(slices.Clone(m.pool.sets), store.StatementSet{
		ID:         id,
		UserID:     m.current.ID,
		Username:   m.current.Username,
		Statements: statements,
		LieIndex:   lieIndex,
		CreatedAt:  m.now().UTC(),
		PlayCount:  0,
	})

	current := cloneUser(m.current)
	current.StatementIDs = append(current.StatementIDs, id)

	if err := m.commitLocked(ctx, sets, current); err != nil {
		return "", err
	}
	return id, nil
}

// SubmitGuess scores guessIndex against the statement set's lie.
func (m *Manager) SubmitGuess(ctx context.Context, statementID string, guessIndex int) (GuessResult, error) {
	defer m.lockAll()()

	idx := m.indexLocked(statementID)
	if idx < 0 {
		return GuessResult{Success: false, Message: "Statement not found"}, nil
	}

	lie := m.pool.sets[idx].LieIndex
	correct := guessIndex == lie

	change := IncorrectPoints
	if correct {
		change = CorrectPoints
	}

	sets := slices.Clone(m.pool.sets)
	sets[idx].PlayCount++

	current := cloneUser(m.current)
	current.Score = max(0, current.Score+change)

	if err := m.commitLocked(ctx, sets, current); err != nil {
		return GuessResult{}, err
	}

	return GuessResult{
		Success:     true,
		IsCorrect:   correct,
		ScoreChange: change,
		LieIndex:    lie,
	}, nil
}

// UpdateUsername renames the current user. Blank names are rejected.
func (m *Manager) UpdateUsername(ctx context.Context, name string) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, nil
	}

	defer m.lockAll()()

	current := cloneUser(m.current)
	current.Username = name

	if err := m.commitLocked(ctx, m.pool.sets, current); err != nil {
		return false, err
	}
	return true, nil
}

// RandomStatement picks uniformly among statement sets not written by the
// current user and not listed in exclude.
func (m *Manager) RandomStatement(exclude []string) (store.StatementSet, bool) {
	defer m.rlockAll()()

	eligible := make([]store.StatementSet, 0, len(m.pool.sets))
	for _, s := range m.pool.sets {
		if s.UserID == m.current.ID || slices.Contains(exclude, s.ID) {
			continue
		}
		eligible = append(eligible, s)
	}

	if len(eligible) == 0 {
		return store.StatementSet{}, false
	}
	return eligible[m.intN(len(eligible))], true
}

func (m *Manager) StatementByID(id string) (store.StatementSet, bool) {
	defer m.rlockAll()()

	idx := m.indexLocked(id)
	if idx < 0 {
		return store.StatementSet{}, false
	}
	return m.pool.sets[idx], true
}

func (m *Manager) indexLocked(id string) int {
	return slices.IndexFunc(m.pool.sets, func(s store.StatementSet) bool {
		return s.ID == id
	})
}

func (m *Manager) UserStatements() []store.StatementSet {
	defer m.rlockAll()()

	out := []store.StatementSet{}
	for _, s := range m.pool.sets {
		if s.UserID == m.current.ID {
			out = append(out, s)
		}
	}
	return out
}

// Leaderboard returns every user by descending score. Ties keep their
// stored order.
func (m *Manager) Leaderboard() []store.User {
	m.mu.RLock()
	defer m.mu.RUnlock()

	board := make([]store.User, len(m.users))
	for i, u := range m.users {
		board[i] = cloneUser(u)
	}
	sort.SliceStable(board, func(i, j int) bool {
		return board[i].Score > board[j].Score
	})
	return board
}

func (m *Manager) CurrentUser() store.User {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return cloneUser(m.current)
}

func (m *Manager) Statements() []store.StatementSet {
	defer m.rlockAll()()

	return slices.Clone(m.pool.sets)
}

// Snapshot returns a copy of the whole session state.
func (m *Manager) Snapshot() store.Snapshot {
	defer m.rlockAll()()

	return m.snapshotLocked()
}

func cloneUser(u store.User) store.User {
	u.StatementIDs = slices.Clone(u.StatementIDs)
	if u.StatementIDs == nil {
		u.StatementIDs = []string{}
	}
	return u
}
