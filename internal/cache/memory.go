package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/benpaul2002/99/engine"
)

// Memory is an in-process Store for single-node deployments and tests.
// Games are kept encoded so callers never share mutable state with the store.
type Memory struct {
	mu      sync.Mutex
	games   map[string][]byte
	absent  map[string]map[string]time.Time // game id -> client id -> deadline
	players map[string]map[string]struct{}  // client id -> game ids
	actions []ActionRecord

	// Now is the clock used for absence deadlines.
	Now func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		games:   make(map[string][]byte),
		absent:  make(map[string]map[string]time.Time),
		players: make(map[string]map[string]struct{}),
		Now:     time.Now,
	}
}

func (m *Memory) Load(_ context.Context, gameID string) (*engine.Game, error) {
	m.mu.Lock()
	data, ok := m.games[gameID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeGame(data)
}

func (m *Memory) Save(_ context.Context, g *engine.Game) error {
	next := *g
	next.Version = g.Version + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode game %s: %w", g.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var stored *engine.Game
	if raw, ok := m.games[g.ID]; ok {
		if stored, err = decodeGame(raw); err != nil {
			return err
		}
		if stored.Version != g.Version {
			return ErrConflict
		}
	} else if g.Version != 0 {
		return ErrConflict
	}

	m.games[g.ID] = data
	for _, p := range g.Players {
		m.index(p.ClientID)[g.ID] = struct{}{}
	}
	for _, id := range departed(stored, g) {
		delete(m.index(id), g.ID)
	}
	g.Version = next.Version
	return nil
}

func (m *Memory) Delete(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if raw, ok := m.games[gameID]; ok {
		if g, err := decodeGame(raw); err == nil {
			for _, p := range g.Players {
				delete(m.index(p.ClientID), gameID)
			}
		}
	}
	delete(m.games, gameID)
	delete(m.absent, gameID)
	return nil
}

func (m *Memory) GamesForPlayer(_ context.Context, clientID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.players[clientID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Memory) MarkAbsent(_ context.Context, gameID, clientID string, grace time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.absent[gameID]
	if !ok {
		set = make(map[string]time.Time)
		m.absent[gameID] = set
	}
	set[clientID] = m.Now().Add(grace)
	return nil
}

func (m *Memory) ClearAbsence(ctx context.Context, gameID, clientID string) error {
	return m.ForgetAbsence(ctx, gameID, clientID)
}

func (m *Memory) ExpiredAbsences(_ context.Context, gameID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	var expired []string
	for cid, deadline := range m.absent[gameID] {
		if !now.Before(deadline) {
			expired = append(expired, cid)
		}
	}
	return expired, nil
}

func (m *Memory) ForgetAbsence(_ context.Context, gameID, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.absent[gameID], clientID)
	if len(m.absent[gameID]) == 0 {
		delete(m.absent, gameID)
	}
	return nil
}

func (m *Memory) AbsentGames(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.absent {
		ids = append(ids, id)
	}
	return ids, nil
}

// PublishAction appends rec to the in-memory action log.
func (m *Memory) PublishAction(_ context.Context, rec ActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, rec)
	return nil
}

// Actions returns a copy of the action log.
func (m *Memory) Actions() []ActionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ActionRecord(nil), m.actions...)
}

// index returns the game set of clientID, creating it if needed. Caller holds mu.
func (m *Memory) index(clientID string) map[string]struct{} {
	set, ok := m.players[clientID]
	if !ok {
		set = make(map[string]struct{})
		m.players[clientID] = set
	}
	return set
}
