package game

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benpaul2002/99/engine"
	"github.com/benpaul2002/99/internal/cache"
	"github.com/benpaul2002/99/internal/database"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// mockBroadcaster captures outbound messages per client for assertions.
type mockBroadcaster struct {
	mu       sync.Mutex
	messages map[string][]Message
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{messages: make(map[string][]Message)}
}

func (mb *mockBroadcaster) SendToClient(clientID string, msg Message) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.messages[clientID] = append(mb.messages[clientID], msg)
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.messages = make(map[string][]Message)
}

func (mb *mockBroadcaster) all(clientID string) []Message {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return append([]Message(nil), mb.messages[clientID]...)
}

func (mb *mockBroadcaster) last(clientID string) *Message {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	msgs := mb.messages[clientID]
	if len(msgs) == 0 {
		return nil
	}
	return &msgs[len(msgs)-1]
}

// fakeRecorder collects finished rounds.
type fakeRecorder struct {
	mu     sync.Mutex
	rounds []database.RoundRecord
}

func (r *fakeRecorder) RecordRound(_ context.Context, rec database.RoundRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds = append(r.rounds, rec)
	return nil
}

func (r *fakeRecorder) all() []database.RoundRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]database.RoundRecord(nil), r.rounds...)
}

// testEnv bundles a Manager with its collaborators.
type testEnv struct {
	m        *Manager
	store    *cache.Memory
	mb       *mockBroadcaster
	recorder *fakeRecorder
	hook     *test.Hook
	now      time.Time
	ctx      context.Context
}

// advance moves the store's clock forward.
func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	env := &testEnv{
		store:    cache.NewMemory(),
		mb:       newMockBroadcaster(),
		recorder: &fakeRecorder{},
		hook:     hook,
		now:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		ctx:      context.Background(),
	}
	env.store.Now = func() time.Time { return env.now }

	ids := 0
	env.m = NewManager(Config{
		Store:    env.store,
		Notifier: env.mb,
		Logger:   logger,
		Shuffler: engine.NewSeededShuffler(7),
		Grace:    time.Minute,
		Recorder: env.recorder,
		Actions:  env.store,
		NewID: func() string {
			ids++
			return fmt.Sprintf("game-%d", ids)
		},
		Now: func() time.Time { return env.now },
	})
	t.Cleanup(env.m.Close)
	return env
}

// handle runs an action and fails the test on a server error.
func (e *testEnv) handle(t *testing.T, clientID string, act Action) {
	t.Helper()
	require.NoError(t, e.m.Handle(e.ctx, clientID, act))
}

// load reads a game straight from the store.
func (e *testEnv) load(t *testing.T, gameID string) *engine.Game {
	t.Helper()
	g, err := e.store.Load(e.ctx, gameID)
	require.NoError(t, err)
	return g
}

var seatNames = []string{"alice", "bob", "carol", "dave", "erin", "frank", "grace", "heidi", "ivan", "judy"}

func card(rank engine.Rank, suit engine.Suit) engine.Card { return engine.NewCard(rank, suit) }

// seedTable stores a game in progress with one seat per hand, named alice, bob, ...
// alice leads and holds the turn.
func (e *testEnv) seedTable(t *testing.T, gameID string, score int, hands ...[]engine.Card) *engine.Game {
	t.Helper()
	g := engine.NewGame(gameID, seatNames[0], seatNames[0])
	g.Players = nil
	for i, h := range hands {
		g.Players = append(g.Players, &engine.Player{
			ClientID: seatNames[i],
			Name:     seatNames[i],
			Hand:     append([]engine.Card{}, h...),
			Status:   engine.PlayerPlaying,
		})
	}
	g.Status = engine.StatusPlaying
	g.Score = score
	g.DrawPile = []engine.Card{
		card(engine.RankTwo, engine.SuitClubs),
		card(engine.RankThree, engine.SuitClubs),
		card(engine.RankFive, engine.SuitClubs),
		card(engine.RankSix, engine.SuitClubs),
	}
	g.DiscardPile = []engine.Card{card(engine.RankEight, engine.SuitClubs)}
	require.NoError(t, e.store.Save(e.ctx, g))
	return g
}

// seedLobby stores a lobby led by alice with n seated players.
func (e *testEnv) seedLobby(t *testing.T, gameID string, n int) *engine.Game {
	t.Helper()
	g := engine.NewGame(gameID, seatNames[0], seatNames[0])
	for i := 1; i < n; i++ {
		_, err := g.Join(seatNames[i], seatNames[i])
		require.NoError(t, err)
	}
	require.NoError(t, e.store.Save(e.ctx, g))
	return g
}
