// internal/game/game_test.go
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/benpaul2002/99/engine"
	"github.com/benpaul2002/99/internal/cache"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGame(t *testing.T) {
	env := newTestEnv(t)
	env.handle(t, "alice", CreateGame{Name: "Alice"})

	msg := env.mb.last("alice")
	require.NotNil(t, msg)
	assert.Equal(t, MethodCreateGame, msg.Method)
	view := msg.View()
	require.NotNil(t, view)
	assert.Equal(t, "game-1", view.ID)
	assert.Equal(t, "alice", view.LeaderClientID)
	assert.Equal(t, engine.StatusLobby, view.Status)
	require.Len(t, view.Players, 1)
	assert.True(t, view.Players[0].IsLeader)

	g := env.load(t, "game-1")
	assert.Equal(t, "Alice", g.Players[0].Name)

	ids, err := env.store.GamesForPlayer(env.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"game-1"}, ids)
}

func TestJoinGameBroadcastsToTable(t *testing.T) {
	env := newTestEnv(t)
	env.seedLobby(t, "g1", 2)

	env.handle(t, "carol", JoinGame{GameID: "g1", Name: "Carol"})

	for _, id := range []string{"alice", "bob", "carol"} {
		msg := env.mb.last(id)
		require.NotNil(t, msg, id)
		assert.Equal(t, MethodJoinGame, msg.Method, id)
		require.Len(t, msg.View().Players, 3, id)
	}
	assert.NotNil(t, env.load(t, "g1").Player("carol"))
}

func TestJoinDenied(t *testing.T) {
	env := newTestEnv(t)
	env.seedTable(t, "playing", 0, []engine.Card{card(engine.RankTwo, engine.SuitHearts)}, []engine.Card{card(engine.RankThree, engine.SuitHearts)})

	finished := env.seedTable(t, "finished", 0, []engine.Card{}, []engine.Card{})
	finished.Status = engine.StatusFinished
	require.NoError(t, env.store.Save(env.ctx, finished))

	env.seedLobby(t, "full", engine.MaxPlayers)

	tests := []struct {
		gameID string
		reason string
	}{
		{"playing", ReasonInProgress},
		{"finished", ReasonFinished},
		{"full", ReasonFull},
	}
	for _, tt := range tests {
		t.Run(tt.gameID, func(t *testing.T) {
			before := env.load(t, tt.gameID).Version
			env.handle(t, "zoe", JoinGame{GameID: tt.gameID, Name: "Zoe"})

			msg := env.mb.last("zoe")
			require.NotNil(t, msg)
			assert.Equal(t, MethodJoinDenied, msg.Method)
			assert.Equal(t, tt.gameID, msg.GameID)
			assert.Equal(t, tt.reason, msg.Reason)
			assert.Equal(t, before, env.load(t, tt.gameID).Version, "denied join must not write")
		})
	}
}

func TestJoinUnknownGameRefused(t *testing.T) {
	env := newTestEnv(t)
	env.handle(t, "zoe", JoinGame{GameID: "nope", Name: "Zoe"})

	msg := env.mb.last("zoe")
	require.NotNil(t, msg)
	assert.Equal(t, MethodRefused, msg.Method)
	assert.Equal(t, MethodJoinGame, msg.Action)
	assert.Contains(t, msg.Reason, ErrGameNotFound.Error())
}

func TestGetGame(t *testing.T) {
	env := newTestEnv(t)
	env.seedTable(t, "g1", 10,
		[]engine.Card{card(engine.RankTwo, engine.SuitHearts)},
		[]engine.Card{card(engine.RankThree, engine.SuitHearts)},
	)

	t.Run("unknown game", func(t *testing.T) {
		env.handle(t, "alice", GetGame{GameID: "nope"})
		msg := env.mb.last("alice")
		require.NotNil(t, msg)
		assert.Equal(t, MethodGetGame, msg.Method)
		assert.Equal(t, noGame, msg.Game)
	})

	t.Run("member", func(t *testing.T) {
		env.handle(t, "bob", GetGame{GameID: "g1"})
		view := env.mb.last("bob").View()
		require.NotNil(t, view)
		assert.Equal(t, "3-of-hearts", view.Players[1].Hand[0].ID)
		assert.Empty(t, view.Players[0].Hand)
	})

	t.Run("outsider after lobby", func(t *testing.T) {
		env.handle(t, "zoe", GetGame{GameID: "g1"})
		msg := env.mb.last("zoe")
		require.NotNil(t, msg)
		assert.Equal(t, &GameSummary{ID: "g1", Status: engine.StatusPlaying}, msg.Game)
	})

	t.Run("outsider in lobby", func(t *testing.T) {
		env.seedLobby(t, "lobby", 2)
		env.handle(t, "zoe", GetGame{GameID: "lobby"})
		view := env.mb.last("zoe").View()
		require.NotNil(t, view)
		assert.Len(t, view.Players, 2)
	})
}

func TestStartGameDealsRedactedViews(t *testing.T) {
	env := newTestEnv(t)
	env.seedLobby(t, "g1", 3)

	env.handle(t, "alice", StartGame{GameID: "g1"})

	g := env.load(t, "g1")
	require.Equal(t, engine.StatusPlaying, g.Status)
	for i, p := range g.Players {
		msg := env.mb.last(p.ClientID)
		require.NotNil(t, msg)
		assert.Equal(t, MethodStartGame, msg.Method)
		view := msg.View()
		assert.Empty(t, view.DrawPile)
		assert.Equal(t, engine.DeckSize-3*engine.HandSize, view.DrawPileSize)
		for j, pv := range view.Players {
			assert.Equal(t, engine.HandSize, pv.HandSize)
			if i == j {
				assert.Equal(t, g.Players[j].Hand, pv.Hand)
			} else {
				assert.Empty(t, pv.Hand, "viewer %s sees %s's hand", p.ClientID, pv.ClientID)
			}
		}
	}
}

func TestStartGameRefusals(t *testing.T) {
	env := newTestEnv(t)
	env.seedLobby(t, "g1", 2)
	env.seedLobby(t, "solo", 1)

	env.handle(t, "bob", StartGame{GameID: "g1", RequestID: "r1"})
	msg := env.mb.last("bob")
	require.NotNil(t, msg)
	assert.Equal(t, MethodRefused, msg.Method)
	assert.Equal(t, MethodStartGame, msg.Action)
	assert.Equal(t, "g1", msg.GameID)
	assert.Equal(t, "r1", msg.RequestID)
	assert.Equal(t, engine.ErrNotLeader.Error(), msg.Reason)
	assert.Nil(t, env.mb.last("alice"), "refusals go to the sender only")

	entry := env.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "g1", entry.Data["game"])

	env.handle(t, "alice", StartGame{GameID: "solo"})
	assert.Contains(t, env.mb.last("alice").Reason, engine.ErrCannotStart.Error())
	assert.Equal(t, engine.StatusLobby, env.load(t, "solo").Status)
}

func TestPlayCardBroadcastsAndDraws(t *testing.T) {
	env := newTestEnv(t)
	env.seedTable(t, "g1", 10,
		[]engine.Card{card(engine.RankSeven, engine.SuitHearts), card(engine.RankTwo, engine.SuitHearts)},
		[]engine.Card{card(engine.RankThree, engine.SuitHearts)},
	)

	env.handle(t, "alice", PlayCard{GameID: "g1", CardID: "7-of-hearts"})

	g := env.load(t, "g1")
	assert.Equal(t, 17, g.Score)
	assert.Equal(t, 1, g.CurrentPlayerIdx)
	assert.Equal(t, "7-of-hearts", g.DiscardPile[len(g.DiscardPile)-1].ID)
	assert.Len(t, g.Players[0].Hand, 2, "a card is drawn after playing")

	for _, id := range []string{"alice", "bob"} {
		msg := env.mb.last(id)
		require.NotNil(t, msg)
		assert.Equal(t, MethodPlayCard, msg.Method)
		assert.False(t, msg.KingPlayed)
		assert.Equal(t, 17, msg.View().Score)
	}

	env.m.Close()
	records := env.store.Actions()
	require.Len(t, records, 1)
	assert.Equal(t, "playCard", records[0].ActionType)
	assert.Equal(t, "alice", records[0].ActorID)
	assert.Equal(t, g.Version, records[0].Version)
}

func TestPlayCardRefusalLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t)
	env.seedTable(t, "g1", 80,
		[]engine.Card{card(engine.RankQueen, engine.SuitHearts)},
		[]engine.Card{card(engine.RankThree, engine.SuitHearts)},
	)
	before := env.load(t, "g1")

	env.handle(t, "bob", PlayCard{GameID: "g1", CardID: "3-of-hearts"})
	assert.Equal(t, engine.ErrNotYourTurn.Error(), env.mb.last("bob").Reason)

	env.handle(t, "alice", PlayCard{GameID: "g1", CardID: "Q-of-hearts", QueenDelta: 20})
	msg := env.mb.last("alice")
	assert.Equal(t, MethodRefused, msg.Method)
	assert.Contains(t, msg.Reason, engine.ErrIllegalPlay.Error())

	after := env.load(t, "g1")
	assert.Equal(t, before, after)

	env.handle(t, "alice", PlayCard{GameID: "g1", CardID: "Q-of-hearts", QueenDelta: -20})
	assert.Equal(t, 60, env.load(t, "g1").Score)
}

func TestPlayCardExactlyNinetyNineFinishesAndRecords(t *testing.T) {
	env := newTestEnv(t)
	env.seedTable(t, "g1", 79,
		[]engine.Card{card(engine.RankQueen, engine.SuitHearts)},
		[]engine.Card{card(engine.RankThree, engine.SuitHearts)},
		[]engine.Card{card(engine.RankFour, engine.SuitHearts)},
	)

	env.handle(t, "alice", PlayCard{GameID: "g1", CardID: "Q-of-hearts", QueenDelta: 20})
	env.m.Close()

	g := env.load(t, "g1")
	assert.Equal(t, engine.StatusFinished, g.Status)
	assert.Equal(t, 99, g.Score)
	assert.Empty(t, g.Players[0].Hand, "no card is drawn on a win")
	assert.Equal(t, "alice", env.mb.last("bob").View().Winner)

	rounds := env.recorder.all()
	require.Len(t, rounds, 1)
	assert.Equal(t, "g1", rounds[0].GameID)
	assert.Equal(t, "alice", rounds[0].Winner)
	assert.Equal(t, []string{"alice", "bob", "carol"}, rounds[0].Players)
	assert.Equal(t, env.now, rounds[0].FinishedAt)

	env.handle(t, "bob", PlayCard{GameID: "g1", CardID: "3-of-hearts"})
	assert.Equal(t, engine.ErrNotPlaying.Error(), env.mb.last("bob").Reason)
}

func TestForcedEliminationIsAccepted(t *testing.T) {
	env := newTestEnv(t)
	env.seedTable(t, "g1", 95,
		[]engine.Card{card(engine.RankSeven, engine.SuitHearts)},
		[]engine.Card{card(engine.RankTwo, engine.SuitHearts)},
		[]engine.Card{card(engine.RankThree, engine.SuitHearts)},
	)

	env.handle(t, "alice", PlayCard{GameID: "g1", CardID: "7-of-hearts"})

	g := env.load(t, "g1")
	assert.Equal(t, engine.PlayerDead, g.Players[0].Status)
	assert.Equal(t, 95, g.Score)
	assert.Equal(t, "7-of-hearts", g.DiscardPile[0].ID, "eliminated hand goes under the pile")
	assert.Equal(t, 1, g.CurrentPlayerIdx)
	assert.Equal(t, MethodPlayCard, env.mb.last("carol").Method)
}

func TestDuplicateRequestIsNotReapplied(t *testing.T) {
	env := newTestEnv(t)
	env.seedTable(t, "g1", 10,
		[]engine.Card{card(engine.RankTwo, engine.SuitHearts), card(engine.RankNine, engine.SuitHearts)},
		[]engine.Card{card(engine.RankThree, engine.SuitHearts)},
	)

	play := PlayCard{GameID: "g1", CardID: "2-of-hearts", RequestID: "req-1"}
	env.handle(t, "alice", play)
	first := env.load(t, "g1")
	env.mb.clear()

	env.handle(t, "alice", play)

	assert.Equal(t, first, env.load(t, "g1"))
	msg := env.mb.last("alice")
	require.NotNil(t, msg)
	assert.Equal(t, MethodPlayCard, msg.Method)
	assert.Equal(t, 12, msg.View().Score)
	assert.Nil(t, env.mb.last("bob"), "a replay is answered to its sender only")

	// Without a request id the replay is an ordinary refusal.
	env.handle(t, "alice", PlayCard{GameID: "g1", CardID: "2-of-hearts"})
	assert.Equal(t, MethodRefused, env.mb.last("alice").Method)
}

func TestRestartGame(t *testing.T) {
	env := newTestEnv(t)
	g := env.seedTable(t, "g1", 99,
		[]engine.Card{},
		[]engine.Card{card(engine.RankThree, engine.SuitHearts)},
	)
	g.Status = engine.StatusFinished
	require.NoError(t, env.store.Save(env.ctx, g))

	env.handle(t, "bob", RestartGame{GameID: "g1"})
	assert.Equal(t, engine.ErrNotLeader.Error(), env.mb.last("bob").Reason)

	env.handle(t, "alice", RestartGame{GameID: "g1"})
	g = env.load(t, "g1")
	assert.Equal(t, engine.StatusPlaying, g.Status)
	assert.Zero(t, g.Score)
	assert.Equal(t, MethodStartGame, env.mb.last("bob").Method)

	env.seedLobby(t, "solo", 1)
	env.handle(t, "alice", RestartGame{GameID: "solo"})
	assert.Equal(t, MethodGetGame, env.mb.last("alice").Method)
	assert.Equal(t, engine.StatusLobby, env.load(t, "solo").Status)
}

func TestHandleNilAction(t *testing.T) {
	env := newTestEnv(t)
	err := env.m.Handle(env.ctx, "alice", nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

// racingStore lets a test change the stored game between an action's load and its save.
type racingStore struct {
	cache.Store
	once       sync.Once
	beforeSave func()
}

func (s *racingStore) Save(ctx context.Context, g *engine.Game) error {
	s.once.Do(s.beforeSave)
	return s.Store.Save(ctx, g)
}

func TestLostSaveRaceIsRetried(t *testing.T) {
	env := newTestEnv(t)
	env.seedLobby(t, "g1", 2)

	// Another process seats carol while this one is seating dave.
	other := NewManager(Config{Store: env.store, Notifier: newMockBroadcaster(), Logger: logrus.New()})
	racing := &racingStore{Store: env.store}
	racing.beforeSave = func() {
		require.NoError(t, other.Handle(env.ctx, "carol", JoinGame{GameID: "g1", Name: "Carol"}))
	}
	m := NewManager(Config{Store: racing, Notifier: env.mb, Logger: logrus.New()})

	require.NoError(t, m.Handle(env.ctx, "dave", JoinGame{GameID: "g1", Name: "Dave"}))

	g := env.load(t, "g1")
	assert.NotNil(t, g.Player("carol"))
	assert.NotNil(t, g.Player("dave"))
	assert.Len(t, g.Players, 4)
}

// conflictStore always loses the save race.
type conflictStore struct{ cache.Store }

func (conflictStore) Save(context.Context, *engine.Game) error { return cache.ErrConflict }

func TestPersistentConflictIsReported(t *testing.T) {
	env := newTestEnv(t)
	env.seedLobby(t, "g1", 2)
	m := NewManager(Config{Store: conflictStore{env.store}, Notifier: env.mb, Logger: logrus.New()})

	err := m.Handle(env.ctx, "carol", JoinGame{GameID: "g1", Name: "Carol"})
	assert.ErrorIs(t, err, cache.ErrConflict)
	assert.Nil(t, env.mb.last("carol"), "nothing is announced for an unsaved change")
}

func TestConcurrentJoinsAcrossProcessesKeepEveryUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.seedLobby(t, "g1", 1)

	managers := []*Manager{
		NewManager(Config{Store: env.store, Notifier: newMockBroadcaster(), Logger: logrus.New()}),
		NewManager(Config{Store: env.store, Notifier: newMockBroadcaster(), Logger: logrus.New()}),
	}

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i)
			errs <- managers[i%2].Handle(context.Background(), id, JoinGame{GameID: "g1", Name: id})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	g := env.load(t, "g1")
	assert.Len(t, g.Players, 7)
	for i := 0; i < 6; i++ {
		assert.NotNil(t, g.Player(fmt.Sprintf("p%d", i)))
	}
}

func TestConcurrentActionsOnOneGameAreSerialised(t *testing.T) {
	env := newTestEnv(t)
	env.seedLobby(t, "g1", 1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i)
			assert.NoError(t, env.m.Handle(context.Background(), id, JoinGame{GameID: "g1", Name: id}))
		}(i)
	}
	wg.Wait()

	assert.Len(t, env.load(t, "g1").Players, 9)
	assert.Zero(t, env.m.locks.size())
}

func TestIsRefusal(t *testing.T) {
	assert.True(t, IsRefusal(engine.ErrNotYourTurn))
	assert.True(t, IsRefusal(fmt.Errorf("%w: g1", ErrGameNotFound)))
	assert.True(t, IsRefusal(ErrMalformed))
	assert.False(t, IsRefusal(cache.ErrConflict))
	assert.False(t, IsRefusal(errors.New("boom")))
}
