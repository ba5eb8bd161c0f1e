package engine

import (
	"encoding/json"
	"fmt"
	"testing"
)

// keepOrder is a Shuffler that leaves cards untouched.
type keepOrder struct{}

func (keepOrder) Shuffle([]Card) {}

func c(rank Rank, suit Suit) Card { return NewCard(rank, suit) }

// newTable builds a game in progress with one player per hand, named p0, p1, ...
// The turn is on p0 and the draw pile holds a few low clubs.
func newTable(t *testing.T, score int, hands ...[]Card) *Game {
	t.Helper()
	g := NewGame("g1", "p0", "P0")
	g.Players = nil
	for i, h := range hands {
		hand := append([]Card{}, h...)
		g.Players = append(g.Players, &Player{
			ClientID: fmt.Sprintf("p%d", i),
			Name:     fmt.Sprintf("P%d", i),
			Hand:     hand,
			Status:   PlayerPlaying,
		})
	}
	g.Status = StatusPlaying
	g.Score = score
	g.DrawPile = []Card{c(RankTwo, SuitClubs), c(RankThree, SuitClubs), c(RankFive, SuitClubs)}
	g.DiscardPile = []Card{c(RankSix, SuitClubs)}
	return g
}

// snapshot serialises the game so that tests can check it was left untouched.
func snapshot(t *testing.T, g *Game) string {
	t.Helper()
	b, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

// totalCards counts every card on the table.
func totalCards(g *Game) int {
	n := len(g.DrawPile) + len(g.DiscardPile)
	for _, p := range g.Players {
		n += len(p.Hand)
	}
	return n
}
