// Package engine implements the rules of 99: a shared running total that players push
// towards, but never past, 99.
//
// The package is pure: a Game is a plain JSON-serialisable value, every transition is a
// method on *Game, and randomness is injected through a Shuffler. Rejected transitions
// return one of the sentinel errors in errors.go and leave the game untouched.
package engine

import "fmt"

const (
	MinPlayers  = 2
	MaxPlayers  = 10
	HandSize    = 2
	TargetScore = 99
	DeckSize    = 52
)

// Game is the aggregate root for one table.
type Game struct {
	ID               string     `json:"id"`
	LeaderClientID   string     `json:"leaderClientId"`
	Players          []*Player  `json:"players"` // join order, which is also turn order
	DrawPile         []Card     `json:"drawPile"`
	DiscardPile      []Card     `json:"discardPile"` // top is the last element
	CurrentPlayerIdx int        `json:"currentPlayerIdx"`
	Score            int        `json:"score"`
	Status           Status     `json:"status"`
	Challenge        *Challenge `json:"challenge,omitempty"`

	// Version is the optimistic-concurrency stamp maintained by the store.
	Version int64 `json:"version"`
	// AppliedRequests maps a client id to the last request id applied for it.
	AppliedRequests map[string]string `json:"appliedRequests,omitempty"`
}

// NewGame creates a lobby with the leader as its only player.
func NewGame(id, leaderID, leaderName string) *Game {
	return &Game{
		ID:             id,
		LeaderClientID: leaderID,
		Players: []*Player{{
			ClientID: leaderID,
			Name:     leaderName,
			Hand:     []Card{},
			Status:   PlayerLobby,
		}},
		DrawPile:    []Card{},
		DiscardPile: []Card{},
		Status:      StatusLobby,
	}
}

// PlayerIndex returns the seat of clientID, or -1.
func (g *Game) PlayerIndex(clientID string) int {
	for i, p := range g.Players {
		if p.ClientID == clientID {
			return i
		}
	}
	return -1
}

// Player returns the seated player with clientID, or nil.
func (g *Game) Player(clientID string) *Player {
	if i := g.PlayerIndex(clientID); i >= 0 {
		return g.Players[i]
	}
	return nil
}

// Current returns the player whose turn it is, or nil if there are no players.
func (g *Game) Current() *Player {
	if g.CurrentPlayerIdx < 0 || g.CurrentPlayerIdx >= len(g.Players) {
		return nil
	}
	return g.Players[g.CurrentPlayerIdx]
}

// AliveCount returns the number of players not marked dead.
func (g *Game) AliveCount() int {
	n := 0
	for _, p := range g.Players {
		if p.Alive() {
			n++
		}
	}
	return n
}

// Join seats clientID in the lobby. Re-joining an already seated identity is always
// allowed and reports rejoined=true without changing the roster.
func (g *Game) Join(clientID, name string) (rejoined bool, err error) {
	if g.PlayerIndex(clientID) >= 0 {
		return true, nil
	}
	switch g.Status {
	case StatusPlaying:
		return false, ErrInProgress
	case StatusFinished:
		return false, ErrFinished
	}
	if len(g.Players) >= MaxPlayers {
		return false, fmt.Errorf("%w: %d players seated", ErrGameFull, len(g.Players))
	}
	g.Players = append(g.Players, &Player{
		ClientID: clientID,
		Name:     name,
		Hand:     []Card{},
		Status:   PlayerLobby,
	})
	return false, nil
}

// CanStart reports whether the lobby has a valid number of players.
func (g *Game) CanStart() bool {
	n := len(g.Players)
	return g.Status == StatusLobby && n >= MinPlayers && n <= MaxPlayers
}

// Start deals a new round. Only the leader may start.
func (g *Game) Start(by string, sh Shuffler) error {
	if by != g.LeaderClientID {
		return ErrNotLeader
	}
	if !g.CanStart() {
		return fmt.Errorf("%w: status %s with %d players", ErrCannotStart, g.Status, len(g.Players))
	}
	g.deal(sh)
	return nil
}

// Restart resets the table to the lobby and deals again if enough players remain.
// It reports whether a new round was started.
func (g *Game) Restart(by string, sh Shuffler) (started bool, err error) {
	if by != g.LeaderClientID {
		return false, ErrNotLeader
	}
	g.Score = 0
	g.Status = StatusLobby
	g.CurrentPlayerIdx = 0
	g.DiscardPile = []Card{}
	g.DrawPile = []Card{}
	g.Challenge = nil
	for _, p := range g.Players {
		p.Status = PlayerLobby
		p.Hand = []Card{}
	}
	if !g.CanStart() {
		return false, nil
	}
	g.deal(sh)
	return true, nil
}

// deal shuffles a fresh deck and hands out HandSize cards round-robin from the top.
func (g *Game) deal(sh Shuffler) {
	deck := NewDeck()
	sh.Shuffle(deck)

	for _, p := range g.Players {
		p.Hand = []Card{}
		p.Status = PlayerPlaying
	}
	for r := 0; r < HandSize; r++ {
		for _, p := range g.Players {
			n := len(deck)
			if n == 0 {
				break
			}
			p.Hand = append(p.Hand, deck[n-1])
			deck = deck[:n-1]
		}
	}

	g.DrawPile = deck
	g.DiscardPile = []Card{}
	g.Score = 0
	g.CurrentPlayerIdx = 0
	g.Challenge = nil
	g.Status = StatusPlaying
}

// Winner returns the last player standing of a finished round, or "".
func (g *Game) Winner() string {
	if g.Status != StatusFinished {
		return ""
	}
	winner := ""
	for _, p := range g.Players {
		if p.Alive() {
			if winner != "" {
				return ""
			}
			winner = p.ClientID
		}
	}
	return winner
}

// MarkRequest records requestID as the last applied request for clientID.
func (g *Game) MarkRequest(clientID, requestID string) {
	if requestID == "" {
		return
	}
	if g.AppliedRequests == nil {
		g.AppliedRequests = make(map[string]string)
	}
	g.AppliedRequests[clientID] = requestID
}

// AlreadyApplied reports whether requestID was the last request applied for clientID.
func (g *Game) AlreadyApplied(clientID, requestID string) bool {
	return requestID != "" && g.AppliedRequests[clientID] == requestID
}
