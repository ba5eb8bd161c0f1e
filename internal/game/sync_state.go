// internal/game/sync_state.go
package game

import "github.com/benpaul2002/99/engine"

// PlayerView is a seat as seen by one viewer. Hand is empty for everyone but the viewer;
// HandSize is public. Playable lists the ids of the viewer's cards that may be played
// now and is set only on the viewer's own seat while it holds the turn.
type PlayerView struct {
	ClientID      string              `json:"clientId"`
	Name          string              `json:"name"`
	Hand          []engine.Card       `json:"hand"`
	HandSize      int                 `json:"handSize"`
	Playable      []string            `json:"playable,omitempty"`
	Status        engine.PlayerStatus `json:"status"`
	IsLeader      bool                `json:"isLeader"`
	IsCurrentTurn bool                `json:"isCurrentTurn"`
}

// ChallengeView is the public part of an open King challenge.
type ChallengeView struct {
	ChallengerID string `json:"challengerId"`
	TargetID     string `json:"targetId,omitempty"`
}

// GameView is the projection of a game for one viewer. DrawPile is always empty;
// only its size is disclosed.
type GameView struct {
	ID               string         `json:"id"`
	LeaderClientID   string         `json:"leaderClientId"`
	Players          []PlayerView   `json:"players"`
	DrawPile         []engine.Card  `json:"drawPile"`
	DrawPileSize     int            `json:"drawPileSize"`
	DiscardPile      []engine.Card  `json:"discardPile"`
	CurrentPlayerIdx int            `json:"currentPlayerIdx"`
	Score            int            `json:"score"`
	Status           engine.Status  `json:"status"`
	Challenge        *ChallengeView `json:"challenge,omitempty"`
	Winner           string         `json:"winner,omitempty"`
}

// GameSummary is all an outsider learns about a game that is past its lobby.
type GameSummary struct {
	ID     string        `json:"id"`
	Status engine.Status `json:"status"`
}

// Project builds viewerID's view of g. The result shares no memory with g.
func Project(g *engine.Game, viewerID string) *GameView {
	v := &GameView{
		ID:               g.ID,
		LeaderClientID:   g.LeaderClientID,
		Players:          make([]PlayerView, len(g.Players)),
		DrawPile:         []engine.Card{},
		DrawPileSize:     len(g.DrawPile),
		DiscardPile:      append([]engine.Card{}, g.DiscardPile...),
		CurrentPlayerIdx: g.CurrentPlayerIdx,
		Score:            g.Score,
		Status:           g.Status,
		Winner:           g.Winner(),
	}
	if c := g.Challenge; c != nil {
		v.Challenge = &ChallengeView{ChallengerID: c.ChallengerID, TargetID: c.TargetID}
	}

	for i, p := range g.Players {
		pv := PlayerView{
			ClientID:      p.ClientID,
			Name:          p.Name,
			Hand:          []engine.Card{},
			HandSize:      len(p.Hand),
			Status:        p.Status,
			IsLeader:      p.ClientID == g.LeaderClientID,
			IsCurrentTurn: g.Status == engine.StatusPlaying && i == g.CurrentPlayerIdx,
		}
		if p.ClientID == viewerID {
			pv.Hand = append(pv.Hand, p.Hand...)
			if pv.IsCurrentTurn && (g.Challenge == nil || !g.Challenge.Selecting()) {
				for _, c := range g.LegalCards(i) {
					pv.Playable = append(pv.Playable, c.ID)
				}
			}
		}
		v.Players[i] = pv
	}
	return v
}

// viewFor returns what viewerID may see of g: the full projection for members and for
// anyone while the game is in its lobby, otherwise only the id and status.
func viewFor(g *engine.Game, viewerID string) any {
	if g.PlayerIndex(viewerID) >= 0 || g.Status == engine.StatusLobby {
		return Project(g, viewerID)
	}
	return &GameSummary{ID: g.ID, Status: g.Status}
}
