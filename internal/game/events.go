// internal/game/events.go
package game

import "encoding/json"

// Method names an inbound action or an outbound message.
type Method string

// Inbound actions and the outbound messages that answer them share names.
const (
	MethodConnect          Method = "connect"          // Outbound: the socket's client id.
	MethodCreateGame       Method = "createGame"       // Both: create a lobby; its first projection.
	MethodJoinGame         Method = "joinGame"         // Both: take a seat; broadcast to the table.
	MethodJoinDenied       Method = "joinDenied"       // Outbound: the seat was refused, with a reason.
	MethodGetGame          Method = "getGame"          // Both: fetch a projection; also used for lobby broadcasts.
	MethodStartGame        Method = "startGame"        // Both: deal a round.
	MethodPlayCard         Method = "playCard"         // Both: a card was played.
	MethodKingSelectTarget Method = "kingSelectTarget" // Inbound: the challenger names a target.
	MethodKingTurn         Method = "kingTurn"         // Outbound: the target's temporary turn has begun.
	MethodRestartGame      Method = "restartGame"      // Inbound: reset the table and deal again.
	MethodRefused          Method = "refused"          // Outbound: an action was rejected.
)

// Reasons sent with joinDenied.
const (
	ReasonInProgress = "Game is already in progress"
	ReasonFinished   = "Game is finished"
	ReasonFull       = "Game is full"
)

// noGame encodes as JSON null so that an unknown game is reported as {"game": null}.
var noGame = json.RawMessage("null")

// Message is the envelope of every outbound frame.
type Message struct {
	Method   Method `json:"method"`
	ClientID string `json:"clientId,omitempty"` // connect only
	GameID   string `json:"gameId,omitempty"`

	// Game is a *GameView, a *GameSummary for outsiders, or noGame.
	Game any `json:"game,omitempty"`

	// KingPlayed is set only on the challenger's copy of the playCard that opened a challenge.
	KingPlayed bool `json:"kingPlayed,omitempty"`

	Reason    string `json:"reason,omitempty"`    // joinDenied and refused
	Action    Method `json:"action,omitempty"`    // refused: the rejected action
	RequestID string `json:"requestId,omitempty"` // refused: echoes the action's request id
}

// View returns the projection carried by the message, or nil.
func (m Message) View() *GameView {
	v, _ := m.Game.(*GameView)
	return v
}
