package game

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/benpaul2002/99/engine"
)

// ErrMalformed is returned by DecodeAction for frames that are not a valid action.
var ErrMalformed = errors.New("malformed action")

// ErrGameNotFound is returned when an action names a game that does not exist.
var ErrGameNotFound = errors.New("game not found")

// Action is an inbound request. The concrete types below are the only implementations.
type Action interface {
	Method() Method
	// Game returns the id of the game the action targets, or "" for CreateGame.
	Game() string
	// Request returns the client-chosen request id used for deduplication, or "".
	Request() string
}

// CreateGame opens a lobby led by the sender.
type CreateGame struct {
	Name string `json:"name"`
}

// JoinGame takes a seat, or resumes one after a reconnect.
type JoinGame struct {
	GameID string `json:"gameId"`
	Name   string `json:"name"`
}

// GetGame asks for the sender's projection of a game.
type GetGame struct {
	GameID string `json:"gameId"`
}

// StartGame deals the first round. Leader only.
type StartGame struct {
	GameID    string `json:"gameId"`
	RequestID string `json:"requestId,omitempty"`
}

// PlayCard plays a card from the sender's hand.
type PlayCard struct {
	GameID     string `json:"gameId"`
	CardID     string `json:"cardId"`
	AceValue   int    `json:"aceValue,omitempty"`
	QueenDelta int    `json:"queenDelta,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
}

// KingSelectTarget names the opponent who must answer the sender's King.
type KingSelectTarget struct {
	GameID         string `json:"gameId"`
	TargetClientID string `json:"targetClientId"`
	RequestID      string `json:"requestId,omitempty"`
}

// RestartGame resets the table and deals again if enough players remain. Leader only.
type RestartGame struct {
	GameID    string `json:"gameId"`
	RequestID string `json:"requestId,omitempty"`
}

func (CreateGame) Method() Method       { return MethodCreateGame }
func (JoinGame) Method() Method         { return MethodJoinGame }
func (GetGame) Method() Method          { return MethodGetGame }
func (StartGame) Method() Method        { return MethodStartGame }
func (PlayCard) Method() Method         { return MethodPlayCard }
func (KingSelectTarget) Method() Method { return MethodKingSelectTarget }
func (RestartGame) Method() Method      { return MethodRestartGame }

func (CreateGame) Game() string         { return "" }
func (a JoinGame) Game() string         { return a.GameID }
func (a GetGame) Game() string          { return a.GameID }
func (a StartGame) Game() string        { return a.GameID }
func (a PlayCard) Game() string         { return a.GameID }
func (a KingSelectTarget) Game() string { return a.GameID }
func (a RestartGame) Game() string      { return a.GameID }

func (CreateGame) Request() string         { return "" }
func (JoinGame) Request() string           { return "" }
func (GetGame) Request() string            { return "" }
func (a StartGame) Request() string        { return a.RequestID }
func (a PlayCard) Request() string         { return a.RequestID }
func (a KingSelectTarget) Request() string { return a.RequestID }
func (a RestartGame) Request() string      { return a.RequestID }

// Options converts the card choices into engine play options.
func (a PlayCard) Options() engine.PlayOptions {
	return engine.PlayOptions{AceValue: a.AceValue, QueenDelta: a.QueenDelta}
}

// DecodeAction parses one inbound frame.
func DecodeAction(data []byte) (Action, error) {
	var env struct {
		Method Method `json:"method"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var (
		act    Action
		gameID string
		err    error
	)
	switch env.Method {
	case MethodCreateGame:
		var a CreateGame
		err = json.Unmarshal(data, &a)
		act = a
	case MethodJoinGame:
		var a JoinGame
		err = json.Unmarshal(data, &a)
		act, gameID = a, a.GameID
	case MethodGetGame:
		var a GetGame
		err = json.Unmarshal(data, &a)
		act, gameID = a, a.GameID
	case MethodStartGame:
		var a StartGame
		err = json.Unmarshal(data, &a)
		act, gameID = a, a.GameID
	case MethodPlayCard:
		var a PlayCard
		err = json.Unmarshal(data, &a)
		if err == nil && a.CardID == "" {
			err = errors.New("cardId is required")
		}
		act, gameID = a, a.GameID
	case MethodKingSelectTarget:
		var a KingSelectTarget
		err = json.Unmarshal(data, &a)
		if err == nil && a.TargetClientID == "" {
			err = errors.New("targetClientId is required")
		}
		act, gameID = a, a.GameID
	case MethodRestartGame:
		var a RestartGame
		err = json.Unmarshal(data, &a)
		act, gameID = a, a.GameID
	default:
		return nil, fmt.Errorf("%w: unknown method %q", ErrMalformed, env.Method)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Method, err)
	}
	if env.Method != MethodCreateGame && gameID == "" {
		return nil, fmt.Errorf("%w: %s: gameId is required", ErrMalformed, env.Method)
	}
	return act, nil
}

// IsRefusal reports whether err should be answered with a refused message rather than
// treated as a server failure.
func IsRefusal(err error) bool {
	return engine.IsRefusal(err) || errors.Is(err, ErrMalformed) || errors.Is(err, ErrGameNotFound)
}
