// Package cache holds the shared game state store.
//
// A game is stored as one JSON document stamped with a version. Save is conditional on
// that version, so two handlers racing on the same game cannot silently overwrite each
// other. Absence markers track disconnected players for the grace window.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/benpaul2002/99/engine"
)

var (
	// ErrNotFound is returned by Load when no game exists under the id.
	ErrNotFound = errors.New("cache: game not found")
	// ErrConflict is returned by Save when the stored version moved since the game was loaded.
	ErrConflict = errors.New("cache: version conflict")
)

// Store is the state store used by the game service.
type Store interface {
	// Load returns the stored game, or ErrNotFound.
	Load(ctx context.Context, gameID string) (*engine.Game, error)
	// Save writes g if the stored version still equals g.Version (zero means "must not
	// exist yet") and bumps g.Version on success. It also keeps the player index current.
	Save(ctx context.Context, g *engine.Game) error
	// Delete removes the game together with its absence bookkeeping.
	Delete(ctx context.Context, gameID string) error

	// GamesForPlayer lists the games clientID is seated in.
	GamesForPlayer(ctx context.Context, clientID string) ([]string, error)

	// MarkAbsent starts the grace window for clientID in gameID.
	MarkAbsent(ctx context.Context, gameID, clientID string, grace time.Duration) error
	// ClearAbsence cancels a pending absence, typically on reconnect.
	ClearAbsence(ctx context.Context, gameID, clientID string) error
	// ExpiredAbsences lists the absent clients of gameID whose grace window has elapsed.
	ExpiredAbsences(ctx context.Context, gameID string) ([]string, error)
	// ForgetAbsence drops clientID from the absence set once it has been reaped.
	ForgetAbsence(ctx context.Context, gameID, clientID string) error
	// AbsentGames lists the games with at least one pending absence.
	AbsentGames(ctx context.Context) ([]string, error)
}

// ActionRecord is one entry of a game's action log.
type ActionRecord struct {
	GameID     string `json:"gameId"`
	Version    int64  `json:"version"`
	ActorID    string `json:"actorId,omitempty"`
	ActionType string `json:"actionType"`
	Payload    any    `json:"payload,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// ActionPublisher fans out action records to interested listeners.
type ActionPublisher interface {
	PublishAction(ctx context.Context, rec ActionRecord) error
}

// departed returns the client ids seated in prev but not in next.
func departed(prev, next *engine.Game) []string {
	if prev == nil {
		return nil
	}
	var out []string
	for _, p := range prev.Players {
		if next.PlayerIndex(p.ClientID) < 0 {
			out = append(out, p.ClientID)
		}
	}
	return out
}
