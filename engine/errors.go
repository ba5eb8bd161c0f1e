package engine

import "errors"

// Refusals. The game is left untouched whenever one of these is returned.
var (
	ErrNotPlaying     = errors.New("game is not in progress")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrCardNotInHand  = errors.New("card not in hand")
	ErrIllegalPlay    = errors.New("illegal play")
	ErrForcedResponse = errors.New("must answer the challenge with a King or a Four")
	ErrTargetPending  = errors.New("choose a challenge target first")
	ErrNoChallenge    = errors.New("no challenge awaiting a target")
	ErrNotChallenger  = errors.New("only the challenger may choose a target")
	ErrInvalidTarget  = errors.New("invalid challenge target")
	ErrNotLeader      = errors.New("only the leader may do that")
	ErrCannotStart    = errors.New("game cannot be started")
	ErrInProgress     = errors.New("game is already in progress")
	ErrFinished       = errors.New("game is finished")
	ErrGameFull       = errors.New("game is full")
	ErrUnknownPlayer  = errors.New("player is not seated in this game")
)

var refusals = []error{
	ErrNotPlaying, ErrNotYourTurn, ErrCardNotInHand, ErrIllegalPlay, ErrForcedResponse,
	ErrTargetPending, ErrNoChallenge, ErrNotChallenger, ErrInvalidTarget, ErrNotLeader,
	ErrCannotStart, ErrInProgress, ErrFinished, ErrGameFull, ErrUnknownPlayer,
}

// IsRefusal reports whether err is a rule refusal rather than a failure.
func IsRefusal(err error) bool {
	for _, r := range refusals {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
