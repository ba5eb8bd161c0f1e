package engine

import "strconv"

// PlayOptions are the player's choices for cards whose value is chosen at play time.
// Zero values mean "unspecified".
type PlayOptions struct {
	AceValue   int `json:"aceValue,omitempty"`   // 1 or 11
	QueenDelta int `json:"queenDelta,omitempty"` // -20 or +20
}

// ContextFlags carry situational overrides for ResolveDelta.
type ContextFlags struct {
	// ForcedZero scores a Four as zero. Set only for the target of an active challenge.
	ForcedZero bool
}

// ResolveDelta maps a played rank and the player's options to the change in score.
// Invalid option values fall back to the defaults (Ace 1, Queen +20).
func ResolveDelta(rank Rank, opts PlayOptions, flags ContextFlags) int {
	switch rank {
	case RankAce:
		if opts.AceValue == 11 {
			return 11
		}
		return 1
	case RankJack, RankKing:
		return 0
	case RankQueen:
		if opts.QueenDelta == -20 {
			return -20
		}
		return 20
	}
	if flags.ForcedZero && rank == RankFour {
		return 0
	}
	n, err := strconv.Atoi(string(rank))
	if err != nil {
		return 0
	}
	return n
}

// MinimalDelta is the smallest delta a rank can produce under any option choice.
// It tests legality without committing to a choice.
func MinimalDelta(rank Rank) int {
	switch rank {
	case RankAce:
		return 1
	case RankQueen:
		return -20
	}
	return ResolveDelta(rank, PlayOptions{}, ContextFlags{})
}
