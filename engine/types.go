package engine

import "strconv"

// Suit names a card suit.
type Suit string

const (
	SuitSpades   Suit = "spades"
	SuitHearts   Suit = "hearts"
	SuitDiamonds Suit = "diamonds"
	SuitClubs    Suit = "clubs"
)

// Suits lists the suits in deck-building order.
var Suits = [4]Suit{SuitSpades, SuitHearts, SuitDiamonds, SuitClubs}

// Rank names a card rank as it appears on the wire ("A", "2".."10", "J", "Q", "K").
type Rank string

const (
	RankAce   Rank = "A"
	RankTwo   Rank = "2"
	RankThree Rank = "3"
	RankFour  Rank = "4"
	RankFive  Rank = "5"
	RankSix   Rank = "6"
	RankSeven Rank = "7"
	RankEight Rank = "8"
	RankNine  Rank = "9"
	RankTen   Rank = "10"
	RankJack  Rank = "J"
	RankQueen Rank = "Q"
	RankKing  Rank = "K"
)

// Ranks lists the ranks in deck-building order.
var Ranks = [13]Rank{
	RankAce, RankTwo, RankThree, RankFour, RankFive, RankSix, RankSeven,
	RankEight, RankNine, RankTen, RankJack, RankQueen, RankKing,
}

// Card is an immutable playing card. ID is derived from rank and suit.
type Card struct {
	ID    string `json:"id"`
	Rank  Rank   `json:"rank"`
	Suit  Suit   `json:"suit"`
	Value int    `json:"value"`
}

// NewCard constructs the card for rank and suit.
func NewCard(rank Rank, suit Suit) Card {
	return Card{
		ID:    CardID(rank, suit),
		Rank:  rank,
		Suit:  suit,
		Value: BaseValue(rank),
	}
}

// CardID returns the deterministic id for a rank/suit pair, e.g. "10-of-hearts".
func CardID(rank Rank, suit Suit) string {
	return string(rank) + "-of-" + string(suit)
}

// BaseValue returns the stored value for a rank.
//   - Ace → 1 (11 may be chosen at play time)
//   - Two–Ten → face value
//   - Jack → 0
//   - Queen → 20 (sign chosen at play time)
//   - King → 0 (opens a challenge instead of scoring)
func BaseValue(rank Rank) int {
	switch rank {
	case RankAce:
		return 1
	case RankJack, RankKing:
		return 0
	case RankQueen:
		return 20
	}
	n, err := strconv.Atoi(string(rank))
	if err != nil {
		return 0
	}
	return n
}

// PlayerStatus is a player's lifecycle state.
type PlayerStatus string

const (
	PlayerLobby   PlayerStatus = "lobby"
	PlayerPlaying PlayerStatus = "playing"
	PlayerDead    PlayerStatus = "dead"
)

// Status is a game's lifecycle state.
type Status string

const (
	StatusLobby    Status = "lobby"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Player is a seat at the table. Hand is owned by the player while alive.
type Player struct {
	ClientID string       `json:"clientId"`
	Name     string       `json:"name"`
	Hand     []Card       `json:"hand"`
	Status   PlayerStatus `json:"status"`
}

// Alive reports whether the player is still in the round.
func (p *Player) Alive() bool { return p.Status != PlayerDead }

// handIndex returns the index of cardID in the hand, or -1.
func (p *Player) handIndex(cardID string) int {
	for i, c := range p.Hand {
		if c.ID == cardID {
			return i
		}
	}
	return -1
}

// holds reports whether the hand contains a card of any of the given ranks.
func (p *Player) holds(ranks ...Rank) bool {
	for _, c := range p.Hand {
		for _, r := range ranks {
			if c.Rank == r {
				return true
			}
		}
	}
	return false
}

// Challenge is the pending state of a King challenge. It exists only while unresolved.
// TargetID is empty while the challenger is still choosing.
type Challenge struct {
	ReturnIdx    int    `json:"returnIdx"`
	ChallengerID string `json:"challengerId"`
	TargetID     string `json:"targetId,omitempty"`
}

// Selecting reports whether the challenger has yet to pick a target.
func (c *Challenge) Selecting() bool { return c.TargetID == "" }
