package engine

import "math/rand/v2"

// NewDeck builds the 52-card deck: one card per rank and suit, no jokers.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, suit := range Suits {
		for _, rank := range Ranks {
			deck = append(deck, NewCard(rank, suit))
		}
	}
	return deck
}

// Shuffler permutes cards in place.
type Shuffler interface {
	Shuffle(cards []Card)
}

// fisherYates draws swap positions from intN, which must return a uniform value in [0, n).
type fisherYates struct {
	intN func(n int) int
}

// Shuffle performs an unbiased Fisher-Yates shuffle.
func (s fisherYates) Shuffle(cards []Card) {
	for i := len(cards) - 1; i > 0; i-- {
		j := s.intN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// DefaultShuffler uses the runtime's random source and is safe for concurrent use.
var DefaultShuffler Shuffler = fisherYates{intN: rand.IntN}

// NewSeededShuffler returns a deterministic shuffler for tests and replays.
// It is not safe for concurrent use.
func NewSeededShuffler(seed uint64) Shuffler {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return fisherYates{intN: r.IntN}
}
