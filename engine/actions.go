package engine

import "fmt"

// PlayResult describes what an accepted play did.
type PlayResult struct {
	Card              Card     // the card played; zero when the player was eliminated instead
	Delta             int      // score change applied
	Eliminated        []string // client ids eliminated by this play, in order
	Won               bool     // the play brought the score to exactly TargetScore
	ChallengeOpened   bool     // a King started a challenge; the player must now pick a target
	ChallengeResolved bool     // the play answered (or forfeited) a challenge
	Finished          bool     // the round is over
}

// ApplyPlay plays cardID from actorID's hand.
//
// A play that would push the score past TargetScore is refused while the player still has
// a legal alternative; without one the player is eliminated and the play is accepted.
// A play reaching exactly TargetScore wins outright. A King opens a challenge instead of
// passing the turn. While actorID is the target of a challenge only a King or a Four may
// be played, and a Four scores zero.
func (g *Game) ApplyPlay(actorID, cardID string, opts PlayOptions, sh Shuffler) (PlayResult, error) {
	var res PlayResult
	if g.Status != StatusPlaying {
		return res, ErrNotPlaying
	}
	idx := g.PlayerIndex(actorID)
	if idx < 0 {
		return res, ErrUnknownPlayer
	}
	if idx != g.CurrentPlayerIdx || !g.Players[idx].Alive() {
		return res, ErrNotYourTurn
	}
	if g.Challenge != nil && g.Challenge.Selecting() {
		return res, ErrTargetPending
	}
	p := g.Players[idx]
	responding := g.Challenge != nil && g.Challenge.TargetID == actorID

	if responding && !p.holds(RankKing, RankFour) {
		res.Eliminated = append(res.Eliminated, g.eliminate(idx))
		res.Eliminated = append(res.Eliminated, g.resolveChallenge()...)
		res.ChallengeResolved = true
		res.Finished = g.Status == StatusFinished
		return res, nil
	}

	ci := p.handIndex(cardID)
	if ci < 0 {
		return res, fmt.Errorf("%w: %s", ErrCardNotInHand, cardID)
	}
	card := p.Hand[ci]
	if responding && card.Rank != RankKing && card.Rank != RankFour {
		return res, fmt.Errorf("%w: got %s", ErrForcedResponse, card.Rank)
	}

	delta := ResolveDelta(card.Rank, opts, ContextFlags{ForcedZero: responding && card.Rank == RankFour})
	next := g.Score + delta
	if next > TargetScore {
		if g.HasLegalMove(idx) {
			return res, fmt.Errorf("%w: %d%+d exceeds %d", ErrIllegalPlay, g.Score, delta, TargetScore)
		}
		res.Eliminated = append(res.Eliminated, g.eliminate(idx))
		if !g.finishIfLastStanding() {
			g.AdvanceToNextAlive()
			res.Eliminated = append(res.Eliminated, g.EliminateChainIfNeeded()...)
		}
		res.Finished = g.Status == StatusFinished
		return res, nil
	}
	if next < 0 {
		return res, fmt.Errorf("%w: %d%+d drops below zero", ErrIllegalPlay, g.Score, delta)
	}

	g.Score = next
	p.Hand = append(p.Hand[:ci], p.Hand[ci+1:]...)
	g.DiscardPile = append(g.DiscardPile, card)
	res.Card = card
	res.Delta = delta

	if g.Score == TargetScore {
		g.declareWinner(idx)
		res.Won = true
		res.Finished = true
		return res, nil
	}

	g.replenish(p, sh)

	switch {
	case responding:
		if card.Rank == RankKing {
			if ch := g.PlayerIndex(g.Challenge.ChallengerID); ch >= 0 && g.Players[ch].Alive() {
				res.Eliminated = append(res.Eliminated, g.eliminate(ch))
			}
		}
		res.Eliminated = append(res.Eliminated, g.resolveChallenge()...)
		res.ChallengeResolved = true
	case card.Rank == RankKing:
		g.openChallenge(idx)
		res.ChallengeOpened = true
	default:
		g.AdvanceToNextAlive()
		res.Eliminated = append(res.Eliminated, g.EliminateChainIfNeeded()...)
	}
	res.Finished = g.Status == StatusFinished
	return res, nil
}

// replenish recycles the discard pile when the draw pile is empty, then draws one card
// for p if any remain. The top discard card stays in place.
func (g *Game) replenish(p *Player, sh Shuffler) {
	if len(g.DrawPile) == 0 && len(g.DiscardPile) > 1 {
		top := g.DiscardPile[len(g.DiscardPile)-1]
		rest := make([]Card, len(g.DiscardPile)-1)
		copy(rest, g.DiscardPile[:len(g.DiscardPile)-1])
		sh.Shuffle(rest)
		g.DrawPile = rest
		g.DiscardPile = []Card{top}
	}
	if n := len(g.DrawPile); n > 0 {
		p.Hand = append(p.Hand, g.DrawPile[n-1])
		g.DrawPile = g.DrawPile[:n-1]
	}
}
