package engine

// HasLegalMove reports whether the player at idx holds a card whose minimal delta keeps
// the score at or below TargetScore.
func (g *Game) HasLegalMove(idx int) bool {
	if idx < 0 || idx >= len(g.Players) {
		return false
	}
	for _, c := range g.Players[idx].Hand {
		if g.Score+MinimalDelta(c.Rank) <= TargetScore {
			return true
		}
	}
	return false
}

// LegalCards lists the cards the player at idx may play right now. While answering a
// challenge only Kings and Fours qualify.
func (g *Game) LegalCards(idx int) []Card {
	if idx < 0 || idx >= len(g.Players) {
		return nil
	}
	p := g.Players[idx]
	responding := g.Challenge != nil && g.Challenge.TargetID == p.ClientID
	var out []Card
	for _, c := range p.Hand {
		if responding {
			if c.Rank == RankKing || c.Rank == RankFour {
				out = append(out, c)
			}
			continue
		}
		if g.Score+MinimalDelta(c.Rank) <= TargetScore {
			out = append(out, c)
		}
	}
	return out
}

// AdvanceToNextAlive moves the turn to the next living player after the current seat,
// wrapping around. It scans each seat at most once and returns false when nobody else
// is alive, leaving the turn unchanged.
func (g *Game) AdvanceToNextAlive() bool {
	n := len(g.Players)
	for step := 1; step <= n; step++ {
		i := (g.CurrentPlayerIdx + step) % n
		if g.Players[i].Alive() {
			g.CurrentPlayerIdx = i
			return true
		}
	}
	return false
}

// EliminateChainIfNeeded eliminates the current player while they have no legal move,
// passing the turn on after each elimination, and finishes the round once one player or
// fewer is left. It returns the eliminated client ids in order.
//
// Each pass either returns, eliminates a living player, or moves the turn onto a living
// player, so the loop ends after at most two passes per living player.
func (g *Game) EliminateChainIfNeeded() []string {
	var eliminated []string
	for g.Status == StatusPlaying && g.Challenge == nil {
		cur := g.Current()
		if cur == nil {
			g.finish()
			break
		}
		if cur.Alive() {
			if g.HasLegalMove(g.CurrentPlayerIdx) {
				break
			}
			eliminated = append(eliminated, g.eliminate(g.CurrentPlayerIdx))
		}
		if g.finishIfLastStanding() {
			break
		}
		if !g.AdvanceToNextAlive() {
			g.finish()
		}
	}
	return eliminated
}
