package engine

// discardHandToBottom moves the player's hand under the discard pile, keeping its order,
// so the visible top card does not change.
func (g *Game) discardHandToBottom(idx int) {
	p := g.Players[idx]
	if len(p.Hand) == 0 {
		return
	}
	pile := make([]Card, 0, len(p.Hand)+len(g.DiscardPile))
	pile = append(pile, p.Hand...)
	pile = append(pile, g.DiscardPile...)
	g.DiscardPile = pile
	p.Hand = []Card{}
}

// eliminate discards the player's hand and marks them dead. Returns their client id.
func (g *Game) eliminate(idx int) string {
	g.discardHandToBottom(idx)
	g.Players[idx].Status = PlayerDead
	return g.Players[idx].ClientID
}

// finish ends the round. Any pending challenge is dropped.
func (g *Game) finish() {
	g.Status = StatusFinished
	g.Challenge = nil
}

// finishIfLastStanding ends the round when at most one player is alive.
func (g *Game) finishIfLastStanding() bool {
	if g.AliveCount() <= 1 {
		g.finish()
		return true
	}
	return false
}

// declareWinner ends the round with the player at idx as the only survivor.
func (g *Game) declareWinner(idx int) {
	for i, p := range g.Players {
		if i != idx {
			p.Status = PlayerDead
		}
	}
	g.finish()
}
