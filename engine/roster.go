package engine

// RemoveResult describes the consequences of permanently removing a player.
type RemoveResult struct {
	Removed    bool
	Eliminated []string // further players eliminated because the turn moved on
	Finished   bool     // the removal ended the round
}

// RemovePlayer takes clientID off the table for good.
//
// Seat indices held by the game (the turn pointer and a challenge's return seat) keep
// pointing at the same logical players. If the removed player held the turn, it passes
// to whoever sat after them. A challenge involving the removed player is dropped and play
// resumes at its return seat. During a round the removed hand goes under the discard pile.
// Leadership passes to the earliest-seated remaining player.
func (g *Game) RemovePlayer(clientID string) RemoveResult {
	var res RemoveResult
	idx := g.PlayerIndex(clientID)
	if idx < 0 {
		return res
	}
	res.Removed = true
	playing := g.Status == StatusPlaying
	if playing {
		g.discardHandToBottom(idx)
	}

	g.Players = append(g.Players[:idx], g.Players[idx+1:]...)
	delete(g.AppliedRequests, clientID)
	if len(g.Players) == 0 {
		g.CurrentPlayerIdx = 0
		if playing {
			g.finish()
			res.Finished = true
		}
		g.Challenge = nil
		return res
	}
	if g.LeaderClientID == clientID {
		g.LeaderClientID = g.Players[0].ClientID
	}

	n := len(g.Players)
	shift := func(i int) int {
		if i > idx {
			return i - 1
		}
		return i % n
	}
	wasCurrent := g.CurrentPlayerIdx == idx
	g.CurrentPlayerIdx = shift(g.CurrentPlayerIdx)

	if !playing {
		g.Challenge = nil
		return res
	}

	if c := g.Challenge; c != nil {
		c.ReturnIdx = shift(c.ReturnIdx)
		if c.ChallengerID == clientID || c.TargetID == clientID {
			res.Eliminated = g.resolveChallenge()
			res.Finished = g.Status == StatusFinished
			return res
		}
	}

	if g.finishIfLastStanding() {
		res.Finished = true
		return res
	}
	if wasCurrent && !g.Players[g.CurrentPlayerIdx].Alive() {
		g.AdvanceToNextAlive()
	}
	res.Eliminated = g.EliminateChainIfNeeded()
	res.Finished = g.Status == StatusFinished
	return res
}
