package engine

import "fmt"

// TargetResult describes the outcome of choosing a challenge target.
type TargetResult struct {
	TargetTurn bool     // the target now holds a temporary turn and must answer
	Eliminated []string // client ids eliminated, target first
	Finished   bool
}

// openChallenge keeps the turn on the challenger and remembers who plays next.
func (g *Game) openChallenge(challengerIdx int) {
	g.CurrentPlayerIdx = challengerIdx
	g.Challenge = &Challenge{
		ReturnIdx:    (challengerIdx + 1) % len(g.Players),
		ChallengerID: g.Players[challengerIdx].ClientID,
	}
}

// SelectTarget names the opponent who must answer challengerID's King.
//
// A target holding neither a King nor a Four is eliminated on the spot and play resumes
// at the seat after the challenger. Otherwise the target is given a temporary turn.
func (g *Game) SelectTarget(challengerID, targetID string) (TargetResult, error) {
	var res TargetResult
	if g.Status != StatusPlaying {
		return res, ErrNotPlaying
	}
	if g.Challenge == nil || !g.Challenge.Selecting() {
		return res, ErrNoChallenge
	}
	if g.Challenge.ChallengerID != challengerID {
		return res, ErrNotChallenger
	}
	ti := g.PlayerIndex(targetID)
	if ti < 0 || !g.Players[ti].Alive() || targetID == challengerID {
		return res, fmt.Errorf("%w: %q", ErrInvalidTarget, targetID)
	}

	if !g.Players[ti].holds(RankKing, RankFour) {
		res.Eliminated = append(res.Eliminated, g.eliminate(ti))
		res.Eliminated = append(res.Eliminated, g.resolveChallenge()...)
		res.Finished = g.Status == StatusFinished
		return res, nil
	}

	g.Challenge.TargetID = targetID
	g.CurrentPlayerIdx = ti
	res.TargetTurn = true
	return res, nil
}

// resolveChallenge clears the challenge and returns the turn to the stored seat,
// skipping dead players, then runs the elimination chain.
func (g *Game) resolveChallenge() []string {
	ret := g.Challenge.ReturnIdx
	g.Challenge = nil
	if g.finishIfLastStanding() {
		return nil
	}
	g.CurrentPlayerIdx = ret
	if !g.Players[ret].Alive() {
		g.AdvanceToNextAlive()
	}
	return g.EliminateChainIfNeeded()
}
