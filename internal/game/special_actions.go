// internal/game/special_actions.go
package game

import (
	"context"

	"github.com/benpaul2002/99/engine"
	"github.com/sirupsen/logrus"
)

// kingSelectTarget lets the challenger of an open King challenge name its target.
//
// A target that can answer is given a temporary turn and the table is told with a
// kingTurn message. A target holding neither a King nor a Four is eliminated on the spot
// and the table receives an ordinary playCard update.
func (m *Manager) kingSelectTarget(ctx context.Context, clientID string, a KingSelectTarget) error {
	return m.update(ctx, a.GameID, clientID, a, func(g *engine.Game, out *outbox) error {
		res, err := g.SelectTarget(clientID, a.TargetClientID)
		if err != nil {
			return err
		}
		if res.TargetTurn {
			out.broadcast(g, MethodKingTurn)
			out.logf(logrus.Fields{"target": a.TargetClientID}, "Challenge target must answer")
			return nil
		}
		out.broadcast(g, MethodPlayCard)
		out.logf(logrus.Fields{"target": a.TargetClientID, "eliminated": res.Eliminated}, "Challenge target could not answer")
		return nil
	})
}
