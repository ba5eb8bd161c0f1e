package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benpaul2002/99/engine"
	"github.com/benpaul2002/99/internal/cache"
	"github.com/sirupsen/logrus"
)

// Disconnect starts the grace window for clientID in every game it is seated in.
// Reconnecting with a joinGame before the window elapses keeps the seat and hand.
func (m *Manager) Disconnect(ctx context.Context, clientID string) error {
	ids, err := m.store.GamesForPlayer(ctx, clientID)
	if err != nil {
		return fmt.Errorf("games of %s: %w", clientID, err)
	}
	var errs []error
	for _, id := range ids {
		if err := m.store.MarkAbsent(ctx, id, clientID, m.grace); err != nil {
			errs = append(errs, err)
			continue
		}
		m.log.WithFields(logrus.Fields{"game": id, "client": clientID, "grace": m.grace}).Info("Player marked absent")
	}
	return errors.Join(errs...)
}

// Sweep reaps expired absences in every game that has any, so a table waiting on a
// departed player moves on without another action arriving.
func (m *Manager) Sweep(ctx context.Context) error {
	ids, err := m.store.AbsentGames(ctx)
	if err != nil {
		return fmt.Errorf("list absent games: %w", err)
	}
	var errs []error
	for _, id := range ids {
		if err := m.sweepGame(ctx, id); err != nil {
			m.log.WithField("game", id).WithError(err).Error("Sweep failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.log.WithField("interval", interval).Info("Absence sweeper started")
	for {
		select {
		case <-ctx.Done():
			m.log.Info("Absence sweeper stopped")
			return nil
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
				m.log.WithError(err).Error("Absence sweep failed")
			}
		}
	}
}

func (m *Manager) sweepGame(ctx context.Context, gameID string) error {
	unlock := m.locks.Lock(gameID)
	defer unlock()

	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		_, err := m.loadReaped(ctx, gameID)
		switch {
		case errors.Is(err, ErrGameNotFound):
			// Absence bookkeeping outlived its game.
			return m.store.Delete(ctx, gameID)
		case errors.Is(err, cache.ErrConflict):
			continue
		default:
			return err
		}
	}
	return fmt.Errorf("sweep game %s: too many save conflicts", gameID)
}

// loadReaped loads gameID and removes every player whose grace window has elapsed.
// A changed roster is saved, and broadcast, before the game is returned; an emptied
// roster deletes the game. The caller holds the game's lock.
func (m *Manager) loadReaped(ctx context.Context, gameID string) (*engine.Game, error) {
	g, err := m.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	expired, err := m.store.ExpiredAbsences(ctx, gameID)
	if err != nil || len(expired) == 0 {
		return g, err
	}

	log := m.log.WithField("game", gameID)
	wasPlaying := g.Status == engine.StatusPlaying
	var removed []string
	for _, cid := range expired {
		res := g.RemovePlayer(cid)
		if !res.Removed {
			continue
		}
		removed = append(removed, cid)
		log.WithFields(logrus.Fields{"client": cid, "eliminated": res.Eliminated}).Info("Absent player removed")
	}

	if len(removed) > 0 {
		if len(g.Players) == 0 {
			if err := m.store.Delete(ctx, gameID); err != nil {
				return nil, err
			}
			log.Info("Game deleted, no players left")
			return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
		}
		if err := m.store.Save(ctx, g); err != nil {
			return nil, err
		}
	}
	for _, cid := range expired {
		if err := m.store.ForgetAbsence(ctx, gameID, cid); err != nil {
			return nil, err
		}
	}
	if len(removed) > 0 {
		out := &outbox{}
		out.broadcast(g, MethodGetGame)
		m.deliver(out, log)
		m.afterSave(g, "", "reap", removed, wasPlaying)
	}
	return g, nil
}
