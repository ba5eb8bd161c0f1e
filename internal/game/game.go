// internal/game/game.go
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benpaul2002/99/engine"
	"github.com/benpaul2002/99/internal/cache"
	"github.com/benpaul2002/99/internal/database"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultGrace is how long a disconnected player keeps their seat.
const DefaultGrace = 5 * time.Minute

// maxSaveAttempts bounds how often an action is re-run after losing a save race.
const maxSaveAttempts = 5

// Notifier delivers outbound messages. Messages for clients without a live connection
// are dropped.
type Notifier interface {
	SendToClient(clientID string, msg Message)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(clientID string, msg Message)

func (f NotifierFunc) SendToClient(clientID string, msg Message) { f(clientID, msg) }

// RoundRecorder stores finished rounds.
type RoundRecorder interface {
	RecordRound(ctx context.Context, rec database.RoundRecord) error
}

// Config wires a Manager. Store, Notifier and Logger are required.
type Config struct {
	Store    cache.Store
	Notifier Notifier
	Logger   logrus.FieldLogger

	Shuffler engine.Shuffler       // must be safe for concurrent use; defaults to engine.DefaultShuffler
	Grace    time.Duration         // defaults to DefaultGrace
	Recorder RoundRecorder         // optional
	Actions  cache.ActionPublisher // optional
	NewID    func() string         // defaults to uuid.NewString
	Now      func() time.Time      // defaults to time.Now
}

// Manager runs the game service. Actions on the same game id are serialised within the
// process; across processes the store's versioned saves detect races and the losing
// action is re-run against fresh state.
type Manager struct {
	store    cache.Store
	notify   Notifier
	log      logrus.FieldLogger
	shuffler engine.Shuffler
	grace    time.Duration
	recorder RoundRecorder
	actions  cache.ActionPublisher
	newID    func() string
	now      func() time.Time

	locks *keyedMutex
	wg    sync.WaitGroup // best-effort background writes
}

// NewManager returns a Manager for cfg.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		store:    cfg.Store,
		notify:   cfg.Notifier,
		log:      cfg.Logger,
		shuffler: cfg.Shuffler,
		grace:    cfg.Grace,
		recorder: cfg.Recorder,
		actions:  cfg.Actions,
		newID:    cfg.NewID,
		now:      cfg.Now,
		locks:    newKeyedMutex(),
	}
	if m.shuffler == nil {
		m.shuffler = engine.DefaultShuffler
	}
	if m.grace <= 0 {
		m.grace = DefaultGrace
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Close waits for pending background writes.
func (m *Manager) Close() {
	m.wg.Wait()
}

// Handle processes one action from clientID. Refusals are answered to the client and
// are not returned; the returned error reports store failures only.
func (m *Manager) Handle(ctx context.Context, clientID string, act Action) error {
	if act == nil {
		return fmt.Errorf("%w: nil action", ErrMalformed)
	}
	var err error
	switch a := act.(type) {
	case CreateGame:
		err = m.createGame(ctx, clientID, a)
	case JoinGame:
		err = m.joinGame(ctx, clientID, a)
	case GetGame:
		err = m.getGame(ctx, clientID, a)
	case StartGame:
		err = m.startGame(ctx, clientID, a)
	case PlayCard:
		err = m.playCard(ctx, clientID, a)
	case KingSelectTarget:
		err = m.kingSelectTarget(ctx, clientID, a)
	case RestartGame:
		err = m.restartGame(ctx, clientID, a)
	default:
		err = fmt.Errorf("%w: %T", ErrMalformed, act)
	}
	if err == nil {
		return nil
	}

	log := m.log.WithFields(logrus.Fields{"game": act.Game(), "client": clientID, "method": act.Method()})
	if IsRefusal(err) {
		log.WithError(err).Warn("Action refused")
		m.Refuse(clientID, act.Method(), act.Game(), act.Request(), err)
		return nil
	}
	log.WithError(err).Error("Action failed")
	return err
}

// Refuse tells clientID that an action was rejected.
func (m *Manager) Refuse(clientID string, method Method, gameID, requestID string, err error) {
	m.notify.SendToClient(clientID, Message{
		Method:    MethodRefused,
		GameID:    gameID,
		Action:    method,
		Reason:    err.Error(),
		RequestID: requestID,
	})
}

func (m *Manager) createGame(ctx context.Context, clientID string, a CreateGame) error {
	g := engine.NewGame(m.newID(), clientID, a.Name)
	if err := m.store.Save(ctx, g); err != nil {
		return fmt.Errorf("create game: %w", err)
	}
	m.log.WithFields(logrus.Fields{"game": g.ID, "client": clientID}).Info("Game created")
	m.notify.SendToClient(clientID, Message{Method: MethodCreateGame, GameID: g.ID, Game: Project(g, clientID)})
	m.publish(g, clientID, string(MethodCreateGame), a)
	return nil
}

func (m *Manager) joinGame(ctx context.Context, clientID string, a JoinGame) error {
	return m.update(ctx, a.GameID, clientID, a, func(g *engine.Game, out *outbox) error {
		rejoined, err := g.Join(clientID, a.Name)
		switch {
		case errors.Is(err, engine.ErrInProgress):
			out.send(clientID, denied(g.ID, ReasonInProgress))
			return errUnchanged
		case errors.Is(err, engine.ErrFinished):
			out.send(clientID, denied(g.ID, ReasonFinished))
			return errUnchanged
		case errors.Is(err, engine.ErrGameFull):
			out.send(clientID, denied(g.ID, ReasonFull))
			return errUnchanged
		case err != nil:
			return err
		}

		out.broadcast(g, MethodJoinGame)
		if rejoined {
			if err := m.store.ClearAbsence(ctx, g.ID, clientID); err != nil {
				return err
			}
			m.log.WithFields(logrus.Fields{"game": g.ID, "client": clientID}).Info("Player reconnected")
			return errUnchanged
		}
		return nil
	})
}

func (m *Manager) getGame(ctx context.Context, clientID string, a GetGame) error {
	err := m.update(ctx, a.GameID, clientID, a, func(g *engine.Game, out *outbox) error {
		out.send(clientID, Message{Method: MethodGetGame, GameID: g.ID, Game: viewFor(g, clientID)})
		return errUnchanged
	})
	if errors.Is(err, ErrGameNotFound) {
		m.notify.SendToClient(clientID, Message{Method: MethodGetGame, GameID: a.GameID, Game: noGame})
		return nil
	}
	return err
}

func (m *Manager) startGame(ctx context.Context, clientID string, a StartGame) error {
	return m.update(ctx, a.GameID, clientID, a, func(g *engine.Game, out *outbox) error {
		if err := g.Start(clientID, m.shuffler); err != nil {
			return err
		}
		out.broadcast(g, MethodStartGame)
		return nil
	})
}

func (m *Manager) playCard(ctx context.Context, clientID string, a PlayCard) error {
	return m.update(ctx, a.GameID, clientID, a, func(g *engine.Game, out *outbox) error {
		res, err := g.ApplyPlay(clientID, a.CardID, a.Options(), m.shuffler)
		if err != nil {
			return err
		}
		for _, p := range g.Players {
			msg := Message{Method: MethodPlayCard, GameID: g.ID, Game: Project(g, p.ClientID)}
			if res.ChallengeOpened && p.ClientID == clientID {
				msg.KingPlayed = true
			}
			out.send(p.ClientID, msg)
		}
		out.logf(logrus.Fields{"card": a.CardID, "delta": res.Delta, "score": g.Score, "eliminated": res.Eliminated}, "Card played")
		return nil
	})
}

func (m *Manager) restartGame(ctx context.Context, clientID string, a RestartGame) error {
	return m.update(ctx, a.GameID, clientID, a, func(g *engine.Game, out *outbox) error {
		started, err := g.Restart(clientID, m.shuffler)
		if err != nil {
			return err
		}
		if started {
			out.broadcast(g, MethodStartGame)
		} else {
			out.broadcast(g, MethodGetGame)
		}
		return nil
	})
}

func denied(gameID, reason string) Message {
	return Message{Method: MethodJoinDenied, GameID: gameID, Reason: reason}
}

// errUnchanged tells update to deliver the queued messages without saving.
var errUnchanged = errors.New("game unchanged")

// mutation changes g in place and queues the messages describing the change.
// It may run more than once for a single action, each time on freshly loaded state.
type mutation func(g *engine.Game, out *outbox) error

// update runs fn against the current state of gameID and saves the result. Expired
// absences are reaped first. Messages queued by fn are delivered only once the state
// they describe has been saved.
func (m *Manager) update(ctx context.Context, gameID, actorID string, act Action, fn mutation) error {
	unlock := m.locks.Lock(gameID)
	defer unlock()

	log := m.log.WithFields(logrus.Fields{"game": gameID, "client": actorID})
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		g, err := m.loadReaped(ctx, gameID)
		if errors.Is(err, cache.ErrConflict) {
			log.WithField("attempt", attempt).Debug("Reap lost a save race, retrying")
			continue
		}
		if err != nil {
			return err
		}

		if g.AlreadyApplied(actorID, act.Request()) {
			m.notify.SendToClient(actorID, Message{Method: act.Method(), GameID: g.ID, Game: viewFor(g, actorID)})
			log.WithField("request", act.Request()).Debug("Duplicate request ignored")
			return nil
		}

		wasPlaying := g.Status == engine.StatusPlaying
		out := &outbox{}
		err = fn(g, out)
		if errors.Is(err, errUnchanged) {
			m.deliver(out, log)
			return nil
		}
		if err != nil {
			return err
		}

		g.MarkRequest(actorID, act.Request())
		if err := m.store.Save(ctx, g); err != nil {
			if errors.Is(err, cache.ErrConflict) {
				log.WithField("attempt", attempt).Debug("Save lost a race, retrying")
				continue
			}
			return fmt.Errorf("save game %s: %w", gameID, err)
		}
		m.deliver(out, log)
		m.afterSave(g, actorID, string(act.Method()), act, wasPlaying)
		return nil
	}
	return fmt.Errorf("update game %s: %w after %d attempts", gameID, cache.ErrConflict, maxSaveAttempts)
}

// load fetches gameID, mapping a missing game to ErrGameNotFound.
func (m *Manager) load(ctx context.Context, gameID string) (*engine.Game, error) {
	g, err := m.store.Load(ctx, gameID)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	return g, err
}

// afterSave runs the best-effort side effects of a saved transition.
func (m *Manager) afterSave(g *engine.Game, actorID, actionType string, payload any, wasPlaying bool) {
	m.publish(g, actorID, actionType, payload)
	if wasPlaying && g.Status == engine.StatusFinished {
		m.roundFinished(g)
	}
}

// publish sends an action record to the action log, asynchronously.
func (m *Manager) publish(g *engine.Game, actorID, actionType string, payload any) {
	if m.actions == nil {
		return
	}
	rec := cache.ActionRecord{
		GameID:     g.ID,
		Version:    g.Version,
		ActorID:    actorID,
		ActionType: actionType,
		Payload:    payload,
		Timestamp:  m.now().UnixMilli(),
	}
	m.background(func(ctx context.Context) {
		if err := m.actions.PublishAction(ctx, rec); err != nil {
			m.log.WithFields(logrus.Fields{"game": rec.GameID, "version": rec.Version}).WithError(err).Error("Failed publishing action")
		}
	})
}

// roundFinished logs the result and records it in the round history.
func (m *Manager) roundFinished(g *engine.Game) {
	rec := database.RoundRecord{
		GameID:     g.ID,
		Winner:     g.Winner(),
		Score:      g.Score,
		FinishedAt: m.now(),
	}
	for _, p := range g.Players {
		rec.Players = append(rec.Players, p.ClientID)
	}
	m.log.WithFields(logrus.Fields{"game": g.ID, "winner": rec.Winner, "score": rec.Score}).Info("Round finished")
	if m.recorder == nil {
		return
	}
	m.background(func(ctx context.Context) {
		if err := m.recorder.RecordRound(ctx, rec); err != nil {
			m.log.WithField("game", rec.GameID).WithError(err).Error("Failed recording round")
		}
	})
}

// background runs fn on its own goroutine with a short timeout.
func (m *Manager) background(fn func(ctx context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		fn(ctx)
	}()
}

// delivery is one queued outbound message.
type delivery struct {
	clientID string
	msg      Message
}

// outbox collects the effects of a mutation until its state is saved.
type outbox struct {
	deliveries []delivery
	logs       []logEntry
}

type logEntry struct {
	fields logrus.Fields
	msg    string
}

func (o *outbox) send(clientID string, msg Message) {
	o.deliveries = append(o.deliveries, delivery{clientID: clientID, msg: msg})
}

// broadcast queues one independently redacted projection per seated player.
func (o *outbox) broadcast(g *engine.Game, method Method) {
	for _, p := range g.Players {
		o.send(p.ClientID, Message{Method: method, GameID: g.ID, Game: Project(g, p.ClientID)})
	}
}

// logf queues an info line, emitted only if the mutation is saved.
func (o *outbox) logf(fields logrus.Fields, msg string) {
	o.logs = append(o.logs, logEntry{fields: fields, msg: msg})
}

func (m *Manager) deliver(out *outbox, log logrus.FieldLogger) {
	for _, e := range out.logs {
		log.WithFields(e.fields).Info(e.msg)
	}
	for _, d := range out.deliveries {
		m.notify.SendToClient(d.clientID, d.msg)
	}
}
