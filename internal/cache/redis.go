package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benpaul2002/99/engine"
	"github.com/redis/go-redis/v9"
)

const absentGamesKey = "absent-games"

func gameKey(gameID string) string             { return "game:" + gameID }
func absentSetKey(gameID string) string        { return "dc:" + gameID }
func absentKey(gameID, clientID string) string { return "absent:" + gameID + ":" + clientID }
func playerKey(clientID string) string         { return "player:" + clientID + ":games" }
func actionsChannel(gameID string) string      { return "game:" + gameID + ":actions" }

// Redis is a Store backed by a Redis server.
type Redis struct {
	rdb *redis.Client
}

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// ConnectRedis parses url, dials the server and checks it answers.
func ConnectRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) Load(ctx context.Context, gameID string) (*engine.Game, error) {
	data, err := r.rdb.Get(ctx, gameKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", gameID, err)
	}
	return decodeGame(data)
}

func (r *Redis) Save(ctx context.Context, g *engine.Game) error {
	key := gameKey(g.ID)
	next := *g
	next.Version = g.Version + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode game %s: %w", g.ID, err)
	}

	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		var stored *engine.Game
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if g.Version != 0 {
				return ErrConflict
			}
		case err != nil:
			return err
		default:
			if stored, err = decodeGame(raw); err != nil {
				return err
			}
			if stored.Version != g.Version {
				return ErrConflict
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			for _, p := range g.Players {
				pipe.SAdd(ctx, playerKey(p.ClientID), g.ID)
			}
			for _, id := range departed(stored, g) {
				pipe.SRem(ctx, playerKey(id), g.ID)
			}
			return nil
		})
		return err
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, ErrConflict):
		return ErrConflict
	case err != nil:
		return fmt.Errorf("save game %s: %w", g.ID, err)
	}
	g.Version = next.Version
	return nil
}

func (r *Redis) Delete(ctx context.Context, gameID string) error {
	g, err := r.Load(ctx, gameID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	absent, err := r.rdb.SMembers(ctx, absentSetKey(gameID)).Result()
	if err != nil {
		return fmt.Errorf("list absences of %s: %w", gameID, err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, gameKey(gameID), absentSetKey(gameID))
		pipe.SRem(ctx, absentGamesKey, gameID)
		for _, cid := range absent {
			pipe.Del(ctx, absentKey(gameID, cid))
		}
		if g != nil {
			for _, p := range g.Players {
				pipe.SRem(ctx, playerKey(p.ClientID), gameID)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete game %s: %w", gameID, err)
	}
	return nil
}

func (r *Redis) GamesForPlayer(ctx context.Context, clientID string) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, playerKey(clientID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list games of %s: %w", clientID, err)
	}
	return ids, nil
}

func (r *Redis) MarkAbsent(ctx context.Context, gameID, clientID string, grace time.Duration) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, absentKey(gameID, clientID), "1", grace)
		pipe.SAdd(ctx, absentSetKey(gameID), clientID)
		pipe.SAdd(ctx, absentGamesKey, gameID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark %s absent from %s: %w", clientID, gameID, err)
	}
	return nil
}

func (r *Redis) ClearAbsence(ctx context.Context, gameID, clientID string) error {
	if err := r.rdb.Del(ctx, absentKey(gameID, clientID)).Err(); err != nil {
		return fmt.Errorf("clear absence of %s in %s: %w", clientID, gameID, err)
	}
	return r.ForgetAbsence(ctx, gameID, clientID)
}

func (r *Redis) ExpiredAbsences(ctx context.Context, gameID string) ([]string, error) {
	absent, err := r.rdb.SMembers(ctx, absentSetKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list absences of %s: %w", gameID, err)
	}
	if len(absent) == 0 {
		return nil, nil
	}

	cmds, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, cid := range absent {
			pipe.Exists(ctx, absentKey(gameID, cid))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check absences of %s: %w", gameID, err)
	}
	var expired []string
	for i, cmd := range cmds {
		if cmd.(*redis.IntCmd).Val() == 0 {
			expired = append(expired, absent[i])
		}
	}
	return expired, nil
}

func (r *Redis) ForgetAbsence(ctx context.Context, gameID, clientID string) error {
	setKey := absentSetKey(gameID)
	if err := r.rdb.SRem(ctx, setKey, clientID).Err(); err != nil {
		return fmt.Errorf("forget absence of %s in %s: %w", clientID, gameID, err)
	}
	n, err := r.rdb.SCard(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("count absences of %s: %w", gameID, err)
	}
	if n == 0 {
		return r.rdb.SRem(ctx, absentGamesKey, gameID).Err()
	}
	return nil
}

func (r *Redis) AbsentGames(ctx context.Context) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, absentGamesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list absent games: %w", err)
	}
	return ids, nil
}

// PublishAction publishes rec on the game's action channel.
func (r *Redis) PublishAction(ctx context.Context, rec ActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, actionsChannel(rec.GameID), data).Err()
}

// SubscribeActions subscribes to the action channel of gameID.
func (r *Redis) SubscribeActions(ctx context.Context, gameID string) *redis.PubSub {
	return r.rdb.Subscribe(ctx, actionsChannel(gameID))
}

func decodeGame(data []byte) (*engine.Game, error) {
	var g engine.Game
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	return &g, nil
}
