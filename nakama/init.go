package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/minaorangina/gamehost/engine"
	"github.com/minaorangina/gamehost/games"
)

const rpcCreateMatch = "gamehost_create_match"

// CreateMatchReq is the payload of the create match RPC
type CreateMatchReq struct {
	Game      string            `json:"game"`
	Seats     int               `json:"seats"`
	Computers int               `json:"computers"`
	Values    map[string]string `json:"values"`
}

type CreateMatchRes struct {
	MatchID string `json:"match_id"`
}

// InitModule registers every built-in game as an authoritative match
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	return Register(logger, initializer, games.Default())
}

// Register registers the games in registry with initializer
func Register(logger runtime.Logger, initializer runtime.Initializer, registry *games.Registry) error {
	for _, name := range registry.Names() {
		game, err := registry.Find(name)
		if err != nil {
			return err
		}
		if err := initializer.RegisterMatch(name, newMatchFactory(game)); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}

	if err := initializer.RegisterRpc(rpcCreateMatch, createMatchRPC(registry)); err != nil {
		return err
	}

	logger.Info("gamehost module loaded with games %v", registry.Names())
	return nil
}

func newMatchFactory(game engine.Game) func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule) (runtime.Match, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
		return &matchHandler{game: game, hookOnTimeout: true}, nil
	}
}

func createMatchRPC(registry *games.Registry) func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		var req CreateMatchReq
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return "", runtime.NewError("could not parse payload", 3)
		}
		if _, err := registry.Find(req.Game); err != nil {
			return "", runtime.NewError(err.Error(), 5)
		}

		params := map[string]interface{}{
			"seats":     req.Seats,
			"computers": req.Computers,
		}
		for k, v := range req.Values {
			params["opt_"+k] = v
		}

		id, err := nk.MatchCreate(ctx, req.Game, params)
		if err != nil {
			logger.Error("could not create %s match: %v", req.Game, err)
			return "", runtime.NewError("could not create match", 13)
		}

		data, err := json.Marshal(CreateMatchRes{MatchID: id})
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
