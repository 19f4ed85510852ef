package common

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/provider"
	"wager-escrow-go/internal/provider/chess"
	"wager-escrow-go/internal/provider/riot"
	"wager-escrow-go/internal/provider/supercell"
	"wager-escrow-go/internal/provider/tracker"

	"gopkg.in/yaml.v2"
)

type GamesConfig struct {
	Games []models.GameConfig `yaml:"games"`
}

// LoadGameConfig reads games.yaml: per-game poll intervals, provider base
// URLs and the env var each API key lives in.
func LoadGameConfig(gamesFile string) ([]models.GameConfig, error) {
	var gamesPath string
	if filepath.IsAbs(gamesFile) {
		gamesPath = gamesFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		gamesPath = filepath.Join(wd, gamesFile)
	}

	data, err := os.ReadFile(gamesPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", gamesFile, err)
	}

	var config GamesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", gamesFile, err)
	}

	for i, game := range config.Games {
		if game.Game == "" {
			return nil, fmt.Errorf("game at index %d missing game type", i)
		}
		if interval, err := time.ParseDuration(game.PollInterval); err != nil || interval <= 0 {
			return nil, fmt.Errorf("game %s has invalid poll interval %q", game.Game, game.PollInterval)
		}
		if game.BaseURL == "" {
			return nil, fmt.Errorf("game %s missing base URL", game.Game)
		}
	}

	return config.Games, nil
}

// BuildRegistry constructs one provider adapter per configured game and the
// poll interval map the resolver schedules from.
func BuildRegistry(games []models.GameConfig) (*provider.Registry, map[models.GameType]time.Duration, error) {
	registry := provider.NewRegistry()
	intervals := make(map[models.GameType]time.Duration, len(games))

	for _, game := range games {
		apiKey := ""
		if game.APIKeyEnv != "" {
			apiKey = os.Getenv(game.APIKeyEnv)
		}

		var adapter provider.Adapter
		switch game.Game {
		case models.GameChess:
			adapter = chess.New(game.BaseURL, nil)
		case models.GameLOL, models.GameValorant:
			adapter = riot.New(game.Game, game.BaseURL, apiKey, nil)
		case models.GameClanWar:
			adapter = supercell.NewClash(game.BaseURL, apiKey, nil)
		case models.GameBrawlStars:
			adapter = supercell.NewBrawl(game.BaseURL, apiKey, nil)
		case models.GamePUBG, models.GameCSGO, models.GameFortnite, models.GameRocketLeague:
			trackerAdapter, err := tracker.New(game.Game, game.BaseURL, apiKey, nil)
			if err != nil {
				return nil, nil, err
			}
			adapter = trackerAdapter
		default:
			return nil, nil, fmt.Errorf("unsupported game type %s in games config", game.Game)
		}

		registry.Register(adapter)
		interval, err := time.ParseDuration(game.PollInterval)
		if err != nil {
			return nil, nil, fmt.Errorf("game %s has invalid poll interval %q", game.Game, game.PollInterval)
		}
		intervals[game.Game] = interval
	}

	return registry, intervals, nil
}
