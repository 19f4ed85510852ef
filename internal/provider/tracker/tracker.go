package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/provider"
)

var _ provider.SnapshotAdapter = (*Adapter)(nil)

// Adapter captures lifetime-stat snapshots from a tracker-network style
// stats API. One adapter instance serves one game; the stat mapping picks
// which profile stats end up in the snapshot.
type Adapter struct {
	game       models.GameType
	slug       string
	baseURL    string
	apiKey     string
	statKeys   map[string]string // api stat name -> snapshot stat key
	httpClient *http.Client
}

// Stat names as the tracker API reports them, per game.
var statMappings = map[models.GameType]struct {
	slug string
	keys map[string]string
}{
	models.GamePUBG: {
		slug: "pubg",
		keys: map[string]string{
			"roundsPlayed": models.StatMatches,
			"wins":         models.StatWins,
			"kills":        models.StatKills,
			"damageDealt":  models.StatDamage,
		},
	},
	models.GameCSGO: {
		slug: "csgo",
		keys: map[string]string{
			"matchesPlayed": models.StatMatches,
			"matchesWon":    models.StatWins,
			"kills":         models.StatKills,
			"damage":        models.StatDamage,
		},
	},
	models.GameFortnite: {
		slug: "fortnite",
		keys: map[string]string{
			"matches": models.StatMatches,
			"wins":    models.StatWins,
			"kills":   models.StatKills,
			"score":   models.StatDamage,
		},
	},
	models.GameRocketLeague: {
		slug: "rocket-league",
		keys: map[string]string{
			"matchesPlayed": models.StatMatches,
			"wins":          models.StatWins,
			"goals":         models.StatGoals,
			"saves":         models.StatSaves,
			"assists":       models.StatAssists,
			"mVPs":          models.StatMVPs,
		},
	},
}

func New(game models.GameType, baseURL, apiKey string, httpClient *http.Client) (*Adapter, error) {
	mapping, ok := statMappings[game]
	if !ok {
		return nil, fmt.Errorf("no tracker stat mapping for game type %s", game)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Adapter{
		game:       game,
		slug:       mapping.slug,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		statKeys:   mapping.keys,
		httpClient: httpClient,
	}, nil
}

func (a *Adapter) GameType() models.GameType { return a.game }

type profileResponse struct {
	Data struct {
		PlatformInfo struct {
			PlatformUserId     string `json:"platformUserId"`
			PlatformUserHandle string `json:"platformUserHandle"`
		} `json:"platformInfo"`
		Segments []struct {
			Type  string `json:"type"`
			Stats map[string]struct {
				Value float64 `json:"value"`
			} `json:"stats"`
		} `json:"segments"`
	} `json:"data"`
}

func (a *Adapter) ValidateIdentity(ctx context.Context, fields models.GameFields) (*provider.Identity, error) {
	profile, err := a.fetchProfile(ctx, fields)
	if err != nil {
		return nil, err
	}
	return &provider.Identity{
		PlayerId:    profile.Data.PlatformInfo.PlatformUserId,
		DisplayName: profile.Data.PlatformInfo.PlatformUserHandle,
	}, nil
}

// CaptureSnapshot reads the lifetime overview segment. Stats the API does
// not report default to zero so diffs stay well-defined.
func (a *Adapter) CaptureSnapshot(ctx context.Context, fields models.GameFields) (*models.Snapshot, error) {
	profile, err := a.fetchProfile(ctx, fields)
	if err != nil {
		return nil, err
	}

	stats := make(map[string]int64, len(a.statKeys))
	for _, key := range a.statKeys {
		stats[key] = 0
	}
	for _, segment := range profile.Data.Segments {
		if segment.Type != "overview" {
			continue
		}
		for apiName, key := range a.statKeys {
			if stat, ok := segment.Stats[apiName]; ok {
				stats[key] = int64(stat.Value)
			}
		}
		break
	}

	return &models.Snapshot{
		PlayerId:          profile.Data.PlatformInfo.PlatformUserId,
		CapturedAtEpochMs: time.Now().UnixMilli(),
		Stats:             stats,
	}, nil
}

func (a *Adapter) fetchProfile(ctx context.Context, fields models.GameFields) (*profileResponse, error) {
	f, ok := fields.(models.TrackerFields)
	if !ok {
		return nil, fmt.Errorf("expected tracker fields, got %T", fields)
	}

	endpoint := fmt.Sprintf("%s/api/v2/%s/standard/profile/%s/%s",
		a.baseURL, a.slug, url.PathEscape(f.Platform), url.PathEscape(f.Handle))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("TRN-Api-Key", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := provider.MapStatusCode(resp); err != nil {
		return nil, err
	}
	var profile profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", provider.ErrTransient, err)
	}
	return &profile, nil
}
