package riot

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

	"go.uber.org/zap"
)

// Compile-time check: the adapter resolves head-to-head.
var _ provider.HeadToHeadAdapter = (*Adapter)(nil)

// Adapter resolves LOL and VALORANT wagers against the Riot API: account-v1
// for identity validation, match-v5-shaped match history for head-to-head
// lookup. The same adapter serves both games with a different base URL.
type Adapter struct {
	game       models.GameType
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(game models.GameType, baseURL, apiKey string, httpClient *http.Client) *Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Adapter{
		game:       game,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

func (a *Adapter) GameType() models.GameType { return a.game }

type riotAccount struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

func (a *Adapter) ValidateIdentity(ctx context.Context, fields models.GameFields) (*provider.Identity, error) {
	f, ok := fields.(models.RiotFields)
	if !ok {
		return nil, fmt.Errorf("expected riot fields, got %T", fields)
	}

	var account riotAccount
	endpoint := fmt.Sprintf("%s/riot/account/v1/accounts/by-riot-id/%s/%s",
		a.baseURL, url.PathEscape(f.GameName), url.PathEscape(f.TagLine))
	if err := a.getJSON(ctx, endpoint, &account); err != nil {
		return nil, err
	}

	return &provider.Identity{
		PlayerId:    account.PUUID,
		DisplayName: account.GameName + "#" + account.TagLine,
	}, nil
}

type matchDetail struct {
	Metadata struct {
		MatchId string `json:"matchId"`
	} `json:"metadata"`
	Info struct {
		GameEndTimestamp int64 `json:"gameEndTimestamp"` // epoch ms
		Participants     []struct {
			PUUID  string `json:"puuid"`
			TeamId int    `json:"teamId"`
			Win    bool   `json:"win"`
		} `json:"participants"`
	} `json:"info"`
}

// FindHeadToHead looks through the creator's recent matches for one
// containing both puuids. Both on the same team is reported as SameTeam;
// the winner rule turns that into a draw.
func (a *Adapter) FindHeadToHead(ctx context.Context, creator, joiner models.GameFields, sinceEpochMs int64) (*provider.HeadToHeadRecord, error) {
	creatorId, err := a.ValidateIdentity(ctx, creator)
	if err != nil {
		return nil, err
	}
	joinerId, err := a.ValidateIdentity(ctx, joiner)
	if err != nil {
		return nil, err
	}

	var matchIds []string
	endpoint := fmt.Sprintf("%s/lol/match/v5/matches/by-puuid/%s/ids?startTime=%d&count=20",
		a.baseURL, url.PathEscape(creatorId.PlayerId), sinceEpochMs/1000)
	if err := a.getJSON(ctx, endpoint, &matchIds); err != nil {
		return nil, err
	}

	for _, matchId := range matchIds {
		var detail matchDetail
		endpoint := fmt.Sprintf("%s/lol/match/v5/matches/%s", a.baseURL, url.PathEscape(matchId))
		if err := a.getJSON(ctx, endpoint, &detail); err != nil {
			return nil, err
		}

		record := alignParticipants(&detail, creatorId.PlayerId, joinerId.PlayerId)
		if record == nil || record.PlayedAtEpochMs < sinceEpochMs {
			continue
		}
		zap.L().Debug("Head-to-head riot match found",
			zap.String("match_id", matchId),
			zap.String("game", string(a.game)))
		return record, nil
	}
	return nil, nil
}

func alignParticipants(detail *matchDetail, creatorPUUID, joinerPUUID string) *provider.HeadToHeadRecord {
	var creatorTeam, joinerTeam int
	var creatorWin bool
	var foundCreator, foundJoiner bool

	for _, p := range detail.Info.Participants {
		switch p.PUUID {
		case creatorPUUID:
			creatorTeam, creatorWin, foundCreator = p.TeamId, p.Win, true
		case joinerPUUID:
			joinerTeam, foundJoiner = p.TeamId, true
		}
	}
	if !foundCreator || !foundJoiner {
		return nil
	}

	return &provider.HeadToHeadRecord{
		RecordId:        detail.Metadata.MatchId,
		PlayedAtEpochMs: detail.Info.GameEndTimestamp,
		SameTeam:        creatorTeam == joinerTeam,
		WinnerA:         creatorWin,
	}
}

func (a *Adapter) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Riot-Token", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := provider.MapStatusCode(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", provider.ErrTransient, err)
	}
	return nil
}
