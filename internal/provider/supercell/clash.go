package supercell

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/provider"
)

// Supercell end times look like "20250131T181233.000Z".
const supercellTimeLayout = "20060102T150405.000Z"

var _ provider.HeadToHeadAdapter = (*ClashAdapter)(nil)

// ClashAdapter resolves clan war wagers against the Clash of Clans API.
// Identities are clan tags; a finished war between the two clans in the
// creator clan's war log decides the outcome on stars, then destruction.
type ClashAdapter struct {
	client *apiClient
}

func NewClash(baseURL, apiKey string, httpClient httpDoer) *ClashAdapter {
	return &ClashAdapter{client: newAPIClient(baseURL, apiKey, httpClient)}
}

func (a *ClashAdapter) GameType() models.GameType { return models.GameClanWar }

type clanResponse struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`
}

func (a *ClashAdapter) ValidateIdentity(ctx context.Context, fields models.GameFields) (*provider.Identity, error) {
	f, ok := fields.(models.TagFields)
	if !ok {
		return nil, fmt.Errorf("expected tag fields, got %T", fields)
	}

	var clan clanResponse
	endpoint := fmt.Sprintf("%s/v1/clans/%s", a.client.baseURL, url.PathEscape(f.Tag))
	if err := a.client.getJSON(ctx, endpoint, &clan); err != nil {
		return nil, err
	}
	return &provider.Identity{PlayerId: clan.Tag, DisplayName: clan.Name}, nil
}

type warLogResponse struct {
	Items []struct {
		Result  string `json:"result"`
		EndTime string `json:"endTime"`
		Clan    struct {
			Tag                   string  `json:"tag"`
			Stars                 int     `json:"stars"`
			DestructionPercentage float64 `json:"destructionPercentage"`
		} `json:"clan"`
		Opponent struct {
			Tag                   string  `json:"tag"`
			Stars                 int     `json:"stars"`
			DestructionPercentage float64 `json:"destructionPercentage"`
		} `json:"opponent"`
	} `json:"items"`
}

func (a *ClashAdapter) FindHeadToHead(ctx context.Context, creator, joiner models.GameFields, sinceEpochMs int64) (*provider.HeadToHeadRecord, error) {
	cf, ok := creator.(models.TagFields)
	if !ok {
		return nil, fmt.Errorf("expected tag fields, got %T", creator)
	}
	jf, ok := joiner.(models.TagFields)
	if !ok {
		return nil, fmt.Errorf("expected tag fields, got %T", joiner)
	}

	var warLog warLogResponse
	endpoint := fmt.Sprintf("%s/v1/clans/%s/warlog?limit=20", a.client.baseURL, url.PathEscape(cf.Tag))
	if err := a.client.getJSON(ctx, endpoint, &warLog); err != nil {
		return nil, err
	}

	for _, war := range warLog.Items {
		if war.Opponent.Tag != jf.Tag {
			continue
		}
		endedAt, err := time.Parse(supercellTimeLayout, war.EndTime)
		if err != nil {
			continue
		}
		endedMs := endedAt.UnixMilli()
		if endedMs < sinceEpochMs {
			continue
		}
		return &provider.HeadToHeadRecord{
			RecordId:        fmt.Sprintf("%s-vs-%s-%s", cf.Tag, jf.Tag, war.EndTime),
			PlayedAtEpochMs: endedMs,
			StarsA:          war.Clan.Stars,
			StarsB:          war.Opponent.Stars,
			DestructionA:    war.Clan.DestructionPercentage,
			DestructionB:    war.Opponent.DestructionPercentage,
		}, nil
	}
	return nil, nil
}
