package supercell

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"wager-escrow-go/internal/models"
	"wager-escrow-go/internal/provider"
)

var _ provider.HeadToHeadAdapter = (*BrawlAdapter)(nil)

// BrawlAdapter resolves Brawl Stars wagers from the creator's battle log.
// A battle counts when both player tags appear in it; same-side battles
// are reported as SameTeam.
type BrawlAdapter struct {
	client *apiClient
}

func NewBrawl(baseURL, apiKey string, httpClient httpDoer) *BrawlAdapter {
	return &BrawlAdapter{client: newAPIClient(baseURL, apiKey, httpClient)}
}

func (a *BrawlAdapter) GameType() models.GameType { return models.GameBrawlStars }

type brawlPlayer struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`
}

func (a *BrawlAdapter) ValidateIdentity(ctx context.Context, fields models.GameFields) (*provider.Identity, error) {
	f, ok := fields.(models.TagFields)
	if !ok {
		return nil, fmt.Errorf("expected tag fields, got %T", fields)
	}

	var player brawlPlayer
	endpoint := fmt.Sprintf("%s/v1/players/%s", a.client.baseURL, url.PathEscape(f.Tag))
	if err := a.client.getJSON(ctx, endpoint, &player); err != nil {
		return nil, err
	}
	return &provider.Identity{PlayerId: player.Tag, DisplayName: player.Name}, nil
}

type battleLogResponse struct {
	Items []struct {
		BattleTime string `json:"battleTime"`
		Battle     struct {
			Result     string `json:"result"` // victory, defeat, draw
			StarPlayer *struct {
				Tag string `json:"tag"`
			} `json:"starPlayer"`
			Teams   [][]brawlPlayer `json:"teams"`
			Players []brawlPlayer   `json:"players"` // solo modes
		} `json:"battle"`
	} `json:"items"`
}

func (a *BrawlAdapter) FindHeadToHead(ctx context.Context, creator, joiner models.GameFields, sinceEpochMs int64) (*provider.HeadToHeadRecord, error) {
	cf, ok := creator.(models.TagFields)
	if !ok {
		return nil, fmt.Errorf("expected tag fields, got %T", creator)
	}
	jf, ok := joiner.(models.TagFields)
	if !ok {
		return nil, fmt.Errorf("expected tag fields, got %T", joiner)
	}

	var battleLog battleLogResponse
	endpoint := fmt.Sprintf("%s/v1/players/%s/battlelog", a.client.baseURL, url.PathEscape(cf.Tag))
	if err := a.client.getJSON(ctx, endpoint, &battleLog); err != nil {
		return nil, err
	}

	for _, entry := range battleLog.Items {
		playedAt, err := time.Parse(supercellTimeLayout, entry.BattleTime)
		if err != nil {
			continue
		}
		playedMs := playedAt.UnixMilli()
		if playedMs < sinceEpochMs {
			continue
		}

		creatorTeam, joinerTeam := -1, -1
		for i, team := range entry.Battle.Teams {
			for _, p := range team {
				switch p.Tag {
				case cf.Tag:
					creatorTeam = i
				case jf.Tag:
					joinerTeam = i
				}
			}
		}
		if creatorTeam < 0 || joinerTeam < 0 {
			continue
		}

		record := &provider.HeadToHeadRecord{
			RecordId:        fmt.Sprintf("%s-vs-%s-%s", cf.Tag, jf.Tag, entry.BattleTime),
			PlayedAtEpochMs: playedMs,
			SameTeam:        creatorTeam == joinerTeam,
		}
		// The battle log reports result from the owner's perspective,
		// which here is the creator.
		switch entry.Battle.Result {
		case "victory":
			record.WinnerA = true
		case "draw":
			record.Draw = true
		}
		return record, nil
	}
	return nil, nil
}
