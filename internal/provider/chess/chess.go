package chess

import (
	"context"
	"encoding/json"
	"errors"
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

// Adapter resolves chess wagers against the chess.com public API: player
// profile for identity validation, monthly game archives for head-to-head
// lookup.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Adapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (a *Adapter) GameType() models.GameType { return models.GameChess }

type playerProfile struct {
	PlayerId int64  `json:"player_id"`
	Username string `json:"username"`
}

func (a *Adapter) ValidateIdentity(ctx context.Context, fields models.GameFields) (*provider.Identity, error) {
	f, ok := fields.(models.ChessFields)
	if !ok {
		return nil, fmt.Errorf("expected chess fields, got %T", fields)
	}

	var profile playerProfile
	endpoint := fmt.Sprintf("%s/pub/player/%s", a.baseURL, url.PathEscape(strings.ToLower(f.Username)))
	if err := a.getJSON(ctx, endpoint, &profile); err != nil {
		return nil, err
	}

	return &provider.Identity{
		PlayerId:    fmt.Sprintf("%d", profile.PlayerId),
		DisplayName: profile.Username,
	}, nil
}

type archivedGame struct {
	UUID    string `json:"uuid"`
	EndTime int64  `json:"end_time"` // unix seconds
	White   side   `json:"white"`
	Black   side   `json:"black"`
}

type side struct {
	Username string `json:"username"`
	Result   string `json:"result"` // "win" or a loss/draw code
}

type monthlyArchive struct {
	Games []archivedGame `json:"games"`
}

// FindHeadToHead scans the creator's monthly archives for a game against the
// joiner finished at or after sinceEpochMs. Nil record means not played yet.
func (a *Adapter) FindHeadToHead(ctx context.Context, creator, joiner models.GameFields, sinceEpochMs int64) (*provider.HeadToHeadRecord, error) {
	cf, ok := creator.(models.ChessFields)
	if !ok {
		return nil, fmt.Errorf("expected chess fields, got %T", creator)
	}
	jf, ok := joiner.(models.ChessFields)
	if !ok {
		return nil, fmt.Errorf("expected chess fields, got %T", joiner)
	}

	creatorName := strings.ToLower(cf.Username)
	joinerName := strings.ToLower(jf.Username)

	for _, month := range archiveMonths(sinceEpochMs) {
		endpoint := fmt.Sprintf("%s/pub/player/%s/games/%s", a.baseURL, url.PathEscape(creatorName), month)
		var archive monthlyArchive
		if err := a.getJSON(ctx, endpoint, &archive); err != nil {
			// A player with no games this month yields 404; that is "not
			// played yet", not a broken identity.
			if errors.Is(err, provider.ErrIdentityNotFound) {
				continue
			}
			return nil, err
		}

		for i := len(archive.Games) - 1; i >= 0; i-- {
			game := archive.Games[i]
			if game.EndTime*1000 < sinceEpochMs {
				continue
			}
			record := matchGame(game, creatorName, joinerName)
			if record != nil {
				zap.L().Debug("Head-to-head chess game found",
					zap.String("game", game.UUID),
					zap.String("creator", creatorName),
					zap.String("joiner", joinerName))
				return record, nil
			}
		}
	}
	return nil, nil
}

// matchGame aligns an archived game to the wager sides, or returns nil when
// the joiner was not in it.
func matchGame(game archivedGame, creatorName, joinerName string) *provider.HeadToHeadRecord {
	white := strings.ToLower(game.White.Username)
	black := strings.ToLower(game.Black.Username)

	var creatorSide, joinerSide side
	switch {
	case white == creatorName && black == joinerName:
		creatorSide, joinerSide = game.White, game.Black
	case black == creatorName && white == joinerName:
		creatorSide, joinerSide = game.Black, game.White
	default:
		return nil
	}

	record := &provider.HeadToHeadRecord{
		RecordId:        game.UUID,
		PlayedAtEpochMs: game.EndTime * 1000,
	}
	switch {
	case creatorSide.Result == "win":
		record.WinnerA = true
	case joinerSide.Result == "win":
		record.WinnerA = false
	default:
		record.Draw = true
	}
	return record
}

// archiveMonths returns the yyyy/mm paths from the wager month to now.
func archiveMonths(sinceEpochMs int64) []string {
	since := time.UnixMilli(sinceEpochMs).UTC()
	now := time.Now().UTC()

	var months []string
	cursor := time.Date(since.Year(), since.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cursor.After(now) {
		months = append(months, fmt.Sprintf("%04d/%02d", cursor.Year(), int(cursor.Month())))
		cursor = cursor.AddDate(0, 1, 0)
	}
	return months
}

func (a *Adapter) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

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
