package models

import (
	"encoding/json"
	"fmt"
)

// GameFields is the per-game identity a participant supplies. The concrete
// variant is keyed by GameType and decoded at the store boundary; the match
// state machine treats it as opaque.
type GameFields interface {
	gameFields()
}

// ChessFields identifies a chess.com account.
type ChessFields struct {
	Username string `json:"username"`
}

// RiotFields identifies a Riot account (LOL, VALORANT).
type RiotFields struct {
	GameName string `json:"game_name"`
	TagLine  string `json:"tag_line"`
	Region   string `json:"region"`
}

// TagFields identifies a Supercell tag (clan tag for CLAN_WAR, player tag for
// BRAWL_STARS).
type TagFields struct {
	Tag string `json:"tag"`
}

// TrackerFields identifies a stat-tracker profile (PUBG_PC, CSGO, FORTNITE,
// ROCKET_LEAGUE).
type TrackerFields struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
}

func (ChessFields) gameFields()   {}
func (RiotFields) gameFields()    {}
func (TagFields) gameFields()     {}
func (TrackerFields) gameFields() {}

// EncodeGameFields serializes a variant for storage.
func EncodeGameFields(f GameFields) (json.RawMessage, error) {
	if f == nil {
		return nil, fmt.Errorf("game fields are required")
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode game fields: %w", err)
	}
	return raw, nil
}

// DecodeGameFields decodes the stored JSON into the variant for the game
// type, validating that required fields are present.
func DecodeGameFields(gt GameType, raw json.RawMessage) (GameFields, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("game fields missing for %s", gt)
	}

	switch gt {
	case GameChess:
		var f ChessFields
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("invalid %s fields: %w", gt, err)
		}
		if f.Username == "" {
			return nil, fmt.Errorf("%s fields missing username", gt)
		}
		return f, nil
	case GameLOL, GameValorant:
		var f RiotFields
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("invalid %s fields: %w", gt, err)
		}
		if f.GameName == "" || f.TagLine == "" {
			return nil, fmt.Errorf("%s fields missing riot id", gt)
		}
		return f, nil
	case GameClanWar, GameBrawlStars:
		var f TagFields
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("invalid %s fields: %w", gt, err)
		}
		if f.Tag == "" {
			return nil, fmt.Errorf("%s fields missing tag", gt)
		}
		return f, nil
	case GamePUBG, GameCSGO, GameFortnite, GameRocketLeague:
		var f TrackerFields
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("invalid %s fields: %w", gt, err)
		}
		if f.Platform == "" || f.Handle == "" {
			return nil, fmt.Errorf("%s fields missing platform or handle", gt)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported game type: %s", gt)
	}
}

// UsesSnapshots reports whether the game resolves by snapshot diffing (before
// snapshots are captured at join time) rather than by head-to-head lookup.
func (gt GameType) UsesSnapshots() bool {
	switch gt {
	case GamePUBG, GameCSGO, GameFortnite, GameRocketLeague:
		return true
	}
	return false
}
