package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"wager-escrow-go/internal/models"
)

// Sentinel errors shared by all adapters. Everything except
// ErrIdentityNotFound is transient from the resolver's point of view: matches
// stay PLAYING and are re-polled.
var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrRateLimited      = errors.New("provider rate limited")
	ErrUnauthorized     = errors.New("provider rejected credentials")
	ErrTransient        = errors.New("transient provider error")
)

// Identity is a validated in-game identity.
type Identity struct {
	PlayerId    string // provider-stable id (puuid, account id, tag)
	DisplayName string
}

// HeadToHeadRecord is one real match/battle/war found in the provider's
// history that contains both wagered identities. Fields are aligned to the
// wager: side A is the creator, side B the joiner.
type HeadToHeadRecord struct {
	RecordId        string
	PlayedAtEpochMs int64

	// Symmetric-team games.
	SameTeam bool // both identities on the same side
	Draw     bool
	WinnerA  bool // side A won the record (ignored when Draw or SameTeam)

	// Clan wars.
	StarsA, StarsB             int
	DestructionA, DestructionB float64
}

// Adapter is the common contract every per-game adapter satisfies.
type Adapter interface {
	GameType() models.GameType
	// ValidateIdentity fails fast with ErrIdentityNotFound on a typo'd
	// handle.
	ValidateIdentity(ctx context.Context, fields models.GameFields) (*Identity, error)
}

// HeadToHeadAdapter resolves by finding one record containing both players.
// A nil record with nil error means "not found yet" and is not a failure.
type HeadToHeadAdapter interface {
	Adapter
	FindHeadToHead(ctx context.Context, creator, joiner models.GameFields, sinceEpochMs int64) (*HeadToHeadRecord, error)
}

// SnapshotAdapter resolves by diffing per-side stat snapshots captured at
// join time against fresh ones.
type SnapshotAdapter interface {
	Adapter
	CaptureSnapshot(ctx context.Context, fields models.GameFields) (*models.Snapshot, error)
}

// MapStatusCode converts an HTTP status from a third-party stats API into
// the shared error taxonomy. Adapters drain and close the body themselves.
func MapStatusCode(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrIdentityNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrTransient, resp.StatusCode, string(body))
	}
}
