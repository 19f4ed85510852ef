package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is created lazily on first match create/join by a given username.
// WalletAddress binds on first escrow participation and is immutable after
// that; a wallet belongs to exactly one user.
type User struct {
	Id            string
	Username      string
	WalletAddress string // empty until first escrow participation
	Balance       decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasWallet reports whether the user can receive a payout.
func (u *User) HasWallet() bool {
	return u.WalletAddress != ""
}

// BalanceEntry is an immutable credit row in the internal ledger. The
// external transaction id is unique so re-crediting the same payout is a
// detectable no-op.
type BalanceEntry struct {
	Id           string
	UserId       string
	Amount       decimal.Decimal
	ExternalTxId string
	Reference    string
	CreatedAt    time.Time
}
