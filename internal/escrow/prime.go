package escrow

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"wager-escrow-go/internal/models"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/portfolios"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Compile-time check: *PrimeClient must satisfy Client.
var _ Client = (*PrimeClient)(nil)

// PrimeClient implements the escrow transfer contract on a Coinbase Prime
// custody wallet. The pot sits in one escrow wallet; payouts are Prime
// withdrawals keyed by idempotency key.
type PrimeClient struct {
	client          client.RestClient
	portfoliosSvc   portfolios.PortfoliosService
	walletsSvc      wallets.WalletsService
	transactionsSvc transactions.TransactionsService

	portfolioId    string
	escrowWalletId string
	asset          string // SYMBOL-network-type, e.g. USDC-base-mainnet
	lookback       time.Duration
}

func NewPrimeClient(creds *credentials.Credentials, cfg models.EscrowConfig) (*PrimeClient, error) {
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	restClient := client.NewRestClient(creds, httpClient)

	c := &PrimeClient{
		client:          restClient,
		portfoliosSvc:   portfolios.NewPortfoliosService(restClient),
		walletsSvc:      wallets.NewWalletsService(restClient),
		transactionsSvc: transactions.NewTransactionsService(restClient),
		escrowWalletId:  cfg.EscrowWalletId,
		asset:           cfg.Asset,
		lookback:        7 * 24 * time.Hour,
	}

	if err := c.resolvePortfolio(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

func (c *PrimeClient) resolvePortfolio(ctx context.Context) error {
	response, err := c.portfoliosSvc.ListPortfolios(ctx, &portfolios.ListPortfoliosRequest{})
	if err != nil {
		return fmt.Errorf("unable to list portfolios: %w", err)
	}
	for _, p := range response.Portfolios {
		if p.Name == "Default Portfolio" {
			c.portfolioId = p.Id
			zap.L().Info("Using default portfolio",
				zap.String("name", p.Name),
				zap.String("id", p.Id))
			return nil
		}
	}
	return fmt.Errorf("default portfolio not found")
}

// VerifyDeposit scans recent escrow wallet transactions for the referenced
// deposit and checks the amount.
func (c *PrimeClient) VerifyDeposit(ctx context.Context, txRef string, expected decimal.Decimal) error {
	txns, err := c.listEscrowTransactions(ctx, time.Now().UTC().Add(-c.lookback))
	if err != nil {
		return fmt.Errorf("unable to verify deposit: %w", err)
	}

	for _, tx := range txns {
		if tx.Type != "DEPOSIT" {
			continue
		}
		if tx.Id != txRef && tx.TransactionId != txRef {
			continue
		}
		amount, err := decimal.NewFromString(tx.Amount)
		if err != nil {
			return fmt.Errorf("unable to parse deposit amount %q: %w", tx.Amount, err)
		}
		if amount.LessThan(expected) {
			return fmt.Errorf("%w: deposit %s covers %s of expected %s",
				ErrInsufficientFunds, txRef, amount.String(), expected.String())
		}
		zap.L().Info("Escrow deposit verified",
			zap.String("tx_ref", txRef),
			zap.String("amount", amount.String()))
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDepositNotFound, txRef)
}

// Payout creates a withdrawal from the escrow wallet to the payee.
func (c *PrimeClient) Payout(ctx context.Context, payeeAddress string, amount decimal.Decimal, idempotencyKey string) (string, error) {
	zap.L().Info("Creating escrow payout via Prime API",
		zap.String("portfolio_id", c.portfolioId),
		zap.String("wallet_id", c.escrowWalletId),
		zap.String("payee", payeeAddress),
		zap.String("amount", amount.String()),
		zap.String("idempotency_key", idempotencyKey))

	symbol, blockchainAddr := c.destination(payeeAddress)

	request := &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:       c.portfolioId,
		SourceWalletId:    c.escrowWalletId,
		Amount:            amount.String(),
		IdempotencyKey:    idempotencyKey,
		Symbol:            symbol,
		DestinationType:   "DESTINATION_BLOCKCHAIN",
		BlockchainAddress: blockchainAddr,
	}

	response, err := c.transactionsSvc.CreateWalletWithdrawal(ctx, request)
	if err != nil {
		zap.L().Error("Failed to create payout withdrawal",
			zap.String("payee", payeeAddress),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return "", mapPrimeError(err)
	}

	zap.L().Info("Escrow payout created",
		zap.String("activity_id", response.ActivityId),
		zap.String("payee", payeeAddress),
		zap.String("amount", amount.String()))
	return response.ActivityId, nil
}

// SplitPayout sends half the amount to each payee as two withdrawals with
// derived idempotency keys, so a retry after a partial failure only replays
// the missing half.
func (c *PrimeClient) SplitPayout(ctx context.Context, payeeA, payeeB string, amount decimal.Decimal, idempotencyKey string) ([]string, error) {
	half := amount.Div(decimal.NewFromInt(2))

	refA, err := c.Payout(ctx, payeeA, half, idempotencyKey+"-a")
	if err != nil {
		return nil, fmt.Errorf("split payout side A failed: %w", err)
	}
	refB, err := c.Payout(ctx, payeeB, half, idempotencyKey+"-b")
	if err != nil {
		return nil, fmt.Errorf("split payout side B failed (side A sent as %s): %w", refA, err)
	}
	return []string{refA, refB}, nil
}

// FindTransfer scans escrow wallet withdrawals for one submitted with the
// idempotency key.
func (c *PrimeClient) FindTransfer(ctx context.Context, idempotencyKey string) (*Transfer, bool, error) {
	txns, err := c.listEscrowTransactions(ctx, time.Now().UTC().Add(-c.lookback))
	if err != nil {
		return nil, false, fmt.Errorf("unable to search transfers: %w", err)
	}

	for _, tx := range txns {
		if tx.Type != "WITHDRAWAL" || tx.IdempotencyKey != idempotencyKey {
			continue
		}
		amount, err := decimal.NewFromString(tx.Amount)
		if err != nil {
			return nil, false, fmt.Errorf("unable to parse transfer amount %q: %w", tx.Amount, err)
		}
		return &Transfer{
			TxRef:          tx.Id,
			Amount:         amount,
			IdempotencyKey: tx.IdempotencyKey,
		}, true, nil
	}
	return nil, false, nil
}

func (c *PrimeClient) listEscrowTransactions(ctx context.Context, since time.Time) ([]*model.Transaction, error) {
	request := &transactions.ListWalletTransactionsRequest{
		PortfolioId: c.portfolioId,
		WalletId:    c.escrowWalletId,
		Start:       since,
		Types:       []string{"DEPOSIT", "WITHDRAWAL"},
		Pagination: &model.PaginationParams{
			Limit: 500,
		},
	}

	response, err := c.transactionsSvc.ListWalletTransactions(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("unable to list wallet transactions: %w", err)
	}

	zap.L().Debug("Escrow wallet transactions fetched",
		zap.String("wallet_id", c.escrowWalletId),
		zap.Int("count", len(response.Transactions)))
	return response.Transactions, nil
}

// destination splits the configured asset string into the withdrawal symbol
// and blockchain address with optional network details.
func (c *PrimeClient) destination(payeeAddress string) (string, *model.BlockchainAddress) {
	parts := strings.Split(c.asset, "-")
	symbol := parts[0]

	blockchainAddr := &model.BlockchainAddress{
		Address: payeeAddress,
	}
	if len(parts) >= 3 {
		blockchainAddr.Network = &model.NetworkDetails{
			Id:   parts[1],
			Type: parts[2],
		}
	}
	return symbol, blockchainAddr
}

// mapPrimeError converts Prime API failures into the typed kinds callers
// branch on.
func mapPrimeError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient"):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "forbidden"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case strings.Contains(msg, "cancell"):
		return fmt.Errorf("%w: %v", ErrCancelledByUser, err)
	default:
		return err
	}
}
