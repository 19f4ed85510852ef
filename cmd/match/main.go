package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"wager-escrow-go/internal/common"
	"wager-escrow-go/internal/config"
	"wager-escrow-go/internal/lifecycle"
	"wager-escrow-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	action := flag.String("action", "", "Action: create, join, cancel, list, balance")
	matchId := flag.String("match", "", "Match id (join, cancel)")
	username := flag.String("username", "", "Platform username")
	wallet := flag.String("wallet", "", "Payout wallet address")
	gameType := flag.String("game", "", "Game type, e.g. CHESS, LOL, PUBG_PC")
	wager := flag.String("wager", "", "Wager amount (create)")
	escrowTx := flag.String("tx", "", "Escrow deposit transaction reference")

	handle := flag.String("handle", "", "In-game handle (chess username, player/clan tag, tracker handle)")
	platform := flag.String("platform", "", "Tracker platform, e.g. steam (snapshot games)")
	gameName := flag.String("game-name", "", "Riot game name (LOL, VALORANT)")
	tagLine := flag.String("tag-line", "", "Riot tag line (LOL, VALORANT)")
	region := flag.String("region", "americas", "Riot routing region (LOL, VALORANT)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	switch *action {
	case "create":
		gt := models.GameType(*gameType)
		amount, err := decimal.NewFromString(*wager)
		if err != nil {
			zap.L().Fatal("Invalid wager amount", zap.String("wager", *wager), zap.Error(err))
		}
		fields, err := buildGameFields(gt, *handle, *platform, *gameName, *tagLine, *region)
		if err != nil {
			zap.L().Fatal("Invalid game fields", zap.Error(err))
		}

		if err := services.Escrow.VerifyDeposit(ctx, *escrowTx, models.SideStake(gt, amount)); err != nil {
			zap.L().Fatal("Escrow deposit not verified", zap.String("tx", *escrowTx), zap.Error(err))
		}

		match, err := services.Lifecycle.CreateMatch(ctx, lifecycle.CreateParams{
			Username:      *username,
			WalletAddress: *wallet,
			GameType:      gt,
			Wager:         amount,
			Fields:        fields,
			EscrowTxRef:   *escrowTx,
		})
		if err != nil {
			zap.L().Fatal("Failed to create match", zap.Error(err))
		}
		printMatch(match)

	case "join":
		match, err := services.Store.GetMatch(ctx, *matchId)
		if err != nil {
			zap.L().Fatal("Failed to load match", zap.String("match_id", *matchId), zap.Error(err))
		}
		fields, err := buildGameFields(match.GameType, *handle, *platform, *gameName, *tagLine, *region)
		if err != nil {
			zap.L().Fatal("Invalid game fields", zap.Error(err))
		}

		if err := services.Escrow.VerifyDeposit(ctx, *escrowTx, models.SideStake(match.GameType, match.Wager)); err != nil {
			zap.L().Fatal("Escrow deposit not verified", zap.String("tx", *escrowTx), zap.Error(err))
		}

		joined, err := services.Lifecycle.JoinMatch(ctx, lifecycle.JoinParams{
			MatchId:       *matchId,
			Username:      *username,
			WalletAddress: *wallet,
			Fields:        fields,
			EscrowTxRef:   *escrowTx,
		})
		if err != nil {
			zap.L().Fatal("Failed to join match", zap.Error(err))
		}
		printMatch(joined)

	case "cancel":
		match, err := services.Lifecycle.CancelMatch(ctx, *matchId, *username)
		if err != nil {
			zap.L().Fatal("Failed to cancel match", zap.Error(err))
		}
		if err := services.Payouts.Refund(ctx, match.Id); err != nil {
			zap.L().Error("Cancellation recorded but refund failed, sweeper will retry",
				zap.String("match_id", match.Id), zap.Error(err))
		}
		printMatch(match)

	case "list":
		matches, err := services.Lifecycle.ListOpenMatches(ctx, models.GameType(*gameType))
		if err != nil {
			zap.L().Fatal("Failed to list open matches", zap.Error(err))
		}
		common.PrintHeader(fmt.Sprintf("Open %s matches: %d", *gameType, len(matches)), common.DefaultWidth)
		for i, m := range matches {
			prefix := common.BoxPrefix(i == len(matches)-1)
			fmt.Printf("%s%s  wager=%s  created=%s\n",
				prefix, m.Id, m.Wager.String(), m.CreatedAt.Format(time.RFC3339))
		}

	case "balance":
		user, err := services.Store.GetOrCreateUser(ctx, *username)
		if err != nil {
			zap.L().Fatal("Failed to load user", zap.Error(err))
		}
		entries, err := services.Store.GetBalanceEntries(ctx, user.Id, 20)
		if err != nil {
			zap.L().Fatal("Failed to load balance entries", zap.Error(err))
		}
		common.PrintHeader(fmt.Sprintf("Balance for %s: %s", user.Username, user.Balance.String()), common.DefaultWidth)
		for i, e := range entries {
			prefix := common.BoxPrefix(i == len(entries)-1)
			fmt.Printf("%s%s  %s  %s\n", prefix, e.CreatedAt.Format(time.RFC3339), e.Amount.String(), e.Reference)
		}

	default:
		fmt.Fprintln(os.Stderr, "usage: match -action create|join|cancel|list|balance [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}
}


func buildGameFields(gt models.GameType, handle, platform, gameName, tagLine, region string) (models.GameFields, error) {
	switch gt {
	case models.GameChess:
		if handle == "" {
			return nil, fmt.Errorf("-handle is required for %s", gt)
		}
		return models.ChessFields{Username: handle}, nil
	case models.GameLOL, models.GameValorant:
		if gameName == "" || tagLine == "" {
			return nil, fmt.Errorf("-game-name and -tag-line are required for %s", gt)
		}
		return models.RiotFields{GameName: gameName, TagLine: tagLine, Region: region}, nil
	case models.GameClanWar, models.GameBrawlStars:
		if handle == "" {
			return nil, fmt.Errorf("-handle is required for %s", gt)
		}
		return models.TagFields{Tag: handle}, nil
	case models.GamePUBG, models.GameCSGO, models.GameFortnite, models.GameRocketLeague:
		if platform == "" || handle == "" {
			return nil, fmt.Errorf("-platform and -handle are required for %s", gt)
		}
		return models.TrackerFields{Platform: platform, Handle: handle}, nil
	}
	return nil, fmt.Errorf("unsupported game type %q", gt)
}

func printMatch(m *models.Match) {
	common.PrintHeader(fmt.Sprintf("Match %s", m.Id), common.DefaultWidth)
	fmt.Printf("Game:    %s\n", m.GameType)
	fmt.Printf("Status:  %s\n", m.Status)
	fmt.Printf("Wager:   %s (pot %s)\n", m.Wager.String(), m.Pot().String())
	if m.Winner != "" {
		fmt.Printf("Winner:  %s\n", m.Winner)
	}
	if m.PayoutTxHash != "" {
		fmt.Printf("Payout:  %s\n", m.PayoutTxHash)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}
