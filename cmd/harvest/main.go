package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/harvest-move/harvest/internal/aggregator"
	"github.com/harvest-move/harvest/internal/config"
	"github.com/harvest-move/harvest/internal/history"
	"github.com/harvest-move/harvest/internal/logger"
	"github.com/harvest-move/harvest/internal/movement"
	"github.com/harvest-move/harvest/internal/orchestrator"
	"github.com/harvest-move/harvest/internal/prices"
	"github.com/harvest-move/harvest/internal/protocols"
	"github.com/harvest-move/harvest/internal/sponsor"
	"github.com/harvest-move/harvest/internal/types"
	"github.com/harvest-move/harvest/internal/wallet"
)

const usage = `Usage: harvest <command> [flags]

Commands:
  positions     Show open positions across all protocols
  rewards       Show pending claimable rewards
  claim         Claim rewards (all protocols, or -protocols joule,yuzu)
  history       Show recent claims for an address
  leaderboard   Show the claimed-value leaderboard
`

// main is the entry point for the harvest CLI.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	addressFlag := flags.String("address", "", "account address (defaults to the configured wallet)")
	protocolsFlag := flags.String("protocols", "", "comma-separated protocol ids to claim from (default all)")
	periodFlag := flags.String("period", "all-time", "leaderboard period: daily, weekly, monthly, all-time")
	limitFlag := flags.Int("limit", 25, "max rows to fetch")
	flags.Parse(os.Args[2:])

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Initialize(os.Getenv("LOG_LEVEL"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	app, err := buildApp()
	if err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}

	switch command {
	case "positions":
		err = app.showPositions(ctx, *addressFlag)
	case "rewards":
		err = app.showRewards(ctx, *addressFlag)
	case "claim":
		err = app.claim(ctx, *protocolsFlag)
	case "history":
		err = app.showHistory(ctx, *addressFlag, *limitFlag)
	case "leaderboard":
		err = app.showLeaderboard(ctx, types.LeaderboardPeriod(*periodFlag), *limitFlag)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("Command failed")
	}
}

// app holds the wired services behind the CLI commands.
type app struct {
	chain      *movement.Client
	aggregator *aggregator.Service
	prices     *prices.Service
	historyAPI *history.Client
	localLog   *history.LocalLog
}

func buildApp() (*app, error) {
	chainClient, err := movement.NewClient(config.Network, config.FullnodeURL)
	if err != nil {
		return nil, err
	}

	priceService, err := prices.NewService(config.PriceAPIURL, 0)
	if err != nil {
		return nil, err
	}

	registry, err := buildRegistry(chainClient, priceService)
	if err != nil {
		return nil, err
	}

	agg, err := aggregator.New(registry, config.AdapterReadTimeout)
	if err != nil {
		return nil, err
	}

	return &app{
		chain:      chainClient,
		aggregator: agg,
		prices:     priceService,
		historyAPI: history.NewClient(config.HistoryAPIURL),
		localLog:   history.NewLocalLog(config.ClaimLogPath),
	}, nil
}

// warmPrices fills the quote cache in one batched call so the adapter fan-out
// does not issue one price request per token.
func (a *app) warmPrices(ctx context.Context) {
	a.prices.TokenPrices(ctx, prices.KnownSymbols())
}

// buildRegistry registers every protocol with a configured module address.
func buildRegistry(chain *movement.Client, priceService *prices.Service) (*protocols.Registry, error) {
	var adapters []protocols.Adapter

	if config.JouleModuleAddress != "" {
		adapter, err := protocols.NewJouleAdapter(config.JouleModuleAddress, chain, priceService)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	if config.YuzuModuleAddress != "" {
		adapter, err := protocols.NewYuzuAdapter(config.YuzuModuleAddress, chain, priceService)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	if config.MeridianModuleAddress != "" {
		adapter, err := protocols.NewMeridianAdapter(config.MeridianModuleAddress, chain, priceService)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no protocol module addresses configured")
	}
	return protocols.NewRegistry(adapters...), nil
}

// resolveAddress prefers the flag, falling back to the configured wallet.
func (a *app) resolveAddress(address string) (string, error) {
	if address != "" {
		return address, nil
	}
	signer, err := wallet.FromConfig(a.chain)
	if err != nil {
		return "", fmt.Errorf("no -address given and no wallet configured: %w", err)
	}
	return signer.Address(), nil
}

func (a *app) showPositions(ctx context.Context, address string) error {
	address, err := a.resolveAddress(address)
	if err != nil {
		return err
	}

	a.warmPrices(ctx)
	positions := a.aggregator.GetAllPositions(ctx, address)
	if len(positions) == 0 {
		fmt.Println("No open positions.")
		return nil
	}

	for _, p := range positions {
		fmt.Printf("%-10s %-8s %-22s %12s %s  $%.2f\n",
			p.ProtocolID, p.Kind, p.ID, p.Amount.String(), p.TokenSymbol, p.ValueUSD)
	}
	return nil
}

func (a *app) showRewards(ctx context.Context, address string) error {
	address, err := a.resolveAddress(address)
	if err != nil {
		return err
	}

	a.warmPrices(ctx)
	rewards := a.aggregator.GetAllPendingRewards(ctx, address)
	if len(rewards) == 0 {
		fmt.Println("No pending rewards.")
		return nil
	}

	var totalUSD float64
	for _, r := range rewards {
		claimable := " "
		if r.Claimable {
			claimable = "*"
			totalUSD += r.ValueUSD
		}
		fmt.Printf("%s %-10s %-22s %12s %s  $%.2f\n",
			claimable, r.ProtocolID, r.ID, r.Amount.String(), r.TokenSymbol, r.ValueUSD)
	}
	fmt.Printf("\nClaimable total: $%.2f\n", totalUSD)
	return nil
}

func (a *app) claim(ctx context.Context, protocolsCSV string) error {
	signer, err := wallet.FromConfig(a.chain)
	if err != nil {
		return err
	}
	defer signer.Disconnect()

	wanted, err := parseProtocolFilter(protocolsCSV)
	if err != nil {
		return err
	}

	selections := a.selectClaims(ctx, signer.Address(), wanted)
	if len(selections) == 0 {
		fmt.Println("Nothing to claim.")
		return nil
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Builder:   a.aggregator,
		Signer:    signer,
		Sponsor:   sponsor.NewClient(config.SponsorAPIURL),
		Finality:  a.chain,
		Recorders: []orchestrator.ClaimRecorder{a.historyAPI, a.localLog},
	})
	if err != nil {
		return err
	}

	final, err := orch.Run(ctx, selections)
	if err != nil {
		return err
	}

	for _, result := range final.Results {
		gas := "user-paid"
		if result.WasSponsored {
			gas = "sponsored"
		}
		switch result.Status {
		case types.ClaimSuccess:
			fmt.Printf("%-10s claimed $%.2f (%s)\n  %s\n",
				result.Protocol, result.AmountUSD, gas, movement.ExplorerURL(config.Network, "txn", result.TxHash))
		default:
			fmt.Printf("%-10s failed: %s\n", result.Protocol, result.Error)
		}
	}
	fmt.Printf("\nRun %s finished: %s\n", final.RunID, final.Status)
	return nil
}

// parseProtocolFilter parses the -protocols CSV flag, rejecting names that
// match no known protocol. An empty CSV means no filter.
func parseProtocolFilter(protocolsCSV string) (map[types.ProtocolID]bool, error) {
	known := map[types.ProtocolID]bool{}
	for _, id := range types.AllProtocolIDs() {
		known[id] = true
	}

	wanted := map[types.ProtocolID]bool{}
	for _, name := range strings.Split(protocolsCSV, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id := types.ProtocolID(name)
		if !known[id] {
			return nil, fmt.Errorf("unknown protocol %q", name)
		}
		wanted[id] = true
	}
	return wanted, nil
}

// selectClaims groups claimable rewards into per-protocol selections,
// optionally filtered to the wanted protocols.
func (a *app) selectClaims(ctx context.Context, address string, wanted map[types.ProtocolID]bool) []types.ClaimSelection {
	rewards := a.aggregator.GetAllPendingRewards(ctx, address)
	byProtocol := map[types.ProtocolID][]types.RewardItem{}
	var order []types.ProtocolID
	for _, reward := range rewards {
		if !reward.Claimable {
			continue
		}
		if len(wanted) > 0 && !wanted[reward.ProtocolID] {
			continue
		}
		if _, seen := byProtocol[reward.ProtocolID]; !seen {
			order = append(order, reward.ProtocolID)
		}
		byProtocol[reward.ProtocolID] = append(byProtocol[reward.ProtocolID], reward)
	}

	selections := make([]types.ClaimSelection, 0, len(order))
	for _, protocol := range order {
		selections = append(selections, types.ClaimSelection{Protocol: protocol, Rewards: byProtocol[protocol]})
	}
	return selections
}

func (a *app) showHistory(ctx context.Context, address string, limit int) error {
	address, err := a.resolveAddress(address)
	if err != nil {
		return err
	}

	records, err := a.historyAPI.ClaimsForAddress(ctx, address)
	if err != nil {
		log.Warn().Err(err).Msg("History backend unavailable, showing local log")
		records = a.localLog.Recent(limit)
	}
	if len(records) == 0 {
		fmt.Println("No claims recorded.")
		return nil
	}

	for i, record := range records {
		if limit > 0 && i >= limit {
			break
		}
		fmt.Printf("%s  %-10s %12s %s  $%.2f  %s\n",
			record.ClaimedAt.Format(time.RFC3339), record.Protocol,
			record.Amount, record.TokenSymbol, record.ValueUSD, record.TxHash)
	}
	return nil
}

func (a *app) showLeaderboard(ctx context.Context, period types.LeaderboardPeriod, limit int) error {
	entries, err := a.historyAPI.Leaderboard(ctx, period, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Leaderboard is empty.")
		return nil
	}

	for _, entry := range entries {
		fmt.Printf("%3d. %-66s $%.2f (%d claims)\n",
			entry.Rank, entry.Address, entry.TotalClaimedUSD, entry.ClaimCount)
	}
	return nil
}
