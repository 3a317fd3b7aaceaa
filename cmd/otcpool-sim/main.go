package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cosmossdk.io/math"

	"otcpool/config"
	"otcpool/core/events"
	"otcpool/core/types"
	"otcpool/native/crowdfund"
	"otcpool/native/otc"
	"otcpool/native/token"
	"otcpool/observability/logging"
	"otcpool/storage"
)

// otcpool-sim drives one full pool lifecycle against LevelDB-backed state:
// create, contribute, list at the venue, fill, and distribute. It exists to
// exercise the wiring the same way an embedding service would.
func main() {
	configFile := flag.String("config", "./engine.toml", "Path to the configuration file")
	feeRate := flag.String("fee", "0.02", "Maker fee rate charged by the simulated venue")
	flag.Parse()

	logger := logging.Setup("otcpool-sim", os.Getenv("OTCPOOL_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	asset, err := token.NewMemory("ASSET", math.LegacyMustNewDecFromStr("0.05"))
	if err != nil {
		logger.Error("Failed to build asset token", slog.Any("error", err))
		os.Exit(1)
	}
	cash, err := token.NewMemory("CASH", math.LegacyZeroDec())
	if err != nil {
		logger.Error("Failed to build cash token", slog.Any("error", err))
		os.Exit(1)
	}
	venue, err := otc.NewService("venue", math.LegacyMustNewDecFromStr(*feeRate))
	if err != nil {
		logger.Error("Failed to build venue", slog.Any("error", err))
		os.Exit(1)
	}

	now := time.Now().Unix()
	engine := crowdfund.NewEngine(cfg.VaultAccount)
	engine.SetState(storage.NewState(db))
	engine.SetTokenResolver(token.Registry{"ASSET": asset, "CASH": cash})
	engine.SetVenue(venue)
	engine.SetEmitter(logEmitter{log: logger})
	engine.SetNowFunc(func() int64 { return now })
	if err := engine.SetParams(cfg.EngineParams()); err != nil {
		logger.Error("Invalid engine params", slog.Any("error", err))
		os.Exit(1)
	}

	for _, account := range []string{"alice", "bob", "carol"} {
		asset.Mint(account, math.LegacyNewDec(1000))
		if err := asset.Approve(account, cfg.VaultAccount, math.LegacyNewDec(1000)); err != nil {
			fail(logger, "approve", err)
		}
	}
	cash.Mint("carol", math.LegacyNewDec(10000))
	if err := cash.Approve("carol", venue.Account(), math.LegacyNewDec(10000)); err != nil {
		fail(logger, "approve cash", err)
	}

	poolID, err := engine.CreatePool("alice", "simulated block trade", "ASSET", math.LegacyNewDec(100), math.LegacyNewDec(50))
	if err != nil {
		fail(logger, "create pool", err)
	}
	if err := engine.Contribute("bob", poolID, math.LegacyNewDec(30)); err != nil {
		fail(logger, "contribute", err)
	}
	if err := engine.Contribute("carol", poolID, math.LegacyNewDec(40)); err != nil {
		fail(logger, "contribute", err)
	}

	// Jump past the contribution deadline so the pool can be listed.
	now += cfg.ContributionWindowSecs + 1
	listingID, err := engine.ListPool("alice", poolID, "CASH", math.LegacyNewDec(350))
	if err != nil {
		fail(logger, "list pool", err)
	}
	if err := venue.TakeOffer("carol", listingID); err != nil {
		fail(logger, "take offer", err)
	}
	if err := engine.FinalizeListing(poolID); err != nil {
		fail(logger, "finalize", err)
	}
	for _, account := range []string{"bob", "carol"} {
		if err := engine.WithdrawShare(account, poolID); err != nil {
			fail(logger, fmt.Sprintf("withdraw share for %s", account), err)
		}
	}

	pool, _ := engine.GetPool(poolID)
	logger.Info("Simulation complete",
		slog.String("pool", pool.Status.String()),
		slog.String("proceeds", pool.Proceeds.String()),
		slog.String("bobCash", cash.BalanceOf("bob").String()),
		slog.String("carolCash", cash.BalanceOf("carol").String()),
	)
}

func fail(logger *slog.Logger, step string, err error) {
	logger.Error("Simulation step failed", slog.String("step", step), slog.Any("error", err))
	os.Exit(1)
}

// logEmitter forwards engine events to the structured logger.
type logEmitter struct {
	log *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	args := []any{slog.String("type", evt.EventType())}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				args = append(args, slog.String(key, value))
			}
		}
	}
	l.log.Info("Engine event", args...)
}
