// Command ledgerd bootstraps the token ledger: it opens the persistent
// store, applies the genesis issuance when the supply is empty, and wires
// the ledger handle to its external collaborators.
package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/tokenledger/pkg/amount"
	"github.com/Mindburn-Labs/tokenledger/pkg/audit"
	"github.com/Mindburn-Labs/tokenledger/pkg/balance"
	"github.com/Mindburn-Labs/tokenledger/pkg/config"
	"github.com/Mindburn-Labs/tokenledger/pkg/ledger"
	"github.com/Mindburn-Labs/tokenledger/pkg/notify"
	"github.com/Mindburn-Labs/tokenledger/pkg/observability"
	"github.com/Mindburn-Labs/tokenledger/pkg/token"
	"github.com/Mindburn-Labs/tokenledger/pkg/txlog"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	ctx := context.Background()

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		log.Fatalf("Failed to load ledger policy: %v", err)
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	// 1. Initialize schemas
	log.Println("[ledgerd] Initializing schemas...")

	balances, err := balance.NewSQLiteStore(db)
	if err != nil {
		log.Fatalf("Failed to init balance store: %v", err)
	}

	var txs txlog.Store
	if cfg.PostgresURL != "" {
		pgdb, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to open postgres: %v", err)
		}
		defer func() { _ = pgdb.Close() }()
		pg := txlog.NewPostgresStore(pgdb)
		if err := pg.Init(ctx); err != nil {
			log.Fatalf("Failed to init transaction log: %v", err)
		}
		txs = pg
	} else {
		sq, err := txlog.NewSQLiteStore(db)
		if err != nil {
			log.Fatalf("Failed to init transaction log: %v", err)
		}
		txs = sq
	}

	var obs *observability.Provider
	if cfg.OTLPEndpoint != "" {
		obs, err = observability.New(ctx, &observability.Config{
			ServiceName:  "tokenledger",
			OTLPEndpoint: cfg.OTLPEndpoint,
			SampleRate:   1.0,
			Enabled:      true,
			Insecure:     true,
		})
		if err != nil {
			log.Fatalf("Failed to init observability: %v", err)
		}
		defer func() { _ = obs.Shutdown(ctx) }()
	}

	// 2. External collaborators, best-effort only
	publisher := notify.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, 0)
	defer func() { _ = publisher.Close() }()
	dispatcher := notify.NewDispatcher(100, publisher)

	oracle := notify.NewOracleClient(cfg.OracleURL)
	if err := oracle.Refresh(ctx); err != nil {
		slog.Warn("price oracle unavailable, continuing without quote", "error", err)
	}

	// 3. Wire the ledger handle
	ldg := ledger.New(balances, txs, ledger.Options{
		FeeRatePPM:  amount.RatePPM(policy.FeeRatePPM),
		BurnRatePPM: amount.RatePPM(policy.BurnRatePPM),
		StakingAPY:  policy.StakingAPYBps,
		Treasury:    token.Address(policy.Treasury),
		RewardsPool: token.Address(policy.RewardsPool),
		MaxSupply:   policy.GenesisAmount(),
		Effects:     dispatcher,
		Telemetry:   obs,
	})

	auditor := audit.NewLogger()

	// 4. Genesis, once
	sup, err := balances.Supply(ctx)
	if err != nil {
		log.Fatalf("Failed to read supply: %v", err)
	}
	if sup.Minted.IsZero() {
		log.Println("[ledgerd] Empty supply, running genesis...")
		if err := runGenesis(ctx, ldg, balances, policy, auditor); err != nil {
			log.Fatalf("Genesis failed: %v", err)
		}
	} else {
		log.Printf("[ledgerd] Supply already minted (%s), skipping genesis\n", sup.Minted)
	}

	// 5. Summary
	stats, err := ldg.Stats(ctx)
	if err != nil {
		log.Fatalf("Failed to collect stats: %v", err)
	}
	log.Printf("[ledgerd] Circulating supply: %s\n", stats.CirculatingSupply)
	log.Printf("[ledgerd] Holders: %d\n", stats.HolderCount)
	if ok, err := ldg.VerifyConservation(ctx); err != nil || !ok {
		log.Fatalf("Conservation check failed (ok=%v err=%v)", ok, err)
	}
	log.Println("[ledgerd] Conservation verified.")
}

// runGenesis mints the full supply to the treasury and funds the staking
// rewards pool out of it. Rewards are paid from this pool, never minted, so
// sum(balances) + burned == minted holds for the life of the ledger.
func runGenesis(ctx context.Context, ldg *ledger.Ledger, balances balance.Store, policy *config.Policy, auditor audit.Logger) error {
	treasury := token.Address(policy.Treasury)
	rewardsPool := token.Address(policy.RewardsPool)
	genesis := policy.GenesisAmount()

	receipt, err := ldg.Mint(ctx, treasury, genesis)
	if err != nil {
		return err
	}
	_ = auditor.Record(ctx, "system", audit.EventGenesis, "mint", string(treasury),
		map[string]string{"tx_id": receipt.TransactionID, "amount": genesis.BaseUnits()})

	fund := policy.RewardsFundAmount()
	if fund.IsPositive() {
		if err := balances.Apply(ctx,
			balance.Debit(treasury, fund),
			balance.Credit(rewardsPool, fund),
		); err != nil {
			return err
		}
		ldg.Engine().Record(ctx, token.TxTransfer, treasury, rewardsPool, fund, token.TxConfirmed,
			token.Metadata{"genesis": "true", "purpose": "rewards_pool"})
		_ = auditor.Record(ctx, "system", audit.EventGenesis, "fund_rewards_pool", string(rewardsPool),
			map[string]string{"amount": fund.BaseUnits()})
	}
	return nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
