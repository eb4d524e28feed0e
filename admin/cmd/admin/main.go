package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/stagesale/admin/internal/admin"
	"github.com/malbeclabs/stagesale/sale/pkg/campaign"
	"github.com/malbeclabs/stagesale/sale/pkg/client"
	"github.com/malbeclabs/stagesale/sale/pkg/clickhouse"
	"github.com/malbeclabs/stagesale/sale/pkg/eventlog"
	"github.com/malbeclabs/stagesale/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// API configuration
	serverURLFlag := flag.String("server-url", "http://localhost:8080", "saled base URL (or set SALE_SERVER_URL env var)")
	callerFlag := flag.String("caller", "", "Identity to call as, base58 (or set SALE_CALLER env var)")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	// PostgreSQL configuration
	postgresDSNFlag := flag.String("postgres-dsn", "", "PostgreSQL connection string (or set POSTGRES_DSN env var)")

	// Campaign commands
	statusFlag := flag.Bool("status", false, "Print the campaign status")
	startStageFlag := flag.Bool("start-stage", false, "Start a stage (--opening-time, --closing-time, --rate, --limit)")
	stopStageFlag := flag.Bool("stop-stage", false, "Stop the current stage")
	mintFlag := flag.Bool("mint", false, "Mint units to --to (--amount)")
	timelockMintFlag := flag.Bool("timelock-mint", false, "Mint units into a time lock for --to (--amount, --release-time)")
	createReferralFlag := flag.Bool("create-referral", false, "Create a referral channel for --advertiser (--bonus-percent)")
	removeReferralFlag := flag.Bool("remove-referral", false, "Remove the referral channel of --advertiser")
	removeChannelFlag := flag.Bool("remove-channel", false, "Remove the referral channel at --channel")
	claimVaultFlag := flag.Bool("claim-vault", false, "Release the escrow to the wallet")
	finalizeFlag := flag.Bool("finalize", false, "Finalize the campaign")
	creditFlag := flag.Bool("credit", false, "Credit external funds to --to (--amount)")
	eventsFlag := flag.Bool("events", false, "Print committed events (--after, --limit)")

	// Database commands
	clickhouseMigrateFlag := flag.Bool("clickhouse-migrate", false, "Run ClickHouse activity migrations using goose")
	clickhouseMigrateStatusFlag := flag.Bool("clickhouse-migrate-status", false, "Show ClickHouse migration version")
	resetDBFlag := flag.Bool("reset-db", false, "Drop the ClickHouse sale tables")
	pgMigrateFlag := flag.Bool("pg-migrate", false, "Run PostgreSQL event log migrations")
	pgMigrateDownFlag := flag.Bool("pg-migrate-down", false, "Roll back the last PostgreSQL event log migration")
	pgMigrateStatusFlag := flag.Bool("pg-migrate-status", false, "Show PostgreSQL event log migration status")
	backfillActivityFlag := flag.Bool("backfill-activity", false, "Replay the PostgreSQL event log into ClickHouse activity")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	// Command options
	openingTimeFlag := flag.String("opening-time", "", "Stage opening time (RFC3339)")
	closingTimeFlag := flag.String("closing-time", "", "Stage closing time (RFC3339)")
	rateFlag := flag.Uint64("rate", 0, "Stage rate, units per unit of funds")
	limitFlag := flag.Uint64("limit", 0, "Stage allowance in funds")
	toFlag := flag.String("to", "", "Recipient identity, base58")
	amountFlag := flag.Uint64("amount", 0, "Amount")
	releaseTimeFlag := flag.String("release-time", "", "Time lock release time (RFC3339)")
	advertiserFlag := flag.String("advertiser", "", "Advertiser identity, base58")
	bonusPercentFlag := flag.Uint64("bonus-percent", 0, "Referral bonus in percent (0-100)")
	channelFlag := flag.String("channel", "", "Referral channel address, base58")
	afterFlag := flag.Uint64("after", 0, "Return events after this sequence number")
	limitEventsFlag := flag.Int("events-limit", 100, "Maximum events to return")
	batchSizeFlag := flag.Int("batch-size", 500, "Backfill batch size")

	flag.Parse()

	log := logger.New(*verboseFlag)

	if v := os.Getenv("SALE_SERVER_URL"); v != "" {
		*serverURLFlag = v
	}
	if v := os.Getenv("SALE_CALLER"); v != "" {
		*callerFlag = v
	}
	if v := os.Getenv("CLICKHOUSE_ADDR_TCP"); v != "" {
		*clickhouseAddrFlag = v
	}
	if v := os.Getenv("CLICKHOUSE_DATABASE"); v != "" {
		*clickhouseDatabaseFlag = v
	}
	if v := os.Getenv("CLICKHOUSE_USERNAME"); v != "" {
		*clickhouseUsernameFlag = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		*clickhousePasswordFlag = v
	}
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		*postgresDSNFlag = v
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	chCfg := clickhouse.ClientConfig{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	}

	// Database commands
	switch {
	case *clickhouseMigrateFlag:
		if chCfg.Addr == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate")
		}
		return clickhouse.Up(ctx, log, chCfg)

	case *clickhouseMigrateStatusFlag:
		if chCfg.Addr == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate-status")
		}
		v, err := clickhouse.Version(ctx, log, chCfg)
		if err != nil {
			return err
		}
		fmt.Printf("ClickHouse migration version: %d\n", v)
		return nil

	case *resetDBFlag:
		if chCfg.Addr == "" {
			return fmt.Errorf("--clickhouse-addr is required for --reset-db")
		}
		chClient, err := clickhouse.NewClient(ctx, log, chCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		defer chClient.Close()
		return admin.ResetDB(ctx, log, chClient, admin.ResetDBConfig{
			Database:    chCfg.Database,
			DryRun:      *dryRunFlag,
			SkipConfirm: *yesFlag,
			In:          os.Stdin,
			Out:         os.Stdout,
		})

	case *pgMigrateFlag:
		return admin.PgMigrateUp(ctx, log, *postgresDSNFlag)

	case *pgMigrateDownFlag:
		return admin.PgMigrateDown(ctx, log, *postgresDSNFlag)

	case *pgMigrateStatusFlag:
		return admin.PgMigrateStatus(ctx, log, *postgresDSNFlag)

	case *backfillActivityFlag:
		if chCfg.Addr == "" || *postgresDSNFlag == "" {
			return fmt.Errorf("--clickhouse-addr and --postgres-dsn are required for --backfill-activity")
		}
		store, err := eventlog.Open(ctx, eventlog.Config{Logger: log, ConnStr: *postgresDSNFlag})
		if err != nil {
			return err
		}
		defer store.Close()
		chClient, err := clickhouse.NewClient(ctx, log, chCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		defer chClient.Close()
		sink, err := clickhouse.NewActivitySink(clickhouse.ActivitySinkConfig{Logger: log, Client: chClient})
		if err != nil {
			return err
		}
		res, err := admin.BackfillActivity(ctx, log, store, sink, admin.BackfillActivityConfig{
			After:     *afterFlag,
			BatchSize: *batchSizeFlag,
			DryRun:    *dryRunFlag,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Backfilled %d signal(s) in %d batch(es), last seq %d\n", res.Signals, res.Batches, res.LastSeq)
		return nil
	}

	// Campaign commands
	var caller solana.PublicKey
	if *callerFlag != "" {
		var err error
		if caller, err = solana.PublicKeyFromBase58(*callerFlag); err != nil {
			return fmt.Errorf("invalid --caller: %w", err)
		}
	}
	c, err := client.New(client.Config{Logger: log, BaseURL: *serverURLFlag, Caller: caller})
	if err != nil {
		return err
	}

	switch {
	case *statusFlag:
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(st)

	case *startStageFlag:
		opening, err := parseTime("--opening-time", *openingTimeFlag)
		if err != nil {
			return err
		}
		closing, err := parseTime("--closing-time", *closingTimeFlag)
		if err != nil {
			return err
		}
		stage, err := c.StartStage(ctx, campaign.StageParams{
			OpeningTime: opening,
			ClosingTime: closing,
			Rate:        *rateFlag,
			Limit:       *limitFlag,
		})
		if err != nil {
			return err
		}
		return printJSON(stage)

	case *stopStageFlag:
		if err := c.StopStage(ctx); err != nil {
			return err
		}
		fmt.Println("Stage stopped")
		return nil

	case *mintFlag:
		to, err := parseKey("--to", *toFlag)
		if err != nil {
			return err
		}
		b, err := c.MintTokens(ctx, to, *amountFlag)
		if err != nil {
			return err
		}
		return printJSON(b)

	case *timelockMintFlag:
		to, err := parseKey("--to", *toFlag)
		if err != nil {
			return err
		}
		release, err := parseTime("--release-time", *releaseTimeFlag)
		if err != nil {
			return err
		}
		grant, err := c.MintTokensToTimelock(ctx, to, *amountFlag, release)
		if err != nil {
			return err
		}
		fmt.Printf("Time lock created: %s\n", grant)
		return nil

	case *createReferralFlag:
		advertiser, err := parseKey("--advertiser", *advertiserFlag)
		if err != nil {
			return err
		}
		channel, err := c.CreateReferral(ctx, advertiser, *bonusPercentFlag)
		if err != nil {
			return err
		}
		fmt.Printf("Referral channel created: %s\n", channel)
		return nil

	case *removeReferralFlag:
		advertiser, err := parseKey("--advertiser", *advertiserFlag)
		if err != nil {
			return err
		}
		if err := c.RemoveReferral(ctx, advertiser); err != nil {
			return err
		}
		fmt.Println("Referral removed")
		return nil

	case *removeChannelFlag:
		channel, err := parseKey("--channel", *channelFlag)
		if err != nil {
			return err
		}
		if err := c.RemoveReferralByChannel(ctx, channel); err != nil {
			return err
		}
		fmt.Println("Referral removed")
		return nil

	case *claimVaultFlag:
		amount, err := c.ClaimVault(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Vault claimed: %d\n", amount)
		return nil

	case *finalizeFlag:
		st, err := c.Finalize(ctx)
		if err != nil {
			return err
		}
		return printJSON(st)

	case *creditFlag:
		to, err := parseKey("--to", *toFlag)
		if err != nil {
			return err
		}
		b, err := c.Credit(ctx, to, *amountFlag)
		if err != nil {
			return err
		}
		return printJSON(b)

	case *eventsFlag:
		page, err := c.Events(ctx, *afterFlag, *limitEventsFlag)
		if err != nil {
			return err
		}
		return printJSON(page)
	}

	flag.Usage()
	return fmt.Errorf("no command specified")
}

func parseKey(name, v string) (solana.PublicKey, error) {
	if v == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", name)
	}
	pk, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	return pk, nil
}

func parseTime(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	return t, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
