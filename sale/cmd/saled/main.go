package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/stagesale/sale/pkg/archive"
	"github.com/malbeclabs/stagesale/sale/pkg/campaign"
	"github.com/malbeclabs/stagesale/sale/pkg/clickhouse"
	"github.com/malbeclabs/stagesale/sale/pkg/eventlog"
	"github.com/malbeclabs/stagesale/sale/pkg/events"
	"github.com/malbeclabs/stagesale/sale/pkg/metrics"
	"github.com/malbeclabs/stagesale/sale/pkg/notify"
	"github.com/malbeclabs/stagesale/sale/pkg/server"
	"github.com/malbeclabs/stagesale/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = "0.0.0.0:8080"
	defaultMetricsAddr = "0.0.0.0:0"
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
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "HTTP API listen address (or set LISTEN_ADDR env var)")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics (empty disables)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 30*time.Second, "Maximum time to wait for in-flight requests during graceful shutdown")

	// Campaign
	adminFlag := flag.String("admin", "", "Admin identity, base58 (or set SALE_ADMIN env var)")
	walletFlag := flag.String("wallet", "", "Wallet receiving the raised funds and the ledger, base58 (or set SALE_WALLET env var)")
	openingTimeFlag := flag.String("opening-time", "", "Campaign opening time, RFC3339 (or set SALE_OPENING_TIME env var)")
	closingTimeFlag := flag.String("closing-time", "", "Campaign closing time, RFC3339 (or set SALE_CLOSING_TIME env var)")
	softGoalFlag := flag.Uint64("soft-goal", 0, "Units that must be issued for the campaign to succeed, compared against total issuance (or set SALE_SOFT_GOAL env var)")
	hardCapFlag := flag.Uint64("hard-cap", 0, "Maximum units that can ever be issued (or set SALE_HARD_CAP env var)")
	initialRateFlag := flag.Uint64("initial-rate", 1, "Rate restored when a stage is stopped (or set SALE_INITIAL_RATE env var)")
	campaignNameFlag := flag.String("campaign-name", "stagesale", "Campaign name used in notifications and archive keys")

	// API
	rateLimitFlag := flag.Float64("rate-limit", 1, "Sustained write requests per second per caller")
	rateBurstFlag := flag.Int("rate-burst", 10, "Write request burst per caller")
	allowedOriginsFlag := flag.StringSlice("allowed-origins", []string{"*"}, "CORS allowed origins")

	// Sinks
	postgresDSNFlag := flag.String("postgres-dsn", "", "PostgreSQL connection string for the durable event log (or set POSTGRES_DSN env var)")
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")
	slackWebhookFlag := flag.String("slack-webhook-url", "", "Slack incoming webhook for lifecycle notifications (or set SLACK_WEBHOOK_URL env var)")
	s3BucketFlag := flag.String("s3-bucket", "", "S3 bucket for finalization reports (or set ARCHIVE_S3_BUCKET env var)")
	s3PrefixFlag := flag.String("s3-prefix", "reports", "S3 key prefix for finalization reports")
	s3RegionFlag := flag.String("s3-region", "", "S3 region (or set AWS_REGION env var)")
	s3EndpointFlag := flag.String("s3-endpoint", "", "Custom S3 endpoint, for MinIO and friends (or set ARCHIVE_S3_ENDPOINT env var)")

	flag.Parse()

	overrideString(listenAddrFlag, "LISTEN_ADDR")
	overrideString(adminFlag, "SALE_ADMIN")
	overrideString(walletFlag, "SALE_WALLET")
	overrideString(openingTimeFlag, "SALE_OPENING_TIME")
	overrideString(closingTimeFlag, "SALE_CLOSING_TIME")
	if err := overrideUint(softGoalFlag, "SALE_SOFT_GOAL"); err != nil {
		return err
	}
	if err := overrideUint(hardCapFlag, "SALE_HARD_CAP"); err != nil {
		return err
	}
	if err := overrideUint(initialRateFlag, "SALE_INITIAL_RATE"); err != nil {
		return err
	}
	overrideString(postgresDSNFlag, "POSTGRES_DSN")
	overrideString(clickhouseAddrFlag, "CLICKHOUSE_ADDR_TCP")
	overrideString(clickhouseDatabaseFlag, "CLICKHOUSE_DATABASE")
	overrideString(clickhouseUsernameFlag, "CLICKHOUSE_USERNAME")
	overrideString(clickhousePasswordFlag, "CLICKHOUSE_PASSWORD")
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}
	overrideString(slackWebhookFlag, "SLACK_WEBHOOK_URL")
	overrideString(s3BucketFlag, "ARCHIVE_S3_BUCKET")
	overrideString(s3RegionFlag, "AWS_REGION")
	overrideString(s3EndpointFlag, "ARCHIVE_S3_ENDPOINT")

	log := logger.New(*verboseFlag)

	admin, err := solana.PublicKeyFromBase58(*adminFlag)
	if err != nil {
		return fmt.Errorf("invalid --admin: %w", err)
	}
	wallet, err := solana.PublicKeyFromBase58(*walletFlag)
	if err != nil {
		return fmt.Errorf("invalid --wallet: %w", err)
	}
	openingTime, err := time.Parse(time.RFC3339, *openingTimeFlag)
	if err != nil {
		return fmt.Errorf("invalid --opening-time: %w", err)
	}
	closingTime, err := time.Parse(time.RFC3339, *closingTimeFlag)
	if err != nil {
		return fmt.Errorf("invalid --closing-time: %w", err)
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		env := os.Getenv("SENTRY_ENVIRONMENT")
		if env == "" {
			env = "development"
		}
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: env,
			Release:     version,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("sentry initialized", "environment", env)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var (
		sinks    []events.Sink
		store    *eventlog.Store
		activity *clickhouse.ActivitySink
		startSeq uint64
		svc      *campaign.Service
		checks   = map[string]func(context.Context) error{}
	)

	if *postgresDSNFlag != "" {
		store, err = eventlog.Open(ctx, eventlog.Config{
			Logger:        log,
			ConnStr:       *postgresDSNFlag,
			RunMigrations: true,
		})
		if err != nil {
			return fmt.Errorf("failed to open event log: %w", err)
		}
		defer store.Close()

		startSeq, err = store.LastSeq(ctx)
		if err != nil {
			return fmt.Errorf("failed to read last event sequence: %w", err)
		}
		sinks = append(sinks, store)
		checks["postgres"] = store.Ping
		log.Info("event log enabled", "last_seq", startSeq)
	}

	if *clickhouseAddrFlag != "" {
		chCfg := clickhouse.ClientConfig{
			Addr:     *clickhouseAddrFlag,
			Database: *clickhouseDatabaseFlag,
			Username: *clickhouseUsernameFlag,
			Password: *clickhousePasswordFlag,
			Secure:   *clickhouseSecureFlag,
		}
		if err := clickhouse.Up(ctx, log, chCfg); err != nil {
			return fmt.Errorf("failed to migrate clickhouse: %w", err)
		}
		chClient, err := clickhouse.NewClient(ctx, log, chCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to clickhouse: %w", err)
		}
		defer chClient.Close()

		activity, err = clickhouse.NewActivitySink(clickhouse.ActivitySinkConfig{Logger: log, Client: chClient})
		if err != nil {
			return err
		}
		sinks = append(sinks, activity)
		checks["clickhouse"] = func(ctx context.Context) error {
			conn, err := chClient.Conn(ctx)
			if err != nil {
				return err
			}
			return conn.Exec(ctx, "SELECT 1")
		}
		log.Info("activity analytics enabled", "addr", chCfg.Addr, "database", chCfg.Database)
	}

	if *slackWebhookFlag != "" {
		slackSink, err := notify.NewSlackSink(notify.Config{
			Logger:     log,
			WebhookURL: *slackWebhookFlag,
			Campaign:   *campaignNameFlag,
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, slackSink)
		log.Info("slack notifications enabled")
	}

	if *s3BucketFlag != "" {
		s3Client, err := archive.NewS3Client(ctx, *s3RegionFlag, *s3EndpointFlag)
		if err != nil {
			return fmt.Errorf("failed to create s3 client: %w", err)
		}
		archiveSink, err := archive.NewSink(archive.Config{
			Logger:   log,
			Client:   s3Client,
			Bucket:   *s3BucketFlag,
			Prefix:   *s3PrefixFlag,
			Campaign: *campaignNameFlag,
			Snapshot: func() any { return svc.Status() },
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, archiveSink)
		log.Info("finalization archive enabled", "bucket", *s3BucketFlag)
	}

	dispatcher, err := events.NewDispatcher(events.DispatcherConfig{Logger: log, Sinks: sinks})
	if err != nil {
		return err
	}

	deployment, err := campaign.Deploy(campaign.DeployConfig{
		Logger:      log,
		Publisher:   dispatcher,
		StartSeq:    startSeq,
		Admin:       admin,
		Wallet:      wallet,
		OpeningTime: openingTime,
		ClosingTime: closingTime,
		SoftGoal:    *softGoalFlag,
		HardCap:     *hardCapFlag,
		InitialRate: *initialRateFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to deploy campaign: %w", err)
	}
	svc = deployment.Service
	log.Info("campaign deployed",
		"address", deployment.Controller.Address(),
		"admin", admin,
		"wallet", wallet,
		"opening_time", openingTime,
		"closing_time", closingTime,
		"hard_cap", *hardCapFlag)

	srvCfg := server.Config{
		Logger:         log,
		Service:        svc,
		Events:         dispatcher.Log(),
		Checks:         checks,
		ListenAddr:     *listenAddrFlag,
		AllowedOrigins: *allowedOriginsFlag,
		RateLimit:      rate.Limit(*rateLimitFlag),
		RateBurst:      *rateBurstFlag,
		Version:        version,
		Commit:         commit,
		Date:           date,
	}
	if store != nil {
		srvCfg.Store = store
	}
	if activity != nil {
		srvCfg.Activity = activity
	}
	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return srv.PruneLoop(gctx, time.Minute) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, stopping HTTP server", "timeout", *shutdownTimeoutFlag)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeoutFlag)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if *metricsAddrFlag != "" {
		g.Go(func() error { return serveMetrics(gctx, log, *metricsAddrFlag) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("saled stopped")
	return nil
}

func serveMetrics(ctx context.Context, log *slog.Logger, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start prometheus metrics server listener: %w", err)
	}
	log.Info("prometheus metrics server listening", "address", listener.Addr().String())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve metrics: %w", err)
	}
	return nil
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func overrideUint(dst *uint64, env string) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", env, err)
	}
	*dst = n
	return nil
}
