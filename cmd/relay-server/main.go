package main

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/solbridge-labs/relay/internal/archive"
	"github.com/solbridge-labs/relay/internal/config"
	"github.com/solbridge-labs/relay/internal/eth"
	"github.com/solbridge-labs/relay/internal/job"
	jobpg "github.com/solbridge-labs/relay/internal/job/postgres"
	"github.com/solbridge-labs/relay/internal/jobevent"
	"github.com/solbridge-labs/relay/internal/payout"
	"github.com/solbridge-labs/relay/internal/queue"
	"github.com/solbridge-labs/relay/internal/relayapi"
	"github.com/solbridge-labs/relay/internal/secrets"
	"github.com/solbridge-labs/relay/internal/session"
)

func main() {
	// Local development convenience; absent .env is fine.
	_ = godotenv.Load()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Job store: Postgres when a DSN is configured, in-memory otherwise.
	var jobs job.Store
	if strings.TrimSpace(cfg.PostgresDSN) != "" {
		pool, poolErr := pgxpool.New(ctx, cfg.PostgresDSN)
		if poolErr != nil {
			log.Error("init pgx pool", "err", poolErr)
			os.Exit(2)
		}
		defer pool.Close()

		store, storeErr := jobpg.New(pool)
		if storeErr != nil {
			log.Error("init job store", "err", storeErr)
			os.Exit(2)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			log.Error("ensure job schema", "err", err)
			os.Exit(2)
		}
		jobs = store
		log.Info("job store ready", "backend", "postgres")
	} else {
		jobs = job.NewMemoryStore(time.Now)
		log.Info("job store ready", "backend", "memory")
	}

	// Payout sender: only assembled in real mode with credentials present.
	// Missing credentials are not fatal here; execution surfaces them
	// per job.
	var sender payout.Sender
	if cfg.RealSendEnabled && strings.TrimSpace(cfg.RPCURL) != "" && strings.TrimSpace(cfg.RelayerKeyRef) != "" {
		resolver, resolverErr := newResolver(ctx, cfg.RelayerKeyRef)
		if resolverErr != nil {
			log.Error("init secrets resolver", "err", resolverErr)
			os.Exit(2)
		}
		keyHex, keyErr := resolver.Resolve(ctx, cfg.RelayerKeyRef)
		if keyErr != nil {
			log.Error("resolve relayer key", "err", keyErr)
			os.Exit(2)
		}
		key, parseErr := eth.ParsePrivateKeyHex(keyHex)
		if parseErr != nil {
			log.Error("parse relayer key", "err", parseErr)
			os.Exit(2)
		}

		client, dialErr := ethclient.Dial(cfg.RPCURL)
		if dialErr != nil {
			log.Error("dial rpc", "err", dialErr)
			os.Exit(2)
		}
		defer client.Close()

		payer, payerErr := eth.NewPayer(client, eth.NewLocalSigner(key), eth.PayerConfig{
			ChainID:             new(big.Int).SetUint64(cfg.ChainID),
			GasLimitMultiplier:  cfg.GasLimitMultiplier,
			MinTipCap:           new(big.Int).Mul(big.NewInt(cfg.MinTipGwei), big.NewInt(1_000_000_000)),
			ReceiptPollInterval: cfg.ReceiptPollInterval,
		})
		if payerErr != nil {
			log.Error("init payer", "err", payerErr)
			os.Exit(2)
		}
		sender = payer
		log.Info("real payouts enabled", "chainID", cfg.ChainID)
	} else if cfg.RealSendEnabled {
		log.Warn("real mode configured without rpc url or key ref; executions will fail per job")
	}

	// Lifecycle events: enabled when brokers are configured (or the stdio
	// driver is selected for local runs).
	var events *jobevent.Publisher
	if len(cfg.QueueBrokers) > 0 || cfg.QueueDriver == queue.DriverStdio {
		producer, producerErr := queue.NewProducer(queue.ProducerConfig{
			Driver:  cfg.QueueDriver,
			Brokers: cfg.QueueBrokers,
		})
		if producerErr != nil {
			log.Error("init queue producer", "err", producerErr)
			os.Exit(2)
		}
		defer producer.Close()

		events, err = jobevent.NewPublisher(producer, cfg.JobEventTopic, log)
		if err != nil {
			log.Error("init job event publisher", "err", err)
			os.Exit(2)
		}
		log.Info("job lifecycle events enabled", "driver", cfg.QueueDriver, "topic", cfg.JobEventTopic)
	}

	executor, err := payout.NewService(jobs, sender, eventsOrNil(events), payout.Config{
		RealSendEnabled:  cfg.RealSendEnabled,
		NativeDecimals:   cfg.NativeDecimals,
		ExplorerTxPrefix: cfg.ExplorerTxPrefix,
		SendTimeout:      cfg.ExecuteTimeout,
		Logger:           log,
	})
	if err != nil {
		log.Error("init payout service", "err", err)
		os.Exit(2)
	}

	// Session/proof registry: Redis when configured, swept memory otherwise.
	var sessStore session.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, optsErr := redis.ParseURL(cfg.RedisURL)
		if optsErr != nil {
			log.Error("parse redis url", "err", optsErr)
			os.Exit(2)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		store, storeErr := session.NewRedisStore(client, cfg.SessionTTL, cfg.ProofTTL)
		if storeErr != nil {
			log.Error("init redis session store", "err", storeErr)
			os.Exit(2)
		}
		sessStore = store
		log.Info("session registry ready", "backend", "redis")
	} else {
		store, storeErr := session.NewMemoryStore(cfg.SessionTTL, cfg.ProofTTL, time.Now)
		if storeErr != nil {
			log.Error("init session store", "err", storeErr)
			os.Exit(2)
		}
		sessStore = store
		log.Info("session registry ready", "backend", "memory")
	}

	// Submission archive: S3 when a bucket is configured.
	var archiveStore archive.Store
	if strings.TrimSpace(cfg.ArchiveBucket) != "" {
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx)
		if awsErr != nil {
			log.Error("load aws config", "err", awsErr)
			os.Exit(2)
		}
		archiveStore, err = archive.New(archive.Config{
			Driver:   archive.DriverS3,
			Prefix:   cfg.ArchivePrefix,
			Bucket:   cfg.ArchiveBucket,
			S3Client: s3.NewFromConfig(awsCfg),
		})
		if err != nil {
			log.Error("init submission archive", "err", err)
			os.Exit(2)
		}
		log.Info("submission archive enabled", "bucket", cfg.ArchiveBucket, "prefix", cfg.ArchivePrefix)
	}

	sessions, err := session.NewService(sessStore, session.ServiceConfig{
		SessionTTL:       cfg.SessionTTL,
		ExplorerTxPrefix: cfg.ExplorerTxPrefix,
		Archive:          archiveStore,
		Logger:           log,
	})
	if err != nil {
		log.Error("init session service", "err", err)
		os.Exit(2)
	}

	sweeper := session.NewSweeper(sessStore, cfg.SweepInterval, log)
	go sweeper.Run(ctx)

	handler, err := relayapi.NewHandler(relayapi.Config{
		Network:                cfg.Network,
		AllowedOrigins:         cfg.CORSAllowedOrigins,
		RateLimitPerMinute:     cfg.RateLimitPerMinute,
		RateLimitMaxTrackedIPs: cfg.RateLimitMaxTrackedIPs,
	}, jobs, executor, sessions, eventsOrNilAPI(events), log)
	if err != nil {
		log.Error("init api handler", "err", err)
		os.Exit(2)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("relay-server listening", "addr", cfg.ListenAddr, "network", cfg.Network, "realSend", cfg.RealSendEnabled)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown", "reason", ctx.Err())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error("server error", "err", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func newResolver(ctx context.Context, keyRef string) (*secrets.Resolver, error) {
	if strings.HasPrefix(keyRef, "aws:") {
		return secrets.NewResolverWithAWS(ctx)
	}
	return secrets.NewResolver(), nil
}

// A nil *Publisher inside a non-nil interface would dodge the handlers' nil
// checks, so the conversion is explicit.
func eventsOrNil(p *jobevent.Publisher) payout.Events {
	if p == nil {
		return nil
	}
	return p
}

func eventsOrNilAPI(p *jobevent.Publisher) relayapi.Events {
	if p == nil {
		return nil
	}
	return p
}
