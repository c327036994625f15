// Command server runs the fundpool HTTP API, the overdue and accrual
// workers, and the dissolution projection consumer in one process.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	contributionhandler "fundpool/internal/contribution/handler"
	contributionmetrics "fundpool/internal/contribution/metrics"
	contributionservice "fundpool/internal/contribution/service"
	"fundpool/internal/contribution/store/due"
	"fundpool/internal/contribution/store/member"
	contributionworker "fundpool/internal/contribution/worker"
	"fundpool/internal/dissolution/consumer"
	dissolutionhandler "fundpool/internal/dissolution/handler"
	dissolutionmetrics "fundpool/internal/dissolution/metrics"
	"fundpool/internal/dissolution/projection"
	dissolutionservice "fundpool/internal/dissolution/service"
	dissolutionstore "fundpool/internal/dissolution/store"
	"fundpool/internal/idempotency"
	ledgerhandler "fundpool/internal/ledger/handler"
	ledgerservice "fundpool/internal/ledger/service"
	ledgerstore "fundpool/internal/ledger/store"
	loanhandler "fundpool/internal/loan/handler"
	loanservice "fundpool/internal/loan/service"
	loanstore "fundpool/internal/loan/store"
	loanworker "fundpool/internal/loan/worker"
	"fundpool/internal/platform/config"
	"fundpool/internal/platform/httpserver"
	"fundpool/internal/platform/kafka"
	"fundpool/internal/platform/logger"
	platformmetrics "fundpool/internal/platform/metrics"
	platformredis "fundpool/internal/platform/redis"
	transport "fundpool/internal/transport/http"
	"fundpool/pkg/platform/audit"
	auditmemory "fundpool/pkg/platform/audit/store/memory"
	auditpostgres "fundpool/pkg/platform/audit/store/postgres"
	auditworker "fundpool/pkg/platform/audit/worker"
	"fundpool/pkg/platform/events"
	platformtx "fundpool/pkg/platform/tx"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type stores struct {
	ledger       ledgerstore.Store
	dues         due.Store
	roster       member.Store
	loans        loanstore.Store
	settlements  dissolutionstore.Store
	projections  projection.Store
	auditDurable audit.Store
}

func newStores(db *sql.DB) stores {
	if db == nil {
		return stores{
			ledger:       ledgerstore.NewMemory(),
			dues:         due.NewMemory(),
			roster:       member.NewMemory(),
			loans:        loanstore.NewMemory(),
			settlements:  dissolutionstore.NewMemory(),
			projections:  projection.NewMemory(),
			auditDurable: auditmemory.New(),
		}
	}
	return stores{
		ledger:       ledgerstore.NewPostgres(db),
		dues:         due.NewPostgres(db),
		roster:       member.NewPostgres(db),
		loans:        loanstore.NewPostgres(db),
		settlements:  dissolutionstore.NewPostgres(db),
		projections:  projection.NewPostgres(db),
		auditDurable: auditpostgres.New(db),
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	log := logger.New()
	appMetrics := platformmetrics.New()

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
	}
	st := newStores(db)
	var txRunner platformtx.Runner
	if db != nil {
		txRunner = platformtx.NewSQL(db)
	} else {
		txRunner = platformtx.NewMemory()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var idempotencyStore idempotency.Store
	if redisClient != nil {
		defer redisClient.Close()
		idempotencyStore = idempotency.NewRedis(redisClient.Client)
	} else {
		idempotencyStore = idempotency.NewMemory()
	}
	guard, err := idempotency.NewGuard(idempotencyStore,
		idempotency.WithTTL(cfg.IdempotencyTTL),
		idempotency.WithLogger(log))
	if err != nil {
		return err
	}

	// Event publishing: Kafka when brokers are configured, otherwise an
	// in-process publisher that feeds the consumers directly.
	var publisher events.Publisher
	memoryPublisher := events.NewMemoryPublisher()
	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return err
	}
	if producer != nil {
		defer producer.Close()
		if err := kafka.EnsureTopics(ctx, producer, 6); err != nil {
			return err
		}
		publisher = events.NewKafkaPublisher(producer)
	} else {
		publisher = memoryPublisher
	}

	auditChannel := audit.NewChannelStore(st.auditDurable, 1024)
	auditPublisher := audit.NewPublisher(auditChannel, publisher, "fundpool")

	ledgerSvc, err := ledgerservice.New(st.ledger, ledgerservice.WithLogger(log))
	if err != nil {
		return err
	}
	contributionSvc, err := contributionservice.New(st.dues, st.roster, ledgerSvc,
		contributionservice.WithLogger(log),
		contributionservice.WithAuditPublisher(auditPublisher),
		contributionservice.WithEventPublisher(publisher),
		contributionservice.WithGracePeriod(time.Duration(cfg.GracePeriodDays)*24*time.Hour),
		contributionservice.WithTxRunner(txRunner))
	if err != nil {
		return err
	}
	loanSvc, err := loanservice.New(st.loans, ledgerSvc,
		loanservice.WithLogger(log),
		loanservice.WithAuditPublisher(auditPublisher),
		loanservice.WithEventPublisher(publisher),
		loanservice.WithTxRunner(txRunner))
	if err != nil {
		return err
	}
	dissolutionSvc, err := dissolutionservice.New(st.settlements, st.projections,
		dissolutionservice.WithLogger(log),
		dissolutionservice.WithAuditPublisher(auditPublisher),
		dissolutionservice.WithEventPublisher(publisher))
	if err != nil {
		return err
	}

	projectionConsumer, err := consumer.New(st.projections,
		consumer.WithLogger(log),
		consumer.WithMetrics(appMetrics))
	if err != nil {
		return err
	}
	if producer == nil {
		projectionConsumer.Register(memoryPublisher)
		memoryPublisher.Subscribe(events.TypeMemberJoined, contributionSvc.HandleMemberEvent)
		memoryPublisher.Subscribe(events.TypeMemberRemoved, contributionSvc.HandleMemberEvent)
	}

	contributionMetrics := contributionmetrics.New()
	router := transport.NewRouter(transport.Deps{
		JWTSigningKey: []byte(cfg.JWTSigningKey),
		Contribution:  contributionhandler.New(contributionSvc, guard, log, contributionMetrics),
		Loan:          loanhandler.New(loanSvc, guard, log),
		Dissolution:   dissolutionhandler.New(dissolutionSvc, log, dissolutionmetrics.New()),
		Ledger:        ledgerhandler.New(ledgerSvc),
	})
	server := httpserver.New(cfg.Addr, router)

	sweeper, err := contributionworker.New(contributionSvc,
		contributionworker.WithInterval(cfg.SweepInterval),
		contributionworker.WithLogger(log),
		contributionworker.WithMetrics(contributionMetrics))
	if err != nil {
		return err
	}
	accruer, err := loanworker.New(loanSvc, loanworker.WithLogger(log))
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.InfoContext(ctx, "http server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})
	group.Go(func() error {
		return auditworker.New(st.auditDurable, auditChannel.Inbox()).Run(ctx)
	})
	group.Go(func() error { return sweeper.Run(ctx) })
	group.Go(func() error { return accruer.Run(ctx) })

	if producer != nil {
		projectionClient, err := kafka.NewConsumer(cfg.Kafka, consumer.Topics()...)
		if err != nil {
			return err
		}
		defer projectionClient.Close()
		group.Go(func() error {
			return kafka.Consume(ctx, projectionClient, log, projectionConsumer.Handle)
		})

		rosterCfg := cfg.Kafka
		rosterCfg.ConsumerGroup = cfg.Kafka.ConsumerGroup + "-roster"
		rosterClient, err := kafka.NewConsumer(rosterCfg, events.TopicMember)
		if err != nil {
			return err
		}
		defer rosterClient.Close()
		group.Go(func() error {
			return kafka.Consume(ctx, rosterClient, log, contributionSvc.HandleMemberEvent)
		})
	}

	return group.Wait()
}
