// Package server assembles the settlement service: storage, the external
// clients, the orchestrator and its reconciler, and the gRPC and ops
// servers. Run blocks until a signal or a fatal server error.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/afriswift/settlement/internal/common"
	"github.com/afriswift/settlement/internal/logging"
	"github.com/afriswift/settlement/internal/server/anchor"
	"github.com/afriswift/settlement/internal/server/config"
	"github.com/afriswift/settlement/internal/server/credentials"
	"github.com/afriswift/settlement/internal/server/custody"
	"github.com/afriswift/settlement/internal/server/ledger"
	"github.com/afriswift/settlement/internal/server/metrics"
	"github.com/afriswift/settlement/internal/server/network"
	"github.com/afriswift/settlement/internal/server/ops"
	"github.com/afriswift/settlement/internal/server/rates"
	"github.com/afriswift/settlement/internal/server/receipts"
	"github.com/afriswift/settlement/internal/server/repositories/repomanager"
	"github.com/afriswift/settlement/internal/server/services"
	"github.com/afriswift/settlement/internal/server/settlement"
	"github.com/robfig/cron/v3"

	gs "github.com/afriswift/settlement/internal/server/grpc"
)

type App struct {
	config       *config.Config
	logger       logging.Logger
	db           *sql.DB
	metrics      *metrics.Metrics
	accounts     *services.AccountService
	orchestrator *settlement.Orchestrator
	reconciler   *settlement.Reconciler
	receipts     *receipts.Archive
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogBackend, os.Stdout)
	if err != nil {
		return nil, err
	}

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	table := rates.Default()
	if c.RatesFile != "" {
		if table, err = rates.Load(c.RatesFile); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	vault, err := custody.NewVault(c.CustodyPassphrase, c.CustodySalt)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("custody: %w", err)
	}

	serviceKey, err := serviceKeyPair(ctx, c.ServiceSeed, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	m := metrics.New()
	store := ledger.NewStore(db, rm, logger)
	horizon := network.NewHorizonClient(c.HorizonURL, c.FriendbotURL, c.HTTPTimeout)
	anchorClient := anchor.NewHTTPClient(c.AnchorURL, serviceKey, c.HTTPTimeout, c.AnchorRequestsPerSec)
	tokens := credentials.New(anchorClient,
		credentials.WithLeadTime(c.TokenLeadTime),
		credentials.WithDefaultValidity(c.TokenDefaultValidity),
		credentials.WithRefreshTimeout(c.TokenRefreshTimeout),
		credentials.WithRefreshHook(m.CredentialRefresh),
	)

	archive, err := receipts.New(ctx, c, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("receipts: %w", err)
	}

	opts := []settlement.Option{settlement.WithObserver(m)}
	if archive != nil {
		opts = append(opts, settlement.WithReceipts(archive))
	}

	orchestrator := settlement.NewOrchestrator(db, rm, store, horizon, anchorClient, tokens, table, vault, logger,
		settlement.Config{
			Asset:             network.Asset{Code: c.AssetCode, Issuer: c.AssetIssuer},
			DepositCurrency:   common.CurrencyXOF,
			TransferValidity:  c.TransferValidity,
			LedgerRetryWindow: c.LedgerRetryWindow,
			ReconcileGrace:    c.ReconcileGrace,
			ReconcileBatch:    c.ReconcileBatchSize,
		}, opts...)

	reconciler := settlement.NewReconciler(orchestrator, c.ReconcileInterval, logger)
	reconciler.OnPass(func(stats settlement.ReconcileStats, d time.Duration) {
		m.ReconcilePass(stats.Advanced, stats.Aborted, stats.Errors, d)
	})

	accounts := services.NewAccountService(db, rm, c, vault, horizon, store, logger)

	return &App{
		config:       c,
		logger:       logger,
		db:           db,
		metrics:      m,
		accounts:     accounts,
		orchestrator: orchestrator,
		reconciler:   reconciler,
		receipts:     archive,
	}, nil
}

// serviceKeyPair parses the anchor signing seed. Without one a throwaway key
// is generated, which only works against test anchors.
func serviceKeyPair(ctx context.Context, seed string, logger logging.Logger) (*network.KeyPair, error) {
	if seed != "" {
		kp, err := network.ParseSeed(seed)
		if err != nil {
			return nil, fmt.Errorf("service seed: %w", err)
		}
		return kp, nil
	}
	kp, err := network.RandomKeyPair()
	if err != nil {
		return nil, err
	}
	logger.Warn(ctx, "no service seed configured, using a generated key", "address", kp.Address())
	return kp, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	opts := []gs.Option{gs.WithObserver(app.metrics)}
	if app.receipts != nil {
		opts = append(opts, gs.WithReceipts(app.receipts))
	}

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.accounts, app.orchestrator, app.config.SecretKey, opts...)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startOpsServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := ops.NewServer(app.config.OpsAddr, app.db, app.metrics.Handler(), app.accounts, app.orchestrator, app.config.OpsAdminToken, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// startHousekeeping purges expired refresh tokens every hour.
func (app *App) startHousekeeping(ctx context.Context) *cron.Cron {
	c := cron.New()
	_, _ = c.AddFunc("@hourly", func() {
		n, err := app.accounts.PurgeExpiredTokens(ctx)
		if err != nil {
			app.logger.Error(ctx, "purge refresh tokens", "error", err)
			return
		}
		if n > 0 {
			app.logger.Info(ctx, "purged refresh tokens", "count", n)
		}
	})
	c.Start()
	return c
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.db.Close()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.reconciler.Start(ctx); err != nil {
		app.logger.Error(ctx, "reconciler", "error", err)
		return
	}
	defer app.reconciler.Stop()

	housekeeping := app.startHousekeeping(ctx)
	defer func() { <-housekeeping.Stop().Done() }()

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startOpsServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.logger.Info(ctx, "App stopped")
}
