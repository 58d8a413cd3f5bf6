// Package server assembles the FitBack API from configuration and owns its
// lifecycle.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/fitback/internal/config"
	"github.com/iliyamo/fitback/internal/database"
	"github.com/iliyamo/fitback/internal/logging"
	"github.com/iliyamo/fitback/internal/notify"
	"github.com/iliyamo/fitback/internal/repository"
	"github.com/iliyamo/fitback/internal/service"
	"github.com/iliyamo/fitback/internal/utils"
	"github.com/iliyamo/fitback/internal/worker"
)

// App is a fully wired server.  Build it with New, run it with Start and stop
// it with Shutdown.
type App struct {
	cfg config.Config
	log logging.Logger

	db        *sql.DB
	rdb       *redis.Client
	echo      *echo.Echo
	notifier  *service.Notifier
	publisher *notify.AMQPPublisher
	consumer  *notify.Consumer
	sweeper   *worker.TokenSweeper

	// ctx scopes the background workers; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// New connects to MySQL, applies migrations and wires every component.
// Redis is optional: without it rate limiting and caching are skipped.
func New(ctx context.Context, cfg config.Config, log logging.Logger) (*App, error) {
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &App{cfg: cfg, log: log, db: db}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.rdb = config.NewRedisClient(cfg.Redis)
	if a.rdb == nil {
		log.Warn(ctx, "redis unavailable, rate limiting and response cache disabled", "addr", cfg.Redis.Addr)
	}

	mailer, err := newMailer(ctx, cfg.Mail, log)
	if err != nil {
		a.close()
		return nil, err
	}
	var dispatcher notify.Dispatcher = notify.NewMailDispatcher(mailer)
	if cfg.Queue.Enabled {
		a.publisher = notify.NewAMQPPublisher(cfg.Queue.URL, cfg.Queue.Name)
		a.consumer = notify.NewConsumer(cfg.Queue.URL, cfg.Queue.Name, mailer, log.With("component", "notify-consumer"))
		dispatcher = a.publisher
	}
	a.notifier = service.NewNotifier(dispatcher, log)

	hasher := utils.NewPasswordHasher(cfg.BcryptCost)
	issuer := utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	tx := database.NewTransactor(db)
	repos := repository.NewMySQLManager()

	auth := service.NewAuthService(tx, repos, &hasher, issuer, a.notifier, log, service.AuthOptions{
		VerificationTTL:            cfg.VerificationTTL,
		ResetTTL:                   cfg.ResetTTL,
		SendVerificationOnRegister: cfg.SendVerificationOnRegister,
		PublicBaseURL:              cfg.PublicBaseURL,
	})
	users := service.NewUserService(tx, repos, &hasher, a.notifier, log)

	a.sweeper = worker.NewTokenSweeper(auth, cfg.TokenGCInterval, log)
	a.echo = newEcho(cfg, log, services{auth: auth, users: users, tokens: issuer, redis: a.rdb})
	return a, nil
}

func newMailer(ctx context.Context, cfg config.MailConfig, log logging.Logger) (notify.Mailer, error) {
	switch cfg.Driver {
	case "ses":
		m, err := notify.NewSESMailer(ctx, cfg.Region, cfg.From, cfg.FromName)
		if err != nil {
			return nil, fmt.Errorf("ses mailer: %w", err)
		}
		return m, nil
	case "log", "":
		return notify.LogMailer{Log: log.With("component", "mailer")}, nil
	default:
		return nil, fmt.Errorf("unknown MAIL_DRIVER %q", cfg.Driver)
	}
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler { return a.echo }

// Start launches the background workers and serves HTTP until the server is
// shut down.  It returns nil after a graceful shutdown, including one that
// happened before Start ran.
func (a *App) Start() error {
	ctx := a.ctx
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.sweeper.Start(ctx)
	if a.consumer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error(ctx, "notify consumer stopped", "error", err)
			}
		}()
	}
	a.mu.Unlock()

	addr := ":" + a.cfg.Port
	a.log.Info(ctx, "listening", "addr", addr, "env", a.cfg.Env)
	if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, drains in-flight ones, flushes pending
// notifications and releases the connections.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()

	var errs []error
	if err := a.echo.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if err := a.sweeper.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("sweeper: %w", err))
	}

	flushed := make(chan struct{})
	go func() {
		a.notifier.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("notifications: %w", ctx.Err()))
	}

	a.cancel()
	a.wg.Wait()
	errs = append(errs, a.close())
	return errors.Join(errs...)
}

func (a *App) close() error {
	a.cancel()
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
