package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"easymanager/internal/catalog"
	"easymanager/internal/config"
	"easymanager/internal/database"
	"easymanager/internal/handlers"
	"easymanager/internal/identity"
	"easymanager/internal/logger"
	"easymanager/internal/notify"
	"easymanager/internal/realtime"
	"easymanager/internal/reporting"
	"easymanager/internal/scheduler"
	"easymanager/internal/server"
	"easymanager/internal/stock"
	"easymanager/internal/store"
	"easymanager/internal/store/memstore"
	"easymanager/internal/store/mongostore"
)

const (
	shutdownTimeout = 10 * time.Second
	hubBuffer       = 64
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.EnvFileErr != nil {
		log.Debug(".env not loaded, using process environment", zap.Error(cfg.EnvFileErr))
	}
	if cfg.Log.Encoding != "console" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		repo       store.Store
		disconnect = func(context.Context) error { return nil }
	)
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store; data is lost on restart")
		repo = memstore.New()
	default:
		client, err := database.Connect(ctx, cfg.MongoURI, cfg.DBName, log)
		if err != nil {
			return err
		}
		disconnect = client.Disconnect
		if err := database.EnsureIndexes(ctx, client.Database(), log); err != nil {
			log.Warn("index setup incomplete", zap.Error(err))
		}
		repo = mongostore.New(client, cfg.UseTransaction, log)
	}

	var mailer notify.Mailer = notify.NewLogMailer(log)
	if cfg.Mail.Enabled() {
		mailer = notify.NewSMTPMailer(cfg.Mail)
	} else {
		log.Warn("smtp not configured, notifications are only logged")
	}
	queue := notify.NewQueue(mailer, cfg.Notify, log)
	queue.Start()
	dispatcher := notify.NewDispatcher(cfg.Mail.AdminEmail, queue, mailer, log)

	hub := realtime.NewHub(hubBuffer, log)
	var publisher realtime.Publisher = hub

	g, gctx := errgroup.WithContext(ctx)

	closeRedis := func() error { return nil }
	if cfg.Redis.Addr != "" {
		rdb, err := realtime.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, events stay local", zap.Error(err))
		} else {
			closeRedis = rdb.Close
			bridge := realtime.NewRedisBridge(rdb, cfg.Redis.Channel, hub, log)
			publisher = bridge
			g.Go(func() error {
				bridge.Run(gctx)
				return nil
			})
		}
	}

	stocks := stock.NewService(repo, dispatcher, publisher, log, stock.WithLocation(cfg.Location))
	products := catalog.NewService(repo, stocks, dispatcher, publisher, log)
	reports := reporting.NewAggregator(repo, log, reporting.WithLocation(cfg.Location))

	var jobs *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		jobs, err = scheduler.New(cfg.Scheduler, cfg.Location, repo, dispatcher, log)
		if err != nil {
			return err
		}
		jobs.Start()
	}

	var google handlers.GoogleVerifier
	if cfg.Google.ClientID != "" {
		google = identity.NewGoogleVerifier(cfg.Google.ClientID, cfg.Google.CertsURL, log)
	} else {
		log.Info("GOOGLE_CLIENT_ID not set, google sign-in disabled")
	}

	router, err := server.NewRouter(server.Deps{
		Store:         repo,
		Catalog:       products,
		Stock:         stocks,
		Reports:       reports,
		Notifier:      dispatcher,
		Mailer:        dispatcher,
		Google:        google,
		Events:        hub,
		Publisher:     publisher,
		JWTSecret:     cfg.JWTSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		ResetURL:      cfg.PasswordReset.URL,
		ResetTTL:      cfg.PasswordReset.TokenTTL,
		CORSOrigins:   cfg.CORSOrigins,
		AuthRateLimit: cfg.AuthRateLimit,
		Location:      cfg.Location,
		Logger:        log,
	})
	if err != nil {
		return err
	}
	srv := server.New(cfg.Port, router, log)

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown started")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if jobs != nil {
			jobs.Stop(shutdownCtx)
		}
		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", zap.Error(err))
		}
		if err := queue.Stop(shutdownCtx); err != nil {
			log.Warn("notification queue not drained", zap.Error(err))
		}
		if err := closeRedis(); err != nil {
			log.Warn("closing redis failed", zap.Error(err))
		}
		if err := disconnect(shutdownCtx); err != nil {
			log.Warn("closing database failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
