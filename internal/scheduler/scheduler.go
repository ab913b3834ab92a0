package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"easymanager/internal/config"
	"easymanager/internal/models"
)

const jobTimeout = 2 * time.Minute

type Repository interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	LowStock(ctx context.Context) ([]models.Product, error)
	ExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Product, error)
}

type Notifier interface {
	CheckStockLevel(p models.Product, actingUserEmail string) bool
	CheckExpiration(p models.Product) bool
	SendWeeklySummary(lowStock, expiring []models.Product) bool
}

// Scheduler runs the periodic inventory checks.
type Scheduler struct {
	cron     *cron.Cron
	repo     Repository
	notifier Notifier
	now      func() time.Time
	logger   *zap.Logger
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(cfg config.SchedulerConfig, loc *time.Location, repo Repository, notifier Notifier, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := s.cron.AddFunc(cfg.Daily, s.job("daily-checks", s.RunDailyChecks)); err != nil {
		return nil, fmt.Errorf("scheduling daily checks %q: %w", cfg.Daily, err)
	}
	if _, err := s.cron.AddFunc(cfg.Weekly, s.job("weekly-summary", s.RunWeeklySummary)); err != nil {
		return nil, fmt.Errorf("scheduling weekly summary %q: %w", cfg.Weekly, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop prevents new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// RunDailyChecks alerts on every product that is low on stock or close to
// its expiration date.
func (s *Scheduler) RunDailyChecks(ctx context.Context) error {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("listing products: %w", err)
	}

	var lowStock, expiring int
	for _, p := range products {
		if p.IsLowStock() && s.notifier.CheckStockLevel(p, "") {
			lowStock++
		}
		if s.notifier.CheckExpiration(p) {
			expiring++
		}
	}

	s.logger.Info("daily checks completed",
		zap.Int("products", len(products)),
		zap.Int("lowStockAlerts", lowStock),
		zap.Int("expirationAlerts", expiring),
	)
	return nil
}

// RunWeeklySummary mails the admin the low-stock list and the products
// expiring within a month.
func (s *Scheduler) RunWeeklySummary(ctx context.Context) error {
	lowStock, err := s.repo.LowStock(ctx)
	if err != nil {
		return fmt.Errorf("listing low stock: %w", err)
	}

	now := s.now()
	expiring, err := s.repo.ExpiringBetween(ctx, now, now.AddDate(0, 1, 0))
	if err != nil {
		return fmt.Errorf("listing expiring products: %w", err)
	}

	sent := s.notifier.SendWeeklySummary(lowStock, expiring)
	s.logger.Info("weekly summary completed",
		zap.Int("lowStock", len(lowStock)),
		zap.Int("expiring", len(expiring)),
		zap.Bool("queued", sent),
	)
	return nil
}

func (s *Scheduler) job(name string, run func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled job panicked", zap.String("job", name), zap.Any("panic", r))
			}
		}()

		if err := run(ctx); err != nil {
			s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		}
	}
}
