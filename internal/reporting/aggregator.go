package reporting

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"easymanager/internal/apperrors"
	"easymanager/internal/models"
	"easymanager/internal/store"
)

const (
	RangeDaily   = "daily"
	RangeWeekly  = "weekly"
	RangeMonthly = "monthly"
	RangeYearly  = "yearly"
)

type Repository interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	CountProducts(ctx context.Context) (int64, error)
	CountProductsCreatedBefore(ctx context.Context, at time.Time) (int64, error)
	CountBillsBetween(ctx context.Context, from, to time.Time) (int64, error)
	PaidBillTotals(ctx context.Context, from, to time.Time) (store.Totals, error)
	PaidBillTotalsByDay(ctx context.Context, from, to time.Time, loc *time.Location) (map[string]float64, error)
	SaleTotals(ctx context.Context, fromDay, toDay string) (store.Totals, error)
	SaleTotalsByDay(ctx context.Context, fromDay, toDay string) (map[string]float64, error)
}

// Aggregator computes revenue figures from sales records and paid bills.
// Day boundaries are taken in the configured location.
type Aggregator struct {
	repo   Repository
	now    func() time.Time
	loc    *time.Location
	logger *zap.Logger
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

func NewAggregator(repo Repository, logger *zap.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{repo: repo, now: time.Now, loc: time.Local, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type PeriodTotals struct {
	Total float64 `json:"total"`
	Count int64   `json:"count"`
}

type DailyDetails struct {
	Today     PeriodTotals `json:"today"`
	Yesterday PeriodTotals `json:"yesterday"`
	Date      string       `json:"date"`
}

type DailyReport struct {
	Total   float64      `json:"total"`
	Trend   float64      `json:"trend"`
	Details DailyDetails `json:"details"`
}

type MonthlyReport struct {
	Total float64 `json:"total"`
	Trend float64 `json:"trend"`
}

type DayAmount struct {
	Date        string  `json:"date"`
	SalesAmount float64 `json:"salesAmount"`
}

type SeriesReport struct {
	TimeRange  string      `json:"timeRange"`
	Sales      []DayAmount `json:"sales"`
	TotalSales float64     `json:"totalSales"`
	StartDate  time.Time   `json:"startDate"`
	EndDate    time.Time   `json:"endDate"`
}

type CategoryStatus struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Value    float64 `json:"value"`
}

type StoreStatus struct {
	TotalProducts  int              `json:"totalProducts"`
	InventoryValue float64          `json:"inventoryValue"`
	LowStockCount  int              `json:"lowStockCount"`
	TodaySales     PeriodTotals     `json:"todaySales"`
	Categories     []CategoryStatus `json:"categories"`
	GeneratedAt    time.Time        `json:"generatedAt"`
}

type ProductSummary struct {
	Count int64  `json:"count"`
	Trend string `json:"trend"`
}

// DailyTotal reports revenue for day (YYYY-MM-DD, empty for today) against
// the day before.
func (a *Aggregator) DailyTotal(ctx context.Context, day string) (DailyReport, error) {
	var start time.Time
	if day == "" {
		start = a.startOfDay(a.now())
	} else {
		parsed, err := time.ParseInLocation(models.DayLayout, day, a.loc)
		if err != nil {
			return DailyReport{}, apperrors.NewValidationError("invalid date", "date must be formatted as YYYY-MM-DD")
		}
		start = parsed
	}
	prev := start.AddDate(0, 0, -1)

	var today, yesterday PeriodTotals
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		today, err = a.revenue(gctx, start, start.AddDate(0, 0, 1))
		return err
	})
	g.Go(func() (err error) {
		yesterday, err = a.revenue(gctx, prev, start)
		return err
	})
	if err := g.Wait(); err != nil {
		return DailyReport{}, err
	}

	return DailyReport{
		Total: round(today.Total),
		Trend: Trend(today.Total, yesterday.Total),
		Details: DailyDetails{
			Today:     PeriodTotals{Total: round(today.Total), Count: today.Count},
			Yesterday: PeriodTotals{Total: round(yesterday.Total), Count: yesterday.Count},
			Date:      start.Format(models.DayLayout),
		},
	}, nil
}

// MonthlyTotal reports revenue for a calendar month against the month
// before. Zero month or year means the current one.
func (a *Aggregator) MonthlyTotal(ctx context.Context, month, year int) (MonthlyReport, error) {
	now := a.now().In(a.loc)
	if month == 0 {
		month = int(now.Month())
	}
	if year == 0 {
		year = now.Year()
	}

	var details []string
	if month < 1 || month > 12 {
		details = append(details, "month must be between 1 and 12")
	}
	if year < 1970 || year > 9999 {
		details = append(details, "year must be between 1970 and 9999")
	}
	if len(details) > 0 {
		return MonthlyReport{}, apperrors.NewValidationError("invalid month", details...)
	}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, a.loc)
	prevFirst := first.AddDate(0, -1, 0)

	var current, previous PeriodTotals
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		current, err = a.revenue(gctx, first, first.AddDate(0, 1, 0))
		return err
	})
	g.Go(func() (err error) {
		previous, err = a.revenue(gctx, prevFirst, first)
		return err
	})
	if err := g.Wait(); err != nil {
		return MonthlyReport{}, err
	}

	return MonthlyReport{Total: round(current.Total), Trend: Trend(current.Total, previous.Total)}, nil
}

// WindowedSeries returns per-day revenue from the start of timeRange up to
// now, ordered by date.
func (a *Aggregator) WindowedSeries(ctx context.Context, timeRange string) (SeriesReport, error) {
	now := a.now().In(a.loc)
	today := a.startOfDay(now)

	var start time.Time
	switch timeRange {
	case RangeDaily:
		start = today
	case RangeWeekly:
		start = now.AddDate(0, 0, -7)
	case RangeMonthly:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, a.loc)
	case RangeYearly:
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, a.loc)
	default:
		return SeriesReport{}, apperrors.NewValidationError("Invalid time range", "timeRange must be one of daily, weekly, monthly, yearly")
	}

	var sales, bills map[string]float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sales, err = a.repo.SaleTotalsByDay(gctx, start.Format(models.DayLayout), now.Format(models.DayLayout))
		return err
	})
	g.Go(func() (err error) {
		bills, err = a.repo.PaidBillTotalsByDay(gctx, start, today.AddDate(0, 0, 1), a.loc)
		return err
	})
	if err := g.Wait(); err != nil {
		return SeriesReport{}, err
	}

	merged := make(map[string]float64, len(sales)+len(bills))
	for day, amount := range sales {
		merged[day] += amount
	}
	for day, amount := range bills {
		merged[day] += amount
	}

	days := make([]string, 0, len(merged))
	for day := range merged {
		days = append(days, day)
	}
	sort.Strings(days)

	report := SeriesReport{
		TimeRange: timeRange,
		Sales:     make([]DayAmount, 0, len(days)),
		StartDate: start,
		EndDate:   now,
	}
	var total float64
	for _, day := range days {
		total += merged[day]
		report.Sales = append(report.Sales, DayAmount{Date: day, SalesAmount: round(merged[day])})
	}
	report.TotalSales = round(total)
	return report, nil
}

// StoreStatus summarizes inventory and today's paid bills.
func (a *Aggregator) StoreStatus(ctx context.Context) (StoreStatus, error) {
	now := a.now()
	today := a.startOfDay(now)

	var (
		products []models.Product
		paid     store.Totals
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = a.repo.ListProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		paid, err = a.repo.PaidBillTotals(gctx, today, today.AddDate(0, 0, 1))
		return err
	})
	if err := g.Wait(); err != nil {
		return StoreStatus{}, err
	}

	status := StoreStatus{
		TotalProducts: len(products),
		TodaySales:    PeriodTotals{Total: round(paid.Total), Count: paid.Count},
		Categories:    make([]CategoryStatus, 0),
		GeneratedAt:   now,
	}

	index := map[string]int{}
	inventory := decimal.Zero
	values := map[string]decimal.Decimal{}
	for _, p := range products {
		value := decimal.NewFromFloat(p.Price).Mul(decimal.NewFromInt(int64(p.Stock)))
		inventory = inventory.Add(value)
		if p.IsLowStock() {
			status.LowStockCount++
		}

		i, ok := index[p.Category]
		if !ok {
			i = len(status.Categories)
			index[p.Category] = i
			status.Categories = append(status.Categories, CategoryStatus{Category: p.Category})
		}
		status.Categories[i].Count++
		values[p.Category] = values[p.Category].Add(value)
	}

	status.InventoryValue = inventory.Round(2).InexactFloat64()
	for i := range status.Categories {
		status.Categories[i].Value = values[status.Categories[i].Category].Round(2).InexactFloat64()
	}
	sort.Slice(status.Categories, func(i, j int) bool {
		return status.Categories[i].Category < status.Categories[j].Category
	})
	return status, nil
}

// ProductTrend compares the product count with the count one week ago.
func (a *Aggregator) ProductTrend(ctx context.Context) (ProductSummary, error) {
	weekAgo := a.now().AddDate(0, 0, -7)

	var current, prior int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		current, err = a.repo.CountProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		prior, err = a.repo.CountProductsCreatedBefore(gctx, weekAgo)
		return err
	})
	if err := g.Wait(); err != nil {
		return ProductSummary{}, err
	}

	trend := decimal.Zero
	if prior > 0 {
		trend = decimal.NewFromInt(current - prior).Div(decimal.NewFromInt(prior)).Mul(decimal.NewFromInt(100))
	}
	return ProductSummary{Count: current, Trend: trend.StringFixed(2)}, nil
}

func (a *Aggregator) BillsToday(ctx context.Context) (int64, error) {
	today := a.startOfDay(a.now())
	return a.repo.CountBillsBetween(ctx, today, today.AddDate(0, 0, 1))
}

// revenue sums sales whose day falls in [from, to) and paid bills dated in
// the same range.
func (a *Aggregator) revenue(ctx context.Context, from, to time.Time) (PeriodTotals, error) {
	fromDay := from.In(a.loc).Format(models.DayLayout)
	lastDay := to.In(a.loc).AddDate(0, 0, -1).Format(models.DayLayout)

	sales, err := a.repo.SaleTotals(ctx, fromDay, lastDay)
	if err != nil {
		return PeriodTotals{}, err
	}
	bills, err := a.repo.PaidBillTotals(ctx, from, to)
	if err != nil {
		return PeriodTotals{}, err
	}

	a.logger.Debug("revenue window",
		zap.String("from", fromDay),
		zap.String("to", lastDay),
		zap.Float64("sales", sales.Total),
		zap.Float64("bills", bills.Total),
	)
	return PeriodTotals{Total: sales.Total + bills.Total, Count: sales.Count + bills.Count}, nil
}

func (a *Aggregator) startOfDay(t time.Time) time.Time {
	t = t.In(a.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, a.loc)
}

// Trend is the percentage change from prior to current. With no prior
// revenue it is 100 when there is current revenue and 0 otherwise.
func Trend(current, prior float64) float64 {
	if prior == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return round((current - prior) / prior * 100)
}

func round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
