package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"easymanager/internal/apperrors"
	"easymanager/internal/models"
	"easymanager/internal/realtime"
	"easymanager/internal/reporting"
	"easymanager/internal/store"
)

func ListSales(ledger store.Ledger, pinger store.Pinger, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/sales"
		defer handlePanic(c, logger, route)

		if err := ensureStore(c.Request.Context(), pinger); err != nil {
			respondWithError(c, logger, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		sales, err := ledger.ListSales(c.Request.Context())
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}
		if sales == nil {
			sales = []models.Sale{}
		}

		lo, hi, err := pageBounds(c, len(sales))
		if err != nil {
			respondWithError(c, logger, http.StatusBadRequest, route, err.Error())
			return
		}
		c.JSON(http.StatusOK, sales[lo:hi])
	}
}

// CreateSale stores a sales record with its date normalized to YYYY-MM-DD
// and pushes the refreshed daily and monthly figures to listeners.
func CreateSale(ledger store.Ledger, reports *reporting.Aggregator, publisher realtime.Publisher, loc *time.Location, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/sales"
		defer handlePanic(c, logger, route)

		var sale models.Sale
		if err := c.ShouldBindJSON(&sale); err != nil {
			respondValidationError(c, err)
			return
		}

		var details []string
		if sale.Total < 0 {
			details = append(details, "Total must be at least 0")
		}
		if sale.Quantity < 0 {
			details = append(details, "Quantity must be at least 0")
		}
		if sale.UnitPrice < 0 {
			details = append(details, "UnitPrice must be at least 0")
		}
		if len(details) > 0 {
			respondServiceError(c, logger, route, apperrors.NewValidationError("validation failed", details...), false)
			return
		}
		if sale.Date == "" {
			sale.Date = models.SaleDate(time.Now().In(loc).Format(models.DayLayout))
		}
		sale.ID = primitive.NilObjectID

		ctx := c.Request.Context()
		if err := ledger.InsertSale(ctx, &sale); err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}
		logger.Info("sale recorded", zap.String("invoiceId", sale.InvoiceID), zap.String("date", string(sale.Date)))

		day := string(sale.Date)
		daily, err := ledger.SaleTotals(ctx, day, day)
		if err != nil {
			logger.Warn("daily total after sale failed", zap.Error(err))
		}
		publisher.Publish(ctx, realtime.NewSale(sale, decimal.NewFromFloat(daily.Total).Round(2).InexactFloat64()))
		publisher.Publish(ctx, realtime.SalesUpdated())

		if saleDay, err := time.ParseInLocation(models.DayLayout, day, loc); err == nil {
			monthly, err := reports.MonthlyTotal(ctx, int(saleDay.Month()), saleDay.Year())
			if err != nil {
				logger.Warn("monthly total after sale failed", zap.Error(err))
			} else {
				publisher.Publish(ctx, realtime.MonthlyRevenueUpdated(monthly.Total, monthly.Trend))
			}
		}

		c.JSON(http.StatusCreated, sale)
	}
}

func DailySales(reports *reporting.Aggregator, pinger store.Pinger, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/sales/daily"
		defer handlePanic(c, logger, route)

		if err := ensureStore(c.Request.Context(), pinger); err != nil {
			respondWithError(c, logger, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		report, err := reports.DailyTotal(c.Request.Context(), strings.TrimSpace(c.Query("date")))
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func MonthlySales(reports *reporting.Aggregator, pinger store.Pinger, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/sales/monthly"
		defer handlePanic(c, logger, route)

		month, err := optionalInt(c.Query("month"), "month")
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}
		year, err := optionalInt(c.Query("year"), "year")
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}

		if err := ensureStore(c.Request.Context(), pinger); err != nil {
			respondWithError(c, logger, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		report, err := reports.MonthlyTotal(c.Request.Context(), month, year)
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// SalesSeries serves /api/sales/:timeRange. The static /api/sales/daily
// route takes precedence over the daily range.
func SalesSeries(reports *reporting.Aggregator, pinger store.Pinger, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/sales/:timeRange"
		defer handlePanic(c, logger, route)

		if err := ensureStore(c.Request.Context(), pinger); err != nil {
			respondWithError(c, logger, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		report, err := reports.WindowedSeries(c.Request.Context(), strings.ToLower(c.Param("timeRange")))
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func StoreStatusReport(reports *reporting.Aggregator, pinger store.Pinger, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/reports/store-status"
		defer handlePanic(c, logger, route)

		if err := ensureStore(c.Request.Context(), pinger); err != nil {
			respondWithError(c, logger, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		status, err := reports.StoreStatus(c.Request.Context())
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func optionalInt(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError("validation failed", field+" must be an integer")
	}
	return v, nil
}
