package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"easymanager/internal/models"
	"easymanager/internal/reporting"
	"easymanager/internal/stock"
	"easymanager/internal/store"
)

type billLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type billRequest struct {
	BillNo        string            `json:"billNo"`
	Date          *string           `json:"date"`
	Customer      string            `json:"customer"`
	Products      []billLineRequest `json:"products"`
	PaymentMethod string            `json:"paymentMethod"`
	Status        string            `json:"status"`
	UserEmail     string            `json:"userEmail"`
}

func (r billRequest) input(loc *time.Location) (stock.BillInput, error) {
	date, err := parseDate(r.Date, loc, "date")
	if err != nil {
		return stock.BillInput{}, err
	}

	lines := make([]stock.LineInput, 0, len(r.Products))
	for _, l := range r.Products {
		lines = append(lines, stock.LineInput{ProductID: l.ProductID, Quantity: l.Quantity})
	}

	return stock.BillInput{
		BillNo:        r.BillNo,
		Date:          date,
		Customer:      r.Customer,
		Products:      lines,
		PaymentMethod: r.PaymentMethod,
		Status:        r.Status,
	}, nil
}

func ListBills(ledger store.Ledger, pinger store.Pinger, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/bills"
		defer handlePanic(c, logger, route)

		if err := ensureStore(c.Request.Context(), pinger); err != nil {
			respondWithError(c, logger, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		bills, err := ledger.ListBills(c.Request.Context())
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}
		if bills == nil {
			bills = []models.Bill{}
		}

		lo, hi, err := pageBounds(c, len(bills))
		if err != nil {
			respondWithError(c, logger, http.StatusBadRequest, route, err.Error())
			return
		}
		c.JSON(http.StatusOK, bills[lo:hi])
	}
}

func CountBillsToday(reports *reporting.Aggregator, pinger store.Pinger, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/bills/count-today"
		defer handlePanic(c, logger, route)

		if err := ensureStore(c.Request.Context(), pinger); err != nil {
			respondWithError(c, logger, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		count, err := reports.BillsToday(c.Request.Context())
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

// CreateBill records a sale bill and takes its quantities out of stock. Any
// line that cannot be filled rejects the whole bill.
func CreateBill(stocks *stock.Service, loc *time.Location, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/bills"
		defer handlePanic(c, logger, route)

		var req billRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		in, err := req.input(loc)
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}

		res, err := stocks.CreateBill(c.Request.Context(), in, actingEmail(c, req.UserEmail))
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}

		body := gin.H{"message": "Bill created successfully", "bill": res.Bill}
		if len(res.LowStockAlerts) > 0 {
			body["lowStockAlerts"] = res.LowStockAlerts
		}
		c.JSON(http.StatusCreated, body)
	}
}

func UpdateBill(stocks *stock.Service, loc *time.Location, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/bills/:id"
		defer handlePanic(c, logger, route)

		var req billRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		in, err := req.input(loc)
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}

		res, err := stocks.UpdateBill(c.Request.Context(), c.Param("id"), in, actingEmail(c, req.UserEmail))
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}
		c.JSON(http.StatusOK, res.Bill)
	}
}

func DeleteBill(stocks *stock.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/bills/:id"
		defer handlePanic(c, logger, route)

		if err := stocks.DeleteBill(c.Request.Context(), c.Param("id")); err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Bill deleted successfully"})
	}
}
