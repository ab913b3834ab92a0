package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"easymanager/internal/apperrors"
	"easymanager/internal/catalog"
	"easymanager/internal/models"
	"easymanager/internal/reporting"
	"easymanager/internal/stock"
	"easymanager/internal/store"
)

type productRequest struct {
	ProductID         *string           `json:"productId"`
	Name              *string           `json:"name"`
	Description       *string           `json:"description"`
	Category          *string           `json:"category"`
	Price             *float64          `json:"price"`
	CostPrice         *float64          `json:"costPrice"`
	Stock             *int              `json:"stock"`
	LowStockThreshold *int              `json:"lowStockThreshold"`
	Supplier          *string           `json:"supplier"`
	BatchNumber       *string           `json:"batchNumber"`
	ManufacturingDate *string           `json:"manufacturingDate"`
	ShelfLife         *models.ShelfLife `json:"shelfLife"`
	ExpirationDate    *string           `json:"expirationDate"`
	IsPerishable      *bool             `json:"isPerishable"`
	IsActive          *bool             `json:"isActive"`
	UserEmail         string            `json:"userEmail"`
}

func (r productRequest) input(loc *time.Location) (catalog.ProductInput, error) {
	manufactured, err := parseDate(r.ManufacturingDate, loc, "manufacturingDate")
	if err != nil {
		return catalog.ProductInput{}, err
	}
	expires, err := parseDate(r.ExpirationDate, loc, "expirationDate")
	if err != nil {
		return catalog.ProductInput{}, err
	}

	return catalog.ProductInput{
		ProductID:         r.ProductID,
		Name:              r.Name,
		Description:       r.Description,
		Category:          r.Category,
		Price:             r.Price,
		CostPrice:         r.CostPrice,
		Stock:             r.Stock,
		LowStockThreshold: r.LowStockThreshold,
		Supplier:          r.Supplier,
		BatchNumber:       r.BatchNumber,
		ManufacturingDate: manufactured,
		ShelfLife:         r.ShelfLife,
		ExpirationDate:    expires,
		IsPerishable:      r.IsPerishable,
		IsActive:          r.IsActive,
	}, nil
}

type expirationRequest struct {
	ManufacturingDate *string           `json:"manufacturingDate"`
	ShelfLife         *models.ShelfLife `json:"shelfLife"`
	BatchNumber       *string           `json:"batchNumber"`
	IsPerishable      *bool             `json:"isPerishable"`
}

type stockRequest struct {
	Quantity  *int   `json:"quantity" binding:"required"`
	Operation string `json:"operation"`
	UserEmail string `json:"userEmail"`
}

// ListProducts returns every product with the week-over-week count trend.
func ListProducts(products *catalog.Service, reports *reporting.Aggregator, pinger store.Pinger, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products"
		defer handlePanic(c, logger, route)

		if err := ensureStore(c.Request.Context(), pinger); err != nil {
			respondWithError(c, logger, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		list, err := products.List(c.Request.Context())
		if err != nil {
			respondServiceError(c, logger, route, err, true)
			return
		}

		summary, err := reports.ProductTrend(c.Request.Context())
		if err != nil {
			respondServiceError(c, logger, route, err, true)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"products": list,
			"count":    summary.Count,
			"trend":    summary.Trend,
		})
	}
}

func GetProduct(products *catalog.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/:id"
		defer handlePanic(c, logger, route)

		p, err := products.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondServiceError(c, logger, route, err, true)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func CreateProduct(products *catalog.Service, loc *time.Location, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/products"
		defer handlePanic(c, logger, route)

		var req productRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		in, err := req.input(loc)
		if err != nil {
			respondServiceError(c, logger, route, err, true)
			return
		}

		p, err := products.Create(c.Request.Context(), in, actingEmail(c, req.UserEmail))
		if err != nil {
			respondServiceError(c, logger, route, err, true)
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

func UpdateProduct(products *catalog.Service, loc *time.Location, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/products/:id"
		defer handlePanic(c, logger, route)

		var req productRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		in, err := req.input(loc)
		if err != nil {
			respondServiceError(c, logger, route, err, true)
			return
		}

		p, err := products.Update(c.Request.Context(), c.Param("id"), in, actingEmail(c, req.UserEmail))
		if err != nil {
			respondServiceError(c, logger, route, err, true)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Product updated successfully", "product": p})
	}
}

func UpdateProductExpiration(products *catalog.Service, loc *time.Location, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /api/products/:id/expiration"
		defer handlePanic(c, logger, route)

		var req expirationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		manufactured, err := parseDate(req.ManufacturingDate, loc, "manufacturingDate")
		if err != nil {
			respondServiceError(c, logger, route, err, true)
			return
		}

		p, err := products.UpdateExpiration(c.Request.Context(), c.Param("id"), catalog.ExpirationInput{
			ManufacturingDate: manufactured,
			ShelfLife:         req.ShelfLife,
			BatchNumber:       req.BatchNumber,
			IsPerishable:      req.IsPerishable,
		})
		if err != nil {
			respondServiceError(c, logger, route, err, true)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// UpdateProductStock applies an increase, decrease or set to one product.
// Omitting the operation means decrease.
func UpdateProductStock(stocks *stock.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/products/:id/stock"
		defer handlePanic(c, logger, route)

		var req stockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		operation := strings.ToLower(strings.TrimSpace(req.Operation))
		res, err := stocks.SetStock(c.Request.Context(), c.Param("id"), *req.Quantity, operation, actingEmail(c, req.UserEmail))
		if err != nil {
			respondServiceError(c, logger, route, err, true)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":  "Stock updated successfully",
			"oldStock": res.OldStock,
			"newStock": res.NewStock,
			"product":  res.Product,
		})
	}
}

func DeleteProduct(products *catalog.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/products/:id"
		defer handlePanic(c, logger, route)

		if err := products.Delete(c.Request.Context(), c.Param("id")); err != nil {
			respondServiceError(c, logger, route, err, true)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
	}
}

func LowStockProducts(products *catalog.Service, pinger store.Pinger, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/low-stock"
		defer handlePanic(c, logger, route)

		if err := ensureStore(c.Request.Context(), pinger); err != nil {
			respondWithError(c, logger, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		list, err := products.LowStock(c.Request.Context())
		if err != nil {
			respondServiceError(c, logger, route, err, true)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// NearlyExpiredProducts lists products expiring within ?days= (default 30)
// and mails the list to the admin.
func NearlyExpiredProducts(products *catalog.Service, pinger store.Pinger, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/nearly-expired"
		defer handlePanic(c, logger, route)

		days := catalog.DefaultNearlyExpiredDays
		if raw := strings.TrimSpace(c.Query("days")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				respondServiceError(c, logger, route, apperrors.NewValidationError("validation failed", "days must be a positive integer"), true)
				return
			}
			days = parsed
		}

		if err := ensureStore(c.Request.Context(), pinger); err != nil {
			respondWithError(c, logger, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		list, err := products.NearlyExpired(c.Request.Context(), days)
		if err != nil {
			respondServiceError(c, logger, route, err, true)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func ExpiredProducts(products *catalog.Service, pinger store.Pinger, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/expired"
		defer handlePanic(c, logger, route)

		if err := ensureStore(c.Request.Context(), pinger); err != nil {
			respondWithError(c, logger, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		list, err := products.Expired(c.Request.Context())
		if err != nil {
			respondServiceError(c, logger, route, err, true)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}
