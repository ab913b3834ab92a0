package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"easymanager/internal/apperrors"
	"easymanager/internal/middleware"
	"easymanager/internal/models"
	"easymanager/internal/stock"
	"easymanager/internal/store"
)

const storeCheckTimeout = 2 * time.Second

func handlePanic(c *gin.Context, logger *zap.Logger, route string) {
	if r := recover(); r != nil {
		logger.Error("panic recovered", zap.String("route", route), zap.Any("panic", r))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}
}

// ensureStore fails fast when the database cannot be reached, so read paths
// answer 503 instead of waiting on a query timeout.
func ensureStore(ctx context.Context, pinger store.Pinger) error {
	checkCtx, cancel := context.WithTimeout(ctx, storeCheckTimeout)
	defer cancel()

	return pinger.Ping(checkCtx)
}

func respondWithError(c *gin.Context, logger *zap.Logger, status int, route string, message string) {
	logger.Warn("returning error",
		zap.String("route", route),
		zap.Int("status", status),
		zap.String("message", message),
		zap.String(middleware.TraceIDKey, c.GetString(middleware.TraceIDKey)),
	)
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

// respondServiceError maps service errors to responses. productRoute selects
// 404 for a missing product; on bill paths a missing product is a bad request.
func respondServiceError(c *gin.Context, logger *zap.Logger, route string, err error, productRoute bool) {
	if verr, ok := apperrors.IsValidationError(err); ok {
		body := gin.H{"message": verr.Message}
		if len(verr.Details) > 0 {
			body["details"] = verr.Details
		}
		logger.Warn("validation failed", zap.String("route", route), zap.Strings("details", verr.Details))
		c.AbortWithStatusJSON(http.StatusBadRequest, body)
		return
	}

	if ierr, ok := stock.IsInsufficientStock(err); ok {
		logger.Warn("insufficient stock", zap.String("route", route), zap.String("productId", ierr.ProductID))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"message":   ierr.Error(),
			"productId": ierr.ProductID,
			"available": ierr.Available,
			"requested": ierr.Requested,
		})
		return
	}

	if perr, ok := stock.IsProductNotFound(err); ok {
		status := http.StatusBadRequest
		if productRoute {
			status = http.StatusNotFound
		}
		logger.Warn("product not found", zap.String("route", route), zap.String("productId", perr.ProductID))
		c.AbortWithStatusJSON(status, gin.H{"message": perr.Error(), "productId": perr.ProductID})
		return
	}

	if nerr, ok := apperrors.IsNotFoundError(err); ok {
		respondWithError(c, logger, http.StatusNotFound, route, nerr.Message)
		return
	}
	if errors.Is(err, stock.ErrBillNotFound) {
		respondWithError(c, logger, http.StatusNotFound, route, "Bill not found")
		return
	}
	if cerr, ok := apperrors.IsConflictError(err); ok {
		respondWithError(c, logger, http.StatusConflict, route, cerr.Message)
		return
	}

	logger.Error("request failed", zap.String("route", route), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
}

func respondValidationError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			field := lowerCamel(fieldError.Field())
			switch fieldError.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			case "email":
				details = append(details, fmt.Sprintf("%s must be a valid email", field))
			case "min":
				details = append(details, fmt.Sprintf("%s must be at least %s", field, fieldError.Param()))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"message": "validation failed",
			"details": details,
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid body", "details": []string{err.Error()}})
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// actingEmail prefers the token's email claim over one sent in the body.
func actingEmail(c *gin.Context, bodyEmail string) string {
	if email := middleware.Email(c); email != "" {
		return email
	}
	return strings.TrimSpace(bodyEmail)
}

// parseDate accepts a calendar day, read in loc, or an RFC 3339 instant.
func parseDate(raw *string, loc *time.Location, field string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)

	if t, err := time.ParseInLocation(models.DayLayout, value, loc); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return &t, nil
	}
	return nil, apperrors.NewValidationError("validation failed", fmt.Sprintf("%s must be a date (YYYY-MM-DD or RFC 3339)", field))
}
