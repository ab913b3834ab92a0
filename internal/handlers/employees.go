package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"easymanager/internal/models"
	"easymanager/internal/store"
)

type employeeRequest struct {
	EmpID      string  `json:"empId" binding:"required"`
	Name       string  `json:"name" binding:"required"`
	Age        int     `json:"age" binding:"gte=0"`
	Gender     string  `json:"gender"`
	Role       string  `json:"role"`
	Department string  `json:"department"`
	Salary     float64 `json:"salary" binding:"gte=0"`
	Phone      string  `json:"phone"`
	City       string  `json:"city"`
	Shift      string  `json:"shift"`
	JoinDate   *string `json:"joinDate"`
}

func ListEmployees(staff store.Staff, pinger store.Pinger, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/employees"
		defer handlePanic(c, logger, route)

		if err := ensureStore(c.Request.Context(), pinger); err != nil {
			respondWithError(c, logger, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		employees, err := staff.ListEmployees(c.Request.Context())
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}
		if employees == nil {
			employees = []models.Employee{}
		}
		c.JSON(http.StatusOK, employees)
	}
}

func CreateEmployee(staff store.Staff, loc *time.Location, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/employees"
		defer handlePanic(c, logger, route)

		var req employeeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		joined, err := parseDate(req.JoinDate, loc, "joinDate")
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}

		now := time.Now()
		employee := models.Employee{
			EmpID:      strings.TrimSpace(req.EmpID),
			Name:       strings.TrimSpace(req.Name),
			Age:        req.Age,
			Gender:     req.Gender,
			Role:       req.Role,
			Department: req.Department,
			Salary:     req.Salary,
			Phone:      req.Phone,
			City:       req.City,
			Shift:      req.Shift,
			JoinDate:   joined,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := staff.CreateEmployee(c.Request.Context(), &employee); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				respondWithError(c, logger, http.StatusConflict, route, "Employee ID already exists")
				return
			}
			respondServiceError(c, logger, route, err, false)
			return
		}

		logger.Info("employee created", zap.String("empId", employee.EmpID))
		c.JSON(http.StatusCreated, employee)
	}
}
