package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"easymanager/internal/middleware"
	"easymanager/internal/models"
	"easymanager/internal/store"
)

type RegisterRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func Register(accounts store.Accounts, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/register"
		defer handlePanic(c, logger, route)

		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		role := strings.ToLower(strings.TrimSpace(req.Role))
		if role == "" {
			role = models.RoleEmployee
		}
		if !models.ValidRole(role) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"message": "validation failed",
				"details": []string{"role must be one of admin, manager, employee"},
			})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			respondWithError(c, logger, http.StatusInternalServerError, route, "password hashing failed")
			return
		}

		now := time.Now()
		user := models.User{
			Username:     strings.TrimSpace(req.Username),
			Email:        strings.ToLower(strings.TrimSpace(req.Email)),
			PasswordHash: string(hash),
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
			Role:         role,
			IsActive:     true,
			AuthMethod:   models.AuthPassword,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := accounts.CreateUser(c.Request.Context(), &user); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				respondWithError(c, logger, http.StatusConflict, route, "User already exists")
				return
			}
			respondServiceError(c, logger, route, err, false)
			return
		}

		token, err := issueUserToken(user, jwtSecret, accessTTL)
		if err != nil {
			respondWithError(c, logger, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		logger.Info("user registered", zap.String("email", user.Email), zap.String("role", user.Role))
		c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
	}
}

func Login(accounts store.Accounts, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/login"
		defer handlePanic(c, logger, route)

		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))
		user, err := accounts.FindUserByEmail(c.Request.Context(), email)
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(c, logger, http.StatusUnauthorized, route, "Invalid credentials")
			return
		}
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			respondWithError(c, logger, http.StatusUnauthorized, route, "Invalid credentials")
			return
		}
		if !user.IsActive {
			respondWithError(c, logger, http.StatusForbidden, route, "Account is disabled")
			return
		}

		now := time.Now()
		if err := accounts.TouchLastLogin(c.Request.Context(), user.ID, now); err != nil {
			logger.Warn("recording last login failed", zap.String("email", user.Email), zap.Error(err))
		} else {
			user.LastLogin = &now
		}

		token, err := issueUserToken(user, jwtSecret, accessTTL)
		if err != nil {
			respondWithError(c, logger, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		logger.Info("user logged in", zap.String("email", user.Email))
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

// GetMe returns the account behind the bearer token.
func GetMe(accounts store.Accounts, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/auth/me"
		defer handlePanic(c, logger, route)

		userID, err := primitive.ObjectIDFromHex(c.GetString(middleware.UserIDKey))
		if err != nil {
			respondWithError(c, logger, http.StatusUnauthorized, route, "Token is not valid")
			return
		}

		user, err := accounts.GetUser(c.Request.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(c, logger, http.StatusNotFound, route, "User not found")
			return
		}
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func issueUserToken(user models.User, secret string, accessTTL time.Duration) (string, error) {
	claims := jwt.MapClaims{
		middleware.UserIDKey: user.ID.Hex(),
		middleware.EmailKey:  user.Email,
		middleware.RoleKey:   user.Role,
		"exp":                time.Now().Add(accessTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
