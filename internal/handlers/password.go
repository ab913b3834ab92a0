package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"easymanager/internal/store"
)

const resetPurpose = "password-reset"

// AccountMailer sends the account mails that callers wait on.
type AccountMailer interface {
	SendCredentials(ctx context.Context, to, username, password string) error
	SendPasswordReset(ctx context.Context, to, username, link string, expiry time.Duration) error
}

// PasswordReset configures reset links. Secret signs the reset tokens and is
// kept apart from the session key so a reset token never authenticates.
type PasswordReset struct {
	Secret string
	URL    string
	TTL    time.Duration
}

func (p PasswordReset) signingKey() []byte {
	return []byte(p.Secret + "|" + resetPurpose)
}

type resetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

type sendCredentialsRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RequestPasswordReset mails a single-use reset link to a known account.
func RequestPasswordReset(accounts store.Accounts, mailer AccountMailer, cfg PasswordReset, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/reset-password-request"
		defer handlePanic(c, logger, route)

		var req resetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		user, err := accounts.FindUserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(c, logger, http.StatusNotFound, route, "User not found")
			return
		}
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}

		token, err := issueResetToken(cfg, user.ID, user.PasswordHash, time.Now())
		if err != nil {
			respondWithError(c, logger, http.StatusInternalServerError, route, "token generation failed")
			return
		}
		link, err := resetLink(cfg.URL, token)
		if err != nil {
			respondWithError(c, logger, http.StatusInternalServerError, route, "invalid reset link configuration")
			return
		}

		if err := mailer.SendPasswordReset(c.Request.Context(), user.Email, user.Username, link, cfg.TTL); err != nil {
			logger.Error("password reset mail failed", zap.String("email", user.Email), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"message": "Failed to process password reset request",
				"error":   err.Error(),
			})
			return
		}

		logger.Info("password reset requested", zap.String("email", user.Email))
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password reset instructions sent to your email"})
	}
}

// ResetPassword sets a new password for the holder of a valid reset token.
// The token dies with the password it was issued against.
func ResetPassword(accounts store.Accounts, cfg PasswordReset, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/reset-password"
		defer handlePanic(c, logger, route)

		var req resetPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		claims, err := parseResetToken(cfg, req.Token)
		if err != nil {
			logger.Debug("reset token rejected", zap.Error(err))
			respondWithError(c, logger, http.StatusBadRequest, route, "Invalid or expired reset token")
			return
		}
		userID, err := primitive.ObjectIDFromHex(claims.Subject)
		if err != nil {
			respondWithError(c, logger, http.StatusBadRequest, route, "Invalid or expired reset token")
			return
		}

		user, err := accounts.GetUser(c.Request.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(c, logger, http.StatusBadRequest, route, "Invalid or expired reset token")
			return
		}
		if err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}
		if claims.Fingerprint != passwordFingerprint(user.PasswordHash) {
			respondWithError(c, logger, http.StatusBadRequest, route, "Invalid or expired reset token")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			respondWithError(c, logger, http.StatusInternalServerError, route, "password hashing failed")
			return
		}
		if err := accounts.SetPassword(c.Request.Context(), user.ID, string(hash), time.Now()); err != nil {
			respondServiceError(c, logger, route, err, false)
			return
		}

		logger.Info("password reset", zap.String("email", user.Email))
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password has been reset"})
	}
}

// SendCredentials mails login details to a newly created employee.
func SendCredentials(mailer AccountMailer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/send-credentials"
		defer handlePanic(c, logger, route)

		var req sendCredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		if err := mailer.SendCredentials(c.Request.Context(), req.Email, req.Username, req.Password); err != nil {
			logger.Error("credentials mail failed", zap.String("email", req.Email), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"message": "Failed to send login credentials",
				"error":   err.Error(),
			})
			return
		}

		logger.Info("credentials sent", zap.String("email", req.Email), zap.String("by", actingEmail(c, "")))
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Login credentials sent successfully"})
	}
}

type resetClaims struct {
	Purpose     string `json:"purpose"`
	Fingerprint string `json:"pwd"`
	jwt.RegisteredClaims
}

func issueResetToken(cfg PasswordReset, userID primitive.ObjectID, passwordHash string, now time.Time) (string, error) {
	claims := resetClaims{
		Purpose:     resetPurpose,
		Fingerprint: passwordFingerprint(passwordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.signingKey())
}

func parseResetToken(cfg PasswordReset, raw string) (*resetClaims, error) {
	claims := &resetClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.signingKey(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Purpose != resetPurpose {
		return nil, fmt.Errorf("token purpose %q", claims.Purpose)
	}
	return claims, nil
}

// passwordFingerprint ties a reset token to the hash it was issued against.
func passwordFingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}

func resetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
