package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"easymanager/internal/identity"
	"easymanager/internal/models"
	"easymanager/internal/store"
)

type GoogleVerifier interface {
	Verify(ctx context.Context, credential string) (identity.GoogleIdentity, error)
}

type googleLoginRequest struct {
	Credential string `json:"credential" binding:"required"`
}

// GoogleLogin signs a user in with a Google ID token, creating an employee
// account on first sight of the address. A nil verifier disables the route.
func GoogleLogin(verifier GoogleVerifier, accounts store.Accounts, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/google"
		defer handlePanic(c, logger, route)

		if verifier == nil {
			respondWithError(c, logger, http.StatusServiceUnavailable, route, "Google sign-in is not configured")
			return
		}

		var req googleLoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx := c.Request.Context()
		who, err := verifier.Verify(ctx, req.Credential)
		if errors.Is(err, identity.ErrKeysUnavailable) {
			logger.Error("google keys unavailable", zap.Error(err))
			respondWithError(c, logger, http.StatusServiceUnavailable, route, "Google sign-in is temporarily unavailable")
			return
		}
		if err != nil {
			logger.Debug("google credential rejected", zap.Error(err))
			respondWithError(c, logger, http.StatusUnauthorized, route, "Invalid Google credential")
			return
		}

		now := time.Now()
		user, err := accounts.FindUserByEmail(ctx, who.Email)
		switch {
		case errors.Is(err, store.ErrNotFound):
			user, err = createGoogleUser(ctx, accounts, who, now)
			if errors.Is(err, store.ErrDuplicateKey) {
				respondWithError(c, logger, http.StatusConflict, route, "User already exists")
				return
			}
			if err != nil {
				respondServiceError(c, logger, route, err, false)
				return
			}
			logger.Info("user registered with google", zap.String("email", user.Email))
		case err != nil:
			respondServiceError(c, logger, route, err, false)
			return
		default:
			if !user.IsActive {
				respondWithError(c, logger, http.StatusForbidden, route, "Account is disabled")
				return
			}
			if user.GoogleID != who.Subject || (who.Picture != "" && user.Picture != who.Picture) {
				if err := accounts.LinkGoogle(ctx, user.ID, who.Subject, who.Picture, now); err != nil {
					respondServiceError(c, logger, route, err, false)
					return
				}
				user.GoogleID = who.Subject
				if who.Picture != "" {
					user.Picture = who.Picture
				}
			}
		}

		if err := accounts.TouchLastLogin(ctx, user.ID, now); err != nil {
			logger.Warn("recording last login failed", zap.String("email", user.Email), zap.Error(err))
		} else {
			user.LastLogin = &now
		}

		token, err := issueUserToken(user, jwtSecret, accessTTL)
		if err != nil {
			respondWithError(c, logger, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		logger.Info("user logged in with google", zap.String("email", user.Email))
		c.JSON(http.StatusOK, gin.H{"success": true, "token": token, "user": user})
	}
}

// createGoogleUser names the account after the address's local part and
// falls back to a subject suffix when that username is taken.
func createGoogleUser(ctx context.Context, accounts store.Accounts, who identity.GoogleIdentity, now time.Time) (models.User, error) {
	base := who.Email
	if at := strings.IndexByte(base, '@'); at > 0 {
		base = base[:at]
	}
	first, last := splitName(who.Name)

	user := models.User{
		Username:   base,
		Email:      who.Email,
		FirstName:  first,
		LastName:   last,
		Role:       models.RoleEmployee,
		IsActive:   true,
		AuthMethod: models.AuthGoogle,
		GoogleID:   who.Subject,
		Picture:    who.Picture,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := accounts.CreateUser(ctx, &user)
	if errors.Is(err, store.ErrDuplicateKey) {
		user.Username = base + "-" + lastChars(who.Subject, 6)
		err = accounts.CreateUser(ctx, &user)
	}
	return user, err
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func lastChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
