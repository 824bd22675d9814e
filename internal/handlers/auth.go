package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/voice-match/internal/middleware"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token    string `json:"token"`
	Identity string `json:"identity"`
}

// Login issues a participant identity token and flags onboarding complete.
// For demo purposes, accepts any username/password combination; production
// deployments front this with the real identity provider.
func (a *API) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	// The identity is opaque and unforgeable: a random UUID bound into a
	// signed token, never derived from user input.
	identity := uuid.New().String()

	claims := middleware.IdentityClaims{
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(a.JWTSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate token",
		})
		return
	}

	if err := a.Profiles.SetOnboarded(identity, true); err != nil {
		logrus.WithError(err).Error("failed to flag onboarding")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create profile",
		})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:    tokenString,
		Identity: identity,
	})
}
