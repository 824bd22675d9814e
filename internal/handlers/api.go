package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/voice-match/internal/matchmaking"
	"github.com/mossy-p/voice-match/internal/middleware"
	"github.com/mossy-p/voice-match/internal/models"
	"github.com/mossy-p/voice-match/internal/presence"
	"github.com/mossy-p/voice-match/internal/signaling"
	"github.com/mossy-p/voice-match/internal/syncstate"
)

// Onboarder is the write side of the profile collaborator, used only by the
// demo login to flag onboarding complete.
type Onboarder interface {
	SetOnboarded(identity string, done bool) error
}

// API binds the core operations to HTTP.
type API struct {
	JWTSecret string
	Presence  *presence.Tracker
	Match     *matchmaking.Manager
	Signals   *signaling.Store
	Syncs     *syncstate.Store
	Profiles  Onboarder
}

func identityFrom(c *gin.Context) (string, bool) {
	id, exists := c.Get(middleware.ContextIdentity)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return "", false
	}
	return id.(string), true
}

// fail maps the core error taxonomy onto HTTP. Precondition failures carry a
// machine-readable code so clients can prompt the right remediation.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": "unauthorized"})
	case errors.Is(err, models.ErrNotOnboarded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "not_onboarded"})
	case errors.Is(err, models.ErrNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "not_active"})
	case errors.Is(err, models.ErrNotInPool):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "not_in_pool"})
	case errors.Is(err, models.ErrInvalidPeer):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": "invalid_peer"})
	case errors.Is(err, models.ErrNoOfferFound):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "no_offer_found"})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "not_found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
