package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Heartbeat records the caller as active now.
func (a *API) Heartbeat(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	if err := a.Presence.Heartbeat(identity); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ActiveCount is a public, unauthenticated read of how many participants are
// currently active.
func (a *API) ActiveCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active": a.Presence.ActiveCount()})
}

// Purge sweeps presence records older than the purge window. Admin only.
func (a *API) Purge(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	purged, err := a.Presence.PurgeInactive(identity)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": purged})
}
