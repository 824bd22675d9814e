package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/voice-match/internal/models"
)

// SetSyncState overwrites the pair's shared playback document. Ordering is
// the writers' business (see syncstate.Watermark); the store keeps whatever
// arrived last.
func (a *API) SetSyncState(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	var state models.SyncState
	if err := c.ShouldBindJSON(&state); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.Syncs.SetState(identity, c.Param("peer"), state); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetSyncState returns the pair's document, or null when none exists.
func (a *API) GetSyncState(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	state, err := a.Syncs.GetState(identity, c.Param("peer"))
	if err != nil {
		fail(c, err)
		return
	}
	if state == nil {
		c.JSON(http.StatusOK, gin.H{"state": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

// CleanupSync deletes the pair's document. Idempotent.
func (a *API) CleanupSync(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	if err := a.Syncs.Cleanup(identity, c.Param("peer")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
