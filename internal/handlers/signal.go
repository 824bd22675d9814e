package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type payloadRequest struct {
	Payload string `json:"payload" binding:"required"`
}

// CreateOffer stores a fresh offer for the caller/peer session, replacing
// any prior session for the pair.
func (a *API) CreateOffer(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	var req payloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.Signals.CreateOffer(identity, c.Param("peer"), req.Payload); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "ok"})
}

// SendAnswer stores the caller's answer to an existing offer.
func (a *API) SendAnswer(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	var req payloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.Signals.SendAnswer(identity, c.Param("peer"), req.Payload); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ExchangeCandidate appends an ICE candidate to the session.
func (a *API) ExchangeCandidate(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	var req payloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.Signals.ExchangeCandidate(identity, c.Param("peer"), req.Payload); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SignalingState returns the pair's session; a null session means nothing
// has been written yet, which is a normal result the client branches on.
func (a *API) SignalingState(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	session, err := a.Signals.State(identity, c.Param("peer"))
	if err != nil {
		fail(c, err)
		return
	}
	if session == nil {
		c.JSON(http.StatusOK, gin.H{"session": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// CleanupSignaling deletes the pair's session. Idempotent.
func (a *API) CleanupSignaling(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	if err := a.Signals.Cleanup(identity, c.Param("peer")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
