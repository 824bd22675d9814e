package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type peerRequest struct {
	Peer string `json:"peer" binding:"required"`
}

// Join puts the caller into the waiting pool.
func (a *API) Join(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	if err := a.Match.Join(identity); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "waiting"})
}

// Leave flips the caller's pool entry inactive.
func (a *API) Leave(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	if err := a.Match.Leave(identity); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

// PoolStatus reports whether the caller is waiting in the pool.
func (a *API) PoolStatus(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"inPool": a.Match.IsInPool(identity)})
}

// FindPeer returns an eligible peer, or a null peer when nobody qualifies.
// An empty pool is a normal result, not an error.
func (a *API) FindPeer(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	peer, err := a.Match.FindPeer(identity)
	if err != nil {
		fail(c, err)
		return
	}
	if peer == "" {
		c.JSON(http.StatusOK, gin.H{"peer": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"peer": peer})
}

// Pair matches the caller with the requested peer.
func (a *API) Pair(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	var req peerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key, err := a.Match.Pair(identity, req.Peer)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pairingKey": key})
}

// NextPeer skips the current match and scans for a new one.
func (a *API) NextPeer(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	peer, err := a.Match.NextPeer(identity)
	if err != nil {
		fail(c, err)
		return
	}
	if peer == "" {
		c.JSON(http.StatusOK, gin.H{"peer": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"peer": peer})
}

// Terminate ends the relationship with peer and clears its relay state.
func (a *API) Terminate(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		return
	}
	var req peerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.Match.Terminate(identity, req.Peer); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "terminated"})
}
