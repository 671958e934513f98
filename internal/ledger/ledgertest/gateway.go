package ledgertest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"wordduel-zk/internal/game"
	"wordduel-zk/internal/ledger"
)

// Handler serves l over the gateway routes ledger.HTTPClient speaks, plus
// /dev routes to move the clock and mint funds.
func Handler(l *Ledger) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/games/:id", func(c *gin.Context) {
		snap, err := l.Snapshot(c.Request.Context(), c.Param("id"))
		if errors.Is(err, game.ErrGameNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	r.POST("/tx/simulate", func(c *gin.Context) {
		var tx ledger.Tx
		if err := c.ShouldBindJSON(&tx); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := l.Simulate(c.Request.Context(), tx); err != nil {
			c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	r.POST("/tx", func(c *gin.Context) {
		var stx ledger.SignedTx
		if err := c.ShouldBindJSON(&stx); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		hash, err := l.Submit(c.Request.Context(), stx)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"hash": hash})
	})

	r.GET("/tx/:hash", func(c *gin.Context) {
		res, err := l.TxStatus(c.Request.Context(), c.Param("hash"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	dev := r.Group("/dev")
	dev.POST("/advance", func(c *gin.Context) {
		secs, err := strconv.Atoi(c.Query("secs"))
		if err != nil || secs < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "secs must be a non-negative integer"})
			return
		}
		l.Advance(time.Duration(secs) * time.Second)
		c.JSON(http.StatusOK, gin.H{"now": l.Now().Unix()})
	})
	dev.POST("/mint", func(c *gin.Context) {
		var req struct {
			Address string `json:"address" binding:"required"`
			Amount  int64  `json:"amount" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		l.Mint(req.Address, req.Amount)
		c.JSON(http.StatusOK, gin.H{"balance": l.Balance(req.Address)})
	})
	dev.GET("/balance/:addr", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"balance": l.Balance(c.Param("addr"))})
	})
	dev.GET("/games", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"games": l.Games()})
	})
	return r
}
