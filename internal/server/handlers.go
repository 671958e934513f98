package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"wordduel-zk/internal/game"
	"wordduel-zk/internal/store"
)

// gameView is the game as the UI sees it. The salt stays in the process.
type gameView struct {
	*store.GameState
	SecretSalt string `json:"secretSalt,omitempty"`
	IsMyTurn   bool   `json:"isMyTurn"`
	TurnKind   string `json:"turnKind,omitempty"`
}

func viewOf(gs *store.GameState) *gameView {
	if gs == nil {
		return nil
	}
	v := &gameView{GameState: gs, IsMyTurn: gs.OnChainPhase == game.PhaseActive && gs.IsMyTurn()}
	if gs.OnChainPhase == game.PhaseActive {
		v.TurnKind = game.TurnKind(gs.OnChainTurn).String()
	}
	return v
}

type statusResponse struct {
	Address string    `json:"address"`
	Game    *gameView `json:"game"`
}

type createReq struct {
	Word   string `json:"word"`
	Escrow int64  `json:"escrow"`
}

type joinReq struct {
	GameID string `json:"gameId"`
	Word   string `json:"word"`
}

type guessReq struct {
	Guess string `json:"guess"`
}

type inputReq struct {
	Text string `json:"text"`
}

func (s *Server) gameRoutes(r *gin.RouterGroup) {
	e := s.opts.Engine

	r.GET("/status", s.handleStatus)
	r.GET("/history", func(c *gin.Context) {
		h := e.History()
		if h == nil {
			h = []store.HistoryEntry{}
		}
		c.JSON(http.StatusOK, h)
	})
	if s.opts.Events != nil {
		r.GET("/ws", s.handleWS)
	}

	r.POST("/create", func(c *gin.Context) {
		var req createReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		s.respond(c, func(ctx context.Context) (*store.GameState, error) {
			return e.CreateGame(ctx, req.Word, req.Escrow)
		})
	})
	r.POST("/join", func(c *gin.Context) {
		var req joinReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		s.respond(c, func(ctx context.Context) (*store.GameState, error) {
			return e.JoinGame(ctx, req.GameID, req.Word)
		})
	})
	r.POST("/guess", func(c *gin.Context) {
		var req guessReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		s.respond(c, func(ctx context.Context) (*store.GameState, error) {
			return e.SubmitTurn(ctx, req.Guess)
		})
	})
	r.POST("/input", func(c *gin.Context) {
		var req inputReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		s.respond(c, func(context.Context) (*store.GameState, error) {
			return e.SetInput(req.Text)
		})
	})

	r.POST("/verify", s.action(e.VerifyOnly))
	r.POST("/reveal", s.action(e.Reveal))
	r.POST("/reveal-draw", s.action(e.RevealDraw))
	r.POST("/claim-timeout", s.action(e.ClaimTimeout))
	r.POST("/withdraw", s.action(e.Withdraw))
	r.POST("/resign", s.action(e.Resign))

	r.DELETE("/game", func(c *gin.Context) {
		if err := e.Abandon(c.Request.Context()); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := statusResponse{Address: s.opts.Engine.Address()}
	gs, err := s.opts.Engine.Status()
	if err == nil {
		resp.Game = viewOf(gs)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) action(fn func(context.Context) (*store.GameState, error)) gin.HandlerFunc {
	return func(c *gin.Context) { s.respond(c, fn) }
}

func (s *Server) respond(c *gin.Context, fn func(context.Context) (*store.GameState, error)) {
	gs, err := fn(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(gs))
}
