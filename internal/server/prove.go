package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wordduel-zk/internal/codec"
	"wordduel-zk/internal/game"
)

func (s *Server) proveRoutes(r *gin.RouterGroup) {
	p := s.opts.Prover
	g := r.Group("/prove")

	g.POST("/guess", s.prove(func(ctx context.Context, req codec.ProveRequest) (codec.Proof, error) {
		guess, err := game.ParseWord(req.Guess)
		if err != nil {
			return codec.Proof{}, err
		}
		return p.ProveGuessResult(ctx, req.Secret, guess)
	}))
	g.POST("/reveal", s.prove(func(ctx context.Context, req codec.ProveRequest) (codec.Proof, error) {
		return p.ProveSelfReveal(ctx, req.Secret)
	}))
	g.POST("/commit", s.prove(func(ctx context.Context, req codec.ProveRequest) (codec.Proof, error) {
		return p.ProveWordCommit(ctx, req.Secret)
	}))
}

func (s *Server) prove(fn func(context.Context, codec.ProveRequest) (codec.Proof, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req codec.ProveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		proof, err := fn(c.Request.Context(), req)
		if err != nil {
			s.log.Debug("prove failed", zap.String("path", c.FullPath()), zap.Error(err))
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, proof)
	}
}
