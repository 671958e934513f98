package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"wordduel-zk/internal/engine"
	"wordduel-zk/internal/game"
	"wordduel-zk/internal/store"
)

// Engine is the action surface the local API drives.
type Engine interface {
	Address() string
	CreateGame(ctx context.Context, word string, escrow int64) (*store.GameState, error)
	JoinGame(ctx context.Context, gameID, word string) (*store.GameState, error)
	SubmitTurn(ctx context.Context, guess string) (*store.GameState, error)
	VerifyOnly(ctx context.Context) (*store.GameState, error)
	Reveal(ctx context.Context) (*store.GameState, error)
	RevealDraw(ctx context.Context) (*store.GameState, error)
	ClaimTimeout(ctx context.Context) (*store.GameState, error)
	Withdraw(ctx context.Context) (*store.GameState, error)
	Resign(ctx context.Context) (*store.GameState, error)
	Abandon(ctx context.Context) error
	SetInput(text string) (*store.GameState, error)
	Status() (*store.GameState, error)
	History() []store.HistoryEntry
}

// Events streams committed store changes.
type Events interface {
	Subscribe() (<-chan store.Event, func())
}

type Options struct {
	// Engine and Events enable the game routes.
	Engine Engine
	Events Events
	// Prover enables the proof backend routes.
	Prover engine.ProofBackend
	// Gatherer enables /metrics.
	Gatherer prometheus.Gatherer

	AllowOrigins []string
	Log          *zap.Logger
}

type Server struct {
	opts     Options
	log      *zap.Logger
	upgrader websocket.Upgrader
	startAt  int64
}

func New(o Options) *Server {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	s := &Server{
		opts:    o,
		log:     o.Log.Named("http"),
		startAt: time.Now().UnixMilli(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))
	r.Use(cors.New(s.corsConfig()))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "startedAt": s.startAt})
	})
	if s.opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	if s.opts.Engine != nil {
		s.gameRoutes(v1)
	}
	if s.opts.Prover != nil {
		s.proveRoutes(v1)
	}
	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.opts.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.opts.AllowOrigins
	}
	return cfg
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range s.opts.AllowOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Codespace string `json:"codespace,omitempty"`
	Code      uint32 `json:"code,omitempty"`
}

// writeError maps an error kind to its HTTP status.
func writeError(c *gin.Context, err error) {
	body := errorBody{Error: err.Error()}
	if space, code, _ := errorsmod.ABCIInfo(err, false); space == game.Codespace {
		body.Codespace, body.Code = space, code
	}
	c.JSON(statusOf(err), body)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, game.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, game.ErrGameExpired):
		return http.StatusGone
	case errors.Is(err, game.ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrInvalidWord), errors.Is(err, game.ErrNotInDictionary),
		errors.Is(err, game.ErrInvalidAmount):
		return http.StatusBadRequest
	case game.IsValidation(err):
		return http.StatusConflict
	case errors.Is(err, game.ErrProofFailed):
		return http.StatusUnprocessableEntity
	case game.IsTransactionFailure(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
}
