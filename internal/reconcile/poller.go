package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"wordduel-zk/internal/game"
	"wordduel-zk/internal/ledger"
	"wordduel-zk/internal/metrics"
	"wordduel-zk/internal/store"
)

const (
	DefaultInterval = time.Second
	// DefaultParkedTTL bounds how long a parked game may stay unknown to the
	// ledger before it is dropped.
	DefaultParkedTTL = 10 * time.Minute
)

// Result describes one cycle.
type Result struct {
	// Skipped is set when there was nothing to poll or the store was busy.
	Skipped bool
	Changed bool
	Expired bool
	State   *store.GameState
}

// MergeHook runs after a cycle that changed the local game.
type MergeHook func(ctx context.Context, gs *store.GameState)

type Poller struct {
	Interval  time.Duration
	ParkedTTL time.Duration

	store   *store.Store
	ledger  ledger.Client
	metrics *metrics.Metrics
	log     *zap.Logger
	hooks   []MergeHook
	trigger chan struct{}
	now     func() time.Time

	mu     sync.Mutex
	latest ledger.Snapshot
}

func NewPoller(st *store.Store, lc ledger.Client, m *metrics.Metrics, log *zap.Logger) *Poller {
	if m == nil {
		m = metrics.New(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		Interval:  DefaultInterval,
		ParkedTTL: DefaultParkedTTL,
		store:     st,
		ledger:    lc,
		metrics:   m,
		log:       log.Named("poller"),
		trigger:   make(chan struct{}, 1),
		now:       time.Now,
	}
}

// OnMerged registers a hook. Not safe to call once Run has started.
func (p *Poller) OnMerged(h MergeHook) { p.hooks = append(p.hooks, h) }

// Trigger asks Run for a cycle now instead of at the next tick.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run polls until ctx is done. Ticks are ignored while there is no game that
// can still change; triggers always poll.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	p.log.Info("poller started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if !Live(p.store.Snapshot()) && p.store.Parked() == nil {
				continue
			}
		case <-p.trigger:
		}
		// errors are already counted and logged; the next cycle retries
		_, _ = p.PollOnce(ctx)
	}
}

// Live reports whether gs can still be changed by the ledger.
func Live(gs *store.GameState) bool {
	if gs == nil || gs.Expired {
		return false
	}
	switch gs.OnChainPhase {
	case game.PhaseFinalized:
		return gs.IsWinner() && !gs.EscrowWithdrawn
	case game.PhaseDraw:
		return !gs.EscrowWithdrawn
	}
	return true
}

// PollOnce runs a single cycle. A failed fetch never touches the store.
func (p *Poller) PollOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	defer func() { p.metrics.PollDuration.Observe(time.Since(start).Seconds()) }()

	p.claimParked(ctx)
	gs := p.store.Snapshot()
	if gs == nil || gs.Expired {
		p.metrics.Polls.WithLabelValues(metrics.PollSkipped).Inc()
		return Result{Skipped: true, State: gs}, nil
	}

	snap, err := p.ledger.Snapshot(ctx, gs.GameID)
	switch {
	case errors.Is(err, game.ErrGameNotFound):
		return p.expire(ctx, gs)
	case err != nil:
		p.metrics.Polls.WithLabelValues(metrics.PollError).Inc()
		p.log.Debug("poll failed", zap.String("game_id", gs.GameID), zap.Error(err))
		return Result{}, err
	}
	p.mu.Lock()
	p.latest = snap
	p.mu.Unlock()

	var merged *store.GameState
	locked, changed := p.store.TryUpdate(store.Authoritative, func(cur *store.GameState) bool {
		// the game was cleared or replaced while we were fetching
		if cur.GameID != gs.GameID {
			return false
		}
		if !Merge(cur, snap) {
			return false
		}
		merged = cur.Clone()
		return true
	})
	if !locked {
		p.metrics.Polls.WithLabelValues(metrics.PollSkipped).Inc()
		p.log.Debug("store busy, skipping cycle", zap.String("game_id", gs.GameID))
		return Result{Skipped: true}, nil
	}
	if !changed {
		p.metrics.Polls.WithLabelValues(metrics.PollUnchanged).Inc()
		return Result{State: p.store.Snapshot()}, nil
	}

	p.metrics.Polls.WithLabelValues(metrics.PollMerged).Inc()
	p.metrics.Merges.Inc()
	p.log.Debug("merged snapshot",
		zap.String("game_id", merged.GameID),
		zap.Stringer("phase", merged.OnChainPhase),
		zap.Uint32("turn", merged.OnChainTurn),
	)
	for _, h := range p.hooks {
		h(ctx, merged.Clone())
	}
	return Result{Changed: true, State: merged}, nil
}

// Latest returns the newest snapshot fetched for gameID, merged or not.
func (p *Poller) Latest(gameID string) (ledger.Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest.GameID == "" || p.latest.GameID != gameID {
		return ledger.Snapshot{}, false
	}
	return p.latest, true
}

// claimParked adopts the parked game once the ledger seats this player in it.
// It drops the record when the seat went to someone else, or when the ledger
// has not seated anyone within ParkedTTL.
func (p *Poller) claimParked(ctx context.Context) {
	pk := p.store.Parked()
	if pk == nil {
		return
	}
	log := p.log.With(zap.String("game_id", pk.GameID))
	overdue := p.now().Sub(pk.CreatedAt) > p.ParkedTTL

	snap, err := p.ledger.Snapshot(ctx, pk.GameID)
	switch {
	case errors.Is(err, game.ErrGameNotFound):
		if overdue {
			log.Warn("parked game never reached the ledger, dropping it")
			p.store.DropParked(pk.GameID)
		}
		return
	case err != nil:
		log.Debug("parked game check failed", zap.Error(err))
		return
	}

	switch seat := snap.Player(pk.MyRole); seat {
	case pk.MyAddress:
		if _, ok := p.store.Adopt(pk.GameID); ok {
			log.Info("timed-out transaction landed, game adopted")
		}
	case "":
		if overdue {
			log.Warn("parked join never landed, dropping it")
			p.store.DropParked(pk.GameID)
		}
	default:
		log.Warn("seat taken by another player, dropping parked game", zap.String("player", seat))
		p.store.DropParked(pk.GameID)
	}
}

// expire marks a game the ledger no longer knows. A record the ledger has
// never reported is still waiting for its creation to land.
func (p *Poller) expire(ctx context.Context, gs *store.GameState) (Result, error) {
	if gs.OnChainPhase == game.PhaseNone {
		p.metrics.Polls.WithLabelValues(metrics.PollUnchanged).Inc()
		return Result{State: gs}, nil
	}
	var expired *store.GameState
	locked, changed := p.store.TryUpdate(store.Authoritative, func(cur *store.GameState) bool {
		if cur.GameID != gs.GameID || cur.Expired {
			return false
		}
		cur.Expired = true
		expired = cur.Clone()
		return true
	})
	if !locked {
		p.metrics.Polls.WithLabelValues(metrics.PollSkipped).Inc()
		return Result{Skipped: true}, nil
	}
	p.metrics.Polls.WithLabelValues(metrics.PollExpired).Inc()
	if changed {
		p.log.Warn("game no longer on ledger", zap.String("game_id", gs.GameID))
		for _, h := range p.hooks {
			h(ctx, expired.Clone())
		}
	}
	return Result{Changed: changed, Expired: true, State: p.store.Snapshot()}, nil
}
