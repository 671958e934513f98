// Package engine runs the player's protocol actions against the ledger.
//
// Every action goes through the same three steps. prepare validates against
// the local record and does the slow off-ledger work (membership lookup,
// proofs) without touching the store. commitLocal applies the optimistic
// change and keeps the state it replaced. submit sends the transaction; if it
// fails the replaced state is put back, so a failed action leaves the store as
// if nothing had happened.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	errorsmod "cosmossdk.io/errors"
	"go.uber.org/zap"

	"wordduel-zk/internal/codec"
	"wordduel-zk/internal/game"
	"wordduel-zk/internal/ledger"
	"wordduel-zk/internal/merkle"
	"wordduel-zk/internal/metrics"
	"wordduel-zk/internal/reconcile"
	"wordduel-zk/internal/session"
	"wordduel-zk/internal/store"
)

// ProofBackend produces the zero-knowledge proofs an action needs.
type ProofBackend interface {
	ProveGuessResult(ctx context.Context, secret codec.Secret, guess game.Word) (codec.Proof, error)
	ProveSelfReveal(ctx context.Context, secret codec.Secret) (codec.Proof, error)
	ProveWordCommit(ctx context.Context, secret codec.Secret) (codec.Proof, error)
}

// Reconciler runs one reconciliation cycle and remembers the newest snapshot
// it fetched.
type Reconciler interface {
	PollOnce(ctx context.Context) (reconcile.Result, error)
	Latest(gameID string) (ledger.Snapshot, bool)
}

type Options struct {
	Store  *store.Store
	Ledger ledger.Client
	Sender *ledger.Sender
	Wallet ledger.Signer
	Prover ProofBackend
	// Guesses is the dictionary guesses are proven against on the ledger.
	Guesses *merkle.Dictionary
	Poller  Reconciler

	// Sessions, when set together with UseSessionKey, moves per-turn signing
	// to a delegated key funded with SessionFund.
	Sessions      *session.Manager
	UseSessionKey bool
	SessionFund   int64

	Metrics *metrics.Metrics
	Log     *zap.Logger
}

type Engine struct {
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	busy      atomic.Bool
	reclaimMu sync.Mutex
}

func New(o Options) (*Engine, error) {
	switch {
	case o.Store == nil:
		return nil, errors.New("engine: store required")
	case o.Ledger == nil || o.Sender == nil:
		return nil, errors.New("engine: ledger client and sender required")
	case o.Wallet == nil:
		return nil, errors.New("engine: wallet signer required")
	case o.Prover == nil:
		return nil, errors.New("engine: proof backend required")
	case o.Guesses == nil:
		return nil, errors.New("engine: guess dictionary required")
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New(nil)
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	return &Engine{
		opts:    o,
		log:     o.Log.Named("engine"),
		metrics: o.Metrics,
		now:     time.Now,
	}, nil
}

// Address is the wallet address the engine plays as.
func (e *Engine) Address() string { return e.opts.Wallet.Address() }

// step is what prepare hands to the rest of the protocol.
type step struct {
	method ledger.Method
	gameID string
	args   any
	// wallet forces the wallet signer; escrow-moving setup transactions
	// cannot come from a session key
	wallet bool
	// install replaces the current game; local edits it. At most one is set.
	install *store.GameState
	local   func(gs *store.GameState)
	// guess is what local appends to MyGuesses, kept when confirmation
	// times out
	guess *store.UnconfirmedGuess
	// done runs after the transaction is confirmed.
	done func(ctx context.Context, gs *store.GameState)
}

type prepareFunc func(ctx context.Context, gs *store.GameState) (*step, error)

// run executes one action. gs passed to prepare is a copy of the current game
// and may be nil.
func (e *Engine) run(ctx context.Context, action string, prepare prepareFunc) (gs *store.GameState, err error) {
	if !e.busy.CompareAndSwap(false, true) {
		e.metrics.Actions.WithLabelValues(action, resultLabel(game.ErrBusy)).Inc()
		return nil, errorsmod.Wrap(game.ErrBusy, action)
	}
	defer e.busy.Store(false)
	defer func() { e.metrics.Actions.WithLabelValues(action, resultLabel(err)).Inc() }()

	log := e.log.With(zap.String("action", action))
	cur := e.opts.Store.Snapshot()
	st, err := prepare(ctx, cur)
	if err != nil {
		log.Debug("action refused", zap.Error(err))
		return nil, err
	}

	polls := e.opts.Store.Polls()
	prev, err := e.commitLocal(cur, st)
	if err != nil {
		return nil, err
	}

	signer, err := e.signerFor(ctx, st)
	if err == nil {
		var hash string
		hash, err = e.opts.Sender.Send(ctx, signer, st.method, st.gameID, st.args)
		if err == nil {
			log.Info("action confirmed", zap.String("game_id", st.gameID), zap.String("tx", hash))
		}
	}
	if err != nil {
		if st.install != nil || st.local != nil {
			e.rollback(st, prev, polls, err)
			e.metrics.Rollbacks.WithLabelValues(action).Inc()
			log.Warn("action failed, local change rolled back", zap.String("game_id", st.gameID), zap.Error(err))
		} else {
			log.Warn("action failed", zap.String("game_id", st.gameID), zap.Error(err))
		}
		return nil, err
	}

	if st.done != nil {
		st.done(ctx, e.opts.Store.Snapshot())
	}
	e.refresh(ctx)
	return e.opts.Store.Snapshot(), nil
}

// commitLocal applies the optimistic change and returns the state to restore
// on failure. The game must not have moved on since prepare read it: a proof
// built for a turn the ledger has left is useless.
func (e *Engine) commitLocal(seen *store.GameState, st *step) (*store.GameState, error) {
	switch {
	case st.install != nil:
		prev := e.opts.Store.Snapshot()
		e.opts.Store.Install(st.install)
		return prev, nil
	case st.local == nil:
		return nil, nil
	}

	var prev *store.GameState
	_, err := e.opts.Store.Update(store.Local, func(cur *store.GameState) error {
		if seen == nil || cur.GameID != seen.GameID ||
			cur.OnChainPhase != seen.OnChainPhase || cur.OnChainTurn != seen.OnChainTurn {
			return errorsmod.Wrap(game.ErrOutOfSync, "game changed while preparing")
		}
		prev = cur.Clone()
		st.local(cur)
		return nil
	})
	return prev, err
}

// rollback puts prev back. A confirmation timeout does not mean the
// transaction failed, so what it would have recorded is kept aside: a new game
// is parked for the poller to adopt, a guess is remembered on the record for
// merges to re-apply. If reconciliation wrote while the transaction was in
// flight, the newest snapshot is merged again so the rollback does not undo
// ledger state.
func (e *Engine) rollback(st *step, prev *store.GameState, polls uint64, cause error) {
	e.opts.Store.Restore(prev)
	timedOut := errors.Is(cause, game.ErrConfirmationTimeout)

	if timedOut && st.install != nil {
		e.opts.Store.Park(st.install)
		e.log.Warn("confirmation timed out, game parked until the ledger shows it", zap.String("game_id", st.gameID))
	}
	if timedOut && st.guess != nil {
		u := *st.guess
		_, _ = e.opts.Store.Update(store.Local, func(gs *store.GameState) error {
			if gs.GameID != st.gameID {
				return errSkip
			}
			gs.Unconfirmed = &u
			return nil
		})
	}

	if e.opts.Poller == nil || e.opts.Store.Polls() == polls {
		return
	}
	snap, ok := e.opts.Poller.Latest(st.gameID)
	if !ok {
		return
	}
	_, _ = e.opts.Store.Update(store.Authoritative, func(gs *store.GameState) error {
		if gs.GameID != st.gameID || !reconcile.Merge(gs, snap) {
			return errSkip
		}
		return nil
	})
}

var errSkip = errors.New("skip")

// signerFor picks the session key for game transactions when one is
// registered, and the wallet otherwise.
func (e *Engine) signerFor(ctx context.Context, st *step) (ledger.Signer, error) {
	if st.wallet || !e.opts.UseSessionKey || e.opts.Sessions == nil {
		return e.opts.Wallet, nil
	}
	s, err := e.opts.Sessions.Signer(ctx, st.gameID)
	if errors.Is(err, session.ErrNoSession) {
		return e.opts.Wallet, nil
	}
	return s, err
}

// refresh runs a reconciliation cycle right away.
func (e *Engine) refresh(ctx context.Context) {
	if e.opts.Poller == nil {
		return
	}
	if _, err := e.opts.Poller.PollOnce(ctx); err != nil {
		e.log.Debug("refresh after action failed", zap.Error(err))
	}
}

// setupSession creates, funds and registers a session key for gameID. A
// failure leaves the wallet signing and is not an action failure.
func (e *Engine) setupSession(ctx context.Context, gameID string) {
	if !e.opts.UseSessionKey || e.opts.Sessions == nil {
		return
	}
	log := e.log.With(zap.String("game_id", gameID))
	if _, err := e.opts.Sessions.Init(ctx, gameID); err != nil {
		log.Warn("session key init failed", zap.Error(err))
		return
	}
	if err := e.opts.Sessions.Fund(ctx, gameID, e.opts.Wallet, e.opts.SessionFund); err != nil {
		log.Warn("session key funding failed", zap.Error(err))
		return
	}
	if err := e.opts.Sessions.Register(ctx, gameID, e.Address()); err != nil {
		log.Warn("session key registration failed", zap.Error(err))
	}
}

// OnMerged reclaims the session key once this player has nothing left to sign
// for the game: the loser at finalization, the winner and both draw players
// after withdrawing, anyone whose game expired.
func (e *Engine) OnMerged(ctx context.Context, gs *store.GameState) {
	if e.opts.Sessions == nil || gs == nil || !sessionFinished(gs) {
		return
	}
	e.reclaimMu.Lock()
	defer e.reclaimMu.Unlock()
	if _, ok, err := e.opts.Sessions.Get(ctx, gs.GameID); err != nil || !ok {
		return
	}
	if err := e.opts.Sessions.Reclaim(ctx, gs.GameID, gs.MyAddress); err != nil {
		e.log.Warn("session key reclaim failed", zap.String("game_id", gs.GameID), zap.Error(err))
	}
}

func sessionFinished(gs *store.GameState) bool {
	if gs.Expired {
		return true
	}
	switch gs.OnChainPhase {
	case game.PhaseFinalized:
		return !gs.IsWinner() || gs.EscrowWithdrawn
	case game.PhaseDraw:
		return gs.EscrowWithdrawn
	}
	return false
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case game.IsValidation(err):
		return "invalid"
	case errors.Is(err, game.ErrProofFailed):
		return "proof_failed"
	case game.IsTransactionFailure(err):
		return "tx_failed"
	}
	return "error"
}

// proofErr keeps ErrProofFailed as the kind of any backend failure.
func proofErr(err error, what string) error {
	if errors.Is(err, game.ErrProofFailed) {
		return errorsmod.Wrap(err, what)
	}
	return errorsmod.Wrapf(game.ErrProofFailed, "%s: %v", what, err)
}
