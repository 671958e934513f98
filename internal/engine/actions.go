package engine

import (
	"context"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"wordduel-zk/internal/codec"
	"wordduel-zk/internal/commit"
	"wordduel-zk/internal/game"
	"wordduel-zk/internal/ledger"
	"wordduel-zk/internal/reconcile"
	"wordduel-zk/internal/store"
)

// CreateGame commits to word, escrows the stake and opens a game as first
// mover.
func (e *Engine) CreateGame(ctx context.Context, word string, escrow int64) (*store.GameState, error) {
	return e.run(ctx, "create", func(ctx context.Context, cur *store.GameState) (*step, error) {
		if err := e.canStart(cur); err != nil {
			return nil, err
		}
		if escrow < 0 {
			return nil, errorsmod.Wrapf(game.ErrInvalidAmount, "escrow %d", escrow)
		}
		w, err := e.validWord(word)
		if err != nil {
			return nil, err
		}
		secret, wc, err := e.commitTo(ctx, w)
		if err != nil {
			return nil, err
		}
		id := uuid.NewString()
		return &step{
			method:  ledger.MethodCreateGame,
			gameID:  id,
			wallet:  true,
			args:    ledger.CreateGameArgs{Commitment: secret.Commitment, Escrow: escrow, WordCommit: wc},
			install: store.NewGameState(id, game.FirstMover, e.Address(), secret, escrow, e.now().UTC()),
			done:    e.started,
		}, nil
	})
}

// JoinGame commits to word and takes the second seat of a waiting game,
// matching its escrow.
func (e *Engine) JoinGame(ctx context.Context, gameID, word string) (*store.GameState, error) {
	return e.run(ctx, "join", func(ctx context.Context, cur *store.GameState) (*step, error) {
		if err := e.canStart(cur); err != nil {
			return nil, err
		}
		gameID = strings.TrimSpace(gameID)
		if gameID == "" {
			return nil, errorsmod.Wrap(game.ErrNoGame, "game id required")
		}
		w, err := e.validWord(word)
		if err != nil {
			return nil, err
		}
		snap, err := e.opts.Ledger.Snapshot(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if snap.Phase != game.PhaseWaiting {
			return nil, errorsmod.Wrapf(game.ErrWrongPhase, "game %s is %s", gameID, snap.Phase)
		}
		if snap.Player1 == e.Address() {
			return nil, errorsmod.Wrap(game.ErrWrongPhase, "cannot join your own game")
		}
		secret, wc, err := e.commitTo(ctx, w)
		if err != nil {
			return nil, err
		}
		gs := store.NewGameState(gameID, game.SecondMover, e.Address(), secret, snap.EscrowAmount, e.now().UTC())
		gs.OpponentAddress = snap.Player1
		return &step{
			method:  ledger.MethodJoinGame,
			gameID:  gameID,
			wallet:  true,
			args:    ledger.JoinGameArgs{Commitment: secret.Commitment, WordCommit: wc},
			install: gs,
			done:    e.started,
		}, nil
	})
}

func (e *Engine) commitTo(ctx context.Context, w game.Word) (codec.Secret, codec.Proof, error) {
	secret, err := commit.New(w)
	if err != nil {
		return codec.Secret{}, codec.Proof{}, err
	}
	wc, err := e.opts.Prover.ProveWordCommit(ctx, secret)
	if err != nil {
		return codec.Secret{}, codec.Proof{}, proofErr(err, "word commitment")
	}
	return secret, wc, nil
}

func (e *Engine) started(ctx context.Context, gs *store.GameState) {
	if gs == nil {
		return
	}
	e.opts.Store.Record(store.HistoryEntry{GameID: gs.GameID, Role: gs.MyRole, CreatedAt: gs.CreatedAt})
	e.setupSession(ctx, gs.GameID)
}

// SubmitTurn places guess. From turn 2 on it also proves the score of the
// opponent's previous guess, bundled in the same transaction.
func (e *Engine) SubmitTurn(ctx context.Context, guess string) (*store.GameState, error) {
	return e.run(ctx, "guess", func(ctx context.Context, gs *store.GameState) (*step, error) {
		if err := myActiveTurn(gs); err != nil {
			return nil, err
		}
		kind := game.TurnKind(gs.OnChainTurn)
		if kind == game.KindVerifyOnly {
			return nil, errorsmod.Wrap(game.ErrGuessBudget, "the closing turn only verifies")
		}
		w, err := e.validWord(guess)
		if err != nil {
			return nil, err
		}
		if err := inSync(gs); err != nil {
			return nil, err
		}

		args := ledger.SubmitTurnArgs{Guess: w.String()}
		if kind == game.KindVerifyAndGuess {
			last, solved, err := lastOpponentGuess(gs)
			if err != nil {
				return nil, err
			}
			if solved {
				return nil, errorsmod.Wrap(game.ErrWrongPhase, "opponent found your word: verify only")
			}
			prior, err := e.opts.Prover.ProveGuessResult(ctx, gs.Secret(), last)
			if err != nil {
				return nil, proofErr(err, "prior result")
			}
			args.PriorResult = &prior
		}
		mp, err := e.opts.Guesses.Prove(w)
		if err != nil {
			return nil, err
		}
		membership := codec.FromMerkle(mp)
		args.Membership = &membership

		return &step{
			method: ledger.MethodSubmitTurn,
			gameID: gs.GameID,
			args:   args,
			local: func(gs *store.GameState) {
				gs.MyGuesses = append(gs.MyGuesses, store.GuessEntry{Word: w.String()})
				gs.PendingInput = ""
				gs.Unconfirmed = nil
			},
			guess: &store.UnconfirmedGuess{Index: len(gs.MyGuesses), Word: w.String()},
		}, nil
	})
}

// VerifyOnly proves the score of the opponent's last guess without guessing.
// It is the only move on the closing turn and after the opponent found the
// word.
func (e *Engine) VerifyOnly(ctx context.Context) (*store.GameState, error) {
	return e.run(ctx, "verify", func(ctx context.Context, gs *store.GameState) (*step, error) {
		if err := myActiveTurn(gs); err != nil {
			return nil, err
		}
		if gs.OnChainTurn < 2 {
			return nil, errorsmod.Wrap(game.ErrWrongPhase, "nothing to verify on the first turn")
		}
		if err := inSync(gs); err != nil {
			return nil, err
		}
		last, solved, err := lastOpponentGuess(gs)
		if err != nil {
			return nil, err
		}
		closing := game.TurnKind(gs.OnChainTurn) == game.KindVerifyOnly
		if !closing && !solved {
			return nil, errorsmod.Wrap(game.ErrWrongPhase, "this turn needs a guess")
		}
		prior, err := e.opts.Prover.ProveGuessResult(ctx, gs.Secret(), last)
		if err != nil {
			return nil, proofErr(err, "prior result")
		}
		next := game.PhaseDraw
		if solved {
			next = game.PhaseReveal
		}
		return &step{
			method: ledger.MethodSubmitTurn,
			gameID: gs.GameID,
			args:   ledger.SubmitTurnArgs{PriorResult: &prior},
			local:  optimistic(next),
		}, nil
	})
}

// Reveal opens the winner's word, finalizing the game.
func (e *Engine) Reveal(ctx context.Context) (*store.GameState, error) {
	return e.run(ctx, "reveal", func(ctx context.Context, gs *store.GameState) (*step, error) {
		if err := inPhase(gs, game.PhaseReveal); err != nil {
			return nil, err
		}
		if !gs.IsWinner() {
			return nil, errorsmod.Wrap(game.ErrNotWinner, "only the winner reveals")
		}
		if gs.DrawRevealed {
			return nil, errorsmod.Wrap(game.ErrAlreadyDone, "word already revealed")
		}
		args, err := e.selfReveal(ctx, gs)
		if err != nil {
			return nil, err
		}
		return &step{
			method: ledger.MethodRevealWord,
			gameID: gs.GameID,
			args:   args,
			local: func(gs *store.GameState) {
				optimistic(game.PhaseFinalized)(gs)
				gs.DrawRevealed = true
			},
		}, nil
	})
}

// RevealDraw opens this player's word after a draw. Both words must be open
// before either stake can be withdrawn.
func (e *Engine) RevealDraw(ctx context.Context) (*store.GameState, error) {
	return e.run(ctx, "reveal-draw", func(ctx context.Context, gs *store.GameState) (*step, error) {
		if err := inPhase(gs, game.PhaseDraw); err != nil {
			return nil, err
		}
		if gs.DrawRevealed {
			return nil, errorsmod.Wrap(game.ErrAlreadyDone, "word already revealed")
		}
		args, err := e.selfReveal(ctx, gs)
		if err != nil {
			return nil, err
		}
		return &step{
			method: ledger.MethodRevealWordDraw,
			gameID: gs.GameID,
			args:   args,
			local:  func(gs *store.GameState) { gs.DrawRevealed = true },
		}, nil
	})
}

// ClaimTimeout takes the game from an opponent who let their deadline pass.
// While active or revealing the claim carries this player's own reveal; in a
// draw only a player who already revealed can claim. The ledger checks the
// deadline itself.
func (e *Engine) ClaimTimeout(ctx context.Context) (*store.GameState, error) {
	return e.run(ctx, "claim-timeout", func(ctx context.Context, gs *store.GameState) (*step, error) {
		if err := requireGame(gs); err != nil {
			return nil, err
		}
		var args ledger.RevealArgs
		switch gs.OnChainPhase {
		case game.PhaseActive, game.PhaseReveal:
			if gs.OnChainPhase == game.PhaseActive && gs.IsMyTurn() {
				return nil, errorsmod.Wrap(game.ErrWrongPhase, "cannot claim a timeout on your own turn")
			}
			if gs.OnChainPhase == game.PhaseReveal && gs.IsWinner() {
				return nil, errorsmod.Wrap(game.ErrWrongPhase, "the winner reveals instead")
			}
			var err error
			if args, err = e.selfReveal(ctx, gs); err != nil {
				return nil, err
			}
		case game.PhaseDraw:
			if !gs.DrawRevealed {
				return nil, errorsmod.Wrap(game.ErrWrongPhase, "reveal your word first")
			}
			if gs.OpponentRevealed {
				return nil, errorsmod.Wrap(game.ErrWrongPhase, "both words are open: withdraw instead")
			}
		default:
			return nil, errorsmod.Wrapf(game.ErrWrongPhase, "no timeout to claim while %s", gs.OnChainPhase)
		}
		me := gs.MyAddress
		return &step{
			method: ledger.MethodClaimTimeout,
			gameID: gs.GameID,
			args:   args,
			local: func(gs *store.GameState) {
				optimistic(game.PhaseFinalized)(gs)
				gs.Winner = me
			},
		}, nil
	})
}

// Withdraw collects the pot as winner, or this player's own stake after a
// draw in which both words were revealed.
func (e *Engine) Withdraw(ctx context.Context) (*store.GameState, error) {
	return e.run(ctx, "withdraw", func(ctx context.Context, gs *store.GameState) (*step, error) {
		if err := requireGame(gs); err != nil {
			return nil, err
		}
		switch gs.OnChainPhase {
		case game.PhaseFinalized:
			if !gs.IsWinner() {
				return nil, errorsmod.Wrap(game.ErrNotWinner, "only the winner withdraws")
			}
		case game.PhaseDraw:
			if !gs.DrawRevealed || !gs.OpponentRevealed {
				return nil, errorsmod.Wrap(game.ErrWrongPhase, "both players must reveal before withdrawing")
			}
		default:
			return nil, errorsmod.Wrapf(game.ErrWrongPhase, "nothing to withdraw while %s", gs.OnChainPhase)
		}
		if gs.EscrowWithdrawn {
			return nil, errorsmod.Wrap(game.ErrAlreadyDone, "escrow already withdrawn")
		}
		return &step{
			method: ledger.MethodWithdraw,
			gameID: gs.GameID,
			args:   ledger.Empty{},
			local:  func(gs *store.GameState) { gs.EscrowWithdrawn = true },
			done:   e.OnMerged,
		}, nil
	})
}

// Resign concedes an active game.
func (e *Engine) Resign(ctx context.Context) (*store.GameState, error) {
	return e.run(ctx, "resign", func(ctx context.Context, gs *store.GameState) (*step, error) {
		if err := inPhase(gs, game.PhaseActive); err != nil {
			return nil, err
		}
		opp := gs.OpponentAddress
		return &step{
			method: ledger.MethodResign,
			gameID: gs.GameID,
			args:   ledger.Empty{},
			local: func(gs *store.GameState) {
				optimistic(game.PhaseFinalized)(gs)
				gs.Winner = opp
			},
			done: e.OnMerged,
		}, nil
	})
}

// Abandon drops the local game, reclaiming any session key first, and
// discards a parked game whose confirmation timed out. History is kept.
func (e *Engine) Abandon(ctx context.Context) (err error) {
	if !e.busy.CompareAndSwap(false, true) {
		return errorsmod.Wrap(game.ErrBusy, "abandon")
	}
	defer e.busy.Store(false)
	defer func() { e.metrics.Actions.WithLabelValues("abandon", resultLabel(err)).Inc() }()

	gs := e.opts.Store.Snapshot()
	if pk := e.opts.Store.Parked(); pk != nil {
		e.opts.Store.DropParked(pk.GameID)
		e.log.Warn("unconfirmed game discarded", zap.String("game_id", pk.GameID))
		if gs == nil {
			return nil
		}
	}
	if gs == nil {
		return errorsmod.Wrap(game.ErrNoGame, "nothing to abandon")
	}
	if e.opts.Sessions != nil {
		e.reclaimMu.Lock()
		if err := e.opts.Sessions.Reclaim(ctx, gs.GameID, gs.MyAddress); err != nil {
			e.log.Warn("session key reclaim failed, forgetting it", zap.String("game_id", gs.GameID), zap.Error(err))
			_ = e.opts.Sessions.Clear(ctx, gs.GameID)
		}
		e.reclaimMu.Unlock()
	}
	e.opts.Store.Clear()
	e.log.Info("game abandoned", zap.String("game_id", gs.GameID))
	return nil
}

// SetInput stores the partially typed guess. Polls never overwrite it.
func (e *Engine) SetInput(text string) (*store.GameState, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if len(text) > game.WordLength || strings.Trim(text, "abcdefghijklmnopqrstuvwxyz") != "" {
		return nil, errorsmod.Wrapf(game.ErrInvalidWord, "input %q", text)
	}
	return e.opts.Store.Update(store.Local, func(gs *store.GameState) error {
		gs.PendingInput = text
		return nil
	})
}

// Status returns the current game.
func (e *Engine) Status() (*store.GameState, error) { return e.opts.Store.Require() }

func (e *Engine) History() []store.HistoryEntry { return e.opts.Store.History() }

// --- preconditions ---

func (e *Engine) validWord(s string) (game.Word, error) {
	w, err := game.ParseWord(s)
	if err != nil {
		return w, err
	}
	if !e.opts.Guesses.Contains(w) {
		return w, errorsmod.Wrapf(game.ErrNotInDictionary, "%q", w)
	}
	return w, nil
}

func (e *Engine) selfReveal(ctx context.Context, gs *store.GameState) (ledger.RevealArgs, error) {
	p, err := e.opts.Prover.ProveSelfReveal(ctx, gs.Secret())
	if err != nil {
		return ledger.RevealArgs{}, proofErr(err, "self reveal")
	}
	return ledger.RevealArgs{Word: gs.SecretWord, Proof: p}, nil
}

func requireGame(gs *store.GameState) error {
	if gs == nil {
		return errorsmod.Wrap(game.ErrNoGame, "create or join a game first")
	}
	if gs.Expired {
		return errorsmod.Wrap(game.ErrGameExpired, gs.GameID)
	}
	return nil
}

func inPhase(gs *store.GameState, p game.Phase) error {
	if err := requireGame(gs); err != nil {
		return err
	}
	if gs.OnChainPhase != p {
		return errorsmod.Wrapf(game.ErrWrongPhase, "game is %s, want %s", gs.OnChainPhase, p)
	}
	return nil
}

func myActiveTurn(gs *store.GameState) error {
	if err := inPhase(gs, game.PhaseActive); err != nil {
		return err
	}
	if !gs.IsMyTurn() {
		return errorsmod.Wrapf(game.ErrNotYourTurn, "turn %d belongs to %s", gs.OnChainTurn, game.TurnOwner(gs.OnChainTurn))
	}
	return nil
}

// canStart refuses a new game while the current one can still change, or
// while a timed-out create or join may still land.
func (e *Engine) canStart(cur *store.GameState) error {
	if reconcile.Live(cur) {
		return errorsmod.Wrapf(game.ErrWrongPhase, "game %s is still in progress", cur.GameID)
	}
	if pk := e.opts.Store.Parked(); pk != nil {
		return errorsmod.Wrapf(game.ErrWrongPhase, "game %s is awaiting confirmation; abandon it to start over", pk.GameID)
	}
	return nil
}

// inSync checks that both guess histories match what the ledger's turn
// implies.
func inSync(gs *store.GameState) error {
	me, opp := gs.MyRole, gs.MyRole.Opponent()
	mine := game.GuessesMade(me, gs.OnChainPhase, gs.OnChainTurn)
	theirs := game.GuessesMade(opp, gs.OnChainPhase, gs.OnChainTurn)
	if len(gs.MyGuesses) != mine || len(gs.OpponentGuesses) != theirs {
		return errorsmod.Wrapf(game.ErrOutOfSync, "have %d/%d guesses, ledger implies %d/%d",
			len(gs.MyGuesses), len(gs.OpponentGuesses), mine, theirs)
	}
	return nil
}

// lastOpponentGuess returns the guess this turn must score and whether it hit
// my word.
func lastOpponentGuess(gs *store.GameState) (game.Word, bool, error) {
	if len(gs.OpponentGuesses) == 0 {
		return game.Word{}, false, errorsmod.Wrap(game.ErrOutOfSync, "no opponent guess recorded")
	}
	last, err := game.ParseWord(gs.OpponentGuesses[len(gs.OpponentGuesses)-1].Word)
	if err != nil {
		return game.Word{}, false, errorsmod.Wrap(game.ErrOutOfSync, err.Error())
	}
	secret, err := game.ParseWord(gs.SecretWord)
	if err != nil {
		return game.Word{}, false, err
	}
	return last, game.Score(last, secret).AllCorrect(), nil
}

func optimistic(p game.Phase) func(*store.GameState) {
	return func(gs *store.GameState) {
		gs.OnChainPhase = p
		gs.OptimisticPhase = true
	}
}
