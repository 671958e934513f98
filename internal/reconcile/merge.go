// Package reconcile keeps the local game in step with the ledger.
//
// The ledger is the only source of truth for phase, turn, clocks and results.
// Merge folds one snapshot into the local record and is safe to repeat: every
// append or fill is guarded by a count comparison, so the same snapshot merged
// twice leaves the record as it was after the first merge.
package reconcile

import (
	"reflect"

	"wordduel-zk/internal/game"
	"wordduel-zk/internal/ledger"
	"wordduel-zk/internal/store"
)

// Merge applies snap to gs and reports whether anything changed. snap must be
// for gs.GameID. A snapshot older than what gs already mirrors is ignored, so
// fetches that complete out of order cannot rewind the record.
func Merge(gs *store.GameState, snap ledger.Snapshot) bool {
	if stale(gs, snap) {
		return false
	}
	before := gs.Clone()
	me, opp := gs.MyRole, gs.MyRole.Opponent()

	gs.OnChainPhase = snap.Phase
	gs.OnChainTurn = snap.Turn
	gs.OnChainDeadline = snap.Deadline
	gs.MyTimeRemaining = snap.TimeRemaining(me)
	gs.OpponentTimeRemaining = snap.TimeRemaining(opp)
	gs.EscrowAmount = snap.EscrowAmount
	gs.Winner = snap.Winner
	gs.DrawRevealed = snap.Revealed(me)
	gs.OpponentRevealed = snap.Revealed(opp)
	// withdrawal cannot be undone; a gateway that omits the flag must not
	// reopen it
	gs.EscrowWithdrawn = gs.EscrowWithdrawn || snap.Withdrawn(me)
	if addr := snap.Player(opp); addr != "" {
		gs.OpponentAddress = addr
	}
	if w := snap.RevealedWord(opp); w != "" {
		gs.OpponentWord = w
	}
	gs.OptimisticPhase = false
	gs.Expired = false

	mergeLastGuess(gs, snap)
	mergeUnconfirmed(gs, snap)
	mergeMyResult(gs, snap)
	markOpponentVerified(gs, snap)

	return !reflect.DeepEqual(before, gs)
}

// mergeMyResult fills the result of my most recently confirmed guess.
func mergeMyResult(gs *store.GameState, snap ledger.Snapshot) {
	if len(snap.LastResults) != game.WordLength {
		return
	}
	me := gs.MyRole

	if snap.Phase == game.PhaseFinalized {
		// the turn counter no longer tells whose result lastResults is;
		// only a winning guess of mine is unambiguous
		if !gs.IsWinner() || !game.AllCorrect(snap.LastResults) {
			return
		}
		i := len(gs.MyGuesses) - 1
		if i < 0 || gs.MyGuesses[i].Verified || gs.MyGuesses[i].Word != snap.LastGuess {
			return
		}
		fill(&gs.MyGuesses[i], snap.LastResults)
		return
	}

	last := game.LastConfirmedTurn(snap.Phase, snap.Turn)
	if last == 0 || game.TurnOwner(last) != me {
		return
	}
	expected, ok := game.GuessesConfirmed(me, snap.Phase, snap.Turn)
	if !ok {
		return
	}
	i := expected - 1
	if i < 0 || i >= len(gs.MyGuesses) || gs.VerifiedMine() != i {
		return
	}
	fill(&gs.MyGuesses[i], snap.LastResults)
}

func fill(e *store.GuessEntry, results []game.Outcome) {
	e.Results = append([]game.Outcome(nil), results...)
	e.Verified = true
}

// mergeLastGuess records the newest guess on the ledger if the local history
// is exactly one behind. The opponent's guess is scored against my secret; my
// own shows up here only when a submission landed after it was rolled back
// locally. Guesses always land on the turn before the reported one.
func mergeLastGuess(gs *store.GameState, snap ledger.Snapshot) {
	if snap.LastGuess == "" || snap.Turn < 2 {
		return
	}
	owner := game.TurnOwner(snap.Turn - 1)
	list := &gs.OpponentGuesses
	if owner == gs.MyRole {
		list = &gs.MyGuesses
	}
	made := game.GuessesMade(owner, snap.Phase, snap.Turn)
	if len(*list) != made-1 {
		return
	}
	guess, err := game.ParseWord(snap.LastGuess)
	if err != nil {
		return
	}
	entry := store.GuessEntry{Word: guess.String()}
	if owner != gs.MyRole {
		if secret, err := game.WordFromCodes(gs.SecretLetterCodes[:]); err == nil {
			entry.Results = game.Score(guess, secret).Slice()
		}
	}
	*list = append(*list, entry)
}

// mergeUnconfirmed re-applies a timed-out guess once the ledger counts more
// guesses of mine than its position. mergeLastGuess has already recovered it
// when the ledger still shows it as the last guess; this covers the case where
// the opponent has moved since.
func mergeUnconfirmed(gs *store.GameState, snap ledger.Snapshot) {
	u := gs.Unconfirmed
	if u == nil || game.GuessesMade(gs.MyRole, snap.Phase, snap.Turn) <= u.Index {
		return
	}
	if len(gs.MyGuesses) == u.Index {
		gs.MyGuesses = append(gs.MyGuesses, store.GuessEntry{Word: u.Word})
	}
	gs.Unconfirmed = nil
}

// stale reports whether snap is behind gs. Turns only grow, and within a turn
// the phase only moves forward; an optimistic local phase is not a position
// the ledger has reached, so it never makes a snapshot stale.
func stale(gs *store.GameState, snap ledger.Snapshot) bool {
	if snap.Turn != gs.OnChainTurn {
		return snap.Turn < gs.OnChainTurn
	}
	if gs.OptimisticPhase {
		return false
	}
	return phaseRank(snap.Phase) < phaseRank(gs.OnChainPhase)
}

func phaseRank(p game.Phase) int {
	switch p {
	case game.PhaseWaiting:
		return 0
	case game.PhaseActive:
		return 1
	case game.PhaseReveal, game.PhaseDraw:
		return 2
	case game.PhaseFinalized:
		return 3
	}
	return -1
}

// markOpponentVerified flags opponent guesses whose score I have proven.
func markOpponentVerified(gs *store.GameState, snap ledger.Snapshot) {
	n, ok := game.GuessesConfirmed(gs.MyRole.Opponent(), snap.Phase, snap.Turn)
	if !ok {
		return
	}
	for i := 0; i < n && i < len(gs.OpponentGuesses); i++ {
		gs.OpponentGuesses[i].Verified = true
	}
}
