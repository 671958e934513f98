package game

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

const Codespace = "wordduel"

// Validation errors: reported before any ledger interaction.
var (
	ErrInvalidWord     = errorsmod.Register(Codespace, 2, "invalid word")
	ErrNotInDictionary = errorsmod.Register(Codespace, 3, "word not in dictionary")
	ErrNotYourTurn     = errorsmod.Register(Codespace, 4, "not your turn")
	ErrWrongPhase      = errorsmod.Register(Codespace, 5, "wrong game phase")
	ErrNoGame          = errorsmod.Register(Codespace, 6, "no local game")
	ErrOutOfSync       = errorsmod.Register(Codespace, 7, "local state behind ledger")
	ErrGuessBudget     = errorsmod.Register(Codespace, 8, "guess budget exhausted")
	ErrBusy            = errorsmod.Register(Codespace, 9, "another action is in flight")
	ErrNotWinner       = errorsmod.Register(Codespace, 10, "caller is not the winner")
	ErrAlreadyDone     = errorsmod.Register(Codespace, 11, "action already performed")
	ErrInvalidAmount   = errorsmod.Register(Codespace, 12, "invalid amount")
)

// Proof generation errors: nothing has been mutated locally yet.
var ErrProofFailed = errorsmod.Register(Codespace, 20, "proof generation failed")

// Transaction errors: any optimistic local mutation is rolled back.
var (
	ErrSimulationRejected  = errorsmod.Register(Codespace, 30, "transaction simulation rejected")
	ErrSigningRejected     = errorsmod.Register(Codespace, 31, "transaction signing rejected")
	ErrSubmissionRejected  = errorsmod.Register(Codespace, 32, "transaction submission rejected")
	ErrTxFailed            = errorsmod.Register(Codespace, 33, "transaction failed on ledger")
	ErrConfirmationTimeout = errorsmod.Register(Codespace, 34, "transaction confirmation timed out")
)

var (
	ErrSnapshotDecode = errorsmod.Register(Codespace, 40, "ledger snapshot decode failed")
	ErrGameNotFound   = errorsmod.Register(Codespace, 41, "game not found on ledger")
	ErrGameExpired    = errorsmod.Register(Codespace, 42, "game expired")
)

func IsValidation(err error) bool {
	return anyOf(err, ErrInvalidWord, ErrNotInDictionary, ErrNotYourTurn, ErrWrongPhase,
		ErrNoGame, ErrOutOfSync, ErrGuessBudget, ErrBusy, ErrNotWinner, ErrAlreadyDone, ErrInvalidAmount)
}

func IsTransactionFailure(err error) bool {
	return anyOf(err, ErrSimulationRejected, ErrSigningRejected, ErrSubmissionRejected,
		ErrTxFailed, ErrConfirmationTimeout)
}

func anyOf(err error, kinds ...error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
