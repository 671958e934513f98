package game

import "fmt"

type Role uint8

const (
	NoRole Role = iota
	FirstMover
	SecondMover
)

func (r Role) String() string {
	switch r {
	case FirstMover:
		return "first-mover"
	case SecondMover:
		return "second-mover"
	}
	return "none"
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalText(b []byte) error {
	switch string(b) {
	case "first-mover":
		*r = FirstMover
	case "second-mover":
		*r = SecondMover
	case "none", "":
		*r = NoRole
	default:
		return fmt.Errorf("invalid role %q", b)
	}
	return nil
}

func (r Role) Opponent() Role {
	switch r {
	case FirstMover:
		return SecondMover
	case SecondMover:
		return FirstMover
	}
	return NoRole
}

// Phase mirrors the ledger's phase codes.
type Phase uint32

const (
	PhaseWaiting   Phase = 0
	PhaseActive    Phase = 1
	PhaseReveal    Phase = 2
	PhaseFinalized Phase = 3
	PhaseDraw      Phase = 4
	PhaseNone      Phase = 255
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseActive:
		return "active"
	case PhaseReveal:
		return "reveal"
	case PhaseFinalized:
		return "finalized"
	case PhaseDraw:
		return "draw"
	case PhaseNone:
		return "none"
	}
	return fmt.Sprintf("phase(%d)", uint32(p))
}

func (p Phase) Valid() bool {
	return p <= PhaseDraw || p == PhaseNone
}

// Terminal reports phases in which no more guesses can be made.
func (p Phase) Terminal() bool { return p == PhaseFinalized || p == PhaseDraw }

// TurnOwner returns the role allowed to act on turn: odd turns belong to the
// first mover, even turns to the second mover.
func TurnOwner(turn uint32) Role {
	if turn == 0 {
		return NoRole
	}
	if turn%2 == 1 {
		return FirstMover
	}
	return SecondMover
}

func IsMyTurn(turn uint32, role Role) bool {
	return role != NoRole && TurnOwner(turn) == role
}

type Kind uint8

const (
	KindNone Kind = iota
	KindGuessOnly
	KindVerifyAndGuess
	KindVerifyOnly
)

func (k Kind) String() string {
	switch k {
	case KindGuessOnly:
		return "guess-only"
	case KindVerifyAndGuess:
		return "verify-and-guess"
	case KindVerifyOnly:
		return "verify-only"
	}
	return "none"
}

// TurnKind says what a submission on turn must carry.
func TurnKind(turn uint32) Kind {
	switch {
	case turn == 0 || turn > MaxTurns:
		return KindNone
	case turn == 1:
		return KindGuessOnly
	case turn == MaxTurns:
		return KindVerifyOnly
	}
	return KindVerifyAndGuess
}

// turnsOwned counts turns in [1, n] owned by role.
func turnsOwned(role Role, n uint32) int {
	switch role {
	case FirstMover:
		return int((n + 1) / 2)
	case SecondMover:
		return int(n / 2)
	}
	return 0
}

const guessTurns = 2 * MaxGuesses

// GuessesMade is how many guesses role has placed on the ledger by the time the
// ledger reports turn. The closing verify turn carries no guess.
func GuessesMade(role Role, phase Phase, turn uint32) int {
	if phase == PhaseWaiting || phase == PhaseNone || turn < 2 {
		return 0
	}
	n := turn - 1
	if n > guessTurns {
		n = guessTurns
	}
	return turnsOwned(role, n)
}

// LastConfirmedTurn is the turn whose guess was most recently scored on the
// ledger, or 0. While active, the submission of turn-1 confirmed turn-2; in
// reveal and draw the turn counter stays put, so turn itself confirmed turn-1.
func LastConfirmedTurn(phase Phase, turn uint32) uint32 {
	switch phase {
	case PhaseActive:
		if turn >= 3 {
			return turn - 2
		}
	case PhaseReveal, PhaseDraw:
		if turn >= 2 {
			return turn - 1
		}
	}
	return 0
}

// GuessesConfirmed is how many of role's guesses have ledger-confirmed results.
// ok is false when the snapshot alone does not determine it.
func GuessesConfirmed(role Role, phase Phase, turn uint32) (n int, ok bool) {
	switch phase {
	case PhaseActive, PhaseReveal, PhaseDraw:
		return turnsOwned(role, LastConfirmedTurn(phase, turn)), true
	}
	return 0, false
}
