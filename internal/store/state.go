package store

import (
	"time"

	"wordduel-zk/internal/codec"
	"wordduel-zk/internal/game"
)

// UnconfirmedGuess is a submission whose outcome is unknown. Index is the
// position it takes in MyGuesses if it landed.
type UnconfirmedGuess struct {
	Index int    `json:"index"`
	Word  string `json:"word"`
}

type GuessEntry struct {
	Word     string         `json:"word"`
	Results  []game.Outcome `json:"results,omitempty"`
	Verified bool           `json:"verified"`
}

// GameState is the local view of the current game. Ledger-mirrored fields are
// overwritten by every reconciliation; PendingInput only ever changes locally.
type GameState struct {
	GameID          string    `json:"gameId"`
	MyRole          game.Role `json:"myRole"`
	MyAddress       string    `json:"myAddress"`
	OpponentAddress string    `json:"opponentAddress,omitempty"`

	SecretWord        string                  `json:"secretWord"`
	SecretLetterCodes [game.WordLength]uint8 `json:"secretLetterCodes"`
	SecretSalt        uint64                  `json:"secretSalt,string"`
	Commitment        string                  `json:"commitment"`

	MyGuesses       []GuessEntry `json:"myGuesses"`
	OpponentGuesses []GuessEntry `json:"opponentGuesses"`

	EscrowAmount     int64  `json:"escrowAmount"`
	EscrowWithdrawn  bool   `json:"escrowWithdrawn"`
	DrawRevealed     bool   `json:"drawRevealed"`
	OpponentRevealed bool   `json:"opponentRevealed"`
	Winner           string `json:"winner,omitempty"`
	OpponentWord     string `json:"opponentWord,omitempty"`

	OnChainPhase          game.Phase `json:"onChainPhase"`
	OnChainTurn           uint32     `json:"onChainTurn"`
	OnChainDeadline       uint64     `json:"onChainDeadline"`
	MyTimeRemaining       uint64     `json:"myTimeRemaining"`
	OpponentTimeRemaining uint64     `json:"opponentTimeRemaining"`
	Expired               bool       `json:"expired"`

	PendingInput    string `json:"pendingInput"`
	OptimisticPhase bool   `json:"optimisticPhase"`

	// Unconfirmed is a guess rolled back after its confirmation timed out.
	// It may still land; merges re-apply it once the ledger counts it.
	Unconfirmed *UnconfirmedGuess `json:"unconfirmed,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewGameState starts a local record for a game the player just created or
// joined, before the ledger has confirmed it.
func NewGameState(gameID string, role game.Role, me string, secret codec.Secret, escrow int64, now time.Time) *GameState {
	return &GameState{
		GameID:            gameID,
		MyRole:            role,
		MyAddress:         me,
		SecretWord:        secret.Word,
		SecretLetterCodes: secret.Letters,
		SecretSalt:        secret.Salt,
		Commitment:        secret.Commitment,
		EscrowAmount:      escrow,
		OnChainPhase:      game.PhaseNone,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// IsMyTurn is derived from turn parity only.
func (g *GameState) IsMyTurn() bool { return game.IsMyTurn(g.OnChainTurn, g.MyRole) }

func (g *GameState) Secret() codec.Secret {
	return codec.Secret{
		Word:       g.SecretWord,
		Letters:    g.SecretLetterCodes,
		Salt:       g.SecretSalt,
		Commitment: g.Commitment,
	}
}

// VerifiedMine counts own guesses whose result has been confirmed.
func (g *GameState) VerifiedMine() int {
	n := 0
	for _, e := range g.MyGuesses {
		if e.Verified {
			n++
		}
	}
	return n
}

// IsWinner reports whether the ledger named this player the winner.
func (g *GameState) IsWinner() bool { return g.Winner != "" && g.Winner == g.MyAddress }

func (g *GameState) Clone() *GameState {
	if g == nil {
		return nil
	}
	c := *g
	c.MyGuesses = cloneEntries(g.MyGuesses)
	c.OpponentGuesses = cloneEntries(g.OpponentGuesses)
	if g.Unconfirmed != nil {
		u := *g.Unconfirmed
		c.Unconfirmed = &u
	}
	return &c
}

func cloneEntries(in []GuessEntry) []GuessEntry {
	if in == nil {
		return nil
	}
	out := make([]GuessEntry, len(in))
	for i, e := range in {
		out[i] = e
		if e.Results != nil {
			out[i].Results = append([]game.Outcome(nil), e.Results...)
		}
	}
	return out
}

// HistoryEntry records a game this player took part in.
type HistoryEntry struct {
	GameID    string    `json:"gameId"`
	Role      game.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}
