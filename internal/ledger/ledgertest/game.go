package ledgertest

import (
	"math/big"

	"wordduel-zk/internal/game"
	"wordduel-zk/internal/ledger"
)

type gameRec struct {
	id       string
	phase    game.Phase
	turn     uint32
	deadline uint64
	p1, p2   string
	c1, c2   *big.Int
	p1Time   uint64
	p2Time   uint64
	escrow   int64
	winner   string

	lastGuess   string
	lastResults []game.Outcome

	p1Rev, p2Rev   bool
	p1Word, p2Word string
	p1Wd, p2Wd     bool
}

func (g *gameRec) roleOf(addr string) game.Role {
	switch {
	case addr == "":
		return game.NoRole
	case addr == g.p1:
		return game.FirstMover
	case addr == g.p2:
		return game.SecondMover
	}
	return game.NoRole
}

func (g *gameRec) player(r game.Role) string {
	if r == game.FirstMover {
		return g.p1
	}
	return g.p2
}

func (g *gameRec) commitment(r game.Role) *big.Int {
	if r == game.FirstMover {
		return g.c1
	}
	return g.c2
}

func (g *gameRec) time(r game.Role) uint64 {
	if r == game.FirstMover {
		return g.p1Time
	}
	return g.p2Time
}

func (g *gameRec) setTime(r game.Role, secs uint64) {
	if r == game.FirstMover {
		g.p1Time = secs
	} else {
		g.p2Time = secs
	}
}

func (g *gameRec) revealed(r game.Role) bool {
	if r == game.FirstMover {
		return g.p1Rev
	}
	return g.p2Rev
}

func (g *gameRec) setRevealed(r game.Role, word string) {
	if r == game.FirstMover {
		g.p1Rev, g.p1Word = true, word
	} else {
		g.p2Rev, g.p2Word = true, word
	}
}

func (g *gameRec) withdrawn(r game.Role) bool {
	if r == game.FirstMover {
		return g.p1Wd
	}
	return g.p2Wd
}

func (g *gameRec) setWithdrawn(r game.Role) {
	if r == game.FirstMover {
		g.p1Wd = true
	} else {
		g.p2Wd = true
	}
}

func (g *gameRec) snapshot() ledger.Snapshot {
	return ledger.Snapshot{
		GameID:       g.id,
		Phase:        g.phase,
		Turn:         g.turn,
		Deadline:     g.deadline,
		P1Time:       g.p1Time,
		P2Time:       g.p2Time,
		Player1:      g.p1,
		Player2:      g.p2,
		LastGuess:    g.lastGuess,
		LastResults:  append([]game.Outcome(nil), g.lastResults...),
		Winner:       g.winner,
		EscrowAmount: g.escrow,
		P1Revealed:   g.p1Rev,
		P2Revealed:   g.p2Rev,
		P1Word:       g.p1Word,
		P2Word:       g.p2Word,
		P1Withdrawn:  g.p1Wd,
		P2Withdrawn:  g.p2Wd,
	}
}
