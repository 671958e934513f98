package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	errorsmod "cosmossdk.io/errors"

	"wordduel-zk/internal/game"
)

// Snapshot is the authoritative state of one game as read from the ledger.
// Deadline is a unix timestamp in seconds; clocks are remaining seconds.
type Snapshot struct {
	GameID       string         `json:"gameId"`
	Phase        game.Phase     `json:"phase"`
	Turn         uint32         `json:"turn"`
	Deadline     uint64         `json:"deadline"`
	P1Time       uint64         `json:"p1Time"`
	P2Time       uint64         `json:"p2Time"`
	Player1      string         `json:"player1"`
	Player2      string         `json:"player2"`
	LastGuess    string         `json:"lastGuess"`
	LastResults  []game.Outcome `json:"lastResults"`
	Winner       string         `json:"winner"`
	EscrowAmount int64          `json:"escrowAmount"`
	P1Revealed   bool           `json:"p1Revealed"`
	P2Revealed   bool           `json:"p2Revealed"`
	P1Word       string         `json:"p1Word"`
	P2Word       string         `json:"p2Word"`
	P1Withdrawn  bool           `json:"p1Withdrawn"`
	P2Withdrawn  bool           `json:"p2Withdrawn"`
}

func (s Snapshot) Player(r game.Role) string {
	if r == game.FirstMover {
		return s.Player1
	}
	if r == game.SecondMover {
		return s.Player2
	}
	return ""
}

// RoleOf returns the role addr plays in the game, or NoRole.
func (s Snapshot) RoleOf(addr string) game.Role {
	switch {
	case addr == "":
		return game.NoRole
	case addr == s.Player1:
		return game.FirstMover
	case addr == s.Player2:
		return game.SecondMover
	}
	return game.NoRole
}

func (s Snapshot) TimeRemaining(r game.Role) uint64 {
	if r == game.FirstMover {
		return s.P1Time
	}
	return s.P2Time
}

func (s Snapshot) Revealed(r game.Role) bool {
	if r == game.FirstMover {
		return s.P1Revealed
	}
	return s.P2Revealed
}

func (s Snapshot) RevealedWord(r game.Role) string {
	if r == game.FirstMover {
		return s.P1Word
	}
	return s.P2Word
}

func (s Snapshot) Withdrawn(r game.Role) bool {
	if r == game.FirstMover {
		return s.P1Withdrawn
	}
	return s.P2Withdrawn
}

// DecodeSnapshot parses the loosely typed JSON a ledger query returns. Numbers
// may arrive as JSON numbers or decimal strings, booleans as bools, 0/1 or
// strings, words as strings or letter-code arrays, results as arrays or digit
// strings. Missing fields take their zero value. An unparseable phase or turn is
// an error; other unparseable fields fall back to their zero value.
func DecodeSnapshot(gameID string, raw []byte) (Snapshot, error) {
	snap := Snapshot{GameID: gameID, Phase: game.PhaseNone}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return snap, errorsmod.Wrap(game.ErrSnapshotDecode, err.Error())
	}

	if v, ok := m["phase"]; ok && v != nil {
		n, err := asUint(v)
		if err != nil || !game.Phase(n).Valid() {
			return snap, errorsmod.Wrapf(game.ErrSnapshotDecode, "phase %v", v)
		}
		snap.Phase = game.Phase(n)
	}
	if v, ok := m["turn"]; ok && v != nil {
		n, err := asUint(v)
		if err != nil || n > game.MaxTurns {
			return snap, errorsmod.Wrapf(game.ErrSnapshotDecode, "turn %v", v)
		}
		snap.Turn = uint32(n)
	}

	snap.Deadline, _ = asUint(m["deadline"])
	snap.P1Time, _ = asUint(m["p1Time"])
	snap.P2Time, _ = asUint(m["p2Time"])
	if n, err := asInt(m["escrowAmount"]); err == nil {
		snap.EscrowAmount = n
	}
	snap.Player1 = asString(m["player1"])
	snap.Player2 = asString(m["player2"])
	snap.Winner = asString(m["winner"])
	snap.LastGuess = asWord(m["lastGuess"])
	snap.LastResults = asResults(m["lastResults"])
	snap.P1Revealed = asBool(m["p1Revealed"])
	snap.P2Revealed = asBool(m["p2Revealed"])
	snap.P1Word = asWord(m["p1Word"])
	snap.P2Word = asWord(m["p2Word"])
	snap.P1Withdrawn = asBool(m["p1Withdrawn"])
	snap.P2Withdrawn = asBool(m["p2Withdrawn"])
	return snap, nil
}

func asUint(v any) (uint64, error) {
	switch x := v.(type) {
	case json.Number:
		return strconv.ParseUint(x.String(), 10, 64)
	case string:
		return strconv.ParseUint(strings.TrimSpace(x), 10, 64)
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

func asInt(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		return strconv.ParseInt(x.String(), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case json.Number:
		return x.String() == "1"
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	}
	return false
}

// asWord accepts "apple" or [97,112,112,108,101]; anything that is not a valid
// word decodes as "".
func asWord(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case []any:
		codes := make([]byte, 0, len(x))
		for _, e := range x {
			n, err := asUint(e)
			if err != nil || n > 255 {
				return ""
			}
			codes = append(codes, byte(n))
		}
		s = string(codes)
	default:
		return ""
	}
	w, err := game.ParseWord(s)
	if err != nil {
		return ""
	}
	return w.String()
}

// asResults accepts [2,1,0,0,2], ["correct","present",...] or "21002";
// anything else decodes as nil.
func asResults(v any) []game.Outcome {
	var out []game.Outcome
	switch x := v.(type) {
	case string:
		for _, c := range x {
			if c < '0' || c > '2' {
				return nil
			}
			out = append(out, game.Outcome(c-'0'))
		}
	case []any:
		for _, e := range x {
			var o game.Outcome
			var ok bool
			switch y := e.(type) {
			case json.Number:
				o, ok = game.ParseOutcome(y.String())
			case string:
				o, ok = game.ParseOutcome(y)
			}
			if !ok {
				return nil
			}
			out = append(out, o)
		}
	default:
		return nil
	}
	if len(out) != game.WordLength {
		return nil
	}
	return out
}
