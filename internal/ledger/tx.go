package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"wordduel-zk/internal/codec"
)

type Method string

const (
	MethodCreateGame         Method = "create_game"
	MethodJoinGame           Method = "join_game"
	MethodSubmitTurn         Method = "submit_turn"
	MethodRevealWord         Method = "reveal_word"
	MethodRevealWordDraw     Method = "reveal_word_draw"
	MethodClaimTimeout       Method = "claim_timeout"
	MethodWithdraw           Method = "withdraw"
	MethodResign             Method = "resign"
	MethodRegisterSessionKey Method = "register_session_key"
	MethodTransfer           Method = "transfer"
	MethodMergeAccount       Method = "merge_account"
)

// GameScoped reports methods whose GameID must be set.
func (m Method) GameScoped() bool {
	switch m {
	case MethodTransfer, MethodMergeAccount:
		return false
	}
	return true
}

// Tx is an unsigned ledger transaction. Source is the address that signs it;
// for game methods the ledger resolves a registered session key back to the
// player it acts for.
type Tx struct {
	Method Method          `json:"method"`
	GameID string          `json:"gameId,omitempty"`
	Source string          `json:"source"`
	Nonce  string          `json:"nonce"`
	Args   json.RawMessage `json:"args"`
}

type SignedTx struct {
	Tx        Tx     `json:"tx"`
	Signature []byte `json:"signature"`
}

// NewTx encodes args and stamps a fresh nonce.
func NewTx(method Method, gameID, source string, args any) (Tx, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Tx{}, fmt.Errorf("encode %s args: %w", method, err)
	}
	return Tx{Method: method, GameID: gameID, Source: source, Nonce: uuid.NewString(), Args: raw}, nil
}

const signDomainV1 = "wordduel/tx/v1"

// SignBytes = DOMAIN || 0x00 || method || 0x00 || nonce || 0x00 || source || 0x00 || sha256(gameId || 0x00 || args)
func (tx Tx) SignBytes() []byte {
	h := sha256.New()
	h.Write([]byte(tx.GameID))
	h.Write([]byte{0})
	h.Write(tx.Args)
	sum := h.Sum(nil)

	out := make([]byte, 0, len(signDomainV1)+1+len(tx.Method)+1+len(tx.Nonce)+1+len(tx.Source)+1+sha256.Size)
	out = append(out, []byte(signDomainV1)...)
	out = append(out, 0)
	out = append(out, []byte(tx.Method)...)
	out = append(out, 0)
	out = append(out, []byte(tx.Nonce)...)
	out = append(out, 0)
	out = append(out, []byte(tx.Source)...)
	out = append(out, 0)
	out = append(out, sum...)
	return out
}

// Hash identifies a signed transaction on the ledger.
func (s SignedTx) Hash() string {
	h := sha256.New()
	h.Write(s.Tx.SignBytes())
	h.Write(s.Signature)
	return hex.EncodeToString(h.Sum(nil))
}

// Address renders an ed25519 public key as a ledger address.
func Address(pub ed25519.PublicKey) string { return hex.EncodeToString(pub) }

func PublicKey(addr string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(addr)
	if err != nil {
		return nil, fmt.Errorf("address %q: %w", addr, err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("address %q: want %d bytes, got %d", addr, ed25519.PublicKeySize, len(b))
	}
	return ed25519.PublicKey(b), nil
}

// VerifySignature checks s against the public key encoded in its source.
func VerifySignature(s SignedTx) error {
	if s.Tx.Nonce == "" {
		return fmt.Errorf("missing tx.nonce")
	}
	if len(s.Signature) != ed25519.SignatureSize {
		return fmt.Errorf("invalid tx.signature length: got %d want %d", len(s.Signature), ed25519.SignatureSize)
	}
	pub, err := PublicKey(s.Tx.Source)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, s.Tx.SignBytes(), s.Signature) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// Signer produces signatures for one address. Implementations may prompt a
// human and refuse.
type Signer interface {
	Address() string
	Sign(ctx context.Context, tx Tx) (SignedTx, error)
}

// Method arguments.

type CreateGameArgs struct {
	Commitment string      `json:"commitment"`
	Escrow     int64       `json:"escrow"`
	WordCommit codec.Proof `json:"wordCommit"`
}

type JoinGameArgs struct {
	Commitment string      `json:"commitment"`
	WordCommit codec.Proof `json:"wordCommit"`
}

// SubmitTurnArgs carries the new guess (absent on the closing turn) and the
// proof scoring the opponent's previous guess (absent on turn 1).
type SubmitTurnArgs struct {
	Guess       string                 `json:"guess,omitempty"`
	Membership  *codec.MembershipProof `json:"membership,omitempty"`
	PriorResult *codec.Proof           `json:"priorResult,omitempty"`
}

// RevealArgs is used by reveal_word, reveal_word_draw and claim_timeout.
type RevealArgs struct {
	Word  string      `json:"word"`
	Proof codec.Proof `json:"proof"`
}

type RegisterSessionKeyArgs struct {
	Player string `json:"player"`
}

type TransferArgs struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type MergeAccountArgs struct {
	Into string `json:"into"`
}

type Empty struct{}
