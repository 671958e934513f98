// Package ledgertest is an in-memory ledger running the word duel contract.
// It backs the engine tests and the devnet command.
package ledgertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"

	"wordduel-zk/internal/codec"
	"wordduel-zk/internal/game"
	"wordduel-zk/internal/ledger"
	"wordduel-zk/internal/merkle"
)

const (
	DefaultTurnDuration = 300 * time.Second
	DefaultRevealWindow = 300 * time.Second
)

type Config struct {
	// GuessRoot is the root of the keccak guess dictionary.
	GuessRoot *big.Int
	Verifier  ProofVerifier
	// Fee is charged to the source of every game transaction.
	Fee          int64
	TurnDuration time.Duration
	RevealWindow time.Duration
	Start        time.Time
}

type binding struct {
	gameID string
	player string
}

type injected struct {
	reason string
	drop   bool
}

type Ledger struct {
	mu  sync.Mutex
	cfg Config
	now time.Time

	games    map[string]*gameRec
	order    []string
	sessions map[string]binding // session key -> (game, player)
	balances map[string]int64
	txs      map[string]ledger.TxResult
	checks   map[string]int

	pendingChecks int
	simReject     map[ledger.Method]string
	failNext      map[ledger.Method]injected
	snapshotErr   error
	submitted     []ledger.SignedTx
}

var _ ledger.Client = (*Ledger)(nil)

func New(cfg Config) *Ledger {
	if cfg.Verifier == nil {
		cfg.Verifier = LayoutVerifier{}
	}
	if cfg.TurnDuration <= 0 {
		cfg.TurnDuration = DefaultTurnDuration
	}
	if cfg.RevealWindow <= 0 {
		cfg.RevealWindow = DefaultRevealWindow
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Unix(1_700_000_000, 0)
	}
	return &Ledger{
		cfg:       cfg,
		now:       cfg.Start,
		games:     map[string]*gameRec{},
		sessions:  map[string]binding{},
		balances:  map[string]int64{},
		txs:       map[string]ledger.TxResult{},
		checks:    map[string]int{},
		simReject: map[ledger.Method]string{},
		failNext:  map[ledger.Method]injected{},
	}
}

// --- test controls ---

func (l *Ledger) Now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

func (l *Ledger) Advance(d time.Duration) {
	l.mu.Lock()
	l.now = l.now.Add(d)
	l.mu.Unlock()
}

func (l *Ledger) Mint(addr string, amount int64) {
	l.mu.Lock()
	l.balances[addr] += amount
	l.mu.Unlock()
}

func (l *Ledger) Balance(addr string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[addr]
}

// SetPendingChecks makes every transaction report pending for n status
// queries before its real outcome.
func (l *Ledger) SetPendingChecks(n int) {
	l.mu.Lock()
	l.pendingChecks = n
	l.mu.Unlock()
}

// RejectSimulation makes simulation of method fail until cleared with "".
func (l *Ledger) RejectSimulation(m ledger.Method, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if reason == "" {
		delete(l.simReject, m)
		return
	}
	l.simReject[m] = reason
}

// FailNext makes the next submitted method fail on the ledger without effect.
func (l *Ledger) FailNext(m ledger.Method, reason string) {
	l.mu.Lock()
	l.failNext[m] = injected{reason: reason}
	l.mu.Unlock()
}

// DropNext makes the next submitted method stay pending forever.
func (l *Ledger) DropNext(m ledger.Method) {
	l.mu.Lock()
	l.failNext[m] = injected{drop: true}
	l.mu.Unlock()
}

// SetSnapshotError makes every snapshot fetch fail with err until cleared with nil.
func (l *Ledger) SetSnapshotError(err error) {
	l.mu.Lock()
	l.snapshotErr = err
	l.mu.Unlock()
}

// Submitted returns every transaction accepted for submission, in order.
func (l *Ledger) Submitted() []ledger.SignedTx {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ledger.SignedTx(nil), l.submitted...)
}

// SessionKey returns the key registered for player in gameID, or player.
func (l *Ledger) SessionKey(gameID, player string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.sessions {
		if b.gameID == gameID && b.player == player {
			return k
		}
	}
	return player
}

// Games lists game ids in creation order.
func (l *Ledger) Games() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.order...)
}

// GamesOf lists the games addr plays in, sorted.
func (l *Ledger) GamesOf(addr string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for id, g := range l.games {
		if g.p1 == addr || g.p2 == addr {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Expire forgets a game, as ledger storage with a TTL would.
func (l *Ledger) Expire(gameID string) {
	l.mu.Lock()
	delete(l.games, gameID)
	l.mu.Unlock()
}

// --- ledger.Client ---

func (l *Ledger) Snapshot(ctx context.Context, gameID string) (ledger.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Snapshot{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snapshotErr != nil {
		return ledger.Snapshot{}, l.snapshotErr
	}
	g, ok := l.games[gameID]
	if !ok {
		return ledger.Snapshot{}, errorsmod.Wrap(game.ErrGameNotFound, gameID)
	}
	return g.snapshot(), nil
}

func (l *Ledger) Simulate(ctx context.Context, tx ledger.Tx) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if reason, ok := l.simReject[tx.Method]; ok {
		return errorsmod.Wrap(game.ErrSimulationRejected, reason)
	}
	if err := l.apply(tx, true); err != nil {
		return errorsmod.Wrap(game.ErrSimulationRejected, err.Error())
	}
	return nil
}

func (l *Ledger) Submit(ctx context.Context, stx ledger.SignedTx) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ledger.VerifySignature(stx); err != nil {
		return "", errorsmod.Wrap(game.ErrSubmissionRejected, err.Error())
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	hash := stx.Hash()
	if _, dup := l.txs[hash]; dup {
		return "", errorsmod.Wrap(game.ErrSubmissionRejected, "duplicate transaction")
	}
	l.submitted = append(l.submitted, stx)

	res := ledger.TxResult{Hash: hash, Status: ledger.StatusSuccess}
	if inj, ok := l.failNext[stx.Tx.Method]; ok {
		delete(l.failNext, stx.Tx.Method)
		if inj.drop {
			res.Status = ledger.StatusPending
		} else {
			res.Status, res.Error = ledger.StatusFailed, inj.reason
		}
	} else if err := l.apply(stx.Tx, false); err != nil {
		res.Status, res.Error = ledger.StatusFailed, err.Error()
	}
	l.txs[hash] = res
	return hash, nil
}

func (l *Ledger) TxStatus(ctx context.Context, hash string) (ledger.TxResult, error) {
	if err := ctx.Err(); err != nil {
		return ledger.TxResult{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.txs[hash]
	if !ok {
		return ledger.TxResult{Hash: hash, Status: ledger.StatusPending}, nil
	}
	l.checks[hash]++
	if l.checks[hash] <= l.pendingChecks {
		return ledger.TxResult{Hash: hash, Status: ledger.StatusPending}, nil
	}
	return res, nil
}

// --- contract ---

var (
	errNoGame       = errors.New("no active game")
	errWrongPhase   = errors.New("wrong phase")
	errWrongPlayer  = errors.New("wrong player")
	errNotYourTurn  = errors.New("not your turn")
	errExpired      = errors.New("game expired")
	errNotWinner    = errors.New("not winner")
	errMismatch     = errors.New("guess word mismatch")
	errInvalidProof = errors.New("invalid merkle proof")
	errReveal       = errors.New("invalid reveal")
	errWithdrawn    = errors.New("already withdrawn")
	errTooEarly     = errors.New("deadline not passed")
	errFunds        = errors.New("insufficient balance")
)

func (l *Ledger) nowSecs() uint64 { return uint64(l.now.Unix()) }

// resolve maps a registered session key to the player it acts for in gameID.
func (l *Ledger) resolve(gameID, source string) string {
	if b, ok := l.sessions[source]; ok && b.gameID == gameID {
		return b.player
	}
	return source
}

// apply runs tx against the contract. With dry set it only validates.
func (l *Ledger) apply(tx ledger.Tx, dry bool) error {
	if tx.Method.GameScoped() && tx.GameID == "" {
		return errors.New("missing game id")
	}
	if tx.Method.GameScoped() && l.cfg.Fee > 0 {
		if l.balances[tx.Source] < l.cfg.Fee {
			return fmt.Errorf("%w for fee", errFunds)
		}
	}

	var err error
	switch tx.Method {
	case ledger.MethodCreateGame:
		err = l.createGame(tx, dry)
	case ledger.MethodJoinGame:
		err = l.joinGame(tx, dry)
	case ledger.MethodSubmitTurn:
		err = l.submitTurn(tx, dry)
	case ledger.MethodRevealWord:
		err = l.revealWord(tx, dry)
	case ledger.MethodRevealWordDraw:
		err = l.revealWordDraw(tx, dry)
	case ledger.MethodClaimTimeout:
		err = l.claimTimeout(tx, dry)
	case ledger.MethodWithdraw:
		err = l.withdraw(tx, dry)
	case ledger.MethodResign:
		err = l.resign(tx, dry)
	case ledger.MethodRegisterSessionKey:
		err = l.registerSessionKey(tx, dry)
	case ledger.MethodTransfer:
		err = l.transfer(tx, dry)
	case ledger.MethodMergeAccount:
		err = l.mergeAccount(tx, dry)
	default:
		err = fmt.Errorf("unknown method %q", tx.Method)
	}
	if err != nil || dry {
		return err
	}
	if tx.Method.GameScoped() && l.cfg.Fee > 0 {
		l.balances[tx.Source] -= l.cfg.Fee
	}
	return nil
}

func decodeArgs(tx ledger.Tx, v any) error {
	if err := json.Unmarshal(tx.Args, v); err != nil {
		return fmt.Errorf("decode %s args: %w", tx.Method, err)
	}
	return nil
}

func (l *Ledger) lookup(gameID string) (*gameRec, error) {
	g, ok := l.games[gameID]
	if !ok {
		return nil, errNoGame
	}
	return g, nil
}

func (l *Ledger) verifyWordCommit(commitment string, p codec.Proof) (*big.Int, error) {
	c, err := merkle.ParseHex(commitment)
	if err != nil {
		return nil, err
	}
	if err := l.cfg.Verifier.VerifyWordCommit(p); err != nil {
		return nil, fmt.Errorf("word commit: %w", err)
	}
	pub, err := codec.DecodeCommitPublic(p.PublicInputs)
	if err != nil {
		return nil, err
	}
	if pub.Commitment.Cmp(c) != 0 {
		return nil, errMismatch
	}
	return c, nil
}

func (l *Ledger) verifyGuess(word string, mp *codec.MembershipProof) error {
	w, err := game.ParseWord(word)
	if err != nil {
		return err
	}
	if mp == nil {
		return errInvalidProof
	}
	p, err := mp.ToMerkle()
	if err != nil {
		return err
	}
	if p.Leaf.Cmp(w.Pack()) != 0 {
		return errInvalidProof
	}
	if l.cfg.GuessRoot != nil && !merkle.Verify(merkle.Keccak, p, l.cfg.GuessRoot) {
		return errInvalidProof
	}
	return nil
}

// verifyReveal checks a self-proof: the caller's commitment, the claimed word
// as guess letters, all results correct.
func (l *Ledger) verifyReveal(commitment *big.Int, a ledger.RevealArgs) (string, error) {
	w, err := game.ParseWord(a.Word)
	if err != nil {
		return "", errReveal
	}
	pub, err := codec.DecodeGuessPublic(a.Proof.PublicInputs)
	if err != nil {
		return "", errReveal
	}
	if pub.Commitment.Cmp(commitment) != 0 || pub.Guess != w.LetterCodes() || !pub.Results.AllCorrect() {
		return "", errReveal
	}
	if err := l.cfg.Verifier.VerifyGuessResult(a.Proof); err != nil {
		return "", fmt.Errorf("%w: %v", errReveal, err)
	}
	return w.String(), nil
}

func (l *Ledger) createGame(tx ledger.Tx, dry bool) error {
	var a ledger.CreateGameArgs
	if err := decodeArgs(tx, &a); err != nil {
		return err
	}
	if _, exists := l.games[tx.GameID]; exists {
		return errors.New("game already exists")
	}
	if a.Escrow < 0 {
		return errors.New("negative escrow")
	}
	c, err := l.verifyWordCommit(a.Commitment, a.WordCommit)
	if err != nil {
		return err
	}
	if l.balances[tx.Source] < a.Escrow+l.cfg.Fee {
		return fmt.Errorf("%w for escrow", errFunds)
	}
	if dry {
		return nil
	}
	l.balances[tx.Source] -= a.Escrow
	l.games[tx.GameID] = &gameRec{
		id: tx.GameID, phase: game.PhaseWaiting, p1: tx.Source, c1: c, escrow: a.Escrow,
	}
	l.order = append(l.order, tx.GameID)
	return nil
}

func (l *Ledger) joinGame(tx ledger.Tx, dry bool) error {
	var a ledger.JoinGameArgs
	if err := decodeArgs(tx, &a); err != nil {
		return err
	}
	g, err := l.lookup(tx.GameID)
	if err != nil {
		return err
	}
	if g.phase != game.PhaseWaiting {
		return errWrongPhase
	}
	if tx.Source == g.p1 {
		return errWrongPlayer
	}
	c, err := l.verifyWordCommit(a.Commitment, a.WordCommit)
	if err != nil {
		return err
	}
	if l.balances[tx.Source] < g.escrow+l.cfg.Fee {
		return fmt.Errorf("%w for escrow", errFunds)
	}
	if dry {
		return nil
	}
	l.balances[tx.Source] -= g.escrow
	secs := uint64(l.cfg.TurnDuration / time.Second)
	g.p2, g.c2 = tx.Source, c
	g.phase, g.turn = game.PhaseActive, 1
	g.p1Time, g.p2Time = secs, secs
	g.deadline = l.nowSecs() + secs
	return nil
}

func (l *Ledger) submitTurn(tx ledger.Tx, dry bool) error {
	var a ledger.SubmitTurnArgs
	if err := decodeArgs(tx, &a); err != nil {
		return err
	}
	g, err := l.lookup(tx.GameID)
	if err != nil {
		return err
	}
	if g.phase != game.PhaseActive {
		return errWrongPhase
	}
	if l.nowSecs() > g.deadline {
		return errExpired
	}
	caller := l.resolve(tx.GameID, tx.Source)
	role := g.roleOf(caller)
	if role == game.NoRole || game.TurnOwner(g.turn) != role {
		return errNotYourTurn
	}

	var results []game.Outcome
	if g.turn > 1 {
		if a.PriorResult == nil {
			return errors.New("missing prior result proof")
		}
		pub, err := codec.DecodeGuessPublic(a.PriorResult.PublicInputs)
		if err != nil {
			return err
		}
		if pub.Commitment.Cmp(g.commitment(role)) != 0 || string(pub.Guess[:]) != g.lastGuess {
			return errMismatch
		}
		if err := l.cfg.Verifier.VerifyGuessResult(*a.PriorResult); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		results = pub.Results.Slice()

		if pub.Results.AllCorrect() {
			if dry {
				return nil
			}
			g.lastResults = results
			g.phase = game.PhaseReveal
			g.winner = g.player(role.Opponent())
			g.deadline = l.nowSecs() + uint64(l.cfg.RevealWindow/time.Second)
			return nil
		}
		if g.turn == game.MaxTurns {
			if a.Guess != "" {
				return errors.New("no guess allowed on the closing turn")
			}
			if dry {
				return nil
			}
			g.lastResults = results
			g.phase = game.PhaseDraw
			g.p1Rev, g.p2Rev = false, false
			g.deadline = l.nowSecs() + uint64(l.cfg.RevealWindow/time.Second)
			return nil
		}
	}

	if err := l.verifyGuess(a.Guess, a.Membership); err != nil {
		return err
	}
	if dry {
		return nil
	}
	if results != nil {
		g.lastResults = results
	}
	g.lastGuess = a.Guess
	g.turn++

	// chess clock: bank what the mover has left, start the opponent's
	mine := g.deadline - l.nowSecs()
	g.setTime(role, mine)
	g.deadline = l.nowSecs() + g.time(role.Opponent())
	return nil
}

func (l *Ledger) revealWord(tx ledger.Tx, dry bool) error {
	var a ledger.RevealArgs
	if err := decodeArgs(tx, &a); err != nil {
		return err
	}
	g, err := l.lookup(tx.GameID)
	if err != nil {
		return err
	}
	if g.phase != game.PhaseReveal {
		return errWrongPhase
	}
	caller := l.resolve(tx.GameID, tx.Source)
	if caller != g.winner {
		return errNotWinner
	}
	role := g.roleOf(caller)
	word, err := l.verifyReveal(g.commitment(role), a)
	if err != nil {
		return err
	}
	if dry {
		return nil
	}
	g.setRevealed(role, word)
	g.phase = game.PhaseFinalized
	return nil
}

func (l *Ledger) revealWordDraw(tx ledger.Tx, dry bool) error {
	var a ledger.RevealArgs
	if err := decodeArgs(tx, &a); err != nil {
		return err
	}
	g, err := l.lookup(tx.GameID)
	if err != nil {
		return err
	}
	if g.phase != game.PhaseDraw {
		return errWrongPhase
	}
	role := g.roleOf(l.resolve(tx.GameID, tx.Source))
	if role == game.NoRole {
		return errWrongPlayer
	}
	if g.revealed(role) {
		return errors.New("already revealed")
	}
	word, err := l.verifyReveal(g.commitment(role), a)
	if err != nil {
		return err
	}
	if dry {
		return nil
	}
	g.setRevealed(role, word)
	return nil
}

func (l *Ledger) resign(tx ledger.Tx, dry bool) error {
	g, err := l.lookup(tx.GameID)
	if err != nil {
		return err
	}
	if g.phase != game.PhaseActive {
		return errWrongPhase
	}
	role := g.roleOf(l.resolve(tx.GameID, tx.Source))
	if role == game.NoRole {
		return errWrongPlayer
	}
	if dry {
		return nil
	}
	g.winner = g.player(role.Opponent())
	g.phase = game.PhaseFinalized
	return nil
}

// claimTimeout finalizes in the caller's favor once the party that owed an
// action let the deadline pass: the player to move while active, the winner
// while revealing, the non-revealer in a draw.
func (l *Ledger) claimTimeout(tx ledger.Tx, dry bool) error {
	var a ledger.RevealArgs
	if err := decodeArgs(tx, &a); err != nil {
		return err
	}
	g, err := l.lookup(tx.GameID)
	if err != nil {
		return err
	}
	if l.nowSecs() <= g.deadline {
		return errTooEarly
	}
	caller := l.resolve(tx.GameID, tx.Source)
	role := g.roleOf(caller)
	if role == game.NoRole {
		return errWrongPlayer
	}

	switch g.phase {
	case game.PhaseActive:
		if game.TurnOwner(g.turn) == role {
			return errWrongPlayer
		}
	case game.PhaseReveal:
		if caller == g.winner {
			return errWrongPlayer
		}
	case game.PhaseDraw:
		if !g.revealed(role) || g.revealed(role.Opponent()) {
			return errWrongPlayer
		}
		if dry {
			return nil
		}
		g.winner = caller
		g.phase = game.PhaseFinalized
		return nil
	default:
		return errWrongPhase
	}

	word, err := l.verifyReveal(g.commitment(role), a)
	if err != nil {
		return err
	}
	if dry {
		return nil
	}
	g.setRevealed(role, word)
	g.winner = caller
	g.phase = game.PhaseFinalized
	return nil
}

func (l *Ledger) withdraw(tx ledger.Tx, dry bool) error {
	g, err := l.lookup(tx.GameID)
	if err != nil {
		return err
	}
	if g.phase != game.PhaseFinalized && g.phase != game.PhaseDraw {
		return errWrongPhase
	}
	caller := l.resolve(tx.GameID, tx.Source)
	role := g.roleOf(caller)
	if role == game.NoRole {
		return errWrongPlayer
	}
	if g.withdrawn(role) {
		return errWithdrawn
	}
	var payout int64
	if g.phase == game.PhaseFinalized {
		if caller != g.winner {
			return errNotWinner
		}
		payout = 2 * g.escrow
	} else {
		if !g.p1Rev || !g.p2Rev {
			return fmt.Errorf("%w: both players must reveal", errReveal)
		}
		payout = g.escrow
	}
	if dry {
		return nil
	}
	// funds always go to the player, never to a session key
	l.balances[caller] += payout
	g.setWithdrawn(role)
	return nil
}

func (l *Ledger) registerSessionKey(tx ledger.Tx, dry bool) error {
	var a ledger.RegisterSessionKeyArgs
	if err := decodeArgs(tx, &a); err != nil {
		return err
	}
	g, err := l.lookup(tx.GameID)
	if err != nil {
		return err
	}
	if a.Player == "" || g.roleOf(a.Player) == game.NoRole {
		return errWrongPlayer
	}
	if tx.Source == a.Player {
		return errors.New("session key must differ from player")
	}
	if dry {
		return nil
	}
	l.sessions[tx.Source] = binding{gameID: tx.GameID, player: a.Player}
	return nil
}

func (l *Ledger) transfer(tx ledger.Tx, dry bool) error {
	var a ledger.TransferArgs
	if err := decodeArgs(tx, &a); err != nil {
		return err
	}
	if a.Amount <= 0 || a.To == "" {
		return errors.New("invalid transfer")
	}
	if l.balances[tx.Source] < a.Amount {
		return errFunds
	}
	if dry {
		return nil
	}
	l.balances[tx.Source] -= a.Amount
	l.balances[a.To] += a.Amount
	return nil
}

func (l *Ledger) mergeAccount(tx ledger.Tx, dry bool) error {
	var a ledger.MergeAccountArgs
	if err := decodeArgs(tx, &a); err != nil {
		return err
	}
	if a.Into == "" || a.Into == tx.Source {
		return errors.New("invalid merge destination")
	}
	if dry {
		return nil
	}
	l.balances[a.Into] += l.balances[tx.Source]
	delete(l.balances, tx.Source)
	return nil
}
