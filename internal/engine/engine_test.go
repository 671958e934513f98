package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wordduel-zk/internal/codec"
	"wordduel-zk/internal/game"
	"wordduel-zk/internal/ledger"
	"wordduel-zk/internal/ledger/ledgertest"
	"wordduel-zk/internal/merkle"
	"wordduel-zk/internal/reconcile"
	"wordduel-zk/internal/session"
	"wordduel-zk/internal/signer"
	"wordduel-zk/internal/store"
)

var testWords = []string{"apple", "house", "crane", "horse", "paper", "zebra", "moist", "light", "brick", "ghost", "plant", "sugar"}

const funds = 1000

type table struct {
	t      *testing.T
	l      *ledgertest.Ledger
	dict   *merkle.Dictionary
	prover *ledgertest.FakeProver
	sender *ledger.Sender
}

type player struct {
	*Engine
	wallet *signer.KeySigner
	store  *store.Store
	poller *reconcile.Poller
}

func newTable(t *testing.T, cfg ledgertest.Config) *table {
	t.Helper()
	words := make([]game.Word, len(testWords))
	for i, s := range testWords {
		w, err := game.ParseWord(s)
		require.NoError(t, err)
		words[i] = w
	}
	dict, err := merkle.NewDictionary(words, merkle.Keccak)
	require.NoError(t, err)
	cfg.GuessRoot = dict.Root()
	l := ledgertest.New(cfg)
	return &table{
		t: t, l: l, dict: dict, prover: &ledgertest.FakeProver{},
		sender: ledger.NewSender(l, 3, time.Millisecond, nil),
	}
}

func (tb *table) player(mod func(*Options)) *player {
	tb.t.Helper()
	wallet, err := signer.Generate(nil)
	require.NoError(tb.t, err)
	tb.l.Mint(wallet.Address(), funds)
	st, err := store.New(context.Background(), nil, nil)
	require.NoError(tb.t, err)
	poller := reconcile.NewPoller(st, tb.l, nil, nil)

	opts := Options{
		Store: st, Ledger: tb.l, Sender: tb.sender, Wallet: wallet,
		Prover: tb.prover, Guesses: tb.dict, Poller: poller,
	}
	if mod != nil {
		mod(&opts)
	}
	e, err := New(opts)
	require.NoError(tb.t, err)
	poller.OnMerged(e.OnMerged)
	return &player{Engine: e, wallet: wallet, store: st, poller: poller}
}

func (p *player) sync(t *testing.T) *store.GameState {
	t.Helper()
	_, err := p.poller.PollOnce(context.Background())
	require.NoError(t, err)
	return p.store.Snapshot()
}

// start opens a game between two fresh players, first mover holding w1.
func (tb *table) start(w1, w2 string, escrow int64) (*player, *player) {
	tb.t.Helper()
	ctx := context.Background()
	p1, p2 := tb.player(nil), tb.player(nil)
	gs, err := p1.CreateGame(ctx, w1, escrow)
	require.NoError(tb.t, err)
	require.Equal(tb.t, game.PhaseWaiting, gs.OnChainPhase)

	gs, err = p2.JoinGame(ctx, gs.GameID, w2)
	require.NoError(tb.t, err)
	require.Equal(tb.t, game.PhaseActive, gs.OnChainPhase)
	require.Equal(tb.t, game.SecondMover, gs.MyRole)
	p1.sync(tb.t)
	return p1, p2
}

func lastArgs(t *testing.T, l *ledgertest.Ledger) (ledger.Tx, ledger.SubmitTurnArgs) {
	t.Helper()
	txs := l.Submitted()
	require.NotEmpty(t, txs)
	tx := txs[len(txs)-1].Tx
	var a ledger.SubmitTurnArgs
	require.NoError(t, json.Unmarshal(tx.Args, &a))
	return tx, a
}

func TestFirstTurnIsGuessOnly(t *testing.T) {
	tb := newTable(t, ledgertest.Config{})
	p1, p2 := tb.start("crane", "zebra", 10)
	ctx := context.Background()

	gs, err := p1.SubmitTurn(ctx, "house")
	require.NoError(t, err)
	tx, args := lastArgs(t, tb.l)
	require.Equal(t, ledger.MethodSubmitTurn, tx.Method)
	require.Nil(t, args.PriorResult, "turn 1 has nothing to confirm")
	require.NotNil(t, args.Membership)
	require.Equal(t, "house", args.Guess)

	require.EqualValues(t, 2, gs.OnChainTurn)
	require.False(t, gs.IsMyTurn())
	require.Equal(t, []store.GuessEntry{{Word: "house"}}, gs.MyGuesses)

	gs = p2.sync(t)
	require.True(t, gs.IsMyTurn())
	require.Len(t, gs.OpponentGuesses, 1)
	require.Equal(t, "house", gs.OpponentGuesses[0].Word)

	// turn 2 bundles the score of "house"
	_, err = p2.SubmitTurn(ctx, "apple")
	require.NoError(t, err)
	_, args = lastArgs(t, tb.l)
	require.NotNil(t, args.PriorResult)
	pub, err := codec.DecodeGuessPublic(args.PriorResult.PublicInputs)
	require.NoError(t, err)
	require.Equal(t, "house", string(pub.Guess[:]))

	gs = p1.sync(t)
	require.EqualValues(t, 3, gs.OnChainTurn)
	require.True(t, gs.MyGuesses[0].Verified)
	require.Equal(t, score(t, "house", "zebra"), gs.MyGuesses[0].Results)
	require.Equal(t, score(t, "apple", "crane"), gs.OpponentGuesses[0].Results)
}

func score(t *testing.T, guess, secret string) []game.Outcome {
	g, err := game.ParseWord(guess)
	require.NoError(t, err)
	s, err := game.ParseWord(secret)
	require.NoError(t, err)
	return game.Score(g, s).Slice()
}

func TestExactGuessMovesToReveal(t *testing.T) {
	tb := newTable(t, ledgertest.Config{})
	p1, p2 := tb.start("crane", "zebra", 10)
	ctx := context.Background()

	_, err := p1.SubmitTurn(ctx, "zebra")
	require.NoError(t, err)
	p2.sync(t)

	_, err = p2.SubmitTurn(ctx, "house")
	require.ErrorIs(t, err, game.ErrWrongPhase, "a found word can only be verified")

	gs, err := p2.VerifyOnly(ctx)
	require.NoError(t, err)
	require.Equal(t, game.PhaseReveal, gs.OnChainPhase)
	require.False(t, gs.IsWinner())
	_, err = p2.Reveal(ctx)
	require.ErrorIs(t, err, game.ErrNotWinner, "the guesser reveals, not the opponent")

	gs = p1.sync(t)
	require.Equal(t, game.PhaseReveal, gs.OnChainPhase)
	require.True(t, gs.IsWinner())
	require.Equal(t, game.Results{game.Correct, game.Correct, game.Correct, game.Correct, game.Correct}.Slice(), gs.MyGuesses[0].Results)

	gs, err = p1.Reveal(ctx)
	require.NoError(t, err)
	require.Equal(t, game.PhaseFinalized, gs.OnChainPhase)
	require.False(t, gs.OptimisticPhase)

	before := tb.l.Balance(p1.Address())
	gs, err = p1.Withdraw(ctx)
	require.NoError(t, err)
	require.True(t, gs.EscrowWithdrawn)
	require.EqualValues(t, before+20, tb.l.Balance(p1.Address()))

	_, err = p1.Withdraw(ctx)
	require.ErrorIs(t, err, game.ErrAlreadyDone)

	gs = p2.sync(t)
	require.Equal(t, "crane", gs.OpponentWord)
	_, err = p2.Withdraw(ctx)
	require.ErrorIs(t, err, game.ErrNotWinner)
}

func TestDrawNeedsBothReveals(t *testing.T) {
	tb := newTable(t, ledgertest.Config{})
	p1, p2 := tb.start("crane", "zebra", 10)
	ctx := context.Background()
	guesses := []string{"apple", "house", "horse", "paper", "moist", "light"}

	for turn := 1; turn <= 2*game.MaxGuesses; turn++ {
		mover, other := p1, p2
		if turn%2 == 0 {
			mover, other = p2, p1
		}
		_, err := mover.SubmitTurn(ctx, guesses[(turn-1)/2])
		require.NoError(t, err, "turn %d", turn)
		other.sync(t)
	}

	gs := p1.sync(t)
	require.EqualValues(t, game.MaxTurns, gs.OnChainTurn)
	_, err := p1.SubmitTurn(ctx, "brick")
	require.ErrorIs(t, err, game.ErrGuessBudget)

	gs, err = p1.VerifyOnly(ctx)
	require.NoError(t, err)
	require.Equal(t, game.PhaseDraw, gs.OnChainPhase)
	require.Len(t, gs.MyGuesses, game.MaxGuesses)
	require.Len(t, gs.OpponentGuesses, game.MaxGuesses)
	for _, g := range gs.OpponentGuesses {
		require.True(t, g.Verified)
	}

	_, err = p1.Withdraw(ctx)
	require.ErrorIs(t, err, game.ErrWrongPhase)
	_, err = p1.RevealDraw(ctx)
	require.NoError(t, err)
	_, err = p1.RevealDraw(ctx)
	require.ErrorIs(t, err, game.ErrAlreadyDone)
	_, err = p1.Withdraw(ctx)
	require.ErrorIs(t, err, game.ErrWrongPhase, "opponent has not revealed")

	p2.sync(t)
	_, err = p2.RevealDraw(ctx)
	require.NoError(t, err)
	p1.sync(t)

	for _, p := range []*player{p1, p2} {
		gs, err := p.Withdraw(ctx)
		require.NoError(t, err)
		require.True(t, gs.EscrowWithdrawn)
		require.EqualValues(t, funds, tb.l.Balance(p.Address()), "stake returned")
	}
}

func TestFailedTransactionRollsBack(t *testing.T) {
	tb := newTable(t, ledgertest.Config{})
	p1, _ := tb.start("crane", "zebra", 10)
	ctx := context.Background()

	_, err := p1.SetInput("hous")
	require.NoError(t, err)
	before := p1.store.Snapshot()

	tb.l.FailNext(ledger.MethodSubmitTurn, "out of gas")
	_, err = p1.SubmitTurn(ctx, "house")
	require.ErrorIs(t, err, game.ErrTxFailed)
	require.Equal(t, before, p1.store.Snapshot())

	tb.l.RejectSimulation(ledger.MethodSubmitTurn, "nope")
	_, err = p1.SubmitTurn(ctx, "house")
	require.ErrorIs(t, err, game.ErrSimulationRejected)
	require.Equal(t, before, p1.store.Snapshot())
	tb.l.RejectSimulation(ledger.MethodSubmitTurn, "")

	gs, err := p1.SubmitTurn(ctx, "house")
	require.NoError(t, err)
	require.Len(t, gs.MyGuesses, 1)
	require.Empty(t, gs.PendingInput)
}

func TestFailedCreateRestoresPreviousState(t *testing.T) {
	tb := newTable(t, ledgertest.Config{})
	p := tb.player(nil)
	tb.l.FailNext(ledger.MethodCreateGame, "boom")

	_, err := p.CreateGame(context.Background(), "crane", 10)
	require.ErrorIs(t, err, game.ErrTxFailed)
	require.Nil(t, p.store.Snapshot())
	require.Empty(t, p.History())
}

func TestValidationBeforeAnyIO(t *testing.T) {
	tb := newTable(t, ledgertest.Config{})
	p1, p2 := tb.start("crane", "zebra", 10)
	ctx := context.Background()

	calls, sent := tb.prover.Calls.Load(), len(tb.l.Submitted())
	snap1, snap2 := p1.store.Snapshot(), p2.store.Snapshot()

	_, err := p2.SubmitTurn(ctx, "house")
	require.ErrorIs(t, err, game.ErrNotYourTurn)
	_, err = p1.SubmitTurn(ctx, "hi")
	require.ErrorIs(t, err, game.ErrInvalidWord)
	_, err = p1.SubmitTurn(ctx, "zonks")
	require.ErrorIs(t, err, game.ErrNotInDictionary)
	_, err = p1.VerifyOnly(ctx)
	require.ErrorIs(t, err, game.ErrWrongPhase)
	_, err = p1.Reveal(ctx)
	require.ErrorIs(t, err, game.ErrWrongPhase)
	_, err = p1.ClaimTimeout(ctx)
	require.ErrorIs(t, err, game.ErrWrongPhase, "own turn")
	_, err = p1.CreateGame(ctx, "apple", 1)
	require.ErrorIs(t, err, game.ErrWrongPhase, "game in progress")
	_, err = p1.SetInput("ab1")
	require.ErrorIs(t, err, game.ErrInvalidWord)

	outsider := tb.player(nil)
	_, err = outsider.SubmitTurn(ctx, "house")
	require.ErrorIs(t, err, game.ErrNoGame)
	_, err = outsider.CreateGame(ctx, "crane", -1)
	require.ErrorIs(t, err, game.ErrInvalidAmount)

	require.Equal(t, calls, tb.prover.Calls.Load(), "no proofs generated")
	require.Len(t, tb.l.Submitted(), sent, "nothing submitted")
	require.Equal(t, snap1, p1.store.Snapshot())
	require.Equal(t, snap2, p2.store.Snapshot())
}

func TestProofFailureLeavesStore(t *testing.T) {
	tb := newTable(t, ledgertest.Config{})
	p1, p2 := tb.start("crane", "zebra", 10)
	ctx := context.Background()
	_, err := p1.SubmitTurn(ctx, "house")
	require.NoError(t, err)
	before := p2.sync(t)

	tb.prover.Err = errors.New("prover crashed")
	sent := len(tb.l.Submitted())
	_, err = p2.SubmitTurn(ctx, "apple")
	require.ErrorIs(t, err, game.ErrProofFailed)
	require.Equal(t, before, p2.store.Snapshot())
	require.Len(t, tb.l.Submitted(), sent)
}

type gatedProver struct {
	*ledgertest.FakeProver
	entered chan struct{}
	gate    chan struct{}
}

func (p *gatedProver) ProveWordCommit(ctx context.Context, s codec.Secret) (codec.Proof, error) {
	close(p.entered)
	<-p.gate
	return p.FakeProver.ProveWordCommit(ctx, s)
}

func TestBusyGuard(t *testing.T) {
	tb := newTable(t, ledgertest.Config{})
	gp := &gatedProver{FakeProver: tb.prover, entered: make(chan struct{}), gate: make(chan struct{})}
	p := tb.player(func(o *Options) { o.Prover = gp })
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := p.CreateGame(ctx, "crane", 10)
		done <- err
	}()
	<-gp.entered

	_, err := p.CreateGame(ctx, "apple", 10)
	require.ErrorIs(t, err, game.ErrBusy)
	require.ErrorIs(t, p.Abandon(ctx), game.ErrBusy)

	close(gp.gate)
	require.NoError(t, <-done)
	require.Len(t, tb.l.Games(), 1)
}

func TestResignAndTimeout(t *testing.T) {
	tb := newTable(t, ledgertest.Config{})
	ctx := context.Background()

	p1, p2 := tb.start("crane", "zebra", 10)
	_, err := p1.Resign(ctx)
	require.NoError(t, err)
	gs := p2.sync(t)
	require.Equal(t, game.PhaseFinalized, gs.OnChainPhase)
	require.True(t, gs.IsWinner())
	_, err = p2.Withdraw(ctx)
	require.NoError(t, err)

	// p1 stalls on turn 1; p2 claims after the deadline
	p1, p2 = tb.start("crane", "zebra", 10)
	_, err = p2.ClaimTimeout(ctx)
	require.ErrorIs(t, err, game.ErrSimulationRejected, "ledger enforces the deadline")
	require.Equal(t, game.PhaseActive, p2.store.Snapshot().OnChainPhase, "rolled back")

	tb.l.Advance(ledgertest.DefaultTurnDuration + time.Second)
	gs, err = p2.ClaimTimeout(ctx)
	require.NoError(t, err)
	require.Equal(t, game.PhaseFinalized, gs.OnChainPhase)
	require.True(t, gs.IsWinner())
	gs = p1.sync(t)
	require.False(t, gs.IsWinner())
	require.Equal(t, "zebra", gs.OpponentWord, "claim carried the reveal")
}

func TestExpiredGame(t *testing.T) {
	tb := newTable(t, ledgertest.Config{})
	p1, _ := tb.start("crane", "zebra", 10)
	ctx := context.Background()

	tb.l.Expire(p1.store.Snapshot().GameID)
	gs := p1.sync(t)
	require.True(t, gs.Expired)
	_, err := p1.SubmitTurn(ctx, "house")
	require.ErrorIs(t, err, game.ErrGameExpired)

	require.NoError(t, p1.Abandon(ctx))
	_, err = p1.Status()
	require.ErrorIs(t, err, game.ErrNoGame)
	require.Len(t, p1.History(), 1)

	_, err = p1.CreateGame(ctx, "apple", 5)
	require.NoError(t, err)
	require.Len(t, p1.History(), 2)
}

func TestSessionKeyLifecycle(t *testing.T) {
	tb := newTable(t, ledgertest.Config{Fee: 1})
	ctx := context.Background()
	sessions := session.NewManager(session.NewMemoryKeyStore(), tb.sender, nil)
	withSession := func(o *Options) {
		o.Sessions, o.UseSessionKey, o.SessionFund = sessions, true, 50
	}
	p1, p2 := tb.player(withSession), tb.player(nil)

	gs, err := p1.CreateGame(ctx, "crane", 10)
	require.NoError(t, err)
	id := gs.GameID
	rec, ok, err := sessions.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, rec.Funded && rec.Registered)
	require.Equal(t, rec.PublicKey, tb.l.SessionKey(id, p1.Address()))

	_, err = p2.JoinGame(ctx, id, "zebra")
	require.NoError(t, err)
	p1.sync(t)

	_, err = p1.SubmitTurn(ctx, "house")
	require.NoError(t, err)
	tx, _ := lastArgs(t, tb.l)
	require.Equal(t, rec.PublicKey, tx.Source, "turns are signed by the session key")

	wallet := tb.l.Balance(p1.Address())
	left := tb.l.Balance(rec.PublicKey)
	_, err = p1.Resign(ctx)
	require.NoError(t, err)

	_, ok, err = sessions.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, ok, "loser reclaims at finalization")
	require.Zero(t, tb.l.Balance(rec.PublicKey))
	require.EqualValues(t, wallet+left-1, tb.l.Balance(p1.Address()), "remaining fee money returned")
}

func TestTimedOutGuessThatLandedIsRecovered(t *testing.T) {
	tb := newTable(t, ledgertest.Config{})
	p1, p2 := tb.start("crane", "zebra", 10)
	ctx := context.Background()

	// the turn lands but every status check reports pending
	tb.l.SetPendingChecks(10)
	_, err := p1.SubmitTurn(ctx, "house")
	require.ErrorIs(t, err, game.ErrConfirmationTimeout)
	tb.l.SetPendingChecks(0)

	gs := p1.store.Snapshot()
	require.Empty(t, gs.MyGuesses, "rolled back")
	require.Equal(t, &store.UnconfirmedGuess{Index: 0, Word: "house"}, gs.Unconfirmed)

	// the opponent moves on before p1 polls again
	p2.sync(t)
	_, err = p2.SubmitTurn(ctx, "apple")
	require.NoError(t, err)

	tb.l.SetSnapshotError(errors.New("gateway down"))
	_, err = p1.poller.PollOnce(ctx)
	require.Error(t, err)
	require.Equal(t, gs, p1.store.Snapshot(), "a failed poll keeps the unconfirmed guess")
	tb.l.SetSnapshotError(nil)

	gs = p1.sync(t)
	require.Nil(t, gs.Unconfirmed)
	require.Len(t, gs.MyGuesses, 1)
	require.Equal(t, "house", gs.MyGuesses[0].Word)
	require.True(t, gs.MyGuesses[0].Verified)
	require.Equal(t, score(t, "house", "zebra"), gs.MyGuesses[0].Results)
	require.Len(t, gs.OpponentGuesses, 1)
	require.True(t, gs.IsMyTurn())

	gs, err = p1.SubmitTurn(ctx, "paper")
	require.NoError(t, err)
	require.Len(t, gs.MyGuesses, 2)
}

func TestTimedOutJoinThatLandedIsAdopted(t *testing.T) {
	tb := newTable(t, ledgertest.Config{})
	ctx := context.Background()
	p1, p2 := tb.player(nil), tb.player(nil)
	gs, err := p1.CreateGame(ctx, "crane", 10)
	require.NoError(t, err)
	id := gs.GameID

	tb.l.SetPendingChecks(10)
	_, err = p2.JoinGame(ctx, id, "zebra")
	require.ErrorIs(t, err, game.ErrConfirmationTimeout)
	tb.l.SetPendingChecks(0)

	require.Nil(t, p2.store.Snapshot(), "rolled back")
	require.Equal(t, []string{id}, tb.l.GamesOf(p2.Address()), "the join landed")
	require.EqualValues(t, funds-10, tb.l.Balance(p2.Address()))
	parked := p2.store.Parked()
	require.NotNil(t, parked)
	require.Equal(t, "zebra", parked.SecretWord)

	_, err = p2.CreateGame(ctx, "house", 0)
	require.ErrorIs(t, err, game.ErrWrongPhase, "no new game while one may still land")

	gs = p2.sync(t)
	require.NotNil(t, gs)
	require.Equal(t, id, gs.GameID)
	require.Equal(t, game.PhaseActive, gs.OnChainPhase)
	require.Equal(t, parked.SecretSalt, gs.SecretSalt)
	require.Nil(t, p2.store.Parked())
	require.Len(t, p2.History(), 1)

	// the adopted secret proves the score of the first guess
	p1.sync(t)
	_, err = p1.SubmitTurn(ctx, "house")
	require.NoError(t, err)
	p2.sync(t)
	_, err = p2.SubmitTurn(ctx, "apple")
	require.NoError(t, err)
}

func TestParkedJoinDroppedWhenSeatTaken(t *testing.T) {
	tb := newTable(t, ledgertest.Config{})
	ctx := context.Background()
	p1, p2, p3 := tb.player(nil), tb.player(nil), tb.player(nil)
	gs, err := p1.CreateGame(ctx, "crane", 10)
	require.NoError(t, err)

	tb.l.DropNext(ledger.MethodJoinGame)
	_, err = p2.JoinGame(ctx, gs.GameID, "zebra")
	require.ErrorIs(t, err, game.ErrConfirmationTimeout)
	require.NotNil(t, p2.store.Parked())

	_, err = p3.JoinGame(ctx, gs.GameID, "horse")
	require.NoError(t, err)

	_, err = p2.poller.PollOnce(ctx)
	require.NoError(t, err)
	require.Nil(t, p2.store.Parked())
	require.Nil(t, p2.store.Snapshot())
	require.Empty(t, tb.l.GamesOf(p2.Address()))
	require.EqualValues(t, funds, tb.l.Balance(p2.Address()))
}

func TestAbandonDiscardsParkedGame(t *testing.T) {
	tb := newTable(t, ledgertest.Config{})
	ctx := context.Background()
	p := tb.player(nil)

	tb.l.DropNext(ledger.MethodCreateGame)
	_, err := p.CreateGame(ctx, "crane", 10)
	require.ErrorIs(t, err, game.ErrConfirmationTimeout)
	require.NotNil(t, p.store.Parked())

	require.NoError(t, p.Abandon(ctx))
	require.Nil(t, p.store.Parked())
	_, err = p.CreateGame(ctx, "crane", 10)
	require.NoError(t, err)
}

func TestRollbackKeepsLedgerStateMergedMeanwhile(t *testing.T) {
	tb := newTable(t, ledgertest.Config{})
	ctx := context.Background()

	var during func()
	wallet, err := signer.Generate(func(_ context.Context, tx ledger.Tx) error {
		if during != nil && tx.Method == ledger.MethodSubmitTurn {
			during()
		}
		return nil
	})
	require.NoError(t, err)
	tb.l.Mint(wallet.Address(), funds)
	p1 := tb.player(func(o *Options) { o.Wallet = wallet })
	p2 := tb.player(nil)

	gs, err := p1.CreateGame(ctx, "crane", 10)
	require.NoError(t, err)
	_, err = p2.JoinGame(ctx, gs.GameID, "zebra")
	require.NoError(t, err)
	p1.sync(t)

	// the opponent resigns and a poll merges it while the guess is being signed
	during = func() {
		during = nil
		_, err := p2.Resign(ctx)
		require.NoError(t, err)
		_, err = p1.poller.PollOnce(ctx)
		require.NoError(t, err)
	}
	_, err = p1.SubmitTurn(ctx, "house")
	require.ErrorIs(t, err, game.ErrTxFailed)

	gs = p1.store.Snapshot()
	require.Empty(t, gs.MyGuesses, "the guess is rolled back")
	require.Equal(t, game.PhaseFinalized, gs.OnChainPhase, "the merged phase is not")
	require.True(t, gs.IsWinner())
}
