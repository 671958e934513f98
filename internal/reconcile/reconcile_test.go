package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/stretchr/testify/require"

	"wordduel-zk/internal/codec"
	"wordduel-zk/internal/game"
	"wordduel-zk/internal/ledger"
	"wordduel-zk/internal/store"
)

var allCorrect = []game.Outcome{game.Correct, game.Correct, game.Correct, game.Correct, game.Correct}

func newState(role game.Role, secret string) *store.GameState {
	w, _ := game.ParseWord(secret)
	s := codec.Secret{Word: secret, Letters: w.LetterCodes(), Salt: 5, Commitment: "0x1"}
	me, opp := "p1", "p2"
	if role == game.SecondMover {
		me, opp = opp, me
	}
	gs := store.NewGameState("g1", role, me, s, 10, time.Unix(1, 0).UTC())
	gs.OpponentAddress = opp
	return gs
}

func snapshot(phase game.Phase, turn uint32) ledger.Snapshot {
	return ledger.Snapshot{
		GameID: "g1", Phase: phase, Turn: turn,
		Player1: "p1", Player2: "p2",
		Deadline: 2000, P1Time: 280, P2Time: 300, EscrowAmount: 10,
	}
}

func score(t *testing.T, guess, secret string) []game.Outcome {
	g, err := game.ParseWord(guess)
	require.NoError(t, err)
	s, err := game.ParseWord(secret)
	require.NoError(t, err)
	return game.Score(g, s).Slice()
}

func TestMergeIsIdempotent(t *testing.T) {
	gs := newState(game.FirstMover, "crane")
	gs.MyGuesses = []store.GuessEntry{{Word: "house"}}
	gs.OptimisticPhase = true

	// turn 2 verified my turn-1 guess and guessed "apple"
	snap := snapshot(game.PhaseActive, 3)
	snap.LastGuess = "apple"
	snap.LastResults = score(t, "house", "zebra")

	require.True(t, Merge(gs, snap))
	require.True(t, gs.IsMyTurn())
	require.False(t, gs.OptimisticPhase)
	require.EqualValues(t, 280, gs.MyTimeRemaining)
	require.EqualValues(t, 300, gs.OpponentTimeRemaining)
	require.True(t, gs.MyGuesses[0].Verified)
	require.Equal(t, snap.LastResults, gs.MyGuesses[0].Results)
	require.Len(t, gs.OpponentGuesses, 1)
	require.Equal(t, "apple", gs.OpponentGuesses[0].Word)
	require.Equal(t, score(t, "apple", "crane"), gs.OpponentGuesses[0].Results)
	require.False(t, gs.OpponentGuesses[0].Verified)

	once := gs.Clone()
	require.False(t, Merge(gs, snap), "second merge of the same snapshot")
	require.Equal(t, once, gs)
}

func TestMergeMarksOpponentVerified(t *testing.T) {
	gs := newState(game.FirstMover, "crane")
	gs.MyGuesses = []store.GuessEntry{{Word: "house", Results: score(t, "house", "zebra"), Verified: true}, {Word: "paper"}}
	gs.OpponentGuesses = []store.GuessEntry{{Word: "apple", Results: score(t, "apple", "crane")}}

	// my turn-3 submission verified "apple"; the opponent then guessed "moist"
	snap := snapshot(game.PhaseActive, 5)
	snap.LastGuess = "moist"
	snap.LastResults = score(t, "paper", "zebra")

	require.True(t, Merge(gs, snap))
	require.True(t, gs.MyGuesses[1].Verified)
	require.Len(t, gs.OpponentGuesses, 2)
	require.True(t, gs.OpponentGuesses[0].Verified)
	require.False(t, gs.OpponentGuesses[1].Verified)
}

func TestMergeIgnoresPendingOwnGuess(t *testing.T) {
	gs := newState(game.SecondMover, "crane")
	gs.OpponentGuesses = []store.GuessEntry{{Word: "apple", Results: score(t, "apple", "crane")}}
	gs.MyGuesses = []store.GuessEntry{{Word: "house"}}

	// my turn-2 guess is on the ledger but not yet scored
	snap := snapshot(game.PhaseActive, 3)
	snap.LastGuess = "house"
	require.True(t, Merge(gs, snap))
	require.False(t, gs.MyGuesses[0].Verified)
	require.Len(t, gs.OpponentGuesses, 1, "house is my guess, not the opponent's")
	require.False(t, gs.IsMyTurn())
}

func TestMergeRecoversOwnGuessAfterRollback(t *testing.T) {
	gs := newState(game.FirstMover, "crane")

	// the turn-1 submission timed out locally but landed
	snap := snapshot(game.PhaseActive, 2)
	snap.LastGuess = "house"
	require.True(t, Merge(gs, snap))
	require.Equal(t, []store.GuessEntry{{Word: "house"}}, gs.MyGuesses)
	require.Empty(t, gs.OpponentGuesses)
	require.False(t, Merge(gs, snap))
}

func TestMergeRevealAndFinalized(t *testing.T) {
	gs := newState(game.FirstMover, "crane")
	gs.MyGuesses = []store.GuessEntry{
		{Word: "house", Results: score(t, "house", "zebra"), Verified: true},
		{Word: "zebra"},
	}
	gs.OpponentGuesses = []store.GuessEntry{{Word: "apple", Results: score(t, "apple", "crane"), Verified: true}}

	snap := snapshot(game.PhaseReveal, 4)
	snap.LastGuess = "zebra"
	snap.LastResults = allCorrect
	snap.Winner = "p1"

	reveal := gs.Clone()
	require.True(t, Merge(reveal, snap))
	require.True(t, reveal.IsWinner())
	require.True(t, reveal.MyGuesses[1].Verified)
	require.Equal(t, allCorrect, reveal.MyGuesses[1].Results)

	// a poll that missed the reveal phase still records the winning result
	snap.Phase = game.PhaseFinalized
	snap.P1Revealed, snap.P1Word = true, "crane"
	final := gs.Clone()
	require.True(t, Merge(final, snap))
	require.Equal(t, allCorrect, final.MyGuesses[1].Results)
	require.True(t, final.DrawRevealed)
	require.False(t, Merge(final, snap))
}

func TestMergeCapturesOpponentWordInDraw(t *testing.T) {
	gs := newState(game.FirstMover, "crane")
	snap := snapshot(game.PhaseDraw, game.MaxTurns)
	snap.P2Revealed, snap.P2Word = true, "zebra"
	require.True(t, Merge(gs, snap))
	require.Equal(t, "zebra", gs.OpponentWord)
	require.True(t, gs.OpponentRevealed)
	require.False(t, gs.DrawRevealed)

	// a snapshot without the word keeps the captured one
	snap.P2Word = ""
	require.False(t, Merge(gs, snap))
	require.Equal(t, "zebra", gs.OpponentWord)
}

func TestMergeIgnoresOlderSnapshot(t *testing.T) {
	older := snapshot(game.PhaseActive, 2)
	older.LastGuess = "house"
	newer := snapshot(game.PhaseActive, 3)
	newer.LastGuess = "apple"
	newer.LastResults = score(t, "house", "zebra")

	inOrder := newState(game.FirstMover, "crane")
	inOrder.MyGuesses = []store.GuessEntry{{Word: "house"}}
	reversed := inOrder.Clone()

	require.True(t, Merge(inOrder, older))
	require.True(t, Merge(inOrder, newer))

	// the fetch for turn 2 completes after the one for turn 3
	require.True(t, Merge(reversed, newer))
	require.False(t, Merge(reversed, older))
	require.Equal(t, inOrder, reversed)
	require.EqualValues(t, 3, reversed.OnChainTurn)

	// within a turn the phase does not move back
	final := snapshot(game.PhaseFinalized, 3)
	final.Winner = "p2"
	require.True(t, Merge(reversed, final))
	require.False(t, Merge(reversed, newer))
	require.Equal(t, game.PhaseFinalized, reversed.OnChainPhase)

	// a phase only assumed locally is not ledger progress
	gs := newState(game.FirstMover, "crane")
	gs.OnChainPhase, gs.OnChainTurn, gs.OptimisticPhase = game.PhaseReveal, 3, true
	require.True(t, Merge(gs, newer))
	require.Equal(t, game.PhaseActive, gs.OnChainPhase)
	require.False(t, gs.OptimisticPhase)
}

func TestMergeReappliesUnconfirmedGuess(t *testing.T) {
	gs := newState(game.FirstMover, "crane")
	gs.OnChainPhase, gs.OnChainTurn = game.PhaseActive, 1
	gs.Unconfirmed = &store.UnconfirmedGuess{Index: 0, Word: "house"}

	// still my turn: the guess has not landed
	Merge(gs, snapshot(game.PhaseActive, 1))
	require.Empty(t, gs.MyGuesses)
	require.NotNil(t, gs.Unconfirmed)

	// it landed and the opponent has already answered it
	snap := snapshot(game.PhaseActive, 3)
	snap.LastGuess = "apple"
	snap.LastResults = score(t, "house", "zebra")
	require.True(t, Merge(gs, snap))
	require.Nil(t, gs.Unconfirmed)
	require.Len(t, gs.MyGuesses, 1)
	require.Equal(t, "house", gs.MyGuesses[0].Word)
	require.True(t, gs.MyGuesses[0].Verified)
	require.Equal(t, snap.LastResults, gs.MyGuesses[0].Results)
	require.Len(t, gs.OpponentGuesses, 1)
	require.Equal(t, score(t, "apple", "crane"), gs.OpponentGuesses[0].Results)
	require.False(t, Merge(gs, snap))
}

type stubClient struct {
	ledger.Client
	snap  ledger.Snapshot
	err   error
	calls atomic.Int32
}

func (c *stubClient) Snapshot(context.Context, string) (ledger.Snapshot, error) {
	c.calls.Add(1)
	return c.snap, c.err
}

func newPoller(t *testing.T, gs *store.GameState, c *stubClient) (*Poller, *store.Store) {
	t.Helper()
	st, err := store.New(context.Background(), nil, nil)
	require.NoError(t, err)
	if gs != nil {
		st.Replace(gs)
	}
	return NewPoller(st, c, nil, nil), st
}

func TestPollOnceUnchangedSnapshot(t *testing.T) {
	gs := newState(game.FirstMover, "crane")
	gs.MyGuesses = []store.GuessEntry{{Word: "house"}}
	snap := snapshot(game.PhaseActive, 3)
	snap.LastGuess = "apple"
	snap.LastResults = score(t, "house", "zebra")

	c := &stubClient{snap: snap}
	p, st := newPoller(t, gs, c)
	var hooked atomic.Int32
	p.OnMerged(func(context.Context, *store.GameState) { hooked.Add(1) })

	res, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.EqualValues(t, 1, hooked.Load())

	before := st.Snapshot()
	res, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, before, st.Snapshot(), "no new information, no mutation")
	require.EqualValues(t, 1, hooked.Load())
}

func TestPollOnceFailureLeavesStore(t *testing.T) {
	gs := newState(game.FirstMover, "crane")
	gs.OnChainPhase = game.PhaseActive
	c := &stubClient{err: errorsmod.Wrap(game.ErrSnapshotDecode, "garbage")}
	p, st := newPoller(t, gs, c)

	before := st.Snapshot()
	_, err := p.PollOnce(context.Background())
	require.ErrorIs(t, err, game.ErrSnapshotDecode)
	require.Equal(t, before, st.Snapshot())

	c.err = errors.New("connection refused")
	_, err = p.PollOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, before, st.Snapshot())
}

func TestPollOnceExpiry(t *testing.T) {
	c := &stubClient{err: errorsmod.Wrap(game.ErrGameNotFound, "g1")}

	// not yet confirmed: the ledger simply has no record yet
	p, st := newPoller(t, newState(game.FirstMover, "crane"), c)
	res, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	require.False(t, res.Expired)
	require.False(t, st.Snapshot().Expired)

	gs := newState(game.FirstMover, "crane")
	gs.OnChainPhase = game.PhaseActive
	p, st = newPoller(t, gs, c)
	res, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	require.True(t, res.Expired)
	require.True(t, st.Snapshot().Expired)
	require.False(t, Live(st.Snapshot()))

	calls := c.calls.Load()
	res, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	require.True(t, res.Skipped)
	require.Equal(t, calls, c.calls.Load(), "expired games are not fetched")
}

func TestPollOnceWithoutGame(t *testing.T) {
	c := &stubClient{}
	p, _ := newPoller(t, nil, c)
	res, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	require.True(t, res.Skipped)
	require.Zero(t, c.calls.Load())
}

func TestLive(t *testing.T) {
	gs := newState(game.FirstMover, "crane")
	require.True(t, Live(gs))

	gs.OnChainPhase = game.PhaseFinalized
	gs.Winner = "p2"
	require.False(t, Live(gs))
	gs.Winner = "p1"
	require.True(t, Live(gs), "winner still has to withdraw")
	gs.EscrowWithdrawn = true
	require.False(t, Live(gs))

	gs.OnChainPhase, gs.EscrowWithdrawn = game.PhaseDraw, false
	require.True(t, Live(gs))
	require.False(t, Live(nil))
}

func TestRunTriggers(t *testing.T) {
	gs := newState(game.FirstMover, "crane")
	c := &stubClient{snap: snapshot(game.PhaseActive, 1)}
	p, st := newPoller(t, gs, c)
	p.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Trigger()
	require.Eventually(t, func() bool {
		return st.Snapshot().OnChainPhase == game.PhaseActive
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestPollOnceAdoptsParkedGame(t *testing.T) {
	c := &stubClient{snap: snapshot(game.PhaseActive, 1)}
	p, st := newPoller(t, nil, c)
	st.Park(newState(game.SecondMover, "crane"))

	res, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Nil(t, st.Parked())
	gs := st.Snapshot()
	require.NotNil(t, gs)
	require.Equal(t, "g1", gs.GameID)
	require.Equal(t, game.PhaseActive, gs.OnChainPhase)
	require.Equal(t, "crane", gs.SecretWord)
	require.Len(t, st.History(), 1)

	latest, ok := p.Latest("g1")
	require.True(t, ok)
	require.EqualValues(t, 1, latest.Turn)
	_, ok = p.Latest("g2")
	require.False(t, ok)
}

func TestPollOnceDropsParkedGame(t *testing.T) {
	ctx := context.Background()

	taken := snapshot(game.PhaseActive, 1)
	taken.Player2 = "p3"
	p, st := newPoller(t, nil, &stubClient{snap: taken})
	st.Park(newState(game.SecondMover, "crane"))
	res, err := p.PollOnce(ctx)
	require.NoError(t, err)
	require.True(t, res.Skipped)
	require.Nil(t, st.Parked())
	require.Nil(t, st.Snapshot())

	// the seat is still open: keep waiting until the record is overdue
	open := snapshot(game.PhaseWaiting, 0)
	open.Player2 = ""
	p, st = newPoller(t, nil, &stubClient{snap: open})
	st.Park(newState(game.SecondMover, "crane"))
	p.now = func() time.Time { return time.Unix(60, 0) }
	_, err = p.PollOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.Parked())
	p.now = func() time.Time { return time.Unix(2, 0).Add(DefaultParkedTTL) }
	_, err = p.PollOnce(ctx)
	require.NoError(t, err)
	require.Nil(t, st.Parked())

	// a create the ledger never saw
	p, st = newPoller(t, nil, &stubClient{err: errorsmod.Wrap(game.ErrGameNotFound, "g1")})
	st.Park(newState(game.FirstMover, "crane"))
	p.now = func() time.Time { return time.Unix(60, 0) }
	_, err = p.PollOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.Parked())
	p.now = func() time.Time { return time.Unix(2, 0).Add(DefaultParkedTTL) }
	_, err = p.PollOnce(ctx)
	require.NoError(t, err)
	require.Nil(t, st.Parked())
}
