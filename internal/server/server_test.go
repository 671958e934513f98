package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"wordduel-zk/internal/codec"
	"wordduel-zk/internal/game"
	"wordduel-zk/internal/metrics"
	"wordduel-zk/internal/store"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeEngine struct {
	st  *store.Store
	err error

	created createReq
	guessed string
}

func (f *fakeEngine) Address() string { return "p1" }

func (f *fakeEngine) CreateGame(_ context.Context, word string, escrow int64) (*store.GameState, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = createReq{Word: word, Escrow: escrow}
	s := codec.Secret{Word: word, Salt: 99, Commitment: "0x1"}
	gs := store.NewGameState("g1", game.FirstMover, "p1", s, escrow, time.Unix(1, 0))
	gs.OnChainPhase, gs.OnChainTurn = game.PhaseActive, 1
	f.st.Replace(gs)
	return f.st.Snapshot(), nil
}

func (f *fakeEngine) JoinGame(context.Context, string, string) (*store.GameState, error) {
	return nil, f.err
}

func (f *fakeEngine) SubmitTurn(_ context.Context, guess string) (*store.GameState, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.guessed = guess
	return f.st.Require()
}

func (f *fakeEngine) simple(context.Context) (*store.GameState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.st.Require()
}

func (f *fakeEngine) VerifyOnly(ctx context.Context) (*store.GameState, error)   { return f.simple(ctx) }
func (f *fakeEngine) Reveal(ctx context.Context) (*store.GameState, error)       { return f.simple(ctx) }
func (f *fakeEngine) RevealDraw(ctx context.Context) (*store.GameState, error)   { return f.simple(ctx) }
func (f *fakeEngine) ClaimTimeout(ctx context.Context) (*store.GameState, error) { return f.simple(ctx) }
func (f *fakeEngine) Withdraw(ctx context.Context) (*store.GameState, error)     { return f.simple(ctx) }
func (f *fakeEngine) Resign(ctx context.Context) (*store.GameState, error)       { return f.simple(ctx) }

func (f *fakeEngine) Abandon(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.st.Clear()
	return nil
}

func (f *fakeEngine) SetInput(text string) (*store.GameState, error) {
	return f.st.Update(store.Local, func(gs *store.GameState) error {
		gs.PendingInput = text
		return nil
	})
}

func (f *fakeEngine) Status() (*store.GameState, error) { return f.st.Require() }
func (f *fakeEngine) History() []store.HistoryEntry    { return f.st.History() }

func newTestServer(t *testing.T) (*fakeEngine, http.Handler) {
	t.Helper()
	st, err := store.New(context.Background(), nil, nil)
	require.NoError(t, err)
	e := &fakeEngine{st: st}
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	s := New(Options{Engine: e, Events: st, Prover: stubProver{}, Gatherer: reg})
	return e, s.Handler()
}

func call(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestStatusWithoutGame(t *testing.T) {
	_, h := newTestServer(t)
	w := call(t, h, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"address":"p1","game":null}`, w.Body.String())
}

func TestCreateThenStatusHidesSalt(t *testing.T) {
	e, h := newTestServer(t)
	w := call(t, h, http.MethodPost, "/v1/create", createReq{Word: "crane", Escrow: 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, createReq{Word: "crane", Escrow: 10}, e.created)
	require.NotContains(t, w.Body.String(), "secretSalt")

	w = call(t, h, http.MethodGet, "/v1/status", nil)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	g := body["game"].(map[string]any)
	require.Equal(t, "g1", g["gameId"])
	require.Equal(t, true, g["isMyTurn"])
	require.Equal(t, "guess-only", g["turnKind"])
	_, hasSalt := g["secretSalt"]
	require.False(t, hasSalt)

	w = call(t, h, http.MethodPost, "/v1/guess", guessReq{Guess: "house"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "house", e.guessed)

	w = call(t, h, http.MethodPost, "/v1/input", inputReq{Text: "ho"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ho", e.st.Snapshot().PendingInput)

	w = call(t, h, http.MethodDelete, "/v1/game", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Nil(t, e.st.Snapshot())
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{errorsmod.Wrap(game.ErrInvalidWord, "x"), http.StatusBadRequest},
		{game.ErrNotInDictionary, http.StatusBadRequest},
		{game.ErrInvalidAmount, http.StatusBadRequest},
		{errorsmod.Wrap(game.ErrNotYourTurn, "turn 2"), http.StatusConflict},
		{game.ErrNoGame, http.StatusConflict},
		{game.ErrBusy, http.StatusTooManyRequests},
		{game.ErrProofFailed, http.StatusUnprocessableEntity},
		{errorsmod.Wrap(game.ErrSimulationRejected, "too early"), http.StatusBadGateway},
		{game.ErrConfirmationTimeout, http.StatusBadGateway},
		{game.ErrGameExpired, http.StatusGone},
		{game.ErrGameNotFound, http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	e, h := newTestServer(t)
	for _, tc := range cases {
		e.err = tc.err
		w := call(t, h, http.MethodPost, "/v1/claim-timeout", nil)
		require.Equal(t, tc.code, w.Code, tc.err.Error())
		body := decode[errorBody](t, w)
		require.Contains(t, body.Error, tc.err.Error())
	}

	e.err = errorsmod.Wrap(game.ErrNotYourTurn, "turn 2")
	body := decode[errorBody](t, call(t, h, http.MethodPost, "/v1/resign", nil))
	require.Equal(t, game.Codespace, body.Codespace)
	require.EqualValues(t, 4, body.Code)
}

func TestMalformedBody(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/create", strings.NewReader("{"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryAndHealth(t *testing.T) {
	e, h := newTestServer(t)
	w := call(t, h, http.MethodGet, "/v1/history", nil)
	require.JSONEq(t, `[]`, w.Body.String())

	e.st.Record(store.HistoryEntry{GameID: "g0", Role: game.SecondMover})
	got := decode[[]store.HistoryEntry](t, call(t, h, http.MethodGet, "/v1/history", nil))
	require.Len(t, got, 1)
	require.Equal(t, "g0", got[0].GameID)

	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/healthz", nil).Code)
	w = call(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "wordduel_")
}

func TestWebsocketPushesChanges(t *testing.T) {
	e, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first wsMessage
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "status", first.Origin)
	require.Equal(t, "p1", first.Address)
	require.Nil(t, first.Game)

	_, err = e.CreateGame(context.Background(), "crane", 5)
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var raw map[string]any
	require.NoError(t, conn.ReadJSON(&raw))
	require.Equal(t, store.Local.String(), raw["origin"])
	g := raw["game"].(map[string]any)
	require.Equal(t, "g1", g["gameId"])
	_, hasSalt := g["secretSalt"]
	require.False(t, hasSalt)
}

type stubProver struct{}

func (stubProver) ProveGuessResult(_ context.Context, s codec.Secret, g game.Word) (codec.Proof, error) {
	if s.Word == "" {
		return codec.Proof{}, errorsmod.Wrap(game.ErrProofFailed, "empty secret")
	}
	return codec.Proof{Proof: []byte("guess:" + g.String()), PublicInputs: []byte(s.Word)}, nil
}

func (p stubProver) ProveSelfReveal(ctx context.Context, s codec.Secret) (codec.Proof, error) {
	w, err := s.WordValue()
	if err != nil {
		return codec.Proof{}, errorsmod.Wrap(game.ErrProofFailed, err.Error())
	}
	return p.ProveGuessResult(ctx, s, w)
}

func (stubProver) ProveWordCommit(_ context.Context, s codec.Secret) (codec.Proof, error) {
	return codec.Proof{Proof: []byte("commit"), PublicInputs: []byte(s.Commitment)}, nil
}

func TestProveRoutes(t *testing.T) {
	_, h := newTestServer(t)
	secret := codec.Secret{Word: "crane", Salt: 7, Commitment: "0xabc"}

	w := call(t, h, http.MethodPost, "/v1/prove/guess", codec.ProveRequest{Secret: secret, Guess: "house"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	p := decode[codec.Proof](t, w)
	require.Equal(t, "guess:house", string(p.Proof))

	p = decode[codec.Proof](t, call(t, h, http.MethodPost, "/v1/prove/reveal", codec.ProveRequest{Secret: secret}))
	require.Equal(t, "guess:crane", string(p.Proof))

	p = decode[codec.Proof](t, call(t, h, http.MethodPost, "/v1/prove/commit", codec.ProveRequest{Secret: secret}))
	require.Equal(t, "0xabc", string(p.PublicInputs))

	w = call(t, h, http.MethodPost, "/v1/prove/guess", codec.ProveRequest{Secret: secret, Guess: "ab"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, h, http.MethodPost, "/v1/prove/guess", codec.ProveRequest{Guess: "house"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestProverOnlyServer(t *testing.T) {
	h := New(Options{Prover: stubProver{}}).Handler()
	require.Equal(t, http.StatusNotFound, call(t, h, http.MethodGet, "/v1/status", nil).Code)
	require.Equal(t, http.StatusOK, call(t, h, http.MethodPost, "/v1/prove/commit",
		codec.ProveRequest{Secret: codec.Secret{Commitment: "0x1"}}).Code)
}
