// Package prover is the HTTP client for a remote proof backend, for players
// who do not keep proving keys locally.
package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"

	"wordduel-zk/internal/codec"
	"wordduel-zk/internal/game"
)

// DefaultTimeout bounds one proof. Groth16 proving is slow on small machines.
const DefaultTimeout = 2 * time.Minute

// Client calls a proof service:
//
//	POST /v1/prove/guess   {"secret":..., "guess":"abcde"}
//	POST /v1/prove/reveal  {"secret":...}
//	POST /v1/prove/commit  {"secret":...}
//
// each answering with codec.Proof JSON.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) ProveGuessResult(ctx context.Context, secret codec.Secret, guess game.Word) (codec.Proof, error) {
	return c.prove(ctx, "/v1/prove/guess", codec.ProveRequest{Secret: secret, Guess: guess.String()})
}

func (c *Client) ProveSelfReveal(ctx context.Context, secret codec.Secret) (codec.Proof, error) {
	return c.prove(ctx, "/v1/prove/reveal", codec.ProveRequest{Secret: secret})
}

func (c *Client) ProveWordCommit(ctx context.Context, secret codec.Secret) (codec.Proof, error) {
	return c.prove(ctx, "/v1/prove/commit", codec.ProveRequest{Secret: secret})
}

// prove reports every failure, transport included, as game.ErrProofFailed.
func (c *Client) prove(ctx context.Context, path string, in codec.ProveRequest) (codec.Proof, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return codec.Proof{}, errorsmod.Wrap(game.ErrProofFailed, err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return codec.Proof{}, errorsmod.Wrap(game.ErrProofFailed, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return codec.Proof{}, errorsmod.Wrapf(game.ErrProofFailed, "prover unreachable: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil && !errors.Is(err, io.EOF) {
		return codec.Proof{}, errorsmod.Wrap(game.ErrProofFailed, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) != nil || e.Error == "" {
			e.Error = string(body)
		}
		return codec.Proof{}, errorsmod.Wrapf(game.ErrProofFailed, "prover error: %d - %s", resp.StatusCode, e.Error)
	}

	var p codec.Proof
	if err := json.Unmarshal(body, &p); err != nil {
		return codec.Proof{}, errorsmod.Wrap(game.ErrProofFailed, err.Error())
	}
	if p.Empty() {
		return codec.Proof{}, errorsmod.Wrap(game.ErrProofFailed, "prover returned an empty proof")
	}
	return p, nil
}
