package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"

	"wordduel-zk/internal/game"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

type TxResult struct {
	Hash   string `json:"hash"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Client is the ledger as the engine sees it.
type Client interface {
	// Snapshot returns game.ErrGameNotFound when the ledger has no such game.
	Snapshot(ctx context.Context, gameID string) (Snapshot, error)
	// Simulate dry-runs tx; a contract-level refusal wraps game.ErrSimulationRejected.
	Simulate(ctx context.Context, tx Tx) error
	Submit(ctx context.Context, tx SignedTx) (string, error)
	TxStatus(ctx context.Context, hash string) (TxResult, error)
}

// HTTPClient talks to a ledger gateway:
//
//	GET  /games/{id}     loosely typed snapshot JSON, 404 if unknown
//	POST /tx/simulate    {"ok":bool,"error":string}
//	POST /tx             {"hash":string}
//	GET  /tx/{hash}      TxResult
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *HTTPClient) Snapshot(ctx context.Context, gameID string) (Snapshot, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/games/"+url.PathEscape(gameID), nil)
	if err != nil {
		return Snapshot{}, err
	}
	if status == http.StatusNotFound {
		return Snapshot{}, errorsmod.Wrap(game.ErrGameNotFound, gameID)
	}
	if status != http.StatusOK {
		return Snapshot{}, fmt.Errorf("ledger error: %d - %s", status, string(body))
	}
	return DecodeSnapshot(gameID, body)
}

func (c *HTTPClient) Simulate(ctx context.Context, tx Tx) error {
	body, status, err := c.do(ctx, http.MethodPost, "/tx/simulate", tx)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("ledger error: %d - %s", status, string(body))
	}
	var res struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return err
	}
	if !res.OK {
		return errorsmod.Wrap(game.ErrSimulationRejected, res.Error)
	}
	return nil
}

func (c *HTTPClient) Submit(ctx context.Context, tx SignedTx) (string, error) {
	body, status, err := c.do(ctx, http.MethodPost, "/tx", tx)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return "", errorsmod.Wrapf(game.ErrSubmissionRejected, "%d - %s", status, string(body))
	}
	var res struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", err
	}
	if res.Hash == "" {
		return "", errorsmod.Wrap(game.ErrSubmissionRejected, "ledger returned no hash")
	}
	return res.Hash, nil
}

func (c *HTTPClient) TxStatus(ctx context.Context, hash string) (TxResult, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/tx/"+url.PathEscape(hash), nil)
	if err != nil {
		return TxResult{}, err
	}
	if status == http.StatusNotFound {
		return TxResult{Hash: hash, Status: StatusPending}, nil
	}
	if status != http.StatusOK {
		return TxResult{}, fmt.Errorf("ledger error: %d - %s", status, string(body))
	}
	var res TxResult
	if err := json.Unmarshal(body, &res); err != nil {
		return TxResult{}, err
	}
	return res, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in any) ([]byte, int, error) {
	var rd io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, 0, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
