package ledger

import (
	"context"
	"errors"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"wordduel-zk/internal/game"
)

var errPending = errors.New("transaction pending")

// Sender runs one transaction through simulate, sign, submit and confirm.
// Confirmation polls TxStatus at Interval at most Retries times.
type Sender struct {
	Client   Client
	Retries  uint64
	Interval time.Duration
	Log      *zap.Logger
}

func NewSender(c Client, retries uint64, interval time.Duration, log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{Client: c, Retries: retries, Interval: interval, Log: log.Named("sender")}
}

// Send builds a transaction for method from signer's address and drives it to
// confirmation, returning its hash. Every failure wraps one of the
// transaction error kinds in package game.
func (s *Sender) Send(ctx context.Context, signer Signer, method Method, gameID string, args any) (string, error) {
	tx, err := NewTx(method, gameID, signer.Address(), args)
	if err != nil {
		return "", errorsmod.Wrap(game.ErrSimulationRejected, err.Error())
	}
	log := s.Log.With(zap.String("method", string(method)), zap.String("game_id", gameID), zap.String("nonce", tx.Nonce))

	if err := s.Client.Simulate(ctx, tx); err != nil {
		if !errors.Is(err, game.ErrSimulationRejected) {
			err = errorsmod.Wrap(game.ErrSimulationRejected, err.Error())
		}
		log.Debug("simulation rejected", zap.Error(err))
		return "", err
	}

	signed, err := signer.Sign(ctx, tx)
	if err != nil {
		if !errors.Is(err, game.ErrSigningRejected) {
			err = errorsmod.Wrap(game.ErrSigningRejected, err.Error())
		}
		return "", err
	}

	hash, err := s.Client.Submit(ctx, signed)
	if err != nil {
		if !errors.Is(err, game.ErrSubmissionRejected) {
			err = errorsmod.Wrap(game.ErrSubmissionRejected, err.Error())
		}
		return "", err
	}
	log = log.With(zap.String("tx_hash", hash))
	log.Debug("submitted")

	if err := s.confirm(ctx, hash); err != nil {
		log.Debug("not confirmed", zap.Error(err))
		return hash, err
	}
	log.Debug("confirmed")
	return hash, nil
}

func (s *Sender) confirm(ctx context.Context, hash string) error {
	op := func() error {
		res, err := s.Client.TxStatus(ctx, hash)
		if err != nil {
			return err
		}
		switch res.Status {
		case StatusSuccess:
			return nil
		case StatusFailed:
			return backoff.Permanent(errorsmod.Wrap(game.ErrTxFailed, res.Error))
		}
		return errPending
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(s.Interval), s.Retries), ctx)
	err := backoff.Retry(op, b)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, game.ErrTxFailed):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errorsmod.Wrap(game.ErrConfirmationTimeout, err.Error())
	}
	return errorsmod.Wrapf(game.ErrConfirmationTimeout, "%s after %d checks: %v", hash, s.Retries+1, err)
}
