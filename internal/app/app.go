// Package app wires configuration into a running client: store, ledger,
// signers, proof backend, poller, engine and the local API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wordduel-zk/internal/config"
	"wordduel-zk/internal/engine"
	"wordduel-zk/internal/ledger"
	"wordduel-zk/internal/merkle"
	"wordduel-zk/internal/metrics"
	"wordduel-zk/internal/prover"
	"wordduel-zk/internal/reconcile"
	"wordduel-zk/internal/server"
	"wordduel-zk/internal/session"
	"wordduel-zk/internal/signer"
	"wordduel-zk/internal/store"
	"wordduel-zk/internal/zk"
)

const shutdownTimeout = 5 * time.Second

// Overrides replaces parts Build would otherwise construct from config.
type Overrides struct {
	Ledger ledger.Client
	Prover engine.ProofBackend
	Wallet ledger.Signer
}

type App struct {
	Config   *config.Config
	Log      *zap.Logger
	Registry *prometheus.Registry
	Store    *store.Store
	Ledger   ledger.Client
	Engine   *engine.Engine
	Poller   *reconcile.Poller
	Guesses  *merkle.Dictionary

	servers []*http.Server
	closers []func() error
}

func Build(ctx context.Context, cfg *config.Config, log *zap.Logger, ov Overrides) (*App, error) {
	a := &App{Config: cfg, Log: log, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.Registry)

	var rdb *redis.Client
	if cfg.Store == config.StoreRedis {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		a.closers = append(a.closers, rdb.Close)
	}

	p, err := persister(cfg, rdb)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.Store, err = store.New(ctx, p, log); err != nil {
		a.Close()
		return nil, fmt.Errorf("load local state: %w", err)
	}

	if a.Guesses, err = LoadDictionary(cfg.GuessDictionaryPath, merkle.Keccak); err != nil {
		a.Close()
		return nil, fmt.Errorf("guess dictionary: %w", err)
	}

	a.Ledger = ov.Ledger
	if a.Ledger == nil {
		a.Ledger = ledger.NewHTTPClient(cfg.LedgerURL, cfg.LedgerAPIKey)
	}
	sender := ledger.NewSender(a.Ledger, cfg.ConfirmRetries, cfg.ConfirmInterval, log)

	wallet := ov.Wallet
	if wallet == nil {
		priv, err := signer.LoadKeyFile(cfg.WalletKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("wallet key (run `wordduel keygen`): %w", err)
		}
		wallet = signer.New(priv, signer.AutoApprove)
	}

	proofs := ov.Prover
	if proofs == nil {
		if proofs, err = proofBackend(cfg, log); err != nil {
			a.Close()
			return nil, err
		}
	}

	var keys session.KeyStore = session.NewMemoryKeyStore()
	if rdb != nil {
		keys = session.NewRedisKeyStore(rdb, cfg.SessionTTL)
	}

	a.Poller = reconcile.NewPoller(a.Store, a.Ledger, m, log)
	a.Poller.Interval = cfg.PollInterval

	a.Engine, err = engine.New(engine.Options{
		Store:         a.Store,
		Ledger:        a.Ledger,
		Sender:        sender,
		Wallet:        wallet,
		Prover:        proofs,
		Guesses:       a.Guesses,
		Poller:        a.Poller,
		Sessions:      session.NewManager(keys, sender, log),
		UseSessionKey: cfg.UseSessionKey,
		SessionFund:   cfg.SessionFundAmount,
		Metrics:       m,
		Log:           log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Poller.OnMerged(a.Engine.OnMerged)

	api := server.New(server.Options{
		Engine:       a.Engine,
		Events:       a.Store,
		Gatherer:     a.Registry,
		AllowOrigins: cfg.AllowOrigins,
		Log:          log,
	})
	a.Serve(cfg.ListenAddr, api.Handler())
	return a, nil
}

// Serve adds a listener started by Run.
func (a *App) Serve(addr string, h http.Handler) {
	a.servers = append(a.servers, NewHTTPServer(addr, h))
}

// Run polls the ledger and serves until ctx is cancelled, then shuts the
// listeners down.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	a.Poller.Trigger()
	g.Go(func() error { return a.Poller.Run(ctx) })
	g.Go(func() error { return ServeAll(ctx, a.Log, a.servers...) })
	return g.Wait()
}

// ServeAll runs every server until ctx is cancelled or one of them fails.
func ServeAll(ctx context.Context, log *zap.Logger, servers ...*http.Server) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			log.Info("listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	return g.Wait()
}

// NewHTTPServer is the listener settings every command uses.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
}

func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.Log.Warn("close", zap.Error(err))
		}
	}
	a.closers = nil
}

func persister(cfg *config.Config, rdb *redis.Client) (store.Persister, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return store.NewMemoryPersister(), nil
	case config.StoreRedis:
		return store.NewRedisPersister(rdb, "wordduel:"), nil
	}
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, err
	}
	return store.NewFilePersister(cfg.StateDir)
}

// proofBackend proves remotely when a prover URL is configured and locally
// otherwise. Local proving needs the word-commit dictionary.
func proofBackend(cfg *config.Config, log *zap.Logger) (engine.ProofBackend, error) {
	if cfg.ProverURL != "" {
		log.Info("using remote prover", zap.String("url", cfg.ProverURL))
		return prover.NewClient(cfg.ProverURL, cfg.ProverAPIKey, 0), nil
	}
	b, err := LocalBackend(cfg)
	if err != nil {
		return nil, err
	}
	log.Info("using local prover", zap.String("keys_dir", cfg.KeysDir), zap.String("commit_root", merkle.Hex(b.Root())))
	return b, nil
}

// LocalBackend loads (or sets up on first use) the groth16 keys.
func LocalBackend(cfg *config.Config) (*zk.Backend, error) {
	dict, err := LoadDictionary(cfg.DictionaryPath, merkle.MiMC)
	if err != nil {
		return nil, fmt.Errorf("commit dictionary: %w", err)
	}
	b, err := zk.NewBackend(cfg.KeysDir, dict)
	if err != nil {
		return nil, fmt.Errorf("proving keys in %s: %w", cfg.KeysDir, err)
	}
	return b, nil
}
