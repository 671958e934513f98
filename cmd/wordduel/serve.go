package main

import (
	"errors"
	"io/fs"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wordduel-zk/internal/app"
	"wordduel-zk/internal/config"
	"wordduel-zk/internal/engine"
	"wordduel-zk/internal/ledger/ledgertest"
	"wordduel-zk/internal/merkle"
	"wordduel-zk/internal/server"
	"wordduel-zk/internal/signer"
)

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine, the ledger poller and the local API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := c.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := app.Build(cmd.Context(), cfg, log, app.Overrides{})
			if err != nil {
				return err
			}
			defer a.Close()
			log.Info("wordduel client", zap.String("address", a.Engine.Address()), zap.String("ledger", cfg.LedgerURL))
			return a.Run(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.String("listen", "127.0.0.1:8080", "local API address")
	f.String("ledger-url", "", "ledger gateway URL")
	f.String("prover-url", "", "remote proof backend; empty proves locally")
	f.String("store", config.StoreFile, "memory|file|redis")
	f.String("wallet", "wallet.json", "wallet key file")
	c.bind(cmd,
		"listen_addr", "listen",
		"ledger_url", "ledger-url",
		"prover_url", "prover-url",
		"store", "store",
		"wallet_key", "wallet",
	)
	return cmd
}

func (c *cli) devnetCmd() *cobra.Command {
	var (
		gateway    string
		fund       int64
		realProofs bool
		turn       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "devnet",
		Short: "Serve against an in-memory ledger, exposed over HTTP for a second client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := c.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			wallet, err := devWallet(cfg.WalletKey)
			if err != nil {
				return err
			}
			guesses, err := app.LoadDictionary(cfg.GuessDictionaryPath, merkle.Keccak)
			if err != nil {
				return err
			}

			lc := ledgertest.Config{GuessRoot: guesses.Root(), TurnDuration: turn}
			var proofs engine.ProofBackend
			if realProofs {
				b, err := app.LocalBackend(cfg)
				if err != nil {
					return err
				}
				lc.Verifier, proofs = b, b
			} else {
				words, err := app.LoadDictionary(cfg.DictionaryPath, merkle.MiMC)
				if err != nil {
					return err
				}
				lc.Verifier = ledgertest.LayoutVerifier{CommitRoot: words.Root()}
				proofs = &ledgertest.FakeProver{CommitRoot: words.Root()}
			}
			l := ledgertest.New(lc)
			l.Mint(wallet.Address(), fund)

			a, err := app.Build(cmd.Context(), cfg, log, app.Overrides{Ledger: l, Prover: proofs, Wallet: wallet})
			if err != nil {
				return err
			}
			defer a.Close()
			a.Serve(gateway, ledgertest.Handler(l))
			log.Info("devnet", zap.String("address", wallet.Address()), zap.Int64("funded", fund),
				zap.String("gateway", gateway), zap.Bool("real_proofs", realProofs))
			return a.Run(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.StringVar(&gateway, "gateway", "127.0.0.1:8545", "ledger gateway address for other clients")
	f.Int64Var(&fund, "fund", 10_000, "balance minted to the wallet")
	f.BoolVar(&realProofs, "real-proofs", false, "prove and verify with groth16 instead of layout checks")
	f.DurationVar(&turn, "turn-duration", ledgertest.DefaultTurnDuration, "chess clock per player")
	f.String("listen", "127.0.0.1:8080", "local API address")
	f.String("store", config.StoreMemory, "memory|file|redis")
	f.String("wallet", "devnet-wallet.json", "wallet key file, created if missing")
	c.bind(cmd, "listen_addr", "listen", "store", "store", "wallet_key", "wallet")
	return cmd
}

// devWallet loads path, creating a fresh key there if it does not exist.
func devWallet(path string) (*signer.KeySigner, error) {
	priv, err := signer.LoadKeyFile(path)
	if err == nil {
		return signer.New(priv, signer.AutoApprove), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	w, err := signer.Generate(signer.AutoApprove)
	if err != nil {
		return nil, err
	}
	return w, signer.SaveKeyFile(path, w.PrivateKey())
}

func (c *cli) proverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prover",
		Short: "Serve the local groth16 backend as a remote prover",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := c.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			b, err := app.LocalBackend(cfg)
			if err != nil {
				return err
			}
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			h := server.New(server.Options{
				Prover:       b,
				Gatherer:     reg,
				AllowOrigins: cfg.AllowOrigins,
				Log:          log,
			}).Handler()
			log.Info("prover", zap.String("commit_root", merkle.Hex(b.Root())))
			return app.ServeAll(cmd.Context(), log, app.NewHTTPServer(cfg.ListenAddr, h))
		},
	}
	cmd.Flags().String("listen", "127.0.0.1:8090", "listen address")
	cmd.Flags().String("keys", "keys", "proving keys directory")
	c.bind(cmd, "listen_addr", "listen", "keys_dir", "keys")
	return cmd
}
