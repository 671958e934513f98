package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"wordduel-zk/internal/config"
	"wordduel-zk/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type cli struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}
	root := &cobra.Command{
		Use:           "wordduel",
		Short:         "Client for the zero-knowledge word duel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.String("log-level", "info", "debug|info|warn|error")
	pf.String("log-format", "json", "json|console")
	_ = c.v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = c.v.BindPFlag("log_format", pf.Lookup("log-format"))

	root.AddCommand(
		c.serveCmd(),
		c.devnetCmd(),
		c.proverCmd(),
		c.buildTreeCmd(),
		c.proveMembershipCmd(),
		c.verifyMembershipCmd(),
		c.commitCmd(),
		c.keysCmd(),
		c.keygenCmd(),
	)
	return root
}

// bind maps command flags onto config keys, given as key, flag pairs. Keys
// are shared between commands, so binding waits until the command runs.
func (c *cli) bind(cmd *cobra.Command, pairs ...string) {
	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		for i := 0; i+1 < len(pairs); i += 2 {
			if err := c.v.BindPFlag(pairs[i], cmd.Flags().Lookup(pairs[i+1])); err != nil {
				return err
			}
		}
		return nil
	}
}

func (c *cli) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func saveJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loadJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}
