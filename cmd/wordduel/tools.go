package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wordduel-zk/internal/app"
	"wordduel-zk/internal/codec"
	"wordduel-zk/internal/game"
	"wordduel-zk/internal/merkle"
	"wordduel-zk/internal/signer"
	"wordduel-zk/internal/zk"
)

func hasherFlag(cmd *cobra.Command) *string {
	return cmd.Flags().String("hash", "keccak", "tree hash: keccak (guesses) or mimc (word commits)")
}

func hasher(name string) (merkle.Hasher, error) {
	h, ok := merkle.HasherByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown hash %q", name)
	}
	return h, nil
}

func (c *cli) buildTreeCmd() *cobra.Command {
	var words, out string
	cmd := &cobra.Command{
		Use:   "build-tree",
		Short: "Build a dictionary tree file from a word list",
	}
	hash := hasherFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		h, err := hasher(*hash)
		if err != nil {
			return err
		}
		d, err := app.LoadDictionary(words, h)
		if err != nil {
			return err
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := d.WriteTo(f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ wrote %s (%d words, depth %d, root %s)\n", out, d.Len(), d.Depth(), merkle.Hex(d.Root()))
		return nil
	}
	cmd.Flags().StringVar(&words, "words", "", "word list; empty uses the built-in list")
	cmd.Flags().StringVar(&out, "out", "tree.json", "output tree file")
	return cmd
}

func (c *cli) proveMembershipCmd() *cobra.Command {
	var dict, out string
	cmd := &cobra.Command{
		Use:   "prove-membership WORD",
		Short: "Write the Merkle membership proof of a word",
		Args:  cobra.ExactArgs(1),
	}
	hash := hasherFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		h, err := hasher(*hash)
		if err != nil {
			return err
		}
		d, err := app.LoadDictionary(dict, h)
		if err != nil {
			return err
		}
		w, err := game.ParseWord(args[0])
		if err != nil {
			return err
		}
		mp, err := app.ProveMembership(d, w)
		if err != nil {
			return err
		}
		if err := saveJSON(out, mp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ wrote %s (root %s)\n", out, mp.Root)
		return nil
	}
	cmd.Flags().StringVar(&dict, "dict", "", "word list or tree file; empty uses the built-in list")
	cmd.Flags().StringVar(&out, "out", "membership.json", "proof output")
	return cmd
}

func (c *cli) verifyMembershipCmd() *cobra.Command {
	var dict, in string
	cmd := &cobra.Command{
		Use:   "verify-membership",
		Short: "Check a membership proof against a dictionary",
	}
	hash := hasherFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		h, err := hasher(*hash)
		if err != nil {
			return err
		}
		d, err := app.LoadDictionary(dict, h)
		if err != nil {
			return err
		}
		var mp codec.MembershipProof
		if err := loadJSON(in, &mp); err != nil {
			return err
		}
		if err := app.VerifyMembership(d, mp); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "VALID")
		return nil
	}
	cmd.Flags().StringVar(&dict, "dict", "", "word list or tree file; empty uses the built-in list")
	cmd.Flags().StringVar(&in, "proof", "membership.json", "proof file")
	return cmd
}

func (c *cli) commitCmd() *cobra.Command {
	var dict, out string
	cmd := &cobra.Command{
		Use:   "commit WORD",
		Short: "Commit to a secret word and write the secret file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := app.LoadDictionary(dict, merkle.MiMC)
			if err != nil {
				return err
			}
			res, err := app.Commit(args[0], d)
			if err != nil {
				return err
			}
			if err := saveJSON(out, res); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "COMMITMENT:", res.Secret.Commitment)
			fmt.Fprintln(cmd.OutOrStdout(), "✓ wrote", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&dict, "dict", "", "word-commit dictionary; empty uses the built-in list")
	cmd.Flags().StringVar(&out, "secret", "secret.json", "secret output; keep it private")
	return cmd
}

func (c *cli) keysCmd() *cobra.Command {
	var dir, dict string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Run the groth16 setup for both circuits if keys are missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := app.LoadDictionary(dict, merkle.MiMC)
			if err != nil {
				return err
			}
			if err := zk.EnsureKeys(dir, d.Depth()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ keys in %s (%s, %s)\n", dir, zk.GuessKeyName, zk.CommitKeyName(d.Depth()))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "keys", "keys", "keys directory")
	cmd.Flags().StringVar(&dict, "dict", "", "word-commit dictionary; fixes the circuit depth")
	return cmd
}

func (c *cli) keygenCmd() *cobra.Command {
	var out string
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a wallet key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s exists (use --force to overwrite)", out)
			}
			w, err := signer.Generate(nil)
			if err != nil {
				return err
			}
			if err := signer.SaveKeyFile(out, w.PrivateKey()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ADDRESS:", w.Address())
			fmt.Fprintln(cmd.OutOrStdout(), "✓ wrote", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "wallet.json", "key file")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	return cmd
}
