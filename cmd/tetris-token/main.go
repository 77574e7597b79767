// Command tetris-token prints the tokens the browser client would send, so
// a deployed verifier can be checked by hand.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tetris/shared/tokenhash"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tetris-token",
		Short:         "Derive client tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newDeriveCmd(), newConnectCmd(), newHighscoreCmd())
	return root
}

func newDeriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "derive [seed...]",
		Short: "Print the raw digest of each seed, or of each stdin line",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) > 0 {
				for _, seed := range args {
					fmt.Fprintf(out, "%s  %q\n", tokenhash.Derive(seed), seed)
				}
				return nil
			}
			return deriveLines(cmd.InOrStdin(), out)
		},
	}
}

func deriveLines(r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fmt.Fprintf(w, "%s  %q\n", tokenhash.Derive(sc.Text()), sc.Text())
	}
	return sc.Err()
}

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <player-id>",
		Short: "Print the auth parameter for /connect/{game}/{player}",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), tokenhash.Token(args[0]))
			return err
		},
	}
}

func newHighscoreCmd() *cobra.Command {
	var (
		score uint32
		name  string
	)
	cmd := &cobra.Command{
		Use:   "highscore",
		Short: "Print the auth field of a highscore submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			seed := tokenhash.HighscoreSeed(score, name)
			log.WithField("seed", seed).Debug("highscore seed")
			_, err := fmt.Fprintln(cmd.OutOrStdout(), tokenhash.Token(seed))
			return err
		},
	}
	cmd.Flags().Uint32Var(&score, "score", 0, "final score")
	cmd.Flags().StringVar(&name, "name", "", "leaderboard name")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
