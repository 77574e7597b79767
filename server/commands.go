package main

import (
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tetris/server/auth"
	"tetris/server/leaderboard"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <board.json>",
		Short: "Replace the stored leaderboard with a JSON array of entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := leaderboard.OpenBolt(filepath.Join(cfg.DataDir, storeFile))
			if err != nil {
				return err
			}
			defer store.Close()
			n, err := leaderboard.ImportFile(store, args[0])
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{"file": args[0], "entries": n}).Info("leaderboard imported")
			return nil
		},
	}
}

func newAdminTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin-token <subject>",
		Short: "Print a signed token for the admin endpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if ttl, _ := cmd.Flags().GetDuration("ttl"); ttl > 0 {
				cfg.AdminTokenTTL = ttl
			}
			a, err := auth.NewAuth(cfg.DataDir)
			if err != nil {
				return err
			}
			tok, err := a.IssueAdminToken(args[0], cfg.AdminTokenTTL)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().Duration("ttl", 0, "token lifetime (defaults to admin_token_ttl)")
	return cmd
}
