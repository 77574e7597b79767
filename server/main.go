package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tetris/server/api"
	"tetris/server/auth"
	"tetris/server/config"
	"tetris/server/leaderboard"
	"tetris/server/lobby"
)

const storeFile = "leaderboard.db"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tetris-server",
		Short:         "Leaderboard and multiplayer lobby for the browser tetris client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.AddFlags(root.PersistentFlags())
	root.AddCommand(newServeCmd(), newImportCmd(), newAdminTokenCmd())
	return root
}

// loadConfig merges the persistent and local flags of cmd into a Config
// and sets up logging.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(config.New(), cmd.Flags())
	if err != nil {
		return cfg, err
	}
	return cfg, config.SetupLogging(cfg)
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	config.AddServeFlags(cmd.Flags())
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	a, err := auth.NewAuth(cfg.DataDir)
	if err != nil {
		return err
	}
	store, err := leaderboard.OpenBolt(filepath.Join(cfg.DataDir, storeFile))
	if err != nil {
		return err
	}
	defer store.Close()
	board, err := leaderboard.Open(store, a)
	if err != nil {
		return err
	}
	hub := lobby.NewHub(a)
	handlers := api.NewHandlers(board, cfg.HighscoreRate, cfg.HighscoreBurst)

	s := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.NewRouter(handlers, hub, a),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return handlers.Run(ctx) })
	g.Go(func() error {
		log.WithField("addr", cfg.Addr).Info("server listening")
		if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}
