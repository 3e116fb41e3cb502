package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/clock"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/config"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/logger"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/reminders"
	"github.com/dekevssubs/kenyapesa-tracker-v2-sub002/pkg/store"
)

var (
	cfgFile string
	cfg     *config.Config
	rootCmd = &cobra.Command{
		Use:               "kpt",
		Short:             "Lending ledger and bill reminder service",
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or $HOME/.config/kpt/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("storage-driver", "sqlite", "storage backend (sqlite, memory)")
	rootCmd.PersistentFlags().String("db", "tracker.db", "SQLite database path")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("storage.driver", rootCmd.PersistentFlags().Lookup("storage-driver"))
	_ = viper.BindPFlag("storage.path", rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded
	logger.Setup(cfg.Environment, cfg.Logging.Level)
	return nil
}

func openStorage(c *config.Config) (store.Storage, error) {
	if c.Storage.Driver == "memory" {
		logger.Warn("using in-memory storage; data is lost on exit")
		return store.NewMemoryStore(), nil
	}
	s, err := store.NewSQLiteStore(c.Storage.Path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func feedConfig(c *config.Config) reminders.FeedConfig {
	return reminders.FeedConfig{
		PaymentWindowDays: c.Reminders.PaymentWindowDays,
		WithinDays:        c.Reminders.WithinDays,
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	return cmd
}

func serve(ctx context.Context, c *config.Config) error {
	storage, err := openStorage(c)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer storage.Close()

	server := NewServer(storage, clock.System{}, feedConfig(c))
	httpServer := &http.Server{
		Addr:              c.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Periodic expiry and notification sweep
	if c.Reminders.SweepInterval > 0 {
		go func() {
			ticker := time.NewTicker(c.Reminders.SweepInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					res, err := server.Sweep(ctx)
					if err != nil {
						logger.Error("reminder sweep failed", "error", err)
						continue
					}
					logger.Info("reminder sweep complete", "expired", res.Expired, "notified", res.Notified)
				}
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", c.Server.Addr, "storage", c.Storage.Driver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	return nil
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire lapsed renewal reminders and send today's notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			storage, err := openStorage(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer storage.Close()

			res, err := NewServer(storage, clock.System{}, feedConfig(cfg)).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d reminder(s), sent %d notification(s)\n", res.Expired, res.Notified)
			return nil
		},
	}
}
