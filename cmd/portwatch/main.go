package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/portwatch/internal/alert"
	"github.com/hazz-dev/portwatch/internal/checker"
	"github.com/hazz-dev/portwatch/internal/config"
	"github.com/hazz-dev/portwatch/internal/logging"
	"github.com/hazz-dev/portwatch/internal/scheduler"
	"github.com/hazz-dev/portwatch/internal/secrets"
	"github.com/hazz-dev/portwatch/internal/server"
	"github.com/hazz-dev/portwatch/internal/storage"
	"github.com/hazz-dev/portwatch/internal/storage/postgres"
	"github.com/hazz-dev/portwatch/internal/version"
)

var cfgFile string

// resolver validates configured hostnames before anything starts serving.
var resolver checker.Resolver = net.DefaultResolver

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "portwatch",
		Short:        "TCP port monitor with mail alerts",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yml", "config file path")

	root.AddCommand(versionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(encryptPasswordCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "portwatch %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the port monitor",
		RunE:  runServe,
	}
}

// failureStore is satisfied by every storage driver.
type failureStore interface {
	scheduler.Store
	server.ServerStore
	Close() error
}

func openStore(ctx context.Context, cfg config.StorageConfig) (failureStore, error) {
	if cfg.Driver == "postgres" {
		s, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	db, err := storage.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Load config
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// 2. Build logger
	logger, flush, err := logging.New(logging.Options{
		Verbose:    cfg.Verbose(),
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer flush()
	logger.Info("config loaded", "endpoints", len(cfg.Endpoints()), "version", version.Version)

	// 3. Decrypt mail password
	password, err := secrets.DecryptPassword(cfg.Secrets.PasswordFile, cfg.Secrets.KeyFile)
	if err != nil {
		return fmt.Errorf("decrypting mail password: %w", err)
	}
	logger.Debug("password successfully decrypted")

	// 4. Signal context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 5. Open failure store
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Storage.Driver, err)
	}
	defer store.Close()

	// 6. Build mailer
	mailer, err := alert.NewMailer(cfg.Mail, password, logger)
	if err != nil {
		return fmt.Errorf("configuring mail: %w", err)
	}

	// 7. Build scheduler and validate hostnames
	sched := scheduler.New(scheduler.Options{
		Endpoints:   cfg.Endpoints(),
		Hostnames:   cfg.Hostnames(),
		Interval:    cfg.Interval(),
		Threshold:   cfg.Threshold(),
		Concurrency: cfg.Concurrency,
	}, checker.NewTCPProber(cfg.ProbeTimeout.Duration), store, mailer, logger)
	sched.SetResolver(resolver)
	if err := sched.Validate(ctx); err != nil {
		logger.Error("startup validation failed", "error", err)
		return err
	}

	// 8. Optional status API
	var httpServer *http.Server
	serverErr := make(chan error, 1)
	if cfg.Server.Address != "" {
		apiServer := server.New(store, cfg.Endpoints(), cfg.Threshold(), logger)
		httpServer = &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           apiServer.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("listening", "address", cfg.Server.Address)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErr <- err
			}
		}()
	}

	// 9. Run until signal or server error
	runErr := make(chan error, 1)
	go func() { runErr <- sched.Run(ctx) }()

	select {
	case err = <-runErr:
	case err = <-serverErr:
		err = fmt.Errorf("HTTP server: %w", err)
		stop()
		<-runErr
	}

	// 10. Graceful shutdown
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
			logger.Error("HTTP server shutdown", "error", serr)
		}
	}
	if err != nil {
		logger.Error("monitor terminated", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe every configured endpoint once",
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return executeCheck(cmd, cfg)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print open failure streaks from the state store",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := openStore(cmd.Context(), cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Storage.Driver, err)
	}
	defer store.Close()

	return executeStatus(cmd, store, cfg.Threshold())
}
