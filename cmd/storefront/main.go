package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storefront/client"
	"storefront/config"
	"storefront/logging"
	"storefront/service"
	"storefront/store"
)

var (
	// Global flags
	verbose    bool
	configPath string
	sessionID  string
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Storefront session backend",
	Long: `storefront keeps a shopper's cart in step with the remote cart service,
stages checkouts and places orders.

Run "storefront serve" for the HTTP API, or use the cart and checkout
commands directly against a local session.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "storefront.yaml", "Config file")
	rootCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "cli", "Session id for cart and checkout commands")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "Operation timeout")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(authCommands()...)
	rootCmd.AddCommand(productsCmd())
	rootCmd.AddCommand(cartCmd())
	rootCmd.AddCommand(checkoutCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the wired service plus the store it owns.
type app struct {
	store *store.SQLStore
	svc   *service.Service
}

func newApp(ctx context.Context) (*app, error) {
	st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	opts := []client.Option{client.WithTimeout(cfg.GetRemoteTimeout()), client.WithLogger(logger)}
	api := client.New(cfg.Remote.CartURL, opts...)
	catalog := client.New(cfg.Remote.CatalogURL, opts...)

	svc := service.NewService(service.Deps{
		Store:       st,
		Cart:        client.NewCartClient(api),
		Orders:      client.NewOrderClient(api),
		Users:       client.NewAuthClient(api),
		Catalog:     client.NewCatalogClient(catalog),
		Logger:      logger,
		SyncTimeout: cfg.GetSyncTimeout(),
		PurchaserID: cfg.Checkout.PurchaserID,
	})
	return &app{store: st, svc: svc}, nil
}

// close waits for outstanding cart writes, then closes the store.
func (a *app) close(ctx context.Context) error {
	if err := a.svc.Shutdown(ctx); err != nil {
		logger.Warn("cart writes still pending at exit", zap.Error(err))
	}
	return a.store.Close()
}

// withApp runs fn against a freshly wired app under the --timeout deadline.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.GetSyncTimeout())
	defer closeCancel()
	if err := a.close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
