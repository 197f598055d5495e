package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/AINomadD3v/ImapActivatorAgent/internal/activation"
	"github.com/AINomadD3v/ImapActivatorAgent/internal/airtable"
	"github.com/AINomadD3v/ImapActivatorAgent/internal/browser"
	"github.com/AINomadD3v/ImapActivatorAgent/internal/config"
	"github.com/AINomadD3v/ImapActivatorAgent/internal/network"
	"github.com/AINomadD3v/ImapActivatorAgent/internal/observability"
	"github.com/AINomadD3v/ImapActivatorAgent/internal/orchestrator"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Fetches pending accounts and enables IMAP/POP3 for each of them",
		Args:  cobra.NoArgs,
		// Bind override flags to their Viper keys so the command line takes
		// precedence over the config file and environment.
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("activation.max_workers", cmd.Flags().Lookup("workers")); err != nil {
				return err
			}
			if err := viper.BindPFlag("activation.max_accounts", cmd.Flags().Lookup("limit")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			defer observability.Sync()

			// Re-unmarshal so flag overrides bound in PreRunE apply with the
			// right precedence.
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to finalize config: %w", err)
			}

			// Stop fetching and starting new accounts on SIGINT/SIGTERM, but
			// let in-flight accounts finish.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("Starting activation run",
				zap.Int("max_workers", cfg.Activation.MaxWorkers),
				zap.Int("max_accounts", cfg.Activation.MaxAccounts),
				zap.Bool("headless", cfg.Browser.Headless),
			)

			components, err := initializeRunComponents(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			if err := components.Orchestrator.Run(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted gracefully")
					return fmt.Errorf("run aborted by user signal")
				}
				logger.Error("Run failed", zap.Error(err))
				return err
			}

			logger.Info("Activation run completed")
			return nil
		},
	}

	runCmd.Flags().IntP("workers", "j", 0, "Number of concurrent browser workers. (Overrides config/env)")
	runCmd.Flags().IntP("limit", "n", 0, "Maximum number of accounts to process in this run. (Overrides config/env)")
	runCmd.Flags().Bool("headless", true, "Run the browser headless. (Overrides config/env)")

	return runCmd
}

// runComponents holds initialized services.
type runComponents struct {
	BrowserManager *browser.Manager
	Airtable       *airtable.Client
	Orchestrator   *orchestrator.Orchestrator
}

// Shutdown gracefully closes all components.
func (rc *runComponents) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if rc.BrowserManager != nil {
		if err := rc.BrowserManager.Shutdown(shutdownCtx); err != nil {
			observability.GetLogger().Warn("Error during browser manager shutdown", zap.Error(err))
		}
	}
}

// initializeRunComponents handles dependency injection.
func initializeRunComponents(cfg *config.Config, logger *zap.Logger) (*runComponents, error) {
	components := &runComponents{}

	// 1. Record store client on the shared tuned transport
	httpCfg := network.NewDefaultClientConfig()
	httpCfg.Logger = logger
	client, err := airtable.NewClient(cfg.Airtable, logger,
		airtable.WithHTTPClient(network.NewClient(httpCfg)))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize airtable client: %w", err)
	}
	components.Airtable = client

	// 2. Browser manager
	manager := browser.NewManager(cfg, logger)
	components.BrowserManager = manager

	// 3. Activation workflow
	factory := activation.SessionFactory(func(ctx context.Context) (activation.Session, error) {
		return manager.NewSession(ctx)
	})
	workflow, err := activation.NewWorkflow(cfg, factory, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize workflow: %w", err)
	}

	// 4. Orchestrator
	orch, err := orchestrator.New(cfg, client, workflow, logger)
	if err != nil {
		return components, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	components.Orchestrator = orch

	return components, nil
}
