package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ylchen07/keyvault-identity-demo/internal/clipboard"
	"github.com/ylchen07/keyvault-identity-demo/internal/config"
	"github.com/ylchen07/keyvault-identity-demo/internal/discovery"
	"github.com/ylchen07/keyvault-identity-demo/internal/logging"
	"github.com/ylchen07/keyvault-identity-demo/internal/metrics"
	"github.com/ylchen07/keyvault-identity-demo/internal/output"
	"github.com/ylchen07/keyvault-identity-demo/internal/runtimeconfig"
	"github.com/ylchen07/keyvault-identity-demo/internal/secrets"
	"github.com/ylchen07/keyvault-identity-demo/internal/server"
	"github.com/ylchen07/keyvault-identity-demo/pkg/models"
)

var (
	configPath string
	logLevel   string
	formatType string

	secretName      string
	identityID      string
	vaultURL        string
	managedIdentity bool
	copyToClip      bool

	tenantID string

	// Global config loaded once
	appConfig *config.Config
)

// loadConfig loads the application config and applies the logging settings
func loadConfig() error {
	var err error

	if configPath != "" {
		appConfig, err = config.LoadFromFile(configPath)
	} else {
		appConfig, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if logLevel != "" {
		appConfig.Logging.Level = logLevel
	}
	return logging.Setup(appConfig.Logging.Level, appConfig.Logging.Format, os.Stderr)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "keyvault-identity-demo",
		Short: "Retrieve Key Vault secrets with managed identities",
		Long: `keyvault-identity-demo serves a small web API that reads Azure Key Vault secrets using a
system-assigned or user-assigned managed identity, or local developer credentials, and
includes a discovery wizard that finds subscriptions, identities and vaults for you.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(retrieveCmd())
	rootCmd.AddCommand(discoverCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newRetriever(m *metrics.Metrics) *secrets.Retriever {
	return secrets.New(
		secrets.WithMetrics(m),
		secrets.WithStrictIdentityValidation(appConfig.Azure.StrictIdentityValidation),
	)
}

func newDiscoverer(m *metrics.Metrics) *discovery.Discoverer {
	return discovery.New(
		discovery.WithMetrics(m),
		discovery.WithDeviceCodeTimeout(appConfig.Discovery.DeviceCodeTimeout),
	)
}

func getFormatter() (output.Formatter, error) {
	return output.GetFormatter(output.Format(formatType))
}

// serveCmd returns the serve command
func serveCmd() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if address != "" {
				appConfig.Server.Address = address
			}

			m := metrics.New()
			state := runtimeconfig.New(appConfig)
			srv := server.New(appConfig.Server, state, newRetriever(m), newDiscoverer(m), m)

			snap := state.Snapshot()
			log.WithFields(log.Fields{
				"keyVaultUrl":     logging.OrDefault(snap.KeyVaultURL, "(not configured)"),
				"managedIdentity": snap.UseManagedIdentity,
				"environment":     appConfig.Server.Environment,
			}).Info("Starting keyvault-identity-demo")

			ctx, stop := signalContext()
			defer stop()
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Listen address (overrides server.address)")
	return cmd
}

// retrieveCmd returns the retrieve command
func retrieveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Retrieve one secret using the configured credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			state := runtimeconfig.New(appConfig)
			if cmd.Flags().Changed("managed-identity") {
				state.SetCredentialMode(managedIdentity)
			}

			formatter, err := getFormatter()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			result := newRetriever(nil).Retrieve(ctx, models.SecretRequest{
				SecretName:        secretName,
				ManagedIdentityID: identityID,
				KeyVaultURL:       vaultURL,
			}, state.Snapshot())

			if result.Success && copyToClip {
				if err := clipboard.Copy(ctx, result.SecretValue); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Secret '%s' copied to clipboard!\n", secretName)
				return nil
			}

			out, err := formatter.FormatResult(result)
			if err != nil {
				return err
			}
			fmt.Println(out)

			if !result.Success {
				return fmt.Errorf("secret retrieval failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&secretName, "name", "n", "", "Secret name")
	cmd.Flags().StringVarP(&identityID, "identity", "i", "", "User-assigned identity client id (optional, system-assigned if not specified)")
	cmd.Flags().StringVarP(&vaultURL, "vault-url", "u", "", "Key Vault URL (optional, overrides azure.key_vault_url)")
	cmd.Flags().BoolVarP(&managedIdentity, "managed-identity", "m", false, "Use managed identity instead of developer credentials")
	cmd.Flags().BoolVarP(&copyToClip, "copy", "c", false, "Copy secret to clipboard")
	cmd.Flags().StringVarP(&formatType, "format", "f", "plain", "Output format (plain, json)")
	cmd.MarkFlagRequired("name")
	return cmd
}

// discoverCmd returns the discover command
func discoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Sign in and list subscriptions, identities and key vaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := getFormatter()
			if err != nil {
				return err
			}

			if tenantID == "" {
				tenantID = config.RealOrEmpty(appConfig.Azure.TenantID)
			}

			ctx, stop := signalContext()
			defer stop()

			var printErr error
			sink := discovery.SinkFunc(func(ev discovery.Event) {
				out, err := formatter.FormatEvent(ev)
				if err != nil {
					printErr = err
					return
				}
				fmt.Println(out)
			})

			state := newDiscoverer(nil).Run(ctx, tenantID, sink)
			if printErr != nil {
				return printErr
			}
			if state == discovery.StateFailed {
				return fmt.Errorf("discovery failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant id hint (optional, uses azure.tenant_id if not specified)")
	cmd.Flags().StringVarP(&formatType, "format", "f", "plain", "Output format (plain, json)")
	return cmd
}

// configCmd returns the config command
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the runtime configuration seeded from file and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := getFormatter()
			if err != nil {
				return err
			}

			out, err := formatter.FormatSnapshot(runtimeconfig.New(appConfig).Snapshot())
			if err != nil {
				return err
			}

			fmt.Println(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&formatType, "format", "f", "plain", "Output format (plain, json)")
	return cmd
}
