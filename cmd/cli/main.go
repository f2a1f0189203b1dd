package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/wagate/gateway/internal/common"
	"github.com/wagate/gateway/internal/config"
)

// Global configuration instance
var cfg *config.Config

// loadConfig loads the configuration based on the --config flag or default locations
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, err := cmd.Flags().GetString("config")

	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	return config.Load(configFile)
}

func preRunConfigE(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = loadConfig(cmd)

	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	verbose, err := cmd.Flags().GetBool("verbose")
	if err == nil && verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	output, _ := cmd.Flags().GetString("output")
	switch strings.ToLower(output) {
	case outputText, outputJSON, outputYAML:
	default:
		return fmt.Errorf("unsupported output format %q", output)
	}

	return nil
}

// gatewayURL is the API base the client commands talk to.
func gatewayURL(cmd *cobra.Command) string {
	if server, err := cmd.Flags().GetString("server"); err == nil && len(server) > 0 {
		return strings.TrimSuffix(server, "/")
	}
	return cfg.GetLocalServerUrl() + cfg.GetApiBasePath()
}

func newClientFor(cmd *cobra.Command) *gatewayClient {
	// Starting a session may block until the QR is scanned.
	timeout := cfg.Sessions.StartTimeout + 30*time.Second
	return newGatewayClient(gatewayURL(cmd), timeout)
}

var rootCmd = &cobra.Command{
	Use:   "wagate",
	Short: "WhatsApp session gateway",
	Long: `wagate runs an HTTP gateway that hosts many independent WhatsApp Web
sessions, each keyed by a caller chosen id. Sessions are linked by scanning
a QR code and then used to send text and media messages.

Run 'wagate server' to host the gateway, or use the session, qr and send
commands to drive a running gateway.`,
	PersistentPreRunE: preRunConfigE,
	SilenceUsage:      true,
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default is ./config.yaml or /etc/wagate/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "Gateway API URL (e.g., http://localhost:3000/api/v1)")
	rootCmd.PersistentFlags().StringP("output", "o", outputText, "Output format: text, json or yaml")
}

// Execute runs the root command. An interrupt cancels whatever request the
// command is blocked on.
func Execute() error {
	ctx, cleanup := common.WithInterrupt(context.Background())
	defer cleanup()

	return rootCmd.ExecuteContext(ctx)
}
