package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wagate/gateway/internal/agent"
	"github.com/wagate/gateway/internal/common"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the gateway server",
	Long: `Start the gateway in the foreground. Sessions are hosted until the
process receives SIGINT or SIGTERM, at which point every session is
disconnected and its stored credentials are kept for the next start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sigChan, cleanup := common.NewInterruptChannel()
		defer cleanup()

		fmt.Println(titleStyle.Render("wagate " + common.GetVersion()))

		server, err := agent.StartWebService(cfg)
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}

		fmt.Printf("Listening on %s\n", infoStyle.Render(cfg.GetLocalServerUrl()))

		sig := <-sigChan
		fmt.Printf("\nReceived signal %v, shutting down gracefully...\n", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.Limits.ShutdownTimeout)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			return fmt.Errorf("shutdown incomplete: %w", err)
		}

		fmt.Println(successStyle.Render("Server stopped"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
