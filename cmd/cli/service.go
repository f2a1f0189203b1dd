package cli

import (
	"fmt"
	"os"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"github.com/wagate/gateway/internal/agent"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Service management commands",
	Long:  `Manage the gateway as a system service`,
}

func createService(cmd *cobra.Command) (service.Service, error) {
	configFile, _ := cmd.Flags().GetString("config")
	s, err := agent.CreateService(cfg, configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, nil
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the gateway as a system service",
	Long:  `Install the gateway as a system service that starts automatically on boot`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := createService(cmd)
		if err != nil {
			return err
		}

		if err := s.Install(); err != nil {
			printInstallInstructions()
			return fmt.Errorf("failed to install service: %w", err)
		}

		fmt.Println(successStyle.Render("Gateway service installed"))
		fmt.Println("   Use 'wagate service start' to start the service")
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway service",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := createService(cmd)
		if err != nil {
			return err
		}

		if err := s.Start(); err != nil {
			return fmt.Errorf("failed to start service: %w", err)
		}

		fmt.Println(successStyle.Render("Gateway service started"))
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the gateway service",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := createService(cmd)
		if err != nil {
			return err
		}

		if err := s.Stop(); err != nil {
			return fmt.Errorf("failed to stop service: %w", err)
		}

		fmt.Println(successStyle.Render("Gateway service stopped"))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the gateway service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := createService(cmd)
		if err != nil {
			return err
		}

		status, err := s.Status()
		if err != nil {
			return fmt.Errorf("failed to get service status: %w", err)
		}

		fmt.Printf("Gateway service: %s\n", serviceStatusText(status))

		if status == service.StatusRunning {
			client := newClientFor(cmd)
			if client.Healthy(cmd.Context(), cfg.GetLocalServerUrl()+cfg.Server.Health.Path) {
				fmt.Println("Health probe:    " + successStyle.Render("ok"))
			} else {
				fmt.Println("Health probe:    " + warningStyle.Render("not responding"))
			}
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Uninstall the gateway service",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := createService(cmd)
		if err != nil {
			return err
		}

		// Already stopped is fine
		if err := s.Stop(); err != nil {
			fmt.Println("Service was not running")
		}

		if err := s.Uninstall(); err != nil {
			return fmt.Errorf("failed to uninstall service: %w", err)
		}

		fmt.Println(successStyle.Render("Gateway service uninstalled"))
		return nil
	},
}

func serviceStatusText(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return successStyle.Render("running")
	case service.StatusStopped:
		return warningStyle.Render("stopped")
	default:
		return mutedStyle.Render("unknown")
	}
}

func printInstallInstructions() {
	exePath, _ := os.Executable()
	fmt.Println("\nService installation failed. You may need to run with elevated privileges:")
	fmt.Println("\nLinux / macOS:")
	fmt.Printf("   sudo %s service install\n", exePath)
	fmt.Println("\nWindows:")
	fmt.Printf("   Run as Administrator: %s service install\n", exePath)
}

func init() {
	rootCmd.AddCommand(serviceCmd)

	serviceCmd.AddCommand(installCmd)
	serviceCmd.AddCommand(startCmd)
	serviceCmd.AddCommand(stopCmd)
	serviceCmd.AddCommand(statusCmd)
	serviceCmd.AddCommand(removeCmd)
}
