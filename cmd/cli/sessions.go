package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/wagate/gateway/internal/models"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"sessions"},
	Short:   "Manage gateway sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Start or resume a session",
	Long: `Start a session and, by default, wait until it is ready. A new
session prints nothing scannable here; use 'wagate session qr <id>' from another
terminal to link it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := models.ValidateSessionID(args[0]); err != nil {
			return err
		}
		wait, _ := cmd.Flags().GetBool("wait")
		client := newClientFor(cmd)

		start := func(ctx context.Context) (*models.SessionResponse, error) {
			return client.Start(ctx, args[0], wait)
		}

		var result *models.SessionResponse
		var err error
		if wait {
			result, err = withSpinner(cmd, fmt.Sprintf("Waiting for session %s to become ready...", args[0]), start)
		} else {
			result, err = start(cmd.Context())
		}
		if err != nil {
			return err
		}

		return render(cmd, result, func(w io.Writer) {
			printf(w, "%s\n", result.Message)
			if result.Session != nil {
				printSession(w, *result.Session)
			}
		})
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show the state of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := newClientFor(cmd).Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		return render(cmd, info, func(w io.Writer) {
			printSession(w, *info)
		})
	},
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List resident sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := newClientFor(cmd).List(cmd.Context())
		if err != nil {
			return err
		}

		return render(cmd, list, func(w io.Writer) {
			if list.Count == 0 {
				printf(w, "%s\n", mutedStyle.Render("No sessions"))
				return
			}
			printf(w, "%s\n", headerStyle.Render(fmt.Sprintf("%-24s %-16s %-8s %s", "ID", "STATE", "ATTEMPT", "AGE")))
			for _, session := range list.Sessions {
				printf(w, "%-24s %-16s %-8d %s\n",
					session.ID,
					session.State,
					session.Attempt,
					session.Age().Truncate(time.Second))
			}
		})
	},
}

var sessionStopCmd = &cobra.Command{
	Use:     "stop <id>",
	Aliases: []string{"rm"},
	Short:   "Stop a session and delete its stored credentials",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			confirmed, err := confirmStop(args[0])
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("Aborted")
				return nil
			}
		}

		result, err := newClientFor(cmd).Stop(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		return render(cmd, result, func(w io.Writer) {
			printf(w, "%s\n", successStyle.Render(result.Message))
		})
	},
}

var sessionHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show the journaled state transitions of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		history, err := newClientFor(cmd).History(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}

		return render(cmd, history, func(w io.Writer) {
			if history.Count == 0 {
				printf(w, "%s\n", mutedStyle.Render("No transitions recorded"))
				return
			}
			for _, t := range history.Transitions {
				printf(w, "%s  #%-3d %-14s %s -> %s",
					t.Time.Local().Format(time.DateTime), t.Attempt, t.Event, t.From, t.To)
				if len(t.Detail) > 0 {
					printf(w, "  %s", mutedStyle.Render(t.Detail))
				}
				printf(w, "\n")
			}
		})
	},
}

func printSession(w io.Writer, info models.SessionInfo) {
	printf(w, "Session:  %s\n", info.ID)
	printf(w, "State:    %s\n", stateBadge(info.State))
	if info.Attempt > 0 {
		printf(w, "Attempt:  %d\n", info.Attempt)
	}
	if !info.LastTransitionAt.IsZero() {
		printf(w, "Changed:  %s\n", info.LastTransitionAt.Local().Format(time.DateTime))
	}
	if info.AwaitingQR {
		printf(w, "%s\n", warningStyle.Render("A client is waiting for a QR code"))
	}
	if len(info.LastError) > 0 {
		printf(w, "Error:    %s\n", errorStyle.Render(info.LastError))
	}
}

func confirmStop(sessionID string) (bool, error) {
	var confirmed bool

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Stop session %q?", sessionID)).
				Description("Its stored credentials are deleted and the phone must scan again.").
				Value(&confirmed),
		),
	)

	if err := form.Run(); err != nil {
		return false, fmt.Errorf("prompt cancelled: %w", err)
	}
	return confirmed, nil
}

func init() {
	rootCmd.AddCommand(sessionCmd)

	sessionStartCmd.Flags().Bool("wait", true, "Block until the session is ready")
	sessionStopCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	sessionHistoryCmd.Flags().Int("limit", 20, "Maximum number of transitions")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionStopCmd)
	sessionCmd.AddCommand(sessionHistoryCmd)
	sessionCmd.AddCommand(qrCmd)
}
