package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wagate/gateway/internal/models"
)

var sendCmd = &cobra.Command{
	Use:   "send <id> <number> [message]",
	Short: "Send a message through a ready session",
	Long: `Send a text message, or a file with an optional caption, to a contact
number. The number may contain formatting characters; only its digits
are used.`,
	Example: `  wagate send shop-1 5551234567 "Your order has shipped"
  wagate send shop-1 5551234567 "Invoice" --file ./invoice.pdf`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, number := args[0], args[1]

		var message string
		if len(args) == 3 {
			message = args[2]
		}

		file, _ := cmd.Flags().GetString("file")
		if len(file) > 0 {
			if _, err := os.Stat(file); err != nil {
				return fmt.Errorf("cannot read attachment: %w", err)
			}
		} else if len(strings.TrimSpace(message)) == 0 {
			return models.ErrEmptyMessage
		}

		client := newClientFor(cmd)
		ack, err := withSpinner(cmd, "Sending message...", func(ctx context.Context) (*models.Ack, error) {
			return client.Send(ctx, sessionID, number, message, file)
		})
		if err != nil {
			return err
		}

		return render(cmd, ack, func(w io.Writer) {
			printf(w, "%s\n", successStyle.Render("Message sent"))
			if ack != nil {
				printf(w, "To:   %s\n", ack.Recipient)
				printf(w, "ID:   %s\n", ack.MessageID)
			}
		})
	},
}

func init() {
	sendCmd.Flags().StringP("file", "f", "", "Attach a media file")
	rootCmd.AddCommand(sendCmd)
}
