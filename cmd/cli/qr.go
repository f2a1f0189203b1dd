package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/wagate/gateway/internal/models"
	"github.com/wagate/gateway/internal/qrcode"
)

const statusPollInterval = 2 * time.Second

type qrMsg struct {
	response *models.QRCodeResponse
}

type sessionMsg struct {
	info *models.SessionInfo
}

type errorMsg struct {
	err error
}

// qrModel waits for a handshake code, shows it, then follows the session
// until the phone has linked it.
type qrModel struct {
	ctx       context.Context
	client    *gatewayClient
	sessionID string
	follow    bool

	spinner  spinner.Model
	code     string
	message  string
	state    models.SessionState
	err      error
	quitting bool
}

func newQRModel(ctx context.Context, client *gatewayClient, sessionID string, follow bool) qrModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#3b82f6"))

	return qrModel{
		ctx:       ctx,
		client:    client,
		sessionID: sessionID,
		follow:    follow,
		spinner:   s,
	}
}

func (m qrModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchQR)
}

func (m qrModel) fetchQR() tea.Msg {
	response, err := m.client.QRCode(m.ctx, m.sessionID)
	if err != nil {
		return errorMsg{err: err}
	}
	return qrMsg{response: response}
}

func (m qrModel) fetchStatus() tea.Msg {
	info, err := m.client.Status(m.ctx, m.sessionID)
	if err != nil {
		return errorMsg{err: err}
	}
	return sessionMsg{info: info}
}

func (m qrModel) pollStatus() tea.Cmd {
	return tea.Tick(statusPollInterval, func(time.Time) tea.Msg {
		return m.fetchStatus()
	})
}

func (m qrModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case qrMsg:
		m.message = msg.response.Message
		m.state = msg.response.State
		if len(msg.response.Code) == 0 {
			// Already linked, nothing to scan.
			return m, tea.Quit
		}
		m.code = msg.response.Code
		if !m.follow {
			return m, tea.Quit
		}
		return m, m.pollStatus()

	case sessionMsg:
		m.state = msg.info.State
		switch {
		case m.state == models.SessionStateReady:
			return m, tea.Quit
		case m.state.IsTerminal():
			m.err = errors.New(msg.info.LastError)
			if len(msg.info.LastError) == 0 {
				m.err = fmt.Errorf("session ended in state %s", m.state)
			}
			return m, tea.Quit
		}
		return m, m.pollStatus()

	case errorMsg:
		m.err = msg.err
		return m, tea.Quit
	}

	return m, nil
}

func (m qrModel) View() string {
	if m.quitting {
		return ""
	}

	var content strings.Builder

	if len(m.code) > 0 {
		if rendered, err := qrcode.Terminal(m.code); err == nil {
			content.WriteString(rendered)
		}
		content.WriteString("\n")
		content.WriteString("Scan with WhatsApp > Linked devices > Link a device\n\n")
	}

	switch {
	case m.err != nil:
		content.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		content.WriteString("\n")
	case len(m.code) == 0 && len(m.message) > 0:
		content.WriteString(successStyle.Render(m.message))
		content.WriteString("\n")
	case len(m.code) == 0:
		content.WriteString(fmt.Sprintf("\n %s Waiting for a QR code for %s...\n\n", m.spinner.View(), m.sessionID))
	case m.state == models.SessionStateReady:
		content.WriteString(successStyle.Render("Session linked and ready"))
		content.WriteString("\n")
	case m.follow:
		content.WriteString(fmt.Sprintf("%s State: %s\n", m.spinner.View(), stateBadge(m.state)))
		content.WriteString(mutedStyle.Render("Press q to quit"))
		content.WriteString("\n")
	}

	return content.String()
}

var qrCmd = &cobra.Command{
	Use:   "qr <id>",
	Short: "Show the QR code that links a session",
	Long: `Ask the gateway for the next QR code of a session, starting the
session if needed, and draw it in the terminal. With --follow the command
keeps watching until the session is ready.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := models.ValidateSessionID(args[0]); err != nil {
			return err
		}
		follow, _ := cmd.Flags().GetBool("follow")
		client := newClientFor(cmd)

		if outputFormat(cmd) != outputText {
			response, err := client.QRCode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd, response, func(io.Writer) {})
		}

		final, err := tea.NewProgram(newQRModel(cmd.Context(), client, args[0], follow)).Run()
		if err != nil {
			return fmt.Errorf("failed to run terminal ui: %w", err)
		}
		if model, ok := final.(qrModel); ok && model.err != nil {
			return model.err
		}
		return nil
	},
}

func init() {
	qrCmd.Flags().BoolP("follow", "f", true, "Keep watching until the session is ready")
}
