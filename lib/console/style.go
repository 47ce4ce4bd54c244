package console

import (
	"errors"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-i2p/go-relaychat/lib/client"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	directStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	ackStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const ackText = "Message received"

func banner() string {
	var b strings.Builder
	b.WriteString(bannerStyle.Render("Secure channel established!"))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(strings.Join([]string{
		"Available commands:",
		"  /list - Show online clients",
		"  /msg <client_id> <message> - Send a private message to a client",
		"  /exit - Disconnect from chat",
		"Any other text will be sent as a public message to all clients",
	}, "\n")))
	return b.String()
}

// Format renders an incoming event for display.
func Format(ev client.Event) string {
	if ev.Type == client.EventClientList {
		return headerStyle.Render("Online clients:") + "\n" + ev.Text
	}
	switch {
	case ev.Text == ackText:
		return ackStyle.Render(ev.Text)
	case strings.HasPrefix(ev.Text, "[DM]"):
		return directStyle.Render(ev.Text)
	case strings.HasPrefix(ev.Text, "* "), strings.HasPrefix(ev.Text, "Welcome!"):
		return noticeStyle.Render(ev.Text)
	default:
		return ev.Text
	}
}

func formatError(err error) string {
	if errors.Is(err, ErrUsage) {
		return errorStyle.Render(usageText)
	}
	return errorStyle.Render(err.Error())
}
