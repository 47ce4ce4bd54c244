package console

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-i2p/go-relaychat/lib/client"
)

type eventMsg client.Event

type closedMsg struct{}

type model struct {
	chat   Chat
	input  textinput.Model
	err    error
	closed bool
}

func newModel(chat Chat) model {
	ti := textinput.New()
	ti.Placeholder = "message, /msg <id> <text>, /list or /exit"
	ti.Prompt = prompt
	ti.CharLimit = 4096
	ti.Focus()
	return model{chat: chat, input: ti}
}

func waitForEvent(events <-chan client.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tea.Println(banner()),
		textinput.Blink,
		waitForEvent(m.chat.Events()),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.chat.Disconnect()
			m.closed = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case eventMsg:
		return m, tea.Batch(
			tea.Println(Format(client.Event(msg))),
			waitForEvent(m.chat.Events()),
		)

	case closedMsg:
		m.closed = true
		m.err = m.chat.Err()
		return m, tea.Sequence(tea.Println("Server disconnected"), tea.Quit)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) submit() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	m.input.SetValue("")

	cmd, err := Parse(line)
	if err != nil {
		return m, tea.Println(formatError(err))
	}
	exit, err := Execute(m.chat, cmd)
	if exit {
		m.closed = true
		return m, tea.Sequence(tea.Println("Connection closed"), tea.Quit)
	}
	if err != nil {
		return m, tea.Println(formatError(err))
	}
	return m, nil
}

func (m model) View() string {
	if m.closed {
		return ""
	}
	return m.input.View()
}

// RunTUI runs the terminal UI until the user quits, the server goes away or
// ctx is cancelled.
func RunTUI(ctx context.Context, chat Chat) error {
	p := tea.NewProgram(newModel(chat), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			chat.Disconnect()
			return nil
		}
		return err
	}
	if fm, ok := final.(model); ok {
		return fm.err
	}
	return nil
}
