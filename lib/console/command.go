package console

import (
	"errors"
	"strings"

	"github.com/go-i2p/go-relaychat/lib/client"
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// ErrUsage is returned for a malformed /msg command.
var ErrUsage = errors.New("malformed /msg command")

const usageText = "Usage: /msg <client_id> <message>"

// Chat is the part of a connected client the console drives.
type Chat interface {
	ID() string
	Send(text string) error
	SendDirect(target, text string) error
	RequestList() error
	Disconnect() error
	Events() <-chan client.Event
	Err() error
}

// Kind identifies a parsed input line.
type Kind int

const (
	KindNone Kind = iota
	KindSend
	KindDirect
	KindList
	KindExit
)

// Command is one parsed line of user input.
type Command struct {
	Kind   Kind
	Target string
	Text   string
}

// Parse interprets a line of input. Surrounding whitespace is ignored and an
// empty line yields KindNone.
func Parse(line string) (Command, error) {
	input := strings.TrimSpace(line)
	switch {
	case input == "":
		return Command{Kind: KindNone}, nil
	case input == "/exit":
		return Command{Kind: KindExit}, nil
	case input == "/list":
		return Command{Kind: KindList}, nil
	case input == "/msg" || strings.HasPrefix(input, "/msg "):
		parts := strings.SplitN(input, " ", 3)
		if len(parts) < 3 || parts[1] == "" || parts[2] == "" {
			return Command{}, ErrUsage
		}
		return Command{Kind: KindDirect, Target: parts[1], Text: parts[2]}, nil
	default:
		return Command{Kind: KindSend, Text: input}, nil
	}
}

// Execute performs cmd against chat. It reports whether the console should
// stop.
func Execute(chat Chat, cmd Command) (bool, error) {
	var err error
	switch cmd.Kind {
	case KindNone:
		return false, nil
	case KindExit:
		err = chat.Disconnect()
		return true, err
	case KindList:
		err = chat.RequestList()
	case KindDirect:
		err = chat.SendDirect(cmd.Target, cmd.Text)
	case KindSend:
		err = chat.Send(cmd.Text)
	}
	if err != nil {
		log.WithError(err).WithField("at", "console.Execute").Warn("send_failed")
	}
	return false, err
}
