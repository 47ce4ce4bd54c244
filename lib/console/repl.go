package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/go-i2p/logger"
)

const prompt = "> "

// syncWriter serialises output from the input loop and the event printer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) println(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "\n%s\n%s", text, prompt)
}

func (s *syncWriter) print(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	io.WriteString(s.w, text)
}

// RunREPL reads commands from in and prints server events to out until the
// user exits, in reaches EOF, the server goes away or ctx is cancelled.
// Leaving through /exit or EOF sends a Disconnect. The returned error is the
// reason the connection failed, if it did.
func RunREPL(ctx context.Context, chat Chat, in io.Reader, out io.Writer) error {
	w := &syncWriter{w: out}
	w.print(banner() + "\n" + prompt)

	serverGone := make(chan struct{})
	go func() {
		defer close(serverGone)
		for ev := range chat.Events() {
			w.println(Format(ev))
		}
	}()

	lines := make(chan string)
	inputDone := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-serverGone:
				return
			case <-ctx.Done():
				return
			}
		}
		inputDone <- scanner.Err()
	}()

	for {
		select {
		case line := <-lines:
			cmd, err := Parse(line)
			if err != nil {
				w.print(formatError(err) + "\n" + prompt)
				continue
			}
			exit, err := Execute(chat, cmd)
			if exit {
				w.print("\nConnection closed\n")
				return nil
			}
			if err != nil {
				w.print(formatError(err) + "\n" + prompt)
				continue
			}
			w.print(prompt)
		case err := <-inputDone:
			if err != nil {
				log.WithError(err).WithField("at", "console.RunREPL").Warn("input_read_failed")
			}
			chat.Disconnect()
			w.print("\nConnection closed\n")
			return nil
		case <-serverGone:
			w.print("\nServer disconnected\n")
			return chat.Err()
		case <-ctx.Done():
			chat.Disconnect()
			log.WithFields(logger.Fields{
				"at":     "console.RunREPL",
				"client": chat.ID(),
			}).Debug("console_cancelled")
			return nil
		}
	}
}
