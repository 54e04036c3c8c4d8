package notify

import (
	"context"
	"fmt"
	"io"
)

// ConsoleSender writes outbound messages to a writer, for the local REPL.
type ConsoleSender struct {
	out io.Writer
}

func NewConsoleSender(out io.Writer) *ConsoleSender {
	return &ConsoleSender{out: out}
}

func (s *ConsoleSender) Send(_ context.Context, userID, message string) error {
	_, err := fmt.Fprintf(s.out, "[%s] %s\n", userID, message)
	return err
}
