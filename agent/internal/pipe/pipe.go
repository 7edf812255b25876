package pipe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Sender delivers one message and reports the outcome.
type Sender interface {
	Send(ctx context.Context, body []byte) error
}

// ReadMessage reads r to EOF and reassembles its lines into one message.
func ReadMessage(r io.Reader) (string, error) {
	br := bufio.NewReader(r)
	var msg strings.Builder
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			msg.WriteString(line)
			msg.WriteByte('\n')
		}
		if errors.Is(err, io.EOF) {
			return msg.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("pipe: read input: %w", err)
		}
	}
}

// Run reads r completely and sends it as one message through s.
func Run(ctx context.Context, r io.Reader, s Sender) error {
	msg, err := ReadMessage(r)
	if err != nil {
		return err
	}
	slog.Debug("pipe: input read", "bytes", len(msg))

	if err := s.Send(ctx, []byte(msg)); err != nil {
		return fmt.Errorf("pipe: forward: %w", err)
	}
	return nil
}
