package pipe

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

// stubSender records every Send.
type stubSender struct {
	bodies []string
	err    error
}

func (s *stubSender) Send(_ context.Context, body []byte) error {
	s.bodies = append(s.bodies, string(body))
	return s.err
}

func TestRun_SingleForward(t *testing.T) {
	s := &stubSender{}
	if err := Run(context.Background(), strings.NewReader("a\nb\nc\n"), s); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(s.bodies) != 1 {
		t.Fatalf("Send called %d times, want 1", len(s.bodies))
	}
	if s.bodies[0] != "a\nb\nc\n" {
		t.Errorf("body = %q, want %q", s.bodies[0], "a\nb\nc\n")
	}
}

func TestReadMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"terminated", "a\nb\nc\n", "a\nb\nc\n"},
		{"unterminated last line", "a\nb\nc", "a\nb\nc\n"},
		{"crlf", "a\r\nb\r\n", "a\nb\n"},
		{"blank lines kept", "a\n\nb\n", "a\n\nb\n"},
		{"empty", "", ""},
		{"long line", strings.Repeat("x", 200_000) + "\n", strings.Repeat("x", 200_000) + "\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ReadMessage(strings.NewReader(tc.in))
			if err != nil {
				t.Fatalf("ReadMessage: %v", err)
			}
			if got != tc.want {
				t.Errorf("ReadMessage = %q, want %q", truncate(got), truncate(tc.want))
			}
		})
	}
}

func TestReadMessage_OneByteReads(t *testing.T) {
	got, err := ReadMessage(iotest.OneByteReader(strings.NewReader("a\nb\nc\n")))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got != "a\nb\nc\n" {
		t.Errorf("ReadMessage = %q", got)
	}
}

func TestRun_ReadErrorSendsNothing(t *testing.T) {
	s := &stubSender{}
	r := io.MultiReader(strings.NewReader("a\n"), iotest.ErrReader(errors.New("disk on fire")))
	if err := Run(context.Background(), r, s); err == nil {
		t.Fatal("expected read error")
	}
	if len(s.bodies) != 0 {
		t.Errorf("Send called %d times after read error, want 0", len(s.bodies))
	}
}

func TestRun_SendFailureSurfaced(t *testing.T) {
	boom := errors.New("remote said no")
	s := &stubSender{err: boom}
	err := Run(context.Background(), strings.NewReader("a\n"), s)
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want wrapped %v", err, boom)
	}
	if len(s.bodies) != 1 {
		t.Errorf("Send called %d times, want exactly 1 (no retry)", len(s.bodies))
	}
}

func truncate(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
