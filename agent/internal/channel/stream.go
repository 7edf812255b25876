package channel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/logrelay/logrelay/agent/internal/config"
	"github.com/logrelay/logrelay/agent/internal/stats"
)

// readOutcome classifies a read error.
type readOutcome int

const (
	readClosed    readOutcome = iota // peer or server closed the connection
	readRetry                        // nothing to read yet; try again
	readBroken                       // connection unusable; close it
	readTransient                    // unclassified; counted toward MaxReadErrors
)

func classifyReadErr(err error) readOutcome {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return readClosed
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, unix.EAGAIN):
		return readRetry
	case errors.Is(err, unix.ECONNRESET), errors.Is(err, unix.EPIPE), errors.Is(err, unix.EBADF):
		return readBroken
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return readRetry
	}
	return readTransient
}

// serveConn owns conn for its whole lifetime.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	s.stats.ConnectionOpened()
	defer s.stats.ConnectionClosed()

	// Cancellation closes the connection so the blocked Read returns.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	r := newStreamReader(conn, s.fw, s.opts, slog.With("conn", uuid.NewString()))
	r.log.Debug("channel: connection accepted")
	r.run(ctx)
	r.log.Debug("channel: connection closed")
}

// streamReader is the per-connection read, decode, forward loop.
type streamReader struct {
	conn   net.Conn
	fw     Forwarder
	opts   Options
	stats  *stats.Stats
	log    *slog.Logger
	carry  utf8Carry
	framer *lineFramer // nil unless framing is "lines"
}

func newStreamReader(conn net.Conn, fw Forwarder, opts Options, log *slog.Logger) *streamReader {
	r := &streamReader{
		conn:  conn,
		fw:    fw,
		opts:  opts,
		stats: opts.Stats,
		log:   log,
	}
	if opts.Framing == config.FramingLines {
		r.framer = newLineFramer(maxPendingLine)
	}
	return r
}

// run reads until the connection closes or becomes unusable. Each read's
// forward is dispatched before the next read starts.
func (r *streamReader) run(ctx context.Context) {
	defer r.finish(ctx)

	buf := make([]byte, r.opts.ReadBuffer)
	consecutiveErrs := 0
	for {
		n, err := r.conn.Read(buf)
		if n > 0 {
			consecutiveErrs = 0
			r.stats.ChunkRead(n)
			if !r.handle(ctx, bytes.Clone(buf[:n])) {
				return
			}
		}
		if err == nil {
			continue
		}

		switch classifyReadErr(err) {
		case readClosed:
			return
		case readRetry:
			r.log.Debug("channel: read not ready", "err", err)
		case readBroken:
			r.log.Warn("channel: connection broken", "err", err)
			return
		default:
			consecutiveErrs++
			r.stats.ReadError()
			r.log.Warn("channel: read error", "err", err, "consecutive", consecutiveErrs)
			if consecutiveErrs >= r.opts.MaxReadErrors {
				r.log.Error("channel: closing connection after repeated read errors",
					"errors", consecutiveErrs)
				return
			}
		}
	}
}

// handle decodes one read and forwards it. It returns false when the
// connection must be closed.
func (r *streamReader) handle(ctx context.Context, chunk []byte) bool {
	text := r.carry.feed(chunk)
	if len(text) == 0 {
		return true
	}

	if !utf8.Valid(text) {
		r.stats.InvalidUTF8()
		if r.opts.InvalidUTF8 != config.InvalidUTF8Forward {
			r.log.Warn("channel: invalid UTF-8, closing connection", "bytes", len(text))
			r.carry.reset()
			return false
		}
		r.log.Debug("channel: forwarding raw bytes", "bytes", len(text))
	}

	r.emit(ctx, text)
	return true
}

// emit passes text through the framer, if any, and ships the result.
func (r *streamReader) emit(ctx context.Context, text []byte) {
	if r.framer != nil {
		text = r.framer.feed(text)
	}
	if len(text) > 0 {
		r.fw.Ship(ctx, text)
	}
}

// finish flushes whatever the carry and framer still hold.
func (r *streamReader) finish(ctx context.Context) {
	if rest := r.carry.reset(); len(rest) > 0 {
		r.stats.InvalidUTF8()
		if r.opts.InvalidUTF8 == config.InvalidUTF8Forward {
			r.emit(ctx, rest)
		} else {
			r.log.Debug("channel: dropping truncated UTF-8 sequence", "bytes", len(rest))
		}
	}
	if r.framer != nil {
		if rest := r.framer.flush(); len(rest) > 0 {
			r.fw.Ship(ctx, rest)
		}
	}
}

// utf8Carry holds an incomplete multi-byte sequence at the end of one read
// so it can be completed by the next.
type utf8Carry struct {
	pending []byte
}

// feed returns the longest prefix of pending+chunk that does not end inside
// a multi-byte sequence.
func (c *utf8Carry) feed(chunk []byte) []byte {
	data := chunk
	if len(c.pending) > 0 {
		data = append(c.pending, chunk...)
		c.pending = nil
	}
	cut := completePrefix(data)
	if cut < len(data) {
		c.pending = bytes.Clone(data[cut:])
	}
	return data[:cut]
}

func (c *utf8Carry) reset() []byte {
	p := c.pending
	c.pending = nil
	return p
}

// completePrefix returns the length of p without a trailing incomplete
// rune. Invalid bytes count as complete so they are never held back.
func completePrefix(p []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(p); i++ {
		start := len(p) - i
		if utf8.RuneStart(p[start]) {
			if utf8.FullRune(p[start:]) {
				return len(p)
			}
			return start
		}
	}
	return len(p)
}
