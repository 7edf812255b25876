package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/logrelay/logrelay/agent/internal/config"
	"github.com/logrelay/logrelay/agent/internal/endpoint"
	"github.com/logrelay/logrelay/agent/internal/stats"
)

var (
	// ErrAddressInUse means another process is listening on the socket.
	ErrAddressInUse = errors.New("channel: socket address already in use")

	// ErrStaleSocket means a file occupies the socket path but nothing is
	// listening on it.
	ErrStaleSocket = errors.New("channel: stale socket file")
)

const (
	acceptRetryMin = 5 * time.Millisecond
	acceptRetryMax = time.Second
	probeTimeout   = time.Second
)

// Forwarder receives every message read from a connection. Ship must not
// block on delivery.
type Forwarder interface {
	Ship(ctx context.Context, body []byte)
}

// Options tunes the server and its stream readers.
type Options struct {
	SocketMode    os.FileMode
	ReadBuffer    int
	MaxReadErrors int
	InvalidUTF8   string // config.InvalidUTF8Close | config.InvalidUTF8Forward
	Framing       string // config.FramingRead | config.FramingLines
	DrainTimeout  time.Duration
	Stats         *stats.Stats
}

// OptionsFrom maps the agent config onto Options.
func OptionsFrom(a config.AgentConfig, st *stats.Stats) (Options, error) {
	mode, err := a.FileMode()
	if err != nil {
		return Options{}, fmt.Errorf("channel: %w", err)
	}
	return Options{
		SocketMode:    mode,
		ReadBuffer:    a.ReadBuffer,
		MaxReadErrors: a.MaxReadErrors,
		InvalidUTF8:   a.InvalidUTF8,
		Framing:       a.Framing,
		DrainTimeout:  a.DrainTimeout,
		Stats:         st,
	}, nil
}

// Server accepts connections on one channel socket.
type Server struct {
	addr  endpoint.Address
	fw    Forwarder
	opts  Options
	stats *stats.Stats

	ready  chan struct{}
	active sync.WaitGroup
}

// New creates a Server for addr. Zero-valued options fall back to the
// config defaults.
func New(addr endpoint.Address, fw Forwarder, opts Options) *Server {
	if opts.SocketMode == 0 {
		opts.SocketMode = 0o600
	}
	if opts.ReadBuffer <= 0 {
		opts.ReadBuffer = config.DefaultReadBuffer
	}
	if opts.MaxReadErrors <= 0 {
		opts.MaxReadErrors = config.DefaultMaxReadErrors
	}
	if opts.InvalidUTF8 == "" {
		opts.InvalidUTF8 = config.InvalidUTF8Close
	}
	if opts.Framing == "" {
		opts.Framing = config.FramingRead
	}
	if opts.Stats == nil {
		opts.Stats = stats.New()
	}
	return &Server{
		addr:  addr,
		fw:    fw,
		opts:  opts,
		stats: opts.Stats,
		ready: make(chan struct{}),
	}
}

// Ready is closed once the socket is bound and accepting.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Path returns the socket file path.
func (s *Server) Path() string { return s.addr.Path() }

// Serve binds the socket and accepts connections until ctx is cancelled.
// Bind failures are returned immediately. After cancellation the socket file
// is removed and Serve returns nil.
func (s *Server) Serve(ctx context.Context) error {
	path := s.addr.Path()

	ln, err := listen(path)
	if err != nil {
		return err
	}
	// The socket file is removed explicitly below so a failure can be logged.
	ln.SetUnlinkOnClose(false)

	// Until this chmod the socket carries umask permissions; the 0700
	// directory created by endpoint.Resolve is what guards that window.
	if err := os.Chmod(path, s.opts.SocketMode); err != nil {
		ln.Close()
		removeSocket(path)
		return fmt.Errorf("channel: chmod %s: %w", path, err)
	}

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("channel: listening", "path", path, "framing", s.opts.Framing)
	close(s.ready)

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			delay = nextDelay(delay)
			slog.Error("channel: accept failed", "err", err, "retry_in", delay)
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.serveConn(ctx, conn)
		}()
	}

	removeSocket(path)
	s.drain()
	return nil
}

// drain waits up to DrainTimeout for open connections to finish.
func (s *Server) drain() {
	if s.opts.DrainTimeout <= 0 {
		return
	}
	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.opts.DrainTimeout):
		slog.Warn("channel: drain timed out", "open_connections", s.stats.Active())
	}
}

// listen binds path without removing anything first. When the address is
// taken it probes the socket to tell a live listener from a leftover file.
func listen(path string) (*net.UnixListener, error) {
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err == nil {
		return ln, nil
	}
	if !errors.Is(err, unix.EADDRINUSE) {
		return nil, fmt.Errorf("channel: listen on %s: %w", path, err)
	}

	conn, dialErr := net.DialTimeout("unix", path, probeTimeout)
	if dialErr == nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrAddressInUse, path)
	}
	if errors.Is(dialErr, unix.ECONNREFUSED) {
		return nil, fmt.Errorf("%w: %s (remove it if no other logrelay is running)", ErrStaleSocket, path)
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrAddressInUse, path, dialErr)
}

// removeSocket unlinks the socket file. Failure is logged, not returned.
func removeSocket(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Error("channel: socket not removed", "path", path, "err", err)
		return
	}
	slog.Info("channel: socket removed", "path", path)
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return acceptRetryMin
	}
	d *= 2
	if d > acceptRetryMax {
		d = acceptRetryMax
	}
	return d
}
