// Logrelay forwards local log output to a remote HTTPS logging service.
//
// Channel mode (--sock KEY) serves a Unix socket at
// /run/user/<uid>/seungjin-logger/KEY until interrupted and forwards every
// read from every connection. Pipe mode (--pipe KEY) forwards standard input
// once, as a single message.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/logrelay/logrelay/agent/internal/channel"
	"github.com/logrelay/logrelay/agent/internal/config"
	"github.com/logrelay/logrelay/agent/internal/endpoint"
	"github.com/logrelay/logrelay/agent/internal/pipe"
	"github.com/logrelay/logrelay/agent/internal/shipper"
	"github.com/logrelay/logrelay/agent/internal/sink"
	"github.com/logrelay/logrelay/agent/internal/stats"
)

var version = "dev"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin))
}

type mode int

const (
	modeSock mode = iota + 1
	modePipe
)

// invocation is the parsed command line.
type invocation struct {
	mode       mode
	key        string
	configPath string
	version    bool
}

func newFlagSet(inv *invocation, sock, pipeKey *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("logrelay", pflag.ContinueOnError)
	fs.StringVarP(sock, "sock", "s", "", "serve a local socket under this key")
	fs.StringVarP(pipeKey, "pipe", "p", "", "forward standard input under this key")
	fs.StringVarP(&inv.configPath, "config", "c", "", "path to config file (optional)")
	fs.BoolVar(&inv.version, "version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: logrelay (--sock KEY | --pipe KEY) [--config FILE]\n\n")
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs enforces that exactly one of --sock and --pipe is given.
func parseArgs(args []string) (invocation, error) {
	var inv invocation
	var sock, pipeKey string
	fs := newFlagSet(&inv, &sock, &pipeKey)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return inv, err
	}
	if inv.version {
		return inv, nil
	}
	if fs.NArg() > 0 {
		return inv, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	hasSock, hasPipe := fs.Changed("sock"), fs.Changed("pipe")
	switch {
	case hasSock && hasPipe:
		return inv, errors.New("--sock and --pipe are mutually exclusive")
	case hasSock:
		inv.mode, inv.key = modeSock, sock
	case hasPipe:
		inv.mode, inv.key = modePipe, pipeKey
	default:
		return inv, errors.New("one of --sock or --pipe is required")
	}
	if inv.key == "" {
		return inv, errors.New("key must not be empty")
	}
	return inv, nil
}

func run(args []string, stdin io.Reader) int {
	inv, err := parseArgs(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			var sock, pipeKey string
			newFlagSet(&inv, &sock, &pipeKey).Usage()
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "logrelay: %v\n", err)
		fmt.Fprintf(os.Stderr, "Usage: logrelay (--sock KEY | --pipe KEY) [--config FILE]\n")
		return exitUsage
	}
	if inv.version {
		fmt.Printf("logrelay %s\n", version)
		return exitOK
	}

	// Pipe mode keeps stdout free for whatever the caller pipes onward.
	logOut := io.Writer(os.Stdout)
	if inv.mode == modePipe {
		logOut = os.Stderr
	}
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(inv.configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return exitFailure
	}
	level.Set(cfg.Agent.Level())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch inv.mode {
	case modeSock:
		if inv.configPath != "" {
			go watchConfig(ctx, inv.configPath, level)
		}
		err = serveChannel(ctx, cfg.Agent, inv.key)
	case modePipe:
		err = forwardPipe(ctx, cfg.Agent, inv.key, stdin)
	}
	if err != nil {
		slog.Error("logrelay failed", "err", err)
		return exitFailure
	}
	return exitOK
}

// newShipper builds the outbound value and the sink once per process.
func newShipper(a config.AgentConfig, key string, st *stats.Stats) (*shipper.Shipper, error) {
	out, err := config.NewOutbound(a, endpoint.NormalizeKey(key))
	if err != nil {
		return nil, err
	}
	s, err := sink.New(sink.Options{
		Timeout:            a.SendTimeout,
		Compress:           a.Compress,
		CAFile:             a.TLS.CAFile,
		InsecureSkipVerify: a.TLS.InsecureSkipVerify,
	})
	if err != nil {
		return nil, err
	}
	return shipper.New(out, s, st), nil
}

// serveChannel runs channel mode until ctx is cancelled. In-flight forwards
// are abandoned when it returns.
func serveChannel(ctx context.Context, a config.AgentConfig, key string) error {
	slog.Info("socket interface selected", "version", version)

	if err := endpoint.CheckKey(key); err != nil {
		return err
	}

	st := stats.New()
	ship, err := newShipper(a, key, st)
	if err != nil {
		return err
	}

	uid := endpoint.CurrentUID()
	addr, err := endpoint.Resolve(endpoint.RuntimeDir(uid, a.RuntimeDir), uid, a.Namespace, key)
	if err != nil {
		return err
	}
	slog.Info("channel configured", "socket", addr.Path(), "endpoint", ship.Endpoint())

	opts, err := channel.OptionsFrom(a, st)
	if err != nil {
		return err
	}

	if a.StatsFile != "" {
		go st.RunTextfile(ctx, a.StatsFile, a.StatsInterval)
	}

	if err := channel.New(addr, ship, opts).Serve(ctx); err != nil {
		return err
	}
	slog.Info("logrelay shutting down", "forwarded", st.Snapshot().Forwarded)
	return nil
}

// forwardPipe sends standard input as one message.
func forwardPipe(ctx context.Context, a config.AgentConfig, key string, stdin io.Reader) error {
	ship, err := newShipper(a, key, nil)
	if err != nil {
		return err
	}
	slog.Debug("pipe interface selected", "endpoint", ship.Endpoint())
	return pipe.Run(ctx, stdin, ship)
}

func watchConfig(ctx context.Context, path string, level *slog.LevelVar) {
	err := config.Watch(ctx, path, func(updated *config.Config) {
		level.Set(updated.Agent.Level())
		slog.Info("log level applied", "level", updated.Agent.LogLevel)
	})
	if err != nil {
		slog.Error("config watcher stopped", "err", err)
	}
}
