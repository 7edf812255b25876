package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/logrelay/logrelay/agent/internal/config"
	"github.com/logrelay/logrelay/agent/internal/endpoint"
)

type capture struct {
	mu     sync.Mutex
	paths  []string
	bodies []string
	keys   []string
}

func (c *capture) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.paths = append(c.paths, r.URL.Path)
	c.bodies = append(c.bodies, string(body))
	c.keys = append(c.keys, r.Header.Get("AUTHKEY"))
	c.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func newRemote(t *testing.T) (*capture, string) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewTLSServer(http.HandlerFunc(c.handler))
	t.Cleanup(srv.Close)
	return c, strings.TrimPrefix(srv.URL, "https://")
}

func writeConfig(t *testing.T, host string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logrelay.yaml")
	yaml := "agent:\n" +
		"  remote_host: " + host + "\n" +
		"  hostname: box\n" +
		"  tls:\n" +
		"    insecure_skip_verify: true\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseArgs(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		mode    mode
		key     string
		wantErr bool
	}{
		{name: "sock long", args: []string{"--sock", "app"}, mode: modeSock, key: "app"},
		{name: "sock short", args: []string{"-s", "app"}, mode: modeSock, key: "app"},
		{name: "pipe long", args: []string{"--pipe", "syslog"}, mode: modePipe, key: "syslog"},
		{name: "pipe short with config", args: []string{"-p", "syslog", "-c", "x.yaml"}, mode: modePipe, key: "syslog"},
		{name: "neither", args: nil, wantErr: true},
		{name: "both", args: []string{"-s", "a", "-p", "b"}, wantErr: true},
		{name: "empty key", args: []string{"--sock", ""}, wantErr: true},
		{name: "stray argument", args: []string{"-s", "a", "extra"}, wantErr: true},
		{name: "unknown flag", args: []string{"--bogus"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv, err := parseArgs(tc.args)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", inv)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if inv.mode != tc.mode || inv.key != tc.key {
				t.Errorf("got mode=%d key=%q, want mode=%d key=%q", inv.mode, inv.key, tc.mode, tc.key)
			}
		})
	}
}

func TestParseArgs_Version(t *testing.T) {
	inv, err := parseArgs([]string{"--version"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inv.version {
		t.Error("version flag not recorded")
	}
}

func TestRun_UsageErrorExitsTwo(t *testing.T) {
	if code := run([]string{"-s", "a", "-p", "b"}, strings.NewReader("")); code != exitUsage {
		t.Errorf("exit code: got %d, want %d", code, exitUsage)
	}
}

func TestRun_PipeForwardsStdin(t *testing.T) {
	remote, host := newRemote(t)
	t.Setenv("LOGGER_AUTHKEY", "secret")

	code := run([]string{"--pipe", "syslog", "-c", writeConfig(t, host)}, strings.NewReader("a\nb\nc\n"))
	if code != exitOK {
		t.Fatalf("exit code: got %d, want %d", code, exitOK)
	}

	remote.mu.Lock()
	defer remote.mu.Unlock()
	if len(remote.bodies) != 1 {
		t.Fatalf("requests: got %d, want 1", len(remote.bodies))
	}
	if remote.paths[0] != "/box/syslog" {
		t.Errorf("path: got %q", remote.paths[0])
	}
	if remote.bodies[0] != "a\nb\nc\n" {
		t.Errorf("body: got %q", remote.bodies[0])
	}
	if remote.keys[0] != "secret" {
		t.Errorf("AUTHKEY: got %q", remote.keys[0])
	}
}

func TestRun_PipeMissingAuthKeyFails(t *testing.T) {
	remote, host := newRemote(t)
	t.Setenv("LOGGER_AUTHKEY", "")

	code := run([]string{"--pipe", "syslog", "-c", writeConfig(t, host)}, strings.NewReader("x\n"))
	if code != exitFailure {
		t.Errorf("exit code: got %d, want %d", code, exitFailure)
	}
	if remote.count() != 0 {
		t.Errorf("no request expected, got %d", remote.count())
	}
}

func TestRun_PipeRemoteRejectionFails(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	t.Setenv("LOGGER_AUTHKEY", "wrong")

	code := run([]string{"-p", "syslog", "-c", writeConfig(t, strings.TrimPrefix(srv.URL, "https://"))}, strings.NewReader("x\n"))
	if code != exitFailure {
		t.Errorf("exit code: got %d, want %d", code, exitFailure)
	}
}

func TestServeChannel_ForwardsUntilCancelled(t *testing.T) {
	remote, host := newRemote(t)
	t.Setenv("LOGGER_AUTHKEY", "secret")
	t.Setenv("XDG_RUNTIME_DIR", "")

	// Unix socket paths are length limited; keep the root short.
	root, err := os.MkdirTemp("", "lr")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(root) })

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	a := cfg.Agent
	a.RemoteHost = host
	a.Hostname = "box"
	a.RuntimeDir = root
	a.TLS.InsecureSkipVerify = true

	sockPath := filepath.Join(root, endpoint.CurrentUID(), config.DefaultNamespace, "app")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveChannel(ctx, a, "app") }()

	var conn net.Conn
	deadline := time.Now().Add(3 * time.Second)
	for {
		conn, err = net.Dial("unix", sockPath)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("socket never became reachable: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := conn.Write([]byte("hello\n")); err != nil {
		t.Fatal(err)
	}

	deadline = time.Now().Add(3 * time.Second)
	for remote.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	conn.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serveChannel: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("serveChannel did not return after cancel")
	}

	remote.mu.Lock()
	defer remote.mu.Unlock()
	if len(remote.bodies) != 1 || remote.bodies[0] != "hello\n" {
		t.Fatalf("bodies: got %q", remote.bodies)
	}
	if remote.paths[0] != "/box/app" {
		t.Errorf("path: got %q", remote.paths[0])
	}
	if _, err := os.Stat(sockPath); !os.IsNotExist(err) {
		t.Errorf("socket file should be removed on shutdown, stat err=%v", err)
	}
}

func TestServeChannel_RejectsDirectoryKey(t *testing.T) {
	t.Setenv("LOGGER_AUTHKEY", "secret")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	a := cfg.Agent
	a.RuntimeDir = t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", "")

	if err := serveChannel(context.Background(), a, "app/"); err == nil {
		t.Fatal("expected error for key ending in /")
	}
}
