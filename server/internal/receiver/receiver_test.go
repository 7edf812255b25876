package receiver_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/logrelay/logrelay/pkg/types"
	"github.com/logrelay/logrelay/server/internal/auth"
	"github.com/logrelay/logrelay/server/internal/receiver"
	"github.com/logrelay/logrelay/server/internal/store"
)

// startServer starts an HTTP server with the receiver behind key auth and
// returns its URL and the backing store.
func startServer(t *testing.T, key string, maxBody int64) (string, *store.Store) {
	t.Helper()

	st := store.New(5*time.Minute, 100)
	h := auth.APIKeyMiddleware("apikey", "AUTHKEY", key)(receiver.New(st, maxBody))

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL, st
}

func post(t *testing.T, url, key string, body []byte, gzipped bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("AUTHKEY", key)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if gzipped {
		req.Header.Set("Content-Encoding", "gzip")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	resp.Body.Close()
	return resp
}

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPost_StoresMessage(t *testing.T) {
	url, st := startServer(t, "secret", 1<<20)

	resp := post(t, url+"/box/app", "secret", []byte("hello\n"), false)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", resp.StatusCode)
	}

	msgs := st.List(types.Route{Hostname: "box", Key: "app"})
	if len(msgs) != 1 || msgs[0].Body != "hello\n" {
		t.Fatalf("stored: got %+v", msgs)
	}
}

func TestPost_NestedKey(t *testing.T) {
	url, st := startServer(t, "secret", 1<<20)

	post(t, url+"/box/app/web", "secret", []byte("x"), false)

	if msgs := st.List(types.Route{Hostname: "box", Key: "app/web"}); len(msgs) != 1 {
		t.Fatalf("stored under nested key: got %d, want 1", len(msgs))
	}
}

func TestPost_GzipBody(t *testing.T) {
	url, st := startServer(t, "secret", 1<<20)

	resp := post(t, url+"/box/app", "secret", gz(t, "compressed\n"), true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", resp.StatusCode)
	}
	msgs := st.List(types.Route{Hostname: "box", Key: "app"})
	if len(msgs) != 1 || msgs[0].Body != "compressed\n" {
		t.Fatalf("stored: got %+v", msgs)
	}
}

func TestPost_Rejections(t *testing.T) {
	url, st := startServer(t, "secret", 16)

	cases := []struct {
		name    string
		path    string
		key     string
		body    []byte
		gzipped bool
		want    int
	}{
		{name: "wrong key", path: "/box/app", key: "nope", body: []byte("x"), want: http.StatusUnauthorized},
		{name: "missing key segment", path: "/box", key: "secret", body: []byte("x"), want: http.StatusNotFound},
		{name: "empty hostname", path: "//app", key: "secret", body: []byte("x"), want: http.StatusNotFound},
		{name: "oversized body", path: "/box/app", key: "secret", body: []byte(strings.Repeat("a", 17)), want: http.StatusRequestEntityTooLarge},
		{name: "oversized after gunzip", path: "/box/app", key: "secret", body: gz(t, strings.Repeat("a", 64)), gzipped: true, want: http.StatusRequestEntityTooLarge},
		{name: "bad gzip", path: "/box/app", key: "secret", body: []byte("not gzip"), gzipped: true, want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := post(t, url+tc.path, tc.key, tc.body, tc.gzipped)
			if resp.StatusCode != tc.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}

	if n := st.Count(); n != 0 {
		t.Errorf("nothing should be stored, got %d", n)
	}
}

func TestPost_ExactLimitAccepted(t *testing.T) {
	url, _ := startServer(t, "secret", 16)

	resp := post(t, url+"/box/app", "secret", []byte(strings.Repeat("a", 16)), false)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", resp.StatusCode)
	}
}

func TestGet_MethodNotAllowed(t *testing.T) {
	url, _ := startServer(t, "", 1<<20)

	resp, err := http.Get(url + "/box/app")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}
