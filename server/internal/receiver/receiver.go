package receiver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/logrelay/logrelay/pkg/types"
	"github.com/logrelay/logrelay/server/internal/store"
)

var errTooLarge = errors.New("body exceeds limit")

// Receiver accepts forwarded messages on POST /<hostname>/<key> and writes
// them to the message store.
type Receiver struct {
	store   *store.Store
	maxBody int64
}

// New creates a Receiver that writes accepted messages to st. Bodies larger
// than maxBody bytes, after decompression, are rejected.
func New(st *store.Store, maxBody int64) *Receiver {
	return &Receiver{store: st, maxBody: maxBody}
}

// ServeHTTP handles one forwarded message. Authentication is enforced by the
// auth middleware before this is called.
func (rc *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	route, err := types.ParseRoute(r.URL.Path)
	if err != nil {
		jsonErr(w, http.StatusNotFound, "path must be /<hostname>/<key>")
		return
	}

	body, err := rc.readBody(r)
	if errors.Is(err, errTooLarge) {
		jsonErr(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if err != nil {
		slog.Debug("receiver: unreadable body", "route", route.String(), "err", err)
		jsonErr(w, http.StatusBadRequest, "unreadable body")
		return
	}

	rc.store.Put(route, string(body))

	slog.Debug("receiver: message stored",
		"route", route.String(),
		"bytes", len(body),
	)

	w.WriteHeader(http.StatusNoContent)
}

// readBody returns the request body, gunzipped when Content-Encoding says so.
func (rc *Receiver) readBody(r *http.Request) ([]byte, error) {
	var src io.Reader = r.Body
	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, fmt.Errorf("receiver: gzip header: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	body, err := io.ReadAll(io.LimitReader(src, rc.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("receiver: read body: %w", err)
	}
	if int64(len(body)) > rc.maxBody {
		return nil, errTooLarge
	}
	return body, nil
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}
