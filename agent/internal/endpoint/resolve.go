package endpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrDirectoryKey is returned for keys that end in a path separator.
	ErrDirectoryKey = errors.New("endpoint: socket key must name a file, not a directory")

	// ErrInvalidKey is returned for empty keys, keys with empty or "."
	// segments, and keys that would escape the namespace.
	ErrInvalidKey = errors.New("endpoint: invalid socket key")
)

// Address is a resolved channel socket location.
type Address struct {
	BaseDir   string
	UID       string
	Namespace string
	Key       string
}

// Path returns the socket file path.
func (a Address) Path() string {
	return filepath.Join(a.BaseDir, a.UID, a.Namespace, a.Key)
}

// Dir returns the directory that holds the socket file.
func (a Address) Dir() string {
	return filepath.Dir(a.Path())
}

// NormalizeKey strips a single leading separator so the key is relative.
func NormalizeKey(key string) string {
	return strings.TrimPrefix(key, "/")
}

// CheckKey validates a raw key without touching the filesystem.
func CheckKey(key string) error {
	if strings.HasSuffix(key, "/") {
		return fmt.Errorf("%w: %q", ErrDirectoryKey, key)
	}
	rel := NormalizeKey(key)
	if rel == "" {
		return fmt.Errorf("%w: key is empty", ErrInvalidKey)
	}
	// Every segment must name an entry, so the socket path and the remote
	// URL agree on what the key is.
	for _, part := range strings.Split(rel, "/") {
		switch part {
		case "..":
			return fmt.Errorf("%w: %q leaves the namespace", ErrInvalidKey, key)
		case ".", "":
			return fmt.Errorf("%w: %q has an empty or \".\" segment", ErrInvalidKey, key)
		}
	}
	return nil
}

// Resolve validates key, composes <runtimeDir>/<uid>/<namespace>/<key>, and
// ensures the parent directories exist.
func Resolve(runtimeDir, uid, namespace, key string) (Address, error) {
	if err := CheckKey(key); err != nil {
		return Address{}, err
	}

	addr := Address{
		BaseDir:   runtimeDir,
		UID:       uid,
		Namespace: namespace,
		Key:       NormalizeKey(key),
	}

	if err := os.MkdirAll(addr.Dir(), 0o700); err != nil {
		return Address{}, fmt.Errorf("endpoint: can't create socket path %s: %w", addr.Dir(), err)
	}
	return addr, nil
}

// RuntimeDir picks the per-user runtime root. When $XDG_RUNTIME_DIR is
// <root>/<uid> for this uid, <root> is used; otherwise fallback.
func RuntimeDir(uid, fallback string) string {
	xdg := os.Getenv("XDG_RUNTIME_DIR")
	if xdg == "" {
		return fallback
	}
	xdg = filepath.Clean(xdg)
	if filepath.Base(xdg) != uid {
		return fallback
	}
	return filepath.Dir(xdg)
}

// CurrentUID returns the real uid of this process as a string.
func CurrentUID() string {
	return strconv.Itoa(os.Getuid())
}
