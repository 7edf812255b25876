package stats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Metric names.
const (
	metricConnectionsAccepted = "logrelay_connections_accepted_total"
	metricConnectionsActive   = "logrelay_connections_active"
	metricChunksRead          = "logrelay_chunks_read_total"
	metricBytesRead           = "logrelay_bytes_read_total"
	metricInvalidUTF8         = "logrelay_invalid_utf8_chunks_total"
	metricReadErrors          = "logrelay_read_errors_total"
	metricForwarded           = "logrelay_messages_forwarded_total"
	metricForwardFailures     = "logrelay_forward_failures_total"
)

// Stats holds the agent's counters. The zero value is ready to use.
type Stats struct {
	connectionsAccepted atomic.Int64
	connectionsActive   atomic.Int64
	chunksRead          atomic.Int64
	bytesRead           atomic.Int64
	invalidUTF8         atomic.Int64
	readErrors          atomic.Int64
	forwarded           atomic.Int64

	mu       sync.Mutex
	failures map[string]int64 // keyed by failure kind
}

// New returns an empty Stats.
func New() *Stats {
	return &Stats{}
}

func (s *Stats) ConnectionOpened() {
	s.connectionsAccepted.Add(1)
	s.connectionsActive.Add(1)
}

func (s *Stats) ConnectionClosed() { s.connectionsActive.Add(-1) }

// ChunkRead records one successful read of n bytes.
func (s *Stats) ChunkRead(n int) {
	s.chunksRead.Add(1)
	s.bytesRead.Add(int64(n))
}

func (s *Stats) InvalidUTF8()  { s.invalidUTF8.Add(1) }
func (s *Stats) ReadError()    { s.readErrors.Add(1) }
func (s *Stats) Forwarded()    { s.forwarded.Add(1) }
func (s *Stats) Active() int64 { return s.connectionsActive.Load() }

// ForwardFailed records a failed send of the given kind.
func (s *Stats) ForwardFailed(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures == nil {
		s.failures = make(map[string]int64)
	}
	s.failures[kind]++
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	ConnectionsAccepted int64
	ConnectionsActive   int64
	ChunksRead          int64
	BytesRead           int64
	InvalidUTF8         int64
	ReadErrors          int64
	Forwarded           int64
	Failures            map[string]int64
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		ConnectionsAccepted: s.connectionsAccepted.Load(),
		ConnectionsActive:   s.connectionsActive.Load(),
		ChunksRead:          s.chunksRead.Load(),
		BytesRead:           s.bytesRead.Load(),
		InvalidUTF8:         s.invalidUTF8.Load(),
		ReadErrors:          s.readErrors.Load(),
		Forwarded:           s.forwarded.Load(),
		Failures:            make(map[string]int64),
	}
	s.mu.Lock()
	for k, v := range s.failures {
		snap.Failures[k] = v
	}
	s.mu.Unlock()
	return snap
}

// Families builds one MetricFamily per counter, in a stable order.
func (s *Stats) Families() []*dto.MetricFamily {
	snap := s.Snapshot()

	fams := []*dto.MetricFamily{
		counter(metricConnectionsAccepted, "Channel connections accepted.", snap.ConnectionsAccepted),
		gauge(metricConnectionsActive, "Channel connections currently open.", snap.ConnectionsActive),
		counter(metricChunksRead, "Reads that returned data.", snap.ChunksRead),
		counter(metricBytesRead, "Bytes read from channel connections.", snap.BytesRead),
		counter(metricInvalidUTF8, "Reads that were not valid UTF-8.", snap.InvalidUTF8),
		counter(metricReadErrors, "Unclassified read errors.", snap.ReadErrors),
		counter(metricForwarded, "Messages accepted by the remote sink.", snap.Forwarded),
	}

	failures := &dto.MetricFamily{
		Name: proto.String(metricForwardFailures),
		Help: proto.String("Messages the remote sink did not accept, by failure kind."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	kinds := make([]string, 0, len(snap.Failures))
	for k := range snap.Failures {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		failures.Metric = append(failures.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{{Name: proto.String("kind"), Value: proto.String(k)}},
			Counter: &dto.Counter{Value: proto.Float64(float64(snap.Failures[k]))},
		})
	}
	if len(failures.Metric) > 0 {
		fams = append(fams, failures)
	}
	return fams
}

// WriteText renders all families in the Prometheus text format.
func (s *Stats) WriteText(w io.Writer) error {
	for _, mf := range s.Families() {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("stats: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteFile atomically replaces path with the current text exposition.
func (s *Stats) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("stats: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := s.WriteText(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("stats: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("stats: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("stats: rename: %w", err)
	}
	return nil
}

// RunTextfile rewrites path every interval until ctx is cancelled, then
// writes it one last time.
func (s *Stats) RunTextfile(ctx context.Context, path string, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.WriteFile(path); err != nil {
				slog.Warn("stats: final write failed", "path", path, "err", err)
			}
			return
		case <-t.C:
			if err := s.WriteFile(path); err != nil {
				slog.Warn("stats: write failed", "path", path, "err", err)
			}
		}
	}
}

func counter(name, help string, v int64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(float64(v))}}},
	}
}

func gauge(name, help string, v int64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(float64(v))}}},
	}
}
