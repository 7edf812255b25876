package shipper

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/logrelay/logrelay/agent/internal/config"
	"github.com/logrelay/logrelay/agent/internal/sink"
	"github.com/logrelay/logrelay/agent/internal/stats"
)

// Shipper forwards message bodies to one remote endpoint.
type Shipper struct {
	out      config.Outbound
	endpoint string
	sink     sink.Sink
	stats    *stats.Stats

	inflight sync.WaitGroup
}

// New creates a Shipper posting to the endpoint derived from out.
// A nil st gets a private Stats.
func New(out config.Outbound, s sink.Sink, st *stats.Stats) *Shipper {
	if st == nil {
		st = stats.New()
	}
	return &Shipper{
		out:      out,
		endpoint: sink.Endpoint(out.RemoteHost, out.Hostname, out.Key),
		sink:     s,
		stats:    st,
	}
}

// Endpoint returns the URL every message is posted to.
func (s *Shipper) Endpoint() string { return s.endpoint }

// Ship posts body in the background. It never blocks on the remote and
// never reports failure to the caller.
func (s *Shipper) Ship(ctx context.Context, body []byte) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.Send(ctx, body); err != nil {
			slog.Warn("shipper: message dropped",
				"endpoint", s.endpoint,
				"bytes", len(body),
				"err", err)
		}
	}()
}

// Send posts body and returns the outcome.
func (s *Shipper) Send(ctx context.Context, body []byte) error {
	resp, err := s.sink.Post(ctx, s.endpoint, s.out.AuthKey, body)
	if err != nil {
		kind := sink.KindOther
		var se *sink.SendError
		if errors.As(err, &se) {
			kind = se.Kind
		}
		s.stats.ForwardFailed(string(kind))
		return err
	}
	s.stats.Forwarded()
	slog.Debug("shipper: message delivered",
		"endpoint", s.endpoint,
		"bytes", len(body),
		"status", resp.StatusCode)
	return nil
}

// Wait blocks until every message passed to Ship has been attempted.
func (s *Shipper) Wait() {
	s.inflight.Wait()
}
