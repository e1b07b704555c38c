package order

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// EventSink receives named server-sent events. A write error ends the stream.
type EventSink interface {
	Send(event, data string) error
}

// Streamer polls a farmer's change version and forwards changes to a sink.
type Streamer struct {
	versions VersionCounter
	interval time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

func NewStreamer(versions VersionCounter, interval time.Duration) *Streamer {
	return &Streamer{versions: versions, interval: interval, done: make(chan struct{})}
}

// Close ends every running Serve call. Safe to call more than once.
func (s *Streamer) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Serve emits "ready" once, then an "orders" event carrying the new version
// whenever it differs from the last one sent. Bumps that land within one
// interval are reported as a single event. Serve stops when ctx is done or
// Close is called, and returns the sink's error if a write fails.
func (s *Streamer) Serve(ctx context.Context, farmerID int64, sink EventSink) error {
	last := s.versions.Current(farmerID)
	if err := sink.Send("ready", "ok"); err != nil {
		return err
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-ticker.C:
			current := s.versions.Current(farmerID)
			if current == last {
				continue
			}
			last = current
			if err := sink.Send("orders", strconv.FormatInt(current, 10)); err != nil {
				return err
			}
		}
	}
}

type sseSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSESink(w http.ResponseWriter) *sseSink {
	return &sseSink{w: w, rc: http.NewResponseController(w)}
}

func (s *sseSink) Send(event, data string) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return s.rc.Flush()
}
