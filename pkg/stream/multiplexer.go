// Package stream implements the Stream Multiplexer (component C5):
// bridging the language model's lazy answer stream to the downstream
// client, inserting rotating heartbeat frames across stalls and
// propagating cancellation without reordering or duplicating chunks.
package stream

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chainlens/nlquery/pkg/contracts"
	"github.com/chainlens/nlquery/pkg/shared/logging"
	"github.com/chainlens/nlquery/pkg/types"
)

// heartbeatMessages is the fixed rotation of eight "thinking" messages
// (spec.md §7, matching the original service's StatusMessage set).
var heartbeatMessages = []string{
	"Analyzing your query deeply",
	"Exploring the knowledge graph",
	"Finding relevant connections",
	"Processing complex relationships",
	"Gathering comprehensive data",
	"Cross-referencing information",
	"Validating query results",
	"Optimizing data retrieval",
}

// DefaultStallWindow is the silence duration after which a heartbeat is
// emitted (spec.md §7 "default 300 s").
const DefaultStallWindow = 300 * time.Second

// Multiplexer bridges one contracts.AnswerStream to a channel of
// types.PipelineEvent, on a single cooperative worker: exactly one task
// pulls from upstream and pushes downstream, so chunk order is preserved
// and heartbeats are never duplicated or reordered (spec.md §4.5).
type Multiplexer struct {
	stallWindow time.Duration
	log         *logrus.Logger

	// cursor holds per-instance heartbeat rotation state; it is never
	// shared across Multiplexer instances or goroutines.
	cursor int
}

// New builds a Multiplexer with the default stall window.
func New(log *logrus.Logger) *Multiplexer {
	return &Multiplexer{stallWindow: DefaultStallWindow, log: log}
}

// NewWithStallWindow builds a Multiplexer with a configurable stall
// window, for tests and deployments that need a tighter bound.
func NewWithStallWindow(stallWindow time.Duration, log *logrus.Logger) *Multiplexer {
	return &Multiplexer{stallWindow: stallWindow, log: log}
}

// Run pulls from upstream until it's exhausted, ctx is cancelled, or an
// upstream error occurs, pushing types.PipelineEvent values onto out.
// Run does not close out — the caller created it and owns its lifecycle
// (it still needs to append a Done event after Run returns successfully).
// Run always calls upstream.Close() before returning.
//
// On cancellation, Run logs the event, closes upstream, and returns
// ctx.Err() without emitting further events (spec.md §4.5 cancellation
// contract). On upstream failure, Run emits exactly one EventError frame
// then returns nil — the caller is responsible for terminating the
// frame sequence with a Done event.
func (m *Multiplexer) Run(ctx context.Context, upstream contracts.AnswerStream, out chan<- types.PipelineEvent) error {
	defer upstream.Close()

	// Each call rotates its own cursor, so concurrent calls on a shared
	// Multiplexer never touch the same heartbeat state.
	m = &Multiplexer{stallWindow: m.stallWindow, log: m.log}

	fields := logging.NewFields().Component("stream").Operation("multiplex")

	for {
		chunk, done, err := m.next(ctx, upstream, out)
		if err != nil {
			if ctx.Err() != nil {
				m.log.WithFields(fields.Error(err).ToLogrus()).Warn("stream cancelled, releasing upstream")
				return ctx.Err()
			}
			m.log.WithFields(fields.Error(err).ToLogrus()).Warn("upstream stream failed")
			m.emit(ctx, out, types.Error(err.Error()))
			return nil
		}
		if done {
			return nil
		}
		m.emit(ctx, out, types.AnswerChunk(chunk))
	}
}

// next waits for the next upstream chunk, emitting heartbeats on the
// downstream channel for every stall window that elapses while waiting.
// It returns (chunk, false, nil) on a real chunk, ("", true, nil) when
// the stream is exhausted, or an error (possibly ctx.Err()) otherwise.
func (m *Multiplexer) next(ctx context.Context, upstream contracts.AnswerStream, out chan<- types.PipelineEvent) (string, bool, error) {
	type result struct {
		chunk string
		ok    bool
		err   error
	}
	resultCh := make(chan result, 1)
	go func() {
		chunk, ok, err := upstream.Next(ctx)
		resultCh <- result{chunk, ok, err}
	}()

	timer := time.NewTimer(m.stallWindow)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case r := <-resultCh:
			if r.err != nil {
				return "", false, r.err
			}
			if !r.ok {
				return "", true, nil
			}
			return r.chunk, false, nil
		case <-timer.C:
			m.emit(ctx, out, types.Heartbeat(m.nextHeartbeatMessage()))
			timer.Reset(m.stallWindow)
		}
	}
}

// nextHeartbeatMessage advances the rotating cursor and returns the
// message it lands on.
func (m *Multiplexer) nextHeartbeatMessage() string {
	msg := heartbeatMessages[m.cursor%len(heartbeatMessages)]
	m.cursor++
	return msg
}

// emit pushes an event downstream, honoring backpressure and
// cancellation on the send itself (spec.md §4.5 "awaiting backpressure
// on the downstream channel" is a suspension point).
func (m *Multiplexer) emit(ctx context.Context, out chan<- types.PipelineEvent, event types.PipelineEvent) {
	select {
	case out <- event:
	case <-ctx.Done():
	}
}
