package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/truthcast/pkg/model"
)

// DefaultStreamBuffer is the per-connection event buffer size. Backpressure
// is per-connection: a slow consumer fills its own buffer without stalling
// unrelated requests.
const DefaultStreamBuffer = 16

// Emitter is the producer side of one request's event stream. The producer
// pushes frames into a bounded channel consumed by the transport layer.
// Close guarantees a terminal done event followed by channel close on every
// exit path; events emitted after Close are discarded. If the consumer's
// context ends (client disconnect), further events are discarded rather
// than retried.
type Emitter struct {
	consumerCtx context.Context
	ch          chan model.StreamEvent
	closeOnce   sync.Once
	closed      chan struct{}

	mu  sync.Mutex
	err error
}

// NewEmitter creates an emitter whose consumer reads under ctx. A buffer
// size of 0 or less falls back to DefaultStreamBuffer.
func NewEmitter(ctx context.Context, buffer int) *Emitter {
	if buffer <= 0 {
		buffer = DefaultStreamBuffer
	}
	return &Emitter{
		consumerCtx: ctx,
		ch:          make(chan model.StreamEvent, buffer),
		closed:      make(chan struct{}),
	}
}

// Events returns the channel the transport layer consumes. It is closed
// after the terminal done event.
func (e *Emitter) Events() <-chan model.StreamEvent {
	return e.ch
}

// Emit queues one event, blocking only while the consumer keeps reading.
func (e *Emitter) Emit(ev model.StreamEvent) {
	select {
	case <-e.closed:
	default:
		select {
		case e.ch <- ev:
		case <-e.consumerCtx.Done():
		case <-e.closed:
		}
	}
}

// Fail reports an in-band failure: consumers on the wire see an error
// event, while in-process consumers can recover the typed error through
// Err. Only the first failure is retained.
func (e *Emitter) Fail(err error) {
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mu.Unlock()

	e.Emit(model.NewErrorEvent(err.Error()))
}

// Err returns the first error reported through Fail, or nil.
func (e *Emitter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Close emits the terminal done event and closes the channel. Safe to call
// multiple times; only the first call has effect.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() {
		select {
		case e.ch <- model.NewDoneEvent():
		case <-e.consumerCtx.Done():
		}
		close(e.closed)
		close(e.ch)
	})
}

// Encoder frames stream events for a unidirectional text stream: one event
// per block, "data: <json>" followed by a blank line.
type Encoder struct {
	w     io.Writer
	flush func()
}

type flusher interface {
	Flush()
}

// NewEncoder creates an encoder on w. If w supports flushing (an
// http.ResponseWriter does), every frame is flushed through immediately.
func NewEncoder(w io.Writer) *Encoder {
	enc := &Encoder{w: w, flush: func() {}}
	if f, ok := w.(flusher); ok {
		enc.flush = f.Flush
	}
	return enc
}

// Encode writes one framed event. A marshal failure is a programmer error
// (event payloads are built from marshalable types); it is returned for the
// caller to log, never retried.
func (enc *Encoder) Encode(ev model.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return goerr.Wrap(err, "failed to encode stream event", goerr.V("type", ev.Type))
	}

	if _, err := fmt.Fprintf(enc.w, "data: %s\n\n", data); err != nil {
		return goerr.Wrap(err, "failed to write stream event")
	}
	enc.flush()
	return nil
}

// ParseLine decodes one line of a framed stream on the consumer side. Lines
// not starting with "data:" and bodies that fail to parse as JSON are
// skipped, per the framing contract.
func ParseLine(line string) (*model.StreamEvent, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return nil, false
	}

	body := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	var ev model.StreamEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return nil, false
	}
	return &ev, true
}
