// Stream sinks - where emitted events go.
//
// Information Hiding:
// - Delivery mechanics (channel, console, log) hidden behind Sink
// - A slow or detached consumer never blocks the run
package stream

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Sink receives emitted events. Sinks are append-only and single-consumer
// per run; delivery is best-effort.
type Sink interface {
	Emit(event string, payload interface{}) error
}

// Well-known event names.
const (
	EventStep        = "reasoning.step"
	EventTurnSummary = "reasoning.turn_summary"
	EventAnswerDelta = "answer.delta"
)

// Envelope pairs an event name with its payload for channel consumers.
type Envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// ChannelSink delivers events into a buffered channel, dropping when the
// consumer falls behind rather than stalling the run.
type ChannelSink struct {
	ch chan Envelope
}

// NewChannelSink creates a channel sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{ch: make(chan Envelope, buffer)}
}

// Events returns the consumer side of the sink.
func (s *ChannelSink) Events() <-chan Envelope {
	return s.ch
}

// Close closes the event channel. Call only after the run finished.
func (s *ChannelSink) Close() {
	close(s.ch)
}

// Emit enqueues the event, dropping it if the buffer is full.
func (s *ChannelSink) Emit(event string, payload interface{}) error {
	select {
	case s.ch <- Envelope{Event: event, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("stream consumer behind, dropped %s", event)
	}
}

// ConsoleSink renders events as human-readable lines for interactive use.
type ConsoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleSink creates a console sink writing to out.
func NewConsoleSink(out io.Writer) *ConsoleSink {
	return &ConsoleSink{out: out}
}

// Emit writes one line per event. Answer deltas are written raw so the
// final answer renders as flowing text.
func (s *ConsoleSink) Emit(event string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event {
	case EventAnswerDelta:
		if d, ok := payload.(AnswerChunk); ok {
			fmt.Fprint(s.out, d.Text)
		}
	case EventTurnSummary:
		if ev, ok := payload.(Event); ok {
			fmt.Fprintf(s.out, "\n── %s\n", ev.Summary)
		}
	default:
		if ev, ok := payload.(Event); ok {
			fmt.Fprintf(s.out, "• %s\n", ev.Summary)
		}
	}
	return nil
}

// LogSink forwards events to a structured logger, for headless runs.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs every event.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Emit logs the event at debug level.
func (s *LogSink) Emit(event string, payload interface{}) error {
	s.logger.Debug("stream event", zap.String("event", event), zap.Any("payload", payload))
	return nil
}

// AnswerChunk is the payload of answer.delta events.
type AnswerChunk struct {
	Text string `json:"text"`
}

// AnswerRelay adapts a Sink to the answer-streaming interface the final
// synthesis tool expects.
type AnswerRelay struct {
	sink Sink
}

// NewAnswerRelay creates the relay.
func NewAnswerRelay(sink Sink) *AnswerRelay {
	return &AnswerRelay{sink: sink}
}

// AnswerDelta forwards one chunk of the final answer.
func (r *AnswerRelay) AnswerDelta(text string) {
	if r.sink == nil {
		return
	}
	_ = r.sink.Emit(EventAnswerDelta, AnswerChunk{Text: text})
}
