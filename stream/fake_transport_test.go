package stream_test

import (
	"context"
	"sync"

	"github.com/goblincore/ige/stream"
)

// fakeTransport is a channel-backed stand-in for a real connection: tests
// push events into it and inspect the frames the client sent through it.
type fakeTransport struct {
	events  chan stream.Event
	dialErr error

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events: make(chan stream.Event, 64),
	}
}

func (f *fakeTransport) Dial(ctx context.Context, url string) error {
	return f.dialErr
}

func (f *fakeTransport) Send(ctx context.Context, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, append([]byte(nil), frame...))
	return nil
}

func (f *fakeTransport) Events() <-chan stream.Event {
	return f.events
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.events)
	}

	return nil
}

// Sent returns a snapshot of every frame sent so far.
func (f *fakeTransport) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) pushFrame(frame string) {
	f.events <- stream.Event{Kind: stream.EventMessage, Data: []byte(frame)}
}

func (f *fakeTransport) pushConnect() {
	f.events <- stream.Event{Kind: stream.EventConnect}
}

func (f *fakeTransport) pushDisconnect(reason string) {
	f.events <- stream.Event{Kind: stream.EventDisconnect, Reason: reason}
}

func (f *fakeTransport) pushError(reason string) {
	f.events <- stream.Event{Kind: stream.EventError, Reason: reason}
}

var _ stream.Transport = (*fakeTransport)(nil)
