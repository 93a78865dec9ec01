package stream

import "context"

// EventKind discriminates the discrete events a Transport surfaces.
type EventKind int

const (
	// EventConnect fires once the underlying connection is established.
	EventConnect EventKind = iota

	// EventMessage carries one inbound frame in Data.
	EventMessage

	// EventDisconnect fires when the connection goes away, with the
	// transport's close reason in Reason.
	EventDisconnect

	// EventError carries a transport error in Reason. The transport does
	// not close or retry the connection on its own.
	EventError
)

// Event is one discrete occurrence on the underlying connection.
type Event struct {
	Kind   EventKind
	Data   []byte
	Reason string
}

// Transport is the underlying socket a Client multiplexes over. The
// transport owns connection lifecycle (dialing, TLS, reconnection policy);
// the Client only consumes its event stream and pushes frames through
// Send.
//
// Events must deliver events in the order they occurred and must be closed
// once no further events will be produced, normally right after the
// disconnect event.
type Transport interface {
	Dial(ctx context.Context, url string) error
	Send(ctx context.Context, frame []byte) error
	Events() <-chan Event
	Close() error
}
