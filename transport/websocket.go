package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/goblincore/ige/stream"
)

const (
	// EventBufferSize is the depth of the event channel handed to the
	// consumer. Sized so a burst of frames never blocks the read loop.
	EventBufferSize = 255
)

var (
	ErrConnectionClosed = errors.New("websocket connection is closed")
	ErrNotDialed        = errors.New("websocket has not been dialed")
)

// Websocket carries frames over a single websocket connection and
// implements stream.Transport. Frames travel as text messages; connection
// lifecycle is surfaced as discrete events on Events().
type Websocket struct {
	options Options
	log     *zap.Logger
	limiter *rate.Limiter

	events chan stream.Event
	sendCh chan []byte

	// done is closed by Close and unblocks any Send waiting on a full
	// queue as well as the write pump.
	done chan struct{}

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	pumpWaiter sync.WaitGroup
}

func NewWebsocket(options Options) *Websocket {
	options = options.withDefaults()

	var limiter *rate.Limiter
	if options.RateLimit != nil && options.RateLimit.Enabled {
		limiter = rate.NewLimiter(options.RateLimit.MessagesPerSecond, options.RateLimit.Burst)
	}

	return &Websocket{
		options: options,
		log:     options.Log,
		limiter: limiter,
		events:  make(chan stream.Event, EventBufferSize),
		sendCh:  make(chan []byte, options.SendBuffer),
		done:    make(chan struct{}),
	}
}

// Dial opens the websocket connection and starts the read/write pumps. A
// connect event is the first event delivered on Events().
func (w *Websocket) Dial(ctx context.Context, url string) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: w.options.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	w.events <- stream.Event{Kind: stream.EventConnect}

	w.pumpWaiter.Add(2)

	go func() {
		defer w.pumpWaiter.Done()
		w.readPump()
	}()

	go func() {
		defer w.pumpWaiter.Done()
		w.writePump()
	}()

	return nil
}

// Send queues one frame for transmission, pacing through the rate limiter
// when one is configured.
func (w *Websocket) Send(ctx context.Context, frame []byte) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	w.mu.RLock()
	conn := w.conn
	closed := w.closed
	w.mu.RUnlock()

	if conn == nil {
		return ErrNotDialed
	}

	if closed {
		return ErrConnectionClosed
	}

	// Enqueue without holding the lock: if the write pump has died and
	// the queue is full, Close must still be able to unblock us.
	select {
	case w.sendCh <- frame:
		return nil

	case <-w.done:
		return ErrConnectionClosed

	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the connection's event stream. The channel is closed
// after the disconnect event has been delivered.
func (w *Websocket) Events() <-chan stream.Event {
	return w.events
}

// Close shuts the connection down and waits for the pumps to drain.
func (w *Websocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}

	w.closed = true
	conn := w.conn
	close(w.done)
	w.mu.Unlock()

	if conn == nil {
		return nil
	}

	var err error

	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	deadline := time.Now().Add(time.Second)
	if werr := conn.WriteControl(websocket.CloseMessage, message, deadline); werr != nil {
		err = multierr.Append(err, werr)
	}

	if cerr := conn.Close(); cerr != nil {
		err = multierr.Append(err, cerr)
	}

	w.pumpWaiter.Wait()
	return err
}

// readPump turns inbound messages into message events. It is the only
// writer of the events channel, which it closes after the final
// disconnect event.
func (w *Websocket) readPump() {
	log := w.log.Named("readPump")

	defer close(w.events)

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			reason := ""

			closeErr := new(websocket.CloseError)
			switch {
			case errors.As(err, &closeErr):
				// Server-initiated close. The close frame text is the
				// disconnect reason ("booted" arrives here).
				reason = closeErr.Text

			case w.isClosed():
				// Local Close tore the connection down, nothing to report.

			default:
				log.Warn("Read failed", zap.Error(err))
				w.events <- stream.Event{Kind: stream.EventError, Reason: err.Error()}
			}

			w.events <- stream.Event{Kind: stream.EventDisconnect, Reason: reason}
			return
		}

		w.events <- stream.Event{Kind: stream.EventMessage, Data: data}
	}
}

// writePump drains the send queue onto the connection and keeps it alive
// with periodic pings.
func (w *Websocket) writePump() {
	ticker := time.NewTicker(w.options.PingInterval)
	defer func() {
		ticker.Stop()
		w.conn.Close()
	}()

	for {
		select {
		case frame := <-w.sendCh:
			w.conn.SetWriteDeadline(time.Now().Add(w.options.WriteTimeout))
			if err := w.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-w.done:
			w.conn.SetWriteDeadline(time.Now().Add(w.options.WriteTimeout))
			w.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(w.options.WriteTimeout))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (w *Websocket) isClosed() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.closed
}

var _ stream.Transport = (*Websocket)(nil)
