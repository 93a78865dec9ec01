package stream

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goblincore/ige/protocol"
)

// ReasonBooted is the disconnect reason a server sends when it refused the
// connection because it is not accepting clients right now.
const ReasonBooted = "booted"

// DefaultRequestTimeout bounds how long a request waits for its response
// before the continuation fires with ErrRequestTimeout.
const DefaultRequestTimeout = 30 * time.Second

// ConnFunc observes connection establishment.
type ConnFunc func()

// ReasonFunc observes disconnects and transport errors.
type ReasonFunc func(reason string)

// RequestFunc observes requests originated by the remote side. The local
// side replies by calling Respond with the same id.
type RequestFunc func(id, cmd string, data []byte)

type Options struct {
	// Transport carries the frames. The Client never dials on its own; a
	// nil Transport makes Start a no-op.
	Transport Transport

	// RequestTimeout bounds every outgoing request. Zero means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	Log *zap.Logger
}

// Client multiplexes named commands over a single persistent connection.
//
// It performs the one-time init handshake that negotiates the command
// table, routes inbound frames to bound handlers and named subscribers,
// and layers request/response correlation over the reserved _igeRequest
// and _igeResponse commands. Each Client owns its own command table,
// handler table and pending-request state; nothing is shared between
// instances.
//
// All inbound frames are processed sequentially on a single event loop.
// The public API is safe to call from any goroutine.
type Client struct {
	transport Transport
	log       *zap.Logger

	dispatch *dispatcher
	tracker  *tracker
	ids      *IDGenerator

	mu       sync.RWMutex
	ctx      context.Context
	registry *registry
	ready    bool
	onReady  func()

	subMu          sync.RWMutex
	onConnected    []ConnFunc
	onDisconnected []ReasonFunc
	onError        []ReasonFunc
	onRequest      []RequestFunc

	loopWaiter sync.WaitGroup
}

func New(options Options) *Client {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	timeout := options.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &Client{
		transport: options.Transport,
		log:       log,
		ctx:       context.Background(),
		dispatch:  newDispatcher(),
		tracker:   newTracker(timeout),
		ids:       NewIDGenerator(),
	}
}

// Start dials url through the injected transport and begins consuming its
// events. onReady is invoked exactly once, after the handshake has
// populated the command table; it is discarded afterwards.
//
// With no transport configured Start does nothing: collaborators detect
// this by the connected event never firing.
func (c *Client) Start(ctx context.Context, url string, onReady func()) error {
	if c.transport == nil {
		c.log.Error("No transport available, refusing to start")
		return nil
	}

	c.mu.Lock()
	c.ctx = ctx
	c.onReady = onReady
	c.mu.Unlock()

	if err := c.transport.Dial(ctx, url); err != nil {
		return err
	}

	c.loopWaiter.Add(1)
	go func() {
		defer c.loopWaiter.Done()
		c.eventLoop()
	}()

	return nil
}

// Close drops all pending request state and closes the transport. Pending
// requests do not survive; their continuations are never invoked.
func (c *Client) Close() error {
	c.tracker.stop()

	if c.transport == nil {
		return nil
	}

	err := c.transport.Close()
	c.loopWaiter.Wait()
	return err
}

// Define binds handler to the named command. The command must have been
// declared by the server during the handshake; an unknown name or a
// missing argument is logged and the binding is not made. Returns the
// client for chaining.
func (c *Client) Define(name string, handler Handler) *Client {
	if name == "" || handler == nil {
		c.log.Error("Define requires both a command name and a handler")
		return c
	}

	if reg := c.commandTable(); reg == nil || !reg.has(name) {
		c.log.Error("Cannot define a handler for an undeclared command",
			zap.String("command", name))
		return c
	}

	c.dispatch.bind(name, handler)
	return c
}

// On subscribes handler to every frame of the named command, independently
// of any bound handler. Any number of subscribers may observe a command.
func (c *Client) On(name string, handler Handler) *Client {
	if name == "" || handler == nil {
		c.log.Error("On requires both a command name and a handler")
		return c
	}

	c.dispatch.subscribe(name, handler)
	return c
}

// OnConnected subscribes fn to connection establishment.
func (c *Client) OnConnected(fn ConnFunc) *Client {
	c.subMu.Lock()
	c.onConnected = append(c.onConnected, fn)
	c.subMu.Unlock()
	return c
}

// OnDisconnected subscribes fn to disconnects; it receives the close
// reason reported by the transport.
func (c *Client) OnDisconnected(fn ReasonFunc) *Client {
	c.subMu.Lock()
	c.onDisconnected = append(c.onDisconnected, fn)
	c.subMu.Unlock()
	return c
}

// OnError subscribes fn to transport errors. The connection is not closed
// or retried by this layer.
func (c *Client) OnError(fn ReasonFunc) *Client {
	c.subMu.Lock()
	c.onError = append(c.onError, fn)
	c.subMu.Unlock()
	return c
}

// OnRequest subscribes fn to requests originated by the remote side.
func (c *Client) OnRequest(fn RequestFunc) *Client {
	c.subMu.Lock()
	c.onRequest = append(c.onRequest, fn)
	c.subMu.Unlock()
	return c
}

// Send transmits data under the named command as `[index, data]`. Sending
// a command the server never declared is logged and dropped; nothing is
// transmitted.
func (c *Client) Send(name string, data []byte) {
	c.sendCommand(name, data)
}

// Request sends data under name with request/response semantics: a fresh
// id is allocated, the pending request is tracked, and respond fires when
// the matching response arrives, or with ErrRequestTimeout once the
// request deadline expires.
func (c *Client) Request(name string, data []byte, respond ResponseFunc) {
	id := c.ids.Next()

	payload, err := protocol.EncodeEnvelope(&protocol.Envelope{
		ID:   id,
		Cmd:  name,
		Data: data,
	})
	if err != nil {
		c.log.Error("Failed to encode request envelope",
			zap.String("command", name), zap.Error(err))
		return
	}

	// Track before sending so an immediate response cannot race the
	// pending entry.
	c.tracker.trackOutgoing(id, name, respond)

	if !c.sendCommand(protocol.RequestCommand, payload) {
		c.tracker.takeOutgoing(id)
	}
}

// Respond answers a request previously received from the remote side. The
// reply travels under the command name the original request was issued
// with. An id that was never received, or was already answered, is
// silently ignored.
func (c *Client) Respond(id string, data []byte) {
	pending := c.tracker.takeIncoming(id)
	if pending == nil {
		return
	}

	payload, err := protocol.EncodeEnvelope(&protocol.Envelope{
		ID:   id,
		Cmd:  pending.cmd,
		Data: data,
	})
	if err != nil {
		c.log.Error("Failed to encode response envelope",
			zap.String("id", id), zap.Error(err))
		return
	}

	c.sendCommand(protocol.ResponseCommand, payload)
}

// Ready reports whether the handshake has completed.
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Commands returns the names declared during the handshake, sorted. Empty
// before the handshake completes.
func (c *Client) Commands() []string {
	reg := c.commandTable()
	if reg == nil {
		return nil
	}

	return reg.names()
}

// PendingRequests returns the number of in-flight request entries, both
// originated and received.
func (c *Client) PendingRequests() int {
	return c.tracker.pendingCount()
}

func (c *Client) eventLoop() {
	log := c.log.Named("eventLoop")

	for event := range c.transport.Events() {
		switch event.Kind {
		case EventConnect:
			c.handleConnect()

		case EventMessage:
			c.handleMessage(event.Data)

		case EventDisconnect:
			c.handleDisconnect(event.Reason)

		case EventError:
			c.handleError(event.Reason)
		}
	}

	log.Debug("Transport event stream closed, exiting")
}

func (c *Client) handleConnect() {
	c.log.Info("Connected")

	c.subMu.RLock()
	subscribers := c.onConnected
	c.subMu.RUnlock()

	for _, fn := range subscribers {
		fn()
	}
}

func (c *Client) handleMessage(data []byte) {
	if !c.Ready() && protocol.IsInit(data) {
		c.completeHandshake(data)
	}

	// Every frame goes through normal dispatch, handshake or not. The
	// init frame is not a [index, payload] pair so it falls out here.
	c.dispatchFrame(data)
}

func (c *Client) completeHandshake(data []byte) {
	init, err := protocol.ParseInit(data)
	if err != nil {
		c.log.Warn("Dropping malformed init frame", zap.Error(err))
		return
	}

	c.mu.Lock()
	if c.ready {
		c.mu.Unlock()
		return
	}

	c.registry = newRegistry(init.Commands)
	c.ready = true
	onReady := c.onReady
	c.onReady = nil
	c.mu.Unlock()

	c.bindReserved(protocol.RequestCommand, c.handleRequestFrame)
	c.bindReserved(protocol.ResponseCommand, c.handleResponseFrame)

	c.log.Info("Handshake complete", zap.Int("commands", len(init.Commands)))

	if onReady != nil {
		onReady()
	}
}

// bindReserved wires an internal handler for one of the reserved RPC
// commands. A server that never declared them leaves the table without an
// index for them, which disables request/response for the session.
func (c *Client) bindReserved(name string, handler Handler) {
	if reg := c.commandTable(); reg == nil || !reg.has(name) {
		c.log.Warn("Server did not declare a reserved command, request/response is unavailable",
			zap.String("command", name))
		return
	}

	c.dispatch.bind(name, handler)
}

func (c *Client) dispatchFrame(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		c.log.Debug("Dropping undecodable frame", zap.Error(err))
		return
	}

	reg := c.commandTable()
	if reg == nil {
		c.log.Debug("Dropping frame received before the handshake",
			zap.Int("index", msg.Index))
		return
	}

	name, ok := reg.name(msg.Index)
	if !ok {
		// The table is authoritative only over commands declared at
		// handshake time. Anything else is unrouteable.
		c.log.Debug("Dropping frame with unknown command index",
			zap.Int("index", msg.Index))
		return
	}

	c.dispatch.dispatch(name, msg.Payload)
}

func (c *Client) handleRequestFrame(payload []byte) {
	env, err := protocol.ParseEnvelope(payload)
	if err != nil {
		c.log.Warn("Dropping malformed request envelope", zap.Error(err))
		return
	}

	// Unlike responses, a request must name its command: the eventual
	// reply travels under it.
	if env.Cmd == "" {
		c.log.Warn("Dropping request envelope without a command name",
			zap.String("id", env.ID))
		return
	}

	c.tracker.trackIncoming(env.ID, env.Cmd)

	c.subMu.RLock()
	subscribers := c.onRequest
	c.subMu.RUnlock()

	for _, fn := range subscribers {
		fn(env.ID, env.Cmd, env.Data)
	}
}

func (c *Client) handleResponseFrame(payload []byte) {
	env, err := protocol.ParseEnvelope(payload)
	if err != nil {
		c.log.Warn("Dropping malformed response envelope", zap.Error(err))
		return
	}

	pending := c.tracker.takeOutgoing(env.ID)
	if pending == nil {
		// Late, duplicate, or already expired. Not an error.
		c.log.Debug("Dropping response with unknown id", zap.String("id", env.ID))
		return
	}

	if pending.respond != nil {
		pending.respond(env.Data, nil)
	}
}

func (c *Client) handleDisconnect(reason string) {
	if reason == ReasonBooted {
		c.log.Warn("Server refused the connection, it is not accepting clients right now")
	} else {
		c.log.Info("Disconnected", zap.String("reason", reason))
	}

	c.subMu.RLock()
	subscribers := c.onDisconnected
	c.subMu.RUnlock()

	for _, fn := range subscribers {
		fn(reason)
	}
}

func (c *Client) handleError(reason string) {
	c.log.Error("Transport error", zap.String("reason", reason))

	c.subMu.RLock()
	subscribers := c.onError
	c.subMu.RUnlock()

	for _, fn := range subscribers {
		fn(reason)
	}
}

func (c *Client) commandTable() *registry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry
}

func (c *Client) sendCommand(name string, payload []byte) bool {
	reg := c.commandTable()
	if reg == nil {
		c.log.Error("Cannot send before the handshake has completed",
			zap.String("command", name))
		return false
	}

	index, ok := reg.index(name)
	if !ok {
		c.log.Error("Cannot send an undeclared command",
			zap.String("command", name))
		return false
	}

	frame, err := protocol.EncodeMessage(index, payload)
	if err != nil {
		c.log.Error("Failed to encode frame",
			zap.String("command", name), zap.Error(err))
		return false
	}

	c.mu.RLock()
	ctx := c.ctx
	c.mu.RUnlock()

	if err := c.transport.Send(ctx, frame); err != nil {
		c.log.Error("Failed to send frame",
			zap.String("command", name), zap.Error(err))
		return false
	}

	return true
}
