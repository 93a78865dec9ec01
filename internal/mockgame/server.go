package mockgame

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	reuseport "github.com/kavu/go_reuseport"
	"github.com/tidwall/sjson"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/goblincore/ige/protocol"
)

// DefaultCommands is the command table the mock server declares during the
// handshake, reserved RPC commands included.
func DefaultCommands() map[string]int {
	return map[string]int{
		"move":                   1,
		"chat":                   2,
		"worldUpdate":            3,
		protocol.RequestCommand:  4,
		protocol.ResponseCommand: 5,
	}
}

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on. Zero picks a free port; see Addr().
	Port int

	// TickInterval is the period of the world-state tick broadcast.
	// Zero disables ticking.
	TickInterval time.Duration

	// Commands overrides the declared command table. Defaults to
	// DefaultCommands().
	Commands map[string]int

	Log *zap.Logger
}

// Server is a small stand-in for a real game server: it declares a command
// table on connect, echoes request envelopes back as responses, rebroadcasts
// chat frames, and pushes world-state changes as worldUpdate frames. It
// exists so the client stack can be exercised end to end without a real
// backend.
type Server struct {
	options  Options
	log      *zap.Logger
	state    *State
	commands map[string]int
	byIndex  map[int]string

	refusing int32

	mu    sync.Mutex
	conns map[*serverConn]struct{}

	cancel     context.CancelFunc
	listener   net.Listener
	httpServer *http.Server
}

func NewServer(options Options) *Server {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	commands := options.Commands
	if commands == nil {
		commands = DefaultCommands()
	}

	byIndex := make(map[int]string, len(commands))
	for name, index := range commands {
		byIndex[index] = name
	}

	return &Server{
		options:  options,
		log:      log,
		state:    NewState(),
		commands: commands,
		byIndex:  byIndex,
		conns:    make(map[*serverConn]struct{}),
	}
}

func (s *Server) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	s.cancel = cancel

	addr := net.JoinHostPort(s.options.Host, strconv.Itoa(s.options.Port))

	listener, err := reuseport.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	s.httpServer = &http.Server{Handler: mux}

	go func() {
		if serr := s.httpServer.Serve(listener); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			s.log.Error("Mock server stopped serving", zap.Error(serr))
		}
	}()

	go s.broadcastLoop()

	if s.options.TickInterval > 0 {
		go s.tickLoop(ctx)
	}

	s.log.Info("Mock game server listening", zap.String("addr", s.Addr()))
	return nil
}

// Addr returns the bound listen address, useful when Port was zero.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// State exposes the world state so callers can drive update broadcasts.
func (s *Server) State() *State {
	return s.state
}

// Refuse toggles booted mode: new connections are closed immediately with
// the close reason "booted" instead of being handshaken.
func (s *Server) Refuse(refuse bool) {
	var v int32
	if refuse {
		v = 1
	}

	atomic.StoreInt32(&s.refusing, v)
}

func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}

	err := s.state.Close()

	if s.httpServer != nil {
		err = multierr.Append(err, s.httpServer.Close())
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.ws.Close()
		delete(s.conns, conn)
	}
	s.mu.Unlock()

	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	if atomic.LoadInt32(&s.refusing) == 1 {
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "booted")
		ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))

		// Wait for the close echo so the reason reaches the peer before
		// the socket is torn down.
		ws.SetReadDeadline(time.Now().Add(time.Second))
		ws.ReadMessage()

		ws.Close()
		return
	}

	conn := &serverConn{
		ws:  ws,
		log: s.log.Named("conn").With(zap.String("remote", ws.RemoteAddr().String())),
	}

	frame, err := initFrame(s.commands)
	if err != nil {
		conn.log.Error("Failed to build init frame", zap.Error(err))
		ws.Close()
		return
	}

	if err := conn.write(frame); err != nil {
		ws.Close()
		return
	}

	s.addConn(conn)
	defer func() {
		s.removeConn(conn)
		ws.Close()
	}()

	s.readLoop(conn)
}

func (s *Server) readLoop(conn *serverConn) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			conn.log.Debug("Dropping undecodable frame", zap.Error(err))
			continue
		}

		name, ok := s.byIndex[msg.Index]
		if !ok {
			conn.log.Debug("Dropping frame with unknown index", zap.Int("index", msg.Index))
			continue
		}

		switch name {
		case protocol.RequestCommand:
			s.answerRequest(conn, msg.Payload)

		case "chat":
			s.broadcastCommand("chat", msg.Payload)

		default:
			conn.log.Debug("Unhandled command", zap.String("command", name))
		}
	}
}

// answerRequest echoes the request body straight back as the response,
// preserving the id and command name.
func (s *Server) answerRequest(conn *serverConn, payload []byte) {
	env, err := protocol.ParseEnvelope(payload)
	if err != nil {
		conn.log.Debug("Dropping malformed request envelope", zap.Error(err))
		return
	}

	reply, err := protocol.EncodeEnvelope(&protocol.Envelope{
		ID:   env.ID,
		Cmd:  env.Cmd,
		Data: env.Data,
	})
	if err != nil {
		conn.log.Error("Failed to encode response envelope", zap.Error(err))
		return
	}

	frame, err := protocol.EncodeMessage(s.commands[protocol.ResponseCommand], reply)
	if err != nil {
		conn.log.Error("Failed to encode response frame", zap.Error(err))
		return
	}

	if err := conn.write(frame); err != nil {
		conn.log.Warn("Failed to answer request", zap.String("id", env.ID), zap.Error(err))
	}
}

func (s *Server) broadcastLoop() {
	for update := range s.state.ListenToUpdates() {
		payload, err := sjson.SetBytes([]byte(`{}`), "key", update.Key)
		if err != nil {
			continue
		}

		payload, err = sjson.SetRawBytes(payload, "value", update.Value)
		if err != nil {
			continue
		}

		s.broadcastCommand("worldUpdate", payload)
	}
}

func (s *Server) broadcastCommand(name string, payload []byte) {
	index, ok := s.commands[name]
	if !ok {
		return
	}

	frame, err := protocol.EncodeMessage(index, payload)
	if err != nil {
		s.log.Error("Failed to encode broadcast frame", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.conns {
		if err := conn.write(frame); err != nil {
			s.log.Debug("Dropping dead connection from broadcast", zap.Error(err))
		}
	}
}

func (s *Server) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.options.TickInterval)
	defer ticker.Stop()

	var tick uint64

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			tick++
			if err := s.state.Set(ctx, "tick", tick); err != nil {
				s.log.Warn("Failed to advance tick", zap.Error(err))
			}
		}
	}
}

func (s *Server) addConn(conn *serverConn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conns[conn] = struct{}{}
}

func (s *Server) removeConn(conn *serverConn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, conn)
}

type serverConn struct {
	ws  *websocket.Conn
	log *zap.Logger

	writeMu sync.Mutex
}

func (c *serverConn) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func initFrame(commands map[string]int) ([]byte, error) {
	out, err := sjson.SetBytes([]byte(`{}`), "cmd", protocol.InitCommand)
	if err != nil {
		return nil, err
	}

	for name, index := range commands {
		out, err = sjson.SetBytes(out, "ncmds."+name, index)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}
