package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/slok/fieldbot/internal/log"
	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/retry"
	"github.com/slok/fieldbot/internal/throttle"
)

// clientSendBuffer bounds the per-client outbound queue. A client that falls
// this far behind is dropped instead of stalling the run.
const clientSendBuffer = 64

// Engine is the automation surface the bridge drives. Implemented by
// automation.Orchestrator.
type Engine interface {
	Start(ctx context.Context, task model.Task) error
	Stop(ctx context.Context, taskID string) error
	Acknowledge() error
}

// ServerConfig is the configuration of the bridge server.
type ServerConfig struct {
	Engine Engine
	// Throttler receives the throttling settings carried by start commands.
	// Optional, nil ignores them.
	Throttler *throttle.Throttler
	// SetRetryPolicy receives the retry policy carried by start commands.
	// Optional, nil ignores it.
	SetRetryPolicy func(retry.Policy) error
	// RunContext is the context runs inherit. It must outlive any single
	// client connection. Defaults to context.Background().
	RunContext context.Context
	Logger     log.Logger
}

func (c *ServerConfig) defaults() error {
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if c.RunContext == nil {
		c.RunContext = context.Background()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "bridge.Server"})
	return nil
}

// Server accepts dashboard WebSocket connections, dispatches their commands
// to the engine and broadcasts run events to every connected client. It
// implements automation.Notifier, so it plugs into the orchestrator as the
// run event sink.
type Server struct {
	engine         Engine
	throttler      *throttle.Throttler
	setRetryPolicy func(retry.Policy) error
	runCtx         context.Context
	logger         log.Logger
	upgrader       websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewServer creates a new bridge server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Server{
		engine:         cfg.Engine,
		throttler:      cfg.Throttler,
		setRetryPolicy: cfg.SetRetryPolicy,
		runCtx:         cfg.RunContext,
		logger:         cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: map[string]*client{},
	}, nil
}

// Handler returns the HTTP handler that upgrades connections to WebSocket.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleWS)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("could not upgrade connection: %v", err)
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	s.logger.Infof("client %s connected", c.id)

	go s.writePump(c)
	s.readLoop(c)
}

// writePump drains the client's outbound queue. Closing the send channel
// terminates it.
func (s *Server) writePump(c *client) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.logger.Debugf("write to client %s failed: %v", c.id, err)
			return
		}
	}
}

func (s *Server) readLoop(c *client) {
	defer s.dropClient(c)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warningf("client %s read error: %v", c.id, err)
			}
			return
		}

		var env EnvelopeRaw
		if err := json.Unmarshal(message, &env); err != nil {
			s.logger.Warningf("client %s sent an invalid message: %v", c.id, err)
			continue
		}

		switch env.Type {
		case TypeStart:
			var start StartMessage
			if err := json.Unmarshal(env.Payload, &start); err != nil {
				s.logger.Warningf("invalid start payload: %v", err)
				continue
			}
			s.handleStart(start)

		case TypeStop:
			var stop StopMessage
			if err := json.Unmarshal(env.Payload, &stop); err != nil {
				s.logger.Warningf("invalid stop payload: %v", err)
				continue
			}
			if err := s.engine.Stop(s.runCtx, stop.TaskID); err != nil {
				s.logger.Warningf("stop rejected: %v", err)
				s.NotifyError(s.runCtx, stop.TaskID, err)
			}

		case TypeAck:
			var ack AckMessage
			if err := json.Unmarshal(env.Payload, &ack); err != nil {
				s.logger.Warningf("invalid ack payload: %v", err)
				continue
			}
			if err := s.engine.Acknowledge(); err != nil {
				s.logger.Warningf("ack rejected: %v", err)
			}

		default:
			s.logger.Warningf("client %s sent unknown message type %q", c.id, env.Type)
		}
	}
}

// handleStart maps the wire payload onto the domain, applies the per-run
// configuration and launches the run. The run inherits the server's context,
// never the connection's: the dashboard may disconnect mid-run.
func (s *Server) handleStart(msg StartMessage) {
	task, err := msg.taskToModel()
	if err != nil {
		s.logger.Warningf("start rejected: %v", err)
		s.NotifyError(s.runCtx, msg.Task.ID, err)
		return
	}

	if msg.RunConfig.Throttling != nil && s.throttler != nil {
		if err := s.throttler.SetConfig(msg.RunConfig.Throttling.toModel()); err != nil {
			s.logger.Warningf("start rejected: %v", err)
			s.NotifyError(s.runCtx, task.ID, err)
			return
		}
	}

	if msg.RunConfig.RetryPolicy != nil && s.setRetryPolicy != nil {
		if err := s.setRetryPolicy(msg.RunConfig.RetryPolicy.toModel()); err != nil {
			s.logger.Warningf("start rejected: %v", err)
			s.NotifyError(s.runCtx, task.ID, err)
			return
		}
	}

	// The engine broadcasts its own rejection through NotifyError, nothing
	// more to report here.
	if err := s.engine.Start(s.runCtx, task); err != nil {
		s.logger.Warningf("start of task %s rejected: %v", task.ID, err)
	}
}

func (s *Server) dropClient(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c.id]
	if ok {
		delete(s.clients, c.id)
		close(c.send)
	}
	s.mu.Unlock()

	c.conn.Close()
	if ok {
		s.logger.Infof("client %s disconnected", c.id)
	}
}

// Close disconnects every client.
func (s *Server) Close() error {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		s.dropClient(c)
	}

	return nil
}

// NotifyProgress broadcasts a run progress snapshot.
func (s *Server) NotifyProgress(ctx context.Context, progress model.RunProgress) {
	s.broadcast(TypeProgress, progressFromModel(progress))
}

// NotifyCompleted broadcasts the final counts of a finished run.
func (s *Server) NotifyCompleted(ctx context.Context, taskID string, counts model.RunCounts) {
	s.broadcast(TypeCompleted, CompletedMessage{
		TaskID: taskID,
		Summary: RunSummary{
			Total:   counts.Total,
			Success: counts.Success,
			Failed:  counts.Failed,
			Skipped: counts.Skipped,
		},
	})
}

// NotifyError broadcasts a run failure or command rejection.
func (s *Server) NotifyError(ctx context.Context, taskID string, err error) {
	s.broadcast(TypeError, ErrorMessage{TaskID: taskID, Error: err.Error()})
}

// broadcast fans a message out to every connected client. Clients with a full
// queue are dropped so a slow consumer never blocks the run.
func (s *Server) broadcast(msgType string, payload interface{}) {
	data, err := MarshalEnvelope(msgType, payload)
	if err != nil {
		s.logger.Errorf("could not marshal %s message: %v", msgType, err)
		return
	}

	s.mu.Lock()
	var slow []*client
	for _, c := range s.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	s.mu.Unlock()

	for _, c := range slow {
		s.logger.Warningf("dropping slow client %s", c.id)
		s.dropClient(c)
	}
}
