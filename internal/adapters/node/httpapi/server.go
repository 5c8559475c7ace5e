package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports"
)

const (
	PathStatus = "/status"
	PathStart  = "/start"
	PathStop   = "/stop"
	PathEvents = "/events"
	PathLogs   = "/logs"

	CodeAlreadyRunning = "already_running"
	CodeNotRunning     = "not_running"
	CodeInternal       = "internal"

	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 20 * time.Second
	eventBuffer  = 64
)

// ErrorBody is the JSON body of every non-2xx answer.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

// StateBody answers start and stop requests.
type StateBody struct {
	State domain.NodeState `json:"state"`
}

// backlogSource is implemented by log sources that keep recent lines.
type backlogSource interface {
	Backlog() []domain.NodeLogEvent
}

// Server exposes a node supervisor over HTTP. Node lifecycle requests are
// not tied to the request context: a started node keeps running.
type Server struct {
	probe    ports.NodeProbe
	logs     ports.NodeLogSource
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	closed bool
	conns  map[*websocket.Conn]struct{}
	wg     sync.WaitGroup
}

func NewServer(probe ports.NodeProbe, logs ports.NodeLogSource, logger zerolog.Logger) *Server {
	return &Server{
		probe:  probe,
		logs:   logs,
		logger: logger.With().Str("component", "node-api").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin:      func(r *http.Request) bool { return true },
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
		},
		conns: map[*websocket.Conn]struct{}{},
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(PathStatus, s.handleStatus)
	r.Post(PathStart, s.handleStart)
	r.Post(PathStop, s.handleStop)
	if s.logs != nil {
		r.Get(PathEvents, s.handleEvents)
		r.Get(PathLogs, s.handleLogs)
	}
	return r
}

// Close drops every log stream and waits for their goroutines.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	s.wg.Wait()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.probe.Status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.probe.Start(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, StateBody{State: domain.NodeStarting})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.probe.Stop(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StateBody{State: domain.NodeStopped})
}

// handleLogs answers the backlog as a JSON array, oldest first.
func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	backlog := []domain.NodeLogEvent{}
	if source, ok := s.logs.(backlogSource); ok {
		backlog = append(backlog, source.Backlog()...)
	}
	writeJSON(w, http.StatusOK, backlog)
}

// handleEvents replays the backlog, then streams live log events as JSON
// text frames. Slow readers lose events rather than stall the node.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	events := make(chan domain.NodeLogEvent, eventBuffer)
	sub := s.logs.SubscribeLogs(func(ev domain.NodeLogEvent) {
		select {
		case events <- ev:
		default:
		}
	})

	var backlog []domain.NodeLogEvent
	if source, ok := s.logs.(backlogSource); ok {
		backlog = source.Backlog()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		sub.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
		<-done
		s.wg.Done()
	}()

	for _, ev := range backlog {
		if err := writeEvent(conn, ev); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev := <-events:
			if err := writeEvent(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev domain.NodeLogEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNodeAlreadyRunning):
		writeJSON(w, http.StatusConflict, ErrorBody{Code: CodeAlreadyRunning, Message: err.Error()})
	case errors.Is(err, domain.ErrNodeNotRunning):
		writeJSON(w, http.StatusConflict, ErrorBody{Code: CodeNotRunning, Message: err.Error()})
	default:
		s.logger.Warn().Err(err).Msg("node request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
