// Package dashboard serves a small HTTP API over the manager: JSON session
// listings and prompting, plus a websocket stream of lifecycle events for
// live UIs.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentherd/agentherd/internal/errs"
	"github.com/agentherd/agentherd/internal/event"
	"github.com/agentherd/agentherd/internal/logging"
	"github.com/agentherd/agentherd/internal/manager"
	"github.com/agentherd/agentherd/internal/session"
)

// Server exposes the manager over HTTP.
type Server struct {
	manager  *manager.Manager
	logger   *logging.Logger
	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	subID   string
}

// New creates a dashboard server bound to addr.
func New(addr string, mgr *manager.Manager, logger *logging.Logger) *Server {
	s := &Server{
		manager: mgr,
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleStartSession)
	mux.HandleFunc("GET /api/sessions/{name}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{name}", s.handleStopSession)
	mux.HandleFunc("POST /api/sessions/{name}/prompt", s.handlePrompt)
	mux.HandleFunc("GET /api/sessions/{name}/attach", s.handleAttach)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Run serves until ctx is cancelled, forwarding manager events to connected
// websocket clients.
func (s *Server) Run(ctx context.Context) error {
	s.subID = s.manager.Bus().SubscribeAll(s.broadcast)
	defer s.manager.Bus().Unsubscribe(s.subID)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", s.httpSrv.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		s.closeClients()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return errs.Wrap(err, "dashboard server failed")
	}
}

// sessionPayload is the wire form of one session.
type sessionPayload struct {
	session.Info
	Metrics session.Metrics `json:"metrics"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.manager.ListSessions()
	payload := make([]sessionPayload, 0, len(infos))
	for _, info := range infos {
		p := sessionPayload{Info: info}
		if sess, err := s.manager.GetSession(info.Name); err == nil {
			p.Metrics = sess.Metrics()
		}
		payload = append(payload, p)
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	sess, err := s.manager.GetSession(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload{Info: sess.Info(), Metrics: sess.Metrics()})
}

// startRequest is the body of POST /api/sessions.
type startRequest struct {
	Name           string                `json:"name"`
	WorkDir        string                `json:"work_dir"`
	PermissionMode string                `json:"permission_mode,omitempty"`
	SystemPrompt   string                `json:"system_prompt,omitempty"`
	Tags           []string              `json:"tags,omitempty"`
	Restart        session.RestartPolicy `json:"restart"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	sess, err := s.manager.StartSession(r.Context(), session.Config{
		Name:           req.Name,
		WorkDir:        req.WorkDir,
		PermissionMode: req.PermissionMode,
		SystemPrompt:   req.SystemPrompt,
		Tags:           req.Tags,
		Restart:        req.Restart,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload{Info: sess.Info(), Metrics: sess.Metrics()})
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.manager.StopSession(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

// handleAttach streams the session's raw output over a websocket and feeds
// received messages to the process input. This is how another invocation
// attaches: the process streams never leave the owning manager, so remote
// terminals go through here.
func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	sess, err := s.manager.GetSession(name)
	if err != nil {
		writeError(w, err)
		return
	}
	handle := sess.Handle()
	if handle == nil {
		writeError(w, errs.Wrapf(errs.ErrNoProcessHandle, "cannot attach to session '%s'", name))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	// Replay scrollback, then follow live output.
	if back := sess.Scrollback(); len(back) > 0 {
		_ = conn.WriteMessage(websocket.BinaryMessage, back)
	}

	var writeMu sync.Mutex
	subID := sess.Bus().Subscribe(event.TypeSessionData, func(e event.Event) {
		data := e.(event.SessionDataEvent)
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteMessage(websocket.BinaryMessage, data.Chunk); err != nil {
			conn.Close()
		}
	})
	exitID := sess.Bus().Subscribe(event.TypeProcessExited, func(e event.Event) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "process exited"))
		conn.Close()
	})

	s.logger.Info("remote attach", "session", name, "remote", conn.RemoteAddr().String())
	input := handle.Input()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if input != nil {
			if _, err := input.Write(data); err != nil {
				break
			}
		}
	}

	sess.Bus().Unsubscribe(subID)
	sess.Bus().Unsubscribe(exitID)
	conn.Close()
	s.logger.Debug("remote attach closed", "session", name)
}

// promptRequest is the body of POST /api/sessions/{name}/prompt.
type promptRequest struct {
	Prompt string `json:"prompt"`
}

// promptResponse is its reply.
type promptResponse struct {
	Response string `json:"response"`
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sess, err := s.manager.GetSession(name)
	if err != nil {
		writeError(w, err)
		return
	}
	response, err := sess.SendPrompt(r.Context(), req.Prompt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, promptResponse{Response: response})
}

// eventPayload is the wire form of one bus event.
type eventPayload struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Session   string    `json:"session,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Retries   *uint     `json:"retries,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("websocket client connected", "remote", conn.RemoteAddr().String())

	// Reader kept only to observe close; the stream is server→client.
	go func() {
		defer s.dropClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// broadcast forwards one manager bus event to every websocket client.
func (s *Server) broadcast(e event.Event) {
	payload := eventPayload{Type: e.EventType(), Timestamp: e.Timestamp()}
	switch ev := e.(type) {
	case event.SessionStartedEvent:
		payload.Session = ev.SessionName
	case event.SessionStoppedEvent:
		payload.Session = ev.SessionName
		payload.ExitCode = &ev.ExitCode
	case event.SessionCrashedEvent:
		payload.Session = ev.SessionName
		payload.ExitCode = &ev.ExitCode
		payload.Retries = &ev.Retries
	}

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(payload); err != nil {
			s.dropClient(conn)
		}
	}
}

func (s *Server) dropClient(conn *websocket.Conn) {
	s.mu.Lock()
	_, present := s.clients[conn]
	delete(s.clients, conn)
	s.mu.Unlock()
	if present {
		conn.Close()
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errs.Is(err, errs.ErrSessionNotFound):
		status = http.StatusNotFound
	case errs.Is(err, errs.ErrSessionExists):
		status = http.StatusConflict
	case errs.Is(err, errs.ErrPromptBusy):
		status = http.StatusConflict
	case errs.Is(err, errs.ErrPromptTimeout):
		status = http.StatusGatewayTimeout
	case errs.Is(err, errs.ErrSessionNotRunning):
		status = http.StatusConflict
	case errs.Is(err, errs.ErrNoProcessHandle):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
