package realtime

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"sl-ot-viewer/internal/company"
	"sl-ot-viewer/internal/protocol"
	"sl-ot-viewer/internal/session"
	"sl-ot-viewer/internal/watcher"

	"github.com/gorilla/websocket"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBufSize   = 1024
)

// processExitedNotice is appended to the terminal output when the shell exits.
const processExitedNotice = "\r\n[Process exited]\r\n"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // The UI is served from the same machine.
	},
}

// Terminal is the process bridge as the server uses it.
type Terminal interface {
	Start() (session.Status, error)
	Write(data []byte) error
	Current() (session.Info, bool)
}

// Options configures a Server.
type Options struct {
	RepoPath    string
	ExeDir      string
	StaticDir   string
	HistorySize int
	Logger      *slog.Logger
}

// Server connects the presentation layer to the terminal bridge, the company
// data loader and the repository watcher. It is the bridge's Sink: terminal
// output is kept in a short history and fanned out to every WebSocket client.
type Server struct {
	terminal  Terminal
	loader    *company.Loader
	fileWatch *watcher.Watcher
	exeDir    string
	staticDir string
	logger    *slog.Logger

	repoMu   sync.RWMutex
	repoPath string

	clients   map[*client]bool
	clientsMu sync.RWMutex

	// outputMu orders history writes against client registration so a
	// connecting client sees every chunk exactly once.
	outputMu       sync.Mutex
	history        *session.RingBuffer
	historySession string
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// New creates a new realtime server. SetTerminal must be called before the
// handler serves terminal requests.
func New(loader *company.Loader, fileWatch *watcher.Watcher, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		loader:    loader,
		fileWatch: fileWatch,
		exeDir:    opts.ExeDir,
		staticDir: opts.StaticDir,
		logger:    logger,
		repoPath:  opts.RepoPath,
		clients:   make(map[*client]bool),
		history:   session.NewRingBuffer(opts.HistorySize),
	}
}

// SetTerminal attaches the process bridge. The bridge itself is built with
// the server as its Sink, so it can only be attached after New.
func (s *Server) SetTerminal(t Terminal) {
	s.terminal = t
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint.
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API endpoints.
	mux.HandleFunc("GET /repo", s.handleGetRepo)
	mux.HandleFunc("GET /company", s.handleGetCompany)
	mux.HandleFunc("GET /local/{name}", s.handleGetLocal)
	mux.HandleFunc("POST /terminal", s.handleStartTerminal)
	mux.HandleFunc("GET /terminal", s.handleGetTerminal)
	mux.HandleFunc("POST /terminal/input", s.handleTerminalInput)

	// Static file serving.
	if s.staticDir != "" {
		if info, err := os.Stat(s.staticDir); err == nil && info.IsDir() {
			mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
		} else {
			s.logger.Warn("static dir not found, UI will not be served", "dir", s.staticDir)
		}
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Repo returns the repository currently shown.
func (s *Server) Repo() string {
	s.repoMu.RLock()
	defer s.repoMu.RUnlock()
	return s.repoPath
}

// Output implements session.Sink.
func (s *Server) Output(chunk session.Chunk) {
	msg, err := protocol.NewMessage(protocol.TypeTerminalOutput, protocol.TerminalOutputPayload{
		SessionID: chunk.SessionID,
		Stream:    string(chunk.Stream),
		Data:      chunk.Data,
	})
	if err != nil {
		return
	}

	s.outputMu.Lock()
	defer s.outputMu.Unlock()

	if chunk.SessionID != s.historySession {
		s.history.Reset()
		s.historySession = chunk.SessionID
	}
	s.history.Write(chunk)
	s.broadcast(msg)
}

// Ended implements session.Sink.
func (s *Server) Ended(exit session.Exit) {
	s.Output(session.Chunk{
		SessionID: exit.SessionID,
		Stream:    session.StreamStdout,
		Data:      processExitedNotice,
		Timestamp: time.Now().UTC(),
	})

	msg, err := protocol.NewMessage(protocol.TypeTerminalExited, protocol.TerminalExitedPayload{
		SessionID: exit.SessionID,
		ExitCode:  exit.Code,
	})
	if err != nil {
		return
	}
	s.broadcast(msg)
}

// OnDataChanged is the repository watcher callback.
func (s *Server) OnDataChanged(repo string, paths []string) {
	msg, err := protocol.NewMessage(protocol.TypeDataChanged, protocol.DataChangedPayload{
		Repo:  repo,
		Paths: paths,
	})
	if err != nil {
		return
	}
	s.broadcast(msg)
}

// handleWebSocket upgrades an HTTP connection to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", "error", err)
		return
	}

	// Replay recent output and register under outputMu so no chunk is
	// missed or delivered twice.
	s.outputMu.Lock()
	history := s.history.ReadAll()
	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBufSize+len(history)+1),
		server: s,
	}
	if info, ok := s.currentTerminal(); ok {
		c.enqueue(statusMessage(session.Status{Message: string(info.State), Session: info}))
	}
	for _, chunk := range history {
		msg, err := protocol.NewMessage(protocol.TypeTerminalOutput, protocol.TerminalOutputPayload{
			SessionID: chunk.SessionID,
			Stream:    string(chunk.Stream),
			Data:      chunk.Data,
		})
		if err == nil {
			c.enqueue(msg)
		}
	}
	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()
	s.outputMu.Unlock()

	go c.writePump()
	go c.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		c.server.handleMessage(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeClient cleans up a disconnected client.
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	if s.clients[c] {
		delete(s.clients, c)
		close(c.send)
	}
}

// handleMessage processes a validated client message.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeTerminalSpawn:
		s.handleWSSpawn(c)
	case protocol.TypeTerminalWrite:
		s.handleWSWrite(c, msg)
	case protocol.TypeDataRequest:
		s.handleWSDataRequest(c, msg)
	case protocol.TypeLocalRequest:
		s.handleWSLocalRequest(c, msg)
	}
}

func (s *Server) handleWSSpawn(c *client) {
	status, err := s.startTerminal()
	if err != nil {
		s.sendError(c, protocol.ErrSpawnFailed, err.Error())
		return
	}

	if status.AlreadyRunning {
		s.sendMessage(c, statusMessage(status))
		return
	}
	s.broadcast(statusMessage(status))
}

func (s *Server) handleWSWrite(c *client, msg *protocol.Message) {
	var payload protocol.TerminalWritePayload
	json.Unmarshal(msg.Payload, &payload)

	if err := s.writeTerminal([]byte(payload.Data)); err != nil {
		s.sendError(c, writeErrorCode(err), err.Error())
	}
}

func (s *Server) handleWSDataRequest(c *client, msg *protocol.Message) {
	var payload protocol.DataRequestPayload
	json.Unmarshal(msg.Payload, &payload)

	repo, data, err := s.loadCompany(payload.Repo)
	if err != nil {
		s.sendError(c, protocol.ErrDataLoadFailed, err.Error())
		return
	}

	resp, err := protocol.NewMessage(protocol.TypeDataCompany, protocol.DataCompanyPayload{
		Repo: repo,
		Data: data,
	})
	if err != nil {
		s.sendError(c, protocol.ErrDataLoadFailed, err.Error())
		return
	}
	s.sendMessage(c, resp)
}

func (s *Server) handleWSLocalRequest(c *client, msg *protocol.Message) {
	var payload protocol.LocalRequestPayload
	json.Unmarshal(msg.Payload, &payload)

	content, err := company.ReadLocalJSON(s.exeDir, payload.Name)
	if err != nil {
		code := protocol.ErrDataLoadFailed
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, company.ErrInvalidName) {
			code = protocol.ErrNotFound
		}
		s.sendError(c, code, err.Error())
		return
	}

	resp, err := protocol.NewMessage(protocol.TypeLocalJSON, protocol.LocalJSONPayload{
		Name:    payload.Name,
		Content: content,
	})
	if err != nil {
		return
	}
	s.sendMessage(c, resp)
}

// startTerminal starts the shell through the attached bridge.
func (s *Server) startTerminal() (session.Status, error) {
	if s.terminal == nil {
		return session.Status{}, errors.New("terminal not available")
	}
	return s.terminal.Start()
}

func (s *Server) writeTerminal(data []byte) error {
	if s.terminal == nil {
		return session.ErrNoActiveSession
	}
	return s.terminal.Write(data)
}

func (s *Server) currentTerminal() (session.Info, bool) {
	if s.terminal == nil {
		return session.Info{}, false
	}
	return s.terminal.Current()
}

// loadCompany loads repo, or the current repository when repo is empty. A
// successful load of a different repository makes it the current one and
// moves the watcher there.
func (s *Server) loadCompany(repo string) (string, json.RawMessage, error) {
	if repo == "" {
		repo = s.Repo()
	}
	if repo == "" {
		return "", nil, errNoRepo
	}

	data, err := s.loader.Load(repo)
	if err != nil {
		return repo, nil, err
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return repo, nil, err
	}

	s.repoMu.Lock()
	changed := s.repoPath != repo
	s.repoPath = repo
	s.repoMu.Unlock()

	if s.fileWatch != nil {
		if watched, ok := s.fileWatch.Watching(); changed || !ok || watched != repo {
			if err := s.fileWatch.Watch(repo); err != nil {
				s.logger.Warn("failed to watch repository", "repo", repo, "error", err)
			}
		}
	}

	return repo, encoded, nil
}

var errNoRepo = errors.New("no repository selected")

func writeErrorCode(err error) string {
	if errors.Is(err, session.ErrNoActiveSession) {
		return protocol.ErrNoActiveSession
	}
	return protocol.ErrWriteFailed
}

func statusMessage(status session.Status) *protocol.Message {
	msg, _ := protocol.NewMessage(protocol.TypeTerminalStatus, protocol.TerminalStatusPayload{
		Message:        status.Message,
		AlreadyRunning: status.AlreadyRunning,
		SessionID:      status.Session.ID,
		Program:        status.Session.Program,
		PID:            status.Session.PID,
		State:          string(status.Session.State),
	})
	return msg
}

// broadcast sends a message to all connected clients. A client whose
// buffer is full is disconnected rather than handed a gap in the terminal
// output; it gets the history replay when it reconnects.
func (s *Server) broadcast(msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	var slow []*client
	s.clientsMu.RLock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	s.clientsMu.RUnlock()

	for _, c := range slow {
		s.logger.Warn("client too slow, disconnecting", "type", msg.Type)
		s.removeClient(c)
	}
}

func (s *Server) sendMessage(c *client, msg *protocol.Message) {
	if msg == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	// c.send is closed once the client is removed.
	if !s.clients[c] {
		s.clientsMu.RUnlock()
		return
	}
	var full bool
	select {
	case c.send <- data:
	default:
		full = true
	}
	s.clientsMu.RUnlock()

	if full {
		s.logger.Warn("client too slow, disconnecting", "type", msg.Type)
		s.removeClient(c)
	}
}

// enqueue queues msg for a client that is not registered yet.
func (c *client) enqueue(msg *protocol.Message) {
	if msg == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (s *Server) sendError(c *client, code, message string) {
	msg, _ := protocol.NewErrorMessage(code, message)
	s.sendMessage(c, msg)
}
