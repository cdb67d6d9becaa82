// Package wsbridge connects to the browser extension's content script over a
// websocket and exposes it as a pagehost.Host.
package wsbridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/pagehost"
)

var (
	// ErrNoActiveSession is returned when no extension is connected.
	ErrNoActiveSession = errors.New("no active browser session")
	// ErrSessionClosed is returned for commands whose session disconnected
	// before answering.
	ErrSessionClosed = errors.New("browser session closed")
)

// Actions understood by the content script.
const (
	ActionExtractPage = "extractPageData"
	ActionExecute     = "executePageAction"
	ActionStatus      = "getPageStatus"
)

// Command is sent to the content script.
type Command struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	Data   any    `json:"data,omitempty"`
}

// Response is the content script's answer to a Command with the same ID.
type Response struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Options configures the bridge.
type Options struct {
	CheckOrigin     func(*http.Request) bool
	ReadBufferSize  int
	WriteBufferSize int
	WriteWait       time.Duration
	// CommandTimeout bounds each command when the caller's context has no
	// earlier deadline.
	CommandTimeout time.Duration
}

// Session is one connected extension.
type Session struct {
	ID          string
	conn        *websocket.Conn
	writeMu     sync.Mutex
	RemoteAddr  string
	UserAgent   string
	ConnectedAt time.Time
}

type pendingCommand struct {
	session string
	ch      chan Response
}

// Bridge tracks extension sessions and routes command responses. The most
// recently connected session is the active one.
type Bridge struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	activeID string
	pending  map[string]pendingCommand

	upgrader       websocket.Upgrader
	writeWait      time.Duration
	commandTimeout time.Duration
	logger         *zap.Logger
}

var _ pagehost.Host = (*Bridge)(nil)

// NewBridge creates a bridge with no sessions.
func NewBridge(opts Options, logger *zap.Logger) *Bridge {
	up := websocket.Upgrader{
		ReadBufferSize:  opts.ReadBufferSize,
		WriteBufferSize: opts.WriteBufferSize,
		CheckOrigin:     opts.CheckOrigin,
	}
	if up.ReadBufferSize == 0 {
		up.ReadBufferSize = 4096
	}
	if up.WriteBufferSize == 0 {
		up.WriteBufferSize = 4096
	}
	writeWait := opts.WriteWait
	if writeWait == 0 {
		writeWait = 5 * time.Second
	}
	timeout := opts.CommandTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Bridge{
		sessions:       make(map[string]*Session),
		pending:        make(map[string]pendingCommand),
		upgrader:       up,
		writeWait:      writeWait,
		commandTimeout: timeout,
		logger:         logger.Named("wsbridge"),
	}
}

// HandleWS upgrades the request and serves the session until it disconnects.
func (b *Bridge) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("Websocket upgrade failed.", zap.Error(err))
		return
	}
	session := &Session{
		ID:          uuid.New().String(),
		conn:        conn,
		RemoteAddr:  r.RemoteAddr,
		UserAgent:   r.UserAgent(),
		ConnectedAt: time.Now(),
	}

	b.mu.Lock()
	b.sessions[session.ID] = session
	b.activeID = session.ID
	b.mu.Unlock()
	b.logger.Info("Extension connected.", zap.String("session", session.ID), zap.String("remote", session.RemoteAddr))

	b.readLoop(session)
	b.drop(session)
	b.logger.Info("Extension disconnected.", zap.String("session", session.ID))
}

func (b *Bridge) readLoop(s *Session) {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var resp Response
		if err := json.Unmarshal(message, &resp); err != nil {
			b.logger.Debug("Ignoring malformed message.", zap.String("session", s.ID), zap.Error(err))
			continue
		}
		if resp.ID == "" {
			continue
		}
		b.deliver(resp)
	}
}

func (b *Bridge) deliver(resp Response) {
	b.mu.Lock()
	p, ok := b.pending[resp.ID]
	if ok {
		delete(b.pending, resp.ID)
	}
	b.mu.Unlock()
	if ok {
		p.ch <- resp
	}
}

// drop forgets the session and fails its outstanding commands.
func (b *Bridge) drop(s *Session) {
	b.mu.Lock()
	delete(b.sessions, s.ID)
	if b.activeID == s.ID {
		b.activeID = ""
		var newest *Session
		for _, other := range b.sessions {
			if newest == nil || other.ConnectedAt.After(newest.ConnectedAt) {
				newest = other
			}
		}
		if newest != nil {
			b.activeID = newest.ID
		}
	}
	var orphaned []pendingCommand
	for id, p := range b.pending {
		if p.session == s.ID {
			orphaned = append(orphaned, p)
			delete(b.pending, id)
		}
	}
	b.mu.Unlock()

	for _, p := range orphaned {
		p.ch <- Response{Error: ErrSessionClosed.Error()}
	}
	_ = s.conn.Close()
}

// Count returns the number of connected sessions.
func (b *Bridge) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// ActiveSession returns the ID of the session commands are sent to, or "".
func (b *Bridge) ActiveSession() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.activeID
}

// Close disconnects every session.
func (b *Bridge) Close() error {
	b.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(b.sessions))
	for _, s := range b.sessions {
		conns = append(conns, s.conn)
	}
	b.mu.RUnlock()
	for _, c := range conns {
		_ = c.Close()
	}
	return nil
}

// Send delivers a command to the active session and waits for its response.
func (b *Bridge) Send(ctx context.Context, action string, data any) (Response, error) {
	b.mu.RLock()
	session := b.sessions[b.activeID]
	b.mu.RUnlock()
	if session == nil {
		return Response{}, ErrNoActiveSession
	}

	cmd := Command{ID: uuid.New().String(), Action: action, Data: data}
	msg, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode %s command: %w", action, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.commandTimeout)
		defer cancel()
	}

	ch := make(chan Response, 1)
	b.mu.Lock()
	b.pending[cmd.ID] = pendingCommand{session: session.ID, ch: ch}
	b.mu.Unlock()

	session.writeMu.Lock()
	_ = session.conn.SetWriteDeadline(time.Now().Add(b.writeWait))
	err = session.conn.WriteMessage(websocket.TextMessage, msg)
	session.writeMu.Unlock()
	if err != nil {
		b.forget(cmd.ID)
		return Response{}, fmt.Errorf("failed to send %s command: %w", action, err)
	}

	select {
	case resp := <-ch:
		if resp.ID == "" {
			return Response{}, ErrSessionClosed
		}
		return resp, nil
	case <-ctx.Done():
		b.forget(cmd.ID)
		return Response{}, ctx.Err()
	}
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// pageSource is the payload of an extractPageData response.
type pageSource struct {
	HTML  string `json:"html"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Document asks the content script for the page markup.
func (b *Bridge) Document(ctx context.Context) (pagehost.Source, error) {
	resp, err := b.Send(ctx, ActionExtractPage, nil)
	if err != nil {
		return pagehost.Source{}, err
	}
	if !resp.Success {
		return pagehost.Source{}, fmt.Errorf("content script failed to extract page: %s", resp.Error)
	}
	var src pageSource
	if err := json.Unmarshal(resp.Data, &src); err != nil {
		return pagehost.Source{}, fmt.Errorf("malformed page payload: %w", err)
	}
	if src.HTML == "" {
		return pagehost.Source{}, pagehost.ErrNoPage
	}
	return pagehost.Source{HTML: src.HTML, URL: src.URL, Title: src.Title}, nil
}

// Execute asks the content script to perform action.
func (b *Bridge) Execute(ctx context.Context, action schemas.Action) (schemas.DispatchResult, error) {
	resp, err := b.Send(ctx, ActionExecute, action)
	if err != nil {
		return schemas.DispatchResult{}, err
	}
	if !resp.Success {
		return schemas.DispatchResult{Error: resp.Error}, nil
	}
	res := schemas.DispatchResult{Success: true}
	if len(resp.Data) > 0 {
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(resp.Data, &payload); err == nil {
			res.Message = payload.Message
		}
	}
	return res, nil
}

// Status asks the content script to describe its page.
func (b *Bridge) Status(ctx context.Context) (schemas.PageStatus, error) {
	resp, err := b.Send(ctx, ActionStatus, nil)
	if err != nil {
		return schemas.PageStatus{}, err
	}
	if !resp.Success {
		return schemas.PageStatus{}, fmt.Errorf("content script failed to report status: %s", resp.Error)
	}
	var status schemas.PageStatus
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return schemas.PageStatus{}, fmt.Errorf("malformed status payload: %w", err)
	}
	status.HostActive = true
	status.Supported = pagehost.IsSupportedURL(status.URL)
	status.ActiveSession = b.ActiveSession()
	return status, nil
}
