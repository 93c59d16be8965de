// Package wschat is a WebSocket chat front end for the narration pipeline.
// Each {"text": "<url>"} frame is one request; replies are JSON frames.
package wschat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/article-voice/internal/observability"
	"github.com/lexiqai/article-voice/internal/pipeline"
)

const writeWait = 10 * time.Second

// Frame types sent to the client
const (
	FrameText  = "text"
	FrameAudio = "audio"
)

// ClientMessage is one inbound chat message
type ClientMessage struct {
	Text string `json:"text"`
}

// ServerMessage is one outbound frame
type ServerMessage struct {
	Type        string `json:"type"`
	RequestID   string `json:"request_id,omitempty"`
	Text        string `json:"text,omitempty"`
	Index       int    `json:"index,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Audio       string `json:"audio,omitempty"` // base64 encoded
}

// Handler processes one narration request
type Handler interface {
	Handle(ctx context.Context, req pipeline.Request) error
}

// Server upgrades /chat connections and runs their requests
type Server struct {
	baseCtx  context.Context
	handler  Handler
	upgrader websocket.Upgrader
	wg       sync.WaitGroup
}

// NewServer creates a chat server; requests are cancelled when ctx ends
func NewServer(ctx context.Context, handler Handler) *Server {
	return &Server{
		baseCtx: ctx,
		handler: handler,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP handles one chat connection until the client disconnects
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger := observability.GetLogger()
		logger.Warn().Err(err).Msg("Failed to upgrade chat connection")
		return
	}

	session := newChatSession(conn)
	defer session.close()

	session.logger.Info().Str("remote", r.RemoteAddr).Msg("Chat session opened")
	s.readLoop(session)
	session.logger.Info().Msg("Chat session closed")
}

// Wait blocks until every request started by the server has finished
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) readLoop(session *ChatSession) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()

	for {
		_, message, err := session.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				session.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			session.logger.Warn().Err(err).Msg("Failed to parse chat message")
			continue
		}

		s.dispatch(ctx, session, msg.Text)
	}
}

func (s *Server) dispatch(ctx context.Context, session *ChatSession, text string) {
	req := pipeline.Request{
		ID:        observability.NewCorrelationID(),
		Requester: session.id,
		URL:       text,
	}
	req.Reply = &Replier{session: session, requestID: req.ID}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				session.logger.Error().
					Str("request_id", req.ID).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("Request handler panicked")
			}
		}()

		_ = s.handler.Handle(ctx, req)
	}()
}

// ChatSession holds one WebSocket connection. gorilla connections allow a
// single concurrent writer, so every write goes through writeMu.
type ChatSession struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  zerolog.Logger
}

func newChatSession(conn *websocket.Conn) *ChatSession {
	id := "ws-" + observability.NewCorrelationID()
	return &ChatSession{
		id:     id,
		conn:   conn,
		logger: observability.GetLogger().With().Str("component", "wschat").Str("session_id", id).Logger(),
	}
}

func (c *ChatSession) write(ctx context.Context, msg ServerMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

func (c *ChatSession) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.conn.Close()
}

// Replier sends one request's output over its chat session
type Replier struct {
	session   *ChatSession
	requestID string
}

// SendText sends a text frame
func (r *Replier) SendText(ctx context.Context, text string) error {
	return r.session.write(ctx, ServerMessage{
		Type:      FrameText,
		RequestID: r.requestID,
		Text:      text,
	})
}

// SendAudio sends an audio frame with the clip base64 encoded
func (r *Replier) SendAudio(ctx context.Context, a pipeline.AudioArtifact) error {
	return r.session.write(ctx, ServerMessage{
		Type:        FrameAudio,
		RequestID:   r.requestID,
		Index:       a.Index,
		FileName:    a.FileName,
		ContentType: a.ContentType,
		Audio:       base64.StdEncoding.EncodeToString(a.Data),
	})
}
