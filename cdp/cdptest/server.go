// Package cdptest provides an in-process DevTools endpoint for tests.
package cdptest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/target"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
)

// Event is an event sent to the client after a reply.
type Event struct {
	Method string
	Params string
}

// Reply is what the server answers to a command.
type Reply struct {
	// Result is the JSON result object. Empty means "{}".
	Result string
	Error  *cdproto.Error
	// Events are emitted, on the command's session, after the reply.
	Events []Event
	// NoReply leaves the command unanswered.
	NoReply bool
}

// HandlerFunc answers a command.
type HandlerFunc func(msg *cdproto.Message) Reply

// Server is a DevTools websocket endpoint answering commands with
// registered handlers. Unknown commands get an empty result.
type Server struct {
	*httptest.Server

	t testing.TB

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	received []*cdproto.Message
	conns    []*conn
}

type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) write(msg *cdproto.Message) error {
	buf, err := easyjson.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, buf)
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		t:        t,
		handlers: make(map[string]HandlerFunc),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveWS))
	t.Cleanup(func() {
		s.CloseConnections()
		s.Server.Close()
	})

	return s
}

// WSURL returns the websocket URL of the endpoint.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/devtools/browser/cdptest"
}

// Handle registers fn for method.
func (s *Server) Handle(method string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = fn
}

// HandleResult registers a handler always answering with result.
func (s *Server) HandleResult(method, result string, events ...Event) {
	s.Handle(method, func(*cdproto.Message) Reply {
		return Reply{Result: result, Events: events}
	})
}

// Received returns the commands received for method, in order. An empty
// method returns every command.
func (s *Server) Received(method string) []*cdproto.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msgs []*cdproto.Message
	for _, m := range s.received {
		if method == "" || string(m.Method) == method {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

// Methods returns the names of every received command, in order.
func (s *Server) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.received))
	for _, m := range s.received {
		names = append(names, string(m.Method))
	}
	return names
}

// Emit sends an event to every connected client.
func (s *Server) Emit(sessionID target.SessionID, method, params string) {
	s.mu.Lock()
	conns := append([]*conn(nil), s.conns...)
	s.mu.Unlock()

	for _, c := range conns {
		s.emit(c, sessionID, Event{Method: method, Params: params})
	}
}

// CloseConnections drops every client connection.
func (s *Server) CloseConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.ws.Close()
	}
}

func (s *Server) emit(c *conn, sessionID target.SessionID, evt Event) {
	params := evt.Params
	if params == "" {
		params = "{}"
	}
	err := c.write(&cdproto.Message{
		SessionID: sessionID,
		Method:    cdproto.MethodType(evt.Method),
		Params:    easyjson.RawMessage(params),
	})
	if err != nil {
		s.t.Logf("cdptest: emitting %s: %v", evt.Method, err)
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Logf("cdptest: upgrading: %v", err)
		return
	}
	c := &conn{ws: ws}

	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.mu.Unlock()

	for {
		_, buf, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg cdproto.Message
		if err := easyjson.Unmarshal(buf, &msg); err != nil {
			s.t.Logf("cdptest: decoding %q: %v", buf, err)
			continue
		}

		s.mu.Lock()
		s.received = append(s.received, &msg)
		fn := s.handlers[string(msg.Method)]
		s.mu.Unlock()

		reply := Reply{}
		if fn != nil {
			reply = fn(&msg)
		}
		if reply.NoReply {
			continue
		}

		resp := &cdproto.Message{
			ID:        msg.ID,
			SessionID: msg.SessionID,
			Error:     reply.Error,
		}
		if reply.Error == nil {
			result := reply.Result
			if result == "" {
				result = "{}"
			}
			resp.Result = easyjson.RawMessage(result)
		}
		if err := c.write(resp); err != nil {
			return
		}
		for _, evt := range reply.Events {
			s.emit(c, msg.SessionID, evt)
		}
	}
}
