package cdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
	"github.com/oxtoacart/bpool"

	"github.com/grafana/devtools-scenarios/log"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsBufferSize       = 1 << 20
	wsCloseTimeout     = time.Second
)

var bufferPool = bpool.NewBufferPool(32) //nolint:gochecknoglobals

// connection is a websocket connection speaking CDP messages.
type connection struct {
	ws     *websocket.Conn
	wsURL  string
	logger *log.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newConnection(ctx context.Context, wsURL string, logger *log.Logger) (*connection, error) {
	wd := &websocket.Dialer{
		HandshakeTimeout: wsHandshakeTimeout,
		ReadBufferSize:   wsBufferSize,
		WriteBufferSize:  wsBufferSize,
		Proxy:            http.ProxyFromEnvironment,
	}
	ws, _, err := wd.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("dialing %q: %w", wsURL, err)
	}

	return &connection{
		ws:     ws,
		wsURL:  wsURL,
		logger: logger,
	}, nil
}

func (c *connection) readMessage() (*cdproto.Message, error) {
	_, buf, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}

	var msg cdproto.Message
	decoder := jlexer.Lexer{Data: buf}
	msg.UnmarshalEasyJSON(&decoder)
	if err := decoder.Error(); err != nil {
		return nil, fmt.Errorf("decoding CDP message: %w", err)
	}

	return &msg, nil
}

func (c *connection) writeMessage(msg *cdproto.Message) error {
	var encoder jwriter.Writer
	msg.MarshalEasyJSON(&encoder)
	if err := encoder.Error; err != nil {
		return fmt.Errorf("encoding CDP message: %w", err)
	}

	buf := bufferPool.Get()
	defer bufferPool.Put(buf)
	if _, err := encoder.DumpTo(buf); err != nil {
		return fmt.Errorf("encoding CDP message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.TextMessage, buf.Bytes()); err != nil {
		return fmt.Errorf("writing CDP message: %w", err)
	}

	return nil
}

// Close sends a close frame and closes the underlying socket.
func (c *connection) Close() (err error) {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsCloseTimeout),
		)
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}

// isClosedError reports whether err is the result of the connection going
// away, either on our side or the browser's.
func isClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
	)
}
