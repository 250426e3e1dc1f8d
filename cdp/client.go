package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"

	"github.com/grafana/devtools-scenarios/cdp/domains"
	"github.com/grafana/devtools-scenarios/log"
)

// ErrConnectionClosed is returned for commands issued on, or pending on, a
// closed connection.
var ErrConnectionClosed = errors.New("CDP connection closed")

var _ cdp.Executor = &Client{}

// Client manages CDP communication with the browser.
type Client struct {
	ctx    context.Context
	logger *log.Logger

	Browser domains.Browser
	Page    domains.Page
	Runtime domains.Runtime
	Target  domains.Target

	conn  *connection
	wsURL string
	msgID int64

	msgSubsMu sync.Mutex
	msgSubs   map[int64]chan *cdproto.Message

	watcher *eventWatcher

	closeOnce sync.Once
	closing   atomic.Bool
	done      chan struct{}
}

// NewClient returns a new Client that is unusable until a CDP connection is
// established with Connect().
func NewClient(ctx context.Context, logger *log.Logger) *Client {
	c := &Client{
		ctx:     ctx,
		logger:  logger,
		msgSubs: make(map[int64]chan *cdproto.Message),
		watcher: newEventWatcher(logger),
		done:    make(chan struct{}),
	}

	c.Browser = domains.NewBrowser(c)
	c.Page = domains.NewPage(c)
	c.Runtime = domains.NewRuntime(c)
	c.Target = domains.NewTarget(c)

	return c
}

// Connect to the browser that exposes a CDP API at wsURL.
func (c *Client) Connect(wsURL string) (err error) {
	if c.wsURL != "" {
		return fmt.Errorf("CDP connection already established to %q", c.wsURL)
	}

	if c.conn, err = newConnection(c.ctx, wsURL, c.logger); err != nil {
		return err
	}
	c.logger.Debugf("cdp:Client:Connect", "established CDP connection to %q", wsURL)
	c.wsURL = wsURL

	go c.recvLoop()

	return nil
}

// Close closes the connection. Pending commands fail with
// ErrConnectionClosed and every event subscription channel is closed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		if c.conn != nil {
			err = c.conn.Close()
		}
		c.shutdown()
	})
	return err
}

// Done is closed when the connection to the browser is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) shutdown() {
	select {
	case <-c.done:
		return
	default:
	}
	close(c.done)
	c.watcher.close()
}

// Execute implements cdp.Executor and performs a synchronous send and
// receive. The command is routed to the target session found in ctx.
func (c *Client) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	if c.conn == nil {
		return errors.New("CDP connection not established")
	}

	var buf []byte
	if params != nil {
		var err error
		if buf, err = easyjson.Marshal(params); err != nil {
			return fmt.Errorf("marshaling %s params: %w", method, err)
		}
	}

	id := atomic.AddInt64(&c.msgID, 1)
	msg := &cdproto.Message{
		ID:        id,
		SessionID: GetSessionID(ctx),
		Method:    cdproto.MethodType(method),
		Params:    buf,
	}
	c.logger.Debugf("cdp:Client:Execute", "wsURL:%q sid:%v id:%d method:%q", c.wsURL, msg.SessionID, id, method)

	// Expect exactly one reply with the matching message ID.
	recvCh := make(chan *cdproto.Message, 1)
	c.msgSubsMu.Lock()
	c.msgSubs[id] = recvCh
	c.msgSubsMu.Unlock()
	defer func() {
		c.msgSubsMu.Lock()
		delete(c.msgSubs, id)
		c.msgSubsMu.Unlock()
	}()

	if err := c.conn.writeMessage(msg); err != nil {
		return err
	}

	select {
	case reply := <-recvCh:
		switch {
		case reply.Error != nil:
			return reply.Error
		case res != nil:
			if err := easyjson.Unmarshal(reply.Result, res); err != nil {
				return fmt.Errorf("unmarshaling %s result: %w", method, err)
			}
		}
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// Subscribe returns a channel that will be notified when the provided CDP
// events are received for the session found in ctx, and a cancellation
// function that will unsubscribe and close the channel. Without a session in
// ctx, events of every session are delivered.
func (c *Client) Subscribe(ctx context.Context, events ...cdproto.MethodType) (<-chan *Event, func()) {
	return c.watcher.subscribe(GetSessionID(ctx), events...)
}

func (c *Client) recvLoop() {
	defer c.shutdown()

	for {
		msg, err := c.conn.readMessage()
		if err != nil {
			if !c.closing.Load() && !isClosedError(err) {
				c.logger.Errorf("cdp:Client:recvLoop", "wsURL:%q ioErr:%v", c.wsURL, err)
			}
			return
		}

		switch {
		case msg.Method != "":
			evt, err := cdproto.UnmarshalMessage(msg)
			if err != nil {
				c.logger.Debugf("cdp:Client:recvLoop", "unmarshaling %q event: %v", msg.Method, err)
				continue
			}
			c.watcher.notify(&Event{
				Name:      msg.Method,
				Data:      evt,
				sessionID: msg.SessionID,
			})
		case msg.ID > 0:
			c.msgSubsMu.Lock()
			ch, ok := c.msgSubs[msg.ID]
			c.msgSubsMu.Unlock()
			if !ok {
				c.logger.Debugf("cdp:Client:recvLoop", "no caller waiting for message id:%d", msg.ID)
				continue
			}
			ch <- msg
		default:
			c.logger.Errorf("cdp:Client:recvLoop", "ignoring malformed incoming CDP message (missing id or method): %#v", msg)
		}
	}
}

// WithSession returns a context routing commands to sessionID together with
// the executor to use on it.
func (c *Client) WithSession(ctx context.Context, sessionID target.SessionID) context.Context {
	return cdp.WithExecutor(WithSessionID(ctx, sessionID), c)
}
