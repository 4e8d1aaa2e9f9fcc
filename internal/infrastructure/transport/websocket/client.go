package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/xbridge/internal/core/ports"
)

const (
	writeWait      = 10 * time.Second
	reconnectDelay = 5 * time.Second
)

var (
	// ErrNotConnected is returned when broadcasting while the client has no
	// connection with the relay.
	ErrNotConnected = errors.New("not connected to relay")
	// ErrClosed is returned when using a closed client.
	ErrClosed = errors.New("client is closed")
)

func deadline() time.Time {
	return time.Now().Add(writeWait)
}

// Client connects a node to a Relay. The connection is re-established in
// background whenever it drops.
type Client struct {
	url            string
	dialer         *websocket.Dialer
	reconnectDelay time.Duration

	lock      *sync.Mutex
	conn      *websocket.Conn
	onMessage func(raw []byte)
	closed    bool
	quit      chan struct{}
}

var _ ports.Transport = (*Client)(nil)

func NewClient(relayURL string) (*Client, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("relay url scheme must be either ws or wss")
	}

	return &Client{
		url:            u.String(),
		dialer:         websocket.DefaultDialer,
		reconnectDelay: reconnectDelay,
		lock:           &sync.Mutex{},
		quit:           make(chan struct{}),
	}, nil
}

// Start dials the relay and, once connected, delivers every inbound binary
// frame to onMessage until ctx is done or the client is closed.
func (c *Client) Start(ctx context.Context, onMessage func(raw []byte)) error {
	if onMessage == nil {
		return fmt.Errorf("missing message handler")
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.onMessage = onMessage
	c.lock.Unlock()

	go c.listen(ctx, conn)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.quit:
		}
	}()
	return nil
}

func (c *Client) Broadcast(_ context.Context, raw []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.conn == nil {
		return ErrNotConnected
	}

	c.conn.SetWriteDeadline(deadline())
	return c.conn.WriteMessage(websocket.BinaryMessage, raw)
}

func (c *Client) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.quit)

	if c.conn == nil {
		return nil
	}
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline(),
	)
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}
	return conn, nil
}

func (c *Client) listen(ctx context.Context, conn *websocket.Conn) {
	for {
		c.read(conn)

		if c.isClosed() {
			return
		}
		log.Warn("connection with relay dropped unexpectedly. Trying to reconnect...")

		var ok bool
		if conn, ok = c.reconnect(ctx); !ok {
			return
		}
		log.Debug("connection with relay re-established")
	}
}

func (c *Client) read(conn *websocket.Conn) {
	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		c.lock.Lock()
		onMessage := c.onMessage
		c.lock.Unlock()
		onMessage(message)
	}
}

func (c *Client) reconnect(ctx context.Context) (*websocket.Conn, bool) {
	c.lock.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.lock.Unlock()

	ticker := time.NewTicker(c.reconnectDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-c.quit:
			return nil, false
		case <-ticker.C:
		}

		conn, err := c.dial(ctx)
		if err != nil {
			log.WithError(err).Debug("relay still unreachable")
			continue
		}

		c.lock.Lock()
		if c.closed {
			c.lock.Unlock()
			conn.Close()
			return nil, false
		}
		c.conn = conn
		c.lock.Unlock()
		return conn, true
	}
}

func (c *Client) isClosed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.closed
}
