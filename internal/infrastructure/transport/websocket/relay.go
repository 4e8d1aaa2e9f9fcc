// Package websocket implements the packet transport on top of websocket
// connections: a Relay floods every binary frame it receives to all the
// other connected nodes, a Client connects a node to a relay.
package websocket

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/thanhpk/randstr"
)

const sendBufferSize = 256

type frame struct {
	from *connection
	data []byte
}

type connection struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
}

// Relay is an http.Handler upgrading requests to websocket connections and
// re-broadcasting every binary frame to all the other connections.
type Relay struct {
	upgrader *websocket.Upgrader

	connections map[*connection]bool
	broadcast   chan frame
	register    chan *connection
	unregister  chan *connection
	quit        chan struct{}
}

func NewRelay() *Relay {
	return &Relay{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		connections: make(map[*connection]bool),
		broadcast:   make(chan frame),
		register:    make(chan *connection),
		unregister:  make(chan *connection),
		quit:        make(chan struct{}),
	}
}

// Run serves the registered connections until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	defer close(r.quit)

	for {
		select {
		case <-ctx.Done():
			for c := range r.connections {
				delete(r.connections, c)
				close(c.send)
			}
			return
		case c := <-r.register:
			r.connections[c] = true
			log.Debugf("relay: registered connection %s", c.id)
		case c := <-r.unregister:
			if _, ok := r.connections[c]; ok {
				delete(r.connections, c)
				close(c.send)
			}
			log.Debugf("relay: unregistered connection %s", c.id)
		case f := <-r.broadcast:
			for c := range r.connections {
				if c == f.from {
					continue
				}
				select {
				case c.send <- f.data:
				default:
					// Slow consumer.
					log.Warnf("relay: dropping connection %s", c.id)
					delete(r.connections, c)
					close(c.send)
				}
			}
		}
	}
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.WithError(err).Warn("relay: failed to upgrade connection")
		return
	}

	c := &connection{
		id:   randstr.Hex(8),
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
	}
	select {
	case r.register <- c:
	case <-r.quit:
		ws.Close()
		return
	}

	go r.writer(c)
	r.reader(c)

	select {
	case r.unregister <- c:
	case <-r.quit:
	}
}

func (r *Relay) reader(c *connection) {
	defer c.ws.Close()

	for {
		msgType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err, websocket.CloseGoingAway, websocket.CloseNormalClosure,
			) {
				log.WithError(err).Debugf("relay: connection %s read error", c.id)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		select {
		case r.broadcast <- frame{from: c, data: message}:
		case <-r.quit:
			return
		}
	}
}

func (r *Relay) writer(c *connection) {
	defer c.ws.Close()

	for message := range c.send {
		c.ws.SetWriteDeadline(deadline())
		if err := c.ws.WriteMessage(websocket.BinaryMessage, message); err != nil {
			log.WithError(err).Debugf("relay: connection %s write error", c.id)
			return
		}
	}
	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
		deadline(),
	)
}
