package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/HoudaChairi/Ft-transcendence/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufSize    = 256
)

type frame struct {
	data   []byte
	binary bool
}

// Client is one websocket connection. It implements the registry's Conn
// and the engine's Subscriber.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan frame
	remoteAddr string
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu     sync.Mutex
	player string
	codec  protocol.Codec
	closed bool

	released  sync.Once
	closeConn sync.Once
}

// NewClient creates a Client for an upgraded connection
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan frame, sendBufSize),
		remoteAddr: remoteAddr,
		limiter:    rate.NewLimiter(rate.Limit(hub.opts.MessageRate), hub.opts.MessageBurst),
		logger:     hub.logger.With(slog.String("remote", remoteAddr)),
		codec:      protocol.JSONCodec{},
	}
}

// Player returns the identified player id, or "" before identify
func (c *Client) Player() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player
}

// Send encodes m with the connection's codec and queues it. A full buffer
// drops the message so a slow reader never stalls a session.
func (c *Client) Send(m protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	data, err := c.codec.Encode(m)
	if err != nil {
		c.logger.Error("encode failed", slog.Any("error", err))
		return
	}
	select {
	case c.send <- frame{data: data, binary: c.codec.Binary()}:
	default:
		c.logger.Warn("send buffer full, dropping message", slog.String("type", m.MessageType()))
	}
}

// Close drops the underlying connection; the pumps then unwind
func (c *Client) Close() {
	c.closeConn.Do(func() { c.conn.Close() })
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.enqueue(c.hub.unregister, c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("ws error", slog.Any("error", err))
			}
			return
		}
		if !c.limiter.Allow() {
			c.logger.Warn("rate limit exceeded", slog.String("player", c.Player()))
			c.Send(protocol.NewError("rate limit exceeded"))
			continue
		}
		c.handleMessage(message)
	}
}

// WritePump writes queued frames and keepalive pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			kind := websocket.TextMessage
			if f.binary {
				kind = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(kind, f.data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
