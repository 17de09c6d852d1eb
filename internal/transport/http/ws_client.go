package http

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 32
)

var errClientClosed = errors.New("websocket client closed")

// wsClient owns the single writer goroutine of a connection. Session events and
// direct replies both go through send so writes never race.
type wsClient struct {
	conn *websocket.Conn
	log  *slog.Logger
	send chan any
	done chan struct{}
	once sync.Once
}

func newWSClient(conn *websocket.Conn, log *slog.Logger) *wsClient {
	return &wsClient{
		conn: conn,
		log:  log,
		send: make(chan any, sendBuffer),
		done: make(chan struct{}),
	}
}

// Deliver implements app.Subscriber. It blocks only the caller's mailbox.
func (c *wsClient) Deliver(ev domain.Event) error {
	return c.enqueue(ev)
}

func (c *wsClient) enqueue(msg any) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return errClientClosed
	}
}

func (c *wsClient) reply(typ string, payload any) {
	_ = c.enqueue(outboundMessage{Type: typ, Payload: payload})
}

func (c *wsClient) fail(message string) {
	c.reply("error", errorPayload{Message: message})
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *wsClient) writePump(finished chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(finished)
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Debug("ws write failed", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			c.drain()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain flushes replies queued before close, best effort.
func (c *wsClient) drain() {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsClient) prepareRead() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}
