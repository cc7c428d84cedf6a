package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"chatmakere/internal/models"
	"chatmakere/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary

	ErrSlowConsumer = errors.New("slow consumer")
)

// Client is the gorilla transport behind a realtime.Connection. It owns the
// socket writes; the read side is driven by the handler.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	closeCode int
	closeText string
	log       zerolog.Logger
}

func newClient(conn *websocket.Conn, buffer int, logger zerolog.Logger) *Client {
	return &Client{
		conn:      conn,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
		log:       logger,
	}
}

// Send encodes and queues an event without blocking. A full queue closes the
// client.
func (c *Client) Send(event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return realtime.ErrSinkClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return realtime.ErrSinkClosed
	default:
		c.log.Warn().Str("event", event.Name).Msg("ws: slow consumer, closing connection")
		c.closeWith(websocket.ClosePolicyViolation, "slow consumer")
		return ErrSlowConsumer
	}
}

// Close asks the write pump to send a close frame and stop.
func (c *Client) Close() error {
	c.closeWith(websocket.CloseNormalClosure, "")
	return nil
}

func (c *Client) closeWith(code int, text string) {
	c.once.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

// writePump drains the send queue and keeps the peer alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, err.Error())
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, err.Error())
				return
			}

		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeText),
				time.Now().Add(writeWait))
			return
		}
	}
}

// closedLocally reports whether the server closed the client, with the close
// code it used.
func (c *Client) closedLocally() (int, string, bool) {
	select {
	case <-c.done:
		return c.closeCode, c.closeText, true
	default:
		return 0, "", false
	}
}

// readPump hands every inbound text frame to handle until the socket fails.
func (c *Client) readPump(handle func([]byte)) error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}
