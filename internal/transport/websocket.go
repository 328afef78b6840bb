package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"remote-agent/internal/agenterr"
	"remote-agent/internal/types"
	"remote-agent/pkg/protocol"
)

// sendQueueSize размер очереди управляющих сообщений
const sendQueueSize = 64

// writeTimeout предельное время записи одного сообщения
const writeTimeout = 10 * time.Second

type wsChannelConfig struct {
	queueSize    int
	dropOldest   bool
	pingInterval time.Duration
}

// wsChannel канал поверх WebSocket. Одна горутина читает входящие
// сообщения, вторая пишет: управляющие сообщения, кадры и пинги идут
// через один цикл записи, поэтому порядок сообщений сохраняется.
type wsChannel struct {
	conn   *websocket.Conn
	cfg    wsChannelConfig
	logger *zap.Logger

	send   chan []byte
	frames chan *types.EncodedFrame
	done   chan struct{}

	closeOnce sync.Once

	onMessage func(protocol.Message)
	onClosed  func()
}

func newWSChannel(conn *websocket.Conn, cfg wsChannelConfig, logger *zap.Logger) *wsChannel {
	return &wsChannel{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		send:   make(chan []byte, sendQueueSize),
		frames: make(chan *types.EncodedFrame, cfg.queueSize),
		done:   make(chan struct{}),
	}
}

// start запускает циклы чтения и записи. Вызывается после того,
// как настроены onMessage и onClosed.
func (c *wsChannel) start() {
	go c.readPump()
	go c.writePump()
}

func (c *wsChannel) SendMessage(msg protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return agenterr.Wrap(agenterr.KindTransport, "encode message", err)
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return agenterr.New(agenterr.KindTransport, "channel is closed")
	}
}

func (c *wsChannel) SendFrame(frame *types.EncodedFrame) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	return offerFrame(c.frames, frame, c.cfg.dropOldest)
}

func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
	return nil
}

// readPump читает входящие сообщения до обрыва соединения.
// Дедлайн чтения продлевается каждым pong от зрителя.
func (c *wsChannel) readPump() {
	defer func() {
		c.Close()
		if c.onClosed != nil {
			c.onClosed()
		}
	}()

	deadline := 2 * c.cfg.pingInterval
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(deadline))

		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("Malformed message", zap.Error(err))
			continue
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

// writePump пишет исходящие сообщения и кадры, шлет пинги
func (c *wsChannel) writePump() {
	ticker := time.NewTicker(c.cfg.pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", zap.Error(err))
				return
			}

		case frame := <-c.frames:
			msg, err := protocol.NewMessage(protocol.TypeFrame, protocol.ChannelMedia, frame)
			if err != nil {
				c.logger.Error("Encode frame failed", zap.Error(err))
				continue
			}
			data, err := msg.Encode()
			if err != nil {
				c.logger.Error("Encode frame message failed", zap.Error(err))
				continue
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket frame write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.write(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *wsChannel) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}
