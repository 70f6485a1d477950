package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/martin-1103/gbika-sub001/internal/adapter/metrics"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
	sendQueueSize = 16
	maxFrameSize  = 4096
)

var (
	errClientClosed = errors.New("connection closed")
	errQueueFull    = errors.New("outbound queue full")
)

// client owns every write to one socket. Frames are queued by Send and
// written by a single goroutine; a full queue tears the connection down.
type client struct {
	connection  *websocket.Conn
	clock       clockwork.Clock
	metrics     *metrics.WebSocketMetrics
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

var _ Sink = (*client)(nil)

func newClient(connection *websocket.Conn, clock clockwork.Clock, m *metrics.WebSocketMetrics) *client {
	c := &client{
		connection:  connection,
		clock:       clock,
		metrics:     m,
		sendChannel: make(chan []byte, sendQueueSize),
		doneChannel: make(chan struct{}),
	}
	c.connection.SetReadLimit(maxFrameSize)
	c.configurePongHandler()
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *client) Send(frame []byte) error {
	select {
	case <-c.doneChannel:
		return errClientClosed
	default:
	}

	select {
	case c.sendChannel <- frame:
		return nil
	default:
		c.metrics.SlowClientDrops.Inc()
		c.abort()
		return errQueueFull
	}
}

func (c *client) run() {
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.wg.Done()

	for {
		select {
		case msg := <-c.sendChannel:
			c.updateWriteDeadline()
			if err := c.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.abort()
				return
			}
		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.abort()
				return
			}
		case <-c.doneChannel:
			return
		}
	}
}

// abort closes the socket without waiting for the writer. The read loop
// observes the closed socket and runs the normal teardown.
func (c *client) abort() {
	c.stopOnce.Do(func() {
		close(c.doneChannel)
		_ = c.connection.Close()
	})
}

// stop closes the socket and waits for the writer goroutine to exit.
func (c *client) stop() {
	c.abort()
	c.wg.Wait()
}

// Close sends a close frame carrying reason, then closes the socket.
func (c *client) Close(reason string) {
	c.stopOnce.Do(func() {
		close(c.doneChannel)
		c.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		c.updateWriteDeadline()
		_ = c.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = c.connection.Close()
	})
}

func (c *client) configurePongHandler() {
	c.extendReadDeadline()
	c.connection.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})
}

func (c *client) updateWriteDeadline() {
	_ = c.connection.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
}

func (c *client) extendReadDeadline() {
	_ = c.connection.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}
