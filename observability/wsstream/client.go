// Package wsstream streams responsiveness samples to a monitoring server
// over a WebSocket connection.
package wsstream

import (
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/Swind/go-responsiveness/core"
)

// Sample is the JSON payload of one text message.
type Sample struct {
	AgentID             string `json:"agent_id"`
	JankType            string `json:"jank_type"`
	JankySlices         int    `json:"janky_slices"`
	WasProcessSuspended bool   `json:"was_process_suspended"`
	Timestamp           int64  `json:"timestamp"`
}

// ClientOptions configures a Client. Zero values use defaults.
type ClientOptions struct {
	AgentID    string
	BufferSize int

	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	PongWait         time.Duration

	// PingPeriod must be less than PongWait.
	PingPeriod time.Duration

	Logger core.Logger
	Now    func() time.Time
}

// Client implements core.Sink. Samples are queued without blocking the
// calling thread and dropped when the queue is full.
type Client struct {
	serverURL string
	agentID   string
	opts      ClientOptions
	logger    core.Logger
	now       func() time.Time

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	done      chan struct{}
	pumps     sync.WaitGroup

	send chan Sample
}

var _ core.Sink = (*Client)(nil)

// NewClient creates a client for serverURL. Call Connect before emitting.
func NewClient(serverURL string, opts ClientOptions) *Client {
	if opts.AgentID == "" {
		opts.AgentID = "browser"
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 100
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	if opts.Logger == nil {
		opts.Logger = core.NewDefaultLogger("wsstream")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		serverURL: serverURL,
		agentID:   opts.AgentID,
		opts:      opts,
		logger:    opts.Logger,
		now:       opts.Now,
		send:      make(chan Sample, opts.BufferSize),
	}
}

// Connect dials the server and starts the read and write pumps.
// Connecting an already connected client is a no-op.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	c.conn = conn
	c.connected = true
	c.done = make(chan struct{})

	c.pumps.Add(2)
	go c.readPump(conn, c.done)
	go c.writePump(conn, c.done)

	c.logger.Info("connected to monitoring server", core.F("url", c.serverURL))
	return nil
}

// Disconnect closes the connection. Queued samples are kept for the next
// Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	close(c.done)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.opts.WriteWait))
	_ = c.conn.Close()
	c.connected = false
	c.mu.Unlock()

	c.pumps.Wait()
}

// IsConnected reports the connection status.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// EmitResponsiveness queues a sample.
func (c *Client) EmitResponsiveness(jankType core.JankType, jankySlices int, wasProcessSuspended bool) {
	s := Sample{
		AgentID:             c.agentID,
		JankType:            jankType.String(),
		JankySlices:         jankySlices,
		WasProcessSuspended: wasProcessSuspended,
		Timestamp:           c.now().UnixMilli(),
	}
	select {
	case c.send <- s:
	default:
		c.logger.Warn("sample queue full, dropping sample", core.F("jank_type", s.JankType))
	}
}

// Pending returns the number of queued samples.
func (c *Client) Pending() int {
	return len(c.send)
}

// Drain waits until the write pump has taken every queued sample or timeout
// elapses, and reports whether the queue is empty.
func (c *Client) Drain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for c.Pending() > 0 && c.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	return c.Pending() == 0
}

func (c *Client) readPump(conn *websocket.Conn, done chan struct{}) {
	defer c.pumps.Done()
	defer c.markDisconnected(conn)

	for {
		select {
		case <-done:
			return
		default:
		}

		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", core.F("error", err))
			}
			return
		}
	}
}

func (c *Client) writePump(conn *websocket.Conn, done chan struct{}) {
	defer c.pumps.Done()
	defer c.markDisconnected(conn)

	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case s := <-c.send:
			if err := c.writeSample(conn, s); err != nil {
				c.logger.Error("cannot send sample", core.F("error", err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeSample(conn *websocket.Conn, s Sample) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// markDisconnected clears the connection if conn is still the current one.
func (c *Client) markDisconnected(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn || !c.connected {
		return
	}
	close(c.done)
	_ = conn.Close()
	c.connected = false
}
