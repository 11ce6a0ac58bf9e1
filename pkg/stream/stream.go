// Package stream maintains the WebSocket subscription to the backend's
// event feed. It owns connecting, keepalive, and the fixed-delay
// reconnect loop, and routes decoded messages to registered callbacks.
package stream

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/greenloop/ewaste-monitor/internal/models"
)

// DefaultReconnectDelay is the pause between reconnect attempts. The
// delay is fixed rather than backed off: the feed is the primary data
// channel and a few seconds of extra downtime costs more than the cheap
// periodic dial.
const DefaultReconnectDelay = 3 * time.Second

const (
	handshakeTimeout = 10 * time.Second
	pingInterval     = 30 * time.Second
	pongWait         = 60 * time.Second
	writeWait        = 10 * time.Second
)

// Status is the connection lifecycle phase, surfaced to dashboards as the
// connection badge.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusLive         Status = "live"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
	StatusClosed       Status = "closed"
)

func (s Status) String() string { return string(s) }

// Client is a resilient subscriber to the backend event stream. Run
// drives it; callbacks fire from Run's goroutine, one at a time, so
// handlers observe messages in arrival order.
type Client struct {
	url    string
	delay  time.Duration
	logger zerolog.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	status Status

	cbMu          sync.RWMutex
	onInit        func(devices []models.Device, events []models.Event)
	onEvent       func(ev models.Event, dev *models.Device)
	onNewDevice   func(dev models.Device)
	onStatus      func(status Status)
	onDecodeError func(err error)
}

// NewClient builds a stream client for the given endpoint. http(s)
// schemes are converted to ws(s); a non-positive delay falls back to
// DefaultReconnectDelay. The endpoint is unauthenticated.
func NewClient(endpoint string, reconnectDelay time.Duration, logger zerolog.Logger) (*Client, error) {
	wsURL, err := normalizeURL(endpoint)
	if err != nil {
		return nil, err
	}
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &Client{
		url:    wsURL,
		delay:  reconnectDelay,
		status: StatusIdle,
		logger: logger,
	}, nil
}

// normalizeURL converts http(s) endpoints to their ws(s) equivalents and
// rejects anything else that is not already a WebSocket URL.
func normalizeURL(endpoint string) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse stream url %q: %w", endpoint, err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported stream url scheme %q", parsed.Scheme)
	}
	return parsed.String(), nil
}

// OnInit registers the handler for full-state init messages.
func (c *Client) OnInit(fn func(devices []models.Device, events []models.Event)) {
	c.cbMu.Lock()
	c.onInit = fn
	c.cbMu.Unlock()
}

// OnEvent registers the handler for device telemetry events.
func (c *Client) OnEvent(fn func(ev models.Event, dev *models.Device)) {
	c.cbMu.Lock()
	c.onEvent = fn
	c.cbMu.Unlock()
}

// OnNewDevice registers the handler for device registration announcements.
func (c *Client) OnNewDevice(fn func(dev models.Device)) {
	c.cbMu.Lock()
	c.onNewDevice = fn
	c.cbMu.Unlock()
}

// OnStatusChange registers the handler fired on every status transition.
func (c *Client) OnStatusChange(fn func(status Status)) {
	c.cbMu.Lock()
	c.onStatus = fn
	c.cbMu.Unlock()
}

// OnDecodeError registers the handler fired when an inbound message is
// dropped as undecodable.
func (c *Client) OnDecodeError(fn func(err error)) {
	c.cbMu.Lock()
	c.onDecodeError = fn
	c.cbMu.Unlock()
}

// Status returns the current connection phase.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Run connects and keeps the subscription alive until the context is
// canceled, redialing after every drop with the fixed delay. Malformed
// messages are dropped without touching the connection. Run never gives
// up on its own; it returns only on cancellation.
func (c *Client) Run(ctx context.Context) {
	c.setStatus(StatusConnecting)

	for {
		if ctx.Err() != nil {
			c.setStatus(StatusClosed)
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.setStatus(StatusClosed)
				return
			}
			c.logger.Error().Err(err).Str("url", c.url).Msg("Stream dial failed")
			c.setStatus(StatusError)
			if !c.waitReconnect(ctx) {
				return
			}
			continue
		}

		c.setConn(conn)
		c.setStatus(StatusLive)
		c.logger.Info().Str("url", c.url).Msg("Stream connected")

		err = c.serve(ctx, conn)
		c.setConn(nil)
		if ctx.Err() != nil {
			c.setStatus(StatusClosed)
			return
		}

		c.logger.Warn().Err(err).Msg("Stream connection lost")
		c.setStatus(StatusError)
		if !c.waitReconnect(ctx) {
			return
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout:  handshakeTimeout,
		EnableCompression: true,
	}
	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("stream dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("stream dial failed: %w", err)
	}
	return conn, nil
}

// serve pumps messages off one connection until it breaks or the context
// is canceled. A companion goroutine handles cancellation (by closing the
// connection under the reader) and protocol-level keepalive pings.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				c.closeGracefully(conn)
				return
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleMessage(data)
	}
}

// closeGracefully announces a normal closure before tearing the
// connection down, so the backend unregisters the subscriber cleanly.
func (c *Client) closeGracefully(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to send close frame")
	}
	conn.Close()
}

// waitReconnect idles out the fixed delay, reporting the reconnecting
// phase. Returns false when the context was canceled while waiting.
func (c *Client) waitReconnect(ctx context.Context) bool {
	c.setStatus(StatusReconnecting)
	select {
	case <-time.After(c.delay):
		return true
	case <-ctx.Done():
		c.setStatus(StatusClosed)
		return false
	}
}

// handleMessage decodes one inbound frame and routes it to the matching
// callback. Undecodable frames are dropped; the feed must survive a bad
// message.
func (c *Client) handleMessage(data []byte) {
	msg, err := models.DecodeStreamMessage(data)
	if err != nil {
		c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("Dropping undecodable stream message")
		c.cbMu.RLock()
		onDecodeError := c.onDecodeError
		c.cbMu.RUnlock()
		if onDecodeError != nil {
			onDecodeError(err)
		}
		return
	}

	c.cbMu.RLock()
	defer c.cbMu.RUnlock()

	switch msg.Type {
	case models.MessageInit:
		if c.onInit != nil {
			c.onInit(msg.Devices, msg.RecentEvents)
		}
	case models.MessageIoTEvent:
		if c.onEvent != nil {
			ev, err := msg.EventPayload()
			if err != nil {
				c.reportDecodeError(err)
				return
			}
			c.onEvent(*ev, msg.Device)
		}
	case models.MessageNewDevice:
		if c.onNewDevice != nil {
			dev, err := msg.DevicePayload()
			if err != nil {
				c.reportDecodeError(err)
				return
			}
			c.onNewDevice(*dev)
		}
	}
}

// reportDecodeError is handleMessage's payload-level twin; caller holds
// the callback read lock.
func (c *Client) reportDecodeError(err error) {
	c.logger.Warn().Err(err).Msg("Dropping stream message with undecodable payload")
	if c.onDecodeError != nil {
		c.onDecodeError(err)
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()
	if conn == nil && old != nil {
		old.Close()
	}
}

func (c *Client) setStatus(status Status) {
	c.mu.Lock()
	if c.status == status {
		c.mu.Unlock()
		return
	}
	c.status = status
	c.mu.Unlock()

	c.cbMu.RLock()
	onStatus := c.onStatus
	c.cbMu.RUnlock()
	if onStatus != nil {
		onStatus(status)
	}
}
