package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/solvaholic/rally/internal/logger"
	"github.com/solvaholic/rally/internal/normalize"
)

const (
	DefaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
)

// Frame types the server uses for chat messages
var messageTypes = map[string]bool{
	"message":      true,
	"new_message":  true,
	"chat_message": true,
}

// Options configures Dial
type Options struct {
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	Logger           logger.Logger
}

// Handler receives each chat message read from the stream. Returning an
// error stops Run with that error.
type Handler func(*normalize.ChatMessage) error

// Client is a connection to the realtime chat socket
type Client struct {
	conn         *websocket.Conn
	log          logger.Logger
	pingInterval time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

type outFrame struct {
	Type    string `json:"type"`
	ChatID  string `json:"chatId"`
	Content string `json:"content,omitempty"`
}

// Dial connects to the chat socket at rawURL. The token is sent both as a
// bearer header and as the token query parameter.
func Dial(ctx context.Context, rawURL, token string, opts Options) (*Client, error) {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid stream URL")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.Errorf("stream URL scheme must be ws or wss, got: %s", u.Scheme)
	}

	header := http.Header{}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "failed to connect to %s (status %d)", u.Host, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "failed to connect to %s", u.Host)
	}

	opts.Logger.Debug("stream connected", "host", u.Host)

	return &Client{
		conn:         conn,
		log:          opts.Logger,
		pingInterval: opts.PingInterval,
	}, nil
}

// Join subscribes to a chat's messages
func (c *Client) Join(chatID string) error {
	if chatID == "" {
		return errors.New("chat id is required")
	}
	return c.writeFrame(outFrame{Type: "join", ChatID: chatID})
}

// Send posts a message to a chat over the socket
func (c *Client) Send(chatID, content string) error {
	if chatID == "" {
		return errors.New("chat id is required")
	}
	if content == "" {
		return errors.New("message content is required")
	}
	return c.writeFrame(outFrame{Type: "message", ChatID: chatID, Content: content})
}

func (c *Client) writeFrame(f outFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "failed to encode frame")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrapf(err, "failed to write %s frame", f.Type)
	}
	return nil
}

// Run reads frames until ctx is done or the server closes the connection,
// passing every chat message to handler. Cancellation and a normal close
// both return nil. Frames that cannot be decoded are logged and skipped.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	done := make(chan struct{})
	defer close(done)

	go c.keepAlive(ctx, done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("stream closed by server")
				return nil
			}
			return errors.Wrap(err, "failed to read frame")
		}

		msg, ok := c.decode(data)
		if !ok {
			continue
		}
		if err := handler(msg); err != nil {
			return err
		}
	}
}

// keepAlive pings the server every pingInterval and closes the connection
// when ctx is cancelled so the blocked read in Run returns.
func (c *Client) keepAlive(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			c.Close()
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Warn("stream ping failed", "error", err)
			}
		}
	}
}

// decode extracts a chat message from a frame shaped {"type", "data"} or
// {"type", "message"}.
func (c *Client) decode(data []byte) (*normalize.ChatMessage, bool) {
	if !gjson.ValidBytes(data) {
		c.log.Warn("skipping malformed frame", "bytes", len(data))
		return nil, false
	}

	frame := gjson.ParseBytes(data)
	frameType := frame.Get("type").String()
	if !messageTypes[frameType] {
		if frameType == "error" {
			c.log.Warn("stream error frame", "message", frame.Get("message").String())
		} else {
			c.log.Debug("ignoring frame", "type", frameType)
		}
		return nil, false
	}

	payload := frame.Get("data")
	if !payload.IsObject() {
		payload = frame.Get("message")
	}

	msg, err := normalize.ChatMessageFromJSON(payload)
	if err != nil {
		c.log.Warn("skipping undecodable message frame", "type", frameType, "error", err)
		return nil, false
	}

	if msg.ChatID == nil {
		if chatID := frame.Get("chatId"); chatID.Type == gjson.String && chatID.Str != "" {
			id := chatID.Str
			msg.ChatID = &id
		}
	}
	return msg, true
}

// Close sends a normal close frame and closes the connection. It is safe to
// call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = c.conn.Close()
	})
	return err
}
