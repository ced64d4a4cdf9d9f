package mcwire

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/hyrelay/hyrelay/internal/obslog"
	"go.uber.org/zap"
)

// envelope is the JSON carrier the sidecar speaks: decoded frames, protocol
// state changes, the authenticated username, and an explicit end marker.
type envelope struct {
	Type     string `json:"type"` // frame | state | login | end
	Frame    *Frame `json:"frame,omitempty"`
	State    State  `json:"state,omitempty"`
	Username string `json:"username,omitempty"`
}

// WSConn implements Conn over a websocket carrying frame envelopes.
type WSConn struct {
	conn *websocket.Conn

	mu       sync.RWMutex
	state    State
	username string

	frameCbs []FrameCallback
	errCbs   []ErrorCallback
	endCbs   []EndCallback

	writeTimeout time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// Dial connects to the upstream sidecar at wsURL.
func Dial(ctx context.Context, wsURL string) (*WSConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, err
	}
	return newWSConn(conn), nil
}

// Accept upgrades an inbound HTTP request from the client-side sidecar.
func Accept(w http.ResponseWriter, r *http.Request) (*WSConn, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, err
	}
	return newWSConn(conn), nil
}

func newWSConn(conn *websocket.Conn) *WSConn {
	ctx, cancel := context.WithCancel(context.Background())
	return &WSConn{
		conn:         conn,
		state:        StateHandshake,
		writeTimeout: 10 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (c *WSConn) OnFrame(cb FrameCallback) { c.frameCbs = append(c.frameCbs, cb) }
func (c *WSConn) OnError(cb ErrorCallback) { c.errCbs = append(c.errCbs, cb) }
func (c *WSConn) OnEnd(cb EndCallback)     { c.endCbs = append(c.endCbs, cb) }

// Start launches the read loop. Call after callback registration.
func (c *WSConn) Start() {
	go c.listen()
}

func (c *WSConn) listen() {
	for {
		var env envelope
		if err := wsjson.Read(c.ctx, c.conn, &env); err != nil {
			if errors.Is(c.ctx.Err(), context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.fireEnd()
			default:
				c.fireError(err)
			}
			return
		}

		switch env.Type {
		case "frame":
			if env.Frame == nil {
				continue
			}
			for _, cb := range c.frameCbs {
				cb(env.Frame)
			}
		case "state":
			c.mu.Lock()
			c.state = env.State
			c.mu.Unlock()
		case "login":
			c.mu.Lock()
			c.username = env.Username
			c.mu.Unlock()
		case "end":
			c.fireEnd()
			return
		default:
			obslog.L().Debug("unknown envelope type", zap.String("type", env.Type))
		}
	}
}

func (c *WSConn) fireEnd() {
	for _, cb := range c.endCbs {
		cb()
	}
}

func (c *WSConn) fireError(err error) {
	for _, cb := range c.errCbs {
		cb(err)
	}
}

func (c *WSConn) WriteFrame(f *Frame) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, envelope{Type: "frame", Frame: f})
}

func (c *WSConn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *WSConn) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// Close tears the websocket down. Safe to call more than once.
func (c *WSConn) Close() error {
	c.stopOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}
