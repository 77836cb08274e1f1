// Package hoststack connects the bridge to the host network stack over a
// websocket carrying JSON messages. Inbound attribute messages and announces
// are handed to a Handler; outbound operations are correlated with their
// acknowledgements by request ID.
package hoststack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"amina-zigbee/internal/codec"
	"amina-zigbee/internal/coordinator"
	"amina-zigbee/internal/metrics"
	"amina-zigbee/internal/store"
)

var (
	// ErrNotConnected is returned by Send while no host stack connection is up.
	ErrNotConnected = errors.New("hoststack: not connected")
	// ErrDisconnected is returned to requests pending when the connection drops.
	ErrDisconnected = errors.New("hoststack: connection lost")
)

// RemoteError is a negative acknowledgement from the host stack.
type RemoteError struct {
	ID      string
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("hoststack: %s rejected (request %s): %s", e.Op, e.ID, e.Message)
}

// Handler receives inbound device traffic.
type Handler interface {
	HandleAnnounce(a coordinator.Announce) (*store.Device, error)
	HandleMessage(ieee string, msg codec.Message) (codec.State, error)
	SetHostStackConnected(connected bool)
}

// Config holds host stack connection settings.
type Config struct {
	URL            string
	Token          string // sent as a bearer token when set
	RequestTimeout time.Duration
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
}

// Client is a reconnecting host stack client. It implements coordinator.Transport.
type Client struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  chan struct{} // closed when conn drops
	pending map[string]chan Inbound
}

// NewClient creates a client. Call Run to connect.
func NewClient(cfg Config, handler Handler, logger *slog.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "hoststack"),
		pending: make(map[string]chan Inbound),
	}
}

// Run connects and keeps reconnecting until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.MinBackoff
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.logger.Warn("host stack connection failed", "url", c.cfg.URL, "err", err, "retry_in", backoff)
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}
}

// Connected reports whether a connection is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) session(ctx context.Context) error {
	opts := &websocket.DialOptions{}
	if c.cfg.Token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + c.cfg.Token}}
	}
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, opts)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	closed := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.closed = closed
	c.mu.Unlock()
	metrics.HostStackConnected.Set(1)
	c.logger.Info("host stack connected", "url", c.cfg.URL)
	c.handler.SetHostStackConnected(true)

	err = c.readLoop(ctx, conn)

	c.mu.Lock()
	c.conn = nil
	close(closed)
	c.mu.Unlock()
	conn.Close(websocket.StatusNormalClosure, "")
	metrics.HostStackConnected.Set(0)
	c.logger.Info("host stack disconnected")
	c.handler.SetHostStackConnected(false)
	return err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		in, err := ParseInbound(data)
		if err != nil {
			c.logger.Warn("dropping host stack message", "err", err)
			continue
		}
		c.handle(in)
	}
}

func (c *Client) handle(in Inbound) {
	switch in.Type {
	case TypeAck:
		c.mu.Lock()
		ch, ok := c.pending[in.ID]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("ack for unknown request", "id", in.ID)
			return
		}
		select {
		case ch <- in:
		default:
		}

	case TypeDeviceAnnounce:
		_, err := c.handler.HandleAnnounce(coordinator.Announce{
			IEEE:          in.IEEE,
			Manufacturer:  in.Manufacturer,
			Model:         in.Model,
			SoftwareBuild: in.SWBuildID,
		})
		if err != nil {
			c.logger.Warn("announce", "ieee", in.IEEE, "err", err)
		}

	case TypeAttributeReport, TypeReadResponse:
		msg, err := in.Message()
		if err != nil {
			c.logger.Warn("partial attribute frame", "ieee", in.IEEE, "err", err)
		}
		if len(msg.Attributes) == 0 {
			return
		}
		if _, err := c.handler.HandleMessage(in.IEEE, msg); err != nil {
			level := slog.LevelWarn
			if errors.Is(err, coordinator.ErrUnknownDevice) || errors.Is(err, coordinator.ErrUnidentified) {
				level = slog.LevelDebug
			}
			c.logger.Log(context.Background(), level, "attribute message", "ieee", in.IEEE,
				"cluster", fmt.Sprintf("0x%04X", in.Cluster), "err", err)
		}

	default:
		c.logger.Debug("ignoring host stack message", "type", in.Type)
	}
}

// Send writes one operation and waits for its acknowledgement. Without a
// deadline on ctx the configured request timeout applies.
func (c *Client) Send(ctx context.Context, ieee string, op codec.Operation) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	c.mu.Lock()
	conn, closed := c.conn, c.closed
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	id := uuid.NewString()
	ch := make(chan Inbound, 1)
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(NewRequest(id, ieee, op))
	if err != nil {
		return fmt.Errorf("hoststack: encode %s: %w", op.Kind, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("hoststack: write %s: %w", op.Kind, err)
	}
	c.logger.Debug("request sent", "id", id, "ieee", ieee, "op", op.String())

	select {
	case ack := <-ch:
		if ack.Error != "" {
			return &RemoteError{ID: id, Op: op.String(), Message: ack.Error}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-closed:
		return ErrDisconnected
	}
}
