package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
	"tradebridge/internal/errors"
	"tradebridge/internal/logger"
	"tradebridge/internal/terminal"
	"tradebridge/internal/terminal/protocol"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type EventType string

const (
	EventTelemetry    EventType = "telemetry"
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
)

type Event struct {
	Type      EventType
	Telemetry *protocol.Telemetry
	Err       error
	Time      time.Time
}

type Options struct {
	URL          string
	Token        string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Client consumes the telemetry channel. It only ever reads; frames are
// applied to the cache and mirrored on Events without blocking the reader.
type Client struct {
	url          string
	token        string
	log          *logger.Logger
	cache        *terminal.Cache
	dialer       *websocket.Dialer
	events       chan Event
	reconnectMin time.Duration
	reconnectMax time.Duration
	frames       atomic.Int64
	dropped      atomic.Int64
}

func New(opts Options, cache *terminal.Cache, log *logger.Logger) *Client {
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = 30 * time.Second
	}
	return &Client{
		url:          opts.URL,
		token:        opts.Token,
		log:          log,
		cache:        cache,
		dialer:       websocket.DefaultDialer,
		events:       make(chan Event, 100),
		reconnectMin: opts.ReconnectMin,
		reconnectMax: opts.ReconnectMax,
	}
}

func (c *Client) logEntry() *logrus.Entry {
	return c.log.WithComponent("telemetry").WithField("url", c.url)
}

func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) Frames() int64 {
	return c.frames.Load()
}

// Run keeps the stream connected until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.reconnectMin

	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logEntry().WithError(err).WithField("backoff", backoff).Warn("Не удалось подключиться к потоку телеметрии.")
			if !c.sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = c.nextBackoff(backoff)
			continue
		}

		backoff = c.reconnectMin
		c.logEntry().Info("Поток телеметрии подключён.")
		c.emit(Event{Type: EventConnected})

		err = c.readLoop(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logEntry().WithError(err).Warn("Поток телеметрии прерван.")
		c.emit(Event{Type: EventDisconnected, Err: err})

		if !c.sleep(ctx, backoff) {
			return ctx.Err()
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set(protocol.AuthHeader, c.token)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, errors.Wrap(errors.ErrCodeAuthFailed, "Терминал отклонил токен телеметрии", err)
		}
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, errors.Wrap(errors.ErrCodeLockedOut, "Терминал заблокировал подключение", err)
		}
		return nil, errors.Wrap(errors.ErrCodeConnectivity, "Не удалось подключиться к телеметрии", err)
	}
	conn.SetReadLimit(2 << 20)
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(errors.ErrCodeConnectivity, "Ошибка чтения телеметрии", err)
		}

		var frame protocol.Telemetry
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logEntry().WithError(err).Warn("Не удалось разобрать кадр телеметрии.")
			continue
		}

		c.cache.Update(frame)
		c.frames.Add(1)
		c.emit(Event{Type: EventTelemetry, Telemetry: &frame})
	}
}

// emit never blocks; a slow consumer loses frames, which the next push
// supersedes anyway.
func (c *Client) emit(ev Event) {
	ev.Time = time.Now()
	select {
	case c.events <- ev:
	default:
		if c.dropped.Add(1)%100 == 1 {
			c.logEntry().Debug("Очередь событий телеметрии переполнена.")
		}
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (c *Client) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > c.reconnectMax {
		return c.reconnectMax
	}
	return next
}
