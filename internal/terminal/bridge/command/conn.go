package command

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"
	"tradebridge/internal/errors"
	"tradebridge/internal/logger"
	"tradebridge/internal/terminal/protocol"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Options struct {
	URL          string
	Token        string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// FaultLimit is how many unparseable replies in a row are tolerated
	// before the connection is treated as desynchronized.
	FaultLimit int
}

// Conn is the request/reply command channel. It carries exactly one request
// at a time and never reads anything that was not asked for.
type Conn struct {
	url    string
	token  string
	log    *logger.Logger
	dialer *websocket.Dialer
	now    func() time.Time

	mu           sync.Mutex
	conn         *websocket.Conn
	backoff      time.Duration
	nextDial     time.Time
	reconnectMin time.Duration
	reconnectMax time.Duration
	faults       int
	faultLimit   int
}

func New(opts Options, log *logger.Logger) *Conn {
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = 30 * time.Second
	}
	if opts.FaultLimit <= 0 {
		opts.FaultLimit = 3
	}
	return &Conn{
		url:          opts.URL,
		token:        opts.Token,
		log:          log,
		dialer:       websocket.DefaultDialer,
		now:          time.Now,
		reconnectMin: opts.ReconnectMin,
		reconnectMax: opts.ReconnectMax,
		faultLimit:   opts.FaultLimit,
	}
}

func (c *Conn) logEntry() *logrus.Entry {
	return c.log.WithComponent("command_conn").WithField("url", c.url)
}

// Send writes one request and waits for its reply. Any transport failure or
// a reply for a different request drops the connection, since a late reply
// would otherwise be read as the answer to the next request.
func (c *Conn) Send(ctx context.Context, req protocol.Request) (protocol.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensure(ctx); err != nil {
		return protocol.Reply{}, err
	}
	if req.AuthToken == "" {
		req.AuthToken = c.token
	}

	conn := c.conn
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
		_ = conn.SetReadDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteJSON(req); err != nil {
		c.drop()
		return protocol.Reply{}, c.transportErr(ctx, err, "Не удалось отправить команду")
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		c.drop()
		return protocol.Reply{}, c.transportErr(ctx, err, "Не удалось получить ответ")
	}

	var reply protocol.Reply
	if err := json.Unmarshal(data, &reply); err != nil {
		c.faults++
		c.logEntry().WithError(err).WithField("faults", c.faults).Warn("Не удалось разобрать ответ терминала.")
		if c.faults >= c.faultLimit {
			c.drop()
		}
		return protocol.Reply{}, errors.Wrap(errors.ErrCodeMalformedReply, "Некорректный ответ терминала", err)
	}
	if reply.RequestID != "" && reply.RequestID != req.RequestID {
		c.drop()
		return protocol.Reply{}, errors.Newf(errors.ErrCodeRequestMismatch, "Ответ на чужой запрос: ждали %s, получили %s", req.RequestID, reply.RequestID)
	}

	c.faults = 0
	return reply, nil
}

func (c *Conn) ensure(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	if wait := c.nextDial.Sub(c.now()); wait > 0 {
		select {
		case <-ctx.Done():
			return c.transportErr(ctx, ctx.Err(), "Нет соединения с терминалом")
		case <-time.After(wait):
		}
	}

	header := http.Header{}
	header.Set(protocol.AuthHeader, c.token)

	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		c.backoff = c.nextBackoff(c.backoff)
		c.nextDial = c.now().Add(c.backoff)
		c.logEntry().WithError(err).WithField("backoff", c.backoff).Warn("Не удалось подключиться к командному каналу.")
		return c.transportErr(ctx, err, "Не удалось подключиться к терминалу")
	}

	conn.SetReadLimit(2 << 20)
	c.conn = conn
	c.backoff = 0
	c.nextDial = time.Time{}
	c.faults = 0
	c.logEntry().Info("Командный канал подключён.")
	return nil
}

func (c *Conn) drop() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.faults = 0
	c.logEntry().Warn("Командный канал сброшен.")
}

func (c *Conn) transportErr(ctx context.Context, err error, msg string) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return errors.Wrap(errors.ErrCodeTimeout, msg, err)
	case context.Canceled:
		return errors.Wrap(errors.ErrCodeCancelled, msg, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrap(errors.ErrCodeTimeout, msg, err)
	}
	return errors.Wrap(errors.ErrCodeConnectivity, msg, err)
}

func (c *Conn) nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return c.reconnectMin
	}
	next := current * 2
	if next > c.reconnectMax {
		return c.reconnectMax
	}
	return next
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
