package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"
	"tradebridge/internal/errors"
	"tradebridge/internal/logger"
	"tradebridge/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type CommandType string

const (
	StartStrategy   CommandType = "START_STRATEGY"
	StopStrategy    CommandType = "STOP_STRATEGY"
	EmergencyStop   CommandType = "EMERGENCY_STOP"
	ClearKillSwitch CommandType = "CLEAR_KILL_SWITCH"
	CloseAll        CommandType = "CLOSE_ALL"
	CloseByStrategy CommandType = "CLOSE_BY_STRATEGY"
	CloseBySymbol   CommandType = "CLOSE_BY_SYMBOL"
	CloseProfitable CommandType = "CLOSE_PROFITABLE"
	CloseLosing     CommandType = "CLOSE_LOSING"
	CloseOldest     CommandType = "CLOSE_OLDEST"
	CloseNewest     CommandType = "CLOSE_NEWEST"
)

// Command is an operator instruction for the supervisor. Platform events
// arrive as {type, payload}; fields may also be given at the top level.
type Command struct {
	Type       CommandType      `json:"type" validate:"required,oneof=START_STRATEGY STOP_STRATEGY EMERGENCY_STOP CLEAR_KILL_SWITCH CLOSE_ALL CLOSE_BY_STRATEGY CLOSE_BY_SYMBOL CLOSE_PROFITABLE CLOSE_LOSING CLOSE_OLDEST CLOSE_NEWEST"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
	StrategyID string           `json:"strategyId,omitempty" validate:"required_if=Type STOP_STRATEGY,required_if=Type CLOSE_BY_STRATEGY"`
	Strategy   *models.Strategy `json:"strategy,omitempty" validate:"required_if=Type START_STRATEGY"`
	Symbol     string           `json:"symbol,omitempty" validate:"required_if=Type CLOSE_BY_SYMBOL"`
	MinProfit  float64          `json:"minProfit,omitempty"`
	MaxLoss    float64          `json:"maxLoss,omitempty" validate:"gte=0"`
	Count      int              `json:"count,omitempty" validate:"gte=0,required_if=Type CLOSE_OLDEST,required_if=Type CLOSE_NEWEST"`
	Reason     string           `json:"reason,omitempty"`
	Received   time.Time        `json:"-"`
}

type payload struct {
	StrategyID string           `json:"strategyId"`
	Strategy   *models.Strategy `json:"strategy"`
	Symbol     string           `json:"symbol"`
	MinProfit  float64          `json:"minProfit"`
	MaxLoss    float64          `json:"maxLoss"`
	Count      int              `json:"count"`
	Reason     string           `json:"reason"`
}

var validate = validator.New()

func Decode(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, errors.Wrap(errors.ErrCodeInvalidParameter, "Некорректная управляющая команда", err)
	}
	if err := cmd.bindPayload(); err != nil {
		return Command{}, err
	}
	if err := validate.Struct(cmd); err != nil {
		return Command{}, errors.Wrap(errors.ErrCodeInvalidParameter, "Управляющая команда не прошла проверку", err)
	}
	if cmd.Strategy != nil {
		if err := cmd.Strategy.Validate(); err != nil {
			return Command{}, errors.Wrap(errors.ErrCodeInvalidParameter, "Некорректная стратегия в команде", err)
		}
		if cmd.StrategyID == "" {
			cmd.StrategyID = cmd.Strategy.ID
		}
	}
	cmd.Received = time.Now()
	return cmd, nil
}

// bindPayload fills empty top-level fields from payload. A START_STRATEGY
// payload may also be the strategy itself.
func (c *Command) bindPayload() error {
	if len(c.Payload) == 0 || string(c.Payload) == "null" {
		return nil
	}
	var p payload
	if err := json.Unmarshal(c.Payload, &p); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "Некорректный payload управляющей команды", err)
	}
	if p.Strategy == nil && c.Type == StartStrategy {
		var strategy models.Strategy
		if err := json.Unmarshal(c.Payload, &strategy); err == nil && strategy.ID != "" {
			p.Strategy = &strategy
		}
	}

	if c.StrategyID == "" {
		c.StrategyID = p.StrategyID
	}
	if c.Strategy == nil {
		c.Strategy = p.Strategy
	}
	if c.Symbol == "" {
		c.Symbol = p.Symbol
	}
	if c.MinProfit == 0 {
		c.MinProfit = p.MinProfit
	}
	if c.MaxLoss == 0 {
		c.MaxLoss = p.MaxLoss
	}
	if c.Count == 0 {
		c.Count = p.Count
	}
	if c.Reason == "" {
		c.Reason = p.Reason
	}
	return nil
}

type Source interface {
	Commands() <-chan Command
}

// Local is an in-process source, used when no broker is configured and for
// signals raised by the process itself.
type Local struct {
	ch chan Command
}

func NewLocal(buffer int) *Local {
	return &Local{ch: make(chan Command, buffer)}
}

func (l *Local) Commands() <-chan Command {
	return l.ch
}

func (l *Local) Send(ctx context.Context, cmd Command) error {
	if cmd.Received.IsZero() {
		cmd.Received = time.Now()
	}
	select {
	case l.ch <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscriber receives operator commands from a NATS subject. Requests that
// carry a reply subject are acknowledged.
type Subscriber struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	log     *logger.Logger
	out     chan Command
	stop    chan struct{}
	once    sync.Once
}

func Connect(url, subject string, log *logger.Logger) (*Subscriber, error) {
	conn, err := nats.Connect(url,
		nats.Name("tradebridge"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConnectivity, "Не удалось подключиться к NATS", err)
	}
	return &Subscriber{
		conn:    conn,
		subject: subject,
		log:     log,
		out:     make(chan Command, 32),
		stop:    make(chan struct{}),
	}, nil
}

func (s *Subscriber) logEntry() *logrus.Entry {
	return s.log.WithComponent("relay").WithField("subject", s.subject)
}

func (s *Subscriber) Start() error {
	sub, err := s.conn.Subscribe(s.subject, s.handle)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConnectivity, "Не удалось подписаться на управляющие команды", err)
	}
	s.sub = sub
	s.logEntry().Info("Подписка на управляющие команды активна.")
	return nil
}

func (s *Subscriber) handle(msg *nats.Msg) {
	cmd, err := Decode(msg.Data)
	if err != nil {
		s.logEntry().WithError(err).Warn("Управляющая команда отклонена.")
		s.respond(msg, err)
		return
	}

	select {
	case s.out <- cmd:
		s.logEntry().WithField("type", cmd.Type).Info("Управляющая команда принята.")
		s.respond(msg, nil)
	case <-s.stop:
	}
}

func (s *Subscriber) respond(msg *nats.Msg, err error) {
	if msg.Reply == "" {
		return
	}
	ack := map[string]any{"ok": err == nil}
	if err != nil {
		ack["error"] = err.Error()
	}
	data, _ := json.Marshal(ack)
	if rerr := msg.Respond(data); rerr != nil {
		s.logEntry().WithError(rerr).Warn("Не удалось ответить на команду.")
	}
}

func (s *Subscriber) Commands() <-chan Command {
	return s.out
}

func (s *Subscriber) Close() error {
	s.once.Do(func() { close(s.stop) })
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	s.conn.Close()
	return nil
}
