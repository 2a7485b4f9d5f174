package bridge

import (
	"context"
	"sync"
	"time"
	"tradebridge/internal/dispatch"
	"tradebridge/internal/errors"
	"tradebridge/internal/logger"
	"tradebridge/internal/models"
	"tradebridge/internal/terminal"
	"tradebridge/internal/terminal/protocol"

	"github.com/moznion/go-optional"
	"github.com/sirupsen/logrus"
)

type Submitter interface {
	Submit(ctx context.Context, cmd dispatch.Command) (dispatch.Command, error)
}

type Options struct {
	// PriceMaxAge bounds how old a telemetry snapshot may be before reads
	// fall back to the command channel.
	PriceMaxAge     time.Duration
	ProtocolVersion string
}

// Client is the typed face of the remote terminal. Reads prefer the
// telemetry cache; everything else goes through the dispatcher queue.
type Client struct {
	submitter Submitter
	cache     *terminal.Cache
	log       *logger.Logger
	maxAge    time.Duration
	version   string

	mu      sync.RWMutex
	symbols map[string]models.SymbolInfo
}

func New(submitter Submitter, cache *terminal.Cache, log *logger.Logger, opts Options) *Client {
	if opts.PriceMaxAge <= 0 {
		opts.PriceMaxAge = 3 * time.Second
	}
	if opts.ProtocolVersion == "" {
		opts.ProtocolVersion = protocol.Version
	}
	return &Client{
		submitter: submitter,
		cache:     cache,
		log:       log,
		maxAge:    opts.PriceMaxAge,
		version:   opts.ProtocolVersion,
		symbols:   make(map[string]models.SymbolInfo),
	}
}

func (c *Client) logEntry() *logrus.Entry {
	return c.log.WithComponent("terminal_client")
}

func (c *Client) call(ctx context.Context, commandType protocol.CommandType, params any, out any) error {
	cmd, err := dispatch.NewCommand(commandType, params)
	if err != nil {
		return err
	}
	res, err := c.submitter.Submit(ctx, cmd)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return res.Reply.Decode(out)
}

// GetBars asks for exactly the requested window; the terminal must not
// substitute its own symbol or timeframe. A longer reply is trimmed to the
// newest count bars, a shorter one is returned as is and logged.
func (c *Client) GetBars(ctx context.Context, symbol string, timeframe models.Timeframe, count int) ([]models.Bar, error) {
	if symbol == "" || !timeframe.Valid() || count <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "Некорректный запрос баров: %s %s %d", symbol, timeframe, count)
	}

	var data protocol.BarsData
	params := protocol.GetBarsParams{Symbol: symbol, Timeframe: timeframe, Count: count}
	if err := c.call(ctx, protocol.CommandGetBars, params, &data); err != nil {
		return nil, err
	}
	if data.Symbol != "" && data.Symbol != symbol || data.Timeframe != "" && data.Timeframe != timeframe {
		return nil, errors.Newf(errors.ErrCodeRequestMismatch, "Терминал вернул бары %s %s вместо %s %s", data.Symbol, data.Timeframe, symbol, timeframe)
	}
	switch {
	case len(data.Bars) > count:
		data.Bars = data.Bars[len(data.Bars)-count:]
	case len(data.Bars) < count:
		// short history is usable, indicators without enough bars report no data
		c.logEntry().WithFields(logrus.Fields{
			"symbol":    symbol,
			"timeframe": timeframe,
			"requested": count,
			"received":  len(data.Bars),
		}).Warn("Терминал вернул меньше баров, чем запрошено.")
	}
	return data.Bars, nil
}

func (c *Client) GetPrice(ctx context.Context, symbol string) (models.PriceTick, error) {
	if c.cache != nil && c.cache.Fresh(c.maxAge) {
		if tick, ok := c.cache.Price(symbol); ok {
			return tick, nil
		}
	}

	var tick models.PriceTick
	if err := c.call(ctx, protocol.CommandGetPrice, protocol.SymbolParams{Symbol: symbol}, &tick); err != nil {
		return models.PriceTick{}, err
	}
	return tick, nil
}

func (c *Client) GetAccount(ctx context.Context) (models.Account, error) {
	if c.cache != nil && c.cache.Fresh(c.maxAge) {
		if acc, ok := c.cache.Account(); ok {
			return acc, nil
		}
	}

	var acc models.Account
	if err := c.call(ctx, protocol.CommandGetAccount, nil, &acc); err != nil {
		return models.Account{}, err
	}
	return acc, nil
}

func (c *Client) GetPositions(ctx context.Context) ([]models.Position, error) {
	var data protocol.PositionsData
	if err := c.call(ctx, protocol.CommandGetPositions, nil, &data); err != nil {
		return nil, err
	}
	for i := range data.Positions {
		if data.Positions[i].StrategyID == "" {
			data.Positions[i].StrategyID = models.OwnerFromTag(data.Positions[i].Tag)
		}
	}
	return data.Positions, nil
}

// GetSymbolInfo is cached for the process lifetime; contract specs do not
// change while the terminal is up.
func (c *Client) GetSymbolInfo(ctx context.Context, symbol string) (models.SymbolInfo, error) {
	c.mu.RLock()
	info, ok := c.symbols[symbol]
	c.mu.RUnlock()
	if ok {
		return info, nil
	}

	if err := c.call(ctx, protocol.CommandGetSymbolInfo, protocol.SymbolParams{Symbol: symbol}, &info); err != nil {
		return models.SymbolInfo{}, err
	}

	c.mu.Lock()
	c.symbols[symbol] = info
	c.mu.Unlock()
	return info, nil
}

func (c *Client) OpenPosition(ctx context.Context, req models.OrderRequest) (models.Position, error) {
	var data protocol.OpenPositionData
	if err := c.call(ctx, protocol.CommandOpenPosition, protocol.NewOpenPositionParams(req), &data); err != nil {
		return models.Position{}, err
	}

	pos := data.Position
	if pos.StrategyID == "" {
		pos.StrategyID = req.StrategyID
	}
	c.logEntry().WithFields(logrus.Fields{
		"ticket":    pos.Ticket,
		"symbol":    pos.Symbol,
		"direction": pos.Direction,
		"volume":    pos.Volume,
	}).Info("Позиция открыта.")
	return pos, nil
}

func (c *Client) ClosePosition(ctx context.Context, ticket int64) error {
	_, err := c.ClosePositionResult(ctx, ticket)
	return err
}

func (c *Client) ClosePositionResult(ctx context.Context, ticket int64) (protocol.CloseData, error) {
	var data protocol.CloseData
	if err := c.call(ctx, protocol.CommandClosePosition, protocol.TicketParams{Ticket: ticket}, &data); err != nil {
		return protocol.CloseData{}, err
	}
	c.logEntry().WithField("ticket", ticket).WithField("profit", data.Profit).Info("Позиция закрыта.")
	return data, nil
}

func (c *Client) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit optional.Option[float64]) error {
	params := protocol.ModifyPositionParams{Ticket: ticket}
	if stopLoss.IsSome() {
		v := stopLoss.Unwrap()
		params.StopLoss = &v
	}
	if takeProfit.IsSome() {
		v := takeProfit.Unwrap()
		params.TakeProfit = &v
	}
	return c.call(ctx, protocol.CommandModifyPosition, params, nil)
}

func (c *Client) CloseAll(ctx context.Context) ([]protocol.TicketResult, error) {
	return c.batch(ctx, protocol.CommandCloseAll, nil)
}

func (c *Client) CloseByStrategy(ctx context.Context, strategyID string) ([]protocol.TicketResult, error) {
	return c.batch(ctx, protocol.CommandCloseByStrategy, protocol.StrategyParams{StrategyID: strategyID})
}

func (c *Client) CloseBySymbol(ctx context.Context, symbol string) ([]protocol.TicketResult, error) {
	return c.batch(ctx, protocol.CommandCloseBySymbol, protocol.SymbolParams{Symbol: symbol})
}

func (c *Client) CloseProfitable(ctx context.Context, minProfit float64) ([]protocol.TicketResult, error) {
	return c.batch(ctx, protocol.CommandCloseProfitable, protocol.CloseProfitableParams{MinProfit: minProfit})
}

func (c *Client) CloseLosing(ctx context.Context, maxLoss float64) ([]protocol.TicketResult, error) {
	return c.batch(ctx, protocol.CommandCloseLosing, protocol.CloseLosingParams{MaxLoss: maxLoss})
}

func (c *Client) batch(ctx context.Context, commandType protocol.CommandType, params any) ([]protocol.TicketResult, error) {
	var data protocol.BatchData
	if err := c.call(ctx, commandType, params, &data); err != nil {
		return nil, err
	}
	failed := 0
	for _, r := range data.Results {
		if !r.OK {
			failed++
		}
	}
	c.logEntry().WithFields(logrus.Fields{
		"command": commandType,
		"total":   len(data.Results),
		"failed":  failed,
	}).Info("Пакетное закрытие выполнено.")
	return data.Results, nil
}

// Ping checks liveness and that the terminal speaks a compatible protocol.
func (c *Client) Ping(ctx context.Context) (protocol.PingData, error) {
	var data protocol.PingData
	if err := c.call(ctx, protocol.CommandPing, nil, &data); err != nil {
		return protocol.PingData{}, err
	}
	if err := protocol.CheckVersion(c.version, data.Version); err != nil {
		return data, err
	}
	return data, nil
}
