package server

import (
	"context"
	"sort"
	"tradebridge/internal/errors"
	"tradebridge/internal/models"
	"tradebridge/internal/terminal/protocol"
)

// Broker is the trading backend behind the server.
type Broker interface {
	Bars(symbol string, timeframe models.Timeframe, count int) ([]models.Bar, error)
	Price(symbol string) (models.PriceTick, error)
	Prices() []models.PriceTick
	Account() models.Account
	Positions() []models.Position
	SymbolInfo(symbol string) (models.SymbolInfo, error)
	Open(p protocol.OpenPositionParams) (models.Position, error)
	Close(ticket int64) (protocol.CloseData, error)
	Modify(p protocol.ModifyPositionParams) error
}

type handlerFunc func(ctx context.Context, req protocol.Request) (any, error)

// bind decodes the request parameters into P before calling fn.
func bind[P any](fn func(ctx context.Context, params P) (any, error)) handlerFunc {
	return func(ctx context.Context, req protocol.Request) (any, error) {
		var params P
		if err := req.Decode(&params); err != nil {
			return nil, err
		}
		return fn(ctx, params)
	}
}

func bare(fn func(ctx context.Context) (any, error)) handlerFunc {
	return func(ctx context.Context, _ protocol.Request) (any, error) {
		return fn(ctx)
	}
}

func (s *Server) handlers() map[protocol.CommandType]handlerFunc {
	return map[protocol.CommandType]handlerFunc{
		protocol.CommandGetBars:         bind(s.getBars),
		protocol.CommandGetPrice:        bind(s.getPrice),
		protocol.CommandGetAccount:      bare(s.getAccount),
		protocol.CommandGetPositions:    bare(s.getPositions),
		protocol.CommandGetSymbolInfo:   bind(s.getSymbolInfo),
		protocol.CommandOpenPosition:    bind(s.openPosition),
		protocol.CommandClosePosition:   bind(s.closePosition),
		protocol.CommandModifyPosition:  bind(s.modifyPosition),
		protocol.CommandCloseAll:        bare(s.closeAll),
		protocol.CommandCloseByStrategy: bind(s.closeByStrategy),
		protocol.CommandCloseBySymbol:   bind(s.closeBySymbol),
		protocol.CommandCloseProfitable: bind(s.closeProfitable),
		protocol.CommandCloseLosing:     bind(s.closeLosing),
		protocol.CommandPing:            bare(s.ping),
	}
}

func (s *Server) getBars(_ context.Context, p protocol.GetBarsParams) (any, error) {
	if p.Symbol == "" || !p.Timeframe.Valid() || p.Count <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "Некорректный запрос баров: %s %s %d", p.Symbol, p.Timeframe, p.Count)
	}
	bars, err := s.broker.Bars(p.Symbol, p.Timeframe, p.Count)
	if err != nil {
		return nil, err
	}
	return protocol.BarsData{Symbol: p.Symbol, Timeframe: p.Timeframe, Bars: bars}, nil
}

func (s *Server) getPrice(_ context.Context, p protocol.SymbolParams) (any, error) {
	return s.broker.Price(p.Symbol)
}

func (s *Server) getAccount(context.Context) (any, error) {
	return s.broker.Account(), nil
}

func (s *Server) getPositions(context.Context) (any, error) {
	return protocol.PositionsData{Positions: s.broker.Positions()}, nil
}

func (s *Server) getSymbolInfo(_ context.Context, p protocol.SymbolParams) (any, error) {
	return s.broker.SymbolInfo(p.Symbol)
}

func (s *Server) openPosition(_ context.Context, p protocol.OpenPositionParams) (any, error) {
	if !p.Direction.Valid() || p.Volume <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "Некорректный ордер: %s %v", p.Direction, p.Volume)
	}
	pos, err := s.broker.Open(p)
	if err != nil {
		return nil, err
	}
	return protocol.OpenPositionData{Position: pos}, nil
}

func (s *Server) closePosition(_ context.Context, p protocol.TicketParams) (any, error) {
	return s.broker.Close(p.Ticket)
}

func (s *Server) modifyPosition(_ context.Context, p protocol.ModifyPositionParams) (any, error) {
	if err := s.broker.Modify(p); err != nil {
		return nil, err
	}
	return protocol.TicketParams{Ticket: p.Ticket}, nil
}

func (s *Server) closeAll(ctx context.Context) (any, error) {
	return s.closeWhere(ctx, func(models.Position) bool { return true }), nil
}

func (s *Server) closeByStrategy(ctx context.Context, p protocol.StrategyParams) (any, error) {
	return s.closeWhere(ctx, func(pos models.Position) bool { return pos.StrategyID == p.StrategyID }), nil
}

func (s *Server) closeBySymbol(ctx context.Context, p protocol.SymbolParams) (any, error) {
	return s.closeWhere(ctx, func(pos models.Position) bool { return pos.Symbol == p.Symbol }), nil
}

func (s *Server) closeProfitable(ctx context.Context, p protocol.CloseProfitableParams) (any, error) {
	return s.closeWhere(ctx, func(pos models.Position) bool { return pos.Profit > p.MinProfit }), nil
}

func (s *Server) closeLosing(ctx context.Context, p protocol.CloseLosingParams) (any, error) {
	return s.closeWhere(ctx, func(pos models.Position) bool { return pos.Profit < -p.MaxLoss }), nil
}

// closeWhere closes every matching ticket on its own; one failure never
// stops the rest.
func (s *Server) closeWhere(ctx context.Context, match func(models.Position) bool) protocol.BatchData {
	positions := s.broker.Positions()
	sort.Slice(positions, func(i, j int) bool { return positions[i].Ticket < positions[j].Ticket })

	data := protocol.BatchData{Results: []protocol.TicketResult{}}
	for _, pos := range positions {
		if !match(pos) {
			continue
		}
		if ctx.Err() != nil {
			data.Results = append(data.Results, protocol.TicketResult{Ticket: pos.Ticket, Message: ctx.Err().Error()})
			continue
		}
		closed, err := s.broker.Close(pos.Ticket)
		if err != nil {
			data.Results = append(data.Results, protocol.TicketResult{Ticket: pos.Ticket, Message: err.Error()})
			continue
		}
		data.Results = append(data.Results, protocol.TicketResult{Ticket: pos.Ticket, OK: true, Profit: closed.Profit})
	}
	return data
}

func (s *Server) ping(context.Context) (any, error) {
	return protocol.PingData{Version: protocol.Version, Time: s.now().UnixMilli()}, nil
}

func replyCode(err error) protocol.ErrorCode {
	switch {
	case errors.HasCode(err, errors.ErrCodeNotFound):
		return protocol.CodeNotFound
	case errors.IsValidation(err):
		return protocol.CodeInvalidRequest
	case errors.HasCode(err, errors.ErrCodeUnknownCommand):
		return protocol.CodeUnknownCommand
	}
	return protocol.CodeExecution
}
