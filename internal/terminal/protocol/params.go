package protocol

import (
	"tradebridge/internal/models"

	"github.com/moznion/go-optional"
)

type GetBarsParams struct {
	Symbol    string           `json:"symbol"`
	Timeframe models.Timeframe `json:"timeframe"`
	Count     int              `json:"count"`
}

type SymbolParams struct {
	Symbol string `json:"symbol"`
}

type OpenPositionParams struct {
	Symbol     string           `json:"symbol"`
	Direction  models.Direction `json:"direction"`
	Volume     float64          `json:"volume"`
	StopLoss   *float64         `json:"stopLoss,omitempty"`
	TakeProfit *float64         `json:"takeProfit,omitempty"`
	Tag        string           `json:"tag"`
}

type TicketParams struct {
	Ticket int64 `json:"ticket"`
}

type ModifyPositionParams struct {
	Ticket     int64    `json:"ticket"`
	StopLoss   *float64 `json:"stopLoss,omitempty"`
	TakeProfit *float64 `json:"takeProfit,omitempty"`
}

type StrategyParams struct {
	StrategyID string `json:"strategyId"`
}

type CloseProfitableParams struct {
	MinProfit float64 `json:"minProfit"`
}

type CloseLosingParams struct {
	MaxLoss float64 `json:"maxLoss"`
}

type BarsData struct {
	Symbol    string           `json:"symbol"`
	Timeframe models.Timeframe `json:"timeframe"`
	Bars      []models.Bar     `json:"bars"`
}

type PositionsData struct {
	Positions []models.Position `json:"positions"`
}

type OpenPositionData struct {
	Position models.Position `json:"position"`
}

type CloseData struct {
	Ticket     int64   `json:"ticket"`
	ClosePrice float64 `json:"closePrice"`
	Profit     float64 `json:"profit"`
}

type TicketResult struct {
	Ticket  int64   `json:"ticket"`
	OK      bool    `json:"ok"`
	Profit  float64 `json:"profit,omitempty"`
	Message string  `json:"message,omitempty"`
}

type BatchData struct {
	Results []TicketResult `json:"results"`
}

type PingData struct {
	Version string `json:"version"`
	Time    int64  `json:"time"`
}

func NewOpenPositionParams(req models.OrderRequest) OpenPositionParams {
	return OpenPositionParams{
		Symbol:     req.Symbol,
		Direction:  req.Direction,
		Volume:     req.Volume,
		StopLoss:   optionalPtr(req.StopLoss),
		TakeProfit: optionalPtr(req.TakeProfit),
		Tag:        req.Tag(),
	}
}

func optionalPtr(o optional.Option[float64]) *float64 {
	if o.IsNone() {
		return nil
	}
	v := o.Unwrap()
	return &v
}

func PtrOptional(p *float64) optional.Option[float64] {
	if p == nil {
		return optional.None[float64]()
	}
	return optional.Some(*p)
}
