package platform

import (
	"context"
	"time"
	"tradebridge/internal/models"
)

type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

type TradeOpened struct {
	ExecutorID string           `json:"executorId"`
	StrategyID string           `json:"strategyId"`
	Ticket     int64            `json:"ticket"`
	Symbol     string           `json:"symbol"`
	Type       models.Direction `json:"type"`
	Lots       float64          `json:"lots"`
	OpenPrice  float64          `json:"openPrice"`
	StopLoss   float64          `json:"stopLoss,omitempty"`
	TakeProfit float64          `json:"takeProfit,omitempty"`
	OpenTime   time.Time        `json:"openTime"`
}

type TradeClosed struct {
	ExecutorID string    `json:"executorId"`
	StrategyID string    `json:"strategyId"`
	Ticket     int64     `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Profit     float64   `json:"profit"`
	CloseTime  time.Time `json:"closeTime"`
}

type Alert struct {
	ExecutorID string     `json:"executorId"`
	Level      AlertLevel `json:"level"`
	Kind       string     `json:"kind"`
	StrategyID string     `json:"strategyId,omitempty"`
	Symbol     string     `json:"symbol,omitempty"`
	Message    string     `json:"message"`
	Time       time.Time  `json:"time"`
}

// Reporter sends execution facts to the operator platform.
type Reporter interface {
	ReportTrade(ctx context.Context, trade TradeOpened) error
	ReportTradeClosed(ctx context.Context, trade TradeClosed) error
	ReportAlert(ctx context.Context, alert Alert) error
}

func Opened(pos models.Position) TradeOpened {
	return TradeOpened{
		StrategyID: pos.StrategyID,
		Ticket:     pos.Ticket,
		Symbol:     pos.Symbol,
		Type:       pos.Direction,
		Lots:       pos.Volume,
		OpenPrice:  pos.OpenPrice,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		OpenTime:   pos.OpenTime,
	}
}

// Closed uses the last known profit of the position; the terminal does
// not report a close price on removal.
func Closed(pos models.Position, at time.Time) TradeClosed {
	return TradeClosed{
		StrategyID: pos.StrategyID,
		Ticket:     pos.Ticket,
		Symbol:     pos.Symbol,
		Profit:     pos.Profit,
		CloseTime:  at,
	}
}

// Nop is used when no platform is configured.
type Nop struct{}

func (Nop) ReportTrade(context.Context, TradeOpened) error { return nil }
func (Nop) ReportTradeClosed(context.Context, TradeClosed) error { return nil }
func (Nop) ReportAlert(context.Context, Alert) error { return nil }
