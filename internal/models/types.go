package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/moznion/go-optional"
)

type Direction string
type Timeframe string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"

	TimeframeM1  Timeframe = "M1"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeM30 Timeframe = "M30"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
	TimeframeW1  Timeframe = "W1"
	TimeframeMN1 Timeframe = "MN1"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TimeframeM1:  time.Minute,
	TimeframeM5:  5 * time.Minute,
	TimeframeM15: 15 * time.Minute,
	TimeframeM30: 30 * time.Minute,
	TimeframeH1:  time.Hour,
	TimeframeH4:  4 * time.Hour,
	TimeframeD1:  24 * time.Hour,
	TimeframeW1:  7 * 24 * time.Hour,
	TimeframeMN1: 30 * 24 * time.Hour,
}

func (t Timeframe) Valid() bool {
	_, ok := timeframeDurations[t]
	return ok
}

func (t Timeframe) Duration() time.Duration {
	return timeframeDurations[t]
}

func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

type PriceTick struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

func (p PriceTick) Spread() float64 {
	return p.Ask - p.Bid
}

func (p PriceTick) Mid() float64 {
	return (p.Ask + p.Bid) / 2
}

// EntryPrice is the side of the book a market order fills against.
func (p PriceTick) EntryPrice(dir Direction) float64 {
	if dir == DirectionLong {
		return p.Ask
	}
	return p.Bid
}

type Account struct {
	Login       int64   `json:"login"`
	Currency    string  `json:"currency"`
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	Margin      float64 `json:"margin"`
	FreeMargin  float64 `json:"freeMargin"`
	MarginLevel float64 `json:"marginLevel"`
	DailyPL     float64 `json:"dailyPL"`
}

type SymbolInfo struct {
	Symbol       string  `json:"symbol" yaml:"symbol"`
	Point        float64 `json:"point" yaml:"point"`
	Digits       int     `json:"digits" yaml:"digits"`
	VolumeMin    float64 `json:"volumeMin" yaml:"volume_min"`
	VolumeMax    float64 `json:"volumeMax" yaml:"volume_max"`
	VolumeStep   float64 `json:"volumeStep" yaml:"volume_step"`
	PointValue   float64 `json:"pointValue" yaml:"point_value"`
	MarginPerLot float64 `json:"marginPerLot" yaml:"margin_per_lot"`
}

// Pip is ten points on 3/5-digit quotes and one point otherwise.
func (s SymbolInfo) Pip() float64 {
	if s.Digits == 3 || s.Digits == 5 {
		return s.Point * 10
	}
	return s.Point
}

func (s SymbolInfo) Round(price float64) float64 {
	pow := math.Pow(10, float64(s.Digits))
	return math.Round(price*pow) / pow
}

type Position struct {
	Ticket     int64     `json:"ticket"`
	StrategyID string    `json:"strategyId"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Volume     float64   `json:"volume"`
	OpenPrice  float64   `json:"openPrice"`
	StopLoss   float64   `json:"stopLoss,omitempty"`
	TakeProfit float64   `json:"takeProfit,omitempty"`
	Profit     float64   `json:"profit"`
	OpenTime   time.Time `json:"openTime"`
	Tag        string    `json:"tag,omitempty"`
}

type OrderRequest struct {
	StrategyID string
	Symbol     string
	Direction  Direction
	Volume     float64
	StopLoss   optional.Option[float64]
	TakeProfit optional.Option[float64]
}

func (o OrderRequest) Tag() string {
	return Tag(o.StrategyID, o.Symbol, o.Direction)
}

type Signal struct {
	StrategyID string
	Symbol     string
	Direction  Direction
	Confidence float64
	Price      float64
	ATR        float64
	StopLoss   optional.Option[float64]
	TakeProfit optional.Option[float64]
	Time       time.Time
}

const tagSeparator = ":"

func Tag(strategyID, symbol string, dir Direction) string {
	return strings.Join([]string{strategyID, symbol, string(dir)}, tagSeparator)
}

func ParseTag(tag string) (strategyID, symbol string, dir Direction, err error) {
	parts := strings.Split(tag, tagSeparator)
	if len(parts) != 3 || parts[0] == "" {
		return "", "", "", fmt.Errorf("Некорректный тег ордера: %q", tag)
	}
	dir = Direction(parts[2])
	if !dir.Valid() {
		return "", "", "", fmt.Errorf("Некорректное направление в теге: %q", tag)
	}
	return parts[0], parts[1], dir, nil
}

// OwnerFromTag returns the strategy id carried on an order tag, or "" for
// positions opened outside the bridge.
func OwnerFromTag(tag string) string {
	id, _, _, err := ParseTag(tag)
	if err != nil {
		return ""
	}
	return id
}
