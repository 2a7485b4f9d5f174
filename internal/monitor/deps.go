package monitor

import (
	"context"
	"time"
	"tradebridge/internal/indicator"
	"tradebridge/internal/logger"
	"tradebridge/internal/models"
	"tradebridge/internal/safety"
	"tradebridge/internal/sizing"

	"github.com/moznion/go-optional"
)

type Market interface {
	GetBars(ctx context.Context, symbol string, timeframe models.Timeframe, count int) ([]models.Bar, error)
	GetPrice(ctx context.Context, symbol string) (models.PriceTick, error)
	GetAccount(ctx context.Context) (models.Account, error)
	GetSymbolInfo(ctx context.Context, symbol string) (models.SymbolInfo, error)
}

type Executor interface {
	OpenPosition(ctx context.Context, req models.OrderRequest) (models.Position, error)
	ClosePosition(ctx context.Context, ticket int64) error
	ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit optional.Option[float64]) error
}

// Positions is the read side of the position registry. While Trusted is
// false the view may be empty or stale and no new position is opened.
type Positions interface {
	Snapshot() []models.Position
	ByStrategySymbol(strategyID, symbol string) []models.Position
	CountByStrategy(strategyID string) int
	Trusted() bool
}

type Gate interface {
	Validate(req safety.Request) safety.Result
}

type Sizer interface {
	Size(in sizing.Input) (sizing.Decision, error)
}

// Deps is everything a monitor touches. Each monitor gets its own copy at
// creation; nothing is looked up ambiently.
type Deps struct {
	Market     Market
	Executor   Executor
	Positions  Positions
	Safety     Gate
	Sizer      Sizer
	Indicators *indicator.Registry
	Events     chan<- Event
	Log        *logger.Logger
	Now        func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
