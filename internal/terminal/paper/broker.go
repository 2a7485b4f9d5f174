package paper

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
	"tradebridge/internal/errors"
	"tradebridge/internal/models"
	"tradebridge/internal/terminal/protocol"

	"github.com/shopspring/decimal"
)

type market struct {
	info   models.SymbolInfo
	mid    float64
	spread float64
}

// Broker is an in-memory terminal with deterministic prices. It backs the
// paper terminal server and end-to-end tests.
type Broker struct {
	mu        sync.Mutex
	markets   map[string]*market
	positions map[int64]models.Position
	next      int64
	login     int64
	currency  string
	balance   decimal.Decimal
	dailyPL   decimal.Decimal
	rng       *rand.Rand
	now       func() time.Time
}

func NewBroker(catalog Catalog, balance float64, currency string) *Broker {
	b := &Broker{
		markets:   make(map[string]*market),
		positions: make(map[int64]models.Position),
		next:      1000,
		login:     100001,
		currency:  currency,
		balance:   decimal.NewFromFloat(balance),
		rng:       rand.New(rand.NewPCG(1, 2)),
		now:       time.Now,
	}
	for _, in := range catalog.Instruments {
		b.markets[in.Symbol] = &market{
			info:   in.SymbolInfo,
			mid:    in.Price,
			spread: in.SpreadPoints * in.Point,
		}
	}
	return b
}

func (b *Broker) market(symbol string) (*market, error) {
	m, ok := b.markets[symbol]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeNotFound, "Неизвестный инструмент %s", symbol)
	}
	return m, nil
}

func (m *market) tick(now time.Time) models.PriceTick {
	half := m.spread / 2
	return models.PriceTick{
		Symbol: m.info.Symbol,
		Bid:    m.info.Round(m.mid - half),
		Ask:    m.info.Round(m.mid + half),
		Time:   now,
	}
}

// SetPrice moves the mid price of a symbol.
func (b *Broker) SetPrice(symbol string, mid float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, err := b.market(symbol)
	if err != nil {
		return err
	}
	m.mid = mid
	return nil
}

// Step walks every price by a few points and closes positions whose stop
// loss or take profit has been touched.
func (b *Broker) Step() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, m := range b.markets {
		m.mid += b.rng.NormFloat64() * m.info.Point * 5
	}

	now := b.now()
	for ticket, pos := range b.positions {
		tick := b.markets[pos.Symbol].tick(now)
		exit := exitPrice(tick, pos.Direction)
		hitSL := pos.StopLoss > 0 && (pos.Direction == models.DirectionLong && exit <= pos.StopLoss || pos.Direction == models.DirectionShort && exit >= pos.StopLoss)
		hitTP := pos.TakeProfit > 0 && (pos.Direction == models.DirectionLong && exit >= pos.TakeProfit || pos.Direction == models.DirectionShort && exit <= pos.TakeProfit)
		if hitSL || hitTP {
			b.closeLocked(ticket)
		}
	}
}

func (b *Broker) Price(symbol string) (models.PriceTick, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, err := b.market(symbol)
	if err != nil {
		return models.PriceTick{}, err
	}
	return m.tick(b.now()), nil
}

func (b *Broker) Prices() []models.PriceTick {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	out := make([]models.PriceTick, 0, len(b.markets))
	for _, m := range b.markets {
		out = append(out, m.tick(now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (b *Broker) SymbolInfo(symbol string) (models.SymbolInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, err := b.market(symbol)
	if err != nil {
		return models.SymbolInfo{}, err
	}
	return m.info, nil
}

// Bars returns exactly count bars for symbol and timeframe, ending at the
// current bar and at the current price. The same request within one bar
// yields the same series.
func (b *Broker) Bars(symbol string, timeframe models.Timeframe, count int) ([]models.Bar, error) {
	if !timeframe.Valid() || count <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "Некорректный запрос баров: %s %d", timeframe, count)
	}

	b.mu.Lock()
	m, err := b.market(symbol)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	info, mid := m.info, m.mid
	now := b.now()
	b.mu.Unlock()

	step := timeframe.Duration()
	last := now.Truncate(step)

	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol + "|" + string(timeframe)))
	rng := rand.New(rand.NewPCG(h.Sum64(), uint64(last.Unix())))

	sigma := mid * 0.0006 * math.Sqrt(step.Minutes()/15)
	closes := make([]float64, count)
	price := 0.0
	for i := range closes {
		price += rng.NormFloat64() * sigma
		closes[i] = price
	}
	shift := mid - closes[count-1]

	bars := make([]models.Bar, count)
	prev := closes[0] + shift - rng.NormFloat64()*sigma
	for i := range bars {
		cl := closes[i] + shift
		op := prev
		wick := math.Abs(rng.NormFloat64()) * sigma / 2
		bars[i] = models.Bar{
			Time:   last.Add(-time.Duration(count-1-i) * step),
			Open:   info.Round(op),
			High:   info.Round(math.Max(op, cl) + wick),
			Low:    info.Round(math.Min(op, cl) - wick),
			Close:  info.Round(cl),
			Volume: float64(100 + rng.IntN(900)),
		}
		prev = cl
	}
	return bars, nil
}

func (b *Broker) Account() models.Account {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	floating := decimal.Zero
	margin := decimal.Zero
	for _, pos := range b.positions {
		m := b.markets[pos.Symbol]
		floating = floating.Add(profit(m.info, pos, exitPrice(m.tick(now), pos.Direction)))
		margin = margin.Add(decimal.NewFromFloat(pos.Volume).Mul(decimal.NewFromFloat(m.info.MarginPerLot)))
	}

	equity := b.balance.Add(floating)
	acc := models.Account{
		Login:      b.login,
		Currency:   b.currency,
		Balance:    b.balance.Round(2).InexactFloat64(),
		Equity:     equity.Round(2).InexactFloat64(),
		Margin:     margin.Round(2).InexactFloat64(),
		FreeMargin: equity.Sub(margin).Round(2).InexactFloat64(),
		DailyPL:    b.dailyPL.Add(floating).Round(2).InexactFloat64(),
	}
	if margin.IsPositive() {
		acc.MarginLevel = equity.Div(margin).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	return acc
}

func (b *Broker) Positions() []models.Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	out := make([]models.Position, 0, len(b.positions))
	for _, pos := range b.positions {
		m := b.markets[pos.Symbol]
		pos.Profit = profit(m.info, pos, exitPrice(m.tick(now), pos.Direction)).InexactFloat64()
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out
}

func (b *Broker) Open(p protocol.OpenPositionParams) (models.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, err := b.market(p.Symbol)
	if err != nil {
		return models.Position{}, err
	}
	if p.Volume < m.info.VolumeMin || p.Volume > m.info.VolumeMax {
		return models.Position{}, errors.Newf(errors.ErrCodeInvalidParameter, "Объём %v вне диапазона %v..%v", p.Volume, m.info.VolumeMin, m.info.VolumeMax)
	}

	required := decimal.NewFromFloat(p.Volume).Mul(decimal.NewFromFloat(m.info.MarginPerLot))
	if b.freeMarginLocked().LessThan(required) {
		return models.Position{}, errors.New(errors.ErrCodeExecution, "Недостаточно свободной маржи")
	}

	now := b.now()
	b.next++
	pos := models.Position{
		Ticket:     b.next,
		StrategyID: models.OwnerFromTag(p.Tag),
		Symbol:     p.Symbol,
		Direction:  p.Direction,
		Volume:     p.Volume,
		OpenPrice:  m.tick(now).EntryPrice(p.Direction),
		OpenTime:   now,
		Tag:        p.Tag,
	}
	if p.StopLoss != nil {
		pos.StopLoss = *p.StopLoss
	}
	if p.TakeProfit != nil {
		pos.TakeProfit = *p.TakeProfit
	}
	b.positions[pos.Ticket] = pos
	return pos, nil
}

func (b *Broker) Close(ticket int64) (protocol.CloseData, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked(ticket)
}

func (b *Broker) closeLocked(ticket int64) (protocol.CloseData, error) {
	pos, ok := b.positions[ticket]
	if !ok {
		return protocol.CloseData{}, errors.Newf(errors.ErrCodeNotFound, "Позиция %d не найдена", ticket)
	}
	m := b.markets[pos.Symbol]
	exit := exitPrice(m.tick(b.now()), pos.Direction)
	pl := profit(m.info, pos, exit)

	b.balance = b.balance.Add(pl)
	b.dailyPL = b.dailyPL.Add(pl)
	delete(b.positions, ticket)

	return protocol.CloseData{Ticket: ticket, ClosePrice: exit, Profit: pl.InexactFloat64()}, nil
}

func (b *Broker) Modify(p protocol.ModifyPositionParams) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[p.Ticket]
	if !ok {
		return errors.Newf(errors.ErrCodeNotFound, "Позиция %d не найдена", p.Ticket)
	}
	if p.StopLoss != nil {
		pos.StopLoss = *p.StopLoss
	}
	if p.TakeProfit != nil {
		pos.TakeProfit = *p.TakeProfit
	}
	b.positions[p.Ticket] = pos
	return nil
}

func (b *Broker) freeMarginLocked() decimal.Decimal {
	now := b.now()
	equity := b.balance
	for _, pos := range b.positions {
		m := b.markets[pos.Symbol]
		equity = equity.Add(profit(m.info, pos, exitPrice(m.tick(now), pos.Direction)))
		equity = equity.Sub(decimal.NewFromFloat(pos.Volume).Mul(decimal.NewFromFloat(m.info.MarginPerLot)))
	}
	return equity
}

func exitPrice(tick models.PriceTick, dir models.Direction) float64 {
	return tick.EntryPrice(dir.Opposite())
}

func profit(info models.SymbolInfo, pos models.Position, exit float64) decimal.Decimal {
	diff := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(pos.OpenPrice))
	if pos.Direction == models.DirectionShort {
		diff = diff.Neg()
	}
	points := diff.Div(decimal.NewFromFloat(info.Point))
	return points.Mul(decimal.NewFromFloat(info.PointValue)).Mul(decimal.NewFromFloat(pos.Volume)).Round(2)
}
