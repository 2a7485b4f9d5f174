package safety

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"tradebridge/internal/config"
	"tradebridge/internal/errors"
	"tradebridge/internal/models"
)

const (
	CheckKillSwitch  = "kill_switch"
	CheckDailyLoss   = "daily_loss"
	CheckPositions   = "max_positions"
	CheckVolume      = "max_volume"
	CheckDrawdown    = "max_drawdown"
	CheckCorrelation = "correlation"
	CheckMargin      = "margin"
	CheckSession     = "session"
	CheckNews        = "news_blackout"
	CheckSpread      = "spread"
)

// Request is everything a check may look at. Positions is a registry
// snapshot taken just before validation.
type Request struct {
	Strategy  models.Strategy
	Signal    models.Signal
	Volume    float64
	Account   models.Account
	Symbol    models.SymbolInfo
	Price     models.PriceTick
	Positions []models.Position
}

type Result struct {
	Passed bool
	Check  string
	Reason string
}

// Err converts a failed result into a validation error.
func (r Result) Err() error {
	if r.Passed {
		return nil
	}
	return errors.Newf(errors.ErrCodeValidation, "%s: %s", r.Check, r.Reason)
}

type KillSwitch interface {
	KillSwitch() bool
}

type check struct {
	name string
	fn   func(req Request, now time.Time) string
}

type Validator struct {
	cfg    config.SafetyConfig
	ks     KillSwitch
	corr   map[[2]string]float64
	checks []check
	now    func() time.Time

	mu   sync.Mutex
	peak float64
}

func New(cfg config.SafetyConfig, ks KillSwitch) *Validator {
	v := &Validator{
		cfg:  cfg,
		ks:   ks,
		corr: make(map[[2]string]float64),
		now:  time.Now,
	}
	for _, p := range cfg.Correlations {
		v.corr[pairKey(p.A, p.B)] = p.Value
	}
	v.checks = []check{
		{CheckKillSwitch, v.checkKillSwitch},
		{CheckDailyLoss, v.checkDailyLoss},
		{CheckPositions, v.checkPositions},
		{CheckVolume, v.checkVolume},
		{CheckDrawdown, v.checkDrawdown},
		{CheckCorrelation, v.checkCorrelation},
		{CheckMargin, v.checkMargin},
		{CheckSession, v.checkSession},
		{CheckNews, v.checkNews},
		{CheckSpread, v.checkSpread},
	}
	return v
}

// Validate runs every check in order and stops at the first failure.
func (v *Validator) Validate(req Request) Result {
	now := v.now().UTC()
	v.observe(req.Account.Equity)
	for _, c := range v.checks {
		if reason := c.fn(req, now); reason != "" {
			return Result{Check: c.name, Reason: reason}
		}
	}
	return Result{Passed: true}
}

// ObserveEquity feeds telemetry equity into the drawdown peak.
func (v *Validator) ObserveEquity(equity float64) {
	v.observe(equity)
}

func (v *Validator) observe(equity float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if equity > v.peak {
		v.peak = equity
	}
}

func (v *Validator) checkKillSwitch(_ Request, _ time.Time) string {
	if v.ks != nil && v.ks.KillSwitch() {
		return "включён аварийный стоп"
	}
	return ""
}

func (v *Validator) checkDailyLoss(req Request, _ time.Time) string {
	loss := -req.Account.DailyPL
	for _, limit := range []float64{v.cfg.DailyLossLimit, req.Strategy.Risk.MaxDailyLoss} {
		if limit > 0 && loss >= limit {
			return fmt.Sprintf("дневной убыток %.2f достиг лимита %.2f", loss, limit)
		}
	}
	return ""
}

func (v *Validator) checkPositions(req Request, _ time.Time) string {
	if v.cfg.MaxPositions > 0 && len(req.Positions) >= v.cfg.MaxPositions {
		return fmt.Sprintf("открыто %d позиций при лимите %d", len(req.Positions), v.cfg.MaxPositions)
	}
	own, sameSymbol := 0, 0
	for _, p := range req.Positions {
		if p.StrategyID != req.Strategy.ID {
			continue
		}
		own++
		if p.Symbol == req.Signal.Symbol {
			sameSymbol++
		}
	}
	if req.Strategy.Risk.MaxPositions > 0 && own >= req.Strategy.Risk.MaxPositions {
		return fmt.Sprintf("у стратегии %d позиций при лимите %d", own, req.Strategy.Risk.MaxPositions)
	}
	if !req.Strategy.Risk.AllowMultiple && sameSymbol > 0 {
		return fmt.Sprintf("по %s уже есть позиция стратегии", req.Signal.Symbol)
	}
	return ""
}

func (v *Validator) checkVolume(req Request, _ time.Time) string {
	if v.cfg.MaxVolume > 0 && req.Volume > v.cfg.MaxVolume {
		return fmt.Sprintf("объём %.2f больше лимита %.2f", req.Volume, v.cfg.MaxVolume)
	}
	return ""
}

func (v *Validator) checkDrawdown(req Request, _ time.Time) string {
	if v.cfg.MaxDrawdownPct <= 0 {
		return ""
	}
	v.mu.Lock()
	peak := v.peak
	v.mu.Unlock()
	if peak <= 0 {
		return ""
	}
	dd := (peak - req.Account.Equity) / peak * 100
	if dd >= v.cfg.MaxDrawdownPct {
		return fmt.Sprintf("просадка %.2f%% достигла лимита %.2f%%", dd, v.cfg.MaxDrawdownPct)
	}
	return ""
}

func (v *Validator) checkCorrelation(req Request, _ time.Time) string {
	if v.cfg.CorrelationThreshold <= 0 {
		return ""
	}
	for _, p := range req.Positions {
		if p.Symbol == req.Signal.Symbol {
			continue
		}
		c, ok := v.corr[pairKey(p.Symbol, req.Signal.Symbol)]
		if ok && math.Abs(c) >= v.cfg.CorrelationThreshold {
			return fmt.Sprintf("открыта коррелирующая позиция %s (%.2f)", p.Symbol, c)
		}
	}
	return ""
}

func (v *Validator) checkMargin(req Request, _ time.Time) string {
	if req.Symbol.MarginPerLot <= 0 {
		return ""
	}
	buffer := v.cfg.MarginBuffer
	if buffer <= 0 {
		buffer = 1
	}
	required := req.Volume * req.Symbol.MarginPerLot * buffer
	if req.Account.FreeMargin < required {
		return fmt.Sprintf("свободная маржа %.2f меньше требуемой %.2f", req.Account.FreeMargin, required)
	}
	return ""
}

func (v *Validator) checkSession(_ Request, now time.Time) string {
	if len(v.cfg.Sessions) == 0 {
		return ""
	}
	for _, name := range v.cfg.Sessions {
		if s, ok := sessions[strings.ToLower(name)]; ok && s.contains(now.Hour()) {
			return ""
		}
	}
	return fmt.Sprintf("вне торговых сессий %s", strings.Join(v.cfg.Sessions, ","))
}

func (v *Validator) checkNews(req Request, now time.Time) string {
	if !v.cfg.News.Enabled {
		return ""
	}
	symbol := strings.ToUpper(req.Signal.Symbol)
	for _, ev := range v.cfg.News.Events {
		if ev.Currency == "" || !strings.Contains(symbol, strings.ToUpper(ev.Currency)) {
			continue
		}
		from, to := ev.Time.Add(-v.cfg.News.PauseBefore), ev.Time.Add(v.cfg.News.PauseAfter)
		if !now.Before(from) && !now.After(to) {
			return fmt.Sprintf("новость %s %s в %s", ev.Currency, ev.Title, ev.Time.Format(time.RFC3339))
		}
	}
	return ""
}

func (v *Validator) checkSpread(req Request, _ time.Time) string {
	if v.cfg.MaxSpreadPoints <= 0 || req.Symbol.Point <= 0 || req.Price.Ask == 0 {
		return ""
	}
	points := req.Price.Spread() / req.Symbol.Point
	if points > v.cfg.MaxSpreadPoints {
		return fmt.Sprintf("спред %.1f пунктов больше %.1f", points, v.cfg.MaxSpreadPoints)
	}
	return ""
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}
