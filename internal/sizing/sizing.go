package sizing

import (
	"math"
	"sort"
	"sync"
	"tradebridge/internal/errors"
	"tradebridge/internal/models"

	"github.com/shopspring/decimal"
)

const defaultATRMultiplier = 2.0

type Input struct {
	Risk    models.RiskConfig
	Account models.Account
	Symbol  models.SymbolInfo
	Signal  models.Signal
}

// Method returns an unrounded volume in lots.
type Method func(in Input) (float64, error)

type Registry struct {
	mu      sync.RWMutex
	methods map[models.SizingMethod]Method
}

func NewRegistry() *Registry {
	return &Registry{methods: make(map[models.SizingMethod]Method)}
}

func Default() *Registry {
	r := NewRegistry()
	_ = r.Register(models.SizingFixed, Fixed)
	_ = r.Register(models.SizingPercentRisk, PercentRisk)
	_ = r.Register(models.SizingVolatility, Volatility)
	return r
}

func (r *Registry) Register(name models.SizingMethod, m Method) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.methods[name]; ok {
		return errors.Newf(errors.ErrCodeAlreadyRegistered, "Метод расчёта объёма %s уже зарегистрирован", name)
	}
	r.methods[name] = m
	return nil
}

func (r *Registry) Names() []models.SizingMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.SizingMethod, 0, len(r.methods))
	for name := range r.methods {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) lookup(name models.SizingMethod) (Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[name]
	return m, ok
}

type Decision struct {
	Volume  float64
	Raw     float64
	Clamped bool
}

type Sizer struct {
	reg *Registry
}

func New(reg *Registry) *Sizer {
	return &Sizer{reg: reg}
}

// Size runs the strategy's method, floors it to the volume step and clamps
// it to [VolumeMin, max], where max is the smaller of the symbol and
// strategy limits. Only a non-positive or non-finite raw size is rejected.
func (s *Sizer) Size(in Input) (Decision, error) {
	method, ok := s.reg.lookup(in.Risk.Sizing)
	if !ok {
		return Decision{}, errors.Newf(errors.ErrCodeInvalidParameter, "Неизвестный метод расчёта объёма %s", in.Risk.Sizing)
	}
	raw, err := method(in)
	if err != nil {
		return Decision{}, err
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw <= 0 {
		return Decision{Raw: raw}, errors.Wrapf(errors.ErrCodePositionTooSmall, errors.ErrPositionTooSmall, "Расчётный объём %v", raw)
	}

	dec := Decision{Raw: raw}
	volume := raw

	maxVolume := in.Symbol.VolumeMax
	if in.Risk.MaxLotSize > 0 && (maxVolume <= 0 || in.Risk.MaxLotSize < maxVolume) {
		maxVolume = in.Risk.MaxLotSize
	}
	if maxVolume > 0 && volume > maxVolume {
		volume = maxVolume
		dec.Clamped = true
	}

	volume = floorToStep(volume, in.Symbol.VolumeStep)
	if volume < in.Symbol.VolumeMin {
		volume = in.Symbol.VolumeMin
		dec.Clamped = true
	}
	if volume <= 0 {
		return dec, errors.Wrapf(errors.ErrCodePositionTooSmall, errors.ErrPositionTooSmall,
			"Объём %v после округления до шага %v для %s", raw, in.Symbol.VolumeStep, in.Symbol.Symbol)
	}
	dec.Volume = volume
	return dec, nil
}

func floorToStep(volume, step float64) float64 {
	v := decimal.NewFromFloat(volume)
	if step <= 0 {
		return v.Round(8).InexactFloat64()
	}
	st := decimal.NewFromFloat(step)
	return v.Div(st).Round(8).Floor().Mul(st).InexactFloat64()
}

func Fixed(in Input) (float64, error) {
	return in.Risk.FixedVolume, nil
}

// PercentRisk risks equity x risk% over the distance to the stop-loss.
func PercentRisk(in Input) (float64, error) {
	if in.Signal.StopLoss.IsNone() {
		return 0, errors.New(errors.ErrCodeInvalidParameter, "Для percent_risk нужен стоп-лосс")
	}
	distance := decimal.NewFromFloat(in.Signal.Price).Sub(decimal.NewFromFloat(in.Signal.StopLoss.Unwrap())).Abs()
	return riskVolume(in, distance)
}

// Volatility uses ATR x multiplier as the stop distance proxy.
func Volatility(in Input) (float64, error) {
	mult := in.Risk.ATRMultiplier
	if mult <= 0 {
		mult = defaultATRMultiplier
	}
	if math.IsNaN(in.Signal.ATR) || in.Signal.ATR <= 0 {
		return 0, errors.New(errors.ErrCodeInvalidParameter, "Для volatility нужен ATR")
	}
	return riskVolume(in, decimal.NewFromFloat(in.Signal.ATR).Mul(decimal.NewFromFloat(mult)))
}

func riskVolume(in Input, distance decimal.Decimal) (float64, error) {
	if in.Symbol.Point <= 0 || in.Symbol.PointValue <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "Нет параметров точки для %s", in.Symbol.Symbol)
	}
	if !distance.IsPositive() {
		return 0, errors.New(errors.ErrCodeInvalidParameter, "Нулевая дистанция стопа")
	}
	riskAmount := decimal.NewFromFloat(in.Account.Equity).
		Mul(decimal.NewFromFloat(in.Risk.RiskPercent)).
		Div(decimal.NewFromInt(100))
	points := distance.Div(decimal.NewFromFloat(in.Symbol.Point))
	perLot := points.Mul(decimal.NewFromFloat(in.Symbol.PointValue))
	return riskAmount.Div(perLot).InexactFloat64(), nil
}
