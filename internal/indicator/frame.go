package indicator

import (
	"math"
	"tradebridge/internal/models"
)

// Frame memoizes indicator series over one bar window. A frame belongs to a
// single evaluation and is not safe for concurrent use.
type Frame struct {
	reg   *Registry
	bars  []models.Bar
	cache map[string][]float64
}

func NewFrame(reg *Registry, bars []models.Bar) *Frame {
	return &Frame{reg: reg, bars: bars, cache: make(map[string][]float64)}
}

func (f *Frame) Len() int {
	return len(f.bars)
}

func (f *Frame) Series(name string) ([]float64, error) {
	if s, ok := f.cache[name]; ok {
		return s, nil
	}
	s, err := f.reg.Compute(name, f.bars)
	if err != nil {
		return nil, err
	}
	f.cache[name] = s
	return s, nil
}

// Last returns the newest value, NaN when undefined or unknown.
func (f *Frame) Last(name string) float64 {
	s, err := f.Series(name)
	if err != nil {
		return math.NaN()
	}
	return Last(s)
}

func (f *Frame) Prev(name string) float64 {
	s, err := f.Series(name)
	if err != nil {
		return math.NaN()
	}
	return Prev(s)
}

func Last(s []float64) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

func Prev(s []float64) float64 {
	if len(s) < 2 {
		return math.NaN()
	}
	return s[len(s)-2]
}
