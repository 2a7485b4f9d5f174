package indicator

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"tradebridge/internal/errors"
	"tradebridge/internal/models"
)

// Calculator returns one value per bar, NaN where the window is too short.
type Calculator func(bars []models.Bar, period int) []float64

type Definition struct {
	Name          string
	DefaultPeriod int
	Calc          Calculator
}

// Registry maps indicator names to calculators. Names may carry a period
// suffix: "ema_50" resolves to the "ema" definition with period 50.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Default returns a fresh registry holding the built-in catalog.
func Default() *Registry {
	r := NewRegistry()
	for _, def := range builtins() {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) Register(def Definition) error {
	name := strings.ToLower(strings.TrimSpace(def.Name))
	if name == "" || def.Calc == nil {
		return errors.New(errors.ErrCodeInvalidParameter, "Индикатору нужны имя и функция расчёта")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[name]; exists {
		return errors.Newf(errors.ErrCodeAlreadyRegistered, "Индикатор %s уже зарегистрирован", name)
	}
	def.Name = name
	r.defs[name] = def
	return nil
}

func (r *Registry) Resolve(name string) (Definition, int, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.defs[key]; ok {
		return def, def.DefaultPeriod, nil
	}
	if idx := strings.LastIndex(key, "_"); idx > 0 {
		period, err := strconv.Atoi(key[idx+1:])
		if err == nil && period > 0 {
			if def, ok := r.defs[key[:idx]]; ok {
				return def, period, nil
			}
		}
	}
	return Definition{}, 0, errors.Newf(errors.ErrCodeIndicatorNotFound, "Неизвестный индикатор %s", name)
}

func (r *Registry) Compute(name string, bars []models.Bar) ([]float64, error) {
	def, period, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return def.Calc(bars, period), nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
