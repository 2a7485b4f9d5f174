package registry

import (
	"sort"
	"tradebridge/internal/models"
)

// Snapshot returns a copy of every position ordered by ticket.
func (r *Registry) Snapshot() []models.Position {
	return r.filter(func(models.Position) bool { return true })
}

func (r *Registry) Get(ticket int64) (models.Position, bool) {
	p, ok := r.current.Load().positions[ticket]
	return p, ok
}

func (r *Registry) Count() int {
	return len(r.current.Load().positions)
}

func (r *Registry) ByStrategy(strategyID string) []models.Position {
	return r.filter(func(p models.Position) bool { return p.StrategyID == strategyID })
}

func (r *Registry) CountByStrategy(strategyID string) int {
	return len(r.ByStrategy(strategyID))
}

func (r *Registry) BySymbol(symbol string) []models.Position {
	return r.filter(func(p models.Position) bool { return p.Symbol == symbol })
}

func (r *Registry) ByStrategySymbol(strategyID, symbol string) []models.Position {
	return r.filter(func(p models.Position) bool { return p.StrategyID == strategyID && p.Symbol == symbol })
}

// Profitable returns positions with floating profit above minProfit.
func (r *Registry) Profitable(minProfit float64) []models.Position {
	return r.filter(func(p models.Position) bool { return p.Profit > minProfit })
}

// Losing returns positions losing more than maxLoss.
func (r *Registry) Losing(maxLoss float64) []models.Position {
	return r.filter(func(p models.Position) bool { return p.Profit < -maxLoss })
}

func (r *Registry) Oldest(n int) []models.Position {
	return r.byAge(n, func(a, b models.Position) bool { return a.OpenTime.Before(b.OpenTime) })
}

func (r *Registry) Newest(n int) []models.Position {
	return r.byAge(n, func(a, b models.Position) bool { return a.OpenTime.After(b.OpenTime) })
}

func (r *Registry) byAge(n int, less func(a, b models.Position) bool) []models.Position {
	all := r.Snapshot()
	sort.SliceStable(all, func(i, j int) bool { return less(all[i], all[j]) })
	if n >= 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

func (r *Registry) filter(match func(models.Position) bool) []models.Position {
	v := r.current.Load()
	out := make([]models.Position, 0, len(v.positions))
	for _, p := range v.positions {
		if match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out
}
