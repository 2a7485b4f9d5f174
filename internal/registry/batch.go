package registry

import (
	"context"
	"sort"
	"sync"
	"tradebridge/internal/errors"
	"tradebridge/internal/models"
	"tradebridge/internal/terminal/protocol"
)

const closeWorkers = 3

type CloseResult struct {
	Ticket int64
	Err    error
}

// BatchResult lists per-ticket outcomes. Err is set when the batch could not
// run at all, e.g. the terminal refused a server-side batch close.
type BatchResult struct {
	Results []CloseResult
	Err     error
}

func (b BatchResult) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

func (b BatchResult) Failed() int {
	return len(b.Results) - b.Succeeded()
}

// Remote runs batch closes on the terminal side. It is used instead of the
// local view while the registry is untrusted, since an untrusted view may be
// empty while the terminal still holds positions.
type Remote interface {
	CloseAll(ctx context.Context) ([]protocol.TicketResult, error)
	CloseByStrategy(ctx context.Context, strategyID string) ([]protocol.TicketResult, error)
	CloseBySymbol(ctx context.Context, symbol string) ([]protocol.TicketResult, error)
	CloseProfitable(ctx context.Context, minProfit float64) ([]protocol.TicketResult, error)
	CloseLosing(ctx context.Context, maxLoss float64) ([]protocol.TicketResult, error)
}

func (r *Registry) CloseAll(ctx context.Context) BatchResult {
	if r.useRemote() {
		return r.closeRemote(ctx, r.remote.CloseAll)
	}
	return r.closeEach(ctx, r.Snapshot())
}

func (r *Registry) CloseByStrategy(ctx context.Context, strategyID string) BatchResult {
	if r.useRemote() {
		return r.closeRemote(ctx, func(ctx context.Context) ([]protocol.TicketResult, error) {
			return r.remote.CloseByStrategy(ctx, strategyID)
		})
	}
	return r.closeEach(ctx, r.ByStrategy(strategyID))
}

func (r *Registry) CloseBySymbol(ctx context.Context, symbol string) BatchResult {
	if r.useRemote() {
		return r.closeRemote(ctx, func(ctx context.Context) ([]protocol.TicketResult, error) {
			return r.remote.CloseBySymbol(ctx, symbol)
		})
	}
	return r.closeEach(ctx, r.BySymbol(symbol))
}

func (r *Registry) CloseProfitable(ctx context.Context, minProfit float64) BatchResult {
	if r.useRemote() {
		return r.closeRemote(ctx, func(ctx context.Context) ([]protocol.TicketResult, error) {
			return r.remote.CloseProfitable(ctx, minProfit)
		})
	}
	return r.closeEach(ctx, r.Profitable(minProfit))
}

func (r *Registry) CloseLosing(ctx context.Context, maxLoss float64) BatchResult {
	if r.useRemote() {
		return r.closeRemote(ctx, func(ctx context.Context) ([]protocol.TicketResult, error) {
			return r.remote.CloseLosing(ctx, maxLoss)
		})
	}
	return r.closeEach(ctx, r.Losing(maxLoss))
}

// CloseOldest and CloseNewest have no terminal-side equivalent, so they
// refuse to run on an untrusted view.
func (r *Registry) CloseOldest(ctx context.Context, n int) BatchResult {
	if !r.Trusted() {
		return BatchResult{Err: errors.ErrRegistryUntrusted}
	}
	return r.closeEach(ctx, r.Oldest(n))
}

func (r *Registry) CloseNewest(ctx context.Context, n int) BatchResult {
	if !r.Trusted() {
		return BatchResult{Err: errors.ErrRegistryUntrusted}
	}
	return r.closeEach(ctx, r.Newest(n))
}

func (r *Registry) useRemote() bool {
	return r.remote != nil && !r.Trusted()
}

func (r *Registry) closeRemote(ctx context.Context, fn func(ctx context.Context) ([]protocol.TicketResult, error)) BatchResult {
	r.logEntry().Warn("Реестр не сверен, пакетное закрытие выполняется на стороне терминала.")
	results, err := fn(ctx)
	if err != nil {
		r.logEntry().WithError(err).Error("Пакетное закрытие на терминале не выполнено.")
		return BatchResult{Err: err}
	}
	out := BatchResult{Results: make([]CloseResult, 0, len(results))}
	for _, res := range results {
		cr := CloseResult{Ticket: res.Ticket}
		if res.OK {
			r.forget(res.Ticket)
		} else {
			cr.Err = errors.New(errors.ErrCodeExecution, res.Message)
		}
		out.Results = append(out.Results, cr)
	}
	sort.Slice(out.Results, func(i, j int) bool { return out.Results[i].Ticket < out.Results[j].Ticket })
	return out
}

// closeEach closes every ticket independently. One failure never stops the
// rest of the batch.
func (r *Registry) closeEach(ctx context.Context, positions []models.Position) BatchResult {
	if len(positions) == 0 {
		return BatchResult{}
	}

	jobs := make(chan models.Position, len(positions))
	results := make(chan CloseResult, len(positions))
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for p := range jobs {
			if err := ctx.Err(); err != nil {
				results <- CloseResult{Ticket: p.Ticket, Err: err}
				continue
			}
			err := r.closer.ClosePosition(ctx, p.Ticket)
			if err != nil {
				r.logEntry().WithError(err).WithField("ticket", p.Ticket).Warn("Не удалось закрыть позицию.")
			} else {
				r.forget(p.Ticket)
			}
			results <- CloseResult{Ticket: p.Ticket, Err: err}
		}
	}

	workers := closeWorkers
	if len(positions) < workers {
		workers = len(positions)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}
	for _, p := range positions {
		jobs <- p
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := BatchResult{Results: make([]CloseResult, 0, len(positions))}
	for res := range results {
		out.Results = append(out.Results, res)
	}
	sort.Slice(out.Results, func(i, j int) bool { return out.Results[i].Ticket < out.Results[j].Ticket })

	r.logEntry().WithField("closed", out.Succeeded()).WithField("failed", out.Failed()).Info("Пакетное закрытие завершено.")
	return out
}
