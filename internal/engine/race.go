package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GhostKellz/zeke-sub004/internal/provider"
	"github.com/GhostKellz/zeke-sub004/internal/router"
)

// taggedDelta carries a racer's provider identity alongside its Delta
// so the fan-in loop can tell winner traffic from loser traffic.
type taggedDelta struct {
	provider provider.Provider
	delta    provider.Delta
	err      error
}

// race implements spec §4.6's optional parallel racing: the top-k
// (default 2) candidates in chain are issued in parallel; the first to
// yield a non-empty Delta wins and its stream is forwarded exclusively,
// with the other in-flight requests cancelled via structured
// cancellation (spec §5). success reports a completed winning stream;
// terminated reports that a terminal Delta already reached out (win or
// lose), so Chat must not degrade on top of it.
func (e *Executor) race(parent context.Context, intent provider.RequestIntent, chain router.Chain, out chan<- provider.Delta) (success bool, terminated bool) {
	candidates := chain.Providers
	if len(candidates) > raceTopK {
		candidates = candidates[:raceTopK]
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	fanIn := make(chan taggedDelta, 16)
	g, gctx := errgroup.WithContext(ctx)
	racerCancel := make(map[provider.Provider]context.CancelFunc, len(candidates))

	for _, p := range candidates {
		p := p
		adapter, ok := e.adapters[p]
		if !ok {
			continue
		}
		b := e.breakers.Get(p)
		if b == nil || !b.MayRequest() {
			continue
		}
		rctx, rcancel := context.WithCancel(gctx)
		racerCancel[p] = rcancel
		g.Go(func() error {
			start := time.Now()
			ch := make(chan provider.Delta, 8)
			done := make(chan error, 1)
			go func() {
				done <- adapter.OpenStream(rctx, intent, ch)
				close(ch)
			}()
			for d := range ch {
				select {
				case fanIn <- taggedDelta{provider: p, delta: d}:
				case <-rctx.Done():
					return nil
				}
				if d.Final {
					if !d.HasErr {
						b.RecordSuccess()
						e.health.RecordSuccess(p, time.Since(start), time.Now())
					}
					return nil
				}
			}
			if err := <-done; err != nil {
				select {
				case fanIn <- taggedDelta{provider: p, err: err}:
				case <-rctx.Done():
				}
			}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(fanIn)
	}()

	var winner provider.Provider
	haveWinner := false
	won := false

	for td := range fanIn {
		if !haveWinner {
			if td.err != nil {
				// A non-winning candidate failed before anyone produced
				// output; it simply drops out of the race.
				b := e.breakers.Get(td.provider)
				if b != nil {
					b.RecordFailure()
				}
				e.health.RecordFailure(td.provider, time.Now())
				continue
			}
			if td.delta.Content == "" && !td.delta.Final {
				continue
			}
			haveWinner = true
			winner = td.provider
			// stop every other racer now that a winner is decided
			for q, stop := range racerCancel {
				if q != winner {
					stop()
				}
			}
		}
		if td.provider != winner {
			continue
		}
		if td.err != nil {
			// The winner forwarded content, then its stream died with a
			// bare read error (no Final Delta of its own). Synthesize
			// one so out always ends with a terminal, error-marked
			// Delta instead of a silent channel close.
			kind, _ := classify(td.err)
			out <- provider.Delta{Final: true, HasErr: true, Err: kind, Content: td.err.Error()}
			won = false
			break
		}
		out <- td.delta
		if td.delta.Final {
			won = !td.delta.HasErr
			break
		}
	}

	return haveWinner && won, haveWinner
}
