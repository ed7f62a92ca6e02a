package main

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type listenerPruner interface {
	PruneDeadListeners() int
}

type sweepTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) sweepTicker

// startListenerSweepWorker periodically reaps stream listeners whose
// connections died without a clean close. The returned stop function cancels
// the worker and waits for it to exit; calling it more than once is safe.
func startListenerSweepWorker(ctx context.Context, logger *slog.Logger, store listenerPruner, interval time.Duration) func() {
	return startListenerSweepWorkerWithTicker(ctx, logger, store, interval, func(d time.Duration) sweepTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func startListenerSweepWorkerWithTicker(
	ctx context.Context,
	logger *slog.Logger,
	store listenerPruner,
	interval time.Duration,
	newTicker tickerFactory,
) func() {
	if store == nil || interval <= 0 {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				if removed := store.PruneDeadListeners(); removed > 0 && logger != nil {
					logger.Debug("listener sweep completed", "removed", removed)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
