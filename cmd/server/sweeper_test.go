package main

import (
	"context"
	"testing"
	"time"
)

type manualTicker struct {
	ch      chan time.Time
	stopped bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped = true }

type stubPruner struct {
	calls chan struct{}
}

func (s *stubPruner) PruneDeadListeners() int {
	s.calls <- struct{}{}
	return 1
}

func TestListenerSweepWorkerPrunesOnTick(t *testing.T) {
	ticker := &manualTicker{ch: make(chan time.Time, 1)}
	pruner := &stubPruner{calls: make(chan struct{}, 1)}

	stop := startListenerSweepWorkerWithTicker(
		context.Background(),
		nil,
		pruner,
		time.Second,
		func(time.Duration) sweepTicker { return ticker },
	)

	ticker.ch <- time.Now()
	select {
	case <-pruner.calls:
	case <-time.After(time.Second):
		t.Fatal("expected a prune call after a tick")
	}

	stop()
	if !ticker.stopped {
		t.Fatal("expected the ticker to be stopped")
	}
}

func TestListenerSweepWorkerStopIsIdempotent(t *testing.T) {
	ticker := &manualTicker{ch: make(chan time.Time)}
	pruner := &stubPruner{calls: make(chan struct{}, 1)}

	stop := startListenerSweepWorkerWithTicker(
		context.Background(),
		nil,
		pruner,
		time.Second,
		func(time.Duration) sweepTicker { return ticker },
	)

	stop()
	stop()
}

func TestListenerSweepWorkerDisabled(t *testing.T) {
	stop := startListenerSweepWorker(context.Background(), nil, nil, time.Second)
	stop()

	stop = startListenerSweepWorker(context.Background(), nil, &stubPruner{calls: make(chan struct{}, 1)}, 0)
	stop()
}
