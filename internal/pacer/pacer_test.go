package pacer

import (
	"context"
	"testing"
	"time"
)

func TestNextDelayShrinksOnSuccessGrowsOnFailure(t *testing.T) {
	cfg := DefaultConfig()
	p := New(cfg, nil)

	// Drain jitter by comparing the pre-jitter floor, not the exact value.
	afterSuccess := p.NextDelay(true)
	if afterSuccess < cfg.MinDelay {
		t.Errorf("expected delay >= min delay, got %v", afterSuccess)
	}

	p2 := New(cfg, nil)
	afterFailure := p2.NextDelay(false)
	if afterFailure < cfg.BaseDelay {
		t.Errorf("expected failure to grow delay past base, got %v", afterFailure)
	}
}

func TestSuccessRateBounded(t *testing.T) {
	p := New(DefaultConfig(), nil)

	for i := 0; i < 50; i++ {
		p.NextDelay(true)
	}
	if rate := p.Stats().SuccessRate; rate > 1.0 {
		t.Errorf("success rate exceeded 1.0: %v", rate)
	}

	p2 := New(DefaultConfig(), nil)
	for i := 0; i < 50; i++ {
		p2.NextDelay(false)
	}
	if rate := p2.Stats().SuccessRate; rate < 0.1 {
		t.Errorf("success rate dropped below 0.1: %v", rate)
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	p := New(Config{BaseDelay: time.Minute, MinDelay: time.Minute, MaxDelay: time.Minute}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := p.Wait(ctx, false); err == nil {
		t.Error("expected context deadline error")
	}
}

func TestDelayStaysWithinConfiguredBounds(t *testing.T) {
	cfg := DefaultConfig()
	p := New(cfg, nil)

	for i := 0; i < 100; i++ {
		d := p.NextDelay(i%2 == 0)
		floor := d - time.Second // remove jitter upper bound
		if floor > cfg.MaxDelay {
			t.Fatalf("delay exceeded max bound: %v", d)
		}
	}
}
