package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/topicstream/topicstream/pkg/logging"
)

// Poller drives periodic feed refreshes. A one-second ticker accumulates
// 100/interval percent per tick for the progress indicator; at 100% it
// triggers a refresh and resets. Starting a poller always cancels the
// previous timer first, so two tickers never run at once.
type Poller struct {
	trigger func(ctx context.Context)
	logger  *zap.Logger

	// lifecycle serializes Start and Stop so a concurrent restart can
	// never leave two tickers running.
	lifecycle sync.Mutex

	mu       sync.Mutex
	interval int // seconds, 0 disables polling
	progress float64
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPoller creates a poller that invokes trigger on each cycle.
func NewPoller(intervalSeconds int, trigger func(ctx context.Context)) *Poller {
	return &Poller{
		trigger:  trigger,
		interval: intervalSeconds,
		logger:   logging.GetLogger().With(zap.String("component", "feed-poller")),
	}
}

// Start begins polling. Any prior timer is canceled before the new one
// starts. An interval of 0 leaves polling disabled.
func (p *Poller) Start(ctx context.Context) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	p.stop()

	p.mu.Lock()
	interval := p.interval
	if interval <= 0 {
		p.progress = 0
		p.mu.Unlock()
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	done := make(chan struct{})
	p.done = done
	p.progress = 0
	p.mu.Unlock()

	p.logger.Info("Polling started", zap.Int("interval_seconds", interval))

	go p.loop(runCtx, done, interval)
}

func (p *Poller) loop(ctx context.Context, done chan struct{}, interval int) {
	defer close(done)

	step := 100.0 / float64(interval)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire := false
			p.mu.Lock()
			p.progress += step
			if p.progress >= 100 {
				p.progress = 0
				fire = true
			}
			p.mu.Unlock()

			if fire {
				p.trigger(ctx)
			}
		}
	}
}

// Stop cancels the current timer and waits for the loop to exit.
func (p *Poller) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	p.stop()
}

func (p *Poller) stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.progress = 0
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// SetInterval updates the interval. The caller restarts the poller for the
// change to take effect.
func (p *Poller) SetInterval(seconds int) {
	p.mu.Lock()
	p.interval = seconds
	p.mu.Unlock()
}

// Interval returns the configured interval in seconds.
func (p *Poller) Interval() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Progress returns the accumulated progress percentage toward the next
// refresh, in [0, 100).
func (p *Poller) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// ResetProgress zeroes the progress, used after a manual refresh.
func (p *Poller) ResetProgress() {
	p.mu.Lock()
	p.progress = 0
	p.mu.Unlock()
}
