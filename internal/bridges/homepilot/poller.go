package homepilot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Poller defaults.
const (
	defaultPollInterval = 30 * time.Second
	defaultPollTimeout  = 10 * time.Second
)

// Reconciler runs one reconcile cycle. *Manager implements it.
type Reconciler interface {
	Reconcile(ctx context.Context) (map[string]Device, error)
}

// PollStatus is a snapshot of the poller's counters.
// Times are nil until the event first happens.
type PollStatus struct {
	IsRunning           bool       `json:"is_running"`
	Suspended           bool       `json:"suspended"`
	Interval            string     `json:"interval"`
	LastPollTime        *time.Time `json:"last_poll_time,omitempty"`
	LastSuccessTime     *time.Time `json:"last_success_time,omitempty"`
	LastErrorTime       *time.Time `json:"last_error_time,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	TotalPolls          int64      `json:"total_polls"`
	TotalFailures       int64      `json:"total_failures"`
}

// PollerOptions holds configuration for the poller.
type PollerOptions struct {
	// Interval between cycles. Default: 30 seconds.
	Interval time.Duration

	// Timeout bounds one cycle. Default: 10 seconds.
	Timeout time.Duration

	// InitialDelay before the first cycle. Default: none.
	InitialDelay time.Duration

	// OnUpdate receives the registry after every successful cycle.
	OnUpdate func(devices map[string]Device)

	// OnError receives every cycle failure.
	OnError func(err error)

	// OnAuthFailed is called once when polling is suspended by ErrAuth.
	OnAuthFailed func(err error)

	// Logger is optional.
	Logger Logger
}

// Poller drives the reconcile cycle on a fixed interval.
//
// A cycle that fails with ErrAuth suspends polling until Resume is
// called; any other failure is counted and the next tick retries.
//
// Thread Safety: All methods are safe for concurrent use.
type Poller struct {
	reconciler Reconciler
	interval   time.Duration
	timeout    time.Duration
	opts       PollerOptions

	running   atomic.Bool
	suspended atomic.Bool
	refreshCh chan struct{}

	// cycleMu serialises whole cycles, callbacks included, so results
	// are delivered in the order the reconciles ran.
	cycleMu sync.Mutex

	mu                  sync.RWMutex
	lastPollTime        time.Time
	lastSuccessTime     time.Time
	lastErrorTime       time.Time
	lastError           error
	consecutiveFailures int
	totalPolls          int64
	totalFailures       int64

	timerMu sync.Mutex
	pending *time.Timer

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates a poller. Call Start to begin polling.
func NewPoller(r Reconciler, opts PollerOptions) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	return &Poller{
		reconciler: r,
		interval:   interval,
		timeout:    timeout,
		opts:       opts,
		refreshCh:  make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the polling loop. Calling Start twice has no effect.
func (p *Poller) Start(ctx context.Context) {
	if p.running.Swap(true) {
		return
	}
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop ends the polling loop and waits for an in-flight cycle.
// Safe to call multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.timerMu.Lock()
		if p.pending != nil {
			p.pending.Stop()
			p.pending = nil
		}
		p.timerMu.Unlock()

		close(p.stopCh)
		p.wg.Wait()
		p.running.Store(false)
	})
}

// RefreshNow requests an immediate cycle. Requests made while one is
// already queued are merged.
func (p *Poller) RefreshNow() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// ScheduleRefresh requests a cycle after delay. A later call replaces
// an earlier pending one, so a burst of commands yields one refresh.
func (p *Poller) ScheduleRefresh(delay time.Duration) {
	p.timerMu.Lock()
	defer p.timerMu.Unlock()

	if p.pending != nil {
		p.pending.Stop()
	}
	p.pending = time.AfterFunc(delay, func() {
		p.timerMu.Lock()
		p.pending = nil
		p.timerMu.Unlock()
		p.RefreshNow()
	})
}

// Suspended reports whether polling stopped after an auth failure.
func (p *Poller) Suspended() bool {
	return p.suspended.Load()
}

// Resume lifts an auth suspension and requests an immediate cycle.
func (p *Poller) Resume() {
	if p.suspended.Swap(false) {
		p.logInfo("polling resumed")
	}
	p.RefreshNow()
}

// Status returns the current counters.
func (p *Poller) Status() PollStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := PollStatus{
		IsRunning:           p.running.Load(),
		Suspended:           p.suspended.Load(),
		Interval:            p.interval.String(),
		LastPollTime:        timePtr(p.lastPollTime),
		LastSuccessTime:     timePtr(p.lastSuccessTime),
		LastErrorTime:       timePtr(p.lastErrorTime),
		ConsecutiveFailures: p.consecutiveFailures,
		TotalPolls:          p.totalPolls,
		TotalFailures:       p.totalFailures,
	}
	if p.lastError != nil {
		status.LastError = p.lastError.Error()
	}
	return status
}

// PollOnce runs one cycle synchronously, bounded by the cycle timeout.
// It runs even while suspended so callers can probe recovery. Concurrent
// calls queue behind each other; OnUpdate and OnError return before the
// next cycle starts.
func (p *Poller) PollOnce(ctx context.Context) error {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	cycleCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	p.lastPollTime = time.Now()
	p.totalPolls++
	p.mu.Unlock()

	devices, err := p.reconciler.Reconcile(cycleCtx)

	p.mu.Lock()
	if err != nil {
		p.lastError = err
		p.lastErrorTime = time.Now()
		p.consecutiveFailures++
		p.totalFailures++
		failures := p.consecutiveFailures
		p.mu.Unlock()

		p.logError("poll failed", err, "consecutive_failures", failures)

		if errors.Is(err, ErrAuth) && !p.suspended.Swap(true) {
			p.logError("polling suspended until credentials change", err)
			if p.opts.OnAuthFailed != nil {
				p.opts.OnAuthFailed(err)
			}
		}
		if p.opts.OnError != nil {
			p.opts.OnError(err)
		}
		return err
	}

	p.lastError = nil
	p.lastSuccessTime = time.Now()
	p.consecutiveFailures = 0
	p.mu.Unlock()

	// A successful cycle proves the credentials work again.
	p.suspended.Store(false)

	if p.opts.OnUpdate != nil {
		p.opts.OnUpdate(devices)
	}
	return nil
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	if p.opts.InitialDelay > 0 {
		timer := time.NewTimer(p.opts.InitialDelay)
		select {
		case <-timer.C:
		case <-p.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}

	p.tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.tick(ctx)
		case <-p.refreshCh:
			p.tick(ctx)
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick runs a cycle unless polling is suspended.
func (p *Poller) tick(ctx context.Context) {
	if p.suspended.Load() {
		p.logDebug("poll skipped, suspended")
		return
	}
	//nolint:errcheck // failures are recorded and reported via callbacks
	p.PollOnce(ctx)
}

// timePtr returns nil for the zero time.
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (p *Poller) logDebug(msg string, keysAndValues ...any) {
	if p.opts.Logger != nil {
		p.opts.Logger.Debug(msg, keysAndValues...)
	}
}

func (p *Poller) logInfo(msg string, keysAndValues ...any) {
	if p.opts.Logger != nil {
		p.opts.Logger.Info(msg, keysAndValues...)
	}
}

func (p *Poller) logError(msg string, err error, keysAndValues ...any) {
	if p.opts.Logger != nil {
		p.opts.Logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
