// Package poller schedules station dump cycles and fans updates out to subscribers.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fgeck/gostation-homelab/internal/alias"
	"github.com/fgeck/gostation-homelab/internal/models"
	"github.com/fgeck/gostation-homelab/internal/parser"
	"github.com/fgeck/gostation-homelab/internal/reconcile"
	"github.com/fgeck/gostation-homelab/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultTimeout      = 4 * time.Second
)

// ErrCycleInFlight is returned by PollOnce while another cycle is running.
var ErrCycleInFlight = errors.New("poll cycle already in flight")

// Fetcher returns the raw output of one station dump.
type Fetcher interface {
	Fetch(ctx context.Context, toolPath, iface string) ([]byte, error)
}

// Subscriber receives every completed cycle. Notify is called from the poll
// goroutine and must bound its own I/O.
type Subscriber interface {
	Notify(ctx context.Context, update models.Update)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, update models.Update)

// Notify calls f(ctx, update).
func (f SubscriberFunc) Notify(ctx context.Context, update models.Update) {
	f(ctx, update)
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State        string    `json:"state"`
	LastSuccess  time.Time `json:"last_success"`
	LastError    string    `json:"last_error,omitempty"`
	Cycles       uint64    `json:"cycles"`
	Failures     uint64    `json:"failures"`
	DroppedTicks uint64    `json:"dropped_ticks"`
}

// Service defines the interface for the poll scheduler.
type Service interface {
	Run(ctx context.Context) error
	PollOnce(ctx context.Context) (*models.Update, error)
	TriggerRefresh()
	Status() Status
	Current() *models.Snapshot
}

// Impl implements the poller Service interface.
type Impl struct {
	fetcher     Fetcher
	aliases     alias.Resolver
	cfg         models.StationConfig
	subscribers []Subscriber
	store       *store.Store
	logger      zerolog.Logger
	refreshCh   chan struct{}
	wg          sync.WaitGroup

	inFlight atomic.Bool
	state    atomic.Int32
	cycles   atomic.Uint64
	failures atomic.Uint64
	dropped  atomic.Uint64

	mu          sync.Mutex
	lastSuccess time.Time
	lastError   string
}

// New creates a new poll scheduler. Nothing runs until Run or PollOnce is called.
func New(
	logger zerolog.Logger,
	fetcher Fetcher,
	aliases alias.Resolver,
	cfg models.StationConfig,
	subscribers ...Subscriber,
) *Impl {
	if aliases == nil {
		aliases = alias.Map{}
	}
	return &Impl{
		fetcher:     fetcher,
		aliases:     aliases,
		cfg:         cfg,
		subscribers: subscribers,
		store:       store.New(),
		logger:      logger,
		refreshCh:   make(chan struct{}, 1),
	}
}

// Subscribe adds a subscriber. It must be called before Run.
func (p *Impl) Subscribe(sub Subscriber) {
	p.subscribers = append(p.subscribers, sub)
}

// Current returns the latest snapshot.
func (p *Impl) Current() *models.Snapshot {
	return p.store.Current()
}

// Status returns counters and the current cycle phase.
func (p *Impl) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		State:        models.PollState(p.state.Load()).String(),
		LastSuccess:  p.lastSuccess,
		LastError:    p.lastError,
		Cycles:       p.cycles.Load(),
		Failures:     p.failures.Load(),
		DroppedTicks: p.dropped.Load(),
	}
}

// TriggerRefresh requests an out-of-band cycle from Run.
func (p *Impl) TriggerRefresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Run polls once immediately and then on every interval until ctx is done.
// It waits for the in-flight cycle to exit before returning.
func (p *Impl) Run(ctx context.Context) error {
	interval := p.cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	p.logger.Info().
		Str("interface", p.cfg.Interface).
		Dur("interval", interval).
		Dur("timeout", p.timeout()).
		Msg("starting poller")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer p.wg.Wait()

	p.launch(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("stopping poller")
			return nil
		case <-ticker.C:
			p.launch(ctx, "tick")
		case <-p.refreshCh:
			p.launch(ctx, "refresh")
		}
	}
}

// PollOnce runs one cycle synchronously.
func (p *Impl) PollOnce(ctx context.Context) (*models.Update, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return nil, ErrCycleInFlight
	}
	defer p.inFlight.Store(false)
	return p.cycle(ctx)
}

func (p *Impl) launch(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		n := p.dropped.Add(1)
		p.logger.Warn().
			Str("trigger", trigger).
			Uint64("dropped_ticks", n).
			Msg("poll cycle still in flight, dropping tick")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)
		_, _ = p.cycle(ctx)
	}()
}

func (p *Impl) cycle(ctx context.Context) (*models.Update, error) {
	start := time.Now()
	cycleID := uuid.NewString()
	logger := p.logger.With().Str("cycle_id", cycleID).Logger()

	p.cycles.Add(1)
	defer p.state.Store(int32(models.PollIdle))

	p.state.Store(int32(models.PollFetching))
	raw, err := p.fetch(ctx, logger)
	if err != nil {
		return nil, p.fail(ctx, logger, "fetch", err)
	}

	p.state.Store(int32(models.PollParsing))
	snapshot, err := parser.Parse(raw, start)
	if err != nil {
		return nil, p.fail(ctx, logger, "parse", err)
	}

	p.state.Store(int32(models.PollReconciling))
	previous := p.store.Swap(snapshot)
	delta := reconcile.Reconcile(previous, snapshot, p.aliases)

	for _, ev := range delta.Events() {
		state := models.StateOffline
		if ev.New {
			state = models.StateOnline
		}
		logger.Info().
			Str("mac", ev.MAC).
			Str("name", ev.Name).
			Str("state", state).
			Msg("client " + string(ev.Kind))
	}

	update := models.Update{
		CycleID:  cycleID,
		Snapshot: snapshot,
		Previous: previous,
		Delta:    delta,
		Duration: time.Since(start),
	}
	for _, sub := range p.subscribers {
		sub.Notify(ctx, update)
	}

	p.mu.Lock()
	p.lastSuccess = start
	p.lastError = ""
	p.mu.Unlock()

	logger.Debug().
		Int("clients", snapshot.Len()).
		Int("events", len(delta.Events())).
		Dur("duration", update.Duration).
		Msg("poll cycle completed")

	return &update, nil
}

func (p *Impl) fetch(ctx context.Context, logger zerolog.Logger) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	raw, err := p.fetcher.Fetch(fetchCtx, p.cfg.ToolPath, p.cfg.Interface)
	if err == nil {
		return raw, nil
	}

	var fetchErr *models.FetchError
	if p.cfg.ParsePartialOutput && errors.As(err, &fetchErr) &&
		fetchErr.Reason == models.FetchNonZeroExit && len(fetchErr.Output) > 0 {
		logger.Warn().
			Err(err).
			Int("bytes", len(fetchErr.Output)).
			Msg("parsing partial output of failed station dump")
		return fetchErr.Output, nil
	}
	return nil, err
}

func (p *Impl) timeout() time.Duration {
	if p.cfg.Timeout <= 0 {
		return defaultTimeout
	}
	return p.cfg.Timeout
}

func (p *Impl) fail(ctx context.Context, logger zerolog.Logger, phase string, err error) error {
	// Shutdown, not a broken access point.
	if ctx.Err() != nil {
		logger.Debug().Err(err).Str("phase", phase).Msg("cycle cancelled")
		return fmt.Errorf("%s cancelled: %w", phase, err)
	}

	p.failures.Add(1)
	p.mu.Lock()
	p.lastError = err.Error()
	p.mu.Unlock()

	event := logger.Warn().Err(err).Str("phase", phase)
	var fetchErr *models.FetchError
	if errors.As(err, &fetchErr) {
		event = event.Str("reason", string(fetchErr.Reason))
	}
	event.Msg("poll cycle failed, keeping last-known state")

	return fmt.Errorf("%s failed: %w", phase, err)
}
