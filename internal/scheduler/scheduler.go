package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/user/weather-bot-go/internal/config"
	"github.com/user/weather-bot-go/internal/metrics"
	"github.com/user/weather-bot-go/internal/model"
	"github.com/user/weather-bot-go/internal/push"
	"golang.org/x/sync/errgroup"
)

// Tick results recorded in metrics
const (
	tickOK        = "ok"
	tickDuplicate = "duplicate"
	tickOverlap   = "overlap"
)

// Clock is the scheduler's time source
type Clock interface {
	Now() time.Time
}

// SystemClock reads the process-local wall clock
type SystemClock struct{}

// Now returns the current local time
func (SystemClock) Now() time.Time { return time.Now() }

// Subscribers provides the snapshot a tick works on
type Subscribers interface {
	All(ctx context.Context) []model.Subscriber
}

// Dispatcher delivers one notification
type Dispatcher interface {
	Deliver(ctx context.Context, sub model.Subscriber, occasion push.Occasion, day time.Weekday) push.Outcome
}

// Broadcast is a fixed-time delivery to every subscriber with a location
type Broadcast struct {
	Spec     string
	Occasion push.Occasion
	schedule cron.Schedule
}

var broadcastParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseBroadcasts parses cron specs. The first spec is the midday
// broadcast and the second the evening one. Descriptors such as @daily
// are accepted, @every intervals are not.
func ParseBroadcasts(specs []string) ([]Broadcast, error) {
	occasions := []push.Occasion{push.OccasionMidday, push.OccasionEvening}
	if len(specs) > len(occasions) {
		return nil, fmt.Errorf("at most %d broadcast specs are supported, got %d", len(occasions), len(specs))
	}

	out := make([]Broadcast, 0, len(specs))
	for i, spec := range specs {
		sched, err := broadcastParser.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid broadcast spec %q: %w", spec, err)
		}
		// Broadcasts fire at wall-clock minutes; an interval has no fixed minute
		if _, ok := sched.(cron.ConstantDelaySchedule); ok {
			return nil, fmt.Errorf("invalid broadcast spec %q: @every intervals are not supported", spec)
		}
		out = append(out, Broadcast{Spec: spec, Occasion: occasions[i], schedule: sched})
	}
	return out, nil
}

// matches reports whether the schedule fires at the given whole minute
func (b Broadcast) matches(minute time.Time) bool {
	return b.schedule.Next(minute.Add(-time.Second)).Equal(minute)
}

// Report summarises one tick
type Report struct {
	ID        string
	Minute    string
	Duplicate bool
	Broadcast push.Occasion

	Attempts   int
	Delivered  int
	Notices    int
	Failed     int
	Skipped    int
	Suppressed int // personal deliveries replaced by this tick's broadcast
	Unlocated  int // personal deliveries due but without a location
}

// Scheduler evaluates delivery times once per tick
type Scheduler struct {
	subscribers Subscribers
	dispatcher  Dispatcher
	clock       Clock
	config      *config.SchedulerConfig
	broadcasts  []Broadcast

	running atomic.Bool
	mu      sync.Mutex // Mutex to prevent overlapping ticks
	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup

	minuteMu   sync.Mutex
	lastMinute time.Time
}

// New creates a new scheduler instance
func New(subscribers Subscribers, dispatcher Dispatcher, clock Clock, cfg *config.SchedulerConfig) (*Scheduler, error) {
	broadcasts, err := ParseBroadcasts(cfg.Broadcasts)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}

	return &Scheduler{
		subscribers: subscribers,
		dispatcher:  dispatcher,
		clock:       clock,
		config:      cfg,
		broadcasts:  broadcasts,
		stopCh:      make(chan struct{}),
	}, nil
}

// Start runs one tick immediately and then one per interval, aligned to
// minute boundaries, until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.config.Enabled {
		log.Info().Msg("Scheduler is disabled")
		return
	}

	s.wg.Add(1)
	go s.run(ctx)
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	log.Info().
		Dur("interval", s.config.TickInterval).
		Int("broadcasts", len(s.broadcasts)).
		Msg("Scheduler started")

	s.tick(ctx)

	// Wait for the next minute boundary so ticks do not straddle minutes
	now := s.clock.Now()
	align := now.Truncate(time.Minute).Add(time.Minute + time.Second).Sub(now)

	select {
	case <-time.After(align):
		s.tick(ctx)
	case <-s.stopCh:
		log.Info().Msg("Scheduler stopped before first aligned tick")
		return
	case <-ctx.Done():
		log.Info().Msg("Scheduler context cancelled")
		return
	}

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopCh:
			log.Info().Msg("Scheduler loop exited")
			return
		case <-ctx.Done():
			log.Info().Msg("Scheduler context cancelled")
			return
		}
	}
}

// tick runs RunOnce unless the previous tick is still in progress
func (s *Scheduler) tick(ctx context.Context) {
	if _, ok := s.TryRun(ctx); !ok {
		log.Warn().Msg("Previous tick still running, skipping this trigger")
		metrics.RecordTick(tickOverlap, 0)
	}
}

// TryRun runs one tick at the clock's current time.
// It returns false without running if another tick holds the lock.
func (s *Scheduler) TryRun(ctx context.Context) (Report, bool) {
	if !s.mu.TryLock() {
		return Report{}, false
	}
	defer s.mu.Unlock()

	s.running.Store(true)
	defer s.running.Store(false)

	start := time.Now()
	report := s.RunOnce(ctx, s.clock.Now())
	duration := time.Since(start)

	result := tickOK
	if report.Duplicate {
		result = tickDuplicate
	}
	metrics.RecordTick(result, duration)

	if report.Attempts > 0 {
		log.Info().
			Str("tick", report.ID).
			Str("minute", report.Minute).
			Str("broadcast", string(report.Broadcast)).
			Int("attempts", report.Attempts).
			Int("delivered", report.Delivered).
			Int("notices", report.Notices).
			Int("failed", report.Failed).
			Int("skipped", report.Skipped).
			Dur("duration", duration).
			Msg("Tick completed")
	}
	return report, true
}

type job struct {
	sub      model.Subscriber
	occasion push.Occasion
}

// RunOnce evaluates a single minute: broadcasts first, then personal
// delivery times. A minute already handled by the previous call is skipped.
// Every delivery failure is contained in the report.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) Report {
	minute := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), 0, 0, now.Location())
	report := Report{
		ID:     uuid.NewString(),
		Minute: minute.Format("15:04"),
	}

	if !s.claimMinute(minute) {
		report.Duplicate = true
		log.Debug().Str("tick", report.ID).Str("minute", report.Minute).Msg("Minute already processed")
		return report
	}

	subs := s.subscribers.All(ctx)
	log.Debug().
		Str("tick", report.ID).
		Str("minute", report.Minute).
		Int("subscribers", len(subs)).
		Msg("Evaluating schedule")

	var jobs []job
	served := make(map[int64]bool)

	if b, ok := s.broadcastAt(minute); ok {
		report.Broadcast = b.Occasion
		log.Info().
			Str("tick", report.ID).
			Str("occasion", string(b.Occasion)).
			Msg("Broadcast time")

		for _, sub := range subs {
			if !sub.HasLocation() {
				continue
			}
			jobs = append(jobs, job{sub: sub, occasion: b.Occasion})
			served[sub.ID] = true
		}
	}

	for _, sub := range subs {
		if sub.DeliveryTime != report.Minute {
			continue
		}
		if served[sub.ID] {
			report.Suppressed++
			log.Debug().Int64("chatID", sub.ID).Msg("Personal delivery covered by broadcast")
			continue
		}
		if !sub.HasLocation() {
			report.Unlocated++
			log.Warn().Int64("chatID", sub.ID).Msg("Delivery time reached but no location set")
			continue
		}
		jobs = append(jobs, job{sub: sub, occasion: push.OccasionPersonal})
	}

	outcomes := s.dispatch(ctx, jobs, minute.Weekday())

	report.Attempts = len(outcomes)
	for _, o := range outcomes {
		switch o.Status {
		case metrics.StatusSuccess:
			report.Delivered++
		case metrics.StatusNotice:
			report.Notices++
		case metrics.StatusSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}
	return report
}

// dispatch runs the jobs with bounded concurrency
func (s *Scheduler) dispatch(ctx context.Context, jobs []job, day time.Weekday) []push.Outcome {
	outcomes := make([]push.Outcome, len(jobs))

	var g errgroup.Group
	g.SetLimit(max(s.config.Concurrency, 1))

	for i, j := range jobs {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Int64("chatID", j.sub.ID).Msg("Delivery panicked")
					outcomes[i] = push.Outcome{Status: metrics.StatusFailed, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			outcomes[i] = s.dispatcher.Deliver(ctx, j.sub, j.occasion, day)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (s *Scheduler) broadcastAt(minute time.Time) (Broadcast, bool) {
	for _, b := range s.broadcasts {
		if b.matches(minute) {
			return b, true
		}
	}
	return Broadcast{}, false
}

func (s *Scheduler) claimMinute(minute time.Time) bool {
	s.minuteMu.Lock()
	defer s.minuteMu.Unlock()

	if s.lastMinute.Equal(minute) {
		return false
	}
	s.lastMinute = minute
	return true
}

// Stop gracefully stops the scheduler and waits for the running tick
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping scheduler...")
	s.stopped.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	log.Info().Msg("Scheduler stopped")
}

// IsRunning returns true if a tick is currently running
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// Broadcasts returns the parsed broadcast schedule
func (s *Scheduler) Broadcasts() []Broadcast {
	return append([]Broadcast(nil), s.broadcasts...)
}
