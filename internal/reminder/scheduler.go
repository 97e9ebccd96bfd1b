package reminder

import (
	"context"
	"sync/atomic"
	"time"

	"tomobot/internal/eventbus"
	kit "tomobot/internal/transport"
	logx "tomobot/pkg/logx"
)

// ScanInterval is the fixed delivery cadence.
const ScanInterval = time.Minute

// Purge runs once a day, on the tick whose local time is purgeHour:00.
const purgeHour = 3

// State is the scheduler lifecycle. The scheduler starts Suspended and
// stays there until the transport signals readiness; after that it
// cycles Idle -> Scanning -> Delivering -> Idle once per tick.
type State int32

const (
	StateSuspended State = iota
	StateIdle
	StateScanning
	StateDelivering
)

func (s State) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateDelivering:
		return "delivering"
	default:
		return "unknown"
	}
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	// NewTicker returns a tick channel and a stop func.
	NewTicker(d time.Duration) (<-chan time.Time, func())
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
func (systemClock) NewTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// SystemClock is the production clock.
func SystemClock() Clock { return systemClock{} }

// Sender is the slice of the transport adapter the scheduler needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Scheduler scans the store once per minute and delivers due reminders.
// Ticks are serialized: a slow tick delays the next one, two ticks never
// run concurrently. Delivery is at-most-once per process: a reminder is
// removed after the delivery attempt whether or not the send succeeded.
type Scheduler struct {
	store  Store
	sender Sender
	ready  <-chan struct{}
	clock  Clock
	log    logx.Logger
	bus    eventbus.Bus

	state atomic.Int32
}

func NewScheduler(store Store, sender Sender, ready <-chan struct{}, clock Clock, log logx.Logger, bus eventbus.Bus) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		store:  store,
		sender: sender,
		ready:  ready,
		clock:  clock,
		log:    log.With(logx.String("comp", "reminder.scheduler")),
		bus:    bus,
	}
}

func (s *Scheduler) State() State { return State(s.state.Load()) }

func (s *Scheduler) setState(st State) { s.state.Store(int32(st)) }

// Run drives the tick loop until ctx is canceled. An in-flight tick
// finishes before Run returns. Intended to run under a supervisor.
func (s *Scheduler) Run(ctx context.Context) error {
	s.setState(StateSuspended)
	if s.ready != nil {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ready:
		}
	}
	s.setState(StateIdle)
	s.log.Info("scheduler active", logx.Duration("interval", ScanInterval))

	tick, stop := s.clock.NewTicker(ScanInterval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			s.setState(StateSuspended)
			return nil
		case <-tick:
			s.tick(ctx, s.clock.Now())
		}
	}
}

// tick is one scan-and-deliver pass. A store read failure skips the
// whole pass, including the purge.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.setState(StateScanning)
	defer s.setState(StateIdle)

	due, err := s.store.ListDue(now)
	if err != nil {
		s.log.Error("due scan failed", logx.Err(err))
		return
	}

	if len(due) > 0 {
		s.setState(StateDelivering)
		for _, r := range due {
			s.deliver(ctx, r)
		}
	}

	if now.Hour() == purgeHour && now.Minute() == 0 {
		s.purge(now)
	}
}

// deliver sends one reminder and removes it regardless of the send
// outcome. Failures are isolated per item.
func (s *Scheduler) deliver(ctx context.Context, r Reminder) {
	text := DeliveryText(r)
	_, err := s.sender.SendText(ctx, r.Dest, text, &kit.SendOptions{ParseMode: "HTML"})
	if err != nil {
		// No retry: the record is dropped below either way.
		s.log.Warn("delivery failed",
			logx.String("id", r.ShortID()),
			logx.Int64("chat", r.Dest.ChatID),
			logx.Err(err))
	}
	if rmErr := s.store.Remove(r.ID); rmErr != nil {
		s.log.Error("remove after delivery failed", logx.String("id", r.ShortID()), logx.Err(rmErr))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.EvReminderDelivered, Data: map[string]any{
			"id": r.ShortID(), "chat": r.Dest.ChatID, "ok": err == nil,
		}})
	}
}

func (s *Scheduler) purge(now time.Time) {
	cutoff := now.Add(-Retention)
	n, err := s.store.PurgeOlderThan(cutoff)
	if err != nil {
		s.log.Error("purge failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("purged stale reminders", logx.Int("count", n), logx.Time("cutoff", cutoff))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.EvReminderPurged, Data: map[string]any{"count": n}})
		}
	}
}
