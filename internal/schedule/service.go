// Package schedule runs named periodic jobs (plugin digests) on cron or
// interval specs in a configurable timezone.
package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "tomobot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Timezone string
}

const defaultJobTimeout = 30 * time.Second

type jobDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     func(ctx context.Context) error
	entry   cron.EntryID
	running bool
}

// Service hosts the cron runner. Jobs are upserted by name; overlapping
// runs of the same job are skipped.
type Service struct {
	mu     sync.Mutex
	cfg    Config
	log    logx.Logger
	parser cron.Parser
	loc    *time.Location
	c      *cron.Cron
	defs   map[string]*jobDef
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log.With(logx.String("comp", "schedule")),
		// SecondOptional allows both 5-field and 6-field cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		defs:   map[string]*jobDef{},
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply updates the config; a timezone change restarts the cron runner
// and re-registers every job.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if s.c != nil && oldTZ != strings.TrimSpace(cfg.Timezone) {
		s.restartLocked()
	}
}

func (s *Service) Start(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, d := range s.defs {
		s.registerLocked(d)
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.defs)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	s.log.Info("service stopped")
}

// Add upserts a named job. The spec argument accepts cron, HH:MM and Go duration
// forms (see ParseSpec). A zero timeout gets the default.
func (s *Service) Add(name, spec string, timeout time.Duration, job func(ctx context.Context) error) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name required")
	}
	ps, err := ParseSpec(spec)
	if err != nil {
		return err
	}
	cronSpec := ps.Cron
	if ps.Kind == SpecInterval {
		cronSpec = fmt.Sprintf("@every %s", ps.Every)
	}
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &jobDef{name: name, spec: cronSpec, timeout: timeout, job: job}
	s.defs[name] = d
	if s.c != nil {
		s.registerLocked(d)
	}
	return nil
}

func (s *Service) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
}

func (s *Service) removeLocked(name string) {
	d, ok := s.defs[name]
	if !ok {
		return
	}
	if s.c != nil && d.entry != 0 {
		s.c.Remove(d.entry)
	}
	delete(s.defs, name)
}

func (s *Service) registerLocked(d *jobDef) {
	id, err := s.c.AddFunc(d.spec, func() { s.run(d) })
	if err != nil {
		s.log.Error("job register failed",
			logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		return
	}
	d.entry = id
	s.log.Debug("job registered",
		logx.String("name", d.name), logx.String("spec", d.spec), logx.Duration("timeout", d.timeout))
}

func (s *Service) run(d *jobDef) {
	s.mu.Lock()
	if d.running {
		s.mu.Unlock()
		s.log.Debug("job still running; skipping", logx.String("name", d.name))
		return
	}
	d.running = true
	timeout := d.timeout
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		d.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked",
				logx.String("name", d.name), logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()
	if err := d.job(ctx); err != nil {
		s.log.Warn("job failed", logx.String("name", d.name), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Debug("job done", logx.String("name", d.name), logx.Duration("took", time.Since(start)))
}

func (s *Service) restartLocked() {
	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, d := range s.defs {
		d.entry = 0
		s.registerLocked(d)
	}
	s.c.Start()
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
