package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "mdbot/pkg/logx"
)

// Job is one unit of deferred work. It must honor ctx cancellation.
type Job func(ctx context.Context) error

var ErrNotStarted = errors.New("scheduler not started")

type Config struct {
	Timezone    string        // IANA name; empty means time.Local
	HistorySize int           // default 100
	MaxDelay    time.Duration // one-shot delay ceiling; default 24h
}

// RunRecord is one finished job run.
type RunRecord struct {
	ID       string
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// JobInfo describes a pending job.
type JobInfo struct {
	ID   string
	Name string
	Spec string    // cron spec; empty for one-shots
	At   time.Time // one-shot fire time, or next cron fire
}

type onceDef struct {
	id    string
	name  string
	at    time.Time
	timer *time.Timer
}

type cronDef struct {
	id    string
	name  string
	spec  string
	entry cron.EntryID
}

// Service owns the timers and the cron runner. Safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron

	started bool
	seq     uint64
	onces   map[string]*onceDef
	crons   map[string]*cronDef

	runCtx    context.Context
	runCancel context.CancelFunc
	runWG     sync.WaitGroup

	hmu     sync.Mutex
	history []RunRecord
}

func New(cfg Config, log logx.Logger) *Service {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 24 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		onces:  map[string]*onceDef{},
		crons:  map[string]*cronDef{},
	}
}

// MaxDelay reports the ceiling for Once delays.
func (s *Service) MaxDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.MaxDelay
}

// Apply updates the one-shot delay ceiling. Timezone and history size are
// fixed at Start; the cron runner keeps the location it was built with.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	if cfg.MaxDelay > 0 {
		s.cfg.MaxDelay = cfg.MaxDelay
	}
	s.mu.Unlock()
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.started = true
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()))
}

// Stop cancels pending timers, stops the cron runner, and waits for
// in-flight jobs until ctx expires; after that they are cut off.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	c := s.c
	s.c = nil
	for id, d := range s.onces {
		d.timer.Stop()
		delete(s.onces, id)
	}
	for id := range s.crons {
		delete(s.crons, id)
	}
	cancel := s.runCancel
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	done := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			s.log.Warn("scheduler jobs did not exit in time")
		}
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("scheduler stopped")
}

// Once fires job once, delay from now. The delay must be positive and at
// most the configured ceiling.
func (s *Service) Once(name string, delay, timeout time.Duration, job Job) (string, error) {
	if job == nil {
		return "", errors.New("nil job")
	}
	if delay <= 0 {
		return "", fmt.Errorf("delay must be positive, got %v", delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if delay > s.cfg.MaxDelay {
		return "", fmt.Errorf("delay %v exceeds the %v ceiling", delay, s.cfg.MaxDelay)
	}
	if !s.started {
		return "", ErrNotStarted
	}
	s.seq++
	id := fmt.Sprintf("once:%d", s.seq)
	d := &onceDef{id: id, name: name, at: time.Now().Add(delay)}
	d.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.onces, id)
		s.mu.Unlock()
		s.fire(id, name, timeout, job)
	})
	s.onces[id] = d
	return id, nil
}

// Cron registers a recurring job on a standard 5-field spec (or a
// descriptor like "@daily").
func (s *Service) Cron(name, spec string, timeout time.Duration, job Job) (string, error) {
	if job == nil {
		return "", errors.New("nil job")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return "", ErrNotStarted
	}
	s.seq++
	id := fmt.Sprintf("cron:%d", s.seq)
	entry, err := s.c.AddFunc(spec, func() {
		s.fire(id, name, timeout, job)
	})
	if err != nil {
		return "", fmt.Errorf("cron spec %q: %w", spec, err)
	}
	s.crons[id] = &cronDef{id: id, name: name, spec: spec, entry: entry}
	return id, nil
}

// Remove cancels a pending job. Removing an already-fired one-shot is a no-op.
func (s *Service) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.onces[id]; ok {
		d.timer.Stop()
		delete(s.onces, id)
		return true
	}
	if d, ok := s.crons[id]; ok {
		if s.c != nil {
			s.c.Remove(d.entry)
		}
		delete(s.crons, id)
		return true
	}
	return false
}

// Jobs lists pending jobs sorted by id.
func (s *Service) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.onces)+len(s.crons))
	for _, d := range s.onces {
		out = append(out, JobInfo{ID: d.id, Name: d.name, At: d.at})
	}
	for _, d := range s.crons {
		info := JobInfo{ID: d.id, Name: d.name, Spec: d.spec}
		if s.c != nil {
			info.At = s.c.Entry(d.entry).Next
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// History returns a copy of the run records, oldest first.
func (s *Service) History() []RunRecord {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]RunRecord(nil), s.history...)
}

// fire runs one job with timeout and panic isolation. Firings after Stop
// are dropped.
func (s *Service) fire(id, name string, timeout time.Duration, job Job) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.runWG.Add(1)
	ctx := s.runCtx
	s.mu.Unlock()
	defer s.runWG.Done()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("job panicked",
					logx.String("job", name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
			}
		}()
		return job(ctx)
	}()

	rec := RunRecord{ID: id, Name: name, Started: start, Duration: time.Since(start)}
	if err != nil {
		rec.Error = err.Error()
		s.log.Warn("job failed", logx.String("job", name), logx.Err(err))
	} else {
		s.log.Debug("job ok", logx.String("job", name), logx.Duration("took", rec.Duration))
	}

	s.hmu.Lock()
	s.history = append(s.history, rec)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
