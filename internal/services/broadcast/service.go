package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "mdbot/internal/runtime/supervisor"
	kit "mdbot/internal/transport"
	logx "mdbot/pkg/logx"
)

var (
	// ErrBusy means the intake queue is full. The caller should tell the
	// requester to try again later.
	ErrBusy = errors.New("broadcast queue full")

	// ErrStopped means the service is not accepting jobs.
	ErrStopped = errors.New("broadcast service stopped")
)

type Config struct {
	// SendInterval is the pause between two consecutive sends of a pass.
	SendInterval time.Duration
	// QueueSize bounds how many jobs may wait for the single worker.
	QueueSize int
}

// Job is one queued broadcast request.
type Job struct {
	ID         string
	Recipients []int64
	Text       string
	// Requester receives the summary reply once the pass finishes.
	Requester kit.ChatTarget
}

// DoneFunc observes finished jobs. It runs on the worker goroutine, so it
// must return quickly.
type DoneFunc func(job Job, rep Report, took time.Duration)

// Service runs broadcast jobs one at a time through a bounded queue.
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	cfg    Config
	sender Sender
	log    logx.Logger
	onDone DoneFunc

	accepting bool
	queue     chan Job
	sup       *rtsup.Supervisor
	stopDone  chan struct{} // non-nil while stopping
}

func New(cfg Config, sender Sender, log logx.Logger) *Service {
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = DefaultSendInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, sender: sender, log: log}
}

// SetOnDone installs the completion observer. Set it before Start.
func (s *Service) SetOnDone(fn DoneFunc) {
	s.mu.Lock()
	s.onDone = fn
	s.mu.Unlock()
}

// Apply updates the tunables. The new interval takes effect with the next job.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	if cfg.SendInterval > 0 {
		s.cfg.SendInterval = cfg.SendInterval
	}
	if cfg.QueueSize > 0 {
		s.cfg.QueueSize = cfg.QueueSize
	}
	s.mu.Unlock()
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan Job, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "broadcast"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	sup.GoRestart("worker", func(c context.Context) error {
		s.workerLoop(c, q)
		// Clean exits happen on shutdown (queue close).
		s.mu.Lock()
		stopping := s.stopDone != nil
		s.mu.Unlock()
		if stopping {
			return context.Canceled
		}
		if c.Err() != nil {
			return c.Err()
		}
		return errors.New("broadcast worker exited unexpectedly")
	}, rtsup.WithPublishFirstError(true))

	s.log.Info("broadcaster started",
		logx.Int("queue", cap(q)),
		logx.Duration("send_interval", s.cfg.SendInterval),
	)
}

// Stop blocks intake and drains queued jobs best-effort until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		func() {
			defer func() { _ = recover() }()
			close(q)
		}()
		if sup != nil {
			_ = sup.Wait(context.Background())
		}

		s.mu.Lock()
		s.queue = nil
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Enqueue queues one broadcast pass and returns its job id. The recipient
// list is the caller's snapshot; the worker never re-enumerates.
func (s *Service) Enqueue(recipients []int64, text string, requester kit.ChatTarget) (string, error) {
	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return "", ErrStopped
	}
	q := s.queue
	s.mu.Unlock()

	j := Job{
		ID:         uuid.NewString(),
		Recipients: recipients,
		Text:       text,
		Requester:  requester,
	}
	select {
	case q <- j:
		s.log.Info("broadcast queued",
			logx.String("job", j.ID),
			logx.Int("recipients", len(recipients)),
		)
		return j.ID, nil
	default:
		return "", ErrBusy
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Job) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.runJob(ctx, j)
		}
	}
}

func (s *Service) runJob(ctx context.Context, j Job) {
	s.mu.Lock()
	interval := s.cfg.SendInterval
	fn := s.onDone
	s.mu.Unlock()

	start := time.Now()
	rep := NewEngine(s.sender, interval, s.log).Run(ctx, j.Recipients, j.Text)
	took := time.Since(start)

	s.log.Info("broadcast finished",
		logx.String("job", j.ID),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", took),
	)
	if fn != nil {
		fn(j, rep, took)
	}

	// Summary goes back to whoever asked. Best-effort: a dead requester
	// chat must not wedge the worker.
	if j.Requester.ChatID != 0 {
		summary := fmt.Sprintf("Broadcast finished: %d sent, %d failed", rep.Sent, rep.Failed)
		cctx, cancel := context.WithTimeout(ctx, perSendTimeout)
		if _, err := s.sender.SendText(cctx, j.Requester, summary, nil); err != nil {
			s.log.Warn("broadcast summary send failed",
				logx.String("job", j.ID),
				logx.Err(err),
			)
		}
		cancel()
	}
}
