// Package scheduler runs the SDK's single worker goroutine. All store
// and network mutation happens on this goroutine: public API calls
// post closures here and return immediately, which is what makes the
// rest of the SDK safe without per-component locking.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalpipe/signalpipe-go/pkg/logging"
)

// tickInterval is how long the worker sleeps between loop iterations.
const tickInterval = 100 * time.Millisecond

// Task is a fire-once unit of work executed on the worker goroutine.
type Task func()

// Timer is a periodic callback registered with Every. Pausing keeps it
// registered but skipped; the final forced tick on Stop still runs it.
type Timer struct {
	period   time.Duration
	callback Task
	lastFire time.Time
	paused   atomic.Bool
}

// Pause stops periodic firing until Resume.
func (t *Timer) Pause() { t.paused.Store(true) }

// Resume re-enables periodic firing. The next fire happens one full
// period from now.
func (t *Timer) Resume() {
	t.paused.Store(false)
}

// Scheduler owns one FIFO task queue and a list of periodic timers,
// both drained by a single background worker.
type Scheduler struct {
	mu     sync.Mutex
	tasks  []Task
	timers []*Timer
	log    *logging.Logger

	stop    chan struct{}
	done    chan struct{}
	stopped atomic.Bool
}

// New creates a scheduler and starts its worker goroutine.
func New(log *logging.Logger) *Scheduler {
	s := &Scheduler{
		log:  log,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.work()
	return s
}

// Post enqueues a fire-once task. FIFO order is preserved. Posting
// after Stop is a no-op; the return value reports whether the task was
// accepted. Accepted tasks always run, the final drain in Stop included.
func (s *Scheduler) Post(task Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.Load() {
		return false
	}
	s.tasks = append(s.tasks, task)
	return true
}

// Every registers a periodic callback. The first execution happens
// after one full period has elapsed, never immediately.
func (s *Scheduler) Every(period time.Duration, callback Task) *Timer {
	t := &Timer{
		period:   period,
		callback: callback,
		lastFire: time.Now(),
	}
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()
	return t
}

// Stop shuts the worker down cooperatively: it joins the worker, then
// performs one final forced drain of the task queue and one forced tick
// of every timer so queued event adds and the final flush are not lost
// on quit. Blocks until all of that has run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped.Load() {
		s.mu.Unlock()
		return
	}
	s.stopped.Store(true)
	s.mu.Unlock()

	close(s.stop)
	<-s.done

	s.drain()

	s.mu.Lock()
	timers := make([]*Timer, len(s.timers))
	copy(timers, s.timers)
	s.mu.Unlock()
	for _, t := range timers {
		s.invoke(t.callback)
	}
}

// Stopped reports whether Stop has been called.
func (s *Scheduler) Stopped() bool {
	return s.stopped.Load()
}

func (s *Scheduler) work() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		s.drain()
		s.tickTimers()

		select {
		case <-s.stop:
			return
		case <-time.After(tickInterval):
		}
	}
}

// drain runs queued tasks until the queue is empty, including tasks
// posted by tasks already running in this drain.
func (s *Scheduler) drain() {
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			return
		}
		task := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.mu.Unlock()

		s.invoke(task)
	}
}

func (s *Scheduler) tickTimers() {
	s.mu.Lock()
	timers := make([]*Timer, len(s.timers))
	copy(timers, s.timers)
	s.mu.Unlock()

	now := time.Now()
	for _, t := range timers {
		if t.paused.Load() {
			// Keep the clock moving so resuming waits a full period.
			t.lastFire = now
			continue
		}
		if now.Sub(t.lastFire) >= t.period {
			t.lastFire = now
			s.invoke(t.callback)
		}
	}
}

// invoke runs a callback, recovering panics so one bad task cannot
// take down the worker or the other timers.
func (s *Scheduler) invoke(task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("worker task panicked: %v", r)
		}
	}()
	task()
}
