package checkout

import (
	"sync"
	"sync/atomic"
	"time"
)

// Handle cancels a scheduled callback. After Stop returns no new run of the
// callback starts.
type Handle interface {
	Stop()
}

// Scheduler runs deferred and repeated callbacks.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Handle
	Every(d time.Duration, fn func()) Handle
}

// TimeScheduler runs callbacks on runtime timers.
type TimeScheduler struct{}

type timerHandle struct {
	stopped atomic.Bool
	t       *time.Timer
}

func (h *timerHandle) Stop() {
	h.stopped.Store(true)
	h.t.Stop()
}

func (TimeScheduler) AfterFunc(d time.Duration, fn func()) Handle {
	h := &timerHandle{}
	h.t = time.AfterFunc(d, func() {
		if h.stopped.Load() {
			return
		}
		fn()
	})
	return h
}

type tickerHandle struct {
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}
}

func (h *tickerHandle) Stop() {
	h.stopped.Store(true)
	h.once.Do(func() { close(h.done) })
}

func (TimeScheduler) Every(d time.Duration, fn func()) Handle {
	h := &tickerHandle{done: make(chan struct{})}
	go func() {
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-h.done:
				return
			case <-t.C:
				if h.stopped.Load() {
					return
				}
				fn()
			}
		}
	}()
	return h
}

// Serialized runs every callback of s while holding l, and drops callbacks
// whose handle was stopped while they waited for the lock.
func Serialized(s Scheduler, l sync.Locker) Scheduler {
	return serialized{inner: s, l: l}
}

type serialized struct {
	inner Scheduler
	l     sync.Locker
}

type serialHandle struct {
	stopped atomic.Bool
	inner   Handle
}

func (h *serialHandle) Stop() {
	h.stopped.Store(true)
	if h.inner != nil {
		h.inner.Stop()
	}
}

func (s serialized) wrap(h *serialHandle, fn func()) func() {
	return func() {
		s.l.Lock()
		defer s.l.Unlock()
		if h.stopped.Load() {
			return
		}
		fn()
	}
}

func (s serialized) AfterFunc(d time.Duration, fn func()) Handle {
	h := &serialHandle{}
	h.inner = s.inner.AfterFunc(d, s.wrap(h, fn))
	return h
}

func (s serialized) Every(d time.Duration, fn func()) Handle {
	h := &serialHandle{}
	h.inner = s.inner.Every(d, s.wrap(h, fn))
	return h
}

// ManualScheduler fires callbacks only when Advance moves its clock.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	s       *ManualScheduler
	seq     int
	due     time.Duration
	every   time.Duration
	fn      func()
	stopped bool
}

func (t *manualTask) Stop() {
	t.s.mu.Lock()
	t.stopped = true
	t.s.mu.Unlock()
}

func NewManualScheduler() *ManualScheduler { return &ManualScheduler{} }

func (m *ManualScheduler) AfterFunc(d time.Duration, fn func()) Handle {
	return m.add(d, 0, fn)
}

func (m *ManualScheduler) Every(d time.Duration, fn func()) Handle {
	return m.add(d, d, fn)
}

func (m *ManualScheduler) add(d, every time.Duration, fn func()) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{s: m, seq: m.seq, due: m.now + d, every: every, fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

// Advance moves the clock forward by d and runs every callback that falls
// due, in time order. Callbacks run on the calling goroutine.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		m.now = t.due
		if t.every > 0 {
			t.due += t.every
		} else {
			t.stopped = true
		}
		m.mu.Unlock()
		t.fn()
		m.mu.Lock()
	}
	m.now = target
	m.compact()
	m.mu.Unlock()
}

// Pending reports how many callbacks are still scheduled.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compact()
	return len(m.tasks)
}

func (m *ManualScheduler) nextDue(target time.Duration) *manualTask {
	var next *manualTask
	for _, t := range m.tasks {
		if t.stopped || t.due > target {
			continue
		}
		if next == nil || t.due < next.due || (t.due == next.due && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

func (m *ManualScheduler) compact() {
	live := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.stopped {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(m.tasks); i++ {
		m.tasks[i] = nil
	}
	m.tasks = live
}
