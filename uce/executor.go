package uce

import (
	"sync"
	"time"

	. "UCEGo/global"
)

// Executor is the single event context that owns all mutable request and
// publish state for one subscription. Every external entry point is converted
// into a posted func, so processing is strictly sequential and nothing inside
// the context ever blocks except by re-posting a delayed message.
type Executor struct {
	queue   chan func()
	quit    chan struct{}
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func NewExecutor() *Executor {
	ex := &Executor{
		queue:  make(chan func(), QueueSize),
		quit:   make(chan struct{}),
		timers: make(map[string]*time.Timer),
	}
	WtGrp.Add(1)
	go ex.run()
	return ex
}

func (ex *Executor) run() {
	defer WtGrp.Done()
	for {
		select {
		case <-ex.quit:
			return
		case fn := <-ex.queue:
			ex.invoke(fn)
		}
	}
}

func (ex *Executor) invoke(fn func()) {
	defer LogCallStack()
	fn()
}

// Post enqueues fn onto the event context. Returns false once the executor has
// been stopped.
func (ex *Executor) Post(fn func()) bool {
	ex.mu.Lock()
	if ex.stopped {
		ex.mu.Unlock()
		return false
	}
	ex.mu.Unlock()
	select {
	case ex.queue <- fn:
		return true
	case <-ex.quit:
		return false
	}
}

// PostDelayed schedules fn after delay. A later call with the same key replaces
// the earlier undelivered one, which is what deduplicates repeated triggers and
// re-arms per-task wait timers.
func (ex *Executor) PostDelayed(key string, delay time.Duration, fn func()) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.stopped {
		return
	}
	if tmr, ok := ex.timers[key]; ok {
		tmr.Stop()
	}
	ex.timers[key] = time.AfterFunc(delay, func() {
		ex.mu.Lock()
		delete(ex.timers, key)
		ex.mu.Unlock()
		ex.Post(fn)
	})
}

func (ex *Executor) Cancel(key string) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if tmr, ok := ex.timers[key]; ok {
		tmr.Stop()
		delete(ex.timers, key)
	}
}

// Stop cancels all pending timers and queued events and ends the worker. Posts
// after Stop are dropped.
func (ex *Executor) Stop() {
	ex.mu.Lock()
	if ex.stopped {
		ex.mu.Unlock()
		return
	}
	ex.stopped = true
	for ky, tmr := range ex.timers {
		tmr.Stop()
		delete(ex.timers, ky)
	}
	ex.mu.Unlock()
	close(ex.quit)
}
