package uce

import (
	"maps"
	"slices"
	"sync"

	"UCEGo/global"
)

type taskValue interface {
	String() string
}

// ConcurrentTaskMap tracks in-flight requests keyed by task id. Late responses
// probe it first; a missing id means the task was superseded or torn down and
// the response must be dropped.
type ConcurrentTaskMap[T taskValue] struct {
	_map map[int64]T
	mu   sync.RWMutex
}

func NewConcurrentTaskMap[T taskValue](sz int) ConcurrentTaskMap[T] {
	return ConcurrentTaskMap[T]{_map: make(map[int64]T, sz)}
}

func (c *ConcurrentTaskMap[T]) Store(id int64, rq T) {
	c.mu.Lock()
	c._map[id] = rq
	global.Prometrics.ActiveTasks.Inc()
	c.mu.Unlock()
}

// Delete removes the task if still present. Removal races are benign - only
// the caller that actually removed it reports true.
func (c *ConcurrentTaskMap[T]) Delete(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c._map[id]; !ok {
		return false
	}
	delete(c._map, id)
	global.Prometrics.ActiveTasks.Dec()
	return true
}

func (c *ConcurrentTaskMap[T]) Load(id int64) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rq, ok := c._map[id]
	return rq, ok
}

// Drain empties the map and returns what was in it.
func (c *ConcurrentTaskMap[T]) Drain() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	tasks := slices.Collect(maps.Values(c._map))
	for id := range c._map {
		delete(c._map, id)
		global.Prometrics.ActiveTasks.Dec()
	}
	return tasks
}

func (c *ConcurrentTaskMap[T]) Summaries() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return global.Map(slices.Collect(maps.Values(c._map)), func(x T) string { return x.String() })
}

func (c *ConcurrentTaskMap[T]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c._map)
}

func (c *ConcurrentTaskMap[T]) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c._map) == 0
}
