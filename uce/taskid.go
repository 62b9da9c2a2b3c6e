package uce

import "sync"

// TaskIDGenerator hands out the correlation ids that tie asynchronous network
// callbacks back to their originating exchange. Ids are monotonic and never
// reused within a process.
type TaskIDGenerator struct {
	mu   sync.Mutex
	last int64
}

func NewTaskIDGenerator() *TaskIDGenerator {
	return &TaskIDGenerator{}
}

func (g *TaskIDGenerator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last++
	return g.last
}

func (g *TaskIDGenerator) Current() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}
