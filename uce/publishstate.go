package uce

import (
	"sync"
	"time"

	. "UCEGo/global"
	"UCEGo/uce/trigger"
)

// PublishProcessorState carries the publish concurrency flag, the parked
// pending trigger, the retry counter and the next-allowed-publish time. Guarded
// by its own lock: the response-wait timer and the event context both touch it.
type PublishProcessorState struct {
	mu             sync.Mutex
	taskID         int64
	publishing     bool
	pending        bool
	pendingTrigger trigger.Type
	retryCount     int
	allowedTime    time.Time
}

func NewPublishProcessorState() *PublishProcessorState {
	return &PublishProcessorState{}
}

func (ps *PublishProcessorState) SetCurrentTask(taskID int64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.taskID = taskID
}

func (ps *PublishProcessorState) CurrentTask() int64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.taskID
}

func (ps *PublishProcessorState) IsPublishing() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.publishing
}

func (ps *PublishProcessorState) SetPublishing(publishing bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.publishing = publishing
}

// SetPending parks a trigger while a publish is in flight. The most recent
// trigger wins.
func (ps *PublishProcessorState) SetPending(tt trigger.Type) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.pending = true
	ps.pendingTrigger = tt
}

func (ps *PublishProcessorState) TakePending() (trigger.Type, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if !ps.pending {
		return 0, false
	}
	ps.pending = false
	return ps.pendingTrigger, true
}

// ResetRetryCount zeroes the counter and reopens the allowed window. Any
// publish that is not itself a retry resets, as does publish success.
func (ps *PublishProcessorState) ResetRetryCount() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.retryCount = 0
	ps.allowedTime = time.Time{}
}

func (ps *PublishProcessorState) CanRetry() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.retryCount < PublishMaxRetries
}

// ScheduleRetry bumps the counter, stamps the allowed time and returns the
// computed backoff delay with the new count.
func (ps *PublishProcessorState) ScheduleRetry() (time.Duration, int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.retryCount++
	delay := RetryDelay(ps.retryCount)
	ps.allowedTime = time.Now().Add(delay)
	return delay, ps.retryCount
}

// DelayToAllowed is how long a publish must still wait, zero when allowed now.
func (ps *PublishProcessorState) DelayToAllowed() time.Duration {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.allowedTime.IsZero() {
		return 0
	}
	delay := time.Until(ps.allowedTime)
	if delay < 0 {
		return 0
	}
	return delay
}

// RetryDelay is the backoff for the n-th retry: base * 2^(n-1), zero at zero.
func RetryDelay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	return time.Duration(RetryBasePeriodMin) * time.Minute << (retryCount - 1)
}

type PublishProcessorSummary struct {
	TaskID      int64  `json:"taskId"`
	Publishing  bool   `json:"publishing"`
	Pending     bool   `json:"pending"`
	RetryCount  int    `json:"retryCount"`
	AllowedTime string `json:"allowedTime,omitempty"`
}

func (ps *PublishProcessorState) Summary() PublishProcessorSummary {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	summary := PublishProcessorSummary{
		TaskID:     ps.taskID,
		Publishing: ps.publishing,
		Pending:    ps.pending,
		RetryCount: ps.retryCount,
	}
	if !ps.allowedTime.IsZero() && time.Now().Before(ps.allowedTime) {
		summary.AllowedTime = ps.allowedTime.Format(time.RFC3339)
	}
	return summary
}
