package uce

import (
	"fmt"
	"sync"
	"time"

	"UCEGo/conn"
	"UCEGo/devcaps"
	. "UCEGo/global"
	"UCEGo/uce/cmdcode"
	"UCEGo/uce/pubstate"
	"UCEGo/uce/trigger"
)

// PublishController is the external facade for publish state: it holds the
// PublishState enum under its own lock, multicasts changes to registered
// listeners, and serializes every publish trigger and network callback onto the
// event context. Triggers deduplicate by type - a newer request of the same
// type replaces the older undelivered one.
type PublishController struct {
	executor  *Executor
	processor *PublishProcessor
	mu        sync.Mutex
	state     pubstate.State
	listeners map[int64]func(pubstate.State)
	lastID    int64
	destroyed bool
}

func NewPublishController(executor *Executor, fc conn.FeatureConnection, device *devcaps.Monitor, ids *TaskIDGenerator) *PublishController {
	pc := &PublishController{
		executor:  executor,
		state:     pubstate.NotPublished,
		listeners: make(map[int64]func(pubstate.State)),
	}
	pc.processor = NewPublishProcessor(pc, fc, device, ids)
	return pc
}

// RegisterPublishStateCallback adds a listener and returns its registration id.
// After teardown registration is a no-op and returns zero.
func (pc *PublishController) RegisterPublishStateCallback(listener func(pubstate.State)) int64 {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.destroyed || listener == nil {
		return 0
	}
	pc.lastID++
	pc.listeners[pc.lastID] = listener
	return pc.lastID
}

func (pc *PublishController) UnregisterPublishStateCallback(id int64) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.destroyed {
		return
	}
	delete(pc.listeners, id)
}

func (pc *PublishController) GetPublishState() pubstate.State {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.state
}

// RequestPublish enqueues a publish trigger onto the event context.
func (pc *PublishController) RequestPublish(tt trigger.Type) {
	pc.postPublishTrigger(tt, 0)
}

// OnCommandError forwards a transport failure for the given publish task.
func (pc *PublishController) OnCommandError(taskID int64, code cmdcode.Code) {
	pc.executor.Post(func() {
		pc.processor.OnCommandError(taskID, code)
	})
}

// OnNetworkResponse forwards the SIP response for the given publish task.
func (pc *PublishController) OnNetworkResponse(taskID int64, ev conn.Event) {
	pc.executor.Post(func() {
		pc.processor.OnNetworkResponse(taskID, ev)
	})
}

// ReplayPendingOnConnect re-runs a publish parked while the transport was down.
func (pc *PublishController) ReplayPendingOnConnect() {
	pc.executor.Post(func() {
		pc.processor.ReplayPending()
	})
}

func (pc *PublishController) Summary() PublishProcessorSummary {
	return pc.processor.State().Summary()
}

// Destroy drops the listener registry. Register and unregister become no-ops.
func (pc *PublishController) Destroy() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.destroyed = true
	pc.listeners = nil
}

// =========================================================================================================
// publishOwner surface

func publishKey(taskID int64) string {
	return fmt.Sprintf("publish:%d", taskID)
}

func triggerKey(tt trigger.Type) string {
	return fmt.Sprintf("publishTrigger:%s", tt)
}

func (pc *PublishController) postPublishTrigger(tt trigger.Type, delay time.Duration) {
	pc.executor.PostDelayed(triggerKey(tt), delay, func() {
		pc.processor.DoPublish(tt)
	})
}

func (pc *PublishController) cancelRetryTrigger() {
	pc.executor.Cancel(triggerKey(trigger.Retry))
}

// updatePublishResult mutates and broadcasts the publish state, only on actual
// change. Listeners are invoked outside the lock.
func (pc *PublishController) updatePublishResult(ps pubstate.State) {
	pc.mu.Lock()
	if pc.destroyed || pc.state == ps {
		pc.mu.Unlock()
		return
	}
	pc.state = ps
	listeners := make([]func(pubstate.State), 0, len(pc.listeners))
	for _, listener := range pc.listeners {
		listeners = append(listeners, listener)
	}
	pc.mu.Unlock()

	Prometrics.PublishState.Set(float64(ps))
	LogInfo(LTPublish, fmt.Sprintf("publish state [%s]", ps))
	for _, listener := range listeners {
		listener(ps)
	}
}

func (pc *PublishController) publishResponseHandler(taskID int64) conn.ResponseHandler {
	return func(ev conn.Event) {
		switch ev.Kind {
		case conn.KindCommandError:
			pc.OnCommandError(taskID, ev.Command)
		case conn.KindNetworkResponse:
			pc.OnNetworkResponse(taskID, ev)
		}
	}
}

// armPublishTimer bounds the wait on an in-flight publish so an unanswered
// exchange cannot block future publishes.
func (pc *PublishController) armPublishTimer(taskID int64) {
	pc.executor.PostDelayed(publishKey(taskID), time.Duration(PublishTimeoutSec)*time.Second, func() {
		pc.processor.OnCommandError(taskID, cmdcode.RequestTimeout)
	})
}

func (pc *PublishController) cancelPublishTimer(taskID int64) {
	pc.executor.Cancel(publishKey(taskID))
}
