package uce

import (
	"fmt"
	"time"

	"UCEGo/conn"
	"UCEGo/devcaps"
	. "UCEGo/global"
	"UCEGo/pidf"
	"UCEGo/uce/cmdcode"
	"UCEGo/uce/pubstate"
	"UCEGo/uce/trigger"
)

// publishOwner is the surface the controller exposes to the processor:
// re-posting delayed triggers, broadcasting state, and the per-task wait timer.
type publishOwner interface {
	postPublishTrigger(tt trigger.Type, delay time.Duration)
	cancelRetryTrigger()
	updatePublishResult(ps pubstate.State)
	publishResponseHandler(taskID int64) conn.ResponseHandler
	armPublishTimer(taskID int64)
	cancelPublishTimer(taskID int64)
}

// PublishProcessor drives the device's own capability document to the network:
// one serialized PUBLISH at a time, retried with exponential backoff on
// transient failures. All entry points run on the event context.
type PublishProcessor struct {
	state  *PublishProcessorState
	owner  publishOwner
	fc     conn.FeatureConnection
	device *devcaps.Monitor
	ids    *TaskIDGenerator
}

func NewPublishProcessor(owner publishOwner, fc conn.FeatureConnection, device *devcaps.Monitor, ids *TaskIDGenerator) *PublishProcessor {
	return &PublishProcessor{
		state:  NewPublishProcessorState(),
		owner:  owner,
		fc:     fc,
		device: device,
		ids:    ids,
	}
}

func (pp *PublishProcessor) State() *PublishProcessorState {
	return pp.state
}

func (pp *PublishProcessor) DoPublish(tt trigger.Type) {
	if tt != trigger.Retry {
		// a fresh trigger supersedes whatever retry chain was under way
		pp.state.ResetRetryCount()
		pp.owner.cancelRetryTrigger()
	}

	snapshot := pp.device.Snapshot()
	if !snapshot.Provisioned {
		LogInfo(LTPublish, fmt.Sprintf("[%s] trigger skipped - not provisioned", tt))
		return
	}
	if !snapshot.ImsRegistered {
		LogInfo(LTPublish, fmt.Sprintf("[%s] trigger skipped - not registered", tt))
		return
	}
	if pp.state.IsPublishing() {
		pp.state.SetPending(tt)
		LogInfo(LTPublish, fmt.Sprintf("publish in flight - [%s] trigger parked", tt))
		return
	}
	if delay := pp.state.DelayToAllowed(); delay > 0 {
		LogInfo(LTPublish, fmt.Sprintf("publish not yet allowed - [%s] trigger re-enqueued after [%s]", tt, delay))
		pp.owner.postPublishTrigger(tt, delay)
		return
	}

	doc := pidf.Encode(OwnRcsURI, snapshot.Tuples(OwnRcsURI))
	if doc == "" {
		LogWarning(LTPublish, fmt.Sprintf("[%s] trigger skipped - empty capability document", tt))
		return
	}
	if !pp.fc.IsConnected() {
		pp.state.SetPending(tt)
		LogInfo(LTPublish, fmt.Sprintf("no feature connection - [%s] trigger parked", tt))
		return
	}

	taskID := pp.ids.Next()
	pp.state.SetCurrentTask(taskID)
	pp.state.SetPublishing(true)
	Prometrics.PublishAttempts.Inc()
	pp.owner.updatePublishResult(pubstate.Publishing)

	if err := pp.fc.SubmitPublish(doc, pp.owner.publishResponseHandler(taskID)); err != nil {
		LogWarning(LTPublish, fmt.Sprintf("publish submit failed - %v", err))
		pp.state.SetPublishing(false)
		pp.state.SetPending(tt)
		return
	}
	LogInfo(LTPublish, fmt.Sprintf("publish task [%d] submitted [%d bytes]", taskID, len(doc)))
	pp.owner.armPublishTimer(taskID)
}

// OnCommandError handles a transport-level failure of the in-flight publish.
func (pp *PublishProcessor) OnCommandError(taskID int64, code cmdcode.Code) {
	if !pp.isCurrentTask(taskID) {
		return
	}
	pp.owner.cancelPublishTimer(taskID)
	LogWarning(LTPublish, fmt.Sprintf("publish task [%d] command error [%s]", taskID, code))
	pp.settleAttempt(RetryableCommand(code), commandTerminalState(code))
}

// OnNetworkResponse handles the SIP response of the in-flight publish.
func (pp *PublishProcessor) OnNetworkResponse(taskID int64, ev conn.Event) {
	if !pp.isCurrentTask(taskID) {
		return
	}
	pp.owner.cancelPublishTimer(taskID)
	if IsPositive(ev.SipCode) {
		LogInfo(LTPublish, fmt.Sprintf("publish task [%d] succeeded [%d %s]", taskID, ev.SipCode, ev.ReasonPhrase))
		pp.state.SetPublishing(false)
		pp.state.ResetRetryCount()
		pp.owner.updatePublishResult(pubstate.OK)
		pp.ReplayPending()
		return
	}
	LogWarning(LTPublish, fmt.Sprintf("publish task [%d] rejected [%d %s]", taskID, ev.SipCode, ev.ReasonPhrase))
	pp.settleAttempt(RetryableSip(ev.SipCode), sipTerminalState(ev.SipCode))
}

// settleAttempt clears the in-flight flag, then either schedules the next
// backoff retry or surfaces the terminal state once retries are exhausted.
// Either way a parked pending trigger is replayed.
func (pp *PublishProcessor) settleAttempt(retryable bool, terminal pubstate.State) {
	pp.state.SetPublishing(false)
	if retryable && pp.state.CanRetry() {
		delay, count := pp.state.ScheduleRetry()
		Prometrics.PublishRetries.Inc()
		LogInfo(LTPublish, fmt.Sprintf("publish retry [%d/%d] scheduled after [%s]", count, PublishMaxRetries, delay))
		pp.owner.postPublishTrigger(trigger.Retry, delay)
	} else {
		pp.owner.updatePublishResult(terminal)
	}
	pp.ReplayPending()
}

// ReplayPending re-enqueues the trigger parked during an in-flight publish,
// honoring whatever backoff window currently applies.
func (pp *PublishProcessor) ReplayPending() {
	if tt, ok := pp.state.TakePending(); ok {
		LogInfo(LTPublish, fmt.Sprintf("replaying parked [%s] trigger", tt))
		pp.owner.postPublishTrigger(tt, pp.state.DelayToAllowed())
	}
}

// isCurrentTask gates response entry points: only the in-flight task may settle
// the attempt. Superseded or duplicate responses are dropped.
func (pp *PublishProcessor) isCurrentTask(taskID int64) bool {
	if pp.state.IsPublishing() && pp.state.CurrentTask() == taskID {
		return true
	}
	LogInfo(LTPublish, fmt.Sprintf("response for stale publish task [%d] discarded", taskID))
	return false
}

func commandTerminalState(code cmdcode.Code) pubstate.State {
	if code == cmdcode.RequestTimeout {
		return pubstate.RequestTimeout
	}
	return pubstate.OtherError
}

func sipTerminalState(sipCode int) pubstate.State {
	if sipCode == 408 {
		return pubstate.RequestTimeout
	}
	return pubstate.OtherError
}
