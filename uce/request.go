package uce

import (
	"fmt"
	"time"

	"UCEGo/cache"
	"UCEGo/conn"
	. "UCEGo/global"
	"UCEGo/guid"
	"UCEGo/stats"
	"UCEGo/uce/errcode"
)

const (
	RequestKindCapability   string = "Capability"
	RequestKindAvailability string = "Availability"
	RequestKindRemote       string = "RemoteOptions"
)

// CapabilityCallback receives the outcome of one capability or availability
// request. A non-nil error from any method means the application side could not
// take delivery; that is terminal for the request and never retried.
type CapabilityCallback interface {
	OnCapabilitiesReceived(records []Capability) error
	OnComplete() error
	OnError(code errcode.Code, retryAfterMillis int64) error
}

// CapabilityCallbackFuncs adapts plain funcs to CapabilityCallback. Nil funcs
// are no-ops.
type CapabilityCallbackFuncs struct {
	Received func(records []Capability) error
	Complete func() error
	Error    func(code errcode.Code, retryAfterMillis int64) error
}

func (c CapabilityCallbackFuncs) OnCapabilitiesReceived(records []Capability) error {
	if c.Received == nil {
		return nil
	}
	return c.Received(records)
}

func (c CapabilityCallbackFuncs) OnComplete() error {
	if c.Complete == nil {
		return nil
	}
	return c.Complete()
}

func (c CapabilityCallbackFuncs) OnError(code errcode.Code, retryAfterMillis int64) error {
	if c.Error == nil {
		return nil
	}
	return c.Error(code, retryAfterMillis)
}

// requestOwner is the surface the manager exposes to its requests. Every method
// is invoked from the event context.
type requestOwner interface {
	readCapabilityCache(uris []string) []cache.Result
	readAvailabilityCache(uri string) cache.Result
	writeCache(records []Capability)
	isRequestForbidden() bool
	forbiddenDetails() (errcode.Code, int64)
	updateForbidden(code errcode.Code, retryAfterMillis int64)
	connection() conn.FeatureConnection
	ownFeatureTags() []string
	responseHandler(taskID int64) conn.ResponseHandler
	armResponseTimer(taskID int64)
	requestSucceeded(taskID int64)
	requestFailed(taskID int64)
}

type capabilityRequest interface {
	ID() int64
	String() string
	execute()
	handleEvent(ev conn.Event)
	finalize()
	writeStats(outcome string)
}

// =========================================================================================================

// uceRequest is the state shared by all request variants: targets, callback,
// aggregator and the finished flag every reentry point checks.
type uceRequest struct {
	taskID    int64
	kind      string
	mechanism CapabilityMechanism
	targets   []string
	skipCache bool
	callback  CapabilityCallback
	owner     requestOwner
	agg       *ResponseAggregator
	started   time.Time
	lastError errcode.Code
	finished  bool
}

func (rq *uceRequest) ID() int64 {
	return rq.taskID
}

func (rq *uceRequest) String() string {
	return fmt.Sprintf("task [%d] %s via %s targets [%d]", rq.taskID, rq.kind, rq.mechanism, len(rq.targets))
}

// executeRequest walks the common sequence: terminal guards, cache partition,
// cached delivery, then hands the remaining targets to the variant's network
// step. send is only invoked with a non-empty target list.
func (rq *uceRequest) executeRequest(send func(missing []string)) {
	if rq.finished {
		return
	}
	if len(rq.targets) == 0 {
		rq.fail(errcode.GenericFailure, 0)
		return
	}
	if rq.owner.isRequestForbidden() {
		code, retryAfter := rq.owner.forbiddenDetails()
		Prometrics.ForbiddenHits.Inc()
		LogInfo(LTRequest, fmt.Sprintf("%s rejected - requests forbidden [%s]", rq, code))
		rq.fail(code, retryAfter)
		return
	}

	missing := rq.targets
	if !rq.skipCache {
		var fresh []Capability
		fresh, missing = rq.partitionCached()
		Prometrics.CacheHits.Add(float64(len(fresh)))
		Prometrics.CacheMisses.Add(float64(len(missing)))
		if len(fresh) > 0 {
			if err := rq.callback.OnCapabilitiesReceived(fresh); err != nil {
				LogError(LTRequest, fmt.Sprintf("cached delivery failed for %s - %v", rq, err))
				rq.fail(errcode.GenericFailure, 0)
				return
			}
		}
	}

	if len(missing) == 0 {
		rq.complete()
		return
	}
	send(missing)
}

func (rq *uceRequest) partitionCached() (fresh []Capability, missing []string) {
	if rq.kind == RequestKindAvailability {
		res := rq.owner.readAvailabilityCache(rq.targets[0])
		if res.Status == cache.StatusFresh {
			return []Capability{res.Record}, nil
		}
		return nil, rq.targets
	}
	results := rq.owner.readCapabilityCache(rq.targets)
	for i, res := range results {
		if res.Status == cache.StatusFresh {
			fresh = append(fresh, res.Record)
		} else {
			missing = append(missing, rq.targets[i])
		}
	}
	return fresh, missing
}

func (rq *uceRequest) complete() {
	if rq.finished {
		return
	}
	rq.finished = true
	rq.lastError = errcode.None
	if rq.callback != nil {
		if err := rq.callback.OnComplete(); err != nil {
			LogWarning(LTRequest, fmt.Sprintf("completion delivery failed for %s - %v", rq, err))
		}
	}
	rq.owner.requestSucceeded(rq.taskID)
}

func (rq *uceRequest) fail(code errcode.Code, retryAfterMillis int64) {
	if rq.finished {
		return
	}
	rq.finished = true
	rq.lastError = code
	if rq.callback != nil {
		if err := rq.callback.OnError(code, retryAfterMillis); err != nil {
			LogWarning(LTRequest, fmt.Sprintf("error delivery failed for %s - %v", rq, err))
		}
	}
	rq.owner.requestFailed(rq.taskID)
}

// finalize marks the request finished without firing callbacks. Teardown path.
func (rq *uceRequest) finalize() {
	rq.finished = true
}

// deliverUpdated drains pending capability updates, persisting before delivery.
// Entries handed out are gone; redelivery cannot happen.
func (rq *uceRequest) deliverUpdated() {
	records := rq.agg.TakeUpdatedCapabilities()
	if len(records) == 0 {
		return
	}
	rq.owner.writeCache(records)
	if err := rq.callback.OnCapabilitiesReceived(records); err != nil {
		LogError(LTRequest, fmt.Sprintf("update delivery failed for %s - %v", rq, err))
		rq.fail(errcode.GenericFailure, 0)
	}
}

func (rq *uceRequest) deliverTerminated() {
	records := rq.agg.TakeTerminatedResources()
	if len(records) == 0 {
		return
	}
	rq.owner.writeCache(records)
	if err := rq.callback.OnCapabilitiesReceived(records); err != nil {
		LogError(LTRequest, fmt.Sprintf("terminated delivery failed for %s - %v", rq, err))
		rq.fail(errcode.GenericFailure, 0)
	}
}

func (rq *uceRequest) maybeUpdateForbidden(ev conn.Event) {
	if !IsForbiddenSip(ev.SipCode) {
		return
	}
	rq.owner.updateForbidden(SipCodeToError(ev.SipCode, ev.ReasonPhrase), ev.RetryAfterMillis)
}

func (rq *uceRequest) writeStats(outcome string) {
	record := stats.New()
	record.Set(stats.RecordID, guid.NewRecordID())
	record.Set(stats.Timestamp, time.Now().UTC().Format(time.RFC3339))
	record.Set(stats.SubscriptionID, Int2Str(SubscriptionID))
	record.Set(stats.TaskID, Int64ToStr(rq.taskID))
	record.Set(stats.Kind, rq.kind)
	record.Set(stats.Mechanism, string(rq.mechanism))
	record.Set(stats.TargetCount, Int2Str(len(rq.targets)))
	record.Set(stats.SipCode, Int2Str(rq.agg.SipCode()))
	record.Set(stats.ErrorCode, rq.lastError.String())
	record.Set(stats.DurationMillis, Int64ToStr(time.Since(rq.started).Milliseconds()))
	record.Set(stats.Outcome, outcome)
	record.Flush()
}
