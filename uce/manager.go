package uce

import (
	"fmt"
	"sync"
	"time"

	"UCEGo/cache"
	"UCEGo/conn"
	. "UCEGo/global"
	"UCEGo/uce/cmdcode"
	"UCEGo/uce/errcode"
)

// Manager accepts capability and availability requests, picks the network
// mechanism from the carrier configuration, and tracks each request in the task
// map until it finishes. All lifecycle transitions run on the shared event
// context; external entry points only post.
type Manager struct {
	executor  *Executor
	ids       *TaskIDGenerator
	tasks     ConcurrentTaskMap[capabilityRequest]
	server    *ServerState
	store     cache.Store
	fc        conn.FeatureConnection
	ownTags   func() []string
	mu        sync.Mutex
	destroyed bool
}

func NewManager(executor *Executor, ids *TaskIDGenerator, server *ServerState, store cache.Store, fc conn.FeatureConnection, ownTags func() []string) *Manager {
	return &Manager{
		executor: executor,
		ids:      ids,
		tasks:    NewConcurrentTaskMap[capabilityRequest](QueueSize),
		server:   server,
		store:    store,
		fc:       fc,
		ownTags:  ownTags,
	}
}

func (m *Manager) SendCapabilityRequest(uris []string, skipCache bool, cb CapabilityCallback) {
	m.sendRequest(RequestKindCapability, uris, skipCache, cb)
}

func (m *Manager) SendAvailabilityRequest(uri string, cb CapabilityCallback) {
	m.sendRequest(RequestKindAvailability, []string{uri}, false, cb)
}

func (m *Manager) sendRequest(kind string, uris []string, skipCache bool, cb CapabilityCallback) {
	if m.isDestroyed() {
		deliverImmediateError(cb, errcode.GenericFailure)
		return
	}
	mech, ok := selectMechanism()
	if !ok {
		LogWarning(LTRequest, "no capability exchange mechanism enabled")
		deliverImmediateError(cb, errcode.NotEnabled)
		return
	}

	rq := m.buildRequest(kind, mech, uris, skipCache, cb, nil, nil)
	m.registerAndRun(rq, cb)
}

// RetrieveCapabilitiesForRemote services an inbound capability query from a
// remote endpoint: the sender's tags are cached and the response carries the
// local tags.
func (m *Manager) RetrieveCapabilitiesForRemote(sender string, remoteTags []string, respond func(ownTags []string)) {
	if m.isDestroyed() {
		return
	}
	rq := m.buildRequest(RequestKindRemote, MechanismOptions, []string{sender}, true, nil, remoteTags, respond)
	m.registerAndRun(rq, nil)
}

func (m *Manager) buildRequest(kind string, mech CapabilityMechanism, uris []string, skipCache bool, cb CapabilityCallback, remoteTags []string, respond func([]string)) capabilityRequest {
	base := uceRequest{
		taskID:    m.ids.Next(),
		kind:      kind,
		mechanism: mech,
		targets:   Map(uris, NormalizeURI),
		skipCache: skipCache,
		callback:  cb,
		owner:     m,
		agg:       NewResponseAggregator(),
		started:   time.Now(),
		lastError: errcode.None,
	}
	if kind == RequestKindRemote {
		return newRemoteOptionsRequest(base, remoteTags, respond)
	}
	if mech == MechanismPresence {
		return newSubscribeRequest(base)
	}
	return newOptionsRequest(base)
}

func (m *Manager) registerAndRun(rq capabilityRequest, cb CapabilityCallback) {
	m.tasks.Store(rq.ID(), rq)
	LogInfo(LTRequest, fmt.Sprintf("accepted %s", rq))
	if !m.executor.Post(rq.execute) {
		m.tasks.Delete(rq.ID())
		deliverImmediateError(cb, errcode.GenericFailure)
	}
}

func selectMechanism() (CapabilityMechanism, bool) {
	if PresenceCapEnabled && PresenceSupported {
		return MechanismPresence, true
	}
	if OptionsSupported {
		return MechanismOptions, true
	}
	return "", false
}

func deliverImmediateError(cb CapabilityCallback, code errcode.Code) {
	if cb == nil {
		return
	}
	if err := cb.OnError(code, 0); err != nil {
		LogWarning(LTRequest, fmt.Sprintf("error delivery failed - %v", err))
	}
}

func (m *Manager) isDestroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}

// OnDestroy finalizes all outstanding tasks without callbacks. The shared
// executor must already be stopped so nothing races the finalization.
func (m *Manager) OnDestroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	m.mu.Unlock()

	tasks := m.tasks.Drain()
	for _, rq := range tasks {
		m.executor.Cancel(taskKey(rq.ID()))
		rq.finalize()
	}
	if len(tasks) > 0 {
		LogInfo(LTRequest, fmt.Sprintf("finalized [%d] outstanding tasks", len(tasks)))
	}
}

func (m *Manager) TaskCount() int {
	return m.tasks.Count()
}

func (m *Manager) TaskSummaries() []string {
	return m.tasks.Summaries()
}

// =========================================================================================================
// requestOwner surface

func taskKey(taskID int64) string {
	return fmt.Sprintf("task:%d", taskID)
}

func (m *Manager) readCapabilityCache(uris []string) []cache.Result {
	return m.store.ReadCapabilities(uris)
}

func (m *Manager) readAvailabilityCache(uri string) cache.Result {
	return m.store.ReadAvailability(uri)
}

func (m *Manager) writeCache(records []Capability) {
	if err := m.store.Write(records); err != nil {
		LogError(LTCache, fmt.Sprintf("cache write failed - %v", err))
	}
}

func (m *Manager) isRequestForbidden() bool {
	return m.server.IsRequestForbidden()
}

func (m *Manager) forbiddenDetails() (errcode.Code, int64) {
	return m.server.ForbiddenDetails()
}

func (m *Manager) updateForbidden(code errcode.Code, retryAfterMillis int64) {
	LogWarning(LTRequest, fmt.Sprintf("network forbade requests [%s] retryAfter [%d ms]", code, retryAfterMillis))
	m.server.UpdateRequestForbidden(true, code, retryAfterMillis)
}

func (m *Manager) connection() conn.FeatureConnection {
	return m.fc
}

func (m *Manager) ownFeatureTags() []string {
	return m.ownTags()
}

// responseHandler posts transport events back onto the event context. The task
// lookup happens there; a missing id means the task was superseded or torn down
// and the event is dropped without side effects.
func (m *Manager) responseHandler(taskID int64) conn.ResponseHandler {
	return func(ev conn.Event) {
		m.executor.Post(func() {
			rq, ok := m.tasks.Load(taskID)
			if !ok {
				LogInfo(LTRequest, fmt.Sprintf("%s for inactive task [%d] discarded", ev.Kind, taskID))
				return
			}
			rq.handleEvent(ev)
		})
	}
}

// armResponseTimer bounds the wait on an in-flight network exchange. Firing
// injects a timeout command error, which the request classifies like any other
// transport failure.
func (m *Manager) armResponseTimer(taskID int64) {
	m.executor.PostDelayed(taskKey(taskID), time.Duration(RequestTimeoutSec)*time.Second, func() {
		rq, ok := m.tasks.Load(taskID)
		if !ok {
			return
		}
		LogWarning(LTRequest, fmt.Sprintf("response wait expired for %s", rq))
		rq.handleEvent(conn.Event{Kind: conn.KindCommandError, Command: cmdcode.RequestTimeout})
	})
}

func (m *Manager) requestSucceeded(taskID int64) {
	m.finishTask(taskID, "success")
}

func (m *Manager) requestFailed(taskID int64) {
	m.finishTask(taskID, "failure")
}

// finishTask removes the task exactly once, on whichever terminal transition
// fired first. A second attempt finds nothing and is benign.
func (m *Manager) finishTask(taskID int64, outcome string) {
	m.executor.Cancel(taskKey(taskID))
	rq, ok := m.tasks.Load(taskID)
	if !ok {
		return
	}
	if !m.tasks.Delete(taskID) {
		return
	}
	rq.writeStats(outcome)
	LogInfo(LTRequest, fmt.Sprintf("%s finished [%s]", rq, outcome))
}
