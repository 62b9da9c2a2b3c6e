package uce

import (
	"fmt"
	"sync"

	"UCEGo/cache"
	"UCEGo/conn"
	"UCEGo/devcaps"
	. "UCEGo/global"
	"UCEGo/uce/errcode"
	"UCEGo/uce/pubstate"
	"UCEGo/uce/trigger"
)

// UceController assembles the capability engine for one subscription: the
// shared event context, the request manager, the publish controller, and the
// glue between device setting changes and publish triggers. It is the only
// surface the application and webserver layers talk to.
type UceController struct {
	executor  *Executor
	ids       *TaskIDGenerator
	server    *ServerState
	manager   *Manager
	publish   *PublishController
	device    *devcaps.Monitor
	fc        conn.FeatureConnection
	store     cache.Store
	mu        sync.Mutex
	destroyed bool
}

func NewUceController(store cache.Store, fc conn.FeatureConnection, device *devcaps.Monitor) *UceController {
	executor := NewExecutor()
	ids := NewTaskIDGenerator()
	server := NewServerState()

	uc := &UceController{
		executor: executor,
		ids:      ids,
		server:   server,
		device:   device,
		fc:       fc,
		store:    store,
	}
	uc.manager = NewManager(executor, ids, server, store, fc, func() []string {
		return device.Snapshot().FeatureTags()
	})
	uc.publish = NewPublishController(executor, fc, device, ids)

	device.Register(uc.onSettingChanged)
	fc.OnIncomingOptions(uc.onIncomingOptions)
	fc.OnConnectedChange(uc.onConnectedChange)

	LogInfo(LTSystem, "capability engine assembled")
	return uc
}

// =========================================================================================================
// application surface

func (uc *UceController) RequestCapabilities(uris []string, skipCache bool, cb CapabilityCallback) {
	uc.manager.SendCapabilityRequest(uris, skipCache, cb)
}

func (uc *UceController) RequestAvailability(uri string, cb CapabilityCallback) {
	uc.manager.SendAvailabilityRequest(uri, cb)
}

func (uc *UceController) RetrieveCapabilitiesForRemote(sender string, remoteTags []string, respond func(ownTags []string)) {
	uc.manager.RetrieveCapabilitiesForRemote(sender, remoteTags, respond)
}

func (uc *UceController) RegisterPublishStateCallback(listener func(pubstate.State)) int64 {
	return uc.publish.RegisterPublishStateCallback(listener)
}

func (uc *UceController) UnregisterPublishStateCallback(id int64) {
	uc.publish.UnregisterPublishStateCallback(id)
}

func (uc *UceController) GetPublishState() pubstate.State {
	return uc.publish.GetPublishState()
}

// TriggerPublish requests a publish for a service-level reason.
func (uc *UceController) TriggerPublish(tt trigger.Type) {
	uc.publish.RequestPublish(tt)
}

// =========================================================================================================
// dump surface

func (uc *UceController) TaskSummaries() []string {
	return uc.manager.TaskSummaries()
}

func (uc *UceController) TaskCount() int {
	return uc.manager.TaskCount()
}

func (uc *UceController) ForbiddenSummary() ServerStateSummary {
	return uc.server.Summary()
}

func (uc *UceController) PublishSummary() PublishProcessorSummary {
	return uc.publish.Summary()
}

func (uc *UceController) DeviceSnapshot() devcaps.Snapshot {
	return uc.device.Snapshot()
}

// =========================================================================================================
// event glue

func (uc *UceController) onSettingChanged(ev devcaps.SettingEvent) {
	var tt trigger.Type
	switch ev.Kind {
	case devcaps.KindAirplaneMode:
		tt = trigger.AirplaneModeChange
	case devcaps.KindMobileData:
		tt = trigger.MobileDataChange
	case devcaps.KindTty:
		tt = trigger.TtyChange
	case devcaps.KindVt:
		tt = trigger.VtChange
	case devcaps.KindProvisioning:
		tt = trigger.ProvisioningChange
	case devcaps.KindRegistration:
		if !ev.Enabled {
			return
		}
		// a fresh registration lifts whatever forbidden window was in force
		uc.server.UpdateRequestForbidden(false, errcode.None, 0)
		tt = trigger.Registered
	default:
		return
	}
	uc.publish.RequestPublish(tt)
}

func (uc *UceController) onIncomingOptions(in conn.IncomingOptions) {
	uc.manager.RetrieveCapabilitiesForRemote(in.Sender, in.FeatureTags, in.Respond)
}

func (uc *UceController) onConnectedChange(connected bool) {
	if connected {
		uc.publish.ReplayPendingOnConnect()
	}
}

// Destroy tears the engine down: listeners dropped, queued events canceled,
// outstanding tasks finalized without callbacks, transport and cache released.
func (uc *UceController) Destroy() {
	uc.mu.Lock()
	if uc.destroyed {
		uc.mu.Unlock()
		return
	}
	uc.destroyed = true
	uc.mu.Unlock()

	LogInfo(LTSystem, "tearing down capability engine")
	uc.publish.Destroy()
	uc.executor.Stop()
	uc.manager.OnDestroy()
	uc.fc.Shutdown()
	if err := uc.store.Close(); err != nil {
		LogWarning(LTCache, fmt.Sprintf("cache close failed - %v", err))
	}
}
