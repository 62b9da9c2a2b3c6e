package uce_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"UCEGo/conn"
	"UCEGo/global"
	"UCEGo/uce/cmdcode"
	"UCEGo/uce/pubstate"
	"UCEGo/uce/trigger"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []pubstate.State
}

func (sr *stateRecorder) record(ps pubstate.State) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.states = append(sr.states, ps)
}

func (sr *stateRecorder) list() []pubstate.State {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	out := make([]pubstate.State, len(sr.states))
	copy(out, sr.states)
	return out
}

func TestPublishCarriesOwnCapabilityDocument(t *testing.T) {
	h := newPublishHarness(t)

	h.ctrl.TriggerPublish(trigger.Service)
	require.Eventually(t, func() bool { return h.fc.publishCount() == 1 }, waitFor, time.Millisecond)

	doc := h.fc.publishAt(0).doc
	require.Contains(t, doc, "sip:self@example.com")
	require.Contains(t, doc, "3gpp-service.ims.icsi.mmtel")

	h.fc.publishAt(0).handler(conn.Event{Kind: conn.KindNetworkResponse, SipCode: 200, ReasonPhrase: "OK"})
	require.Eventually(t, func() bool { return h.ctrl.GetPublishState() == pubstate.OK }, waitFor, time.Millisecond)
}

func TestPublishWhileInFlightParksAndReplaysOnce(t *testing.T) {
	h := newPublishHarness(t)

	h.ctrl.TriggerPublish(trigger.Service)
	require.Eventually(t, func() bool { return h.fc.publishCount() == 1 }, waitFor, time.Millisecond)

	h.ctrl.TriggerPublish(trigger.VtChange)
	require.Eventually(t, func() bool { return h.ctrl.PublishSummary().Pending }, waitFor, time.Millisecond)
	require.Equal(t, 1, h.fc.publishCount())

	h.fc.publishAt(0).handler(conn.Event{Kind: conn.KindNetworkResponse, SipCode: 200, ReasonPhrase: "OK"})

	// the parked trigger replays exactly once, with no extra delay
	require.Eventually(t, func() bool { return h.fc.publishCount() == 2 }, waitFor, time.Millisecond)
	h.fc.publishAt(1).handler(conn.Event{Kind: conn.KindNetworkResponse, SipCode: 200, ReasonPhrase: "OK"})
	require.Eventually(t, func() bool { return h.ctrl.GetPublishState() == pubstate.OK }, waitFor, time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 2, h.fc.publishCount())
}

func TestPublishRetriesUntilCapThenTerminalError(t *testing.T) {
	h := newPublishHarness(t)

	recorder := &stateRecorder{}
	id := h.ctrl.RegisterPublishStateCallback(recorder.record)
	require.NotZero(t, id)

	h.ctrl.TriggerPublish(trigger.Service)

	// the original attempt plus every capped retry fails with a retryable error
	attempts := global.PublishMaxRetries + 1
	for i := 0; i < attempts; i++ {
		idx := i
		require.Eventually(t, func() bool { return h.fc.publishCount() == idx+1 }, waitFor, time.Millisecond)
		h.fc.publishAt(idx).handler(conn.Event{Kind: conn.KindCommandError, Command: cmdcode.ServiceUnavailable})
	}

	require.Eventually(t, func() bool { return h.ctrl.GetPublishState() == pubstate.OtherError }, waitFor, time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, attempts, h.fc.publishCount())

	// broadcast fired only on actual change: once into publishing, once terminal
	require.Equal(t, []pubstate.State{pubstate.Publishing, pubstate.OtherError}, recorder.list())
}

func TestPublishTimeoutMapsToRequestTimeoutState(t *testing.T) {
	h := newPublishHarness(t)

	h.ctrl.TriggerPublish(trigger.Service)
	attempts := global.PublishMaxRetries + 1
	for i := 0; i < attempts; i++ {
		idx := i
		require.Eventually(t, func() bool { return h.fc.publishCount() == idx+1 }, waitFor, time.Millisecond)
		h.fc.publishAt(idx).handler(conn.Event{Kind: conn.KindCommandError, Command: cmdcode.RequestTimeout})
	}

	require.Eventually(t, func() bool { return h.ctrl.GetPublishState() == pubstate.RequestTimeout }, waitFor, time.Millisecond)
}

func TestPublishSkippedWhenNotProvisioned(t *testing.T) {
	h := newHarness(t)

	h.ctrl.TriggerPublish(trigger.Service)
	time.Sleep(100 * time.Millisecond)
	require.Zero(t, h.fc.publishCount())
	require.Equal(t, pubstate.NotPublished, h.ctrl.GetPublishState())
}

func TestPublishParkedWithoutConnectionReplaysOnReconnect(t *testing.T) {
	h := newPublishHarness(t)
	h.fc.setConnected(false)

	h.ctrl.TriggerPublish(trigger.Service)
	require.Eventually(t, func() bool { return h.ctrl.PublishSummary().Pending }, waitFor, time.Millisecond)
	require.Zero(t, h.fc.publishCount())

	h.fc.setConnected(true)
	require.Eventually(t, func() bool { return h.fc.publishCount() == 1 }, waitFor, time.Millisecond)

	h.fc.publishAt(0).handler(conn.Event{Kind: conn.KindNetworkResponse, SipCode: 200, ReasonPhrase: "OK"})
	require.Eventually(t, func() bool { return h.ctrl.GetPublishState() == pubstate.OK }, waitFor, time.Millisecond)
}

func TestSettingChangeTriggersPublish(t *testing.T) {
	h := newPublishHarness(t)

	h.device.SetVtEnabled(true)
	require.Eventually(t, func() bool { return h.fc.publishCount() == 1 }, waitFor, time.Millisecond)
	require.Contains(t, h.fc.publishAt(0).doc, "<caps:video>true</caps:video>")
}

func TestFreshTriggerSupersedesBackoff(t *testing.T) {
	saved := global.RetryBasePeriodMin
	global.RetryBasePeriodMin = 60
	defer func() { global.RetryBasePeriodMin = saved }()

	h := newPublishHarness(t)

	h.ctrl.TriggerPublish(trigger.Service)
	require.Eventually(t, func() bool { return h.fc.publishCount() == 1 }, waitFor, time.Millisecond)
	h.fc.publishAt(0).handler(conn.Event{Kind: conn.KindCommandError, Command: cmdcode.ServiceUnavailable})

	// retry parked for an hour; a settings change publishes right away
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, h.fc.publishCount())

	h.device.SetTtyEnabled(true)
	require.Eventually(t, func() bool { return h.fc.publishCount() == 2 }, waitFor, time.Millisecond)

	h.fc.publishAt(1).handler(conn.Event{Kind: conn.KindNetworkResponse, SipCode: 200, ReasonPhrase: "OK"})
	require.Eventually(t, func() bool { return h.ctrl.GetPublishState() == pubstate.OK }, waitFor, time.Millisecond)
}

func TestLatePublishResponseIgnoredAfterSettled(t *testing.T) {
	h := newPublishHarness(t)

	h.ctrl.TriggerPublish(trigger.Service)
	require.Eventually(t, func() bool { return h.fc.publishCount() == 1 }, waitFor, time.Millisecond)

	handler := h.fc.publishAt(0).handler
	handler(conn.Event{Kind: conn.KindNetworkResponse, SipCode: 200, ReasonPhrase: "OK"})
	require.Eventually(t, func() bool { return h.ctrl.GetPublishState() == pubstate.OK }, waitFor, time.Millisecond)

	// a duplicate terminal response must not restart the state machine
	handler(conn.Event{Kind: conn.KindNetworkResponse, SipCode: 503, ReasonPhrase: "Service Unavailable"})
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, pubstate.OK, h.ctrl.GetPublishState())
	require.Equal(t, 1, h.fc.publishCount())
}

func TestListenerRegistrationAfterDestroyIsNoOp(t *testing.T) {
	h := newPublishHarness(t)
	h.ctrl.Destroy()

	recorder := &stateRecorder{}
	require.Zero(t, h.ctrl.RegisterPublishStateCallback(recorder.record))
	h.ctrl.UnregisterPublishStateCallback(42)
	require.Equal(t, pubstate.NotPublished, h.ctrl.GetPublishState())
}

func TestListenerUnregisterStopsDelivery(t *testing.T) {
	h := newPublishHarness(t)

	recorder := &stateRecorder{}
	id := h.ctrl.RegisterPublishStateCallback(recorder.record)
	h.ctrl.UnregisterPublishStateCallback(id)

	h.ctrl.TriggerPublish(trigger.Service)
	require.Eventually(t, func() bool { return h.fc.publishCount() == 1 }, waitFor, time.Millisecond)
	h.fc.publishAt(0).handler(conn.Event{Kind: conn.KindNetworkResponse, SipCode: 200, ReasonPhrase: "OK"})
	require.Eventually(t, func() bool { return h.ctrl.GetPublishState() == pubstate.OK }, waitFor, time.Millisecond)

	require.Empty(t, recorder.list())
}
