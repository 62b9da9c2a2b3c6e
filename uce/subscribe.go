package uce

import (
	"fmt"
	"time"

	"UCEGo/conn"
	. "UCEGo/global"
	"UCEGo/pidf"
	"UCEGo/uce/cmdcode"
)

// subscribeRequest queries all targets in one presence subscription. Responses
// stream in: a network response first, then capability updates and terminated
// resources, then a terminal event that settles success or failure.
type subscribeRequest struct {
	uceRequest
}

func newSubscribeRequest(base uceRequest) *subscribeRequest {
	return &subscribeRequest{uceRequest: base}
}

func (rq *subscribeRequest) execute() {
	rq.executeRequest(rq.sendNetworkRequest)
}

func (rq *subscribeRequest) sendNetworkRequest(missing []string) {
	fc := rq.owner.connection()
	if !fc.IsConnected() {
		LogInfo(LTRequest, fmt.Sprintf("no feature connection - %s served from cache only", rq))
		rq.complete()
		return
	}
	Prometrics.NetworkRequests.Inc()
	if err := fc.SubmitSubscribe(missing, rq.owner.responseHandler(rq.taskID)); err != nil {
		LogWarning(LTRequest, fmt.Sprintf("subscribe submit failed for %s - %v", rq, err))
		rq.agg.RecordCommandError(cmdcode.FetchError)
		rq.fail(rq.agg.DerivedError(), 0)
		return
	}
	rq.owner.armResponseTimer(rq.taskID)
}

func (rq *subscribeRequest) handleEvent(ev conn.Event) {
	if rq.finished {
		return
	}
	switch ev.Kind {
	case conn.KindCommandError:
		rq.agg.RecordCommandError(ev.Command)
		rq.fail(rq.agg.DerivedError(), 0)

	case conn.KindNetworkResponse:
		rq.agg.RecordNetworkResponse(ev.SipCode, ev.ReasonPhrase)
		rq.agg.RecordReasonHeader(ev.ReasonHeaderCause, ev.ReasonHeaderText)
		if !IsPositive(ev.SipCode) {
			rq.maybeUpdateForbidden(ev)
			rq.fail(SipCodeToError(ev.SipCode, ev.ReasonPhrase), ev.RetryAfterMillis)
		}
		// success-class: keep waiting for streamed updates

	case conn.KindCapabilitiesUpdate:
		rq.agg.AddUpdatedCapabilities(decodeCapabilityDocuments(ev.Pidfs))
		rq.deliverUpdated()

	case conn.KindResourceTerminated:
		records := make([]Capability, 0, len(ev.Terminated))
		for _, tr := range ev.Terminated {
			records = append(records, NewTerminatedCapability(NormalizeURI(tr.URI), tr.Reason, MechanismPresence))
		}
		rq.agg.AddTerminatedResources(records)
		rq.deliverTerminated()

	case conn.KindTerminated:
		rq.agg.RecordTermination(ev.TerminationReason, ev.RetryAfterMillis)
		if rq.agg.IsTerminalSuccess() {
			rq.complete()
			return
		}
		rq.fail(rq.agg.DerivedError(), rq.agg.RetryAfterMillis())
	}
}

func decodeCapabilityDocuments(docs []string) []Capability {
	records := make([]Capability, 0, len(docs))
	for _, doc := range docs {
		entity, tuples, err := pidf.Decode(doc)
		if err != nil {
			LogWarning(LTRequest, fmt.Sprintf("discarding malformed capability document - %v", err))
			continue
		}
		records = append(records, Capability{
			ContactURI:  NormalizeURI(entity),
			Mechanism:   MechanismPresence,
			Source:      SourceNetwork,
			Tuples:      tuples,
			RetrievedAt: time.Now(),
		})
	}
	return records
}
