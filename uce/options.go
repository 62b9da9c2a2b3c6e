package uce

import (
	"fmt"
	"time"

	"UCEGo/conn"
	. "UCEGo/global"
	"UCEGo/uce/cmdcode"
)

// optionsRequest fans one OPTIONS exchange out per target. Success is judged
// purely on each SIP response code; the response's feature tags become the
// remote capability record. The first negative response fails the whole
// request.
type optionsRequest struct {
	uceRequest
	remaining int
}

func newOptionsRequest(base uceRequest) *optionsRequest {
	return &optionsRequest{uceRequest: base}
}

func (rq *optionsRequest) execute() {
	rq.executeRequest(rq.sendNetworkRequests)
}

func (rq *optionsRequest) sendNetworkRequests(missing []string) {
	fc := rq.owner.connection()
	if !fc.IsConnected() {
		LogInfo(LTRequest, fmt.Sprintf("no feature connection - %s served from cache only", rq))
		rq.complete()
		return
	}
	rq.remaining = len(missing)
	ownTags := rq.owner.ownFeatureTags()
	handler := rq.owner.responseHandler(rq.taskID)
	for _, target := range missing {
		Prometrics.NetworkRequests.Inc()
		if err := fc.SubmitOptions(target, ownTags, handler); err != nil {
			LogWarning(LTRequest, fmt.Sprintf("options submit failed for %s [%s] - %v", rq, target, err))
			rq.agg.RecordCommandError(cmdcode.FetchError)
			rq.fail(rq.agg.DerivedError(), 0)
			return
		}
	}
	rq.owner.armResponseTimer(rq.taskID)
}

func (rq *optionsRequest) handleEvent(ev conn.Event) {
	if rq.finished {
		return
	}
	switch ev.Kind {
	case conn.KindCommandError:
		rq.agg.RecordCommandError(ev.Command)
		rq.fail(rq.agg.DerivedError(), 0)

	case conn.KindNetworkResponse:
		rq.agg.RecordNetworkResponse(ev.SipCode, ev.ReasonPhrase)
		if !IsPositive(ev.SipCode) {
			rq.maybeUpdateForbidden(ev)
			rq.fail(SipCodeToError(ev.SipCode, ev.ReasonPhrase), ev.RetryAfterMillis)
			return
		}
		record := Capability{
			ContactURI:  NormalizeURI(ev.Target),
			Mechanism:   MechanismOptions,
			Source:      SourceNetwork,
			FeatureTags: ev.FeatureTags,
			RetrievedAt: time.Now(),
		}
		rq.agg.AddUpdatedCapabilities([]Capability{record})
		rq.deliverUpdated()
		if rq.finished {
			return
		}
		rq.remaining--
		if rq.remaining <= 0 {
			rq.complete()
		}
	}
}
