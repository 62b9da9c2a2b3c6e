package uce

import (
	"fmt"
	"time"

	"UCEGo/conn"
	. "UCEGo/global"
)

// remoteOptionsRequest services a capability query initiated by a remote
// endpoint: answer with the local feature tags and absorb the remote's tags
// into the cache. No outbound network call, no application callback.
type remoteOptionsRequest struct {
	uceRequest
	remoteTags []string
	respond    func(ownTags []string)
}

func newRemoteOptionsRequest(base uceRequest, remoteTags []string, respond func([]string)) *remoteOptionsRequest {
	return &remoteOptionsRequest{uceRequest: base, remoteTags: remoteTags, respond: respond}
}

func (rq *remoteOptionsRequest) execute() {
	if rq.finished {
		return
	}
	ownTags := rq.owner.ownFeatureTags()
	if rq.respond != nil {
		rq.respond(ownTags)
	}
	sender := rq.targets[0]
	if sender == "" {
		LogWarning(LTRequest, fmt.Sprintf("%s carries no sender - nothing cached", rq))
		rq.complete()
		return
	}
	rq.owner.writeCache([]Capability{{
		ContactURI:  sender,
		Mechanism:   MechanismOptions,
		Source:      SourceNetwork,
		FeatureTags: rq.remoteTags,
		RetrievedAt: time.Now(),
	}})
	rq.complete()
}

func (rq *remoteOptionsRequest) handleEvent(conn.Event) {
	// inbound exchange, no network callbacks expected
}
