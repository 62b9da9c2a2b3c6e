// Package sipconn drives capability exchange over SIP using the sipgo stack.
// PUBLISH and OPTIONS are plain client transactions. SUBSCRIBE opens a short
// lived dialog whose NOTIFYs arrive on the shared UDP listener and are
// correlated back to the requesting handler by Call-ID.
package sipconn

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"UCEGo/conn"
	. "UCEGo/global"
	"UCEGo/guid"
	"UCEGo/uce/cmdcode"
)

const (
	eventPresence string = "presence"

	contentTypePidf         string = "application/pidf+xml"
	contentTypeRlmi         string = "application/rlmi+xml"
	contentTypeResourceList string = "application/resource-lists+xml"

	acceptedNotifyTypes string = "application/pidf+xml, application/rlmi+xml, multipart/related"

	publishExpirySec   int = 3600
	subscribeExpirySec int = 0 // capability fetch - NOTIFY then immediate termination

	subStateTerminated string = "terminated"
)

type subscription struct {
	handler conn.ResponseHandler
	expiry  *time.Timer
}

// SipConnection implements conn.FeatureConnection on top of a sipgo user
// agent. One UDP socket carries all outbound transactions and the inbound
// NOTIFY and OPTIONS traffic.
type SipConnection struct {
	ua     *sipgo.UserAgent
	client *sipgo.Client
	server *sipgo.Server

	own   sip.Uri
	proxy string

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	connected  bool
	etag       string
	connChange func(bool)
	incoming   conn.IncomingOptionsHandler
	subs       map[string]*subscription
}

// Connect builds the SIP endpoint and starts listening on SipListenIP:SipUdpPort.
// All requests are routed through SipOutboundProxy.
func Connect() (*SipConnection, error) {
	var own sip.Uri
	if err := sip.ParseUri(OwnRcsURI, &own); err != nil {
		return nil, fmt.Errorf("bad own uri [%s]: %w", OwnRcsURI, err)
	}

	ua, err := sipgo.NewUA(sipgo.WithUserAgent(EngineName), sipgo.WithUserAgentHostname(own.Host))
	if err != nil {
		return nil, err
	}
	client, err := sipgo.NewClient(ua, sipgo.WithClientHostname(SipListenIP), sipgo.WithClientPort(SipUdpPort))
	if err != nil {
		ua.Close()
		return nil, err
	}
	server, err := sipgo.NewServer(ua)
	if err != nil {
		client.Close()
		ua.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sc := &SipConnection{
		ua:     ua,
		client: client,
		server: server,
		own:    own,
		proxy:  SipOutboundProxy,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*subscription),
	}
	server.OnNotify(sc.handleNotify)
	server.OnOptions(sc.handleOptions)

	addr := fmt.Sprintf("%s:%d", SipListenIP, SipUdpPort)
	WtGrp.Add(1)
	go func() {
		defer WtGrp.Done()
		defer LogCallStack()
		if err := server.ListenAndServe(ctx, "udp", addr); err != nil && ctx.Err() == nil {
			LogError(LTConnection, fmt.Sprintf("sip listener on [%s] closed: %v", addr, err))
			sc.setConnected(false)
		}
	}()

	LogInfo(LTConnection, fmt.Sprintf("sip endpoint up on [%s] - outbound proxy [%s]", addr, sc.proxy))
	sc.setConnected(true)
	return sc, nil
}

func (sc *SipConnection) IsConnected() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.connected
}

func (sc *SipConnection) OnConnectedChange(h func(connected bool)) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.connChange = h
}

func (sc *SipConnection) OnIncomingOptions(h conn.IncomingOptionsHandler) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.incoming = h
}

func (sc *SipConnection) setConnected(connected bool) {
	sc.mu.Lock()
	if sc.connected == connected {
		sc.mu.Unlock()
		return
	}
	sc.connected = connected
	h := sc.connChange
	sc.mu.Unlock()
	if h != nil {
		h(connected)
	}
}

func (sc *SipConnection) Shutdown() {
	sc.setConnected(false)
	sc.cancel()
	sc.mu.Lock()
	for callID, sub := range sc.subs {
		sub.expiry.Stop()
		delete(sc.subs, callID)
	}
	sc.mu.Unlock()
	sc.client.Close()
	_ = sc.ua.Close()
	LogInfo(LTConnection, "sip endpoint closed")
}

// =========================================================================================================
// outbound commands

func (sc *SipConnection) SubmitPublish(pidfXML string, h conn.ResponseHandler) error {
	if !sc.IsConnected() {
		return conn.ErrNotConnected
	}

	req := sip.NewRequest(sip.PUBLISH, sc.own)
	req.AppendHeader(sip.NewHeader("Event", eventPresence))
	req.AppendHeader(sip.NewHeader("Expires", Int2Str(publishExpirySec)))
	if etag := sc.currentEtag(); etag != "" {
		req.AppendHeader(sip.NewHeader("SIP-If-Match", etag))
	}
	ct := sip.ContentTypeHeader(contentTypePidf)
	req.AppendHeader(&ct)
	req.SetBody([]byte(pidfXML))
	sc.prepare(req)

	WtGrp.Add(1)
	go sc.awaitFinalResponse(req, h, sc.capturePublishEtag)
	return nil
}

func (sc *SipConnection) SubmitOptions(target string, ownTags []string, h conn.ResponseHandler) error {
	if !sc.IsConnected() {
		return conn.ErrNotConnected
	}
	var recipient sip.Uri
	if err := sip.ParseUri(target, &recipient); err != nil {
		return fmt.Errorf("bad options target [%s]: %w", target, err)
	}

	req := sip.NewRequest(sip.OPTIONS, recipient)
	req.AppendHeader(sip.NewHeader("Contact", sc.contactValue(ownTags)))
	sc.prepare(req)

	WtGrp.Add(1)
	go sc.awaitFinalResponse(req, h, func(res *sip.Response, ev conn.Event) conn.Event {
		ev.Target = target
		if IsPositive(ev.SipCode) {
			ev.FeatureTags = contactFeatureTags(res.GetHeader("Contact"))
		}
		return ev
	})
	return nil
}

func (sc *SipConnection) SubmitSubscribe(targets []string, h conn.ResponseHandler) error {
	if !sc.IsConnected() {
		return conn.ErrNotConnected
	}
	if len(targets) == 0 {
		return fmt.Errorf("subscribe without targets")
	}

	// a single contact is subscribed directly; several go as one resource
	// list the network exploder fans out on our behalf
	var recipient sip.Uri
	single := len(targets) == 1
	if single {
		if err := sip.ParseUri(targets[0], &recipient); err != nil {
			return fmt.Errorf("bad subscribe target [%s]: %w", targets[0], err)
		}
	} else {
		recipient = sc.own
	}

	req := sip.NewRequest(sip.SUBSCRIBE, recipient)
	req.AppendHeader(sip.NewHeader("Event", eventPresence))
	req.AppendHeader(sip.NewHeader("Expires", Int2Str(subscribeExpirySec)))
	req.AppendHeader(sip.NewHeader("Accept", acceptedNotifyTypes))
	req.AppendHeader(sip.NewHeader("Contact", sc.contactValue(nil)))
	if !single {
		req.AppendHeader(sip.NewHeader("Require", "recipient-list-subscribe"))
		req.AppendHeader(sip.NewHeader("Supported", "eventlist"))
		ct := sip.ContentTypeHeader(contentTypeResourceList)
		req.AppendHeader(&ct)
		req.SetBody([]byte(resourceListBody(targets)))
	}
	sc.prepare(req)

	callID := sip.CallIDHeader(guid.NewCallID())
	req.AppendHeader(&callID)

	// registered ahead of the send - the first NOTIFY can beat the 200
	sc.addSubscription(string(callID), h)

	WtGrp.Add(1)
	go sc.awaitSubscribeResponse(req, string(callID), h)
	return nil
}

func (sc *SipConnection) prepare(req *sip.Request) {
	req.SetTransport("UDP")
	if sc.proxy != "" {
		req.SetDestination(sc.proxy)
	}
}

func (sc *SipConnection) contactValue(tags []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<sip:%s@%s:%d>", sc.own.User, SipListenIP, SipUdpPort)
	for _, tag := range tags {
		sb.WriteByte(';')
		sb.WriteString(tag)
	}
	return sb.String()
}

// resourceListBody renders the RFC 4826 list carried by a multi-target SUBSCRIBE.
func resourceListBody(targets []string) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sb.WriteString("\n")
	sb.WriteString(`<resource-lists xmlns="urn:ietf:params:xml:ns:resource-lists">`)
	sb.WriteString("\n  <list>\n")
	for _, target := range targets {
		fmt.Fprintf(&sb, "    <entry uri=%q/>\n", target)
	}
	sb.WriteString("  </list>\n</resource-lists>")
	return sb.String()
}

// =========================================================================================================
// transaction plumbing

type eventDecorator func(res *sip.Response, ev conn.Event) conn.Event

func (sc *SipConnection) awaitFinalResponse(req *sip.Request, h conn.ResponseHandler, decorate eventDecorator) {
	defer WtGrp.Done()
	defer LogCallStack()

	ctx, cancel := context.WithTimeout(sc.ctx, time.Duration(RequestTimeoutSec)*time.Second)
	defer cancel()

	tx, err := sc.client.TransactionRequest(ctx, req)
	if err != nil {
		LogError(LTConnection, fmt.Sprintf("%s send failed: %v", req.Method, err))
		h(conn.Event{Kind: conn.KindCommandError, Command: cmdcode.LostNetworkConnection})
		return
	}
	defer tx.Terminate()

	for {
		select {
		case <-ctx.Done():
			h(conn.Event{Kind: conn.KindCommandError, Command: cmdcode.RequestTimeout})
			return
		case <-tx.Done():
			h(conn.Event{Kind: conn.KindCommandError, Command: cmdcode.LostNetworkConnection})
			return
		case res := <-tx.Responses():
			if IsProvisional(int(res.StatusCode)) {
				continue
			}
			ev := responseEvent(res)
			if decorate != nil {
				ev = decorate(res, ev)
			}
			h(ev)
			return
		}
	}
}

// awaitSubscribeResponse settles the initial SUBSCRIBE transaction. The
// subscription entry survives a success so later NOTIFYs find their handler;
// any failure removes it.
func (sc *SipConnection) awaitSubscribeResponse(req *sip.Request, callID string, h conn.ResponseHandler) {
	defer WtGrp.Done()
	defer LogCallStack()

	ctx, cancel := context.WithTimeout(sc.ctx, time.Duration(RequestTimeoutSec)*time.Second)
	defer cancel()

	tx, err := sc.client.TransactionRequest(ctx, req)
	if err != nil {
		sc.dropSubscription(callID)
		LogError(LTConnection, fmt.Sprintf("SUBSCRIBE send failed: %v", err))
		h(conn.Event{Kind: conn.KindCommandError, Command: cmdcode.LostNetworkConnection})
		return
	}
	defer tx.Terminate()

	for {
		select {
		case <-ctx.Done():
			sc.dropSubscription(callID)
			h(conn.Event{Kind: conn.KindCommandError, Command: cmdcode.RequestTimeout})
			return
		case <-tx.Done():
			sc.dropSubscription(callID)
			h(conn.Event{Kind: conn.KindCommandError, Command: cmdcode.LostNetworkConnection})
			return
		case res := <-tx.Responses():
			if IsProvisional(int(res.StatusCode)) {
				continue
			}
			if IsNegative(int(res.StatusCode)) {
				sc.dropSubscription(callID)
			}
			h(responseEvent(res))
			return
		}
	}
}

func responseEvent(res *sip.Response) conn.Event {
	ev := conn.Event{
		Kind:             conn.KindNetworkResponse,
		SipCode:          int(res.StatusCode),
		ReasonPhrase:     res.Reason,
		RetryAfterMillis: retryAfterMillis(res.GetHeader("Retry-After")),
	}
	ev.ReasonHeaderCause, ev.ReasonHeaderText = parseReasonHeader(res.GetHeader("Reason"))
	return ev
}

func retryAfterMillis(h sip.Header) int64 {
	if h == nil {
		return 0
	}
	fields := strings.Fields(h.Value())
	if len(fields) == 0 {
		return 0
	}
	secs, ok := Str2IntCheck[int64](fields[0])
	if !ok || secs < 0 {
		return 0
	}
	return secs * 1000
}

// parseReasonHeader reads RFC 3326, e.g. `SIP;cause=580;text="Precondition Failure"`.
func parseReasonHeader(h sip.Header) (int, string) {
	if h == nil {
		return 0, ""
	}
	var cause int
	var text string
	for _, prm := range strings.Split(h.Value(), ";") {
		prm = strings.TrimSpace(prm)
		if v, ok := strings.CutPrefix(prm, "cause="); ok {
			cause = Str2Int[int](v)
		} else if v, ok := strings.CutPrefix(prm, "text="); ok {
			text = strings.Trim(v, `"`)
		}
	}
	return cause, text
}

// contactFeatureTags pulls the feature tag params off a Contact header value.
// expires and q are contact bookkeeping, not capabilities.
func contactFeatureTags(h sip.Header) []string {
	if h == nil {
		return nil
	}
	v := h.Value()
	idx := strings.LastIndexByte(v, '>')
	if idx == -1 {
		return nil
	}
	var tags []string
	for _, prm := range strings.Split(v[idx+1:], ";") {
		prm = strings.TrimSpace(prm)
		if prm == "" {
			continue
		}
		key := prm
		if eq := strings.IndexByte(prm, '='); eq != -1 {
			key = prm[:eq]
		}
		switch ASCIIToLower(key) {
		case "expires", "q":
			continue
		}
		tags = append(tags, prm)
	}
	return tags
}

func (sc *SipConnection) currentEtag() string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.etag
}

// capturePublishEtag keeps the publication entity tag across refreshes per
// RFC 3903. A 412 means the stored etag went stale, so the next attempt
// publishes the full state again.
func (sc *SipConnection) capturePublishEtag(res *sip.Response, ev conn.Event) conn.Event {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	switch {
	case IsPositive(ev.SipCode):
		if h := res.GetHeader("SIP-ETag"); h != nil {
			sc.etag = strings.TrimSpace(h.Value())
		}
	case ev.SipCode == 412:
		sc.etag = ""
	}
	return ev
}

// =========================================================================================================
// subscription registry

func (sc *SipConnection) addSubscription(callID string, h conn.ResponseHandler) {
	sub := &subscription{handler: h}
	sub.expiry = time.AfterFunc(subscriptionLifetime(), func() {
		if sc.dropSubscription(callID) {
			LogWarning(LTConnection, fmt.Sprintf("subscription [%s] expired without termination", callID))
		}
	})
	sc.mu.Lock()
	sc.subs[callID] = sub
	sc.mu.Unlock()
}

func (sc *SipConnection) dropSubscription(callID string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sub, ok := sc.subs[callID]
	if !ok {
		return false
	}
	sub.expiry.Stop()
	delete(sc.subs, callID)
	return true
}

func (sc *SipConnection) lookupSubscription(callID string) (*subscription, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sub, ok := sc.subs[callID]
	return sub, ok
}

// the engine gives up at RequestTimeoutSec; the entry lingers a little longer
// so a slow terminal NOTIFY is still answered instead of 481
func subscriptionLifetime() time.Duration {
	return time.Duration(RequestTimeoutSec+30) * time.Second
}

// =========================================================================================================
// inbound handlers

func (sc *SipConnection) handleNotify(req *sip.Request, tx sip.ServerTransaction) {
	defer LogCallStack()

	cid := req.CallID()
	if cid == nil {
		respond(tx, req, 400, "Missing Call-ID")
		return
	}
	sub, ok := sc.lookupSubscription(cid.Value())
	if !ok {
		LogInfo(LTConnection, fmt.Sprintf("notify for unknown subscription [%s] answered 481", cid.Value()))
		respond(tx, req, 481, "Subscription Does Not Exist")
		return
	}
	respond(tx, req, 200, "OK")

	state, reason, retryAfterSec := parseSubscriptionState(req.GetHeader("Subscription-State"))

	pidfs, terminatedResources := notifyBodies(req)
	if len(pidfs) > 0 {
		sub.handler(conn.Event{Kind: conn.KindCapabilitiesUpdate, Pidfs: pidfs})
	}
	if len(terminatedResources) > 0 {
		sub.handler(conn.Event{Kind: conn.KindResourceTerminated, Terminated: terminatedResources})
	}

	if state == subStateTerminated {
		sc.dropSubscription(cid.Value())
		sub.handler(conn.Event{
			Kind:              conn.KindTerminated,
			TerminationReason: reason,
			RetryAfterMillis:  retryAfterSec * 1000,
		})
	}
}

func (sc *SipConnection) handleOptions(req *sip.Request, tx sip.ServerTransaction) {
	defer LogCallStack()

	sc.mu.Lock()
	h := sc.incoming
	sc.mu.Unlock()

	sender := ""
	if from := req.From(); from != nil {
		sender = from.Address.String()
	}
	remoteTags := contactFeatureTags(req.GetHeader("Contact"))

	if h == nil {
		respond(tx, req, 200, "OK")
		return
	}

	h(conn.IncomingOptions{
		Sender:      sender,
		FeatureTags: remoteTags,
		Respond: func(ownTags []string) {
			res := sip.NewResponseFromRequest(req, 200, "OK", nil)
			res.AppendHeader(sip.NewHeader("Contact", sc.contactValue(ownTags)))
			if err := tx.Respond(res); err != nil {
				LogError(LTConnection, fmt.Sprintf("options respond failed: %v", err))
			}
		},
	})
}

func respond(tx sip.ServerTransaction, req *sip.Request, code int, reason string) {
	if err := tx.Respond(sip.NewResponseFromRequest(req, code, reason, nil)); err != nil {
		LogError(LTConnection, fmt.Sprintf("respond %d failed: %v", code, err))
	}
}

// parseSubscriptionState reads RFC 6665, e.g. "terminated;reason=rejected;retry-after=120".
func parseSubscriptionState(h sip.Header) (state, reason string, retryAfterSec int64) {
	if h == nil {
		return "", "", 0
	}
	parts := strings.Split(h.Value(), ";")
	state = ASCIIToLower(strings.TrimSpace(parts[0]))
	for _, prm := range parts[1:] {
		key, val, found := strings.Cut(strings.TrimSpace(prm), "=")
		if !found {
			continue
		}
		switch ASCIIToLower(key) {
		case "reason":
			reason = ASCIIToLower(strings.TrimSpace(val))
		case "retry-after":
			if secs, good := Str2IntCheck[int64](strings.TrimSpace(val)); good && secs > 0 {
				retryAfterSec = secs
			}
		}
	}
	return state, reason, retryAfterSec
}

// =========================================================================================================
// notify body decoding

func notifyBodies(req *sip.Request) ([]string, []conn.TerminatedResource) {
	body := req.Body()
	if len(body) == 0 {
		return nil, nil
	}
	cth := req.GetHeader("Content-Type")
	if cth == nil {
		return nil, nil
	}
	mediaType, params, err := mime.ParseMediaType(cth.Value())
	if err != nil {
		LogWarning(LTConnection, fmt.Sprintf("unreadable notify Content-Type [%s]: %v", cth.Value(), err))
		return nil, nil
	}
	switch {
	case mediaType == contentTypePidf:
		return []string{string(body)}, nil
	case strings.HasPrefix(mediaType, "multipart/"):
		return multipartBodies(body, params["boundary"])
	default:
		LogWarning(LTConnection, fmt.Sprintf("notify with unsupported Content-Type [%s] ignored", mediaType))
		return nil, nil
	}
}

func multipartBodies(body []byte, boundary string) ([]string, []conn.TerminatedResource) {
	if boundary == "" {
		LogWarning(LTConnection, "multipart notify without boundary ignored")
		return nil, nil
	}
	var pidfs []string
	var terminated []conn.TerminatedResource
	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			LogWarning(LTConnection, fmt.Sprintf("truncated multipart notify: %v", err))
			break
		}
		content, err := io.ReadAll(part)
		if err != nil {
			LogWarning(LTConnection, fmt.Sprintf("unreadable multipart section: %v", err))
			break
		}
		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		switch partType {
		case contentTypePidf:
			pidfs = append(pidfs, string(content))
		case contentTypeRlmi:
			terminated = append(terminated, rlmiTerminations(content)...)
		}
	}
	return pidfs, terminated
}

// rlmi list per RFC 4662 - each resource carries the subscription state the
// exploder reached for that contact.
type rlmiList struct {
	XMLName   xml.Name       `xml:"list"`
	Resources []rlmiResource `xml:"resource"`
}

type rlmiResource struct {
	URI       string         `xml:"uri,attr"`
	Instances []rlmiInstance `xml:"instance"`
}

type rlmiInstance struct {
	State  string `xml:"state,attr"`
	Reason string `xml:"reason,attr"`
}

func rlmiTerminations(content []byte) []conn.TerminatedResource {
	var list rlmiList
	if err := xml.Unmarshal(content, &list); err != nil {
		LogWarning(LTConnection, fmt.Sprintf("malformed rlmi part: %v", err))
		return nil
	}
	var out []conn.TerminatedResource
	for _, res := range list.Resources {
		for _, inst := range res.Instances {
			if ASCIIToLower(inst.State) == subStateTerminated {
				out = append(out, conn.TerminatedResource{URI: res.URI, Reason: inst.Reason})
			}
		}
	}
	return out
}
