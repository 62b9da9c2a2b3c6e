// Package conn abstracts the signaling transport the capability engine drives.
// Implementations push transport outcomes back through per-command response
// handlers as a stream of events.
package conn

import (
	"errors"

	"UCEGo/uce/cmdcode"
)

var ErrNotConnected = errors.New("feature connection unavailable")

type EventKind int

const (
	KindCommandError EventKind = iota
	KindNetworkResponse
	KindCapabilitiesUpdate
	KindResourceTerminated
	KindTerminated
)

var eventKindNames = map[EventKind]string{
	KindCommandError:       "CommandError",
	KindNetworkResponse:    "NetworkResponse",
	KindCapabilitiesUpdate: "CapabilitiesUpdate",
	KindResourceTerminated: "ResourceTerminated",
	KindTerminated:         "Terminated",
}

func (ek EventKind) String() string {
	return eventKindNames[ek]
}

type TerminatedResource struct {
	URI    string `json:"uri"`
	Reason string `json:"reason"`
}

// Event is one step in the lifecycle of a submitted command. A command ends
// with a CommandError, with a final NetworkResponse, or - for subscriptions -
// with a Terminated event after zero or more capability updates. Target is set
// on per-contact responses so multi-target fan-outs can attribute them.
type Event struct {
	Kind              EventKind
	Command           cmdcode.Code
	Target            string
	SipCode           int
	ReasonPhrase      string
	ReasonHeaderCause int
	ReasonHeaderText  string
	Pidfs             []string
	FeatureTags       []string
	Terminated        []TerminatedResource
	TerminationReason string
	RetryAfterMillis  int64
}

type ResponseHandler func(Event)

// IncomingOptions is a capability query initiated by a remote endpoint. Respond
// must be invoked exactly once with the tags this device answers with.
type IncomingOptions struct {
	Sender      string
	FeatureTags []string
	Respond     func(ownTags []string)
}

type IncomingOptionsHandler func(IncomingOptions)

// FeatureConnection is the transport used for capability exchange. Submit calls
// return an error only when the command could not be handed to the transport;
// everything later arrives through the response handler.
type FeatureConnection interface {
	IsConnected() bool
	SubmitPublish(pidfXML string, h ResponseHandler) error
	SubmitSubscribe(targets []string, h ResponseHandler) error
	SubmitOptions(target string, ownTags []string, h ResponseHandler) error
	OnIncomingOptions(h IncomingOptionsHandler)
	OnConnectedChange(h func(connected bool))
	Shutdown()
}
