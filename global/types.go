package global

import (
	"fmt"
	"strings"
	"time"
)

type (
	CapabilityMechanism string
	CapabilitySource    string
)

const (
	MechanismPresence CapabilityMechanism = "Presence"
	MechanismOptions  CapabilityMechanism = "Options"

	SourceNetwork CapabilitySource = "Network"
	SourceCached  CapabilitySource = "Cached"
)

// Carrier reason phrases carried on SIP 403 responses
const (
	SipReasonUserNotRegistered        string = "User not registered"
	SipReasonNotAuthorizedForPresence string = "not authorized for presence"
)

// PresenceTuple is one RCS service entry of a presence document.
type PresenceTuple struct {
	Basic          string `json:"basic"`
	ServiceID      string `json:"serviceId"`
	ServiceVersion string `json:"serviceVersion"`
	Description    string `json:"description,omitempty"`
	ContactURI     string `json:"contactUri,omitempty"`
	AudioCapable   bool   `json:"audioCapable"`
	VideoCapable   bool   `json:"videoCapable"`
}

const (
	BasicOpen   string = "open"
	BasicClosed string = "closed"
)

// Capability is the remote (or own) capability record for a single contact.
// Updates never mutate a stored record - they replace it.
type Capability struct {
	ContactURI        string              `json:"contactUri"`
	Mechanism         CapabilityMechanism `json:"mechanism"`
	Source            CapabilitySource    `json:"source"`
	FeatureTags       []string            `json:"featureTags,omitempty"`
	Tuples            []PresenceTuple     `json:"tuples,omitempty"`
	Terminated        bool                `json:"terminated,omitempty"`
	TerminationReason string              `json:"terminationReason,omitempty"`
	RetrievedAt       time.Time           `json:"retrievedAt"`
}

func (c *Capability) String() string {
	return fmt.Sprintf("Contact: %s, Mechanism: %s, Source: %s, Tuples: %d, Tags: %d", c.ContactURI, c.Mechanism, c.Source, len(c.Tuples), len(c.FeatureTags))
}

func (c *Capability) HasFeatureTag(tag string) bool {
	for _, t := range c.FeatureTags {
		if ASCIIToLower(t) == ASCIIToLower(tag) {
			return true
		}
	}
	return false
}

// FindTuple returns the first tuple carrying the given service id.
func (c *Capability) FindTuple(serviceID string) *PresenceTuple {
	for i := range c.Tuples {
		if c.Tuples[i].ServiceID == serviceID {
			return &c.Tuples[i]
		}
	}
	return nil
}

// NewTerminatedCapability builds the record for a contact the network reported as terminated.
func NewTerminatedCapability(uri, reason string, mech CapabilityMechanism) Capability {
	return Capability{
		ContactURI:        uri,
		Mechanism:         mech,
		Source:            SourceNetwork,
		Terminated:        true,
		TerminationReason: reason,
		RetrievedAt:       time.Now(),
	}
}

// =========================================================================================================

type SystemError struct {
	Code    int
	Details string
}

func NewError(code int, details string) error {
	return &SystemError{Code: code, Details: details}
}

func (se *SystemError) Error() string {
	return fmt.Sprintf("Code: %d - Details: %s", se.Code, se.Details)
}

// =========================================================================================================

type LogLevel int

const (
	LLInformation LogLevel = iota
	LLWarning
	LLError
)

func (ll LogLevel) String() string {
	switch ll {
	case LLWarning:
		return "Warning"
	case LLError:
		return "Error"
	default:
		return "Information"
	}
}

type LogTitle int

const (
	LTSystem LogTitle = iota
	LTConfiguration
	LTRequest
	LTPublish
	LTCache
	LTConnection
	LTSettings
	LTWebserver
	LTStats
)

var logTitleToString = map[LogTitle]string{
	LTSystem:        "System",
	LTConfiguration: "Configuration",
	LTRequest:       "Request",
	LTPublish:       "Publish",
	LTCache:         "Cache",
	LTConnection:    "Connection",
	LTSettings:      "Settings",
	LTWebserver:     "Webserver",
	LTStats:         "Stats",
}

func (lt LogTitle) String() string {
	return logTitleToString[lt]
}

// =========================================================================================================

// NormalizeURI strips visual clutter so the same contact always hits the same cache row.
func NormalizeURI(uri string) string {
	uri = strings.TrimSpace(uri)
	uri = strings.TrimPrefix(uri, "<")
	uri = strings.TrimSuffix(uri, ">")
	if idx := strings.IndexRune(uri, ';'); idx != -1 {
		uri = uri[:idx]
	}
	return uri
}
