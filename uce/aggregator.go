package uce

import (
	"strings"

	. "UCEGo/global"
	"UCEGo/uce/cmdcode"
	"UCEGo/uce/errcode"
)

// ResponseAggregator accumulates the partial outcomes of one logical request:
// command errors, SIP response codes, streamed capability updates, terminated
// resources, and the terminal retry-after. It is confined to the event context,
// so it carries no lock. Pending lists drain monotonically - an entry handed
// out by a Take call is gone.
type ResponseAggregator struct {
	commandError      cmdcode.Code
	sipCode           int
	reasonPhrase      string
	reasonHeaderCause int
	reasonHeaderText  string
	terminationReason string
	terminated        bool
	retryAfterMillis  int64
	errorCode         errcode.Code
	pendingUpdated    []Capability
	pendingTerminated []Capability
}

func NewResponseAggregator() *ResponseAggregator {
	return &ResponseAggregator{commandError: cmdcode.None, errorCode: errcode.None}
}

func (ra *ResponseAggregator) RecordCommandError(code cmdcode.Code) {
	ra.commandError = code
}

func (ra *ResponseAggregator) RecordNetworkResponse(sipCode int, reasonPhrase string) {
	ra.sipCode = sipCode
	ra.reasonPhrase = reasonPhrase
}

func (ra *ResponseAggregator) RecordReasonHeader(cause int, text string) {
	ra.reasonHeaderCause = cause
	ra.reasonHeaderText = text
}

func (ra *ResponseAggregator) RecordTermination(reason string, retryAfterMillis int64) {
	ra.terminated = true
	ra.terminationReason = reason
	if retryAfterMillis > 0 {
		ra.retryAfterMillis = retryAfterMillis
	}
}

func (ra *ResponseAggregator) SetErrorCode(code errcode.Code) {
	ra.errorCode = code
}

func (ra *ResponseAggregator) AddUpdatedCapabilities(records []Capability) {
	ra.pendingUpdated = append(ra.pendingUpdated, records...)
}

func (ra *ResponseAggregator) AddTerminatedResources(records []Capability) {
	ra.pendingTerminated = append(ra.pendingTerminated, records...)
}

func (ra *ResponseAggregator) TakeUpdatedCapabilities() []Capability {
	records := ra.pendingUpdated
	ra.pendingUpdated = nil
	return records
}

func (ra *ResponseAggregator) TakeTerminatedResources() []Capability {
	records := ra.pendingTerminated
	ra.pendingTerminated = nil
	return records
}

func (ra *ResponseAggregator) CommandError() cmdcode.Code {
	return ra.commandError
}

func (ra *ResponseAggregator) SipCode() int {
	return ra.sipCode
}

func (ra *ResponseAggregator) ReasonPhrase() string {
	return ra.reasonPhrase
}

func (ra *ResponseAggregator) RetryAfterMillis() int64 {
	return ra.retryAfterMillis
}

// IsNetworkSuccess reports whether the last recorded network response was a
// success-class SIP code.
func (ra *ResponseAggregator) IsNetworkSuccess() bool {
	return IsPositive(ra.sipCode)
}

// IsTerminalSuccess holds only when the exchange terminated after a
// success-class response with no retry-after attached.
func (ra *ResponseAggregator) IsTerminalSuccess() bool {
	return ra.terminated && ra.IsNetworkSuccess() && ra.retryAfterMillis == 0
}

func (ra *ResponseAggregator) IsRetryable() bool {
	if ra.commandError != cmdcode.None {
		return RetryableCommand(ra.commandError)
	}
	return RetryableSip(ra.sipCode)
}

// DerivedError folds the recorded outcomes into one application error code, in
// precedence order: command error, SIP response, termination reason, explicit
// override.
func (ra *ResponseAggregator) DerivedError() errcode.Code {
	if ra.commandError != cmdcode.None {
		return CommandCodeToError(ra.commandError)
	}
	if ra.sipCode != 0 && !ra.IsNetworkSuccess() {
		return SipCodeToError(ra.sipCode, ra.reasonPhrase)
	}
	if ra.terminated && !ra.IsTerminalSuccess() {
		return TerminationReasonToError(ra.terminationReason)
	}
	if ra.errorCode != errcode.None {
		return ra.errorCode
	}
	return errcode.GenericFailure
}

// =========================================================================================================
// Retry / error classification shared by the request and publish paths

func RetryableCommand(code cmdcode.Code) bool {
	switch code {
	case cmdcode.RequestTimeout, cmdcode.InsufficientMemory, cmdcode.LostNetworkConnection, cmdcode.ServiceUnavailable:
		return true
	}
	return false
}

func RetryableSip(sipCode int) bool {
	switch sipCode {
	case 408, 500, 503, 504:
		return true
	}
	return false
}

func IsForbiddenSip(sipCode int) bool {
	return sipCode == 403
}

func CommandCodeToError(code cmdcode.Code) errcode.Code {
	switch code {
	case cmdcode.None, cmdcode.NoChange:
		return errcode.None
	case cmdcode.RequestTimeout:
		return errcode.RequestTimeout
	case cmdcode.InsufficientMemory:
		return errcode.InsufficientMemory
	case cmdcode.LostNetworkConnection:
		return errcode.LostNetwork
	case cmdcode.ServiceUnavailable:
		return errcode.ServerUnavailable
	case cmdcode.NotSupported:
		return errcode.NotEnabled
	case cmdcode.NotFound:
		return errcode.NotAvailable
	}
	return errcode.GenericFailure
}

// SipCodeToError maps a negative SIP response to an application error. A 403 is
// refined by the carrier reason phrase when one was supplied.
func SipCodeToError(sipCode int, reasonPhrase string) errcode.Code {
	switch sipCode {
	case 403:
		reason := strings.ToLower(reasonPhrase)
		switch {
		case strings.Contains(reason, strings.ToLower(SipReasonUserNotRegistered)):
			return errcode.NotRegistered
		case strings.Contains(reason, strings.ToLower(SipReasonNotAuthorizedForPresence)):
			return errcode.NotAuthorized
		}
		return errcode.Forbidden
	case 404:
		return errcode.NotAvailable
	case 408:
		return errcode.RequestTimeout
	case 500, 503, 504:
		return errcode.ServerUnavailable
	}
	if IsPositive(sipCode) {
		return errcode.None
	}
	return errcode.GenericFailure
}

func TerminationReasonToError(reason string) errcode.Code {
	switch strings.ToLower(reason) {
	case "", "noresource", "deactivated":
		return errcode.GenericFailure
	case "timeout", "giveup":
		return errcode.RequestTimeout
	case "rejected":
		return errcode.Forbidden
	}
	return errcode.GenericFailure
}
