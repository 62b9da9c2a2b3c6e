package uce

import (
	"fmt"
	"sync"
	"time"

	"UCEGo/uce/errcode"
)

// ServerState is the subscription-wide forbidden window. A SIP 403 arms it with
// a carrier-supplied error code and optional Retry-After; while armed, every
// request short-circuits without touching the network. Expiry is lazy - checked
// on read, never by timer. A zero allowed time means the window holds until the
// network clears it (re-registration).
//
// Guarded by its own lock because it is read from concurrent request paths, not
// only from the event context.
type ServerState struct {
	mu          sync.RWMutex
	forbidden   bool
	code        errcode.Code
	allowedTime time.Time
}

func NewServerState() *ServerState {
	return &ServerState{code: errcode.None}
}

func (st *ServerState) IsRequestForbidden() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if !st.forbidden {
		return false
	}
	if st.allowedTime.IsZero() {
		return true
	}
	return time.Now().Before(st.allowedTime)
}

func (st *ServerState) UpdateRequestForbidden(forbidden bool, code errcode.Code, retryAfterMillis int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !forbidden {
		st.forbidden = false
		st.code = errcode.None
		st.allowedTime = time.Time{}
		return
	}
	st.forbidden = true
	st.code = code
	if retryAfterMillis > 0 {
		st.allowedTime = time.Now().Add(time.Duration(retryAfterMillis) * time.Millisecond)
	} else {
		st.allowedTime = time.Time{}
	}
}

// ForbiddenDetails returns the carrier error code and the remaining window in
// milliseconds, zero once expired or when the window is open-ended.
func (st *ServerState) ForbiddenDetails() (errcode.Code, int64) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	code := st.code
	if code == errcode.None {
		code = errcode.Forbidden
	}
	if st.allowedTime.IsZero() {
		return code, 0
	}
	remaining := time.Until(st.allowedTime).Milliseconds()
	if remaining < 0 {
		remaining = 0
	}
	return code, remaining
}

type ServerStateSummary struct {
	Forbidden        bool   `json:"forbidden"`
	ErrorCode        string `json:"errorCode"`
	AllowedTime      string `json:"allowedTime,omitempty"`
	RetryAfterMillis int64  `json:"retryAfterMillis"`
}

func (st *ServerState) Summary() ServerStateSummary {
	forbidden := st.IsRequestForbidden()
	st.mu.RLock()
	defer st.mu.RUnlock()
	summary := ServerStateSummary{Forbidden: forbidden, ErrorCode: st.code.String()}
	if !st.allowedTime.IsZero() {
		summary.AllowedTime = st.allowedTime.Format(time.RFC3339)
		if remaining := time.Until(st.allowedTime).Milliseconds(); remaining > 0 {
			summary.RetryAfterMillis = remaining
		}
	}
	return summary
}

func (st *ServerState) String() string {
	summary := st.Summary()
	return fmt.Sprintf("forbidden [%t] code [%s] retryAfter [%d ms]", summary.Forbidden, summary.ErrorCode, summary.RetryAfterMillis)
}
