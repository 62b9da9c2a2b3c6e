package guid

import (
	"github.com/google/uuid"
)

func newUUID() *uuid.UUID {
	u, _ := uuid.NewV7()
	return &u
}

// NewCallID keys a subscription dialog uniquely across engine restarts.
func NewCallID() string {
	uid := newUUID()
	return uid.String()
}

// NewRecordID keys a stats record uniquely across engine restarts.
func NewRecordID() string {
	uid := newUUID()
	return uid.String()
}
