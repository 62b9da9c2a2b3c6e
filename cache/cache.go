package cache

import (
	"UCEGo/global"
)

type ResultStatus string

const (
	StatusFresh    ResultStatus = "Fresh"
	StatusExpired  ResultStatus = "Expired"
	StatusNotFound ResultStatus = "NotFound"
	StatusError    ResultStatus = "Error"
)

// Result is the per-contact outcome of a cache lookup. Record is only
// meaningful when Status is Fresh or Expired.
type Result struct {
	Status ResultStatus
	Record global.Capability
}

// Store is the capability cache consumed by the request engine. Reads partition
// by freshness; writes replace whole records.
type Store interface {
	ReadCapabilities(uris []string) []Result
	ReadAvailability(uri string) Result
	Write(records []global.Capability) error
	Close() error
}
