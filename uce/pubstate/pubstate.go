package pubstate

// State is the externally observable publish state of the device capability document.
type State int

const (
	NotPublished State = iota
	Publishing
	OK
	RequestTimeout
	OtherError
)

var stateToString = map[State]string{
	NotPublished:   "NotPublished",
	Publishing:     "Publishing",
	OK:             "OK",
	RequestTimeout: "RequestTimeout",
	OtherError:     "OtherError",
}

func (s State) String() string {
	return stateToString[s]
}

// IsTerminalError reports whether the state is a durable failure that ends retrying.
func (s State) IsTerminalError() bool {
	return s == RequestTimeout || s == OtherError
}
