package cmdcode

// Code is the transport-level command error reported by the capability exchange service
// before any SIP response was produced.
type Code int

const (
	None Code = iota
	GenericFailure
	InvalidParam
	FetchError
	RequestTimeout
	InsufficientMemory
	LostNetworkConnection
	NotSupported
	NotFound
	ServiceUnavailable
	NoChange
)

var codeToString = map[Code]string{
	None:                  "None",
	GenericFailure:        "GenericFailure",
	InvalidParam:          "InvalidParam",
	FetchError:            "FetchError",
	RequestTimeout:        "RequestTimeout",
	InsufficientMemory:    "InsufficientMemory",
	LostNetworkConnection: "LostNetworkConnection",
	NotSupported:          "NotSupported",
	NotFound:              "NotFound",
	ServiceUnavailable:    "ServiceUnavailable",
	NoChange:              "NoChange",
}

func (c Code) String() string {
	return codeToString[c]
}
