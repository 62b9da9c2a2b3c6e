package errcode

// Code is the application-facing error reported on a failed capability or publish exchange.
type Code int

const (
	None Code = iota
	GenericFailure
	NotEnabled
	NotAvailable
	NotRegistered
	NotAuthorized
	Forbidden
	InsufficientMemory
	LostNetwork
	RequestTimeout
	ServerUnavailable
)

var codeToString = map[Code]string{
	None:               "None",
	GenericFailure:     "GenericFailure",
	NotEnabled:         "NotEnabled",
	NotAvailable:       "NotAvailable",
	NotRegistered:      "NotRegistered",
	NotAuthorized:      "NotAuthorized",
	Forbidden:          "Forbidden",
	InsufficientMemory: "InsufficientMemory",
	LostNetwork:        "LostNetwork",
	RequestTimeout:     "RequestTimeout",
	ServerUnavailable:  "ServerUnavailable",
}

func (c Code) String() string {
	return codeToString[c]
}
