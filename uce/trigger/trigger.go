package trigger

// Type identifies what asked for a publish of the device capability document.
type Type int

const (
	Service Type = iota
	Retry
	TtyChange
	AirplaneModeChange
	MobileDataChange
	VtChange
	ProvisioningChange
	Registered
)

var typeToString = map[Type]string{
	Service:            "Service",
	Retry:              "Retry",
	TtyChange:          "TtyChange",
	AirplaneModeChange: "AirplaneModeChange",
	MobileDataChange:   "MobileDataChange",
	VtChange:           "VtChange",
	ProvisioningChange: "ProvisioningChange",
	Registered:         "Registered",
}

func (t Type) String() string {
	return typeToString[t]
}
