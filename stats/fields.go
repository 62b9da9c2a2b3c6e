package stats

import "fmt"

type (
	Field string

	Instance struct {
		data map[Field]string
	}
)

const (
	RecordID       Field = "recordId"       // Unique identifier for the exchange record
	Timestamp      Field = "timestamp"      // Completion timestamp
	SubscriptionID Field = "subscriptionId" // Owning subscription
	TaskID         Field = "taskId"         // Correlation task id
	Kind           Field = "kind"           // Capability, Availability or RemoteOptions
	Mechanism      Field = "mechanism"      // Presence or Options
	TargetCount    Field = "targetCount"    // Number of queried contacts
	SipCode        Field = "sipCode"        // Last SIP response code, 0 when none arrived
	ErrorCode      Field = "errorCode"      // Terminal application error, None on success
	DurationMillis Field = "durationMillis" // Wall time from acceptance to completion
	Outcome        Field = "outcome"        // success or failure
)

func getAllFields() []Field {
	return []Field{
		RecordID,
		Timestamp,
		SubscriptionID,
		TaskID,
		Kind,
		Mechanism,
		TargetCount,
		SipCode,
		ErrorCode,
		DurationMillis,
		Outcome,
	}
}

func (f Field) String() string {
	return string(f)
}

func CastStringSlice[T fmt.Stringer](input []T) []string {
	output := make([]string, len(input))
	for i, v := range input {
		output[i] = v.String()
	}
	return output
}

func New() *Instance {
	return &Instance{
		data: make(map[Field]string, len(stringfields)),
	}
}

func (inst *Instance) Set(field Field, value string) {
	inst.data[field] = value
}

func (inst *Instance) Flush() {
	pipe <- inst.data
}
