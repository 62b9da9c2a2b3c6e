package conn

// NullConnection stands in when no outbound proxy is configured. It reports the
// transport as down so the engine serves from cache and parks publishes as
// pending.
type NullConnection struct{}

func NewNullConnection() *NullConnection {
	return &NullConnection{}
}

func (*NullConnection) IsConnected() bool {
	return false
}

func (*NullConnection) SubmitPublish(string, ResponseHandler) error {
	return ErrNotConnected
}

func (*NullConnection) SubmitSubscribe([]string, ResponseHandler) error {
	return ErrNotConnected
}

func (*NullConnection) SubmitOptions(string, []string, ResponseHandler) error {
	return ErrNotConnected
}

func (*NullConnection) OnIncomingOptions(IncomingOptionsHandler) {}

func (*NullConnection) OnConnectedChange(func(bool)) {}

func (*NullConnection) Shutdown() {}
