package models

// State is a step of the probe sequence. The JSON form is the lower-case name.
type State string

const (
	StateInit           State = "init"
	StateConnecting     State = "connecting"
	StateConnected      State = "connected"
	StateConnectFailed  State = "connect_failed"
	StateSending        State = "sending"
	StateSent           State = "sent"
	StateSendFailed     State = "send_failed"
	StateReceiving      State = "receiving"
	StateReceived       State = "received"
	StateReceiveEmpty   State = "receive_empty"
	StateReceiveTimeout State = "receive_timeout"
	StateReceiveFailed  State = "receive_failed"
	StateClosed         State = "closed"
)

// Phase names the stage a failure belongs to.
type Phase string

const (
	PhaseConnect Phase = "connect"
	PhaseSend    Phase = "send"
	PhaseReceive Phase = "receive"
)

// ErrorKind is a coarse classification of a stage failure.
type ErrorKind string

const (
	KindRefused      ErrorKind = "connection refused"
	KindTimeout      ErrorKind = "timeout"
	KindUnresolvable ErrorKind = "host unresolvable"
	KindUnreachable  ErrorKind = "unreachable"
	KindReset        ErrorKind = "connection reset"
	KindBrokenPipe   ErrorKind = "broken pipe"
	KindClosed       ErrorKind = "connection closed"
	KindNoResponse   ErrorKind = "no response received"
	KindCanceled     ErrorKind = "canceled"
	KindOther        ErrorKind = "error"
)

// StageError is a failure recorded against one phase of the probe.
type StageError struct {
	Phase   Phase     `json:"phase"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *StageError) Error() string {
	if e.Message == "" || e.Message == string(e.Kind) {
		return string(e.Phase) + ": " + string(e.Kind)
	}
	return string(e.Phase) + ": " + string(e.Kind) + ": " + e.Message
}
