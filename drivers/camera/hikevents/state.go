package hikevents

// ConnectionState is the state of the alert stream state machine.
type ConnectionState int

const (
	StateStart ConnectionState = iota
	StateConnecting
	StateSending
	StateReceiving
	StateWaitingRetry
)

func (s ConnectionState) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateConnecting:
		return "connecting"
	case StateSending:
		return "sending"
	case StateReceiving:
		return "receiving"
	case StateWaitingRetry:
		return "waiting_retry"
	default:
		return "invalid"
	}
}

// CameraStatus is the motion status reported for a camera.
// Values match the device values the host framework expects.
type CameraStatus int

const (
	StatusUnknown  CameraStatus = -1
	StatusNoMotion CameraStatus = 0
	StatusMotion   CameraStatus = 1
)

func (s CameraStatus) String() string {
	switch s {
	case StatusNoMotion:
		return "no_motion"
	case StatusMotion:
		return "motion"
	default:
		return "unknown"
	}
}

func (s CameraStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *CameraStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "no_motion":
		*s = StatusNoMotion
	case "motion":
		*s = StatusMotion
	default:
		*s = StatusUnknown
	}
	return nil
}
