package hikevents

// DeviceStatusSink receives camera status transitions. The host maps them to
// its own device representation.
type DeviceStatusSink interface {
	OnStatusChanged(status CameraStatus)
}

// StatusSinkFunc adapts a function to DeviceStatusSink.
type StatusSinkFunc func(status CameraStatus)

func (f StatusSinkFunc) OnStatusChanged(status CameraStatus) { f(status) }

// StatusTracker holds the current status and forwards distinct transitions
// to the sink.
type StatusTracker struct {
	current CameraStatus
	sink    DeviceStatusSink
}

func NewStatusTracker(sink DeviceStatusSink) *StatusTracker {
	return &StatusTracker{current: StatusUnknown, sink: sink}
}

func (t *StatusTracker) Current() CameraStatus {
	return t.current
}

// Set updates the status and notifies the sink. It returns false and does
// nothing when status equals the current value.
func (t *StatusTracker) Set(status CameraStatus) bool {
	if status == t.current {
		return false
	}
	t.current = status
	if t.sink != nil {
		t.sink.OnStatusChanged(status)
	}
	return true
}
