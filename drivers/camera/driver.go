package camera

import (
	"context"
	"encoding/xml"
	"time"

	"github.com/cognitedata/hik-event-client/drivers/camera/hikevents"
)

// DeviceInfo is the identity block a camera reports about itself.
type DeviceInfo struct {
	XMLName              xml.Name `xml:"DeviceInfo"`
	DeviceName           string   `xml:"deviceName"`
	DeviceID             string   `xml:"deviceID"`
	Model                string   `xml:"model"`
	SerialNumber         string   `xml:"serialNumber"`
	MacAddress           string   `xml:"macAddress"`
	FirmwareVersion      string   `xml:"firmwareVersion"`
	FirmwareReleasedDate string   `xml:"firmwareReleasedDate"`
}

// StatusEvent is published on the integration event bus whenever a camera
// changes its motion status.
type StatusEvent struct {
	CameraID   uint64                 `json:"cameraId"`
	CameraName string                 `json:"camera"`
	Status     hikevents.CameraStatus `json:"status"`
	EventType  string                 `json:"eventType,omitempty"`
	EventState string                 `json:"eventState,omitempty"`
	Timestamp  int64                  `json:"timestamp"` // unix milliseconds
}

func NewStatusEvent(cameraID uint64, cameraName string, status hikevents.CameraStatus, last hikevents.EventMessage) StatusEvent {
	ev := StatusEvent{
		CameraID:   cameraID,
		CameraName: cameraName,
		Status:     status,
		Timestamp:  time.Now().UnixMilli(),
	}
	if status != hikevents.StatusUnknown {
		ev.EventType = last.EventType
		ev.EventState = last.EventState
	}
	return ev
}

type DriverConstructor func() Driver

type Driver interface {
	Configure(address, username, password string) error
	DeviceInfo(ctx context.Context) (*DeviceInfo, error)
	Ping(ctx context.Context) bool
}
