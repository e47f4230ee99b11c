package hik_motion

import (
	"time"

	"github.com/cognitedata/hik-event-client/connectors/outputs"
	"github.com/cognitedata/hik-event-client/drivers/camera/hikevents"
	"github.com/pkg/errors"
)

const CameraStateEnabled = "enabled"

type CameraConfig struct {
	ID              uint64
	ExternalID      string
	Name            string
	Model           string
	Address         string // host name or IP of the camera
	Port            int    // HTTP port serving the alert stream, 80 if not set
	Username        string
	Password        string // plain text or secret key resolved through the secret manager
	State           string
	ProbeDeviceInfo bool

	// Alert stream waits in milliseconds, 0 means default
	ConnectTimeoutMs int
	ReceiveWaitMs    int
	StaleAfterMs     int
	RetryDelayMs     int
}

// Compare CameraConfig with another CameraConfig
func (c *CameraConfig) IsEqual(other *CameraConfig) bool {
	return c.ID == other.ID &&
		c.ExternalID == other.ExternalID &&
		c.Name == other.Name &&
		c.Model == other.Model &&
		c.Address == other.Address &&
		c.Port == other.Port &&
		c.Username == other.Username &&
		c.Password == other.Password &&
		c.State == other.State &&
		c.ProbeDeviceInfo == other.ProbeDeviceInfo &&
		c.ConnectTimeoutMs == other.ConnectTimeoutMs &&
		c.ReceiveWaitMs == other.ReceiveWaitMs &&
		c.StaleAfterMs == other.StaleAfterMs &&
		c.RetryDelayMs == other.RetryDelayMs
}

func (c *CameraConfig) IsEnabled() bool {
	return c.State == CameraStateEnabled
}

func (c *CameraConfig) Timings() hikevents.Timings {
	return hikevents.Timings{
		ConnectTimeout: time.Duration(c.ConnectTimeoutMs) * time.Millisecond,
		ReceiveWait:    time.Duration(c.ReceiveWaitMs) * time.Millisecond,
		StaleAfter:     time.Duration(c.StaleAfterMs) * time.Millisecond,
		RetryDelay:     time.Duration(c.RetryDelayMs) * time.Millisecond,
	}
}

type IntegrationConfig struct {
	Cameras   []CameraConfig
	Mqtt      outputs.MqttConfig
	Websocket outputs.WebsocketConfig
}

// Validate checks that cameras can be told apart by ID and by name.
func (c *IntegrationConfig) Validate() error {
	ids := map[uint64]bool{}
	names := map[string]bool{}
	for _, cam := range c.Cameras {
		if cam.ID == 0 {
			return errors.Errorf("camera %q has no ID", cam.Name)
		}
		if cam.Name == "" {
			return errors.Errorf("camera %d has no name", cam.ID)
		}
		if ids[cam.ID] {
			return errors.Errorf("duplicate camera ID %d", cam.ID)
		}
		if names[cam.Name] {
			return errors.Errorf("duplicate camera name %q", cam.Name)
		}
		ids[cam.ID] = true
		names[cam.Name] = true
	}
	return nil
}

// Compare IntegrationConfig with another IntegrationConfig
func (c *IntegrationConfig) IsEqual(other *IntegrationConfig) bool {
	if len(c.Cameras) != len(other.Cameras) {
		return false
	}
	for i, camera := range c.Cameras {
		if !camera.IsEqual(&other.Cameras[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the camera list
func (c *IntegrationConfig) Clone() IntegrationConfig {
	clone := *c
	clone.Cameras = make([]CameraConfig, len(c.Cameras))
	copy(clone.Cameras, c.Cameras)
	if c.Websocket.Headers != nil {
		clone.Websocket.Headers = make(map[string]string, len(c.Websocket.Headers))
		for k, v := range c.Websocket.Headers {
			clone.Websocket.Headers[k] = v
		}
	}
	return clone
}
