package inputs

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/cognitedata/hik-event-client/drivers/camera"
	"github.com/cognitedata/hik-event-client/drivers/camera/hikevents"
)

// IpCamera is a network camera that pushes motion events over an alert stream.
type IpCamera struct {
	model    string
	host     string
	port     int
	username string
	password string
	driver   camera.Driver
}

// NewIpCamera returns nil when the model has no driver.
func NewIpCamera(model, host string, port int, username, password string) *IpCamera {
	driverCon := map[string]camera.DriverConstructor{
		"hikvision": camera.NewHikvisionCameraDriver,
	}

	driver := driverCon[model]

	if driver == nil || host == "" {
		return nil
	}
	if port == 0 {
		port = 80
	}

	c := IpCamera{model: model, host: host, port: port, driver: driver(), username: username, password: password}
	if err := c.driver.Configure(c.httpAddress(), username, password); err != nil {
		return nil
	}
	return &c
}

func (cam *IpCamera) httpAddress() string {
	return "http://" + net.JoinHostPort(cam.host, strconv.Itoa(cam.port))
}

func (cam *IpCamera) DeviceInfo(ctx context.Context) (*camera.DeviceInfo, error) {
	if cam.driver == nil {
		return nil, fmt.Errorf("unknown driver")
	}
	return cam.driver.DeviceInfo(ctx)
}

// EventClientConfig returns the alert stream parameters of the camera.
func (cam *IpCamera) EventClientConfig(name string, timings hikevents.Timings) hikevents.Config {
	return hikevents.Config{
		Name:     name,
		Host:     cam.host,
		Port:     cam.port,
		Username: cam.username,
		Password: cam.password,
		Timings:  timings,
	}
}
