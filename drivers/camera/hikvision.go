package camera

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	dac "github.com/xinsnake/go-http-digest-auth-client"
)

const hikvisionDeviceInfoPath = "/ISAPI/System/deviceInfo"

// HikvisionCameraDriver talks to the ISAPI HTTP interface of a Hikvision
// camera. Requests use digest authentication.
type HikvisionCameraDriver struct {
	httpClient      http.Client
	digestTransport *dac.DigestTransport
	address         string
	username        string
	password        string
}

func NewHikvisionCameraDriver() Driver {
	httpClient := http.Client{
		Timeout: 15 * time.Second,
	}
	return &HikvisionCameraDriver{httpClient: httpClient}
}

// Configure sets the camera base URL (for example http://192.168.1.64) and credentials.
func (cam *HikvisionCameraDriver) Configure(address, username, password string) error {
	if address == "" {
		return errors.New("empty camera address")
	}
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}
	cam.address = strings.TrimRight(address, "/")
	cam.username = username
	cam.password = password
	cam.digestTransport = nil
	return nil
}

// DeviceInfo reads model and firmware details from the camera.
func (cam *HikvisionCameraDriver) DeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	body, err := cam.get(ctx, hikvisionDeviceInfoPath)
	if err != nil {
		return nil, err
	}
	var info DeviceInfo
	if err := xml.Unmarshal(body, &info); err != nil {
		return nil, errors.Wrap(err, "decode device info")
	}
	return &info, nil
}

// Ping reports whether the ISAPI interface answers with valid credentials.
func (cam *HikvisionCameraDriver) Ping(ctx context.Context) bool {
	_, err := cam.get(ctx, hikvisionDeviceInfoPath)
	if err != nil {
		log.Debugf("Ping to %s failed : %s", cam.address, err.Error())
	}
	return err == nil
}

func (cam *HikvisionCameraDriver) get(ctx context.Context, path string) ([]byte, error) {
	if cam.address == "" {
		return nil, errors.New("camera driver is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cam.digestTransport == nil {
		t := dac.NewTransport(cam.username, cam.password)
		cam.digestTransport = &t
		cam.digestTransport.HTTPClient = &cam.httpClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cam.address+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := cam.digestTransport.RoundTrip(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("camera api returned error code %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "xml") {
		log.Errorf("Incompatable content type %s from camera API", contentType)
		return nil, errors.Errorf("incompatible content type %s", contentType)
	}
	return body, nil
}
