package outputs

import (
	"github.com/cognitedata/hik-event-client/drivers/camera"
	log "github.com/sirupsen/logrus"
)

// Output forwards camera status events to an external system.
type Output interface {
	Name() string
	Publish(ev camera.StatusEvent) error
	Close() error
}

// Forward publishes every event from events to out until the channel is
// closed. Failed events are logged and dropped.
func Forward(out Output, events <-chan camera.StatusEvent) {
	logger := log.WithField("output", out.Name())
	logger.Info("Output subscribed to camera status events")
	for ev := range events {
		if err := out.Publish(ev); err != nil {
			logger.Errorf("Failed to publish status of camera %s : %s", ev.CameraName, err.Error())
			continue
		}
		logger.Debugf("Published status %s of camera %s", ev.Status, ev.CameraName)
	}
	logger.Info("Output event stream closed")
}
