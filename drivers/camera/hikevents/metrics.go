package hikevents

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared by all alert stream clients of a
// process. Series are labelled by camera.
type Metrics struct {
	Status     *prometheus.GaugeVec
	State      *prometheus.GaugeVec
	Messages   *prometheus.CounterVec
	Reconnects *prometheus.CounterVec
}

// Result labels of the messages counter.
const (
	MessageClassified = "classified"
	MessageParseError = "parse_error"
	MessageDropped    = "dropped"
)

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hikevents",
			Name:      "camera_status",
			Help:      "Current camera status (-1 unknown, 0 no motion, 1 motion)",
		}, []string{"camera"}),
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hikevents",
			Name:      "connection_state",
			Help:      "Current connection state of the alert stream worker",
		}, []string{"camera"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hikevents",
			Name:      "messages_total",
			Help:      "Event messages cut from the alert stream by result",
		}, []string{"camera", "result"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hikevents",
			Name:      "reconnects_total",
			Help:      "Connection resets by reason",
		}, []string{"camera", "reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.Status, m.State, m.Messages, m.Reconnects)
	}
	return m
}

// cameraMetrics binds Metrics to one camera label. A nil receiver is valid
// and records nothing.
type cameraMetrics struct {
	m      *Metrics
	camera string
}

func (cm *cameraMetrics) status(s CameraStatus) {
	if cm == nil {
		return
	}
	cm.m.Status.WithLabelValues(cm.camera).Set(float64(s))
}

func (cm *cameraMetrics) state(s ConnectionState) {
	if cm == nil {
		return
	}
	cm.m.State.WithLabelValues(cm.camera).Set(float64(s))
}

func (cm *cameraMetrics) message(result string) {
	if cm == nil {
		return
	}
	cm.m.Messages.WithLabelValues(cm.camera, result).Inc()
}

func (cm *cameraMetrics) reconnect(reason string) {
	if cm == nil {
		return
	}
	cm.m.Reconnects.WithLabelValues(cm.camera, reason).Inc()
}
