package outputs

import (
	"strings"
	"time"

	"github.com/cognitedata/hik-event-client/drivers/camera"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const mqttPublishTimeout = 5 * time.Second

type MqttConfig struct {
	Enabled     bool
	BrokerURL   string // tcp://localhost:1883 or ssl://broker:8883
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retained    bool
}

// Publisher is the part of mqtt.Client the output uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MqttOutput publishes each status change as the payload of
// <prefix>/<camera>/motion.
type MqttOutput struct {
	config MqttConfig
	client Publisher
	close  func()
}

func NewMqttOutput(config MqttConfig) (*MqttOutput, error) {
	if config.BrokerURL == "" {
		return nil, errors.New("mqtt broker url is not set")
	}
	if config.ClientID == "" {
		config.ClientID = "hik-event-client"
	}
	logger := log.WithField("output", "mqtt")
	opts := mqtt.NewClientOptions().
		AddBroker(config.BrokerURL).
		SetClientID(config.ClientID).
		SetUsername(config.Username).
		SetPassword(config.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = func(c mqtt.Client) {
		logger.Infof("Connected to MQTT broker %s", config.BrokerURL)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warnf("Connection to MQTT broker lost : %s", err.Error())
	}
	client := mqtt.NewClient(opts)
	// With connect retry enabled the token only completes once connected,
	// publishes are queued until then.
	client.Connect()
	return &MqttOutput{
		config: config,
		client: client,
		close:  func() { client.Disconnect(250) },
	}, nil
}

func newMqttOutputWithPublisher(config MqttConfig, pub Publisher) *MqttOutput {
	return &MqttOutput{config: config, client: pub}
}

func (o *MqttOutput) Name() string {
	return "mqtt"
}

// Topic returns the status topic of a camera. Characters that are MQTT
// wildcards or separators are replaced in the camera name.
func (o *MqttOutput) Topic(cameraName string) string {
	name := strings.NewReplacer("/", "_", "+", "_", "#", "_", " ", "_").Replace(cameraName)
	prefix := strings.TrimRight(o.config.TopicPrefix, "/")
	if prefix == "" {
		prefix = "hikevents"
	}
	return prefix + "/" + name + "/motion"
}

func (o *MqttOutput) Publish(ev camera.StatusEvent) error {
	token := o.client.Publish(o.Topic(ev.CameraName), o.config.QoS, o.config.Retained, ev.Status.String())
	if !token.WaitTimeout(mqttPublishTimeout) {
		return errors.Errorf("mqtt publish timed out after %s", mqttPublishTimeout)
	}
	return token.Error()
}

func (o *MqttOutput) Close() error {
	if o.close != nil {
		o.close()
	}
	return nil
}
