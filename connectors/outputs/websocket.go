package outputs

import (
	"net/http"
	"sync"
	"time"

	"github.com/cognitedata/hik-event-client/drivers/camera"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const websocketWriteTimeout = 5 * time.Second

type WebsocketConfig struct {
	Enabled bool
	URL     string // ws://host:port/path
	Headers map[string]string
}

// WebsocketOutput writes status events as JSON messages to a websocket
// endpoint. The connection is opened on the first event and re-dialed on the
// next event after a write failure.
type WebsocketOutput struct {
	config WebsocketConfig
	dialer *websocket.Dialer
	conn   *websocket.Conn
	mux    sync.Mutex
}

func NewWebsocketOutput(config WebsocketConfig) (*WebsocketOutput, error) {
	if config.URL == "" {
		return nil, errors.New("websocket url is not set")
	}
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	return &WebsocketOutput{config: config, dialer: &dialer}, nil
}

func (o *WebsocketOutput) Name() string {
	return "websocket"
}

func (o *WebsocketOutput) Publish(ev camera.StatusEvent) error {
	o.mux.Lock()
	defer o.mux.Unlock()
	if o.conn == nil {
		if err := o.connect(); err != nil {
			return err
		}
	}
	o.conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
	if err := o.conn.WriteJSON(ev); err != nil {
		o.conn.Close()
		o.conn = nil
		return errors.Wrap(err, "write status event")
	}
	return nil
}

func (o *WebsocketOutput) connect() error {
	header := http.Header{}
	for k, v := range o.config.Headers {
		header.Set(k, v)
	}
	log.Debug("Connecting to websocket at ", o.config.URL)
	c, resp, err := o.dialer.Dial(o.config.URL, header)
	if err != nil {
		if resp != nil {
			log.Info("Response from websocket endpoint:", resp.Status)
		}
		return errors.Wrapf(err, "dial %s", o.config.URL)
	}
	o.conn = c
	log.Info("Connected to websocket endpoint ", o.config.URL)
	return nil
}

func (o *WebsocketOutput) Close() error {
	o.mux.Lock()
	defer o.mux.Unlock()
	if o.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	o.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := o.conn.Close()
	o.conn = nil
	return err
}
