package hik_motion

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cognitedata/hik-event-client/drivers/camera"
	"github.com/cognitedata/hik-event-client/drivers/camera/hikevents"
	"github.com/cognitedata/hik-event-client/internal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const alertDoc = `<EventNotificationAlert version="1.0" xmlns="http://www.hikvision.com/ver20/XMLSchema">` +
	"<channelID>1</channelID><eventType>VMD</eventType><eventState>active</eventState>" +
	"</EventNotificationAlert>"

// fakeCamera accepts alert stream subscriptions and answers each with one motion event.
type fakeCamera struct {
	ln       net.Listener
	mu       sync.Mutex
	requests []string
}

func newFakeCamera(t *testing.T) *fakeCamera {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fc := &fakeCamera{ln: ln}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go fc.serve(conn)
		}
	}()
	return fc
}

func (fc *fakeCamera) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	var req string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		req += line
		if line == "\r\n" {
			break
		}
	}
	fc.mu.Lock()
	fc.requests = append(fc.requests, req)
	fc.mu.Unlock()
	io.WriteString(conn, "HTTP/1.1 200 OK\r\nContent-Type: multipart/mixed; boundary=boundary\r\n\r\n")
	io.WriteString(conn, fmt.Sprintf("--boundary\r\nContent-Type: application/xml\r\nContent-Length: %d\r\n\r\n%s\r\n", len(alertDoc), alertDoc))
	io.Copy(io.Discard, r)
}

func (fc *fakeCamera) port() int {
	return fc.ln.Addr().(*net.TCPAddr).Port
}

func (fc *fakeCamera) requestCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.requests)
}

type recordingOutput struct {
	mu     sync.Mutex
	events []camera.StatusEvent
	closed bool
}

func (o *recordingOutput) Name() string { return "recording" }

func (o *recordingOutput) Publish(ev camera.StatusEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
	return nil
}

func (o *recordingOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *recordingOutput) statuses() []hikevents.CameraStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	var res []hikevents.CameraStatus
	for _, ev := range o.events {
		res = append(res, ev.Status)
	}
	return res
}

func testCamera(id uint64, name string, port int) CameraConfig {
	return CameraConfig{
		ID:           id,
		Name:         name,
		Model:        "hikvision",
		Address:      "127.0.0.1",
		Port:         port,
		Username:     "admin",
		Password:     "cam_secret",
		State:        CameraStateEnabled,
		StaleAfterMs: 60000,
		RetryDelayMs: 10,
	}
}

func nextEvent(t *testing.T, ch <-chan camera.StatusEvent) camera.StatusEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "status channel closed")
		return ev
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no status event")
	}
	return camera.StatusEvent{}
}

func TestMotionIntegrationPublishesStatus(t *testing.T) {
	fc := newFakeCamera(t)
	reg := prometheus.NewRegistry()
	metrics := hikevents.NewMetrics(reg)

	intgr := NewMotionIntegration("edge-1", metrics)
	sm := internal.NewSecretManager("")
	sm.LoadSecrets(map[string]string{"cam_secret": "12345"})
	intgr.SetSecretManager(sm)
	intgr.SetConfig(IntegrationConfig{Cameras: []CameraConfig{testCamera(1, "gate", fc.port())}})

	out := &recordingOutput{}
	intgr.AddOutput(out)
	events := intgr.GetEventBus().Sub(CameraTopic("gate"))

	require.NoError(t, intgr.Start())
	assert.Error(t, intgr.Start(), "already running")

	ev := nextEvent(t, events)
	assert.Equal(t, uint64(1), ev.CameraID)
	assert.Equal(t, "gate", ev.CameraName)
	assert.Equal(t, hikevents.StatusMotion, ev.Status)
	assert.Equal(t, "VMD", ev.EventType)
	assert.Equal(t, "active", ev.EventState)

	current, ok := intgr.CurrentStatus(1)
	require.True(t, ok)
	assert.Equal(t, hikevents.StatusMotion, current.Status)
	assert.Equal(t, 1, intgr.statusSummary()[hikevents.StatusMotion])
	assert.Equal(t, internal.ProcessorStateRunning, intgr.StateTracker.GetProcessorState(1).CurrentState)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.Status.WithLabelValues("gate")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	fc.mu.Lock()
	assert.Contains(t, fc.requests[0], "Authorization: Basic "+"YWRtaW46MTIzNDU=")
	fc.mu.Unlock()

	intgr.Stop()
	assert.False(t, intgr.IsRunning)

	ev = nextEvent(t, events)
	assert.Equal(t, hikevents.StatusUnknown, ev.Status)
	assert.Empty(t, ev.EventType)
	_, open := <-events
	assert.False(t, open, "bus is shut down")

	assert.Equal(t, []hikevents.CameraStatus{hikevents.StatusMotion, hikevents.StatusUnknown}, out.statuses())
	assert.True(t, out.closed)
	assert.Equal(t, internal.ProcessorStateStopped, intgr.StateTracker.GetProcessorState(1).CurrentState)
	assert.Equal(t, float64(-1), testutil.ToFloat64(metrics.Status.WithLabelValues("gate")))
}

func TestMotionIntegrationApplyConfig(t *testing.T) {
	fc := newFakeCamera(t)
	intgr := NewMotionIntegration("edge-1", nil)
	gate := testCamera(1, "gate", fc.port())
	gate.Password = "12345"
	intgr.SetConfig(IntegrationConfig{Cameras: []CameraConfig{gate}})
	events := intgr.GetEventBus().Sub(TopicStatus)
	require.NoError(t, intgr.Start())
	defer intgr.Stop()

	assert.Equal(t, hikevents.StatusMotion, nextEvent(t, events).Status)

	// Unchanged config keeps the worker.
	require.NoError(t, intgr.ApplyConfig(IntegrationConfig{Cameras: []CameraConfig{gate}}))
	assert.Equal(t, 1, fc.requestCount())

	// Disabling gate and adding yard.
	disabled := gate
	disabled.State = "disabled"
	yard := testCamera(2, "yard", fc.port())
	yard.Password = "12345"
	require.NoError(t, intgr.ApplyConfig(IntegrationConfig{Cameras: []CameraConfig{disabled, yard}}))

	got := map[string][]hikevents.CameraStatus{}
	for i := 0; i < 2; i++ {
		ev := nextEvent(t, events)
		got[ev.CameraName] = append(got[ev.CameraName], ev.Status)
	}
	assert.Equal(t, []hikevents.CameraStatus{hikevents.StatusUnknown}, got["gate"])
	assert.Equal(t, []hikevents.CameraStatus{hikevents.StatusMotion}, got["yard"])
	assert.Equal(t, internal.ProcessorStateStopped, intgr.StateTracker.GetProcessorState(1).CurrentState)

	statuses := intgr.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "gate", statuses[0].CameraName)
	assert.Equal(t, "yard", statuses[1].CameraName)

	// Removing gate forgets it, changing yard restarts it.
	yard.StaleAfterMs = 30000
	require.NoError(t, intgr.ApplyConfig(IntegrationConfig{Cameras: []CameraConfig{yard}}))
	assert.Equal(t, hikevents.StatusUnknown, nextEvent(t, events).Status)
	assert.Equal(t, hikevents.StatusMotion, nextEvent(t, events).Status)
	_, ok := intgr.CurrentStatus(1)
	assert.False(t, ok)
	assert.Equal(t, internal.ProcessorStateNotFound, intgr.StateTracker.GetProcessorState(1).CurrentState)
	assert.Equal(t, 3, fc.requestCount())

	assert.Error(t, intgr.ApplyConfig(IntegrationConfig{Cameras: []CameraConfig{yard, yard}}))
}

func TestMotionIntegrationSkipsBrokenCameras(t *testing.T) {
	intgr := NewMotionIntegration("edge-1", nil)
	unsupported := testCamera(1, "axis", 80)
	unsupported.Model = "axis"
	noAddress := testCamera(2, "blank", 80)
	noAddress.Address = ""
	intgr.SetConfig(IntegrationConfig{Cameras: []CameraConfig{unsupported, noAddress}})

	require.NoError(t, intgr.Start())
	assert.Equal(t, internal.ProcessorStateNotFound, intgr.StateTracker.GetProcessorState(1).CurrentState)
	assert.Equal(t, internal.ProcessorStateNotFound, intgr.StateTracker.GetProcessorState(2).CurrentState)
	assert.Empty(t, intgr.statusSummary())
	intgr.Stop()
}

func TestMotionIntegrationRejectsBadOutputs(t *testing.T) {
	intgr := NewMotionIntegration("edge-1", nil)
	intgr.SetConfig(IntegrationConfig{Cameras: []CameraConfig{testCamera(1, "gate", 80)}})
	intgr.integrationConfig.Websocket.Enabled = true
	assert.Error(t, intgr.Start())
	assert.False(t, intgr.IsRunning)
}

func TestReportHealth(t *testing.T) {
	intgr := NewMotionIntegration("edge-1", nil)
	intgr.workers[1] = &cameraWorker{}
	intgr.workers[2] = &cameraWorker{}
	intgr.statuses[1] = camera.StatusEvent{CameraID: 1, Status: hikevents.StatusNoMotion}
	intgr.successCounter.Add(3)
	intgr.failureCounter.Add(1)

	intgr.reportHealth()
	assert.Equal(t, uint64(0), intgr.successCounter.Load())
	assert.Equal(t, uint64(0), intgr.failureCounter.Load())
	assert.Equal(t, map[hikevents.CameraStatus]int{hikevents.StatusNoMotion: 1, hikevents.StatusUnknown: 1}, intgr.statusSummary())
}
