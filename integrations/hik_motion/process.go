package hik_motion

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cognitedata/hik-event-client/connectors/inputs"
	"github.com/cognitedata/hik-event-client/connectors/outputs"
	"github.com/cognitedata/hik-event-client/drivers/camera"
	"github.com/cognitedata/hik-event-client/drivers/camera/hikevents"
	"github.com/cognitedata/hik-event-client/integrations"
	"github.com/cognitedata/hik-event-client/internal"
	"github.com/cskr/pubsub/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const IntegrationID = "hik_motion"

// TopicStatus carries the status changes of all cameras. Changes of a single
// camera are also published on CameraTopic(name).
const TopicStatus = "status"

const (
	statusBusCapacity      = 64
	deviceProbeTimeout     = 10 * time.Second
	selfMonitoringInterval = 60 * time.Second
)

func CameraTopic(cameraName string) string {
	return TopicStatus + "/" + cameraName
}

type cameraWorker struct {
	config CameraConfig
	cancel context.CancelFunc
	done   chan struct{}
}

// MotionIntegration runs one alert stream client per enabled camera and
// publishes their status changes on the event bus.
type MotionIntegration struct {
	integrations.BaseIntegration
	secretManager     *internal.SecretManager
	integrationConfig IntegrationConfig
	metrics           *hikevents.Metrics
	clientOptions     []hikevents.Option
	monitorInterval   time.Duration

	bus       *pubsub.PubSub[string, camera.StatusEvent]
	outputs   []outputs.Output
	outputsWG sync.WaitGroup
	workersWG sync.WaitGroup

	mux      sync.Mutex
	workers  map[uint64]*cameraWorker
	statuses map[uint64]camera.StatusEvent

	ctx    context.Context
	cancel context.CancelFunc

	successCounter atomic.Uint64
	failureCounter atomic.Uint64
}

// NewMotionIntegration creates the integration. metrics may be nil. clientOptions
// are applied to every alert stream client before the integration's own options.
func NewMotionIntegration(extractorID string, metrics *hikevents.Metrics, clientOptions ...hikevents.Option) *MotionIntegration {
	return &MotionIntegration{
		BaseIntegration: *integrations.NewIntegration(IntegrationID, extractorID),
		metrics:         metrics,
		clientOptions:   clientOptions,
		monitorInterval: selfMonitoringInterval,
		bus:             pubsub.New[string, camera.StatusEvent](statusBusCapacity),
		workers:         map[uint64]*cameraWorker{},
		statuses:        map[uint64]camera.StatusEvent{},
	}
}

func (intgr *MotionIntegration) SetConfig(config IntegrationConfig) {
	intgr.integrationConfig = config.Clone()
}

func (intgr *MotionIntegration) LoadConfigFromJson(config json.RawMessage) error {
	var localConfig IntegrationConfig
	if err := json.Unmarshal(config, &localConfig); err != nil {
		intgr.Logger().Error("Failed to unmarshal local config with error : ", err.Error())
		return err
	}
	if err := localConfig.Validate(); err != nil {
		return err
	}
	intgr.SetConfig(localConfig)
	intgr.Logger().Info("Local config has been loaded successfully. Cameras count = ", len(localConfig.Cameras))
	return nil
}

func (intgr *MotionIntegration) SetSecretManager(secretManager *internal.SecretManager) {
	intgr.secretManager = secretManager
}

// GetEventBus returns the status bus. It is shut down by Stop, subscriptions
// made before Start receive every change.
func (intgr *MotionIntegration) GetEventBus() *pubsub.PubSub[string, camera.StatusEvent] {
	intgr.mux.Lock()
	defer intgr.mux.Unlock()
	if intgr.bus == nil {
		intgr.bus = pubsub.New[string, camera.StatusEvent](statusBusCapacity)
	}
	return intgr.bus
}

// AddOutput subscribes out to the status of all cameras.
func (intgr *MotionIntegration) AddOutput(out outputs.Output) {
	ch := intgr.GetEventBus().Sub(TopicStatus)
	intgr.outputs = append(intgr.outputs, out)
	intgr.outputsWG.Add(1)
	go func() {
		defer intgr.outputsWG.Done()
		outputs.Forward(out, ch)
	}()
}

func (intgr *MotionIntegration) startOutputs() error {
	var outs []outputs.Output
	if intgr.integrationConfig.Websocket.Enabled {
		out, err := outputs.NewWebsocketOutput(intgr.integrationConfig.Websocket)
		if err != nil {
			return errors.Wrap(err, "websocket output")
		}
		outs = append(outs, out)
	}
	if intgr.integrationConfig.Mqtt.Enabled {
		out, err := outputs.NewMqttOutput(intgr.integrationConfig.Mqtt)
		if err != nil {
			return errors.Wrap(err, "mqtt output")
		}
		outs = append(outs, out)
	}
	for _, out := range outs {
		intgr.AddOutput(out)
	}
	return nil
}

func (intgr *MotionIntegration) Start() error {
	if intgr.IsRunning {
		return errors.New("integration is already running")
	}
	if err := intgr.integrationConfig.Validate(); err != nil {
		return err
	}
	intgr.GetEventBus()
	if err := intgr.startOutputs(); err != nil {
		return err
	}
	intgr.ctx, intgr.cancel = context.WithCancel(context.Background())
	intgr.IsRunning = true

	intgr.Logger().Info("Starting camera workers using local configurations")
	for _, cam := range intgr.integrationConfig.Cameras {
		if !cam.IsEnabled() {
			intgr.Logger().Infof("Camera %s is disabled , operation skipped", cam.Name)
			continue
		}
		if err := intgr.startWorker(cam); err != nil {
			intgr.Logger().Errorf("Processor can't be started for camera %s . Error : %s", cam.Name, err.Error())
		}
	}
	go intgr.startSelfMonitoring(intgr.ctx)
	return nil
}

// ApplyConfig restarts the workers of cameras whose config changed, starts new
// cameras and stops removed or disabled ones. Output settings are only read by Start.
func (intgr *MotionIntegration) ApplyConfig(config IntegrationConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if !intgr.IsRunning {
		intgr.SetConfig(config)
		return nil
	}
	if intgr.integrationConfig.IsEqual(&config) {
		return nil
	}
	intgr.Logger().Info("Config has been changed . Restarting changed camera workers")

	next := make(map[uint64]CameraConfig, len(config.Cameras))
	for _, cam := range config.Cameras {
		next[cam.ID] = cam
	}
	intgr.mux.Lock()
	running := make(map[uint64]CameraConfig, len(intgr.workers))
	for id, w := range intgr.workers {
		running[id] = w.config
	}
	intgr.mux.Unlock()

	for id, current := range running {
		cam, ok := next[id]
		if ok && cam.IsEnabled() && cam.IsEqual(&current) {
			continue
		}
		intgr.stopWorker(id)
	}
	for _, cam := range intgr.integrationConfig.Cameras {
		if _, ok := next[cam.ID]; !ok {
			intgr.forgetCamera(cam.ID)
		}
	}

	intgr.integrationConfig = config.Clone()
	for _, cam := range intgr.integrationConfig.Cameras {
		if !cam.IsEnabled() {
			continue
		}
		intgr.mux.Lock()
		_, isRunning := intgr.workers[cam.ID]
		intgr.mux.Unlock()
		if isRunning {
			continue
		}
		if err := intgr.startWorker(cam); err != nil {
			intgr.Logger().Errorf("Processor can't be started for camera %s . Error : %s", cam.Name, err.Error())
		}
	}
	return nil
}

// Stop stops all camera workers, waits until their final Unknown status has
// been published and then shuts down the bus and the outputs.
func (intgr *MotionIntegration) Stop() {
	if !intgr.IsRunning {
		return
	}
	intgr.BaseIntegration.Stop()
	intgr.cancel()

	intgr.mux.Lock()
	ids := make([]uint64, 0, len(intgr.workers))
	for id := range intgr.workers {
		ids = append(ids, id)
	}
	intgr.mux.Unlock()
	for _, id := range ids {
		intgr.stopWorker(id)
	}
	intgr.workersWG.Wait()

	intgr.mux.Lock()
	bus := intgr.bus
	intgr.bus = nil
	intgr.mux.Unlock()
	if bus != nil {
		bus.Shutdown()
	}
	intgr.outputsWG.Wait()
	for _, out := range intgr.outputs {
		if err := out.Close(); err != nil {
			intgr.Logger().Warnf("Failed to close %s output : %s", out.Name(), err.Error())
		}
	}
	intgr.outputs = nil
	intgr.Logger().Info("Integration has been stopped")
}

func (intgr *MotionIntegration) startWorker(cam CameraConfig) error {
	if cam.Model == "" || cam.Address == "" {
		return errors.New("model or address aren't set")
	}
	password := cam.Password
	if intgr.secretManager != nil {
		password = intgr.secretManager.GetSecret(cam.Password)
	}
	ipCam := inputs.NewIpCamera(cam.Model, cam.Address, cam.Port, cam.Username, password)
	if ipCam == nil {
		return errors.Errorf("unsupported camera model %q", cam.Model)
	}

	ctx, cancel := context.WithCancel(intgr.ctx)
	w := &cameraWorker{config: cam, cancel: cancel, done: make(chan struct{})}
	intgr.StateTracker.SetProcessorCurrentState(cam.ID, internal.ProcessorStateStarting)
	intgr.StateTracker.SetProcessorTargetState(cam.ID, internal.ProcessorStateRunning)
	intgr.mux.Lock()
	intgr.workers[cam.ID] = w
	intgr.mux.Unlock()

	intgr.workersWG.Add(1)
	go intgr.runCameraWorker(ctx, w, ipCam)
	return nil
}

func (intgr *MotionIntegration) stopWorker(id uint64) {
	intgr.mux.Lock()
	w := intgr.workers[id]
	delete(intgr.workers, id)
	intgr.mux.Unlock()
	if w == nil {
		return
	}
	w.cancel()
	if !intgr.StopProcessor(id) {
		return
	}
	<-w.done
}

func (intgr *MotionIntegration) forgetCamera(id uint64) {
	intgr.mux.Lock()
	delete(intgr.statuses, id)
	intgr.mux.Unlock()
	intgr.StateTracker.RemoveProcessor(id)
}

// runCameraWorker runs the alert stream client of one camera until ctx is cancelled.
func (intgr *MotionIntegration) runCameraWorker(ctx context.Context, w *cameraWorker, ipCam *inputs.IpCamera) {
	cam := w.config
	logger := intgr.Logger().WithField("camera", cam.Name)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Camera worker crashed with error : ", string(debug.Stack()))
		}
		intgr.StateTracker.SetProcessorCurrentState(cam.ID, internal.ProcessorStateStopped)
		close(w.done)
		intgr.workersWG.Done()
	}()

	logger.Infof("Starting camera processor. Model = %s, address = %s, username = %s", cam.Model, cam.Address, cam.Username)
	if cam.ProbeDeviceInfo {
		intgr.probeDevice(ctx, ipCam, logger)
	}

	var lastEvent hikevents.EventMessage
	sink := hikevents.StatusSinkFunc(func(status hikevents.CameraStatus) {
		intgr.publishStatus(camera.NewStatusEvent(cam.ID, cam.Name, status, lastEvent))
	})
	opts := make([]hikevents.Option, 0, len(intgr.clientOptions)+4)
	opts = append(opts, intgr.clientOptions...)
	opts = append(opts,
		hikevents.WithLogger(logger),
		hikevents.WithMetrics(intgr.metrics),
		hikevents.WithStateObserver(func(from, to hikevents.ConnectionState) {
			switch {
			case to == hikevents.StateSending:
				intgr.successCounter.Add(1)
			case to == hikevents.StateWaitingRetry, from == hikevents.StateReceiving && to == hikevents.StateStart:
				intgr.failureCounter.Add(1)
			}
		}),
		hikevents.WithEventObserver(func(ev hikevents.EventMessage) {
			lastEvent = ev
			intgr.successCounter.Add(1)
		}),
	)
	client := hikevents.NewClient(ipCam.EventClientConfig(cam.Name, cam.Timings()), sink, opts...)

	intgr.StateTracker.SetProcessorCurrentState(cam.ID, internal.ProcessorStateRunning)
	if err := client.Run(ctx); err != nil {
		logger.Error("Alert stream worker failed : ", err.Error())
		intgr.ReportRunStatus(cam.Name, integrations.RunStatusFailure, fmt.Sprintf("alert stream worker failed, err :%s", err.Error()))
	}
	logger.Infof("Processor %d exited main loop ", cam.ID)
}

func (intgr *MotionIntegration) probeDevice(ctx context.Context, ipCam *inputs.IpCamera, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(ctx, deviceProbeTimeout)
	defer cancel()
	info, err := ipCam.DeviceInfo(ctx)
	if err != nil {
		logger.Warn("Can't read device info. Error : ", err.Error())
		return
	}
	logger.Infof("Device name = %s, model = %s, serial = %s, firmware = %s", info.DeviceName, info.Model, info.SerialNumber, info.FirmwareVersion)
}

func (intgr *MotionIntegration) publishStatus(ev camera.StatusEvent) {
	intgr.mux.Lock()
	intgr.statuses[ev.CameraID] = ev
	bus := intgr.bus
	intgr.mux.Unlock()
	if bus != nil {
		bus.Pub(ev, TopicStatus, CameraTopic(ev.CameraName))
	}
}

// CurrentStatus returns the last status event of a camera.
func (intgr *MotionIntegration) CurrentStatus(cameraID uint64) (camera.StatusEvent, bool) {
	intgr.mux.Lock()
	defer intgr.mux.Unlock()
	ev, ok := intgr.statuses[cameraID]
	return ev, ok
}

// Statuses returns the last status event of every camera that reported one, ordered by camera ID.
func (intgr *MotionIntegration) Statuses() []camera.StatusEvent {
	intgr.mux.Lock()
	defer intgr.mux.Unlock()
	res := make([]camera.StatusEvent, 0, len(intgr.statuses))
	for _, ev := range intgr.statuses {
		res = append(res, ev)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CameraID < res[j].CameraID })
	return res
}

// statusSummary counts running cameras per status. Cameras that never reported are unknown.
func (intgr *MotionIntegration) statusSummary() map[hikevents.CameraStatus]int {
	intgr.mux.Lock()
	defer intgr.mux.Unlock()
	summary := map[hikevents.CameraStatus]int{}
	for id := range intgr.workers {
		status := hikevents.StatusUnknown
		if ev, ok := intgr.statuses[id]; ok {
			status = ev.Status
		}
		summary[status]++
	}
	return summary
}

// startSelfMonitoring periodically reports the health of the camera workers
func (intgr *MotionIntegration) startSelfMonitoring(ctx context.Context) {
	ticker := time.NewTicker(intgr.monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			intgr.reportHealth()
		}
	}
}

func (intgr *MotionIntegration) reportHealth() {
	success := intgr.successCounter.Swap(0)
	failure := intgr.failureCounter.Swap(0)
	summary := intgr.statusSummary()
	msg := fmt.Sprintf("motion=%d no_motion=%d unknown=%d", summary[hikevents.StatusMotion], summary[hikevents.StatusNoMotion], summary[hikevents.StatusUnknown])
	switch {
	case success > 0 && failure == 0:
		intgr.ReportRunStatus("", integrations.RunStatusSuccess, "all cameras operational, "+msg)
	case success > 0 && failure > 0:
		intgr.ReportRunStatus("", integrations.RunStatusSuccess, "some cameras not operational, "+msg)
	case failure > 0:
		intgr.ReportRunStatus("", integrations.RunStatusFailure, "cameras not reachable, "+msg)
	default:
		intgr.ReportRunStatus("", integrations.RunStatusSeen, msg)
	}
}
