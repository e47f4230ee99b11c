package integrations

import (
	"time"

	"github.com/cognitedata/hik-event-client/internal"
	log "github.com/sirupsen/logrus"
)

const (
	RunStatusSuccess = "success"
	RunStatusFailure = "failure"
	RunStatusSeen    = "seen"
)

const processorStopTimeout = 30 * time.Second

// BaseIntegration is a base class for all integrations. Integrations are long running processes that internally run one or more processors (goroutines)
// All processors share that same logic but configured differently. StateTracker is used to track the state of all processors and to control them.
type BaseIntegration struct {
	ID                  string
	IsRunning           bool
	StateTracker        *internal.StateTracker
	extractorID         string
	disableRunReporting bool
	logger              *log.Entry
}

func NewIntegration(id string, extractorID string) *BaseIntegration {
	return &BaseIntegration{ID: id,
		extractorID:  extractorID,
		StateTracker: internal.NewStateTracker(),
		logger:       log.WithFields(log.Fields{"integration": id, "extractor": extractorID}),
	}
}

func (intgr *BaseIntegration) Stop() {
	intgr.IsRunning = false
}

func (intgr *BaseIntegration) Logger() *log.Entry {
	return intgr.logger
}

func (intgr *BaseIntegration) DisableRunReporting(state bool) {
	intgr.disableRunReporting = state
}

// StopProcessor waits until a processor that has been signalled to stop reports the stopped state.
func (intgr *BaseIntegration) StopProcessor(procId uint64) bool {
	procState := intgr.StateTracker.GetProcessorState(procId)
	if procState.CurrentState == internal.ProcessorStateStopped || procState.CurrentState == internal.ProcessorStateShutdown || procState.CurrentState == internal.ProcessorStateNotFound {
		intgr.logger.Debugf("Processor %d is already stopped or not found", procId)
		return true
	}
	intgr.logger.Infof("Sending stop signal to processor %d ", procId)
	intgr.StateTracker.SetProcessorTargetState(procId, internal.ProcessorStateStopped)
	if intgr.StateTracker.WaitForProcessorTargetState(procId, processorStopTimeout) {
		intgr.logger.Infof("Processor %d has been stopped", procId)
		return true
	}
	intgr.logger.Errorf("Failed to stop processor %d. Previous instance is still running", procId)
	return false
}

// ReportRunStatus writes a run report of the integration to the log.
func (intgr *BaseIntegration) ReportRunStatus(camName, status, msg string) {
	if intgr.disableRunReporting {
		return
	}
	entry := intgr.logger.WithField("run_status", status)
	if camName != "" {
		entry = entry.WithField("camera", camName)
	}
	if status == RunStatusFailure {
		entry.Warn(msg)
		return
	}
	entry.Info(msg)
}
