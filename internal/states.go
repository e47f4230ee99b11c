package internal

import (
	"sync"
	"time"
)

const (
	ProcessorStateRunning  = "RUNNING"
	ProcessorStateStarting = "STARTING"
	ProcessorStateShutdown = "SHUTDOWN"
	ProcessorStateStopped  = "STOPPED"
	ProcessorStateNotFound = "NOT_FOUND"
)

const statePollInterval = 50 * time.Millisecond

type ProcessorState struct {
	ID           uint64
	CurrentState string
	TargetState  string
}

// StateTracker keeps track of current and target states of camera workers
type StateTracker struct {
	procStates []ProcessorState
	mux        *sync.RWMutex
}

func NewStateTracker() *StateTracker {
	return &StateTracker{mux: &sync.RWMutex{}}
}

func (st *StateTracker) SetProcessorTargetState(procId uint64, state string) {
	st.mux.Lock()
	defer st.mux.Unlock()
	ps := st.getProcessorState(procId)
	if ps.CurrentState == ProcessorStateNotFound {
		st.procStates = append(st.procStates, ProcessorState{ID: procId, TargetState: state})
	} else {
		ps.TargetState = state
	}
}

func (st *StateTracker) SetProcessorCurrentState(procId uint64, state string) {
	st.mux.Lock()
	defer st.mux.Unlock()
	ps := st.getProcessorState(procId)
	if ps.CurrentState == ProcessorStateNotFound {
		st.procStates = append(st.procStates, ProcessorState{ID: procId, CurrentState: state})
	} else {
		ps.CurrentState = state
	}
}

// RemoveProcessor forgets a worker that has been removed from configuration.
func (st *StateTracker) RemoveProcessor(procId uint64) {
	st.mux.Lock()
	defer st.mux.Unlock()
	for i := range st.procStates {
		if st.procStates[i].ID == procId {
			st.procStates = append(st.procStates[:i], st.procStates[i+1:]...)
			return
		}
	}
}

// getProcessorState returns a pointer into procStates, caller must hold the lock
func (st *StateTracker) getProcessorState(procId uint64) *ProcessorState {
	for i := range st.procStates {
		if st.procStates[i].ID == procId {
			return &st.procStates[i]
		}
	}
	return &ProcessorState{ID: procId, CurrentState: ProcessorStateNotFound, TargetState: ProcessorStateNotFound}
}

// GetProcessorState returns a copy of the worker state
func (st *StateTracker) GetProcessorState(procId uint64) ProcessorState {
	st.mux.RLock()
	defer st.mux.RUnlock()
	return *st.getProcessorState(procId)
}

// Snapshot returns a copy of all tracked states.
func (st *StateTracker) Snapshot() []ProcessorState {
	st.mux.RLock()
	defer st.mux.RUnlock()
	return append([]ProcessorState(nil), st.procStates...)
}

// WaitForProcessorTargetState blocks until the worker reaches its target state or the wait times out.
func (st *StateTracker) WaitForProcessorTargetState(procId uint64, timeout time.Duration) bool {
	endTime := time.Now().Add(timeout)
	for {
		ps := st.GetProcessorState(procId)
		if ps.CurrentState == ps.TargetState {
			return true
		}
		if time.Now().After(endTime) {
			return false
		}
		time.Sleep(statePollInterval)
	}
}
