package session

import "github.com/nerrad567/foxbridge/internal/engine"

// Probe is the result of asking the engine for its live state. Known is
// false when the engine has no probe or the probe failed.
type Probe struct {
	Known bool
	State engine.LiveState
}

// Project derives the outward status of a session record. exists reports
// whether the registry held a record at all; a disconnected record counts as
// absent but still surfaces its last error.
//
// Precedence: connected, needs_scan, error, initializing, disconnected. A
// session is connected only when it is ready, holds a handle, and a known
// probe does not contradict it.
func Project(s Session, exists bool, probe Probe) Status {
	if !exists || !s.State.Active() {
		st := Status{Tag: StatusDisconnected}
		if exists {
			st.Error = s.LastError
		}
		return st
	}

	if s.State == StateReady && s.Handle != nil && (!probe.Known || probe.State.Connected()) {
		return Status{Tag: StatusConnected, Online: true, User: s.User}
	}
	if s.PairingCode != "" {
		return Status{Tag: StatusNeedsScan, PairingCode: s.PairingCode}
	}
	if s.LastError != "" {
		return Status{Tag: StatusError, Error: s.LastError}
	}
	return Status{Tag: StatusInitializing}
}
