// Package process manages the lifecycle of a single line-oriented child
// process.
//
// It is used by the helper engine to run one pairing/messaging helper per
// tenant. The manager starts the binary in its own process group, hands
// every stdout line to a callback, accepts writes to stdin, and stops the
// group with SIGTERM followed by SIGKILL after a grace period.
//
// There is no automatic restart: when the child exits without Stop being
// called, OnStop receives an error wrapping ErrExitedUnexpectedly and the
// owner decides what happens next.
//
//	mgr := process.NewManager(process.Config{
//	    Name:         "helper:r1",
//	    Binary:       "/usr/local/bin/foxbridge-helper",
//	    OnStdoutLine: handleLine,
//	    OnStop:       handleExit,
//	})
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
