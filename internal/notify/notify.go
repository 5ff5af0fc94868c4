package notify

import (
	"context"
	"time"

	"github.com/nerrad567/foxbridge/internal/session"
)

// writeTimeout bounds a single sink write.
const writeTimeout = 5 * time.Second

// Logger is the logging interface used by the sinks.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func orNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// sinkContext detaches from the caller's cancellation so a change that
// happens during shutdown is still written.
func sinkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
}

// statusOf projects the status carried by a change. A reset leaves no
// record behind.
func statusOf(change session.Change) session.Status {
	exists := change.To != session.StateUninitialized
	return session.Project(change.Session, exists, session.Probe{})
}
