package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/foxbridge/internal/infrastructure/mqtt"
)

// commandTimeout bounds one remote command, including a reset's teardown.
const commandTimeout = 30 * time.Second

// Commander is the part of the session controller remote commands reach.
type Commander interface {
	Initialize(ctx context.Context, tenantID string) error
	Reset(ctx context.Context, tenantID string) error
}

// Subscriber is the subset of the MQTT client the listener needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Topics() mqtt.Topics
	QoS() byte
}

// CommandListener routes foxbridge/command/{tenant}/{action} messages to
// the controller.
type CommandListener struct {
	ctx       context.Context
	commander Commander
	topics    mqtt.Topics
	logger    Logger
}

// ListenCommands subscribes to every command topic. Commands run on their
// own goroutines under ctx.
func ListenCommands(ctx context.Context, sub Subscriber, commander Commander, logger Logger) (*CommandListener, error) {
	l := &CommandListener{
		ctx:       ctx,
		commander: commander,
		topics:    sub.Topics(),
		logger:    orNoop(logger),
	}
	if err := sub.Subscribe(l.topics.AllCommands(), sub.QoS(), l.Handle); err != nil {
		return nil, fmt.Errorf("subscribing to commands: %w", err)
	}
	return l, nil
}

// Handle is the mqtt.MessageHandler for command topics. The payload is
// ignored.
func (l *CommandListener) Handle(topic string, _ []byte) error {
	tenantID, action, ok := l.topics.ParseCommand(topic)
	if !ok {
		return fmt.Errorf("malformed command topic %q", topic)
	}

	var run func(context.Context, string) error
	switch action {
	case mqtt.CommandInitialize:
		run = l.commander.Initialize
	case mqtt.CommandReset:
		run = l.commander.Reset
	default:
		return fmt.Errorf("unknown command %q for %s", action, tenantID)
	}

	go func() {
		ctx, cancel := context.WithTimeout(l.ctx, commandTimeout)
		defer cancel()

		l.logger.Info("mqtt command received", "tenant_id", tenantID, "action", action)
		if err := run(ctx, tenantID); err != nil {
			l.logger.Warn("mqtt command failed", "tenant_id", tenantID, "action", action, "error", err)
		}
	}()
	return nil
}
