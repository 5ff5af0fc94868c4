package helper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/foxbridge/internal/engine"
	"github.com/nerrad567/foxbridge/internal/process"
)

// Environment variables passed to every helper.
const (
	EnvTenantID       = "FOXBRIDGE_TENANT_ID"
	EnvCredentialPath = "FOXBRIDGE_CREDENTIAL_PATH"
)

var (
	// ErrConnectionClosed is returned for requests on a helper that has exited.
	ErrConnectionClosed = errors.New("helper: connection closed")

	// ErrNoCommand is returned by New when no helper binary is configured.
	ErrNoCommand = errors.New("helper: command not configured")
)

// CommandError is a command the helper answered with ok=false. Its message
// is the helper's own error text.
type CommandError struct {
	Cmd     string
	Message string
}

func (e *CommandError) Error() string {
	if e.Message == "" {
		return e.Cmd + " failed"
	}
	return e.Message
}

// Config configures the helper binary.
type Config struct {
	Command         string
	Args            []string
	Env             []string
	WorkDir         string
	GracefulTimeout time.Duration
}

// Engine launches helper processes.
type Engine struct {
	cfg    Config
	logger process.Logger
}

// New returns an Engine for cfg. A nil logger discards output.
func New(cfg Config, logger process.Logger) (*Engine, error) {
	if cfg.Command == "" {
		return nil, ErrNoCommand
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// Create implements engine.Engine. The helper outlives ctx; it is stopped
// by Destroy or when it exits on its own.
func (e *Engine) Create(ctx context.Context, req engine.CreateRequest) (engine.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	life, cancel := context.WithCancel(context.Background())
	c := &conn{
		tenantID: req.TenantID,
		events:   req.Events,
		pending:  make(map[string]chan message),
		closed:   make(chan struct{}),
		cancel:   cancel,
	}

	env := make([]string, 0, len(e.cfg.Env)+2)
	env = append(env, e.cfg.Env...)
	env = append(env,
		EnvTenantID+"="+req.TenantID,
		EnvCredentialPath+"="+req.CredentialPath,
	)

	c.proc = process.NewManager(process.Config{
		Name:            "helper:" + req.TenantID,
		Binary:          e.cfg.Command,
		Args:            e.cfg.Args,
		Env:             env,
		WorkDir:         e.cfg.WorkDir,
		GracefulTimeout: e.cfg.GracefulTimeout,
		OnStdoutLine:    c.handleLine,
		OnStop:          c.handleExit,
	})
	if e.logger != nil {
		c.proc.SetLogger(e.logger)
	}

	if err := c.proc.Start(life); err != nil {
		cancel()
		return nil, fmt.Errorf("starting helper for %s: %w", req.TenantID, err)
	}
	return c, nil
}

// conn is the engine.Handle of one helper process.
type conn struct {
	tenantID string
	events   func(engine.Event)
	proc     *process.Manager
	cancel   context.CancelFunc

	mu            sync.Mutex
	pending       map[string]chan message
	authenticated bool
	destroying    bool

	closed    chan struct{}
	closeOnce sync.Once
}

func (c *conn) emit(ev engine.Event) {
	if c.events != nil {
		c.events(ev)
	}
}

func (c *conn) handleLine(line []byte) {
	var msg message
	if err := json.Unmarshal(line, &msg); err != nil {
		// Helpers may print free text; only JSON lines are protocol.
		return
	}

	switch msg.Event {
	case eventQR:
		c.emit(engine.Event{Type: engine.EventPairingCodeIssued, Code: msg.Code})
	case eventAuthenticated:
		c.mu.Lock()
		c.authenticated = true
		c.mu.Unlock()
		c.emit(engine.Event{Type: engine.EventAuthenticated})
	case eventReady:
		c.mu.Lock()
		c.authenticated = true
		c.mu.Unlock()
		c.emit(engine.Event{Type: engine.EventReady, User: msg.User})
	case eventAuthFailure:
		c.emit(engine.Event{Type: engine.EventPairingFailed, Message: msg.Message})
	case eventDisconnected:
		c.emit(engine.Event{Type: engine.EventDisconnected, Message: msg.Reason})
	case eventError:
		c.emit(engine.Event{Type: engine.EventFailed, Message: msg.Message})
	case eventResult:
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

func (c *conn) handleExit(err error) {
	c.closeOnce.Do(func() { close(c.closed) })
	c.cancel()

	c.mu.Lock()
	destroying := c.destroying
	authenticated := c.authenticated
	c.pending = make(map[string]chan message)
	c.mu.Unlock()

	if destroying {
		return
	}

	var exitErr *exec.ExitError
	if !authenticated && errors.As(err, &exitErr) {
		c.emit(engine.Event{Type: engine.EventFailed, Message: fmt.Sprintf("helper exited: %v", exitErr)})
		return
	}
	c.emit(engine.Event{Type: engine.EventDisconnected, Message: "helper exited"})
}

// Destroy implements engine.Handle.
func (c *conn) Destroy(ctx context.Context) error {
	c.mu.Lock()
	c.destroying = true
	c.mu.Unlock()

	_ = c.write(command{Cmd: cmdShutdown})

	stopped := make(chan error, 1)
	go func() { stopped <- c.proc.Stop() }()

	select {
	case err := <-stopped:
		c.cancel()
		return err
	case <-ctx.Done():
		// Cancelling the process context kills the group.
		c.cancel()
		return ctx.Err()
	}
}

// SendMedia implements engine.Handle.
func (c *conn) SendMedia(ctx context.Context, address string, media engine.Media, caption string) error {
	_, err := c.request(ctx, command{
		Cmd:      cmdSendMedia,
		To:       address,
		MimeType: media.MimeType,
		Filename: media.Filename,
		Data:     media.Data,
		Caption:  caption,
	})
	return err
}

// LiveState implements engine.Handle.
func (c *conn) LiveState(ctx context.Context) (engine.LiveState, error) {
	res, err := c.request(ctx, command{Cmd: cmdGetState})
	if err != nil {
		return "", err
	}
	if res.State == "" {
		return "", engine.ErrProbeUnsupported
	}
	return engine.LiveState(res.State), nil
}

func (c *conn) request(ctx context.Context, cmd command) (message, error) {
	cmd.ID = uuid.NewString()
	reply := make(chan message, 1)

	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		return message{}, ErrConnectionClosed
	default:
	}
	c.pending[cmd.ID] = reply
	c.mu.Unlock()

	if err := c.write(cmd); err != nil {
		c.forget(cmd.ID)
		return message{}, err
	}

	select {
	case res := <-reply:
		if !res.OK {
			return res, &CommandError{Cmd: cmd.Cmd, Message: res.Error}
		}
		return res, nil
	case <-c.closed:
		return message{}, ErrConnectionClosed
	case <-ctx.Done():
		c.forget(cmd.ID)
		return message{}, ctx.Err()
	}
}

func (c *conn) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *conn) write(cmd command) error {
	line, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", cmd.Cmd, err)
	}
	return c.proc.Write(append(line, '\n'))
}
