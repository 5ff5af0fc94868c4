package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

const (
	defaultGracefulTimeout = 10 * time.Second

	// maxLineBytes bounds a single stdout line.
	maxLineBytes = 1 << 20
)

var (
	// ErrNotRunning is returned by Write when no process is running.
	ErrNotRunning = errors.New("process not running")

	// ErrAlreadyRunning is returned by Start on a running manager.
	ErrAlreadyRunning = errors.New("process already running")

	// ErrExitedUnexpectedly is passed to OnStop when the process exits
	// without Stop having been called.
	ErrExitedUnexpectedly = errors.New("process exited unexpectedly")
)

// Config holds configuration for a managed subprocess.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format),
	// appended to the parent environment.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// OnStart is called when the process starts successfully.
	OnStart func(pid int)

	// OnStdoutLine receives each stdout line without its newline.
	// Called from a single goroutine, in order.
	OnStdoutLine func(line []byte)

	// OnStop is called once the process has exited and all of its output
	// has been delivered. err is nil after a requested Stop.
	OnStop func(err error)
}

// Logger defines the logging interface for the process manager.
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

// Manager manages the lifecycle of one subprocess.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	status        Status
	lastError     error
	startTime     time.Time
	stopRequested bool
	done          chan struct{}

	writeMu sync.Mutex
}

// NewManager creates a new process manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Start launches the subprocess. Cancelling ctx kills the process, so
// callers should pass a context that lives as long as the process should.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", m.config.Name, ErrAlreadyRunning)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.lastError = nil
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.startProcess(ctx); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		close(m.done)
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) startProcess(ctx context.Context) error {
	m.logger.Info("starting process",
		"name", m.config.Name,
		"binary", m.config.Binary,
		"args", m.config.Args,
	)

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // binary comes from operator config

	// Own process group so shutdown reaches any children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	if len(m.config.Env) > 0 {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}
	if m.config.WorkDir != "" {
		cmd.Dir = m.config.WorkDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.stdin = stdin
	m.status = StatusRunning
	m.startTime = time.Now()
	done := m.done
	m.mu.Unlock()

	pid := cmd.Process.Pid
	m.logger.Info("process started", "name", m.config.Name, "pid", pid)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		m.readStdout(stdout)
	}()
	go func() {
		defer readers.Done()
		m.captureStderr(stderr)
	}()

	go m.monitor(cmd, &readers, done)

	if m.config.OnStart != nil {
		m.config.OnStart(pid)
	}
	return nil
}

func (m *Manager) readStdout(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if m.config.OnStdoutLine != nil {
			m.config.OnStdoutLine(scanner.Bytes())
		}
	}
	if err := scanner.Err(); err != nil {
		m.logger.Warn("stdout read failed", "name", m.config.Name, "error", err)
		// Drain so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

func (m *Manager) captureStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		m.logger.Debug("process output",
			"name", m.config.Name,
			"stream", "stderr",
			"output", scanner.Text(),
		)
	}
	_, _ = io.Copy(io.Discard, r)
}

// monitor waits for output to drain, reaps the process and reports the exit.
func (m *Manager) monitor(cmd *exec.Cmd, readers *sync.WaitGroup, done chan struct{}) {
	readers.Wait()
	waitErr := cmd.Wait()

	m.mu.Lock()
	requested := m.stopRequested
	var err error
	if requested {
		m.status = StatusStopped
	} else {
		if waitErr != nil {
			err = fmt.Errorf("%w: %w", ErrExitedUnexpectedly, waitErr)
		} else {
			err = ErrExitedUnexpectedly
		}
		m.status = StatusFailed
		m.lastError = err
	}
	m.stdin = nil
	m.mu.Unlock()

	if requested {
		m.logger.Info("process stopped as requested", "name", m.config.Name)
	} else {
		m.logger.Warn("process exited unexpectedly", "name", m.config.Name, "error", waitErr)
	}

	if m.config.OnStop != nil {
		m.config.OnStop(err)
	}
	close(done)
}

// Write sends p to the process's stdin. Concurrent writes are serialised.
func (m *Manager) Write(p []byte) error {
	m.mu.RLock()
	stdin := m.stdin
	running := m.status == StatusRunning
	m.mu.RUnlock()

	if !running || stdin == nil {
		return fmt.Errorf("%s: %w", m.config.Name, ErrNotRunning)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if _, err := stdin.Write(p); err != nil {
		return fmt.Errorf("writing to %s: %w", m.config.Name, err)
	}
	return nil
}

// Stop terminates the process group: SIGTERM, then SIGKILL once
// GracefulTimeout passes. It returns after OnStop has run, so it must not
// be called from OnStop. Stopping a manager that is not running is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.status != StatusRunning {
		m.mu.Unlock()
		return nil
	}
	m.stopRequested = true
	cmd := m.cmd
	stdin := m.stdin
	done := m.done
	m.mu.Unlock()

	pid := cmd.Process.Pid
	m.logger.Info("stopping process", "name", m.config.Name, "pid", pid)

	if stdin != nil {
		_ = stdin.Close()
	}

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
	}

	timer := time.NewTimer(m.config.GracefulTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", m.config.Name,
			"timeout", m.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
	}

	<-done
	m.logger.Info("process killed", "name", m.config.Name)
	return nil
}

// Done returns a channel closed once the current process has exited and
// OnStop has returned. Nil before the first Start.
func (m *Manager) Done() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.done
}

// Status returns the current status of the managed process.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning returns true if the process is currently running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the error that ended the last unexpected exit.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// Uptime returns how long the process has been running, or 0.
func (m *Manager) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusRunning {
		return 0
	}
	return time.Since(m.startTime)
}

// PID returns the process ID, or 0 if not running.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}

// Stats is a point-in-time snapshot of a managed process.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Name:   m.config.Name,
		Status: m.status,
	}
	if m.status == StatusRunning {
		if m.cmd != nil && m.cmd.Process != nil {
			stats.PID = m.cmd.Process.Pid
		}
		stats.Uptime = time.Since(m.startTime)
	}
	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}
	return stats
}
