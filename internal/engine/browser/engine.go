package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/nerrad567/foxbridge/internal/engine"
)

const (
	DefaultURL          = "https://web.whatsapp.com"
	DefaultPollInterval = 2 * time.Second
	DefaultLoadTimeout  = 60 * time.Second

	// maxProbeFailures consecutive failed probes end the connection.
	maxProbeFailures = 5
)

// ErrNotStarted is returned when the page has not finished loading.
var ErrNotStarted = errors.New("browser: page not loaded")

// Config configures Chrome and the web client.
type Config struct {
	// ExecPath overrides the Chrome binary.
	ExecPath  string
	URL       string
	Headless  bool
	UserAgent string

	// InjectScript is JavaScript source evaluated before every page load.
	InjectScript string

	PollInterval time.Duration
	LoadTimeout  time.Duration
}

// Logger is the logging surface the engine needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Engine starts one Chrome per tenant.
type Engine struct {
	cfg    Config
	logger Logger
}

// New returns a browser engine. A nil logger discards output.
func New(cfg Config, logger Logger) *Engine {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{cfg: cfg, logger: logger}
}

// allocatorOptions builds Chrome flags for a tenant profile directory.
func (e *Engine) allocatorOptions(userDataDir string) []chromedp.ExecAllocatorOption {
	opts := make([]chromedp.ExecAllocatorOption, 0, len(chromedp.DefaultExecAllocatorOptions)+5)
	opts = append(opts, chromedp.DefaultExecAllocatorOptions[:]...)
	if !e.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.UserDataDir(userDataDir),
		chromedp.Flag("disable-gpu", true),
	)
	if e.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(e.cfg.ExecPath))
	}
	if e.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(e.cfg.UserAgent))
	}
	return opts
}

// Create implements engine.Engine. Chrome is launched in the background;
// progress arrives as events.
func (e *Engine) Create(ctx context.Context, req engine.CreateRequest) (engine.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), e.allocatorOptions(req.CredentialPath)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	t := &tab{
		cfg:         e.cfg,
		logger:      e.logger,
		tenantID:    req.TenantID,
		events:      req.Events,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		done:        make(chan struct{}),
	}
	go t.run()
	return t, nil
}

// tab is the engine.Handle for one tenant's Chrome.
type tab struct {
	cfg      Config
	logger   Logger
	tenantID string
	events   func(engine.Event)

	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc

	mu            sync.Mutex
	loaded        bool
	authenticated bool
	destroying    bool

	done        chan struct{}
	destroyOnce sync.Once
}

func (t *tab) emit(ev engine.Event) {
	t.mu.Lock()
	if t.destroying {
		t.mu.Unlock()
		return
	}
	if ev.Type == engine.EventAuthenticated {
		t.authenticated = true
	}
	t.mu.Unlock()

	if t.events != nil {
		t.events(ev)
	}
}

func (t *tab) run() {
	defer close(t.done)

	if err := t.load(); err != nil {
		t.finish(fmt.Errorf("loading web client: %w", err))
		return
	}

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	var tr tracker
	failures := 0
	for {
		select {
		case <-t.tabCtx.Done():
			t.finish(errors.New("browser closed"))
			return
		case <-ticker.C:
		}

		probe, err := t.probe()
		if err != nil {
			if t.tabCtx.Err() != nil {
				t.finish(errors.New("browser closed"))
				return
			}
			failures++
			t.logger.Debug("page probe failed", "tenant_id", t.tenantID, "error", err, "failures", failures)
			if failures >= maxProbeFailures {
				t.finish(fmt.Errorf("page unresponsive: %w", err))
				return
			}
			continue
		}
		failures = 0

		events, over := tr.observe(probe)
		for _, ev := range events {
			t.emit(ev)
		}
		if over {
			return
		}
	}
}

func (t *tab) load() error {
	// The first Run launches Chrome and binds its lifetime to tabCtx.
	if err := chromedp.Run(t.tabCtx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(t.tabCtx, t.cfg.LoadTimeout)
	defer cancel()

	actions := make([]chromedp.Action, 0, 3)
	if t.cfg.InjectScript != "" {
		script := t.cfg.InjectScript
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}))
	}
	actions = append(actions,
		chromedp.Navigate(t.cfg.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return err
	}

	t.mu.Lock()
	t.loaded = true
	t.mu.Unlock()
	return nil
}

func (t *tab) probe() (pageProbe, error) {
	ctx, cancel := context.WithTimeout(t.tabCtx, t.cfg.PollInterval+5*time.Second)
	defer cancel()

	var p pageProbe
	err := chromedp.Run(ctx, chromedp.Evaluate(probeScript, &p))
	return p, err
}

// finish reports why the connection ended unless Destroy caused it.
func (t *tab) finish(cause error) {
	t.mu.Lock()
	destroying := t.destroying
	authenticated := t.authenticated
	t.mu.Unlock()
	if destroying {
		return
	}

	t.logger.Warn("browser session ended", "tenant_id", t.tenantID, "error", cause)
	if authenticated {
		t.emit(engine.Event{Type: engine.EventDisconnected, Message: cause.Error()})
		return
	}
	t.emit(engine.Event{Type: engine.EventFailed, Message: cause.Error()})
}

// Destroy implements engine.Handle.
func (t *tab) Destroy(ctx context.Context) error {
	t.mu.Lock()
	t.destroying = true
	t.mu.Unlock()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		t.destroyOnce.Do(func() {
			if err := chromedp.Cancel(t.tabCtx); err != nil {
				t.logger.Debug("closing browser", "tenant_id", t.tenantID, "error", err)
			}
			t.tabCancel()
			t.allocCancel()
		})
		<-t.done
	}()

	select {
	case <-closed:
		return nil
	case <-ctx.Done():
		t.tabCancel()
		t.allocCancel()
		return ctx.Err()
	}
}

// opContext derives a chromedp context from the tab that also ends with ctx.
func (t *tab) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithCancel(t.tabCtx)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (t *tab) isLoaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// SendMedia implements engine.Handle.
func (t *tab) SendMedia(ctx context.Context, address string, media engine.Media, caption string) error {
	if !t.isLoaded() {
		return ErrNotStarted
	}
	script, err := buildSendScript(address, media.MimeType, media.Data, media.Filename, caption)
	if err != nil {
		return fmt.Errorf("browser: encoding send: %w", err)
	}

	opCtx, cancel := t.opContext(ctx)
	defer cancel()

	var ok bool
	if err := chromedp.Run(opCtx, chromedp.Evaluate(script, &ok, awaitPromise)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("browser: send media: %w", err)
	}
	return nil
}

// LiveState implements engine.Handle.
func (t *tab) LiveState(ctx context.Context) (engine.LiveState, error) {
	if !t.isLoaded() {
		return "", ErrNotStarted
	}

	opCtx, cancel := t.opContext(ctx)
	defer cancel()

	var state string
	if err := chromedp.Run(opCtx, chromedp.Evaluate(stateScript, &state, awaitPromise)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("browser: live state: %w", err)
	}
	if state == "" {
		return "", engine.ErrProbeUnsupported
	}
	return engine.LiveState(state), nil
}
