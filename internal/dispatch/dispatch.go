// Package dispatch sends media messages through a tenant's ready session.
//
// The only message shape Fox Bridge delivers today is a bill: an image fetched
// from a URL, sent to a phone number with an optional caption.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/foxbridge/internal/engine"
	"github.com/nerrad567/foxbridge/internal/session"
)

// ChatAddressSuffix turns a bare phone number into a chat address.
const ChatAddressSuffix = "@c.us"

var (
	// ErrNotConnected is returned when the tenant has no ready session.
	// The engine is never called in that case.
	ErrNotConnected = errors.New("dispatch: not connected")

	// ErrInvalidAddress is returned when a phone number has no digits.
	ErrInvalidAddress = errors.New("dispatch: invalid address")

	// ErrInvalidRequest is returned when a request is missing a required field.
	ErrInvalidRequest = errors.New("dispatch: invalid request")

	// ErrDeliveryFailed matches every DeliveryError.
	ErrDeliveryFailed = errors.New("dispatch: delivery failed")
)

// DeliveryError is returned when fetching or sending fails after the session
// was found ready.
type DeliveryError struct {
	// Stage is "fetch" or "send".
	Stage string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed at %s: %v", e.Stage, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Is reports whether target is ErrDeliveryFailed.
func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailed }

// SessionSource looks up tenant sessions.
type SessionSource interface {
	Session(tenantID string) (session.Session, bool)
}

// Fetcher downloads media by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (engine.Media, error)
}

// DeliveryObserver is told about every delivery attempt that reached the
// fetch stage.
type DeliveryObserver interface {
	DeliveryAttempted(ctx context.Context, d Delivery)
}

// Logger is the logging interface used by the dispatcher.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Request is a bill to deliver.
type Request struct {
	TenantID string
	Phone    string
	MediaURL string
	Caption  string
}

// Delivery describes one attempt, successful or not.
type Delivery struct {
	TenantID string
	Address  string
	MediaURL string
	MimeType string
	Bytes    int
	Duration time.Duration
	Err      error
	At       time.Time
}

// Dispatcher routes bills to the sending tenant's session.
//
// Thread Safety: SendBill is safe for concurrent use.
type Dispatcher struct {
	sessions SessionSource
	fetcher  Fetcher
	logger   Logger

	obsMu     sync.RWMutex
	observers []DeliveryObserver
}

// New creates a dispatcher.
func New(sessions SessionSource, fetcher Fetcher, logger Logger, observers ...DeliveryObserver) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{
		sessions:  sessions,
		fetcher:   fetcher,
		logger:    logger,
		observers: observers,
	}
}

// AddObserver registers o for every later delivery attempt.
func (d *Dispatcher) AddObserver(o DeliveryObserver) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	d.observers = append(d.observers, o)
}

// SendBill delivers one media message through the tenant's ready session.
//
// Errors:
//   - ErrNotConnected if the tenant has no ready session
//   - ErrInvalidAddress if the phone number contains no digits
//   - ErrInvalidRequest if the media URL is missing
//   - a DeliveryError (matching ErrDeliveryFailed) if fetch or send fails
func (d *Dispatcher) SendBill(ctx context.Context, req Request) (*Delivery, error) {
	s, ok := d.sessions.Session(req.TenantID)
	if !ok || s.State != session.StateReady || s.Handle == nil {
		return nil, ErrNotConnected
	}

	address, err := NormalizeAddress(req.Phone)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.MediaURL) == "" {
		return nil, fmt.Errorf("%w: media url is required", ErrInvalidRequest)
	}

	start := time.Now()
	result := &Delivery{
		TenantID: req.TenantID,
		Address:  address,
		MediaURL: req.MediaURL,
		At:       start,
	}

	m, err := d.fetcher.Fetch(ctx, req.MediaURL)
	if err != nil {
		return nil, d.finish(ctx, result, start, &DeliveryError{Stage: "fetch", Err: err})
	}
	result.MimeType = m.MimeType
	result.Bytes = len(m.Data)

	if err := s.Handle.SendMedia(ctx, address, m, req.Caption); err != nil {
		return nil, d.finish(ctx, result, start, &DeliveryError{Stage: "send", Err: err})
	}

	d.finish(ctx, result, start, nil)
	d.logger.Info("bill delivered",
		"tenant_id", req.TenantID,
		"address", address,
		"bytes", result.Bytes,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (d *Dispatcher) finish(ctx context.Context, result *Delivery, start time.Time, err error) error {
	result.Duration = time.Since(start)
	result.Err = err
	if err != nil {
		d.logger.Warn("bill delivery failed",
			"tenant_id", result.TenantID,
			"address", result.Address,
			"error", err,
		)
	}
	d.obsMu.RLock()
	observers := d.observers
	d.obsMu.RUnlock()
	for _, o := range observers {
		o.DeliveryAttempted(ctx, *result)
	}
	return err
}

// NormalizeAddress strips every non-digit from phone and appends the chat
// address suffix.
func NormalizeAddress(phone string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if digits == "" {
		return "", fmt.Errorf("%w: %q has no digits", ErrInvalidAddress, phone)
	}
	return digits + ChatAddressSuffix, nil
}
