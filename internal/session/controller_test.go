package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/foxbridge/internal/credentials"
	"github.com/nerrad567/foxbridge/internal/engine"
	"github.com/nerrad567/foxbridge/internal/engine/enginetest"
)

const waitTimeout = 2 * time.Second

func newTestController(t *testing.T, opts Options) (*Controller, *enginetest.Engine, *credentials.Store) {
	t.Helper()

	store, err := credentials.NewStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if opts.TeardownTimeout == 0 {
		opts.TeardownTimeout = time.Second
	}

	eng := enginetest.New()
	c := NewController(eng, store, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c, eng, store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, c *Controller, tenantID string, want State) {
	t.Helper()
	waitFor(t, fmt.Sprintf("%s to reach %s", tenantID, want), func() bool {
		s, ok := c.Session(tenantID)
		return ok && s.State == want
	})
}

func initialize(t *testing.T, c *Controller, tenantID string) {
	t.Helper()
	if err := c.Initialize(context.Background(), tenantID); err != nil {
		t.Fatalf("Initialize(%s) error = %v", tenantID, err)
	}
}

func TestInitializeCreatesSession(t *testing.T) {
	c, eng, store := newTestController(t, Options{})

	initialize(t, c, "r1")

	s, ok := c.Session("r1")
	if !ok {
		t.Fatal("Session() not found after Initialize")
	}
	if s.State != StateCreating {
		t.Errorf("State = %s, want %s", s.State, StateCreating)
	}
	if s.Handle == nil || s.Generation == "" {
		t.Error("session should hold a handle and generation")
	}
	if eng.Creates("r1") != 1 {
		t.Errorf("Creates = %d, want 1", eng.Creates("r1"))
	}
	if got := eng.Last("r1").CredentialPath; got != store.Path("r1") {
		t.Errorf("CredentialPath = %q, want %q", got, store.Path("r1"))
	}
	if st := c.Status(context.Background(), "r1"); st.Tag != StatusInitializing {
		t.Errorf("Status = %s, want %s", st.Tag, StatusInitializing)
	}
}

func TestPairingThenReady(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})
	initialize(t, c, "r1")
	h := eng.Last("r1")

	h.EmitPairingCode("QR1")
	waitState(t, c, "r1", StatePairingRequired)

	st := c.Status(context.Background(), "r1")
	if st.Tag != StatusNeedsScan || st.PairingCode != "QR1" {
		t.Errorf("Status = %+v, want needs_scan with QR1", st)
	}
	if !c.PairingArmed("r1") {
		t.Error("pairing watchdog should be armed")
	}

	h.EmitReady("Cafe Nord")
	waitState(t, c, "r1", StateReady)

	st = c.Status(context.Background(), "r1")
	if st.Tag != StatusConnected || !st.Online || st.User != "Cafe Nord" {
		t.Errorf("Status = %+v, want connected as Cafe Nord", st)
	}
	if st.PairingCode != "" {
		t.Error("pairing code should be cleared once ready")
	}
	if c.PairingArmed("r1") {
		t.Error("pairing watchdog should be disarmed once ready")
	}
}

func TestAuthenticatedThenReady(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})
	initialize(t, c, "r1")
	h := eng.Last("r1")

	h.EmitPairingCode("QR1")
	h.EmitAuthenticated()
	waitState(t, c, "r1", StateAuthenticated)

	s, _ := c.Session("r1")
	if s.PairingCode != "" {
		t.Error("pairing code should be cleared on authentication")
	}
	if c.PairingArmed("r1") {
		t.Error("watchdog should be disarmed on authentication")
	}
	if st := c.Status(context.Background(), "r1"); st.Tag != StatusInitializing {
		t.Errorf("Status = %s, want %s", st.Tag, StatusInitializing)
	}

	h.EmitReady("Cafe Nord")
	waitState(t, c, "r1", StateReady)
}

func TestEventsDuringCreate(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})
	eng.OnCreate(func(h *enginetest.Handle) {
		h.EmitPairingCode("EARLY")
	})

	initialize(t, c, "r1")
	waitState(t, c, "r1", StatePairingRequired)

	if s, _ := c.Session("r1"); s.PairingCode != "EARLY" {
		t.Errorf("PairingCode = %q, want EARLY", s.PairingCode)
	}
}

func TestInitializeReplacesExistingSession(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})
	initialize(t, c, "r1")
	first := eng.Last("r1")
	first.EmitReady("Cafe Nord")
	waitState(t, c, "r1", StateReady)

	initialize(t, c, "r1")

	if !first.WaitDestroyed(waitTimeout) {
		t.Fatal("old handle was not destroyed")
	}
	if eng.Creates("r1") != 2 {
		t.Errorf("Creates = %d, want 2", eng.Creates("r1"))
	}
	s, _ := c.Session("r1")
	if s.State != StateCreating {
		t.Errorf("State = %s, want %s", s.State, StateCreating)
	}
	if st := c.Status(context.Background(), "r1"); st.Tag != StatusInitializing {
		t.Errorf("Status = %s, want %s", st.Tag, StatusInitializing)
	}
}

func TestStaleEventsIgnored(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})
	initialize(t, c, "r1")
	first := eng.Last("r1")
	initialize(t, c, "r1")

	first.EmitReady("ghost")
	first.EmitDisconnected("ghost")
	time.Sleep(50 * time.Millisecond)

	s, _ := c.Session("r1")
	if s.State != StateCreating {
		t.Errorf("State = %s after stale events, want %s", s.State, StateCreating)
	}
	if s.Handle == nil {
		t.Error("current handle should survive stale events")
	}
}

func TestConcurrentInitializeLeavesOneHandle(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Initialize(context.Background(), "r1"); err != nil {
				t.Errorf("Initialize() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if eng.Creates("r1") != 20 {
		t.Errorf("Creates = %d, want 20", eng.Creates("r1"))
	}
	waitFor(t, "exactly one live handle", func() bool {
		return len(eng.Live("r1")) == 1
	})

	s, _ := c.Session("r1")
	live := eng.Live("r1")[0]
	if s.Handle != engine.Handle(live) {
		t.Error("registry handle is not the surviving live handle")
	}
}

func TestParallelTenantsAreIndependent(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("r%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Initialize(context.Background(), id); err != nil {
				t.Errorf("Initialize(%s) error = %v", id, err)
			}
		}()
	}
	wg.Wait()

	if got := len(c.Sessions()); got != 10 {
		t.Fatalf("Sessions() = %d, want 10", got)
	}
	eng.Last("r3").EmitReady("three")
	waitState(t, c, "r3", StateReady)
	if s, _ := c.Session("r4"); s.State != StateCreating {
		t.Errorf("r4 State = %s, want %s", s.State, StateCreating)
	}
}

func TestPairingTimeoutRestartsSession(t *testing.T) {
	c, eng, _ := newTestController(t, Options{PairingTimeout: 50 * time.Millisecond})

	var n atomic.Int32
	eng.OnCreate(func(h *enginetest.Handle) {
		h.EmitPairingCode(fmt.Sprintf("QR%d", n.Add(1)))
	})

	initialize(t, c, "r1")
	waitState(t, c, "r1", StatePairingRequired)
	first := eng.Handles("r1")[0]

	waitFor(t, "watchdog restart", func() bool { return eng.Creates("r1") >= 2 })
	if !first.WaitDestroyed(waitTimeout) {
		t.Error("timed-out handle was not destroyed")
	}
	waitFor(t, "fresh pairing code", func() bool {
		st := c.Status(context.Background(), "r1")
		return st.Tag == StatusNeedsScan && st.PairingCode != "QR1"
	})
}

func TestPairingTimeoutCancelledByAuthentication(t *testing.T) {
	c, eng, _ := newTestController(t, Options{PairingTimeout: 50 * time.Millisecond})
	initialize(t, c, "r1")
	h := eng.Last("r1")

	h.EmitPairingCode("QR1")
	h.EmitAuthenticated()
	waitState(t, c, "r1", StateAuthenticated)

	time.Sleep(150 * time.Millisecond)

	if eng.Creates("r1") != 1 {
		t.Errorf("Creates = %d, want 1 (watchdog must not restart)", eng.Creates("r1"))
	}
	if h.Destroyed() {
		t.Error("authenticated handle should not be destroyed")
	}
}

func TestReadySessionNeverRestarted(t *testing.T) {
	c, eng, _ := newTestController(t, Options{PairingTimeout: 30 * time.Millisecond})
	initialize(t, c, "r1")
	h := eng.Last("r1")

	h.EmitPairingCode("QR1")
	h.EmitReady("Cafe Nord")
	waitState(t, c, "r1", StateReady)

	time.Sleep(100 * time.Millisecond)

	if eng.Creates("r1") != 1 {
		t.Errorf("Creates = %d, want 1", eng.Creates("r1"))
	}
	if st := c.Status(context.Background(), "r1"); st.Tag != StatusConnected {
		t.Errorf("Status = %s, want %s", st.Tag, StatusConnected)
	}
}

func TestPairingCodeRefreshKeepsWatchdog(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})
	initialize(t, c, "r1")
	h := eng.Last("r1")

	h.EmitPairingCode("QR1")
	h.EmitPairingCode("QR2")
	waitFor(t, "refreshed code", func() bool {
		s, _ := c.Session("r1")
		return s.PairingCode == "QR2"
	})
	if !c.PairingArmed("r1") {
		t.Error("watchdog should stay armed across code refreshes")
	}
}

func TestPairingFailure(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})
	initialize(t, c, "r1")
	h := eng.Last("r1")

	h.EmitPairingCode("QR1")
	h.EmitPairingFailed("bad credentials")
	waitState(t, c, "r1", StateError)

	st := c.Status(context.Background(), "r1")
	if st.Tag != StatusError || st.Error != "Auth failure: bad credentials" {
		t.Errorf("Status = %+v, want error with auth failure message", st)
	}
	if s, _ := c.Session("r1"); s.Handle != nil || s.PairingCode != "" {
		t.Error("errored session must not hold a handle or pairing code")
	}
	if !h.WaitDestroyed(waitTimeout) {
		t.Error("failed handle was not destroyed")
	}
	if c.PairingArmed("r1") {
		t.Error("watchdog should be disarmed after auth failure")
	}
}

func TestAsyncEngineFailure(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})
	initialize(t, c, "r1")
	eng.Last("r1").EmitFailed("browser crashed")
	waitState(t, c, "r1", StateError)

	if st := c.Status(context.Background(), "r1"); st.Error != "browser crashed" {
		t.Errorf("Status.Error = %q, want browser crashed", st.Error)
	}
}

func TestDisconnectRemovesSession(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})
	initialize(t, c, "r1")
	h := eng.Last("r1")
	h.EmitReady("Cafe Nord")
	waitState(t, c, "r1", StateReady)

	h.EmitDisconnected("LOGOUT")
	waitState(t, c, "r1", StateDisconnected)

	st := c.Status(context.Background(), "r1")
	if st.Tag != StatusDisconnected || st.Online {
		t.Errorf("Status = %+v, want disconnected", st)
	}
	if !h.WaitDestroyed(waitTimeout) {
		t.Error("disconnected handle was not destroyed")
	}
}

func TestCreationFailure(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})
	eng.FailNextCreate(errors.New("chrome not found"))

	err := c.Initialize(context.Background(), "r1")
	if !errors.Is(err, ErrCreationFailed) {
		t.Fatalf("Initialize() error = %v, want ErrCreationFailed", err)
	}

	st := c.Status(context.Background(), "r1")
	if st.Tag != StatusError || st.Error != "chrome not found" {
		t.Errorf("Status = %+v, want error chrome not found", st)
	}
	if s, _ := c.Session("r1"); s.Handle != nil {
		t.Error("failed session must not hold a handle")
	}

	initialize(t, c, "r1")
	if st := c.Status(context.Background(), "r1"); st.Tag != StatusInitializing || st.Error != "" {
		t.Errorf("Status after retry = %+v, want initializing without error", st)
	}
}

func TestResetErasesCredentials(t *testing.T) {
	c, eng, store := newTestController(t, Options{})
	if err := os.MkdirAll(store.Path("r1"), 0o700); err != nil {
		t.Fatal(err)
	}

	initialize(t, c, "r1")
	first := eng.Last("r1")
	first.EmitReady("Cafe Nord")
	waitState(t, c, "r1", StateReady)

	if err := c.Reset(context.Background(), "r1"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if !first.Destroyed() {
		t.Error("Reset should wait for teardown")
	}
	if store.Exists("r1") {
		t.Error("credential directory should be removed")
	}
	if _, ok := c.Session("r1"); ok {
		t.Error("session record should be removed")
	}
	if st := c.Status(context.Background(), "r1"); st.Tag != StatusDisconnected {
		t.Errorf("Status = %s, want %s", st.Tag, StatusDisconnected)
	}

	initialize(t, c, "r1")
	eng.Last("r1").EmitPairingCode("FRESH")
	waitState(t, c, "r1", StatePairingRequired)
}

func TestResetUnknownTenant(t *testing.T) {
	c, _, _ := newTestController(t, Options{})
	if err := c.Reset(context.Background(), "nobody"); err != nil {
		t.Errorf("Reset() error = %v", err)
	}
}

func TestInvalidTenantID(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})

	for _, id := range []string{"", "../etc", "a/b"} {
		if err := c.Initialize(context.Background(), id); !errors.Is(err, ErrInvalidTenantID) {
			t.Errorf("Initialize(%q) error = %v, want ErrInvalidTenantID", id, err)
		}
		if err := c.Reset(context.Background(), id); !errors.Is(err, ErrInvalidTenantID) {
			t.Errorf("Reset(%q) error = %v, want ErrInvalidTenantID", id, err)
		}
	}
	if eng.Creates("") != 0 {
		t.Error("engine should not be called for invalid tenants")
	}
}

func TestStatusProbe(t *testing.T) {
	tests := []struct {
		name  string
		state engine.LiveState
		err   error
		want  StatusTag
	}{
		{"connected", engine.LiveConnected, nil, StatusConnected},
		{"contradicted", engine.LiveConflict, nil, StatusInitializing},
		{"probe error falls back", "", errors.New("timeout"), StatusConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, eng, _ := newTestController(t, Options{})
			initialize(t, c, "r1")
			h := eng.Last("r1")
			h.SetLiveState(tt.state, tt.err)
			h.EmitReady("Cafe Nord")
			waitState(t, c, "r1", StateReady)

			if got := c.Status(context.Background(), "r1").Tag; got != tt.want {
				t.Errorf("Status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTeardownErrorsSwallowed(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})
	initialize(t, c, "r1")
	eng.Last("r1").FailDestroy(errors.New("already gone"))

	if err := c.Initialize(context.Background(), "r1"); err != nil {
		t.Errorf("Initialize() error = %v, want nil despite teardown failure", err)
	}
	if err := c.Reset(context.Background(), "r1"); err != nil {
		t.Errorf("Reset() error = %v", err)
	}
}

func TestSlowTeardownDoesNotBlockInitialize(t *testing.T) {
	c, eng, _ := newTestController(t, Options{TeardownTimeout: 300 * time.Millisecond})
	initialize(t, c, "r1")
	eng.Last("r1").SlowDestroy(5 * time.Second)

	start := time.Now()
	initialize(t, c, "r1")
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Initialize took %v while old handle was tearing down", elapsed)
	}
}

func TestObserversSeeTransitions(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})

	var mu sync.Mutex
	var reasons []string
	c.AddObserver(ObserverFunc(func(_ context.Context, ch Change) {
		mu.Lock()
		defer mu.Unlock()
		reasons = append(reasons, ch.Reason+":"+string(ch.To))
	}))

	initialize(t, c, "r1")
	h := eng.Last("r1")
	h.EmitPairingCode("QR1")
	h.EmitReady("Cafe Nord")
	waitFor(t, "ready notification", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reasons) == 3
	})
	if err := c.Reset(context.Background(), "r1"); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		"initialize:creating",
		"qr:pairing_required",
		"ready:ready",
		"reset:uninitialized",
	}
	if len(reasons) != len(want) {
		t.Fatalf("changes = %v, want %v", reasons, want)
	}
	for i := range want {
		if reasons[i] != want[i] {
			t.Errorf("change[%d] = %s, want %s", i, reasons[i], want[i])
		}
	}
}

func TestObserverFinalStateMatchesRegistry(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})
	eng.OnCreate(func(h *enginetest.Handle) {
		h.EmitPairingCode("ABC")
	})

	var mu sync.Mutex
	var last State
	c.AddObserver(ObserverFunc(func(_ context.Context, ch Change) {
		// Stands in for a slow sink write.
		time.Sleep(200 * time.Microsecond)
		mu.Lock()
		defer mu.Unlock()
		last = ch.To
	}))

	for i := 0; i < 50; i++ {
		initialize(t, c, "r1")
		waitState(t, c, "r1", StatePairingRequired)
		waitFor(t, fmt.Sprintf("run %d: observer to see %s", i, StatePairingRequired), func() bool {
			mu.Lock()
			defer mu.Unlock()
			return last == StatePairingRequired
		})
	}

	mu.Lock()
	defer mu.Unlock()
	if s, _ := c.Session("r1"); s.State != last {
		t.Errorf("observer last = %s, registry = %s", last, s.State)
	}
}

func TestResetWaitsForTeardownAfterCancel(t *testing.T) {
	c, eng, store := newTestController(t, Options{TeardownTimeout: time.Second})
	initialize(t, c, "r1")
	eng.Last("r1").SlowDestroy(200 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := c.Reset(ctx, "r1"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("Reset returned after %v, before the teardown finished", elapsed)
	}
	if store.Exists("r1") {
		t.Error("credential directory should be removed")
	}
}

func TestResetTeardownWaitIsBounded(t *testing.T) {
	c, eng, _ := newTestController(t, Options{TeardownTimeout: 200 * time.Millisecond})
	initialize(t, c, "r1")
	eng.Last("r1").SlowDestroy(5 * time.Second)

	start := time.Now()
	if err := c.Reset(context.Background(), "r1"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Reset took %v, want it bounded by the teardown timeout", elapsed)
	}
}

func TestObserverPanicIsContained(t *testing.T) {
	c, _, _ := newTestController(t, Options{})
	c.AddObserver(ObserverFunc(func(context.Context, Change) { panic("boom") }))

	initialize(t, c, "r1")
}

func TestCloseDestroysHandles(t *testing.T) {
	c, eng, _ := newTestController(t, Options{})
	initialize(t, c, "r1")
	initialize(t, c, "r2")

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for _, id := range []string{"r1", "r2"} {
		if len(eng.Live(id)) != 0 {
			t.Errorf("%s still has live handles after Close", id)
		}
	}
	if err := c.Initialize(context.Background(), "r1"); !errors.Is(err, ErrClosed) {
		t.Errorf("Initialize() after Close error = %v, want ErrClosed", err)
	}
}
