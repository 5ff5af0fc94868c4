package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/foxbridge/internal/engine"
)

func TestTrackerSequence(t *testing.T) {
	var tr tracker
	steps := []struct {
		name  string
		probe pageProbe
		want  []engine.EventType
		over  bool
	}{
		{"blank page", pageProbe{}, nil, false},
		{"first code", pageProbe{Code: "c1"}, []engine.EventType{engine.EventPairingCodeIssued}, false},
		{"same code", pageProbe{Code: "c1"}, nil, false},
		{"refreshed code", pageProbe{Code: "c2"}, []engine.EventType{engine.EventPairingCodeIssued}, false},
		{"logged in", pageProbe{Ready: true, User: "Bistro"}, []engine.EventType{engine.EventAuthenticated, engine.EventReady}, false},
		{"still ready", pageProbe{Ready: true}, nil, false},
		{"reloading", pageProbe{}, nil, false},
		{"logged out", pageProbe{Code: "c3"}, []engine.EventType{engine.EventDisconnected}, true},
	}

	for _, step := range steps {
		events, over := tr.observe(step.probe)
		if over != step.over {
			t.Errorf("%s: over = %v, want %v", step.name, over, step.over)
		}
		if len(events) != len(step.want) {
			t.Fatalf("%s: events = %+v, want types %v", step.name, events, step.want)
		}
		for i, ev := range events {
			if ev.Type != step.want[i] {
				t.Errorf("%s: event[%d] = %v, want %v", step.name, i, ev.Type, step.want[i])
			}
		}
	}
}

func TestTrackerCarriesPayload(t *testing.T) {
	var tr tracker
	events, _ := tr.observe(pageProbe{Code: "2@abc"})
	if events[0].Code != "2@abc" {
		t.Errorf("Code = %q, want 2@abc", events[0].Code)
	}
	events, _ = tr.observe(pageProbe{Ready: true, User: "Bistro"})
	if events[1].User != "Bistro" {
		t.Errorf("User = %q, want Bistro", events[1].User)
	}
}

func TestBuildSendScriptEmbedsJSON(t *testing.T) {
	caption := `Bill "42"'); alert('x`
	script, err := buildSendScript("4915112345678@c.us", "image/png", []byte("png"), "bill.png", caption)
	if err != nil {
		t.Fatalf("buildSendScript() error = %v", err)
	}

	start := strings.LastIndex(script, "})(")
	if start < 0 || !strings.HasSuffix(script, ")") {
		t.Fatalf("unexpected script shape: %s", script)
	}
	literal := script[start+3 : len(script)-1]

	var args sendArgs
	if err := json.Unmarshal([]byte(literal), &args); err != nil {
		t.Fatalf("argument literal is not JSON: %v", err)
	}
	if args.Caption != caption {
		t.Errorf("Caption = %q, want %q", args.Caption, caption)
	}
	if args.Data != base64.StdEncoding.EncodeToString([]byte("png")) {
		t.Errorf("Data = %q, want base64", args.Data)
	}
	if args.To != "4915112345678@c.us" || args.MimeType != "image/png" || args.Filename != "bill.png" {
		t.Errorf("args = %+v", args)
	}
}

func TestNewDefaults(t *testing.T) {
	e := New(Config{}, nil)
	if e.cfg.URL != DefaultURL {
		t.Errorf("URL = %q, want %q", e.cfg.URL, DefaultURL)
	}
	if e.cfg.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %v", e.cfg.PollInterval)
	}
	if e.cfg.LoadTimeout != DefaultLoadTimeout {
		t.Errorf("LoadTimeout = %v", e.cfg.LoadTimeout)
	}
}

func TestAllocatorOptions(t *testing.T) {
	base := New(Config{Headless: true}, nil).allocatorOptions("/tmp/profile")
	full := New(Config{ExecPath: "/usr/bin/chromium", UserAgent: "fb"}, nil).allocatorOptions("/tmp/profile")

	if len(full) != len(base)+3 {
		t.Errorf("len(full) = %d, want %d", len(full), len(base)+3)
	}
}

func TestHandleBeforeLoad(t *testing.T) {
	tb := &tab{done: make(chan struct{})}

	if err := tb.SendMedia(context.Background(), "x@c.us", engine.Media{}, ""); !errors.Is(err, ErrNotStarted) {
		t.Errorf("SendMedia() error = %v, want ErrNotStarted", err)
	}
	if _, err := tb.LiveState(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("LiveState() error = %v, want ErrNotStarted", err)
	}
}

func TestCreateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(Config{}, nil).Create(ctx, engine.CreateRequest{TenantID: "r1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Create() error = %v, want context.Canceled", err)
	}
}

const testPage = `<!doctype html>
<html><body><div data-ref="code-1"></div>
<script>
setTimeout(function () { document.body.innerHTML = '<div id="pane-side"></div>'; }, 1500);
</script></body></html>`

const testInject = `
window.foxbridgeUser = function () { return 'Bistro'; };
window.foxbridgeState = function () { return 'CONNECTED'; };
window.foxbridgeSendMedia = async function (to) {
	if (to === 'fail@c.us') { throw new Error('chat not found'); }
};`

func chromeAvailable() bool {
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

func TestChromeLifecycle(t *testing.T) {
	if os.Getenv("FOXBRIDGE_CHROME_TESTS") == "" || !chromeAvailable() {
		t.Skip("set FOXBRIDGE_CHROME_TESTS with Chrome on PATH to run")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(testPage))
	}))
	defer srv.Close()

	eng := New(Config{
		URL:          srv.URL,
		Headless:     true,
		InjectScript: testInject,
		PollInterval: 200 * time.Millisecond,
	}, nil)

	events := make(chan engine.Event, 16)
	h, err := eng.Create(context.Background(), engine.CreateRequest{
		TenantID:       "r1",
		CredentialPath: t.TempDir(),
		Events:         func(ev engine.Event) { events <- ev },
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = h.Destroy(ctx)
	}()

	want := []engine.EventType{engine.EventPairingCodeIssued, engine.EventAuthenticated, engine.EventReady}
	for _, typ := range want {
		select {
		case ev := <-events:
			if ev.Type != typ {
				t.Fatalf("event = %+v, want %v", ev, typ)
			}
			if typ == engine.EventReady && ev.User != "Bistro" {
				t.Errorf("User = %q, want Bistro", ev.User)
			}
		case <-time.After(30 * time.Second):
			t.Fatalf("timed out waiting for %v", typ)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state, err := h.LiveState(ctx)
	if err != nil || !state.Connected() {
		t.Errorf("LiveState() = %q, %v", state, err)
	}
	media := engine.Media{Data: []byte("png"), MimeType: "image/png", Filename: "bill.png"}
	if err := h.SendMedia(ctx, "4915112345678@c.us", media, "bill"); err != nil {
		t.Errorf("SendMedia() error = %v", err)
	}
	if err := h.SendMedia(ctx, "fail@c.us", media, ""); err == nil {
		t.Error("SendMedia() to fail@c.us should fail")
	}
}
