package browser

import "github.com/nerrad567/foxbridge/internal/engine"

// tracker turns successive page probes into lifecycle events.
type tracker struct {
	lastCode string
	ready    bool
}

// observe returns the events implied by p and whether the connection is
// over. A page that was logged in and shows a pairing code again has been
// logged out.
func (t *tracker) observe(p pageProbe) ([]engine.Event, bool) {
	switch {
	case p.Ready && !t.ready:
		t.ready = true
		t.lastCode = ""
		return []engine.Event{
			{Type: engine.EventAuthenticated},
			{Type: engine.EventReady, User: p.User},
		}, false
	case p.Ready:
		return nil, false
	case t.ready && p.Code != "":
		return []engine.Event{{Type: engine.EventDisconnected, Message: "logged out"}}, true
	case p.Code != "" && p.Code != t.lastCode:
		t.lastCode = p.Code
		return []engine.Event{{Type: engine.EventPairingCodeIssued, Code: p.Code}}, false
	}
	return nil, false
}
