// Package browser implements engine.Engine with one headless Chrome per
// tenant, driven through chromedp.
//
// Each tenant's credential directory is Chrome's user-data-dir, so a paired
// login survives restarts the same way it does in a desktop browser. The
// page is polled for a pairing code (div[data-ref]) and the logged-in chat
// list (#pane-side).
//
// Sending and live-state probing rely on two hooks the operator's inject
// script installs on window:
//
//	window.foxbridgeSendMedia(to, mimetype, base64Data, filename, caption) -> Promise
//	window.foxbridgeState() -> string | Promise<string>
//
// An optional window.foxbridgeUser() supplies the paired account name.
// Without the hooks SendMedia fails and LiveState reports
// engine.ErrProbeUnsupported.
package browser
