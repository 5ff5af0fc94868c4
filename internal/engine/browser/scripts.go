package browser

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// probeScript reports what the page currently shows.
const probeScript = `(() => {
	const qr = document.querySelector('div[data-ref]');
	const pane = document.querySelector('#pane-side');
	let user = '';
	if (pane && typeof window.foxbridgeUser === 'function') {
		try { user = String(window.foxbridgeUser() || ''); } catch (e) {}
	}
	return {code: qr ? (qr.getAttribute('data-ref') || '') : '', ready: !!pane, user: user};
})()`

const stateScript = `(async () => {
	if (typeof window.foxbridgeState !== 'function') return '';
	return String(await window.foxbridgeState() || '');
})()`

const sendScript = `(async (a) => {
	if (typeof window.foxbridgeSendMedia !== 'function') {
		throw new Error('send hook not installed');
	}
	await window.foxbridgeSendMedia(a.to, a.mimetype, a.data, a.filename, a.caption);
	return true;
})(%s)`

// pageProbe is the result of probeScript.
type pageProbe struct {
	Code  string `json:"code"`
	Ready bool   `json:"ready"`
	User  string `json:"user"`
}

type sendArgs struct {
	To       string `json:"to"`
	MimeType string `json:"mimetype"`
	Data     string `json:"data"`
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
}

// buildSendScript embeds the arguments as a JSON literal, so no value is
// ever interpreted as code.
func buildSendScript(to, mimeType string, data []byte, filename, caption string) (string, error) {
	args, err := json.Marshal(sendArgs{
		To:       to,
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
		Filename: filename,
		Caption:  caption,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(sendScript, args), nil
}
