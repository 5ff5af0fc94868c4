package helper

// Event names written by the helper.
const (
	eventQR            = "qr"
	eventAuthenticated = "authenticated"
	eventReady         = "ready"
	eventAuthFailure   = "auth_failure"
	eventDisconnected  = "disconnected"
	eventError         = "error"
	eventResult        = "result"
)

// Commands accepted by the helper.
const (
	cmdSendMedia = "send_media"
	cmdGetState  = "get_state"
	cmdShutdown  = "shutdown"
)

// message is one stdout line.
type message struct {
	Event   string `json:"event"`
	Code    string `json:"code,omitempty"`
	User    string `json:"user,omitempty"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`

	ID    string `json:"id,omitempty"`
	OK    bool   `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
	State string `json:"state,omitempty"`
}

// command is one stdin line.
type command struct {
	ID       string `json:"id,omitempty"`
	Cmd      string `json:"cmd"`
	To       string `json:"to,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	Filename string `json:"filename,omitempty"`
	Data     []byte `json:"data,omitempty"`
	Caption  string `json:"caption,omitempty"`
}
