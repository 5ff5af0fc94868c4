// Package helper implements engine.Engine by running one helper process per
// tenant and talking to it over newline-delimited JSON.
//
// The helper reports lifecycle events on stdout:
//
//	{"event":"qr","code":"2@abc..."}
//	{"event":"authenticated"}
//	{"event":"ready","user":"Bistro Nord"}
//	{"event":"auth_failure","message":"..."}
//	{"event":"disconnected","reason":"LOGOUT"}
//	{"event":"error","message":"..."}
//
// and accepts commands on stdin, each answered by a result line carrying the
// same id:
//
//	{"id":"...","cmd":"send_media","to":"4915...@c.us","mimetype":"image/png","filename":"bill.png","data":"<base64>","caption":"..."}
//	{"id":"...","cmd":"get_state"}
//	{"cmd":"shutdown"}
//
//	{"event":"result","id":"...","ok":true,"state":"CONNECTED"}
//
// The process environment carries FOXBRIDGE_TENANT_ID and
// FOXBRIDGE_CREDENTIAL_PATH.
package helper
