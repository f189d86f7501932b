// Package protocol implements the application-level message formats exchanged
// with the game server: the Lua command literals it consumes and the
// 序号/内容 response envelopes it produces.
package protocol

import "time"

// Frame is one decoded server message. SeqNo is a server-assigned category
// tag shared by many frames; it is not a request id. Correlation to requests
// happens by arrival time in the dispatcher.
type Frame struct {
	SeqNo     int       `json:"seq_no"`
	Content   string    `json:"content"`
	Raw       string    `json:"raw_data"`
	ArrivedAt time.Time `json:"-"`
}

// Well-known sequence numbers on the server side.
const (
	SeqLogin       = 1   // outbound: login command
	SeqLoginOK     = 7   // inbound: login accepted
	SeqLoginFailed = 999 // inbound: login rejected
)
