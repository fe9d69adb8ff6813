// Package event defines the messages the network layer posts to a session.
package event

import "fmt"

// Event is one inbound message from the network layer
type Event interface {
	isEvent()
}

// Sink receives events. Post may block until the event is handled.
type Sink interface {
	Post(Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Event)

// Post calls f(ev).
func (f SinkFunc) Post(ev Event) { f(ev) }

// AudioFormat announces a new PCM stream format.
type AudioFormat struct {
	Channels uint32
	Rate     uint32
}

// AudioSamples carries interleaved signed 16-bit PCM.
type AudioSamples struct {
	PCM []int16
}

// VideoSample carries one compressed video frame.
type VideoSample struct {
	Data []byte
}

// LoginPINRequest asks the user for the console login PIN.
type LoginPINRequest struct {
	Incorrect bool
}

// Quit ends the session.
type Quit struct {
	Reason QuitReason
	Text   string
}

func (AudioFormat) isEvent()     {}
func (AudioSamples) isEvent()    {}
func (VideoSample) isEvent()     {}
func (LoginPINRequest) isEvent() {}
func (Quit) isEvent()            {}

// QuitReason tells why a session ended
type QuitReason uint32

const (
	QuitNone QuitReason = iota
	QuitStopped
	QuitSessionRequestUnknown
	QuitSessionRequestConnectionRefused
	QuitSessionRequestRPInUse
	QuitSessionRequestRPCrash
	QuitSessionRequestRPVersionMismatch
	QuitCtrlUnknown
	QuitCtrlConnectFailed
	QuitCtrlConnectionRefused
	QuitStreamConnectionUnknown
	QuitStreamConnectionRemoteDisconnected
	QuitStreamConnectionRemoteShutdown
)

var quitReasonStrings = map[QuitReason]string{
	QuitNone:                               "None",
	QuitStopped:                            "Stopped",
	QuitSessionRequestUnknown:              "Unknown Session Request Error",
	QuitSessionRequestConnectionRefused:    "Connection Refused in Session Request",
	QuitSessionRequestRPInUse:              "Remote Play on Console is already in use",
	QuitSessionRequestRPCrash:              "Remote Play on Console has crashed",
	QuitSessionRequestRPVersionMismatch:    "RP-Version mismatch",
	QuitCtrlUnknown:                        "Unknown Ctrl Error",
	QuitCtrlConnectFailed:                  "Failed to connect to Ctrl",
	QuitCtrlConnectionRefused:              "Connection Refused in Ctrl",
	QuitStreamConnectionUnknown:            "Unknown Error in Stream Connection",
	QuitStreamConnectionRemoteDisconnected: "Remote has disconnected from Stream Connection",
	QuitStreamConnectionRemoteShutdown:     "Remote has shut down",
}

func (r QuitReason) String() string {
	if s, ok := quitReasonStrings[r]; ok {
		return s
	}
	return fmt.Sprintf("Unknown quit reason %d", uint32(r))
}

// IsError reports whether the reason should be shown to the user as a failure.
func (r QuitReason) IsError() bool {
	return r != QuitNone && r != QuitStopped
}
