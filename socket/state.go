// File: socket/state.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

// State is the lifecycle phase of a Socket.
type State int32

const (
	Unconnected State = iota
	Resolving
	Connecting
	Connected
	Closing
	Listening
	Destroyed
)

var stateNames = [...]string{
	Unconnected: "unconnected",
	Resolving:   "resolving",
	Connecting:  "connecting",
	Connected:   "connected",
	Closing:     "closing",
	Listening:   "listening",
	Destroyed:   "destroyed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
