package app

import "github.com/dkeye/chatrelay/internal/core"

// EchoPolicy decides whether a chat sender receives its own line back.
type EchoPolicy int

const (
	ExcludeSender EchoPolicy = iota
	IncludeSender
)

// Exclude returns the session a chat broadcast from sender should skip.
func (p EchoPolicy) Exclude(sender core.SessionID) core.SessionID {
	if p == IncludeSender {
		return ""
	}
	return sender
}

func EchoPolicyFor(echoSelf bool) EchoPolicy {
	if echoSelf {
		return IncludeSender
	}
	return ExcludeSender
}
