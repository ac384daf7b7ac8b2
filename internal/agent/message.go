package agent

import "github.com/seantiz/courier/internal/engine"

// message is the closed set of control messages producers send to the
// worker. Each variant carries exactly the payload its transition needs.
type message interface {
	kind() string
}

type beginMessage struct {
	transfer *engine.Transfer
}

type cancelMessage struct {
	token int
}

type unpauseWriteMessage struct {
	token int
}

type closeMessage struct{}

func (beginMessage) kind() string        { return "begin" }
func (cancelMessage) kind() string       { return "cancel" }
func (unpauseWriteMessage) kind() string { return "unpause_write" }
func (closeMessage) kind() string        { return "close" }
