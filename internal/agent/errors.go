package agent

import "errors"

// ErrTerminated is returned by handle operations once the worker goroutine
// has exited, whether through an orderly close or an engine failure.
var ErrTerminated = errors.New("agent: worker terminated")
