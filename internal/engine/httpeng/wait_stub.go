//go:build !unix

package httpeng

import "time"

// maxStubWait caps waits on platforms without poll support, bounding the
// latency of picking up completions and control messages.
const maxStubWait = 50 * time.Millisecond

func (e *Engine) Wait(_ []int, timeout time.Duration) error {
	if timeout > maxStubWait {
		timeout = maxStubWait
	}
	time.Sleep(timeout)
	return nil
}
