//go:build !unix

package simeng

import "time"

// Wait sleeps for the timeout. Without poll support the wake descriptors
// cannot interrupt the wait; the bounded timeout keeps the loop live.
func (e *Engine) Wait(_ []int, timeout time.Duration) error {
	time.Sleep(timeout)
	return nil
}
