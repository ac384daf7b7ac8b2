// Package agent implements the transfer multiplexing worker: a single
// background goroutine that owns a transfer engine instance and drives all
// active transfers through one bounded wait loop, while any number of
// producer goroutines submit, cancel, or resume transfers through cloneable
// handles. Producer operations never block; the worker never busy-spins.
//
// All agent state is owned exclusively by the worker goroutine. The only
// cross-goroutine primitives are the message queue, the wake notifier, and
// the atomic terminated flag on the shared handle state.
package agent
