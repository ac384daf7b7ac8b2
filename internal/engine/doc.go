// Package engine defines the common interface that all transfer engines
// must implement, along with the handler and transfer types exchanged
// between the agent worker and engine implementations. Concrete engines
// live in subpackages: httpeng (net/http backed) and simeng (deterministic
// simulation for tests and benchmarks).
package engine
