// Package sigchan provides a non-blocking signal channel for coalescing
// notifications that carry no data.
package sigchan

// Chan delivers at most bufferSize pending signals. Emitting into a full
// channel is a no-op, so repeated signals coalesce instead of queueing.
type Chan struct {
	c chan struct{}
}

// New creates a signal channel with the given pending capacity.
func New(bufferSize int) *Chan {
	return &Chan{
		c: make(chan struct{}, bufferSize),
	}
}

// Emit sends a signal without blocking. A full channel drops the signal.
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C exposes the receive side for select loops.
func (c *Chan) C() <-chan struct{} {
	return c.c
}
