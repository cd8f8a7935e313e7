package mqtt

import (
	"log"
	"sync/atomic"

	"github.com/sweeney/button-node/internal/logic"
)

// delivery tracks one packet handed to the broker.
type delivery struct {
	token logic.CompletionToken
	done  atomic.Bool
}

// deliveryRing is a fixed-capacity FIFO of recent deliveries, looked up by
// completion token. The oldest delivery is dropped when full, after which
// its token never reports complete.
// Not safe for concurrent use; caller must synchronize.
type deliveryRing struct {
	buf      []*delivery
	capacity int
	head     int // next write position
	count    int
	overflow bool // true once any delivery was dropped
}

func newDeliveryRing(capacity int) *deliveryRing {
	return &deliveryRing{
		buf:      make([]*delivery, capacity),
		capacity: capacity,
	}
}

func (r *deliveryRing) push(d *delivery) {
	if r.count == r.capacity {
		if !r.overflow {
			log.Printf("mqtt: %d deliveries in flight, forgetting oldest", r.capacity)
			r.overflow = true
		}
		// Overwrite oldest: head is already pointing at it
		r.buf[r.head] = d
		r.head = (r.head + 1) % r.capacity
		return
	}
	r.buf[r.head] = d
	r.head = (r.head + 1) % r.capacity
	r.count++
}

// find returns the delivery for tok, or nil if it is unknown or was dropped.
func (r *deliveryRing) find(tok logic.CompletionToken) *delivery {
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		if d := r.buf[(start+i)%r.capacity]; d.token == tok {
			return d
		}
	}
	return nil
}

func (r *deliveryRing) len() int {
	return r.count
}
