package engine

import "time"

// Order is a resting or incoming limit order.
type Order struct {
	ID        uint64    // Monotonic per session, assigned at acceptance
	Owner     string    // Connection identity of the placer
	Side      Side      // Order side
	Price     float64   // Tick-snapped limit price
	Qty       int64     // Total volume requested
	Leaves    int64     // Unfilled remaining quantity
	Timestamp time.Time // Time of acceptance into the book
}
