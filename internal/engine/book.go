package engine

import (
	"math"

	"github.com/tidwall/btree"
)

// PriceLevel holds the orders resting at a single price, sorted by time added
// as they will be push-back'd.
type PriceLevel struct {
	Price  float64
	Orders []*Order
}

// PriceLevels is kept sorted so that the best price is always the tree
// minimum: bids greatest-first, asks least-first.
type PriceLevels = btree.BTreeG[*PriceLevel]

// Book holds both sides of one market.
type Book struct {
	bids *PriceLevels
	asks *PriceLevels
}

func NewBook() *Book {
	// Sorted greatest first.
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price > b.Price
	})
	// Sorted least first.
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price < b.Price
	})
	return &Book{bids: bids, asks: asks}
}

// Snap rounds px to the nearest integer multiple of tick. The second rounding
// keeps keys at exact short decimals so equal prices compare equal.
func Snap(px, tick float64) float64 {
	t := math.Max(tick, 1e-6)
	snapped := math.Round(px/t) * t
	return math.Round(snapped*1e9) / 1e9
}

// Levels returns the side's price levels, best price first.
func (b *Book) Levels(side Side) *PriceLevels {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

// Push rests an order at its price on its own side, creating the level if
// absent. FIFO within a level is preserved by appending.
func (b *Book) Push(order *Order) {
	levels := b.Levels(order.Side)
	level, ok := levels.GetMut(&PriceLevel{Price: order.Price})
	if ok {
		level.Orders = append(level.Orders, order)
		return
	}
	levels.Set(&PriceLevel{
		Price:  order.Price,
		Orders: []*Order{order},
	})
}

// BestBid is the highest resting bid price, false when the side is empty.
func (b *Book) BestBid() (float64, bool) {
	level, ok := b.bids.Min()
	if !ok {
		return 0, false
	}
	return level.Price, true
}

// BestAsk is the lowest resting ask price, false when the side is empty.
func (b *Book) BestAsk() (float64, bool) {
	level, ok := b.asks.Min()
	if !ok {
		return 0, false
	}
	return level.Price, true
}

// Mid is the midpoint when both sides are populated, else whichever best
// exists, else false.
func (b *Book) Mid() (float64, bool) {
	bid, bidOk := b.BestBid()
	ask, askOk := b.BestAsk()
	switch {
	case bidOk && askOk:
		return (bid + ask) / 2, true
	case bidOk:
		return bid, true
	case askOk:
		return ask, true
	}
	return 0, false
}

// CancelAtPrice removes every order at (side, px) owned by owner, deleting
// the level once empty. Returns the number of orders removed.
func (b *Book) CancelAtPrice(owner string, side Side, px float64) int {
	levels := b.Levels(side)
	level, ok := levels.GetMut(&PriceLevel{Price: px})
	if !ok {
		return 0
	}

	kept := level.Orders[:0]
	removed := 0
	for _, order := range level.Orders {
		if order.Owner == owner {
			removed++
			continue
		}
		kept = append(kept, order)
	}
	level.Orders = kept

	if len(level.Orders) == 0 {
		levels.Delete(level)
	}
	return removed
}
