package engine

import (
	"errors"
	"time"
)

// TapeDepth bounds the recent-trade ring per market.
const TapeDepth = 1000

var ErrPositionLimit = errors.New("position limit breached")

// Trade accounts for the two parties who matched.
type Trade struct {
	Timestamp time.Time
	Symbol    string
	Price     float64
	Qty       int64
	Buyer     string
	Seller    string
}

// UserStats are running per-user totals, updated on every fill.
type UserStats struct {
	BuyVol       int64
	SellVol      int64
	BuyNotional  float64
	SellNotional float64
}

func (s UserStats) AvgBuy() float64 {
	if s.BuyVol == 0 {
		return 0
	}
	return s.BuyNotional / float64(s.BuyVol)
}

func (s UserStats) AvgSell() float64 {
	if s.SellVol == 0 {
		return 0
	}
	return s.SellNotional / float64(s.SellVol)
}

// Market is one independently priced instrument: a book, its ledger, the
// recent tape and per-user stats. All methods assume the owning session's
// lock is held.
type Market struct {
	Symbol    string
	TickSize  float64
	PosLimit  int64
	ClickSize int64

	open       bool
	settlement *float64

	book    *Book
	ledger  *Ledger
	tape    *Ring[Trade]
	stats   map[string]*UserStats
	nextID  func() uint64
	onTrade func(Trade)
}

// NewMarket creates an open market. nextID allocates session-local order ids.
func NewMarket(symbol string, tickSize float64, posLimit int64, nextID func() uint64) *Market {
	return &Market{
		Symbol:    symbol,
		TickSize:  tickSize,
		PosLimit:  posLimit,
		ClickSize: 1,
		open:      true,
		book:      NewBook(),
		ledger:    NewLedger(),
		tape:      NewRing[Trade](TapeDepth),
		stats:     make(map[string]*UserStats),
		nextID:    nextID,
	}
}

// SetTradeHook registers the callback fired for every fill, after the tape
// and stats have been updated.
func (m *Market) SetTradeHook(fn func(Trade)) {
	m.onTrade = fn
}

func (m *Market) Open() bool {
	return m.open
}

// SetOpen flips the market open or closed. A settled market stays closed.
func (m *Market) SetOpen(open bool) {
	if m.settlement != nil {
		m.open = false
		return
	}
	m.open = open
}

// Settlement returns the settlement price if the market has settled.
func (m *Market) Settlement() (float64, bool) {
	if m.settlement == nil {
		return 0, false
	}
	return *m.settlement, true
}

// Settle fixes the settlement price and closes the market. Resting orders
// stay cancellable but no further placement is accepted.
func (m *Market) Settle(price float64) float64 {
	px := Snap(price, m.TickSize)
	m.settlement = &px
	m.open = false
	return px
}

// PlaceLimit accepts a limit order, crosses it against the book and rests
// any residual. The position limit is checked optimistically against the
// full quantity before any mutation; ErrPositionLimit means nothing changed
// and no order id was consumed.
func (m *Market) PlaceLimit(owner string, side Side, price float64, qty int64) (uint64, error) {
	if !m.ledger.WithinLimit(owner, side, qty, m.PosLimit) {
		return 0, ErrPositionLimit
	}

	order := &Order{
		ID:        m.nextID(),
		Owner:     owner,
		Side:      side,
		Price:     Snap(price, m.TickSize),
		Qty:       qty,
		Leaves:    qty,
		Timestamp: time.Now(),
	}

	m.match(order)

	if order.Leaves > 0 {
		m.book.Push(order)
	}
	return order.ID, nil
}

// match crosses the incoming order against the opposite side in price-time
// priority. Fills happen at the resting maker's price. The taker's position
// is re-checked before every fill; once it reaches the cap the rest of the
// order is dropped, never rested.
func (m *Market) match(taker *Order) {
	opposite := m.book.Levels(taker.Side.Opposite())

	for taker.Leaves > 0 {
		level, ok := opposite.MinMut()
		if !ok || !taker.Side.Crosses(taker.Price, level.Price) {
			return
		}

		var consumed int
		for consumed < len(level.Orders) && taker.Leaves > 0 {
			maker := level.Orders[consumed]

			tradeQty := min(taker.Leaves, maker.Leaves)
			if room := m.ledger.Headroom(taker.Owner, taker.Side, m.PosLimit); tradeQty > room {
				tradeQty = room
			}
			if tradeQty == 0 {
				// Taker is at the cap: drop the remainder of the order.
				taker.Leaves = 0
				break
			}

			m.execute(taker.Owner, taker.Side, maker, level.Price, tradeQty)
			taker.Leaves -= tradeQty

			if maker.Leaves == 0 {
				consumed++
			}
		}

		if consumed > 0 {
			level.Orders = level.Orders[consumed:]
		}
		if len(level.Orders) == 0 {
			opposite.Delete(level)
		}
	}
}

// TakeAtPrice executes against exactly one opposite level, the click-trade
// path. Fills happen at the requested (snapped) price; other levels are
// never touched. Returns the quantity actually filled.
func (m *Market) TakeAtPrice(owner string, side Side, price float64, maxQty int64) int64 {
	px := Snap(price, m.TickSize)
	opposite := m.book.Levels(side.Opposite())
	level, ok := opposite.GetMut(&PriceLevel{Price: px})
	if !ok {
		return 0
	}

	remaining := max(maxQty, 0)
	var filled int64
	var consumed int
	for consumed < len(level.Orders) && remaining > 0 {
		maker := level.Orders[consumed]

		tradeQty := min(remaining, maker.Leaves)
		if room := m.ledger.Headroom(owner, side, m.PosLimit); tradeQty > room {
			tradeQty = room
		}
		if tradeQty == 0 {
			break
		}

		m.execute(owner, side, maker, px, tradeQty)
		remaining -= tradeQty
		filled += tradeQty

		if maker.Leaves == 0 {
			consumed++
		}
	}

	if consumed > 0 {
		level.Orders = level.Orders[consumed:]
	}
	if len(level.Orders) == 0 {
		opposite.Delete(level)
	}
	return filled
}

// execute books one fill between the taker and a resting maker: ledger,
// maker leaves, stats, tape, then the trade hook.
func (m *Market) execute(taker string, takerSide Side, maker *Order, px float64, qty int64) {
	buyer, seller := taker, maker.Owner
	if takerSide == Sell {
		buyer, seller = maker.Owner, taker
	}

	m.ledger.Apply(buyer, seller, px, qty)
	maker.Leaves -= qty

	notional := float64(qty) * px
	bs := m.userStats(buyer)
	bs.BuyVol += qty
	bs.BuyNotional += notional
	ss := m.userStats(seller)
	ss.SellVol += qty
	ss.SellNotional += notional

	trade := Trade{
		Timestamp: time.Now(),
		Symbol:    m.Symbol,
		Price:     px,
		Qty:       qty,
		Buyer:     buyer,
		Seller:    seller,
	}
	m.tape.Push(trade)
	if m.onTrade != nil {
		m.onTrade(trade)
	}
}

// CancelAtPrice removes the caller's resting orders at (side, price).
// The ledger is untouched and no trades are emitted.
func (m *Market) CancelAtPrice(owner string, side Side, price float64) int {
	return m.book.CancelAtPrice(owner, side, Snap(price, m.TickSize))
}

func (m *Market) userStats(owner string) *UserStats {
	s, ok := m.stats[owner]
	if !ok {
		s = &UserStats{}
		m.stats[owner] = s
	}
	return s
}

func (m *Market) Stats(owner string) UserStats {
	if s, ok := m.stats[owner]; ok {
		return *s
	}
	return UserStats{}
}

func (m *Market) Position(owner string) Position {
	return m.ledger.Peek(owner)
}

func (m *Market) Ledger() *Ledger {
	return m.ledger
}

func (m *Market) Book() *Book {
	return m.book
}

// Tape returns up to n of the most recent trades, oldest first.
func (m *Market) Tape(n int) []Trade {
	return m.tape.Last(n)
}

func (m *Market) BestBid() (float64, bool) {
	return m.book.BestBid()
}

func (m *Market) BestAsk() (float64, bool) {
	return m.book.BestAsk()
}

// ImpliedPx is the mark used for implied PnL: settlement if set, else mid,
// else zero.
func (m *Market) ImpliedPx() float64 {
	if px, ok := m.Settlement(); ok {
		return px
	}
	if mid, ok := m.book.Mid(); ok {
		return mid
	}
	return 0
}

// DepthLevel is one aggregated price level of a viewer's book snapshot.
type DepthLevel struct {
	Price float64
	Size  int64
	My    int64
}

// Depth aggregates up to maxLevels levels on one side, best price first,
// attributing the viewer's own resting size.
func (m *Market) Depth(side Side, maxLevels int, viewer string) []DepthLevel {
	out := make([]DepthLevel, 0, maxLevels)
	m.book.Levels(side).Scan(func(level *PriceLevel) bool {
		dl := DepthLevel{Price: level.Price}
		for _, order := range level.Orders {
			dl.Size += order.Leaves
			if order.Owner == viewer {
				dl.My += order.Leaves
			}
		}
		out = append(out, dl)
		return len(out) < maxLevels
	})
	return out
}
