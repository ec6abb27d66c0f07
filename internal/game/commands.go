package game

import (
	"fmt"

	"openoutcry/internal/engine"
)

// OrderOutcome reports a place_order command back to the dispatcher.
type OrderOutcome struct {
	OrderID  uint64
	Rejected bool
	Reason   string
	Trades   []engine.Trade
}

// PlaceOrder routes a limit order to the addressed market. The second return
// is false when the market is missing or closed and the command is silently
// dropped.
func (g *Game) PlaceOrder(connID, symbol string, side engine.Side, price float64, qty int64) (OrderOutcome, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	market, ok := g.markets[symbol]
	if !ok || !market.Open() {
		return OrderOutcome{}, false
	}

	id, err := market.PlaceLimit(connID, side, price, qty)
	if err != nil {
		return OrderOutcome{Rejected: true, Reason: "pos_limit"}, true
	}
	return OrderOutcome{OrderID: id, Trades: g.takeTrades()}, true
}

// ClickTrade executes a bounded take against one price level. maxQty at or
// below zero falls back to the market's click size.
func (g *Game) ClickTrade(connID, symbol string, side engine.Side, price float64, maxQty int64) (int64, []engine.Trade, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	market, ok := g.markets[symbol]
	if !ok || !market.Open() {
		return 0, nil, false
	}

	if maxQty <= 0 {
		maxQty = market.ClickSize
	}
	filled := market.TakeAtPrice(connID, side, price, maxQty)
	return filled, g.takeTrades(), true
}

// CancelAtPrice removes the caller's resting orders at (side, price). Works
// on closed and settled markets.
func (g *Game) CancelAtPrice(connID, symbol string, side engine.Side, price float64) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	market, ok := g.markets[symbol]
	if !ok {
		return 0, false
	}
	return market.CancelAtPrice(connID, side, price), true
}

// SetMarketOpen flips one market and logs the change.
func (g *Game) SetMarketOpen(symbol string, open bool) (Event, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	market, ok := g.markets[symbol]
	if !ok {
		return Event{}, false
	}
	market.SetOpen(open)
	ev := g.appendEvent(fmt.Sprintf("Market %s %s", symbol, openWord(market.Open())))
	return ev, true
}

// SetAllOpen flips every market in the session.
func (g *Game) SetAllOpen(open bool) Event {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, symbol := range g.symbols {
		g.markets[symbol].SetOpen(open)
	}
	return g.appendEvent(fmt.Sprintf("All markets %s", openWord(open)))
}

// Settle fixes one market's settlement price, closing it.
func (g *Game) Settle(symbol string, price float64) (float64, Event, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	market, ok := g.markets[symbol]
	if !ok {
		return 0, Event{}, false
	}
	px := market.Settle(price)
	ev := g.appendEvent(fmt.Sprintf("Market %s settled at %g", symbol, px))
	return px, ev, true
}

// SettleAll settles the named markets; symbols absent from the session are
// ignored.
func (g *Game) SettleAll(prices map[string]float64) []Event {
	g.mu.Lock()
	defer g.mu.Unlock()

	var events []Event
	for _, symbol := range g.symbols {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		px := g.markets[symbol].Settle(price)
		events = append(events, g.appendEvent(fmt.Sprintf("Market %s settled at %g", symbol, px)))
	}
	return events
}

func openWord(open bool) string {
	if open {
		return "opened"
	}
	return "closed"
}
