package game

import "openoutcry/internal/engine"

const (
	// SnapshotDepth caps the levels per side in a viewer's book snapshot.
	SnapshotDepth = 200
	// EventView caps the event lines sent in a viewer bundle.
	EventView = 200
	// TapeReplay is how many recent trades a joining viewer receives.
	TapeReplay = 50
)

// MarketMeta is the per-market summary broadcast to the whole room.
type MarketMeta struct {
	Symbol     string
	Open       bool
	Settlement *float64
	PosLimit   int64
	ClickSize  int64
	TickSize   float64
	BestBid    *float64
	BestAsk    *float64
}

// MarketView is one market's slice of a viewer's personalized bundle.
type MarketView struct {
	Symbol   string
	Bids     []engine.DepthLevel
	Asks     []engine.DepthLevel
	Position engine.Position
	Stats    engine.UserStats
}

// ViewerState is everything one connection needs to render the session.
type ViewerState struct {
	Name    string
	Meta    []MarketMeta
	Events  []Event
	Markets []MarketView
	PnL     float64
}

func (g *Game) metaLocked() []MarketMeta {
	out := make([]MarketMeta, 0, len(g.symbols))
	for _, symbol := range g.symbols {
		m := g.markets[symbol]
		meta := MarketMeta{
			Symbol:    symbol,
			Open:      m.Open(),
			PosLimit:  m.PosLimit,
			ClickSize: m.ClickSize,
			TickSize:  m.TickSize,
		}
		if px, ok := m.Settlement(); ok {
			meta.Settlement = &px
		}
		if bid, ok := m.BestBid(); ok {
			meta.BestBid = &bid
		}
		if ask, ok := m.BestAsk(); ok {
			meta.BestAsk = &ask
		}
		out = append(out, meta)
	}
	return out
}

// Meta returns the per-market summaries.
func (g *Game) Meta() []MarketMeta {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metaLocked()
}

// ViewerState computes the viewer's personalized bundle under one lock hold,
// so it reflects a consistent snapshot of the session.
func (g *Game) ViewerState(viewer string) ViewerState {
	g.mu.Lock()
	defer g.mu.Unlock()

	vs := ViewerState{
		Name:   g.usernames[viewer],
		Meta:   g.metaLocked(),
		Events: g.events.Last(EventView),
	}

	for _, symbol := range g.symbols {
		m := g.markets[symbol]
		pos := m.Position(viewer)
		vs.Markets = append(vs.Markets, MarketView{
			Symbol:   symbol,
			Bids:     m.Depth(engine.Buy, SnapshotDepth, viewer),
			Asks:     m.Depth(engine.Sell, SnapshotDepth, viewer),
			Position: pos,
			Stats:    m.Stats(viewer),
		})
		vs.PnL += pos.Cash + float64(pos.Qty)*m.ImpliedPx()
	}
	return vs
}

// RecentTrades returns up to n recent trades per market keyed by symbol, for
// tape replay on join.
func (g *Game) RecentTrades(n int) map[string][]engine.Trade {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string][]engine.Trade, len(g.symbols))
	for _, symbol := range g.symbols {
		if trades := g.markets[symbol].Tape(n); len(trades) > 0 {
			out[symbol] = trades
		}
	}
	return out
}

// EachMarket visits the session's markets in creation order. Used by tests
// to check cross-market invariants.
func (g *Game) EachMarket(fn func(m *engine.Market)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, symbol := range g.symbols {
		fn(g.markets[symbol])
	}
}
