package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers --------------------------------------------------------

// newTestMarket builds an open market on symbol A with tick 0.1 and position
// limit 100, collecting every fill into the returned slice.
func newTestMarket() (*Market, *[]Trade) {
	var nextID uint64
	m := NewMarket("A", 0.1, 100, func() uint64 {
		nextID++
		return nextID
	})
	trades := &[]Trade{}
	m.SetTradeHook(func(t Trade) {
		*trades = append(*trades, t)
	})
	return m, trades
}

func mustPlace(t *testing.T, m *Market, owner string, side Side, px float64, qty int64) uint64 {
	t.Helper()
	id, err := m.PlaceLimit(owner, side, px, qty)
	require.NoError(t, err)
	return id
}

// assertMarketInvariants checks the structural properties that must hold at
// every quiescent moment.
func assertMarketInvariants(t *testing.T, m *Market) {
	t.Helper()

	var sumQty int64
	var sumCash float64
	m.Ledger().Each(func(_ string, pos Position) {
		sumQty += pos.Qty
		sumCash += pos.Cash
	})
	assert.Equal(t, int64(0), sumQty, "position quantities must sum to zero")
	assert.InDelta(t, 0, sumCash, 1e-9, "position cash must sum to zero")

	for _, side := range []Side{Buy, Sell} {
		m.Book().Levels(side).Scan(func(level *PriceLevel) bool {
			assert.NotEmpty(t, level.Orders, "no empty level may exist")
			ticks := level.Price / m.TickSize
			assert.InDelta(t, math.Round(ticks), ticks, 1e-6, "price %v not a tick multiple", level.Price)
			for _, order := range level.Orders {
				assert.Greater(t, order.Leaves, int64(0))
				assert.LessOrEqual(t, order.Leaves, order.Qty)
			}
			return true
		})
	}
}

func depthSizes(m *Market, side Side) map[float64]int64 {
	out := make(map[float64]int64)
	for _, level := range m.Depth(side, 200, "") {
		out[level.Price] = level.Size
	}
	return out
}

// --- Tests ------------------------------------------------------------------

func TestSimpleCross(t *testing.T) {
	m, trades := newTestMarket()

	mustPlace(t, m, "u1", Sell, 10.0, 5)
	mustPlace(t, m, "u2", Buy, 10.0, 5)

	require.Len(t, *trades, 1)
	trade := (*trades)[0]
	assert.Equal(t, 10.0, trade.Price)
	assert.Equal(t, int64(5), trade.Qty)
	assert.Equal(t, "u2", trade.Buyer)
	assert.Equal(t, "u1", trade.Seller)

	assert.Equal(t, 0, m.Book().Levels(Buy).Len())
	assert.Equal(t, 0, m.Book().Levels(Sell).Len())

	assert.Equal(t, int64(-5), m.Position("u1").Qty)
	assert.InDelta(t, 50.0, m.Position("u1").Cash, 1e-9)
	assert.Equal(t, int64(5), m.Position("u2").Qty)
	assert.InDelta(t, -50.0, m.Position("u2").Cash, 1e-9)

	assertMarketInvariants(t, m)
}

func TestPartialFillRestsResidual(t *testing.T) {
	m, trades := newTestMarket()

	mustPlace(t, m, "u1", Sell, 10.0, 10)
	mustPlace(t, m, "u2", Buy, 10.0, 4)

	require.Len(t, *trades, 1)
	assert.Equal(t, int64(4), (*trades)[0].Qty)

	assert.Equal(t, map[float64]int64{10.0: 6}, depthSizes(m, Sell))
	assert.InDelta(t, -40.0, m.Position("u2").Cash, 1e-9)
	assertMarketInvariants(t, m)
}

func TestPriceTimePriority(t *testing.T) {
	m, trades := newTestMarket()

	mustPlace(t, m, "u1", Sell, 10.0, 3)
	mustPlace(t, m, "u3", Sell, 10.0, 4)
	mustPlace(t, m, "u2", Buy, 10.0, 5)

	require.Len(t, *trades, 2)
	assert.Equal(t, "u1", (*trades)[0].Seller, "earlier order fills first")
	assert.Equal(t, int64(3), (*trades)[0].Qty)
	assert.Equal(t, "u3", (*trades)[1].Seller)
	assert.Equal(t, int64(2), (*trades)[1].Qty)

	assert.Equal(t, map[float64]int64{10.0: 2}, depthSizes(m, Sell))
	assertMarketInvariants(t, m)
}

func TestSweepFillsBetterLevelFirst(t *testing.T) {
	m, trades := newTestMarket()

	mustPlace(t, m, "u1", Sell, 10.0, 2)
	mustPlace(t, m, "u1", Sell, 10.1, 3)
	mustPlace(t, m, "u2", Buy, 10.1, 4)

	require.Len(t, *trades, 2)
	assert.Equal(t, 10.0, (*trades)[0].Price, "better level fills fully first")
	assert.Equal(t, int64(2), (*trades)[0].Qty)
	assert.Equal(t, 10.1, (*trades)[1].Price, "fill price is the maker's, not the aggressor's")
	assert.Equal(t, int64(2), (*trades)[1].Qty)

	assert.Equal(t, map[float64]int64{10.1: 1}, depthSizes(m, Sell))
	assertMarketInvariants(t, m)
}

func TestPositionLimitRejectsBeforeAnyMutation(t *testing.T) {
	var nextID uint64
	m := NewMarket("A", 0.1, 5, func() uint64 {
		nextID++
		return nextID
	})

	// Bring u2 to +3, with more offered behind.
	mustPlace(t, m, "u1", Sell, 10.0, 3)
	mustPlace(t, m, "u2", Buy, 10.0, 3)
	mustPlace(t, m, "u3", Sell, 10.0, 2)

	before := depthSizes(m, Sell)
	idsBefore := nextID

	_, err := m.PlaceLimit("u2", Buy, 10.0, 5)
	assert.ErrorIs(t, err, ErrPositionLimit)

	assert.Equal(t, before, depthSizes(m, Sell), "rejected order must not touch the book")
	assert.Equal(t, idsBefore, nextID, "rejected order must not consume an id")
	assert.Equal(t, int64(3), m.Position("u2").Qty)
	assertMarketInvariants(t, m)
}

func TestTakeStopsAtPositionCap(t *testing.T) {
	var nextID uint64
	m := NewMarket("A", 0.1, 10, func() uint64 {
		nextID++
		return nextID
	})

	// Bring u2 to +3, then stack 17 on offer across two sellers.
	mustPlace(t, m, "u1", Sell, 10.0, 3)
	mustPlace(t, m, "u2", Buy, 10.0, 3)
	mustPlace(t, m, "u1", Sell, 10.0, 7)
	mustPlace(t, m, "u3", Sell, 10.0, 10)

	filled := m.TakeAtPrice("u2", Buy, 10.0, 10)

	assert.Equal(t, int64(7), filled, "fills stop once the taker lands on the cap")
	assert.Equal(t, int64(10), m.Position("u2").Qty)
	assert.Equal(t, map[float64]int64{10.0: 10}, depthSizes(m, Sell))
	assertMarketInvariants(t, m)
}

func TestClickTakeBoundedToOneLevel(t *testing.T) {
	m, trades := newTestMarket()

	mustPlace(t, m, "u1", Sell, 10.0, 3)
	mustPlace(t, m, "u1", Sell, 10.1, 5)

	filled := m.TakeAtPrice("u2", Buy, 10.0, 5)

	assert.Equal(t, int64(3), filled)
	require.Len(t, *trades, 1)
	assert.Equal(t, 10.0, (*trades)[0].Price)
	assert.Equal(t, int64(3), m.Position("u2").Qty)
	assert.Equal(t, map[float64]int64{10.1: 5}, depthSizes(m, Sell), "other levels are never touched")
	assertMarketInvariants(t, m)
}

func TestTakeAtMissingLevelFillsNothing(t *testing.T) {
	m, trades := newTestMarket()
	mustPlace(t, m, "u1", Sell, 10.1, 5)

	assert.Equal(t, int64(0), m.TakeAtPrice("u2", Buy, 10.0, 5))
	assert.Empty(t, *trades)
}

func TestPlacementSnapsToTick(t *testing.T) {
	m, _ := newTestMarket()

	mustPlace(t, m, "u1", Buy, 10.04, 5)

	bid, ok := m.BestBid()
	assert.True(t, ok)
	assert.Equal(t, 10.0, bid)
	assertMarketInvariants(t, m)
}

func TestSnappedPricesCross(t *testing.T) {
	m, trades := newTestMarket()

	mustPlace(t, m, "u1", Sell, 9.97, 5) // rests at 10.0
	mustPlace(t, m, "u2", Buy, 10.02, 5) // snaps to 10.0 and crosses

	require.Len(t, *trades, 1)
	assert.Equal(t, 10.0, (*trades)[0].Price)
}

func TestCancelRemovesAllOwnOrdersAtPrice(t *testing.T) {
	m, _ := newTestMarket()

	mustPlace(t, m, "u1", Buy, 9.9, 5)
	mustPlace(t, m, "u1", Buy, 9.9, 3)

	assert.Equal(t, 2, m.CancelAtPrice("u1", Buy, 9.9))
	assert.Equal(t, 0, m.Book().Levels(Buy).Len())
	assert.Equal(t, 0, m.CancelAtPrice("u1", Buy, 9.9))

	// Cancellation never touches the ledger.
	assert.Equal(t, Position{}, m.Position("u1"))
}

func TestSettleClosesMarket(t *testing.T) {
	m, _ := newTestMarket()

	px := m.Settle(10.04)
	assert.Equal(t, 10.0, px, "settlement price is snapped")
	assert.False(t, m.Open())

	settlement, ok := m.Settlement()
	assert.True(t, ok)
	assert.Equal(t, 10.0, settlement)

	// A settled market cannot be reopened.
	m.SetOpen(true)
	assert.False(t, m.Open())
}

func TestImpliedPx(t *testing.T) {
	m, _ := newTestMarket()
	assert.Equal(t, 0.0, m.ImpliedPx(), "empty book marks at zero")

	mustPlace(t, m, "u1", Buy, 9.9, 5)
	mustPlace(t, m, "u2", Sell, 10.1, 5)
	assert.Equal(t, 10.0, m.ImpliedPx(), "mid when unsettled")

	m.Settle(12.0)
	assert.Equal(t, 12.0, m.ImpliedPx(), "settlement takes precedence")
}

func TestUserStatsAverages(t *testing.T) {
	m, _ := newTestMarket()

	mustPlace(t, m, "u1", Sell, 10.0, 2)
	mustPlace(t, m, "u1", Sell, 10.2, 2)
	mustPlace(t, m, "u2", Buy, 10.2, 4)

	stats := m.Stats("u2")
	assert.Equal(t, int64(4), stats.BuyVol)
	assert.InDelta(t, 10.1, stats.AvgBuy(), 1e-9)
	assert.Equal(t, 0.0, stats.AvgSell(), "no sells yet")

	seller := m.Stats("u1")
	assert.Equal(t, int64(4), seller.SellVol)
	assert.InDelta(t, 10.1, seller.AvgSell(), 1e-9)
}

func TestDepthAttributesViewerSize(t *testing.T) {
	m, _ := newTestMarket()

	mustPlace(t, m, "u1", Buy, 9.9, 5)
	mustPlace(t, m, "u2", Buy, 9.9, 7)

	levels := m.Depth(Buy, 200, "u1")
	require.Len(t, levels, 1)
	assert.Equal(t, int64(12), levels[0].Size)
	assert.Equal(t, int64(5), levels[0].My)
}

func TestTapeKeepsMostRecent(t *testing.T) {
	m, _ := newTestMarket()

	for i := 0; i < 3; i++ {
		mustPlace(t, m, "u1", Sell, 10.0, 1)
		mustPlace(t, m, "u2", Buy, 10.0, 1)
	}

	tape := m.Tape(2)
	require.Len(t, tape, 2)
	assert.Equal(t, int64(1), tape[0].Qty)
}

func TestShortSellerWithinSymmetricLimit(t *testing.T) {
	var nextID uint64
	m := NewMarket("A", 0.1, 5, func() uint64 {
		nextID++
		return nextID
	})

	mustPlace(t, m, "u2", Buy, 10.0, 5)
	mustPlace(t, m, "u1", Sell, 10.0, 5)
	assert.Equal(t, int64(-5), m.Position("u1").Qty)

	// One more contract would breach the symmetric cap.
	_, err := m.PlaceLimit("u1", Sell, 10.0, 1)
	assert.ErrorIs(t, err, ErrPositionLimit)
	assertMarketInvariants(t, m)
}
