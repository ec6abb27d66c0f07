package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedgerLazyCreation(t *testing.T) {
	ledger := NewLedger()

	assert.Equal(t, Position{}, ledger.Peek("u1"), "peek does not create")

	pos := ledger.Get("u1")
	pos.Qty = 3
	assert.Equal(t, int64(3), ledger.Peek("u1").Qty, "get returns the live entry")
}

func TestLedgerApplyIsZeroSum(t *testing.T) {
	ledger := NewLedger()
	ledger.Apply("buyer", "seller", 10.0, 5)

	assert.Equal(t, int64(5), ledger.Peek("buyer").Qty)
	assert.InDelta(t, -50.0, ledger.Peek("buyer").Cash, 1e-9)
	assert.Equal(t, int64(-5), ledger.Peek("seller").Qty)
	assert.InDelta(t, 50.0, ledger.Peek("seller").Cash, 1e-9)

	var sumQty int64
	var sumCash float64
	ledger.Each(func(_ string, pos Position) {
		sumQty += pos.Qty
		sumCash += pos.Cash
	})
	assert.Equal(t, int64(0), sumQty)
	assert.InDelta(t, 0, sumCash, 1e-9)
}

func TestWithinLimitSymmetric(t *testing.T) {
	ledger := NewLedger()
	ledger.Get("u1").Qty = 3

	assert.True(t, ledger.WithinLimit("u1", Buy, 2, 5))
	assert.False(t, ledger.WithinLimit("u1", Buy, 3, 5))
	assert.True(t, ledger.WithinLimit("u1", Sell, 8, 5), "selling through zero to -5 is allowed")
	assert.False(t, ledger.WithinLimit("u1", Sell, 9, 5))
}

func TestHeadroom(t *testing.T) {
	ledger := NewLedger()
	ledger.Get("u1").Qty = 3

	assert.Equal(t, int64(2), ledger.Headroom("u1", Buy, 5))
	assert.Equal(t, int64(8), ledger.Headroom("u1", Sell, 5))

	ledger.Get("u2").Qty = -5
	assert.Equal(t, int64(10), ledger.Headroom("u2", Buy, 5))
	assert.Equal(t, int64(0), ledger.Headroom("u2", Sell, 5))
}
