package server

import "openoutcry/internal/game"

// fanout recomputes and pushes every viewer's personalized bundle. Each
// viewer's state is computed atomically against the session, so a bundle
// always reflects every trade that viewer has already received.
func (d *Dispatcher) fanout(g *game.Game) {
	for _, member := range g.Members() {
		vs := g.ViewerState(member)
		for _, payload := range bundlePayloads(vs) {
			d.hub.Send(member, payload)
		}
	}
}

// bundlePayloads renders one viewer's state as the wire message sequence:
// markets_meta, events, then per market book_snapshot / position /
// user_summary, and finally the implied PnL across all markets.
func bundlePayloads(vs game.ViewerState) [][]byte {
	payloads := make([][]byte, 0, 2+3*len(vs.Markets)+1)

	payloads = append(payloads,
		encode(MarketsMeta{Type: "markets_meta", Markets: metaJSON(vs.Meta)}),
		encode(EventsMsg{Type: "events", Events: eventsJSON(vs.Events)}),
	)

	for _, mv := range vs.Markets {
		payloads = append(payloads,
			encode(BookSnapshot{
				Type:   "book_snapshot",
				Symbol: mv.Symbol,
				Bids:   levelsJSON(mv.Bids),
				Asks:   levelsJSON(mv.Asks),
			}),
			encode(PositionMsg{
				Type:   "position",
				Symbol: mv.Symbol,
				Qty:    mv.Position.Qty,
				Cash:   mv.Position.Cash,
				Name:   vs.Name,
			}),
			encode(UserSummary{
				Type:     "user_summary",
				Symbol:   mv.Symbol,
				Position: mv.Position.Qty,
				AvgBuy:   mv.Stats.AvgBuy(),
				AvgSell:  mv.Stats.AvgSell(),
				BuyVol:   mv.Stats.BuyVol,
				SellVol:  mv.Stats.SellVol,
			}),
		)
	}

	payloads = append(payloads, encode(PnLImplied{Type: "pnl_implied", Value: vs.PnL}))
	return payloads
}
