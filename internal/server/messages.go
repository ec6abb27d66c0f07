package server

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"openoutcry/internal/engine"
	"openoutcry/internal/game"
)

// Command types accepted on the wire.
const (
	CmdAdminCreateGame   = "admin_create_game"
	CmdPlayerJoin        = "player_join"
	CmdAdminToggleMarket = "admin_toggle_market"
	CmdAdminToggleAll    = "admin_toggle_all"
	CmdAdminSettle       = "admin_settle"
	CmdAdminSettleAll    = "admin_settle_all"
	CmdAdminAddEvent     = "admin_add_event"
	CmdPlaceOrder        = "place_order"
	CmdCancelAtPrice     = "cancel_at_price"
	CmdClickTrade        = "click_trade"
)

// Command is the inbound message envelope. One flat shape covers every
// command type; unused fields stay at their zero values.
type Command struct {
	Type          string             `json:"type"`
	Code          string             `json:"code,omitempty"`
	AdminPassword string             `json:"adminPassword,omitempty"`
	Markets       []MarketDefPayload `json:"markets,omitempty"`
	Name          string             `json:"name,omitempty"`
	Symbol        string             `json:"symbol,omitempty"`
	Side          string             `json:"side,omitempty"`
	Price         float64            `json:"price,omitempty"`
	Qty           float64            `json:"qty,omitempty"`
	MaxQty        float64            `json:"maxQty,omitempty"`
	Open          *bool              `json:"open,omitempty"`
	Text          string             `json:"text,omitempty"`
	PriceMap      map[string]float64 `json:"priceMap,omitempty"`
}

// MarketDefPayload is one requested instrument in admin_create_game.
type MarketDefPayload struct {
	Symbol   string  `json:"symbol"`
	TickSize float64 `json:"tickSize,omitempty"`
	PosLimit float64 `json:"posLimit,omitempty"`
}

// Outbound message shapes.

type MarketMetaJSON struct {
	Symbol     string   `json:"symbol"`
	Open       bool     `json:"open"`
	Settlement *float64 `json:"settlement"`
	PosLimit   int64    `json:"posLimit"`
	ClickSize  int64    `json:"clickSize"`
	TickSize   float64  `json:"tickSize"`
	BestBid    *float64 `json:"bestBid"`
	BestAsk    *float64 `json:"bestAsk"`
}

type AdminAck struct {
	Type    string           `json:"type"`
	OK      bool             `json:"ok"`
	Error   string           `json:"error,omitempty"`
	Code    string           `json:"code,omitempty"`
	Markets []MarketMetaJSON `json:"markets,omitempty"`
}

type JoinAck struct {
	Type    string           `json:"type"`
	OK      bool             `json:"ok"`
	Error   string           `json:"error,omitempty"`
	Code    string           `json:"code,omitempty"`
	Name    string           `json:"name,omitempty"`
	Markets []MarketMetaJSON `json:"markets,omitempty"`
}

type OrderReject struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

type MarketsMeta struct {
	Type    string           `json:"type"`
	Markets []MarketMetaJSON `json:"markets"`
}

type TradeMsg struct {
	Type   string  `json:"type"`
	TS     int64   `json:"ts"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Qty    int64   `json:"qty"`
}

type EventMsg struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
	Text string `json:"text"`
}

type EventJSON struct {
	TS   int64  `json:"ts"`
	Text string `json:"text"`
}

type EventsMsg struct {
	Type   string      `json:"type"`
	Events []EventJSON `json:"events"`
}

type LevelJSON struct {
	Price float64 `json:"price"`
	Size  int64   `json:"size"`
	My    int64   `json:"my"`
}

type BookSnapshot struct {
	Type   string      `json:"type"`
	Symbol string      `json:"symbol"`
	Bids   []LevelJSON `json:"bids"`
	Asks   []LevelJSON `json:"asks"`
}

type PositionMsg struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	Qty    int64   `json:"qty"`
	Cash   float64 `json:"cash"`
	Name   string  `json:"name"`
}

type UserSummary struct {
	Type     string  `json:"type"`
	Symbol   string  `json:"symbol"`
	Position int64   `json:"position"`
	AvgBuy   float64 `json:"avgBuy"`
	AvgSell  float64 `json:"avgSell"`
	BuyVol   int64   `json:"buyVol"`
	SellVol  int64   `json:"sellVol"`
}

type PnLImplied struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

func metaJSON(meta []game.MarketMeta) []MarketMetaJSON {
	out := make([]MarketMetaJSON, len(meta))
	for i, m := range meta {
		out[i] = MarketMetaJSON{
			Symbol:     m.Symbol,
			Open:       m.Open,
			Settlement: m.Settlement,
			PosLimit:   m.PosLimit,
			ClickSize:  m.ClickSize,
			TickSize:   m.TickSize,
			BestBid:    m.BestBid,
			BestAsk:    m.BestAsk,
		}
	}
	return out
}

func levelsJSON(levels []engine.DepthLevel) []LevelJSON {
	out := make([]LevelJSON, len(levels))
	for i, l := range levels {
		out[i] = LevelJSON{Price: l.Price, Size: l.Size, My: l.My}
	}
	return out
}

func tradeMsg(t engine.Trade) TradeMsg {
	return TradeMsg{
		Type:   "trade",
		TS:     t.Timestamp.UnixMilli(),
		Symbol: t.Symbol,
		Price:  t.Price,
		Qty:    t.Qty,
	}
}

func eventMsg(ev game.Event) EventMsg {
	return EventMsg{Type: "event", TS: ev.Timestamp.UnixMilli(), Text: ev.Text}
}

func eventsJSON(events []game.Event) []EventJSON {
	out := make([]EventJSON, len(events))
	for i, ev := range events {
		out[i] = EventJSON{TS: ev.Timestamp.UnixMilli(), Text: ev.Text}
	}
	return out
}

// encode marshals an outbound message, returning nil on failure. Outbound
// shapes are plain structs, so failure here is a programming error.
func encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal outbound message")
		return nil
	}
	return data
}
