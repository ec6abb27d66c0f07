package server

import (
	"encoding/json"
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"openoutcry/internal/config"
	"openoutcry/internal/engine"
	"openoutcry/internal/game"
	"openoutcry/internal/metrics"
)

// Sender delivers an outbound payload to one connection.
type Sender interface {
	Send(connID string, payload []byte)
}

// Dispatcher validates inbound commands and routes them to the session
// layer. Malformed or unauthorized commands are dropped; only the error
// cases named by the protocol produce acks.
type Dispatcher struct {
	cfg      *config.Config
	registry *game.Registry
	hub      Sender

	mu       sync.Mutex
	sessions map[string]*game.Game // connID → joined session
}

func NewDispatcher(cfg *config.Config, registry *game.Registry, hub Sender) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		registry: registry,
		hub:      hub,
		sessions: make(map[string]*game.Game),
	}
}

// Handle processes one inbound frame from connID.
func (d *Dispatcher) Handle(connID string, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		log.Debug().Err(err).Str("connId", connID).Msg("dropping malformed frame")
		return
	}

	metrics.Commands.WithLabelValues(cmd.Type).Inc()

	switch cmd.Type {
	case CmdAdminCreateGame:
		d.adminCreateGame(connID, cmd)
	case CmdPlayerJoin:
		d.playerJoin(connID, cmd)
	case CmdPlaceOrder:
		d.placeOrder(connID, cmd)
	case CmdCancelAtPrice:
		d.cancelAtPrice(connID, cmd)
	case CmdClickTrade:
		d.clickTrade(connID, cmd)
	case CmdAdminToggleMarket, CmdAdminToggleAll, CmdAdminSettle, CmdAdminSettleAll, CmdAdminAddEvent:
		d.adminCommand(connID, cmd)
	default:
		log.Debug().Str("type", cmd.Type).Str("connId", connID).Msg("dropping unknown command")
	}
}

// Disconnect removes the connection from its session and refreshes the
// remaining viewers.
func (d *Dispatcher) Disconnect(connID string) {
	d.mu.Lock()
	g := d.sessions[connID]
	delete(d.sessions, connID)
	d.mu.Unlock()

	if g == nil {
		return
	}
	g.Leave(connID)
	d.fanout(g)
}

func (d *Dispatcher) setSession(connID string, g *game.Game) {
	d.mu.Lock()
	d.sessions[connID] = g
	d.mu.Unlock()
}

func (d *Dispatcher) gameFor(connID string) *game.Game {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[connID]
}

func (d *Dispatcher) adminCreateGame(connID string, cmd Command) {
	if cmd.AdminPassword != d.cfg.AdminPassword {
		d.hub.Send(connID, encode(AdminAck{Type: "admin_ack", OK: false, Error: "Bad password"}))
		return
	}
	if !game.ValidCode(cmd.Code) {
		d.hub.Send(connID, encode(AdminAck{Type: "admin_ack", OK: false, Error: "Code must be 4 digits"}))
		return
	}

	defs := make([]game.MarketDef, 0, len(cmd.Markets))
	for _, p := range cmd.Markets {
		defs = append(defs, game.MarketDef{
			Symbol:   p.Symbol,
			TickSize: p.TickSize,
			PosLimit: int64(math.Floor(p.PosLimit)),
		})
	}

	g, created := d.registry.Create(cmd.Code, defs)
	g.MarkAdmin(connID)
	d.setSession(connID, g)
	if created {
		metrics.SessionsActive.Set(float64(d.registry.Count()))
		log.Info().Str("code", cmd.Code).Msg("game created")
	}

	d.hub.Send(connID, encode(AdminAck{
		Type:    "admin_ack",
		OK:      true,
		Code:    g.Code(),
		Markets: metaJSON(g.Meta()),
	}))
	d.replayTape(connID, g)
	d.fanout(g)
}

func (d *Dispatcher) playerJoin(connID string, cmd Command) {
	g, ok := d.registry.Lookup(cmd.Code)
	if !ok {
		d.hub.Send(connID, encode(JoinAck{Type: "join_ack", OK: false, Error: "Game not found"}))
		return
	}

	name, ev := g.Join(connID, cmd.Name)
	d.setSession(connID, g)

	d.hub.Send(connID, encode(JoinAck{
		Type:    "join_ack",
		OK:      true,
		Code:    g.Code(),
		Name:    name,
		Markets: metaJSON(g.Meta()),
	}))
	d.replayTape(connID, g)
	d.broadcast(g, encode(eventMsg(ev)))
	d.fanout(g)
}

func (d *Dispatcher) placeOrder(connID string, cmd Command) {
	g := d.gameFor(connID)
	if g == nil {
		return
	}
	side, ok := engine.ParseSide(cmd.Side)
	if !ok || cmd.Price <= 0 || cmd.Qty <= 0 {
		return
	}
	qty := int64(math.Floor(cmd.Qty))
	if qty <= 0 {
		return
	}

	outcome, ok := g.PlaceOrder(connID, cmd.Symbol, side, cmd.Price, qty)
	if !ok {
		return
	}
	if outcome.Rejected {
		metrics.Rejects.WithLabelValues(outcome.Reason).Inc()
		d.hub.Send(connID, encode(OrderReject{Type: "order_reject", Symbol: cmd.Symbol, Reason: outcome.Reason}))
		return
	}

	d.broadcastTrades(g, outcome.Trades)
	d.fanout(g)
}

func (d *Dispatcher) cancelAtPrice(connID string, cmd Command) {
	g := d.gameFor(connID)
	if g == nil {
		return
	}
	side, ok := engine.ParseSide(cmd.Side)
	if !ok {
		return
	}
	if _, ok := g.CancelAtPrice(connID, cmd.Symbol, side, cmd.Price); !ok {
		return
	}
	d.fanout(g)
}

func (d *Dispatcher) clickTrade(connID string, cmd Command) {
	g := d.gameFor(connID)
	if g == nil {
		return
	}
	side, ok := engine.ParseSide(cmd.Side)
	if !ok {
		return
	}

	maxQty := int64(math.Floor(cmd.MaxQty))
	_, trades, ok := g.ClickTrade(connID, cmd.Symbol, side, cmd.Price, maxQty)
	if !ok {
		return
	}
	d.broadcastTrades(g, trades)
	d.fanout(g)
}

func (d *Dispatcher) adminCommand(connID string, cmd Command) {
	g := d.gameFor(connID)
	if g == nil {
		return
	}
	if role, ok := g.Role(connID); !ok || role != game.RoleAdmin {
		return
	}

	var events []game.Event
	switch cmd.Type {
	case CmdAdminToggleMarket:
		if cmd.Open == nil {
			return
		}
		ev, ok := g.SetMarketOpen(cmd.Symbol, *cmd.Open)
		if !ok {
			return
		}
		events = append(events, ev)
	case CmdAdminToggleAll:
		if cmd.Open == nil {
			return
		}
		events = append(events, g.SetAllOpen(*cmd.Open))
	case CmdAdminSettle:
		_, ev, ok := g.Settle(cmd.Symbol, cmd.Price)
		if !ok {
			return
		}
		events = append(events, ev)
	case CmdAdminSettleAll:
		events = g.SettleAll(cmd.PriceMap)
	case CmdAdminAddEvent:
		events = append(events, g.AddEvent(cmd.Text))
	}

	if cmd.Type != CmdAdminAddEvent {
		d.broadcast(g, encode(MarketsMeta{Type: "markets_meta", Markets: metaJSON(g.Meta())}))
	}
	for _, ev := range events {
		d.broadcast(g, encode(eventMsg(ev)))
	}
	d.fanout(g)
}

// broadcast sends one payload to every member of the session room.
func (d *Dispatcher) broadcast(g *game.Game, payload []byte) {
	for _, member := range g.Members() {
		d.hub.Send(member, payload)
	}
}

func (d *Dispatcher) broadcastTrades(g *game.Game, trades []engine.Trade) {
	for _, t := range trades {
		metrics.Trades.WithLabelValues(t.Symbol).Inc()
		d.broadcast(g, encode(tradeMsg(t)))
	}
}

// replayTape sends the recent tape to one connection so a fresh join does
// not start from an empty tape.
func (d *Dispatcher) replayTape(connID string, g *game.Game) {
	for _, trades := range g.RecentTrades(game.TapeReplay) {
		for _, t := range trades {
			d.hub.Send(connID, encode(tradeMsg(t)))
		}
	}
}
