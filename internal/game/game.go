package game

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"openoutcry/internal/engine"
)

const (
	// MaxMarkets caps the instruments a single session may carry.
	MaxMarkets = 5
	// EventDepth bounds the session event ring.
	EventDepth = 500

	defaultTickSize = 0.1
	defaultPosLimit = 100

	maxSymbolLen = 16
	maxNameLen   = 24
	maxEventLen  = 500
)

// Role tags a connection within a session.
type Role int

const (
	RolePlayer Role = iota
	RoleAdmin
)

// Event is one line of the session log.
type Event struct {
	Timestamp time.Time
	Text      string
}

// MarketDef describes one instrument at session creation. Zero values take
// the defaults.
type MarketDef struct {
	Symbol   string
	TickSize float64
	PosLimit int64
}

// Game is one session: up to MaxMarkets markets, the connections viewing
// them, and the event log. All session state is guarded by mu; every command
// runs entirely under it, so matching is atomic per session while distinct
// sessions execute concurrently.
type Game struct {
	mu sync.Mutex

	code      string
	markets   map[string]*engine.Market
	symbols   []string // creation order, for stable iteration
	usernames map[string]string
	roles     map[string]Role
	events    *engine.Ring[Event]

	nextOrderID uint64
	lastTrades  []engine.Trade
}

func newGame(code string, defs []MarketDef) *Game {
	g := &Game{
		code:      code,
		markets:   make(map[string]*engine.Market),
		usernames: make(map[string]string),
		roles:     make(map[string]Role),
		events:    engine.NewRing[Event](EventDepth),
	}

	if len(defs) > MaxMarkets {
		defs = defs[:MaxMarkets]
	}
	for _, def := range defs {
		symbol := SanitizeSymbol(def.Symbol)
		if _, exists := g.markets[symbol]; exists {
			continue
		}
		tick := def.TickSize
		if tick <= 0 {
			tick = defaultTickSize
		}
		posLimit := def.PosLimit
		if posLimit <= 0 {
			posLimit = defaultPosLimit
		}
		market := engine.NewMarket(symbol, tick, posLimit, g.allocOrderID)
		market.SetTradeHook(func(t engine.Trade) {
			g.lastTrades = append(g.lastTrades, t)
		})
		g.markets[symbol] = market
		g.symbols = append(g.symbols, symbol)
	}
	return g
}

// allocOrderID hands out session-local monotonic order ids. Only called from
// market code already holding g.mu.
func (g *Game) allocOrderID() uint64 {
	g.nextOrderID++
	return g.nextOrderID
}

func (g *Game) Code() string {
	return g.code
}

// SanitizeSymbol uppercases and truncates a requested symbol, defaulting to
// "A" when empty.
func SanitizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if len(s) > maxSymbolLen {
		s = s[:maxSymbolLen]
	}
	if s == "" {
		s = "A"
	}
	return s
}

// SanitizeName truncates a display name, defaulting to a connection-derived
// placeholder when empty.
func SanitizeName(name, connID string) string {
	n := strings.TrimSpace(name)
	if len(n) > maxNameLen {
		n = n[:maxNameLen]
	}
	if n == "" {
		short := connID
		if len(short) > 4 {
			short = short[:4]
		}
		n = "Player-" + short
	}
	return n
}

// MarkAdmin tags the connection as this session's admin.
func (g *Game) MarkAdmin(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roles[connID] = RoleAdmin
	g.usernames[connID] = "Admin"
}

// Join registers a player connection and returns its sanitized display name
// along with the logged join event.
func (g *Game) Join(connID, name string) (string, Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	display := SanitizeName(name, connID)
	g.usernames[connID] = display
	g.roles[connID] = RolePlayer
	ev := g.appendEvent(fmt.Sprintf("%s joined", display))
	return display, ev
}

// Leave drops the connection's name and role. Resting orders stay in the
// book and the ledger entry survives under the defunct connection id.
func (g *Game) Leave(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.usernames, connID)
	delete(g.roles, connID)
}

// Role returns the connection's role, false if it never joined.
func (g *Game) Role(connID string) (Role, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	role, ok := g.roles[connID]
	return role, ok
}

// Members lists the connected viewers of this session.
func (g *Game) Members() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.usernames))
	for connID := range g.usernames {
		out = append(out, connID)
	}
	return out
}

// appendEvent pushes a log line; callers hold g.mu.
func (g *Game) appendEvent(text string) Event {
	if len(text) > maxEventLen {
		text = text[:maxEventLen]
	}
	ev := Event{Timestamp: time.Now(), Text: text}
	g.events.Push(ev)
	return ev
}

// AddEvent appends an admin announcement to the session log.
func (g *Game) AddEvent(text string) Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.appendEvent(text)
}

// takeTrades drains the fills collected by the market trade hooks during the
// current command; callers hold g.mu.
func (g *Game) takeTrades() []engine.Trade {
	trades := g.lastTrades
	g.lastTrades = nil
	return trades
}
