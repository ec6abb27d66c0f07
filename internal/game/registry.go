package game

import (
	"regexp"
	"sync"
)

var codePattern = regexp.MustCompile(`^\d{4}$`)

// ValidCode reports whether code is a well-formed 4-digit session code.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// Registry is the process-wide code → session map. Sessions live for the
// process lifetime; only creation and lookup touch the registry lock, all
// heavier state is guarded inside each Game.
type Registry struct {
	mu    sync.RWMutex
	games map[string]*Game
}

func NewRegistry() *Registry {
	return &Registry{games: make(map[string]*Game)}
}

// Lookup finds an existing session.
func (r *Registry) Lookup(code string) (*Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[code]
	return g, ok
}

// Create initializes the session for code, or returns the existing one:
// repeated creates for the same code are idempotent. The second return is
// true when the session was created by this call.
func (r *Registry) Create(code string, defs []MarketDef) (*Game, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.games[code]; ok {
		return g, false
	}
	g := newGame(code, defs)
	g.appendEvent("Game " + code + " created")
	r.games[code] = g
	return g, true
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}
