// Package runtime manages the pool of embedded Lua interpreter states the
// engine runs test files in, built on github.com/yuin/gopher-lua. It
// generalizes the teacher's connection-pool shape (acquire, use, release,
// with a fixed ceiling and a Close that drains everything) from pgconn
// handles to *lua.LState values, since gopher-lua states are no more
// shareable across goroutines than a database connection is.
package runtime

import (
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/cybertec-postgresql/covlua/internal/logger"
)

// Opener prepares a freshly-created *lua.LState before it enters the
// pool: installing the coverage tracker's globals, the Assertion Hook and
// the Module-Load Interceptor's `require` replacement. Supplied by the
// pool's owner (internal/coverage's Controller), so this package stays
// free of a dependency on the tracker/loader.
type Opener func(*lua.LState) error

// StatePool hands out *lua.LState values one at a time; gopher-lua states
// are not safe for concurrent use, so every Lua call path in the engine
// (including parallel test files) must acquire one first. Checkouts
// beyond max block until a state is returned, the same ceiling-plus-wait
// contract pgxpool.Pool.Acquire gives callers of a connection pool.
type StatePool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	idle   []*lua.LState
	opener Opener
	max    int
	count  int
}

// NewStatePool creates a pool that opens states lazily, up to max
// concurrently checked out, running opener once per newly-created state.
func NewStatePool(max int, opener Opener) *StatePool {
	if max <= 0 {
		max = 1
	}
	p := &StatePool{opener: opener, max: max}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Get returns an idle state, creates one if the pool has not yet reached
// its ceiling, or blocks until a state is returned if it has. Callers
// must call Put (or Discard, on an error that may have left the state
// corrupted) when done.
func (p *StatePool) Get() (*lua.LState, error) {
	p.mu.Lock()
	for len(p.idle) == 0 && p.count >= p.max {
		p.cond.Wait()
	}
	if n := len(p.idle); n > 0 {
		l := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return l, nil
	}
	p.count++
	p.mu.Unlock()

	l := lua.NewState()
	if p.opener != nil {
		if err := p.opener(l); err != nil {
			l.Close()
			p.mu.Lock()
			p.count--
			p.cond.Signal()
			p.mu.Unlock()
			return nil, err
		}
	}
	return l, nil
}

// Put returns a state to the idle list for reuse.
func (p *StatePool) Put(l *lua.LState) {
	if l == nil {
		return
	}
	p.mu.Lock()
	p.idle = append(p.idle, l)
	p.cond.Signal()
	p.mu.Unlock()
}

// Discard closes a state instead of returning it to the pool, used when
// the caller suspects the state's global environment was left
// inconsistent by a panic or an os.exit() call from the script under
// test.
func (p *StatePool) Discard(l *lua.LState) {
	if l == nil {
		return
	}
	l.Close()
	p.mu.Lock()
	p.count--
	p.cond.Signal()
	p.mu.Unlock()
}

// Close tears down every idle state. States checked out when Close runs
// are not closed by it; a later Put returns them to the idle list.
// Callers should stop issuing Get after calling Close.
func (p *StatePool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, l := range idle {
		l.Close()
	}
	logger.Debug("runtime: state pool closed (%d states)", len(idle))
}

// Len reports how many states are currently idle in the pool.
func (p *StatePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
