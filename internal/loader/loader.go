// Package loader implements the Module-Load Interceptor spec.md §4.3
// describes: it replaces the embedded interpreter's `require` so that any
// module whose resolved file path passes the include/exclude globs is
// parsed, instrumented, and registered with the Global Store before it
// ever runs, while everything else (vendored libraries, the test
// framework itself) falls through to the interpreter's own loader
// untouched. Grounded on gopher-lua's own package/require wiring the way
// internal/runner in the teacher repo wrapped a *pgx.Conn's query path:
// one narrow interception point, original behavior preserved on the
// non-matching path.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/cybertec-postgresql/covlua/internal/cache"
	cerrors "github.com/cybertec-postgresql/covlua/internal/errors"
	"github.com/cybertec-postgresql/covlua/internal/globmatch"
	"github.com/cybertec-postgresql/covlua/internal/logger"
	"github.com/cybertec-postgresql/covlua/internal/parser"
	"github.com/cybertec-postgresql/covlua/internal/store"
	"github.com/cybertec-postgresql/covlua/internal/transform"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

// Interceptor owns the state needed to decide which modules to
// instrument and where to look for them on disk.
type Interceptor struct {
	store   *store.Store
	cache   *cache.Cache
	cfg     *luatypes.Config
	roots   []string
	mu      sync.Mutex
	installed map[*lua.LState]bool
}

// New creates an Interceptor. roots are the directories module names are
// resolved against, tried in order, mirroring Lua's own package.path
// search but scoped to the project tree rather than the full templated
// syntax (see DESIGN.md).
func New(s *store.Store, c *cache.Cache, cfg *luatypes.Config, roots []string) *Interceptor {
	return &Interceptor{store: s, cache: c, cfg: cfg, roots: roots, installed: make(map[*lua.LState]bool)}
}

// Install replaces L's global `require` with the instrumenting version,
// per spec.md P4's idempotence guarantee: installing twice on the same
// state is a no-op.
func (in *Interceptor) Install(l *lua.LState) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.installed[l] {
		return nil
	}
	orig := l.GetGlobal("require")
	l.SetGlobal("require", l.NewFunction(in.makeRequire(orig)))
	in.installed[l] = true
	return nil
}

// Uninstall restores L's original `require`.
func (in *Interceptor) Uninstall(l *lua.LState, original lua.LValue) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.installed[l] {
		return
	}
	l.SetGlobal("require", original)
	delete(in.installed, l)
}

// IsInstalled reports whether Install has run (and not been undone) on L.
func (in *Interceptor) IsInstalled(l *lua.LState) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.installed[l]
}

func (in *Interceptor) makeRequire(orig lua.LValue) lua.LGFunction {
	return func(l *lua.LState) int {
		modname := l.CheckString(1)

		loaded := packageLoaded(l)
		if v := l.GetField(loaded, modname); v != lua.LNil {
			l.Push(v)
			return 1
		}

		path, ok := in.resolve(modname)
		if !ok || !globmatch.ShouldInstrument(in.cfg.Include, in.cfg.Exclude, path) {
			return in.delegate(l, orig, modname)
		}

		result, err := in.loadInstrumented(l, path, modname)
		if err != nil {
			l.RaiseError("%s", cerrors.NewLoadError(path, err).Error())
			return 0
		}
		l.SetField(loaded, modname, result)
		l.Push(result)
		return 1
	}
}

func (in *Interceptor) delegate(l *lua.LState, orig lua.LValue, modname string) int {
	fn, ok := orig.(*lua.LFunction)
	if !ok {
		l.RaiseError("require: no loader for %q", modname)
		return 0
	}
	l.Push(fn)
	l.Push(lua.LString(modname))
	l.Call(1, 1)
	return 1
}

func packageLoaded(l *lua.LState) lua.LValue {
	pkg := l.GetGlobal("package")
	if tbl, ok := pkg.(*lua.LTable); ok {
		return l.GetField(tbl, "loaded")
	}
	return lua.LNil
}

// resolve turns a dotted module name into a file path by trying each
// root, under the prefixes "", "src/" and "lib/" in that order, with the
// conventional `name/with/dots/replaced.lua` and
// `name/with/dots/replaced/init.lua` layouts. The interpreter's
// package.path templates are not consulted.
func (in *Interceptor) resolve(modname string) (string, bool) {
	rel := strings.ReplaceAll(modname, ".", string(filepath.Separator))
	for _, root := range in.roots {
		for _, prefix := range []string{"", "src", "lib"} {
			for _, suffix := range []string{".lua", string(filepath.Separator) + "init.lua"} {
				candidate := filepath.Join(root, prefix, rel+suffix)
				if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
					return candidate, true
				}
			}
		}
	}
	return "", false
}

// LoadAndRunFile instruments (subject to the same include/exclude globs
// as require) and executes path directly, for the CLI's own top-level
// entry points -- test files `covlua run` loads itself rather than ones
// reached through a Lua `require` call. A file that doesn't match the
// globs still runs, just without instrumentation, matching spec.md's
// "files matching an exclude glob are never registered" rule applied to
// the entry point itself.
func (in *Interceptor) LoadAndRunFile(l *lua.LState, path string) (lua.LValue, error) {
	if !globmatch.ShouldInstrument(in.cfg.Include, in.cfg.Exclude, path) {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		fn, err := l.LoadString(string(src))
		if err != nil {
			return nil, fmt.Errorf("compiling %s: %w", path, err)
		}
		l.Push(fn)
		if err := l.PCall(0, 1, nil); err != nil {
			return nil, err
		}
		ret := l.Get(-1)
		l.Pop(1)
		return ret, nil
	}
	return in.loadInstrumented(l, path, path)
}

// loadInstrumented parses, transforms (or reuses a cached transform of),
// registers, compiles, and executes path as a Lua module, returning its
// module-table result.
func (in *Interceptor) loadInstrumented(l *lua.LState, path, modname string) (lua.LValue, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(strings.TrimSpace(string(src)), luatypes.InstrumentedSentinel) {
		return nil, fmt.Errorf("refusing to re-instrument already-instrumented source: %s", path)
	}

	fileID := luatypes.FileId(path)

	var entry cache.Entry
	if cached, ok := in.cache.Get(path, src); ok {
		entry = cached
	} else {
		p, err := parser.Parse(path, src)
		if err != nil {
			return nil, cerrors.NewInstrumentationError(path, err)
		}
		result, err := transform.Transform(p, fileID)
		if err != nil {
			return nil, cerrors.NewInstrumentationError(path, err)
		}
		entry = cache.Entry{
			Hash:      cache.Hash(src),
			Source:    result.Source,
			Sourcemap: result.Sourcemap,
			Functions: result.Functions,
			ExecLines: result.ExecutableLines,
			Comments:  p.Comments,
		}
		in.cache.Put(path, entry)
		logger.Debug("loader: instrumented %s (%d functions)", path, len(entry.Functions))
	}

	if !in.store.IsRegistered(fileID) {
		// FileRecord.Source keeps the ORIGINAL text (for report rendering);
		// entry.Source (the instrumented text) only ever runs through
		// l.LoadString below and is never shown to a user.
		in.store.RegisterFile(fileID, path, string(src), entry.Sourcemap)
		for _, fn := range entry.Functions {
			in.store.RegisterFunction(fileID, fn.ID, fn.Name, fn.Kind, fn.StartLine, fn.EndLine)
		}
	}

	fn, err := l.LoadString(entry.Source)
	if err != nil {
		return nil, fmt.Errorf("compiling instrumented %s: %w", path, err)
	}

	l.Push(fn)
	l.Push(lua.LString(modname))
	l.Push(lua.LString(path))
	if err := l.PCall(2, 1, nil); err != nil {
		return nil, err
	}
	ret := l.Get(-1)
	l.Pop(1)
	if ret == lua.LNil {
		ret = lua.LTrue // a module returning nothing is still cached as "loaded"
	}
	return ret, nil
}
