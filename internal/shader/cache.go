package shader

import (
	"fmt"
	"log/slog"
)

// Program is a compiled permutation owned by a Cache.
type Program interface {
	comparable
	Destroy()
}

// Compiler turns fragment source into a Program.
type Compiler[P Program] interface {
	Compile(k Key, fragment string) (P, error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc[P Program] func(k Key, fragment string) (P, error)

// Compile calls f.
func (f CompilerFunc[P]) Compile(k Key, fragment string) (P, error) {
	return f(k, fragment)
}

// CacheOption configures a Cache.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	validate bool
}

// WithValidation runs every generated module through the WGSL front-end
// before handing it to the compiler.
func WithValidation(on bool) CacheOption {
	return func(o *cacheOptions) { o.validate = on }
}

type table[P Program] struct {
	programs [Permutations]P
	present  [Permutations]bool
	built    int
	failed   int
}

func (t *table[P]) destroy() {
	for i := range t.programs {
		if t.present[i] {
			t.programs[i].Destroy()
			t.present[i] = false
		}
	}
}

// Cache holds one program per constructible permutation. The table is
// built eagerly; slots whose compilation fails stay absent.
//
// Cache is not safe for concurrent use.
type Cache[P Program] struct {
	compiler Compiler[P]
	features Features
	opts     cacheOptions
	table    *table[P]
}

// NewCache builds the full table for f.
func NewCache[P Program](c Compiler[P], f Features, opts ...CacheOption) *Cache[P] {
	cache := &Cache[P]{compiler: c, features: f}
	for _, opt := range opts {
		opt(&cache.opts)
	}
	cache.table = cache.build(f)
	return cache
}

func (c *Cache[P]) build(f Features) *table[P] {
	t := &table[P]{}
	for i := 0; i < Permutations; i++ {
		k := KeyAt(i)
		src, ok := Source(k, f)
		if !ok {
			continue
		}
		if c.opts.validate {
			if err := Validate(src); err != nil {
				slogger().Warn("shader: rejected permutation",
					slog.String("key", k.String()),
					slog.String("source", src),
					slog.String("error", err.Error()))
				t.failed++
				continue
			}
		}
		p, err := c.compiler.Compile(k, src)
		if err != nil {
			slogger().Warn("shader: failed to compile permutation",
				slog.String("key", k.String()),
				slog.String("source", src),
				slog.String("error", err.Error()))
			t.failed++
			continue
		}
		t.programs[i] = p
		t.present[i] = true
		t.built++
	}
	slogger().Debug("shader: built permutation table",
		slog.Int("built", t.built),
		slog.Int("failed", t.failed),
		slog.Bool("debug", f.Debug))
	return t
}

// Features returns the features the current table was built with.
func (c *Cache[P]) Features() Features {
	return c.features
}

// Lookup returns the program for k and whether the slot is present.
func (c *Cache[P]) Lookup(k Key) (P, bool) {
	i := k.Index()
	if c.table == nil || i < 0 || i >= Permutations || !c.table.present[i] {
		var zero P
		return zero, false
	}
	return c.table.programs[i], true
}

// Select returns the program for k. Selecting an absent slot is a
// programming error and panics.
func (c *Cache[P]) Select(k Key) P {
	p, ok := c.Lookup(k)
	if !ok {
		panic(fmt.Sprintf("shader: permutation %s is not available", k))
	}
	return p
}

// Len returns the number of present programs.
func (c *Cache[P]) Len() int {
	if c.table == nil {
		return 0
	}
	return c.table.built
}

// Failed returns how many constructible permutations failed to build.
func (c *Cache[P]) Failed() int {
	if c.table == nil {
		return 0
	}
	return c.table.failed
}

// SetDebug rebuilds the table with the debug tint on or off. The new
// table is complete before the old one is released.
func (c *Cache[P]) SetDebug(on bool) {
	if c.features.Debug == on {
		return
	}
	f := c.features
	f.Debug = on
	next := c.build(f)
	old := c.table
	c.table = next
	c.features = f
	if old != nil {
		old.destroy()
	}
}

// ToggleDebug flips the debug tint and returns the new state.
func (c *Cache[P]) ToggleDebug() bool {
	c.SetDebug(!c.features.Debug)
	return c.features.Debug
}

// Destroy releases every program.
func (c *Cache[P]) Destroy() {
	if c.table != nil {
		c.table.destroy()
		c.table = nil
	}
}

// Binder suppresses redundant program binds within a pass.
type Binder[P comparable] struct {
	current P
	bound   bool
	binds   int
	skips   int
}

// Use records p as the active program and reports whether the caller
// must issue the bind.
func (b *Binder[P]) Use(p P) bool {
	if b.bound && b.current == p {
		b.skips++
		return false
	}
	b.current = p
	b.bound = true
	b.binds++
	return true
}

// Reset forgets the active program, forcing the next Use to bind.
func (b *Binder[P]) Reset() {
	var zero P
	b.current = zero
	b.bound = false
}

// Binds returns the number of binds issued since creation.
func (b *Binder[P]) Binds() int { return b.binds }

// Skips returns the number of suppressed binds.
func (b *Binder[P]) Skips() int { return b.skips }
