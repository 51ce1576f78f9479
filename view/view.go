// Package view provides the fluent constructor for a continuous query cache
// (spec.md §6's "view builder surface"): collect a filter, an optional
// initial listener, an optional transformer, and a cache mode, then
// materialize a live, synchronizing cqc.CQC with Build.
package view

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/gridcache/cqc"
	"github.com/teranos/gridcache/filter"
	"github.com/teranos/gridcache/listener"
	"github.com/teranos/gridcache/remotecache"
)

// Builder accumulates a continuous query cache's configuration. The zero
// value, via New, defaults to filter.Always and key-only mode, matching
// spec.md §6.
type Builder struct {
	remote       remotecache.Cache
	filter       filter.Filter
	initial      listener.MapListener
	initialLite  bool
	transformer  filter.ValueExtractor
	cacheValues  bool
	cacheValSet  bool
	readOnly     bool
	reconnect    time.Duration
	nameFn       func() string
	logger       *zap.SugaredLogger
}

// New starts a Builder over remote. Call Filter/Listener/Map/Keys/Values/
// ReadOnly/ReconnectInterval in any order, then Build.
func New(remote remotecache.Cache) *Builder {
	return &Builder{remote: remote}
}

// Filter sets the view's predicate. Unset (or nil) defaults to
// filter.Always, mirroring the whole backing cache.
func (b *Builder) Filter(f filter.Filter) *Builder {
	b.filter = f
	return b
}

// Listener registers l to receive initial-population events as soon as the
// CQC finishes its first synchronization, in addition to whatever events it
// receives afterward as an ordinary filter listener.
func (b *Builder) Listener(l listener.MapListener) *Builder {
	b.initial = l
	return b
}

// LiteListener is Listener, but the listener is registered lite (old/new
// elided when no other standard subscriber needs them).
func (b *Builder) LiteListener(l listener.MapListener) *Builder {
	b.initial = l
	b.initialLite = true
	return b
}

// Map installs a transformer, forcing read-only and cached-values mode
// (spec.md §6).
func (b *Builder) Map(extractor filter.ValueExtractor) *Builder {
	b.transformer = extractor
	b.cacheValues = true
	b.cacheValSet = true
	b.readOnly = true
	return b
}

// Keys selects key-only mode. Mutually exclusive with Values; last call
// wins.
func (b *Builder) Keys() *Builder {
	b.cacheValues = false
	b.cacheValSet = true
	return b
}

// Values selects cached-values mode. Mutually exclusive with Keys; last call
// wins.
func (b *Builder) Values() *Builder {
	b.cacheValues = true
	b.cacheValSet = true
	return b
}

// ReadOnly latches the built CQC read-only from construction.
func (b *Builder) ReadOnly() *Builder {
	b.readOnly = true
	return b
}

// ReconnectInterval sets the post-disconnect stale-read window.
func (b *Builder) ReconnectInterval(d time.Duration) *Builder {
	b.reconnect = d
	return b
}

// CacheName overrides the built CQC's display name.
func (b *Builder) CacheName(f func() string) *Builder {
	b.nameFn = f
	return b
}

// Logger attaches a structured logger to the built CQC.
func (b *Builder) Logger(logger *zap.SugaredLogger) *Builder {
	b.logger = logger
	return b
}

// Build materializes and synchronizes the configured CQC. If a Listener was
// set, it is registered before the first synchronization completes so it
// receives the initial-population events spec.md §8's S6 scenario exercises.
func (b *Builder) Build(ctx context.Context) (*cqc.CQC, error) {
	opts := []cqc.Option{cqc.WithCacheValues(b.cacheValues)}
	if b.readOnly {
		opts = append(opts, cqc.WithReadOnly())
	}
	if b.transformer != nil {
		opts = append(opts, cqc.WithTransformer(b.transformer))
	}
	if b.nameFn != nil {
		opts = append(opts, cqc.WithCacheNameSupplier(b.nameFn))
	}
	if b.reconnect != 0 {
		opts = append(opts, cqc.WithReconnectInterval(b.reconnect))
	}
	if b.logger != nil {
		opts = append(opts, cqc.WithLogger(b.logger))
	}
	if b.initial != nil {
		opts = append(opts, cqc.WithInitialListener(b.initial, b.initialLite))
	}

	return cqc.New(ctx, b.remote, b.filter, opts...)
}
