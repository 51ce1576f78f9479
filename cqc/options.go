package cqc

import (
	"time"

	"go.uber.org/zap"

	"github.com/teranos/gridcache/filter"
	"github.com/teranos/gridcache/listener"
)

// Option configures a CQC at construction time (spec.md §4.10's
// "configurable options").
type Option func(*options)

type initialListener struct {
	listener listener.MapListener
	lite     bool
}

type options struct {
	cacheValues bool
	readOnly    bool
	transformer filter.ValueExtractor

	reconnectInterval time.Duration
	cacheNameSupplier func() string
	logger            *zap.SugaredLogger
	initial           *initialListener
}

// WithInitialListener registers l against the view's own filter before the
// first synchronization runs, so it receives the initial-population events
// the synchronization protocol's fetch step generates (spec.md §6's view
// builder "listener(l)" — an optional initial listener receiving
// initial-population events).
func WithInitialListener(l listener.MapListener, lite bool) Option {
	return func(o *options) { o.initial = &initialListener{listener: l, lite: lite} }
}

// WithCacheValues selects cached-values mode when enabled is true, or
// key-only mode when false (the default). Forced to true regardless of this
// setting once a filter listener (including WithInitialListener) or a
// non-lite key listener is registered, or once WithTransformer is used.
func WithCacheValues(enabled bool) Option {
	return func(o *options) { o.cacheValues = enabled }
}

// WithReadOnly latches the CQC into read-only mode from construction. The
// latch can also be set later with CQC.SetReadOnly(true) but, per spec.md
// §4.10, never reset to false once set.
func WithReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

// WithTransformer installs a value extractor applied to every entry before
// it reaches the local store. Forces cache_values=true and read_only=true,
// per spec.md §4.10.
func WithTransformer(t filter.ValueExtractor) Option {
	return func(o *options) {
		o.transformer = t
		o.cacheValues = true
		o.readOnly = true
	}
}

// WithReconnectInterval sets the post-disconnect window during which a stale
// local read is served without triggering a resync. Zero (the default)
// means any operation while Disconnected raises invalid-state.
func WithReconnectInterval(d time.Duration) Option {
	return func(o *options) { o.reconnectInterval = d }
}

// WithCacheNameSupplier overrides the display name the CQC reports from
// Name(), instead of delegating to the backing cache's own name.
func WithCacheNameSupplier(f func() string) Option {
	return func(o *options) { o.cacheNameSupplier = f }
}

// WithLogger attaches a structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = logger }
}
