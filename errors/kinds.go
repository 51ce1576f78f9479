package errors

import crdb "github.com/cockroachdb/errors"

// Kind classifies an error the way the continuous query cache reports failures
// to callers. Kinds are attached with WithDomain so a handler several layers
// up the stack can recover the classification with Is/As-style inspection via
// KindOf, without the caller needing to know which constructor produced it.
type Kind string

const (
	// KindInvalidArgument covers a null where non-null is required, a write
	// that fails check_entry, or an unrecognized state code.
	KindInvalidArgument Kind = "invalid_argument"
	// KindInvalidState covers an operation attempted in the wrong state: a
	// write on a read-only view, a reconnect attempt that isn't allowed, a
	// recursive sync, or an illegal state transition.
	KindInvalidState Kind = "invalid_state"
	// KindUnsupported covers truncate against a backing cache that doesn't
	// support it, or mutation of an immutable view.
	KindUnsupported Kind = "unsupported_operation"
	// KindTransport covers errors raised by the remote-cache façade itself.
	KindTransport Kind = "transport"
	// KindConcurrentModification covers local-store iterators observing a
	// mutation mid-iteration.
	KindConcurrentModification Kind = "concurrent_modification"
)

func domainOf(k Kind) crdb.Domain {
	return crdb.NamedDomain(string(k))
}

// InvalidArgument builds a KindInvalidArgument error.
func InvalidArgument(format string, args ...interface{}) error {
	return crdb.WithDomain(crdb.NewWithDepthf(1, format, args...), domainOf(KindInvalidArgument))
}

// InvalidState builds a KindInvalidState error.
func InvalidState(format string, args ...interface{}) error {
	return crdb.WithDomain(crdb.NewWithDepthf(1, format, args...), domainOf(KindInvalidState))
}

// Unsupported builds a KindUnsupported error.
func Unsupported(format string, args ...interface{}) error {
	return crdb.WithDomain(crdb.NewWithDepthf(1, format, args...), domainOf(KindUnsupported))
}

// Transport wraps an error raised by the remote-cache façade, tagging it so
// callers can distinguish a backend failure from a local policy violation.
func Transport(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return crdb.WithDomain(crdb.Wrapf(err, format, args...), domainOf(KindTransport))
}

// ConcurrentModification builds a KindConcurrentModification error, raised by
// local-store iterators, never by event fan-out into registered listeners.
func ConcurrentModification(format string, args ...interface{}) error {
	return crdb.WithDomain(crdb.NewWithDepthf(1, format, args...), domainOf(KindConcurrentModification))
}

// allKinds enumerates every Kind this package mints, for KindOf's domain
// lookup below. crdb.NamedDomain formats its argument rather than storing it
// verbatim, so recovering a Kind from an error requires comparing domains,
// not restringifying crdb.GetDomain's result.
var allKinds = []Kind{
	KindInvalidArgument,
	KindInvalidState,
	KindUnsupported,
	KindTransport,
	KindConcurrentModification,
}

// KindOf recovers the Kind a gridcache error was constructed with, and
// reports false for errors that never passed through this package.
func KindOf(err error) (Kind, bool) {
	d := crdb.GetDomain(err)
	if d == crdb.NoDomain {
		return "", false
	}
	for _, k := range allKinds {
		if d == domainOf(k) {
			return k, true
		}
	}
	return "", false
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}
