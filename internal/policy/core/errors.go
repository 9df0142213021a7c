package core

import "errors"

// Error kinds from spec §7. Only Open/Close ever return these; the hot
// path (Lookup, Alias, RewriteV4, RewriteV6) never surfaces an error —
// every step degrades to its documented no-match fallback instead.
var (
	// ErrConfigAbsent is not actually returned: no store path configured is
	// a successful Open whose Core answers NONE to every Lookup. Open logs
	// its message as a warning and Core.Degraded then reports true.
	ErrConfigAbsent = errors.New("policycore: no store path configured, running in pass-through mode")

	// ErrStoreOpenFailed means the underlying store could not be opened at
	// all (not even the global handle). Open returns this fatally; the
	// process should not start serving.
	ErrStoreOpenFailed = errors.New("policycore: store open failed")
)

// PrepareError reports a failure to load a store-backed component at Open.
// Critical components (the exact-match bloom/store pair, the regex scan)
// make PrepareError fatal to Open; optional components (alias, rewrite.v4,
// rewrite.v6) instead disable just that subsystem and let Open continue.
type PrepareError struct {
	Component string
	Critical  bool
	Err       error
}

func (e *PrepareError) Error() string {
	if e.Critical {
		return "policycore: critical prepare failed for " + e.Component + ": " + e.Err.Error()
	}
	return "policycore: optional prepare failed for " + e.Component + ": " + e.Err.Error()
}

func (e *PrepareError) Unwrap() error { return e.Err }
