package telemetry

import (
	"fmt"
)

// API is where components report what happens to them. Production code logs through
// SlogAPI, tests assert on TestAPI.
//
// Report ids name the component and operation, lowercase and dot separated, like
// "resolver.id-from-ean". Details go in params, not in the id.
type API interface {
	// ReportBroken reports a failure that needs someone to look at it.
	ReportBroken(id string, params ...any)
	// ReportWarning reports a failure that is retried or otherwise recovered from.
	ReportWarning(id string, params ...any)
	ReportDebug(msg string, params ...any)
	// ReportCount reports a gauge, the latest count replaces the previous one.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a namespace, usually the package name.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) scope(id string) string {
	return fmt.Sprintf("%s: %s", s.namespace, id)
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.scope(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.scope(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.scope(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.scope(id), count)
}
