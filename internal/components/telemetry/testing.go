package telemetry

import (
	"strings"
	"sync"
)

type ReportKind int

const (
	KindBroken ReportKind = iota
	KindWarning
	KindDebug
	KindCount
)

type Report struct {
	Kind   ReportKind
	ID     string
	Params []any
	Count  int64
}

// TestAPI records every report so tests can assert on what a component emitted.
type TestAPI struct {
	mu      sync.Mutex
	reports []Report
}

func NewTestAPI() *TestAPI {
	return &TestAPI{}
}

func (t *TestAPI) push(r Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reports = append(t.reports, r)
}

func (t *TestAPI) ReportBroken(id string, params ...any) {
	t.push(Report{Kind: KindBroken, ID: id, Params: params})
}

func (t *TestAPI) ReportWarning(id string, params ...any) {
	t.push(Report{Kind: KindWarning, ID: id, Params: params})
}

func (t *TestAPI) ReportDebug(msg string, params ...any) {
	t.push(Report{Kind: KindDebug, ID: msg, Params: params})
}

func (t *TestAPI) ReportCount(id string, count int64) {
	t.push(Report{Kind: KindCount, ID: id, Count: count})
}

// Reports returns the recorded reports of the given kind whose id ends with suffix.
func (t *TestAPI) Reports(kind ReportKind, suffix string) []Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Report
	for _, r := range t.reports {
		if r.Kind == kind && strings.HasSuffix(r.ID, suffix) {
			out = append(out, r)
		}
	}
	return out
}
