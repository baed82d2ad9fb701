package pipeline

import (
	"context"
	"errors"
	"fmt"
	"rapportage-downloader/internal/backoff"
	"rapportage-downloader/internal/components/chrono"
	"rapportage-downloader/internal/components/telemetry"
	"rapportage-downloader/internal/scrapers/dbenergie"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, time.January, 1, 12, 0, 0, 0, chrono.Amsterdam())

var (
	e1 = dbenergie.EAN("871687120054100001")
	e2 = dbenergie.EAN("871687120054100002")
	e3 = dbenergie.EAN("871687120054100003")
)

type fakeResolver struct {
	mu sync.Mutex
	// failures is the amount of times IDFromEAN fails for an EAN before it succeeds,
	// a negative amount fails forever.
	failures map[dbenergie.EAN]int
	// expired is the amount of times IDFromEAN answers like an expired session does.
	expired    map[dbenergie.EAN]int
	// mismatches is the amount of times EANFromID answers with the wrong EAN.
	mismatches map[dbenergie.ConnectionID]int
	calls      []dbenergie.EAN
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		failures:   map[dbenergie.EAN]int{},
		expired:    map[dbenergie.EAN]int{},
		mismatches: map[dbenergie.ConnectionID]int{},
	}
}

var seedIDs = map[dbenergie.EAN]dbenergie.ConnectionID{e1: 1, e2: 2, e3: 3}

func (r *fakeResolver) IDFromEAN(_ context.Context, ean dbenergie.EAN) (dbenergie.Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ean)

	if r.expired[ean] > 0 {
		r.expired[ean]--
		return dbenergie.Resolution{}, &dbenergie.ResolveError{
			Op:  "id from ean",
			Err: &dbenergie.StatusError{Status: 401},
		}
	}
	if r.failures[ean] != 0 {
		r.failures[ean]--
		return dbenergie.Resolution{}, &dbenergie.ResolveError{Op: "id from ean", Err: dbenergie.ErrValueMissing}
	}
	return dbenergie.Resolution{ID: seedIDs[ean], Matches: 1}, nil
}

func (r *fakeResolver) EANFromID(_ context.Context, id dbenergie.ConnectionID) (dbenergie.EAN, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mismatches[id] > 0 {
		r.mismatches[id]--
		return "871687120054199999", nil
	}
	for ean, seedID := range seedIDs {
		if seedID == id {
			return ean, nil
		}
	}
	return "", dbenergie.ErrValueMissing
}

type fakeDownloader struct {
	mu sync.Mutex
	// fail lists the download attempts (counting from 0) that fail.
	fail         map[int]bool
	reloginFails int
	attempts     int
	downloaded   []dbenergie.ConnectionID
	reports      []dbenergie.HourlyUsageReport
	relogins     int
	// stopAfter cancels the test once this many downloads succeeded.
	stopAfter int
	cancel    context.CancelFunc
}

func (d *fakeDownloader) DownloadLatestVersion(_ context.Context, report dbenergie.Report) (string, []byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	attempt := d.attempts
	d.attempts++
	if d.fail[attempt] {
		return "", nil, &dbenergie.StatusError{Status: 401}
	}

	usage := report.(dbenergie.HourlyUsageReport)
	d.downloaded = append(d.downloaded, usage.Meter)
	d.reports = append(d.reports, usage)
	if d.stopAfter > 0 && len(d.downloaded) >= d.stopAfter {
		d.cancel()
	}
	return fmt.Sprintf("Grafiek %d.xlsx", usage.Meter), []byte{byte(usage.Meter)}, nil
}

func (d *fakeDownloader) Relogin(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.relogins++
	if d.reloginFails > 0 {
		d.reloginFails--
		return &dbenergie.AuthError{Op: "submit login form", Err: errors.New("connection reset")}
	}
	return nil
}

type savedFile struct {
	name string
	data []byte
}

type fakeSink struct {
	mu    sync.Mutex
	fails int
	saved []savedFile
}

func (s *fakeSink) Save(_ context.Context, fileName string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return errors.New("disk full")
	}
	s.saved = append(s.saved, savedFile{name: fileName, data: data})
	return nil
}

type fixture struct {
	resolver   *fakeResolver
	downloader *fakeDownloader
	sink       *fakeSink
	clock      *chrono.FakeTime
	tel        *telemetry.TestAPI
	policy     backoff.Policy
}

func newFixture() *fixture {
	return &fixture{
		resolver:   newFakeResolver(),
		downloader: &fakeDownloader{fail: map[int]bool{}},
		sink:       &fakeSink{},
		clock:      chrono.NewFakeTime(fixedNow),
		tel:        telemetry.NewTestAPI(),
		policy:     backoff.Policy{Min: time.Second, Max: 15 * time.Minute},
	}
}

func (f *fixture) pipeline(seeds ...dbenergie.EAN) *Pipeline {
	return New(Options{
		Seeds:      seeds,
		Resolver:   f.resolver,
		Downloader: f.downloader,
		Sink:       f.sink,
		Policy:     &f.policy,
		Clock:      f.clock,
		Telemetry:  f.tel,
	})
}

func collect(queue <-chan dbenergie.Pair) []dbenergie.Pair {
	var pairs []dbenergie.Pair
	for pair := range queue {
		pairs = append(pairs, pair)
	}
	return pairs
}

func closedQueue(pairs ...dbenergie.Pair) chan dbenergie.Pair {
	queue := make(chan dbenergie.Pair, len(pairs))
	for _, pair := range pairs {
		queue <- pair
	}
	close(queue)
	return queue
}

var allPairs = []dbenergie.Pair{{EAN: e1, ID: 1}, {EAN: e2, ID: 2}, {EAN: e3, ID: 3}}

func TestDiscoveryRetriesInOrder(t *testing.T) {
	f := newFixture()
	f.resolver.failures[e2] = 2

	queue := make(chan dbenergie.Pair, DefaultQueueSize)
	err := f.pipeline(e1, e2, e3).Discover(context.Background(), queue)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(allPairs, collect(queue)); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.clock.Sleeps())
	require.Equal(t, []dbenergie.EAN{e1, e2, e2, e2, e3}, f.resolver.calls)
	require.Len(t, f.tel.Reports(telemetry.KindWarning, report_discovery_resolve), 2)
}

func TestDiscoveryRejectsMismatch(t *testing.T) {
	f := newFixture()
	f.resolver.mismatches[2] = 1

	queue := make(chan dbenergie.Pair, DefaultQueueSize)
	err := f.pipeline(e1, e2, e3).Discover(context.Background(), queue)
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, allPairs, collect(queue))
	warnings := f.tel.Reports(telemetry.KindWarning, report_discovery_resolve)
	require.Len(t, warnings, 1)
	require.True(t, dbenergie.IsMismatch(warnings[0].Params[0].(error)))
}

func TestDiscoverySkipsExhaustedEAN(t *testing.T) {
	f := newFixture()
	f.policy.MaxAttempts = 3
	f.resolver.failures[e2] = -1

	queue := make(chan dbenergie.Pair, DefaultQueueSize)
	err := f.pipeline(e1, e2, e3).Discover(context.Background(), queue)
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, []dbenergie.Pair{{EAN: e1, ID: 1}, {EAN: e3, ID: 3}}, collect(queue))
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, f.clock.Sleeps())
	require.Len(t, f.tel.Reports(telemetry.KindBroken, report_discovery_skip), 1)
}

func TestDiscoveryReloginsOnExpiredSession(t *testing.T) {
	f := newFixture()
	f.resolver.expired[e1] = 4

	queue := make(chan dbenergie.Pair, DefaultQueueSize)
	err := f.pipeline(e1, e2).Discover(context.Background(), queue)
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, allPairs[:2], collect(queue))
	require.Equal(t, 1, f.downloader.relogins)
	require.Equal(t, []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}, f.clock.Sleeps())
	require.Equal(t, []dbenergie.EAN{e1, e1, e1, e1, e1, e2}, f.resolver.calls)
}

func TestDiscoveryKeepsSessionOnOtherFailures(t *testing.T) {
	f := newFixture()
	f.resolver.failures[e1] = 5

	queue := make(chan dbenergie.Pair, DefaultQueueSize)
	err := f.pipeline(e1).Discover(context.Background(), queue)
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, allPairs[:1], collect(queue))
	require.Equal(t, 0, f.downloader.relogins)
}

func TestDiscoveryStopsOnCancel(t *testing.T) {
	f := newFixture()
	f.resolver.failures[e1] = -1

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	queue := make(chan dbenergie.Pair, DefaultQueueSize)
	err := f.pipeline(e1, e2).Discover(ctx, queue)
	require.NoError(t, err)
	require.Empty(t, collect(queue))
}

func TestDownloadRoundRobin(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.downloader.stopAfter = 7
	f.downloader.cancel = cancel

	err := f.pipeline().Download(ctx, closedQueue(allPairs...))
	require.NoError(t, err)

	require.Equal(t, []dbenergie.ConnectionID{1, 2, 3, 1, 2, 3, 1}, f.downloader.downloaded)
	require.Equal(t, savedFile{name: "871687120054100001_Grafiek 1.xlsx", data: []byte{1}}, f.sink.saved[0])
	require.Equal(t, dbenergie.HourlyUsageReport{
		Meter: 1,
		Start: time.Date(2023, time.January, 1, 0, 0, 0, 0, chrono.Amsterdam()),
		End:   time.Date(2024, time.January, 1, 0, 0, 0, 0, chrono.Amsterdam()),
	}, f.downloader.reports[0])
	for _, sleep := range f.clock.Sleeps() {
		require.Equal(t, time.Second, sleep)
	}
}

func TestDownloadReloginsAfterFailure(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.downloader.fail[0] = true
	f.downloader.reloginFails = 1
	f.downloader.stopAfter = 2
	f.downloader.cancel = cancel

	err := f.pipeline().Download(ctx, closedQueue(allPairs[:2]...))
	require.NoError(t, err)

	require.Equal(t, []dbenergie.ConnectionID{1, 2}, f.downloader.downloaded)
	require.Equal(t, 2, f.downloader.relogins)
	require.Len(t, f.tel.Reports(telemetry.KindWarning, report_download_fetch), 1)
	require.Len(t, f.tel.Reports(telemetry.KindBroken, report_download_relogin), 1)
	// iteration sleep, relogin retry, the grown iteration sleep, then back to the floor
	require.Equal(t, []time.Duration{
		time.Second,
		time.Second,
		2 * time.Second,
		time.Second,
	}, f.clock.Sleeps())
}

func TestDownloadRetriesFailedSave(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.sink.fails = 1
	f.downloader.stopAfter = 3
	f.downloader.cancel = cancel

	err := f.pipeline().Download(ctx, closedQueue(allPairs[:2]...))
	require.NoError(t, err)

	require.Equal(t, []dbenergie.ConnectionID{1, 1, 2}, f.downloader.downloaded)
	require.Equal(t, 0, f.downloader.relogins)
	require.Len(t, f.tel.Reports(telemetry.KindWarning, report_download_save), 1)
}

func TestDownloadStopsWithoutPairs(t *testing.T) {
	f := newFixture()

	err := f.pipeline().Download(context.Background(), closedQueue())
	require.NoError(t, err)
	require.Empty(t, f.downloader.downloaded)
	require.Len(t, f.tel.Reports(telemetry.KindWarning, report_download_fetch), 1)
}

func TestRun(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.resolver.failures[e2] = 2
	f.downloader.stopAfter = 9
	f.downloader.cancel = cancel

	err := f.pipeline(e1, e2, e3).Run(ctx)
	require.NoError(t, err)

	require.Equal(t, []dbenergie.ConnectionID{1, 2, 3, 1, 2, 3, 1, 2, 3}, f.downloader.downloaded)
	require.Len(t, f.sink.saved, 9)
}

func TestRunWithoutResolvableEANs(t *testing.T) {
	f := newFixture()
	f.policy.MaxAttempts = 1
	f.resolver.failures[e1] = -1

	err := f.pipeline(e1).Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, f.downloader.downloaded)
}
