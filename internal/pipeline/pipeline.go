// Package pipeline keeps the hourly usage reports of a set of meters fresh.
//
// A discovery stage resolves every seed EAN to its connection id, once, in order. A download
// stage picks the resolved pairs up through a bounded queue and downloads their reports round
// robin for as long as the context lives.
package pipeline

import (
	"context"
	"rapportage-downloader/internal/backoff"
	"rapportage-downloader/internal/components/assert"
	"rapportage-downloader/internal/components/chrono"
	"rapportage-downloader/internal/components/telemetry"
	"rapportage-downloader/internal/scrapers/dbenergie"

	"golang.org/x/sync/errgroup"
)

const DefaultQueueSize = 10

// reloginAfterStatusErrors is the number of consecutive status errors while resolving one
// EAN after which discovery logs in again.
const reloginAfterStatusErrors = 3

const (
	report_discovery_resolve = "discovery.resolve"
	report_discovery_skip    = "discovery.skip"
	report_discovery_pairs   = "discovery.pairs"
	report_discovery_relogin = "discovery.relogin"
	report_download_fetch    = "download.fetch"
	report_download_relogin  = "download.relogin"
	report_download_save     = "download.save"
	report_download_pairs    = "download.pairs"
)

type Downloader interface {
	DownloadLatestVersion(ctx context.Context, report dbenergie.Report) (string, []byte, error)
	Relogin(ctx context.Context) error
}

type Sink interface {
	Save(ctx context.Context, fileName string, data []byte) error
}

type Options struct {
	Seeds      []dbenergie.EAN
	Resolver   dbenergie.Resolver
	Downloader Downloader
	Sink       Sink
	// QueueSize defaults to DefaultQueueSize.
	QueueSize int
	// Policy defaults to backoff.DefaultPolicy.
	Policy    *backoff.Policy
	Clock     chrono.TimeAPI
	Telemetry telemetry.API
}

type Pipeline struct {
	seeds      []dbenergie.EAN
	resolver   dbenergie.Resolver
	downloader Downloader
	sink       Sink
	queueSize  int
	policy     backoff.Policy
	clock      chrono.TimeAPI
	tel        telemetry.API
}

func New(opts Options) *Pipeline {
	assert.NotNil(opts.Resolver)
	assert.NotNil(opts.Downloader)
	assert.NotNil(opts.Sink)
	assert.NotNil(opts.Telemetry)

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	policy := backoff.DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	clock := opts.Clock
	if clock == nil {
		clock = chrono.NewStandardTime()
	}

	return &Pipeline{
		seeds:      opts.Seeds,
		resolver:   opts.Resolver,
		downloader: opts.Downloader,
		sink:       opts.Sink,
		queueSize:  queueSize,
		policy:     policy,
		clock:      clock,
		tel:        telemetry.NewScopedAPI("pipeline", opts.Telemetry),
	}
}

// Run starts both stages and blocks until they have stopped. Once at least one EAN has
// been resolved the stages only stop when ctx is cancelled, in which case Run returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	queue := make(chan dbenergie.Pair, p.queueSize)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return p.Discover(ctx, queue)
	})
	group.Go(func() error {
		return p.Download(ctx, queue)
	})
	return group.Wait()
}
