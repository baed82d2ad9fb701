package pipeline

import (
	"context"
	"fmt"
	"rapportage-downloader/internal/backoff"
	"rapportage-downloader/internal/scrapers/dbenergie"
)

// Download refreshes the hourly usage report of every pair received from in, round robin.
//
// Every iteration first sleeps the current backoff and takes whatever pairs are waiting in
// the queue. The backoff doubles every iteration and is cut to a quarter after a successful
// save. A failed download logs in again before the same pair is retried, a failed save only
// retries the pair.
func (p *Pipeline) Download(ctx context.Context, in <-chan dbenergie.Pair) error {
	b := backoff.New(p.policy)

	var pairs []dbenergie.Pair
	cursor := 0
	open := true

	for {
		if b.Wait(ctx, p.clock) != nil {
			return nil
		}

		received := 0
	drain:
		for open {
			select {
			case pair, ok := <-in:
				if !ok {
					open = false
					break drain
				}
				pairs = append(pairs, pair)
				received++
			default:
				break drain
			}
		}
		if received > 0 {
			p.tel.ReportCount(report_download_pairs, int64(len(pairs)))
		}

		b.Grow()

		if cursor >= len(pairs) {
			if open {
				continue
			}
			if len(pairs) == 0 {
				p.tel.ReportWarning(report_download_fetch, fmt.Errorf("no ean could be resolved, nothing to download"))
				return nil
			}
			cursor = 0
		}

		pair := pairs[cursor]
		report := dbenergie.LastYearOfUsage(pair.ID, p.clock.Now())
		fileName, data, err := p.downloader.DownloadLatestVersion(ctx, report)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.tel.ReportWarning(report_download_fetch, err, string(pair.EAN), pair.ID.String())
			if p.relogin(ctx, report_download_relogin) != nil {
				return nil
			}
			continue
		}

		err = p.sink.Save(ctx, fmt.Sprintf("%s_%s", pair.EAN, fileName), data)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.tel.ReportWarning(report_download_save, err, string(pair.EAN), fileName)
			continue
		}

		p.tel.ReportDebug("saved report", string(pair.EAN), fileName, len(data))
		cursor++
		b.Succeed()
	}
}

// relogin keeps logging in with its own backoff until it succeeds, it only fails when
// ctx is done. Failed attempts are reported under id.
func (p *Pipeline) relogin(ctx context.Context, id string) error {
	policy := p.policy
	policy.MaxAttempts = 0
	b := backoff.New(policy)

	for {
		err := p.downloader.Relogin(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.tel.ReportBroken(id, err, b.Current().String())

		err = b.Wait(ctx, p.clock)
		if err != nil {
			return err
		}
		_ = b.Fail()
	}
}
