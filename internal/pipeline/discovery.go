package pipeline

import (
	"context"
	"errors"
	"rapportage-downloader/internal/backoff"
	"rapportage-downloader/internal/scrapers/dbenergie"
)

// Discover resolves every seed EAN in order and sends the verified pairs to out, closing
// out when it is done. A failing EAN is retried after the current backoff, which doubles
// with every failure, and is skipped once the policy's attempts run out. Repeated status
// errors mean the session expired, so discovery logs in again after reloginAfterStatusErrors
// of them in a row.
func (p *Pipeline) Discover(ctx context.Context, out chan<- dbenergie.Pair) error {
	defer close(out)

	b := backoff.New(p.policy)
	sent := 0
	for _, ean := range p.seeds {
		pair, ok := p.resolve(ctx, b, ean)
		if ctx.Err() != nil {
			return nil
		}
		if !ok {
			continue
		}

		select {
		case out <- pair:
		case <-ctx.Done():
			return nil
		}
		b.Succeed()
		sent++
		p.tel.ReportDebug("resolved ean", string(pair.EAN), pair.ID.String())
		p.tel.ReportCount(report_discovery_pairs, int64(sent))
	}
	return nil
}

func (p *Pipeline) resolve(ctx context.Context, b *backoff.Backoff, ean dbenergie.EAN) (dbenergie.Pair, bool) {
	statusErrors := 0
	for {
		pair, _, err := dbenergie.ResolvePair(ctx, p.resolver, ean)
		if err == nil {
			return pair, true
		}
		if ctx.Err() != nil {
			return dbenergie.Pair{}, false
		}

		var status *dbenergie.StatusError
		if errors.As(err, &status) {
			statusErrors++
		} else {
			statusErrors = 0
		}

		var mismatch *dbenergie.MismatchError
		if errors.As(err, &mismatch) {
			p.tel.ReportWarning(report_discovery_resolve, err, mismatch.Similarity(), b.Current().String())
		} else {
			p.tel.ReportWarning(report_discovery_resolve, err, string(ean), b.Current().String())
		}

		if b.Wait(ctx, p.clock) != nil {
			return dbenergie.Pair{}, false
		}
		if errors.Is(b.Fail(), backoff.ErrAttemptsExhausted) {
			p.tel.ReportBroken(report_discovery_skip, err, string(ean), b.Failures())
			b.ResetAttempts()
			return dbenergie.Pair{}, false
		}

		if statusErrors >= reloginAfterStatusErrors {
			statusErrors = 0
			if p.relogin(ctx, report_discovery_relogin) != nil {
				return dbenergie.Pair{}, false
			}
		}
	}
}
