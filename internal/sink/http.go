package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"rapportage-downloader/internal/components/telemetry"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTP uploads every report as the `file` part of a multipart form.
type HTTP struct {
	target *url.URL
	http   *resty.Client
}

func NewHTTP(target *url.URL, tel telemetry.API) HTTP {
	client := resty.New()
	client.SetTimeout(time.Minute)
	telemetry.InstrumentResty(client, telemetry.NewScopedAPI("sink", tel), nil)
	return HTTP{target: target, http: client}
}

func (s HTTP) String() string {
	redacted := *s.target
	redacted.User = nil
	return redacted.String()
}

func (s HTTP) Save(ctx context.Context, fileName string, data []byte) error {
	res, err := s.http.R().
		SetContext(ctx).
		SetFileReader("file", fileName, bytes.NewReader(data)).
		Post(s.target.String())
	if err != nil {
		return &SinkError{Sink: s.String(), Op: "upload", Err: err}
	}
	if res.IsError() {
		return &SinkError{Sink: s.String(), Op: "upload", Err: fmt.Errorf("not ok: %s", res.Status())}
	}
	return nil
}
