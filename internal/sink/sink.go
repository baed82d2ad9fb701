// Package sink stores downloaded reports in a directory, on a web server or in a mailbox.
package sink

import (
	"context"
	"fmt"
	"net/url"
	"rapportage-downloader/internal/components/telemetry"
	"strings"
)

type Sink interface {
	// Save stores data under fileName, it never alters data.
	Save(ctx context.Context, fileName string, data []byte) error
	String() string
}

// SinkError wraps every failure of a sink.
type SinkError struct {
	Sink string
	Op   string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %s: %v", e.Sink, e.Op, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// New picks a sink for output: http(s) urls receive a multipart upload, smtp urls
// receive a mail with the report attached, anything else is a directory.
func New(output string, tel telemetry.API) (Sink, error) {
	if output == "" {
		return nil, &SinkError{Sink: "<empty>", Op: "parse output", Err: fmt.Errorf("no output given")}
	}

	lower := strings.ToLower(output)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		u, err := url.Parse(output)
		if err != nil {
			return nil, &SinkError{Sink: output, Op: "parse output", Err: err}
		}
		return NewHTTP(u, tel), nil
	case strings.HasPrefix(lower, "smtp://"):
		u, err := url.Parse(output)
		if err != nil {
			return nil, &SinkError{Sink: "smtp", Op: "parse output", Err: err}
		}
		return NewEmail(u)
	}
	return NewFilesystem(output), nil
}
