package dbenergie

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const downloadPath = "/Global/Download"

func decodeFileName(body []byte) (string, error) {
	var envelope any
	err := json.Unmarshal(body, &envelope)
	if err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	object, ok := envelope.(map[string]any)
	if !ok {
		return "", ErrNotAnObject
	}
	value, ok := object["fileName"]
	if !ok {
		return "", fmt.Errorf("%w: fileName", ErrKeyNotFound)
	}
	fileName, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: fileName", ErrValueNotAString)
	}
	return fileName, nil
}

// LatestVersion asks the portal to generate r and returns the name of the generated file.
func (c *Client) LatestVersion(ctx context.Context, r Report) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latestVersion(ctx, r)
}

func (c *Client) latestVersion(ctx context.Context, r Report) (string, error) {
	ctx, span := tracer.Start(ctx, "report:LatestVersion")
	defer span.End()
	span.SetAttributes(attribute.String("report", r.Name()))

	reportError := func(op string, err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, op)
		c.tel.ReportWarning(report_report_latest_version, fmt.Errorf("%s: %w", op, err), r.Name())
		return &ReportError{Report: r.Name(), Op: op, Err: err}
	}

	header, err := EncodePayload(BuildPayload(r, c.account, c.clock.Now()))
	if err != nil {
		return "", reportError("encode payload", err)
	}
	res, err := c.get(ctx, r.endpoint(), map[string]string{"request": header}, nil)
	if err != nil {
		return "", reportError("request latest version", err)
	}
	fileName, err := decodeFileName(res.Body())
	if err != nil {
		return "", reportError("read latest version", err)
	}

	c.tel.ReportDebug("latest version", r.Name(), fileName)
	return fileName, nil
}

// DownloadVersion fetches a file generated by LatestVersion.
func (c *Client) DownloadVersion(ctx context.Context, fileName string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.downloadVersion(ctx, fileName, fileName)
}

func (c *Client) downloadVersion(ctx context.Context, name, fileName string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "report:DownloadVersion")
	defer span.End()
	span.SetAttributes(attribute.String("file_name", fileName))

	res, err := c.get(ctx, downloadPath, nil, map[string]string{"fileName": fileName})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "download version")
		c.tel.ReportWarning(report_report_download_version, err, name, fileName)
		return nil, &ReportError{Report: name, Op: "download version", Err: err}
	}

	body := res.Body()
	attrs := metric.WithAttributes(attribute.String("report", name))
	downloadCounter.Add(ctx, 1, attrs)
	downloadBytes.Add(ctx, int64(len(body)), attrs)
	return body, nil
}

// DownloadLatestVersion generates r and downloads it, returning the file's name together
// with its contents.
func (c *Client) DownloadLatestVersion(ctx context.Context, r Report) (string, []byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fileName, err := c.latestVersion(ctx, r)
	if err != nil {
		return "", nil, err
	}
	data, err := c.downloadVersion(ctx, r.Name(), fileName)
	if err != nil {
		return "", nil, err
	}
	return fileName, data, nil
}
