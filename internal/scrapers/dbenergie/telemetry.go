package dbenergie

import (
	"go.opentelemetry.io/otel"
)

const (
	report_client_login            = "client.login"
	report_resolver_id_from_ean    = "resolver.id-from-ean"
	report_resolver_ean_from_id    = "resolver.ean-from-id"
	report_resolver_date_range     = "resolver.date-range"
	report_report_latest_version   = "report.latest-version"
	report_report_download_version = "report.download-version"
)

var tracer = otel.Tracer("rapportage-downloader/dbenergie")
var meter = otel.Meter("rapportage-downloader/dbenergie")

var reloginCounter, _ = meter.Int64Counter("dbenergie_relogin_total")
var downloadCounter, _ = meter.Int64Counter("dbenergie_download_total")
var downloadBytes, _ = meter.Int64Counter("dbenergie_download_bytes_total")
