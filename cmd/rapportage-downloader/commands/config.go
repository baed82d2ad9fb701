package commands

import (
	"fmt"
	"rapportage-downloader/internal/backoff"
	"rapportage-downloader/internal/components/telemetry"
	"rapportage-downloader/internal/scrapers/dbenergie"
	"rapportage-downloader/internal/workbook"
	"time"
)

type PipelineConfig struct {
	QueueSize int `json:"queue_size"`
	// MinBackoff and MaxBackoff are durations like "1s" or "15m".
	MinBackoff  string `json:"min_backoff"`
	MaxBackoff  string `json:"max_backoff"`
	MaxAttempts int    `json:"max_attempts"`
}

type ScheduleConfig struct {
	// Spec is a cron spec in Europe/Amsterdam time.
	Spec    string   `json:"spec"`
	Reports []string `json:"reports"`
}

type Config struct {
	Mail             string             `json:"mail"`
	Password         string             `json:"password"`
	Output           string             `json:"output"`
	BaseUrl          string             `json:"base_url"`
	Account          *dbenergie.Account `json:"account"`
	RateLimit        float64            `json:"rate_limit"`
	CloudflareBypass bool               `json:"cloudflare_bypass"`
	Pipeline         PipelineConfig     `json:"pipeline"`
	Schedule         ScheduleConfig     `json:"schedule"`
	Workbook         workbook.Options   `json:"workbook"`
	Telemetry        telemetry.Config   `json:"telemetry"`
	HttpDumpDir      string             `json:"http_dump_dir"`
}

const defaultScheduleSpec = "0 6 * * *"

func (c Config) backoffPolicy() (backoff.Policy, error) {
	policy := backoff.DefaultPolicy()
	if c.Pipeline.MinBackoff != "" {
		floor, err := time.ParseDuration(c.Pipeline.MinBackoff)
		if err != nil {
			return backoff.Policy{}, fmt.Errorf("pipeline.min_backoff: %w", err)
		}
		policy.Min = floor
	}
	if c.Pipeline.MaxBackoff != "" {
		ceiling, err := time.ParseDuration(c.Pipeline.MaxBackoff)
		if err != nil {
			return backoff.Policy{}, fmt.Errorf("pipeline.max_backoff: %w", err)
		}
		policy.Max = ceiling
	}
	policy.MaxAttempts = c.Pipeline.MaxAttempts
	return policy, nil
}

// missingFlags lists the required settings neither given as flag nor in the config.
func (c Config) missingFlags(needOutput bool) []string {
	var missing []string
	if c.Mail == "" {
		missing = append(missing, "--mail")
	}
	if c.Password == "" {
		missing = append(missing, "--password")
	}
	if needOutput && c.Output == "" {
		missing = append(missing, "--output")
	}
	return missing
}

func (c Config) scheduledReports() ([]dbenergie.Report, error) {
	if len(c.Schedule.Reports) == 0 {
		return dbenergie.AllReports(), nil
	}
	return parseReports(c.Schedule.Reports)
}

func parseReports(names []string) ([]dbenergie.Report, error) {
	reports := make([]dbenergie.Report, len(names))
	for i, name := range names {
		r, err := dbenergie.ParseReport(name)
		if err != nil {
			return nil, err
		}
		reports[i] = r
	}
	return reports, nil
}
